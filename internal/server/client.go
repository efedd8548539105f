package server

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/history"
	"github.com/nainya/docvcs/pkg/merge"
	"github.com/nainya/docvcs/pkg/model"
)

// Client calls docvcs.v1.VersionControl. Its methods mirror engine.Engine and
// return the same error kinds.
type Client struct {
	conn grpc.ClientConnInterface
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindStorageUnavailable, err, "dial %s", addr)
	}
	return NewClient(conn), conn, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any, trailer *metadata.MD) error {
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp,
		grpc.CallContentSubtype(CodecName), grpc.Trailer(trailer))
	return fromStatus(err, *trailer)
}

func call[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	var trailer metadata.MD
	out := new(Resp)
	if err := c.invoke(ctx, method, req, out, &trailer); err != nil {
		return nil, err
	}
	return out, nil
}

// fromStatus rebuilds an apperr error from a gRPC status.
func fromStatus(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return apperr.Wrap(apperr.KindInternal, err, "call failed")
	}
	if kinds := trailer.Get(kindTrailer); len(kinds) > 0 {
		return apperr.New(apperr.Kind(kinds[0]), "%s", st.Message())
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return apperr.New(apperr.KindStorageUnavailable, "%s", st.Message())
	case codes.InvalidArgument:
		return apperr.New(apperr.KindValidation, "%s", st.Message())
	default:
		return apperr.New(apperr.KindInternal, "%s: %s", st.Code(), st.Message())
	}
}

func (c *Client) InitializeDocument(ctx context.Context, documentID, content string, opts model.InitOptions) (*model.Version, error) {
	return call[model.Version](ctx, c, "InitializeDocument", &InitializeDocumentRequest{DocumentID: documentID, Content: content, Options: opts})
}

func (c *Client) CreateVersion(ctx context.Context, documentID, branchName, content string, meta model.VersionMeta) (*model.Version, error) {
	return call[model.Version](ctx, c, "CreateVersion", &CreateVersionRequest{DocumentID: documentID, Branch: branchName, Content: content, Meta: meta})
}

func (c *Client) GetVersion(ctx context.Context, documentID, versionID string) (*model.Version, error) {
	return call[model.Version](ctx, c, "GetVersion", &GetVersionRequest{DocumentID: documentID, VersionID: versionID})
}

func (c *Client) Resolve(ctx context.Context, documentID, ref string) (*model.Version, error) {
	return call[model.Version](ctx, c, "Resolve", &ResolveRequest{DocumentID: documentID, Ref: ref})
}

func (c *Client) GetDocumentStats(ctx context.Context, documentID string) (*model.DocumentStats, error) {
	return call[model.DocumentStats](ctx, c, "GetDocumentStats", &DocumentRequest{DocumentID: documentID})
}

func (c *Client) VerifyDocument(ctx context.Context, documentID string) error {
	_, err := call[Empty](ctx, c, "VerifyDocument", &DocumentRequest{DocumentID: documentID})
	return err
}

func (c *Client) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	out, err := call[DocumentList](ctx, c, "ListDocuments", &Empty{})
	if err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *Client) CreateBranch(ctx context.Context, documentID, name, fromVersionID string, opts model.BranchOptions) (*model.Branch, error) {
	return call[model.Branch](ctx, c, "CreateBranch", &CreateBranchRequest{DocumentID: documentID, Name: name, FromVersionID: fromVersionID, Options: opts})
}

func (c *Client) GetBranch(ctx context.Context, documentID, name string) (*model.Branch, error) {
	return call[model.Branch](ctx, c, "GetBranch", &BranchRequest{DocumentID: documentID, Name: name})
}

func (c *Client) ListBranches(ctx context.Context, documentID string) ([]*model.Branch, error) {
	out, err := call[BranchList](ctx, c, "ListBranches", &DocumentRequest{DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	return out.Branches, nil
}

func (c *Client) DeleteBranch(ctx context.Context, documentID, name string) error {
	_, err := call[Empty](ctx, c, "DeleteBranch", &BranchRequest{DocumentID: documentID, Name: name})
	return err
}

func (c *Client) RenameBranch(ctx context.Context, documentID, from, to string) (*model.Branch, error) {
	return call[model.Branch](ctx, c, "RenameBranch", &RenameBranchRequest{DocumentID: documentID, From: from, To: to})
}

func (c *Client) SetProtection(ctx context.Context, documentID, name string, protected bool) (*model.Branch, error) {
	return call[model.Branch](ctx, c, "SetProtection", &SetProtectionRequest{DocumentID: documentID, Name: name, Protected: protected})
}

// MergeBranches returns the conflict report alongside a MergeConflict error,
// as the engine does.
func (c *Client) MergeBranches(ctx context.Context, documentID, source, target string, opts model.MergeOptions) (*merge.Result, error) {
	var trailer metadata.MD
	out := new(merge.Result)
	req := &MergeBranchesRequest{DocumentID: documentID, Source: source, Target: target, Options: opts}
	err := c.invoke(ctx, "MergeBranches", req, out, &trailer)
	if err == nil {
		return out, nil
	}
	raw := trailer.Get(conflictsTrailer)
	if len(raw) == 0 {
		return nil, err
	}
	res := &merge.Result{Strategy: opts.StrategyOrDefault()}
	if jerr := json.Unmarshal([]byte(raw[0]), &res.Conflicts); jerr != nil {
		return nil, err
	}
	return res, err
}

func (c *Client) CreateTag(ctx context.Context, documentID, versionID, name string, opts model.TagOptions) (*model.Tag, error) {
	return call[model.Tag](ctx, c, "CreateTag", &CreateTagRequest{DocumentID: documentID, VersionID: versionID, Name: name, Options: opts})
}

func (c *Client) GetTag(ctx context.Context, documentID, name string) (*model.Tag, error) {
	return call[model.Tag](ctx, c, "GetTag", &TagRequest{DocumentID: documentID, Name: name})
}

func (c *Client) ListTags(ctx context.Context, documentID string, tagType model.TagType) ([]*model.Tag, error) {
	out, err := call[TagList](ctx, c, "ListTags", &ListTagsRequest{DocumentID: documentID, Type: tagType})
	if err != nil {
		return nil, err
	}
	return out.Tags, nil
}

func (c *Client) GetVersionHistory(ctx context.Context, documentID string, opts model.HistoryOptions) (*history.Page, error) {
	return call[history.Page](ctx, c, "GetVersionHistory", &GetVersionHistoryRequest{DocumentID: documentID, Options: opts})
}

func (c *Client) CompareVersions(ctx context.Context, documentID, fromVersionID, toVersionID string) (*model.DiffResult, error) {
	return call[model.DiffResult](ctx, c, "CompareVersions", &CompareVersionsRequest{DocumentID: documentID, FromVersionID: fromVersionID, ToVersionID: toVersionID})
}

func (c *Client) RevertToVersion(ctx context.Context, documentID, targetVersionID string, opts model.RevertOptions) (*model.Version, error) {
	return call[model.Version](ctx, c, "RevertToVersion", &RevertToVersionRequest{DocumentID: documentID, TargetVersionID: targetVersionID, Options: opts})
}
