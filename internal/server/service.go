package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/nainya/docvcs/pkg/history"
	"github.com/nainya/docvcs/pkg/merge"
	"github.com/nainya/docvcs/pkg/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "docvcs.v1.VersionControl"

// ========== Messages ==========

type InitializeDocumentRequest struct {
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	Options    model.InitOptions `json:"options"`
}

type CreateVersionRequest struct {
	DocumentID string            `json:"document_id"`
	Branch     string            `json:"branch,omitempty"`
	Content    string            `json:"content"`
	Meta       model.VersionMeta `json:"meta"`
}

type GetVersionRequest struct {
	DocumentID string `json:"document_id"`
	VersionID  string `json:"version_id"`
}

type ResolveRequest struct {
	DocumentID string `json:"document_id"`
	Ref        string `json:"ref"`
}

// DocumentRequest addresses a whole document.
type DocumentRequest struct {
	DocumentID string `json:"document_id"`
}

type CreateBranchRequest struct {
	DocumentID    string              `json:"document_id"`
	Name          string              `json:"name"`
	FromVersionID string              `json:"from_version_id,omitempty"`
	Options       model.BranchOptions `json:"options"`
}

// BranchRequest addresses one branch.
type BranchRequest struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
}

type RenameBranchRequest struct {
	DocumentID string `json:"document_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type SetProtectionRequest struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Protected  bool   `json:"protected"`
}

type MergeBranchesRequest struct {
	DocumentID string             `json:"document_id"`
	Source     string             `json:"source"`
	Target     string             `json:"target"`
	Options    model.MergeOptions `json:"options"`
}

type CreateTagRequest struct {
	DocumentID string           `json:"document_id"`
	VersionID  string           `json:"version_id"`
	Name       string           `json:"name"`
	Options    model.TagOptions `json:"options"`
}

// TagRequest addresses one tag.
type TagRequest struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
}

type ListTagsRequest struct {
	DocumentID string        `json:"document_id"`
	Type       model.TagType `json:"type,omitempty"`
}

type GetVersionHistoryRequest struct {
	DocumentID string               `json:"document_id"`
	Options    model.HistoryOptions `json:"options"`
}

type CompareVersionsRequest struct {
	DocumentID    string `json:"document_id"`
	FromVersionID string `json:"from_version_id"`
	ToVersionID   string `json:"to_version_id"`
}

type RevertToVersionRequest struct {
	DocumentID      string              `json:"document_id"`
	TargetVersionID string              `json:"target_version_id"`
	Options         model.RevertOptions `json:"options"`
}

type Empty struct{}

type DocumentList struct {
	Documents []*model.Document `json:"documents"`
}

type BranchList struct {
	Branches []*model.Branch `json:"branches"`
}

type TagList struct {
	Tags []*model.Tag `json:"tags"`
}

// ========== Service ==========

// VersionControlServer is the server API of docvcs.v1.VersionControl.
type VersionControlServer interface {
	InitializeDocument(context.Context, *InitializeDocumentRequest) (*model.Version, error)
	CreateVersion(context.Context, *CreateVersionRequest) (*model.Version, error)
	GetVersion(context.Context, *GetVersionRequest) (*model.Version, error)
	Resolve(context.Context, *ResolveRequest) (*model.Version, error)
	GetDocumentStats(context.Context, *DocumentRequest) (*model.DocumentStats, error)
	VerifyDocument(context.Context, *DocumentRequest) (*Empty, error)
	ListDocuments(context.Context, *Empty) (*DocumentList, error)
	CreateBranch(context.Context, *CreateBranchRequest) (*model.Branch, error)
	GetBranch(context.Context, *BranchRequest) (*model.Branch, error)
	ListBranches(context.Context, *DocumentRequest) (*BranchList, error)
	DeleteBranch(context.Context, *BranchRequest) (*Empty, error)
	RenameBranch(context.Context, *RenameBranchRequest) (*model.Branch, error)
	SetProtection(context.Context, *SetProtectionRequest) (*model.Branch, error)
	MergeBranches(context.Context, *MergeBranchesRequest) (*merge.Result, error)
	CreateTag(context.Context, *CreateTagRequest) (*model.Tag, error)
	GetTag(context.Context, *TagRequest) (*model.Tag, error)
	ListTags(context.Context, *ListTagsRequest) (*TagList, error)
	GetVersionHistory(context.Context, *GetVersionHistoryRequest) (*history.Page, error)
	CompareVersions(context.Context, *CompareVersionsRequest) (*model.DiffResult, error)
	RevertToVersion(context.Context, *RevertToVersionRequest) (*model.Version, error)
}

// unary builds the method descriptor of one request/response call.
func unary[Req, Resp any](name string, call func(VersionControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(VersionControlServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes docvcs.v1.VersionControl for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VersionControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("InitializeDocument", VersionControlServer.InitializeDocument),
		unary("CreateVersion", VersionControlServer.CreateVersion),
		unary("GetVersion", VersionControlServer.GetVersion),
		unary("Resolve", VersionControlServer.Resolve),
		unary("GetDocumentStats", VersionControlServer.GetDocumentStats),
		unary("VerifyDocument", VersionControlServer.VerifyDocument),
		unary("ListDocuments", VersionControlServer.ListDocuments),
		unary("CreateBranch", VersionControlServer.CreateBranch),
		unary("GetBranch", VersionControlServer.GetBranch),
		unary("ListBranches", VersionControlServer.ListBranches),
		unary("DeleteBranch", VersionControlServer.DeleteBranch),
		unary("RenameBranch", VersionControlServer.RenameBranch),
		unary("SetProtection", VersionControlServer.SetProtection),
		unary("MergeBranches", VersionControlServer.MergeBranches),
		unary("CreateTag", VersionControlServer.CreateTag),
		unary("GetTag", VersionControlServer.GetTag),
		unary("ListTags", VersionControlServer.ListTags),
		unary("GetVersionHistory", VersionControlServer.GetVersionHistory),
		unary("CompareVersions", VersionControlServer.CompareVersions),
		unary("RevertToVersion", VersionControlServer.RevertToVersion),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docvcs/v1/version_control",
}

// RegisterVersionControlServer registers srv on s.
func RegisterVersionControlServer(s grpc.ServiceRegistrar, srv VersionControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}
