// Package server implements the gRPC docvcs.v1.VersionControl service on top
// of the engine.
package server

import (
	"context"
	"encoding/json"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/nainya/docvcs/internal/logger"
	"github.com/nainya/docvcs/internal/metrics"
	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/engine"
	"github.com/nainya/docvcs/pkg/history"
	"github.com/nainya/docvcs/pkg/merge"
	"github.com/nainya/docvcs/pkg/model"
)

// Trailer keys carrying error details the status code cannot express.
const (
	kindTrailer      = "docvcs-error-kind"
	conflictsTrailer = "docvcs-conflicts-bin"
)

var kindCodes = map[apperr.Kind]codes.Code{
	apperr.KindDocumentNotFound:      codes.NotFound,
	apperr.KindVersionNotFound:       codes.NotFound,
	apperr.KindBranchNotFound:        codes.NotFound,
	apperr.KindTagNotFound:           codes.NotFound,
	apperr.KindDocumentAlreadyExists: codes.AlreadyExists,
	apperr.KindBranchAlreadyExists:   codes.AlreadyExists,
	apperr.KindTagAlreadyExists:      codes.AlreadyExists,
	apperr.KindInvalidBranchName:     codes.InvalidArgument,
	apperr.KindInvalidTagName:        codes.InvalidArgument,
	apperr.KindValidation:            codes.InvalidArgument,
	apperr.KindMergeConflict:         codes.Aborted,
	apperr.KindNothingToMerge:        codes.FailedPrecondition,
	apperr.KindStorageUnavailable:    codes.Unavailable,
	apperr.KindBranchProtected:       codes.PermissionDenied,
	apperr.KindInternal:              codes.Internal,
}

// CodeOf maps an error kind to a gRPC status code.
func CodeOf(kind apperr.Kind) codes.Code {
	if c, ok := kindCodes[kind]; ok {
		return c
	}
	return codes.Unknown
}

// Server implements VersionControlServer.
type Server struct {
	engine *engine.Engine
	log    *logger.Logger
}

// NewServer creates the service. The caller owns e and its repository.
func NewServer(e *engine.Engine, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewLogger(logger.Config{Output: io.Discard})
	}
	return &Server{engine: e, log: log}
}

// toStatus converts an engine error to a gRPC status and records its kind in
// the trailer so clients can rebuild the same error.
func toStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	kind := apperr.KindOf(err)
	_ = grpc.SetTrailer(ctx, metadata.Pairs(kindTrailer, string(kind)))
	return status.Error(CodeOf(kind), err.Error())
}

func respond[T any](ctx context.Context, v T, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, toStatus(ctx, err)
	}
	return v, nil
}

// ========== Documents and versions ==========

func (s *Server) InitializeDocument(ctx context.Context, req *InitializeDocumentRequest) (*model.Version, error) {
	v, err := s.engine.InitializeDocument(ctx, req.DocumentID, req.Content, req.Options)
	return respond(ctx, v, err)
}

func (s *Server) CreateVersion(ctx context.Context, req *CreateVersionRequest) (*model.Version, error) {
	v, err := s.engine.CreateVersion(ctx, req.DocumentID, req.Branch, req.Content, req.Meta)
	return respond(ctx, v, err)
}

func (s *Server) GetVersion(ctx context.Context, req *GetVersionRequest) (*model.Version, error) {
	v, err := s.engine.GetVersion(ctx, req.DocumentID, req.VersionID)
	return respond(ctx, v, err)
}

func (s *Server) Resolve(ctx context.Context, req *ResolveRequest) (*model.Version, error) {
	v, err := s.engine.Resolve(ctx, req.DocumentID, req.Ref)
	return respond(ctx, v, err)
}

func (s *Server) GetDocumentStats(ctx context.Context, req *DocumentRequest) (*model.DocumentStats, error) {
	stats, err := s.engine.GetDocumentStats(ctx, req.DocumentID)
	return respond(ctx, stats, err)
}

func (s *Server) VerifyDocument(ctx context.Context, req *DocumentRequest) (*Empty, error) {
	err := s.engine.VerifyDocument(ctx, req.DocumentID)
	return respond(ctx, &Empty{}, err)
}

func (s *Server) ListDocuments(ctx context.Context, _ *Empty) (*DocumentList, error) {
	docs, err := s.engine.ListDocuments(ctx)
	return respond(ctx, &DocumentList{Documents: docs}, err)
}

// ========== Branches ==========

func (s *Server) CreateBranch(ctx context.Context, req *CreateBranchRequest) (*model.Branch, error) {
	b, err := s.engine.CreateBranch(ctx, req.DocumentID, req.Name, req.FromVersionID, req.Options)
	return respond(ctx, b, err)
}

func (s *Server) GetBranch(ctx context.Context, req *BranchRequest) (*model.Branch, error) {
	b, err := s.engine.GetBranch(ctx, req.DocumentID, req.Name)
	return respond(ctx, b, err)
}

func (s *Server) ListBranches(ctx context.Context, req *DocumentRequest) (*BranchList, error) {
	branches, err := s.engine.ListBranches(ctx, req.DocumentID)
	return respond(ctx, &BranchList{Branches: branches}, err)
}

func (s *Server) DeleteBranch(ctx context.Context, req *BranchRequest) (*Empty, error) {
	err := s.engine.DeleteBranch(ctx, req.DocumentID, req.Name)
	return respond(ctx, &Empty{}, err)
}

func (s *Server) RenameBranch(ctx context.Context, req *RenameBranchRequest) (*model.Branch, error) {
	b, err := s.engine.RenameBranch(ctx, req.DocumentID, req.From, req.To)
	return respond(ctx, b, err)
}

func (s *Server) SetProtection(ctx context.Context, req *SetProtectionRequest) (*model.Branch, error) {
	b, err := s.engine.SetProtection(ctx, req.DocumentID, req.Name, req.Protected)
	return respond(ctx, b, err)
}

// MergeBranches reports the conflicts of a rejected manual merge in the
// trailer, since a failed call carries no response message.
func (s *Server) MergeBranches(ctx context.Context, req *MergeBranchesRequest) (*merge.Result, error) {
	res, err := s.engine.MergeBranches(ctx, req.DocumentID, req.Source, req.Target, req.Options)
	if err != nil && res != nil && len(res.Conflicts) > 0 {
		if data, jerr := json.Marshal(res.Conflicts); jerr == nil {
			_ = grpc.SetTrailer(ctx, metadata.Pairs(conflictsTrailer, string(data)))
		} else {
			s.log.GrpcLogger("MergeBranches").Warn().Err(jerr).Msg("encode conflicts")
		}
	}
	return respond(ctx, res, err)
}

// ========== Tags ==========

func (s *Server) CreateTag(ctx context.Context, req *CreateTagRequest) (*model.Tag, error) {
	t, err := s.engine.CreateTag(ctx, req.DocumentID, req.VersionID, req.Name, req.Options)
	return respond(ctx, t, err)
}

func (s *Server) GetTag(ctx context.Context, req *TagRequest) (*model.Tag, error) {
	t, err := s.engine.GetTag(ctx, req.DocumentID, req.Name)
	return respond(ctx, t, err)
}

func (s *Server) ListTags(ctx context.Context, req *ListTagsRequest) (*TagList, error) {
	tags, err := s.engine.ListTags(ctx, req.DocumentID, req.Type)
	return respond(ctx, &TagList{Tags: tags}, err)
}

// ========== History ==========

func (s *Server) GetVersionHistory(ctx context.Context, req *GetVersionHistoryRequest) (*history.Page, error) {
	page, err := s.engine.GetVersionHistory(ctx, req.DocumentID, req.Options)
	return respond(ctx, page, err)
}

func (s *Server) CompareVersions(ctx context.Context, req *CompareVersionsRequest) (*model.DiffResult, error) {
	d, err := s.engine.CompareVersions(ctx, req.DocumentID, req.FromVersionID, req.ToVersionID)
	return respond(ctx, d, err)
}

func (s *Server) RevertToVersion(ctx context.Context, req *RevertToVersionRequest) (*model.Version, error) {
	v, err := s.engine.RevertToVersion(ctx, req.DocumentID, req.TargetVersionID, req.Options)
	return respond(ctx, v, err)
}

// NewGRPCServer builds a grpc.Server exposing srv, the standard health
// service and reflection. maxMessageBytes of zero keeps the gRPC default.
func NewGRPCServer(srv *Server, m *metrics.Metrics, maxMessageBytes int) (*grpc.Server, *health.Server) {
	var opts []grpc.ServerOption
	if m != nil {
		opts = append(opts, grpc.ChainUnaryInterceptor(GrpcMetricsInterceptor(m, srv.log)))
	}
	if maxMessageBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(maxMessageBytes), grpc.MaxSendMsgSize(maxMessageBytes))
	}
	gs := grpc.NewServer(opts...)
	RegisterVersionControlServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	return gs, hs
}
