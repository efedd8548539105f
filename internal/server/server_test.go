// Integration tests for the docvcs gRPC server
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nainya/docvcs/internal/logger"
	"github.com/nainya/docvcs/internal/metrics"
	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/engine"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/storage/memstore"
)

const bufSize = 1024 * 1024

type harness struct {
	client  *Client
	conn    *grpc.ClientConn
	metrics *metrics.Metrics
}

func setupTestServer(t *testing.T) *harness {
	t.Helper()
	log := logger.NewLogger(logger.Config{Output: io.Discard})
	m := metrics.NewMetrics(prometheus.NewRegistry())
	repo := memstore.New()
	e := engine.New(repo, engine.Options{Recorder: m, Logger: log.EngineLogger()})

	gs, _ := NewGRPCServer(NewServer(e, log), m, 0)
	lis := bufconn.Listen(bufSize)
	go func() {
		_ = gs.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		gs.Stop()
		lis.Close()
		repo.Close()
	})
	return &harness{client: NewClient(conn), conn: conn, metrics: m}
}

func TestLifecycleOverGRPC(t *testing.T) {
	h := setupTestServer(t)
	c := h.client
	ctx := context.Background()

	v1, err := c.InitializeDocument(ctx, "doc1", "Hello", model.InitOptions{Author: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.Number)

	v2, err := c.CreateVersion(ctx, "doc1", "", "Hello World", model.VersionMeta{Author: "alice"})
	require.NoError(t, err)

	b, err := c.CreateBranch(ctx, "doc1", "feature", v2.ID, model.BranchOptions{CreatedBy: "bob"})
	require.NoError(t, err)
	assert.Equal(t, v2.ID, b.Head)

	v3, err := c.CreateVersion(ctx, "doc1", "feature", "Hello World!!", model.VersionMeta{Author: "bob"})
	require.NoError(t, err)

	res, err := c.MergeBranches(ctx, "doc1", "feature", model.MainBranch, model.MergeOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{v2.ID, v3.ID}, res.Version.Parents)
	assert.Equal(t, "Hello World!!", res.Version.Content)

	tag, err := c.CreateTag(ctx, "doc1", res.Version.ID, "v1.0", model.TagOptions{Type: model.TagRelease})
	require.NoError(t, err)
	assert.Equal(t, model.TagRelease, tag.Type)

	tags, err := c.ListTags(ctx, "doc1", model.TagRelease)
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	page, err := c.GetVersionHistory(ctx, "doc1", model.HistoryOptions{IncludeContent: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.Items[0].Content)
	assert.Equal(t, "Hello World!!", *page.Items[0].Content)

	d, err := c.CompareVersions(ctx, "doc1", v1.ID, v3.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats.Insertions)
	assert.Equal(t, 1, d.Stats.Deletions)

	v5, err := c.RevertToVersion(ctx, "doc1", v1.ID, model.RevertOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Hello", v5.Content)

	got, err := c.Resolve(ctx, "doc1", "v1.0")
	require.NoError(t, err)
	assert.Equal(t, res.Version.ID, got.ID)

	branches, err := c.ListBranches(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, branches, 2)
	assert.Equal(t, model.MainBranch, branches[0].Name)

	renamed, err := c.RenameBranch(ctx, "doc1", "feature", "done")
	require.NoError(t, err)
	assert.Equal(t, "done", renamed.Name)
	_, err = c.SetProtection(ctx, "doc1", "done", true)
	require.NoError(t, err)
	err = c.DeleteBranch(ctx, "doc1", "done")
	assert.True(t, errors.Is(err, apperr.ErrBranchProtected))

	stats, err := c.GetDocumentStats(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalVersions)
	assert.Equal(t, []string{"alice", "bob"}, stats.Contributors)

	docs, err := c.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc1", docs[0].ID)

	assert.NoError(t, c.VerifyDocument(ctx, "doc1"))
}

func TestErrorKindsCrossTheWire(t *testing.T) {
	h := setupTestServer(t)
	c := h.client
	ctx := context.Background()

	_, err := c.GetVersion(ctx, "nope", "x")
	assert.True(t, errors.Is(err, apperr.ErrDocumentNotFound))

	_, err = c.InitializeDocument(ctx, "doc", "x", model.InitOptions{})
	require.NoError(t, err)
	_, err = c.InitializeDocument(ctx, "doc", "x", model.InitOptions{})
	assert.True(t, errors.Is(err, apperr.ErrDocumentAlreadyExists))

	_, err = c.CreateBranch(ctx, "doc", "bad name!", "", model.BranchOptions{})
	assert.True(t, errors.Is(err, apperr.ErrInvalidBranchName))

	_, err = c.GetTag(ctx, "doc", "missing")
	assert.True(t, errors.Is(err, apperr.ErrTagNotFound))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		h.metrics.GrpcRequestsTotal.WithLabelValues("/"+ServiceName+"/GetTag", codes.NotFound.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		h.metrics.OperationsTotal.WithLabelValues("get_tag", string(apperr.KindTagNotFound))))
}

func TestManualMergeConflictsOverGRPC(t *testing.T) {
	h := setupTestServer(t)
	c := h.client
	ctx := context.Background()

	_, err := c.InitializeDocument(ctx, "doc", "a\n", model.InitOptions{})
	require.NoError(t, err)
	_, err = c.CreateBranch(ctx, "doc", "feature", "", model.BranchOptions{})
	require.NoError(t, err)
	_, err = c.CreateVersion(ctx, "doc", "feature", "b\n", model.VersionMeta{})
	require.NoError(t, err)
	_, err = c.CreateVersion(ctx, "doc", "", "c\n", model.VersionMeta{})
	require.NoError(t, err)

	res, err := c.MergeBranches(ctx, "doc", "feature", model.MainBranch, model.MergeOptions{Strategy: model.StrategyManual})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrMergeConflict))
	require.NotNil(t, res)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "b\n", res.Conflicts[0].Source)
	assert.Equal(t, "c\n", res.Conflicts[0].Target)

	res, err = c.MergeBranches(ctx, "doc", "feature", model.MainBranch, model.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "c\n", res.Version.Content)
	assert.Len(t, res.Conflicts, 1)
}

func TestHealthService(t *testing.T) {
	h := setupTestServer(t)
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestCodeOf(t *testing.T) {
	cases := map[apperr.Kind]codes.Code{
		apperr.KindVersionNotFound:    codes.NotFound,
		apperr.KindTagAlreadyExists:   codes.AlreadyExists,
		apperr.KindValidation:         codes.InvalidArgument,
		apperr.KindMergeConflict:      codes.Aborted,
		apperr.KindNothingToMerge:     codes.FailedPrecondition,
		apperr.KindStorageUnavailable: codes.Unavailable,
		apperr.KindBranchProtected:    codes.PermissionDenied,
		apperr.KindInternal:           codes.Internal,
		apperr.Kind("SOMETHING_ELSE"): codes.Unknown,
	}
	for kind, want := range cases {
		assert.Equal(t, want, CodeOf(kind), kind)
	}
}

func TestObservabilityEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordOperation("get_version", "ok", 0)
	log := logger.NewLogger(logger.Config{Output: io.Discard})

	ready := true
	obs := NewObservabilityServer("127.0.0.1:0", reg, func(context.Context) error {
		if !ready {
			return apperr.New(apperr.KindStorageUnavailable, "closed")
		}
		return nil
	}, log)
	ts := httptest.NewServer(obs.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "docvcs")

	code, _ = get("/ready")
	assert.Equal(t, http.StatusOK, code)
	ready = false
	code, body = get("/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "closed")

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, `docvcs_operations_total{operation="get_version",status="ok"} 1`))
}
