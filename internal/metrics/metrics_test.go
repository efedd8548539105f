package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/docvcs/pkg/engine"
	"github.com/nainya/docvcs/pkg/model"
)

var _ engine.Recorder = (*Metrics)(nil)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordOperation("create_version", "ok", time.Millisecond)
	m.RecordOperation("create_version", "ok", time.Millisecond)
	m.RecordOperation("create_version", "BRANCH_NOT_FOUND", time.Millisecond)
	m.RecordVersionCreated(model.KindMerge)
	m.RecordMerge(model.StrategyManual, "MERGE_CONFLICT", 3)
	m.RecordMerge(model.StrategyAuto, "merged", 1)
	m.SetDocuments(4)
	m.RecordDocumentCreated()
	m.RecordGrpcRequest("/docvcs.v1.VersionControl/GetVersion", "OK", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("create_version", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("create_version", "BRANCH_NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VersionsCreated.WithLabelValues("merge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("manual", "MERGE_CONFLICT")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MergeConflicts))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.DocumentsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GrpcRequestsTotal.WithLabelValues("/docvcs.v1.VersionControl/GetVersion", "OK")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "docvcs_server_uptime_seconds")
	assert.Contains(t, names, "docvcs_operation_duration_seconds")
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
