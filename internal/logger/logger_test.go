package logger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestLevelFilteringAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "warn", Output: &buf})

	l.Info().Msg("hidden")
	l.WithDocument("doc1").Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"service":"docvcs"`)
	assert.Contains(t, out, `"document_id":"doc1"`)
}

func TestLogGrpcRequest(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "debug", Output: &buf})

	l.LogGrpcRequest("/docvcs.v1.VersionControl/GetVersion", "OK", time.Millisecond, nil)
	l.LogGrpcRequest("/docvcs.v1.VersionControl/GetVersion", "NotFound", time.Millisecond, errors.New("missing"))
	l.LogGrpcRequest("/docvcs.v1.VersionControl/GetVersion", "Internal", time.Millisecond, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"code":"NotFound"`)
	assert.Contains(t, out, `"component":"grpc"`)
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	l := InitGlobalLogger(Config{Output: &buf})
	assert.Same(t, l, GetGlobalLogger())
	l.DbLogger("sqlite").Info().Msg("opened")
	l.LogOperation("verify", "doc1", time.Millisecond, errors.New("broken"))
	assert.Contains(t, buf.String(), `"driver":"sqlite"`)
	assert.Contains(t, buf.String(), `"op":"verify"`)
}
