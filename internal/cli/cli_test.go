package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/history"
	"github.com/nainya/docvcs/pkg/model"
)

type runner struct {
	t  *testing.T
	db string
}

func newRunner(t *testing.T) *runner {
	return &runner{t: t, db: filepath.Join(t.TempDir(), "cli.db")}
}

// run executes one CLI invocation against the runner's database.
func (r *runner) run(stdin string, args ...string) (string, error) {
	r.t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(append(args, "--db", r.db, "--author", "alice", "--log-level", "error"))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (r *runner) mustRun(args ...string) string {
	r.t.Helper()
	out, err := r.run("", args...)
	require.NoError(r.t, err, strings.Join(args, " "))
	return out
}

func TestWorkflow(t *testing.T) {
	r := newRunner(t)

	out := r.mustRun("init", "handbook", "--content", "a\nb\n", "-m", "start")
	assert.Contains(t, out, "version 1 ")

	_, err := r.run("a\nB\n", "commit", "handbook", "--file", "-", "-m", "edit")
	require.NoError(t, err)

	r.mustRun("branch", "create", "handbook", "draft", "--from", "#1")
	r.mustRun("commit", "handbook", "-b", "draft", "--content", "A\nb\n")

	out = r.mustRun("merge", "handbook", "draft")
	assert.Contains(t, out, "merged draft into main as version 4")

	assert.Equal(t, "A\nB\n", r.mustRun("show", "handbook"))
	assert.Equal(t, "a\nb\n", r.mustRun("show", "handbook", "#1"))

	out = r.mustRun("diff", "handbook", "#1", "main")
	assert.Contains(t, out, "-a\n")
	assert.Contains(t, out, "+A\n")

	out = r.mustRun("tag", "create", "handbook", "v1", "main", "--type", "release")
	assert.Contains(t, out, "tag v1 (release) at version 4")
	out = r.mustRun("tag", "list", "handbook", "--type", "release")
	assert.Contains(t, out, "v1")

	out = r.mustRun("log", "handbook", "--json")
	var page history.Page
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, int64(4), page.Items[0].Number)
	assert.Len(t, page.Items[0].Parents, 2)

	out = r.mustRun("log", "handbook", "-b", "draft")
	assert.Contains(t, out, "version 3 ")
	assert.NotContains(t, out, "version 2 ")

	_, err = r.run("", "revert", "handbook", "v2")
	assert.True(t, errors.Is(err, apperr.ErrVersionNotFound))
}

func TestRevertStatsVerify(t *testing.T) {
	r := newRunner(t)
	r.mustRun("init", "doc", "--content", "one\n")
	r.mustRun("commit", "doc", "--content", "two\n")

	out := r.mustRun("revert", "doc", "#1")
	assert.Contains(t, out, "version 3 ")
	assert.Equal(t, "one\n", r.mustRun("show", "doc"))

	out = r.mustRun("stats", "doc", "--json")
	var stats model.DocumentStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.TotalVersions)
	assert.Equal(t, 1, stats.RevertCount)
	assert.Equal(t, []string{"alice"}, stats.Contributors)

	assert.Equal(t, "doc: ok\n", r.mustRun("verify", "doc"))

	out = r.mustRun("docs")
	assert.Contains(t, out, "doc")
	assert.Contains(t, out, model.MainBranch)
}

func TestBranchCommands(t *testing.T) {
	r := newRunner(t)
	r.mustRun("init", "doc", "--content", "x\n")
	r.mustRun("branch", "create", "doc", "feature")
	r.mustRun("branch", "rename", "doc", "feature", "topic")
	out := r.mustRun("branch", "protect", "doc", "topic")
	assert.Contains(t, out, "(protected)")

	_, err := r.run("", "commit", "doc", "-b", "topic", "--content", "y\n")
	assert.True(t, errors.Is(err, apperr.ErrBranchProtected))
	r.mustRun("commit", "doc", "-b", "topic", "--content", "y\n", "--override-protection")

	_, err = r.run("", "branch", "delete", "doc", "topic")
	assert.True(t, errors.Is(err, apperr.ErrBranchProtected))
	r.mustRun("branch", "protect", "doc", "topic", "--off")
	r.mustRun("branch", "delete", "doc", "topic")

	out = r.mustRun("branch", "list", "doc")
	assert.Contains(t, out, model.MainBranch)
	assert.NotContains(t, out, "topic")
}

func TestManualMergePrintsConflicts(t *testing.T) {
	r := newRunner(t)
	r.mustRun("init", "doc", "--content", "a\n")
	r.mustRun("branch", "create", "doc", "f")
	r.mustRun("commit", "doc", "-b", "f", "--content", "b\n")
	r.mustRun("commit", "doc", "--content", "c\n")

	out, err := r.run("", "merge", "doc", "f", "--strategy", "manual")
	assert.True(t, errors.Is(err, apperr.ErrMergeConflict))
	assert.Contains(t, out, "<<<<<<< source")
	assert.Contains(t, out, "b\n=======\nc\n>>>>>>> target")

	assert.Equal(t, "c\n", r.mustRun("show", "doc"))
}

func TestErrors(t *testing.T) {
	r := newRunner(t)
	_, err := r.run("", "commit", "ghost", "--content", "x")
	assert.True(t, errors.Is(err, apperr.ErrDocumentNotFound))

	_, err = r.run("", "commit", "ghost")
	assert.EqualError(t, err, "one of --content or --file is required")

	_, err = r.run("", "log", "ghost", "--since", "not a date at all")
	assert.Error(t, err)

	_, err = r.run("", "init", "doc", "--content", "x", "--storage", "postgres")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2024-03-01")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local).Equal(got), got)

	got, err = parseDate("  ")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
