package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/branch"
	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/storage/memstore"
	"github.com/nainya/docvcs/pkg/version"
)

func graph(parents map[int64][]string) *model.Snapshot {
	var versions []*model.Version
	for n := int64(1); n <= int64(len(parents)); n++ {
		versions = append(versions, &model.Version{ID: id(n), Number: n, Parents: parents[n]})
	}
	return model.NewSnapshot(&model.Document{ID: "d"}, versions, nil, nil)
}

func id(n int64) string {
	return string(rune('a' + n - 1))
}

func TestLowestCommonAncestor(t *testing.T) {
	// 1 <- 2, 1 <- 3, criss-cross merges 4 = (2,3) and 5 = (3,2).
	snap := graph(map[int64][]string{
		1: nil,
		2: {"a"},
		3: {"a"},
		4: {"b", "c"},
		5: {"c", "b"},
	})

	tests := []struct {
		a, b, want string
	}{
		{"b", "c", "a"},
		{"d", "b", "b"},
		{"b", "d", "b"},
		{"d", "e", "c"}, // both 2 and 3 meet in the same round; the higher number wins
		{"a", "a", "a"},
	}
	for _, tc := range tests {
		got, ok := LowestCommonAncestor(snap, tc.a, tc.b)
		require.True(t, ok, "%s/%s", tc.a, tc.b)
		assert.Equal(t, tc.want, got, "%s/%s", tc.a, tc.b)
	}

	_, ok := LowestCommonAncestor(snap, "a", "zz")
	assert.False(t, ok)

	assert.True(t, IsAncestor(snap, "a", "e"))
	assert.True(t, IsAncestor(snap, "b", "d"))
	assert.False(t, IsAncestor(snap, "d", "e"))

	// Merges 3 = (2,1) and 5 = (4,1) link straight back to the root, so both
	// searches reach 1 first while 2 sits one layer deeper.
	shortcut := graph(map[int64][]string{
		1: nil,
		2: {"a"},
		3: {"b", "a"},
		4: {"b"},
		5: {"d", "a"},
	})
	got, ok := LowestCommonAncestor(shortcut, "e", "c")
	require.True(t, ok)
	assert.Equal(t, "b", got)
}

func TestThreeWay(t *testing.T) {
	tests := []struct {
		name                 string
		unit                 diff.Unit
		base, source, target string
		want                 string
		conflicts            int
	}{
		{"disjoint lines", diff.UnitLine, "a\nb\nc\n", "A\nb\nc\n", "a\nb\nC\n", "A\nb\nC\n", 0},
		{"same edit both sides", diff.UnitLine, "a\nb\nc\n", "a\nZ\nc\n", "a\nZ\nc\n", "a\nZ\nc\n", 0},
		{"overlap takes target", diff.UnitLine, "a\nb\nc\n", "a\nX\nc\n", "a\nY\nc\n", "a\nY\nc\n", 1},
		{"same anchor insertions", diff.UnitLine, "a\n", "a\ns\n", "a\nt\n", "a\nt\n", 1},
		{"insert inside replaced range", diff.UnitLine, "a\nb\nc\nd\n", "a\nb\nnew\nc\nd\n", "a\nB\nC\nd\n", "a\nB\nC\nd\n", 1},
		{"source only", diff.UnitLine, "a\n", "a\nb\n", "a\n", "a\nb\n", 0},
		{"words on one line", diff.UnitWord, "the quick brown fox", "the slow brown fox", "the quick brown cat", "the slow brown cat", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, conflicts := ThreeWay(tc.unit, tc.base, tc.source, tc.target)
			assert.Equal(t, tc.want, got)
			assert.Len(t, conflicts, tc.conflicts)
			for _, c := range conflicts {
				assert.Equal(t, SideTarget, c.Resolution)
			}
		})
	}
}

func TestConflictReport(t *testing.T) {
	_, conflicts := ThreeWay(diff.UnitLine, "a\nb\nc\n", "a\nX\nc\n", "a\nY\nc\n")
	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{
		BaseStart: 1, BaseEnd: 2, Base: "b\n", Source: "X\n", Target: "Y\n", Resolution: SideTarget,
	}, conflicts[0])
}

type fixture struct {
	vs       *version.VersionStore
	branches *branch.Manager
	r        *Resolver
}

func newFixture(t *testing.T, base string) *fixture {
	t.Helper()
	vs := version.NewVersionStore(memstore.New(), version.Options{})
	_, err := vs.InitializeDocument(context.Background(), "doc1", base, model.InitOptions{})
	require.NoError(t, err)
	return &fixture{vs: vs, branches: branch.NewManager(vs), r: NewResolver(vs)}
}

func (f *fixture) commit(t *testing.T, branchName, content string) *model.Version {
	t.Helper()
	v, err := f.vs.CreateVersion(context.Background(), "doc1", branchName, content, model.VersionMeta{})
	require.NoError(t, err)
	return v
}

func (f *fixture) fork(t *testing.T, name string) {
	t.Helper()
	_, err := f.branches.CreateBranch(context.Background(), "doc1", name, "", model.BranchOptions{})
	require.NoError(t, err)
}

func TestMergeFeatureIntoMain(t *testing.T) {
	f := newFixture(t, "Hello")
	ctx := context.Background()
	v2 := f.commit(t, model.MainBranch, "Hello World")
	f.fork(t, "feature")
	v3 := f.commit(t, "feature", "Hello World!!")

	res, err := f.r.MergeBranches(ctx, "doc1", "feature", model.MainBranch, model.MergeOptions{Strategy: model.StrategyAuto})
	require.NoError(t, err)
	require.NotNil(t, res.Version)
	assert.Equal(t, int64(4), res.Version.Number)
	assert.ElementsMatch(t, []string{v2.ID, v3.ID}, res.Version.Parents)
	assert.Equal(t, "Hello World!!", res.Version.Content)
	assert.Equal(t, model.KindMerge, res.Version.Kind)
	assert.Equal(t, v2.ID, res.Base)
	assert.Empty(t, res.Conflicts)

	snap, err := f.vs.Snapshot(ctx, "doc1")
	require.NoError(t, err)
	mainHead, _ := snap.Head(model.MainBranch)
	featureHead, _ := snap.Head("feature")
	assert.Equal(t, res.Version.ID, mainHead.ID)
	assert.Equal(t, v3.ID, featureHead.ID, "source head must not move")
}

func TestMergeDivergedBranches(t *testing.T) {
	f := newFixture(t, "title\nbody\nfooter\n")
	ctx := context.Background()
	f.fork(t, "feature")
	f.commit(t, "feature", "TITLE\nbody\nfooter\n")
	f.commit(t, model.MainBranch, "title\nbody\nFOOTER\n")

	res, err := f.r.MergeBranches(ctx, "doc1", "feature", model.MainBranch, model.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "TITLE\nbody\nFOOTER\n", res.Version.Content)
	assert.Equal(t, model.StrategyAuto, res.Strategy)
	assert.Equal(t, "Merge branch 'feature' into 'main'", res.Version.Message)
}

func TestMergeConflictStrategies(t *testing.T) {
	f := newFixture(t, "a\nb\nc\n")
	ctx := context.Background()
	f.fork(t, "feature")
	f.commit(t, "feature", "a\nfeature\nc\n")
	mainHead := f.commit(t, model.MainBranch, "a\nmain\nc\n")

	res, err := f.r.MergeBranches(ctx, "doc1", "feature", model.MainBranch, model.MergeOptions{Strategy: model.StrategyManual})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrMergeConflict))
	require.NotNil(t, res)
	assert.Nil(t, res.Version)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "feature\n", res.Conflicts[0].Source)

	snap, err := f.vs.Snapshot(ctx, "doc1")
	require.NoError(t, err)
	head, _ := snap.Head(model.MainBranch)
	assert.Equal(t, mainHead.ID, head.ID, "manual conflict must not create a version")

	res, err = f.r.MergeBranches(ctx, "doc1", "feature", model.MainBranch, model.MergeOptions{Strategy: model.StrategyAuto})
	require.NoError(t, err)
	assert.Equal(t, "a\nmain\nc\n", res.Version.Content)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, SideTarget, res.Conflicts[0].Resolution)
}

func TestMergeErrors(t *testing.T) {
	f := newFixture(t, "a\n")
	ctx := context.Background()
	f.fork(t, "feature")

	_, err := f.r.MergeBranches(ctx, "doc1", "feature", model.MainBranch, model.MergeOptions{})
	assert.True(t, errors.Is(err, apperr.ErrNothingToMerge), "identical heads")

	f.commit(t, model.MainBranch, "a\nb\n")
	_, err = f.r.MergeBranches(ctx, "doc1", "feature", model.MainBranch, model.MergeOptions{})
	assert.True(t, errors.Is(err, apperr.ErrNothingToMerge), "source is an ancestor of target")

	_, err = f.r.MergeBranches(ctx, "doc1", "ghost", model.MainBranch, model.MergeOptions{})
	assert.True(t, errors.Is(err, apperr.ErrBranchNotFound))

	_, err = f.r.MergeBranches(ctx, "doc1", model.MainBranch, model.MainBranch, model.MergeOptions{})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.r.MergeBranches(ctx, "doc1", model.MainBranch, "feature", model.MergeOptions{Strategy: "ours"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestMergeIntoProtectedBranchIsAllowed(t *testing.T) {
	f := newFixture(t, "a\n")
	ctx := context.Background()
	f.fork(t, "feature")
	f.commit(t, "feature", "a\nb\n")
	_, err := f.branches.SetProtection(ctx, "doc1", model.MainBranch, true)
	require.NoError(t, err)

	res, err := f.r.MergeBranches(ctx, "doc1", "feature", model.MainBranch, model.MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", res.Version.Content)
}
