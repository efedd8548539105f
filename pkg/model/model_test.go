package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/diff"
)

func rootChangeset() Changeset {
	now := time.Now().UTC()
	v1 := &Version{ID: "v1", DocumentID: "doc1", Number: 1, Branch: MainBranch, Kind: KindRoot, Snapshot: true, Content: "Hello", CreatedAt: now}
	return Changeset{
		DocumentID: "doc1",
		Document:   &Document{ID: "doc1", DefaultBranch: MainBranch, CreatedAt: now},
		Versions:   []*Version{v1},
		Branches:   []*Branch{{Name: MainBranch, DocumentID: "doc1", Head: "v1", CreatedFrom: "v1", CreatedAt: now, UpdatedAt: now}},
	}
}

func TestSnapshotApplyIsCopyOnWrite(t *testing.T) {
	cs := rootChangeset()
	require.NoError(t, cs.Check(nil))
	s1 := (*Snapshot)(nil).Apply(cs)

	delta := diff.Diff("Hello", "Hello World")
	v2 := &Version{ID: "v2", DocumentID: "doc1", Number: 2, Parents: []string{"v1"}, Branch: MainBranch, Delta: &delta, DeltaBase: "v1"}
	next := Changeset{
		DocumentID: "doc1",
		BaseNumber: 1,
		Versions:   []*Version{v2},
		Branches:   []*Branch{{Name: MainBranch, DocumentID: "doc1", Head: "v2", CreatedFrom: "v1"}},
	}
	require.NoError(t, next.Check(s1))
	s2 := s1.Apply(next)

	head, ok := s1.Head(MainBranch)
	require.True(t, ok)
	assert.Equal(t, "v1", head.ID)
	assert.Equal(t, int64(1), s1.LatestNumber())

	head, ok = s2.Head(MainBranch)
	require.True(t, ok)
	assert.Equal(t, "v2", head.ID)
	assert.Equal(t, int64(2), s2.LatestNumber())

	v, ok := s2.VersionByNumber(2)
	require.True(t, ok)
	assert.Equal(t, "v2", v.ID)
	_, ok = s2.VersionByNumber(3)
	assert.False(t, ok)
}

func TestChangesetCheck(t *testing.T) {
	s := (*Snapshot)(nil).Apply(rootChangeset())

	tests := []struct {
		name string
		cs   Changeset
		want error
	}{
		{"document exists", rootChangeset(), apperr.ErrDocumentAlreadyExists},
		{"missing document", Changeset{DocumentID: "other", Tags: []*Tag{{Name: "x"}}}, nil},
		{"stale base", Changeset{DocumentID: "doc1", BaseNumber: 0}, apperr.ErrStorageUnavailable},
		{"unknown parent", Changeset{DocumentID: "doc1", BaseNumber: 1, Versions: []*Version{
			{ID: "v2", DocumentID: "doc1", Number: 2, Parents: []string{"nope"}, Snapshot: true},
		}}, apperr.ErrVersionNotFound},
		{"gap in numbers", Changeset{DocumentID: "doc1", BaseNumber: 1, Versions: []*Version{
			{ID: "v3", DocumentID: "doc1", Number: 3, Parents: []string{"v1"}, Snapshot: true},
		}}, apperr.ErrInternal},
		{"dangling head", Changeset{DocumentID: "doc1", BaseNumber: 1, Branches: []*Branch{{Name: "b", Head: "zz"}}}, apperr.ErrVersionNotFound},
		{"delete unknown branch", Changeset{DocumentID: "doc1", BaseNumber: 1, DeleteBranches: []string{"b"}}, apperr.ErrBranchNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			current := s
			if tc.cs.DocumentID != "doc1" {
				current = nil
			}
			err := tc.cs.Check(current)
			if tc.want == nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperr.ErrDocumentNotFound))
				return
			}
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestSortedBranchesDefaultFirst(t *testing.T) {
	s := NewSnapshot(&Document{ID: "d", DefaultBranch: MainBranch}, nil, []*Branch{
		{Name: "zeta"}, {Name: "alpha"}, {Name: MainBranch}, {Name: "beta"},
	}, nil)

	var names []string
	for _, b := range s.SortedBranches() {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"main", "alpha", "beta", "zeta"}, names)
}

func TestNameValidation(t *testing.T) {
	for _, name := range []string{"feature", "fix_1", "release-2", "A"} {
		assert.NoError(t, ValidateBranchName(name), name)
	}
	for _, name := range []string{"", "has space", "dot.ted", "slash/name", strings.Repeat("a", 101)} {
		err := ValidateBranchName(name)
		assert.True(t, errors.Is(err, apperr.ErrInvalidBranchName), name)
	}

	assert.NoError(t, ValidateTagName("v1.0"))
	assert.NoError(t, ValidateTagName("release_2.1-rc"))
	assert.True(t, errors.Is(ValidateTagName("v 1"), apperr.ErrInvalidTagName))
	assert.True(t, errors.Is(ValidateTagName(""), apperr.ErrInvalidTagName))
}

func TestOptionValidation(t *testing.T) {
	assert.NoError(t, MergeOptions{}.Validate())
	assert.NoError(t, MergeOptions{Strategy: StrategyManual}.Validate())
	assert.True(t, errors.Is(MergeOptions{Strategy: "ours"}.Validate(), apperr.ErrValidation))

	assert.NoError(t, TagOptions{Type: TagRelease}.Validate())
	assert.True(t, errors.Is(TagOptions{Type: "golden"}.Validate(), apperr.ErrValidation))
	assert.Equal(t, TagManual, TagOptions{}.TypeOrDefault())

	assert.True(t, errors.Is(RevertOptions{Branch: "bad name"}.Validate(), apperr.ErrValidation))

	now := time.Now()
	assert.True(t, errors.Is(HistoryOptions{Since: now, Until: now.Add(-time.Hour)}.Validate(), apperr.ErrValidation))
	assert.True(t, errors.Is(HistoryOptions{Offset: -1}.Validate(), apperr.ErrValidation))

	assert.Equal(t, DefaultHistoryLimit, HistoryOptions{}.EffectiveLimit())
	assert.Equal(t, MaxHistoryLimit, HistoryOptions{Limit: 10000}.EffectiveLimit())
	assert.Equal(t, 7, HistoryOptions{Limit: 7}.EffectiveLimit())
}
