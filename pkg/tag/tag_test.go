package tag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/storage/memstore"
	"github.com/nainya/docvcs/pkg/version"
)

func setup(t *testing.T) (*version.VersionStore, *Registry, *model.Version) {
	t.Helper()
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	vs := version.NewVersionStore(memstore.New(), version.Options{
		Clock: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
	})
	root, err := vs.InitializeDocument(context.Background(), "doc1", "Hello", model.InitOptions{})
	require.NoError(t, err)
	return vs, NewRegistry(vs), root
}

func TestTagKeepsResolvingAfterHeadMoves(t *testing.T) {
	vs, r, _ := setup(t)
	ctx := context.Background()
	v2, err := vs.CreateVersion(ctx, "doc1", model.MainBranch, "Hello World", model.VersionMeta{})
	require.NoError(t, err)

	tg, err := r.CreateTag(ctx, "doc1", v2.ID, "v1.0", model.TagOptions{Type: model.TagRelease, Message: "first"})
	require.NoError(t, err)
	assert.Equal(t, model.TagRelease, tg.Type)

	for _, c := range []string{"five", "six", "seven"} {
		_, err := vs.CreateVersion(ctx, "doc1", model.MainBranch, c, model.VersionMeta{})
		require.NoError(t, err)
	}

	got, err := r.GetTag(ctx, "doc1", "v1.0")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, got.VersionID)

	v, err := vs.GetVersion(ctx, "doc1", got.VersionID)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", v.Content)
}

func TestCreateTagErrors(t *testing.T) {
	_, r, root := setup(t)
	ctx := context.Background()
	_, err := r.CreateTag(ctx, "doc1", root.ID, "v1.0", model.TagOptions{})
	require.NoError(t, err)

	tests := []struct {
		name, version, tag string
		opts               model.TagOptions
		want               error
	}{
		{"duplicate", root.ID, "v1.0", model.TagOptions{}, apperr.ErrTagAlreadyExists},
		{"bad name", root.ID, "v 1", model.TagOptions{}, apperr.ErrInvalidTagName},
		{"unknown version", "missing", "v2", model.TagOptions{}, apperr.ErrVersionNotFound},
		{"bad type", root.ID, "v3", model.TagOptions{Type: "gold"}, apperr.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.CreateTag(ctx, "doc1", tc.version, tc.tag, tc.opts)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	_, err = r.GetTag(ctx, "doc1", "nope")
	assert.True(t, errors.Is(err, apperr.ErrTagNotFound))
}

func TestListTagsOrderAndFilter(t *testing.T) {
	_, r, root := setup(t)
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		typ  model.TagType
	}{
		{"b-release", model.TagRelease},
		{"a-backup", model.TagBackup},
		{"c-release", model.TagRelease},
		{"untyped", ""},
	} {
		_, err := r.CreateTag(ctx, "doc1", root.ID, tc.name, model.TagOptions{Type: tc.typ})
		require.NoError(t, err)
	}

	all, err := r.ListTags(ctx, "doc1", "")
	require.NoError(t, err)
	var names []string
	for _, tg := range all {
		names = append(names, tg.Name)
	}
	assert.Equal(t, []string{"b-release", "a-backup", "c-release", "untyped"}, names)
	assert.Equal(t, model.TagManual, all[3].Type)

	releases, err := r.ListTags(ctx, "doc1", model.TagRelease)
	require.NoError(t, err)
	require.Len(t, releases, 2)
	assert.Equal(t, "b-release", releases[0].Name)
	assert.Equal(t, "c-release", releases[1].Name)
}
