// Package tag keeps permanent, immutable names for versions.
package tag

import (
	"context"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/version"
)

// Registry creates and looks up tags. There is no update or delete.
type Registry struct {
	versions *version.VersionStore
}

// NewRegistry creates a tag registry on top of a version store.
func NewRegistry(vs *version.VersionStore) *Registry {
	return &Registry{versions: vs}
}

// CreateTag names versionID. Names are unique per document.
func (r *Registry) CreateTag(ctx context.Context, documentID, versionID, name string, opts model.TagOptions) (*model.Tag, error) {
	if err := model.ValidateTagName(name); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	snap, err := r.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Tag(name); ok {
		return nil, apperr.New(apperr.KindTagAlreadyExists, "tag %q already exists in %q", name, documentID)
	}
	if _, ok := snap.Version(versionID); !ok {
		return nil, apperr.New(apperr.KindVersionNotFound, "version %s not found in %q", versionID, documentID)
	}

	t := &model.Tag{
		Name:       name,
		DocumentID: documentID,
		VersionID:  versionID,
		Type:       opts.TypeOrDefault(),
		Message:    opts.Message,
		CreatedBy:  opts.CreatedBy,
		CreatedAt:  r.versions.Now(),
	}
	err = r.versions.Apply(ctx, model.Changeset{
		DocumentID: documentID,
		BaseNumber: snap.LatestNumber(),
		Tags:       []*model.Tag{t},
	})
	if err != nil {
		return nil, err
	}
	out := *t
	return &out, nil
}

// GetTag returns one tag.
func (r *Registry) GetTag(ctx context.Context, documentID, name string) (*model.Tag, error) {
	snap, err := r.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	t, ok := snap.Tag(name)
	if !ok {
		return nil, apperr.New(apperr.KindTagNotFound, "tag %q not found in %q", name, documentID)
	}
	out := *t
	return &out, nil
}

// ListTags returns tags in creation order. A non-empty tagType filters.
func (r *Registry) ListTags(ctx context.Context, documentID string, tagType model.TagType) ([]*model.Tag, error) {
	snap, err := r.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := []*model.Tag{}
	for _, t := range snap.SortedTags() {
		if tagType != "" && t.Type != tagType {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	return out, nil
}
