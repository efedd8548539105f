// Package branch manages named, movable pointers into a document's version
// graph.
package branch

import (
	"context"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/version"
)

// Manager creates and maintains branches.
type Manager struct {
	versions *version.VersionStore
}

// NewManager creates a branch manager on top of a version store.
func NewManager(vs *version.VersionStore) *Manager {
	return &Manager{versions: vs}
}

// CreateBranch forks a new branch at fromVersionID. An empty fromVersionID
// forks at the head of the document's default branch. No version is created.
func (m *Manager) CreateBranch(ctx context.Context, documentID, name, fromVersionID string, opts model.BranchOptions) (*model.Branch, error) {
	if err := model.ValidateBranchName(name); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	snap, err := m.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Branch(name); ok {
		return nil, apperr.New(apperr.KindBranchAlreadyExists, "branch %q already exists in %q", name, documentID)
	}
	if fromVersionID == "" {
		head, ok := snap.Head(snap.Document.DefaultBranch)
		if !ok {
			return nil, apperr.New(apperr.KindInternal, "default branch of %q has no head", documentID)
		}
		fromVersionID = head.ID
	}
	if _, ok := snap.Version(fromVersionID); !ok {
		return nil, apperr.New(apperr.KindVersionNotFound, "version %s not found in %q", fromVersionID, documentID)
	}

	now := m.versions.Now()
	b := &model.Branch{
		Name:        name,
		DocumentID:  documentID,
		Head:        fromVersionID,
		CreatedFrom: fromVersionID,
		Protected:   opts.Protected,
		CreatedBy:   opts.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = m.versions.Apply(ctx, model.Changeset{
		DocumentID: documentID,
		BaseNumber: snap.LatestNumber(),
		Branches:   []*model.Branch{b},
	})
	if err != nil {
		return nil, err
	}
	out := *b
	return &out, nil
}

// GetBranch returns one branch.
func (m *Manager) GetBranch(ctx context.Context, documentID, name string) (*model.Branch, error) {
	snap, err := m.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return lookup(snap, name)
}

// ListBranches returns the default branch first, then the rest by name.
func (m *Manager) ListBranches(ctx context.Context, documentID string) ([]*model.Branch, error) {
	snap, err := m.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	branches := snap.SortedBranches()
	out := make([]*model.Branch, len(branches))
	for i, b := range branches {
		c := *b
		out[i] = &c
	}
	return out, nil
}

// DeleteBranch removes a branch pointer. Versions are never deleted.
func (m *Manager) DeleteBranch(ctx context.Context, documentID, name string) error {
	snap, err := m.versions.Snapshot(ctx, documentID)
	if err != nil {
		return err
	}
	b, err := lookup(snap, name)
	if err != nil {
		return err
	}
	if err := checkMutable(snap, b, "delete"); err != nil {
		return err
	}
	return m.versions.Apply(ctx, model.Changeset{
		DocumentID:     documentID,
		BaseNumber:     snap.LatestNumber(),
		DeleteBranches: []string{name},
	})
}

// RenameBranch moves a branch to a new name, keeping its head and history.
func (m *Manager) RenameBranch(ctx context.Context, documentID, from, to string) (*model.Branch, error) {
	if err := model.ValidateBranchName(to); err != nil {
		return nil, err
	}
	snap, err := m.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	b, err := lookup(snap, from)
	if err != nil {
		return nil, err
	}
	if err := checkMutable(snap, b, "rename"); err != nil {
		return nil, err
	}
	if _, ok := snap.Branch(to); ok {
		return nil, apperr.New(apperr.KindBranchAlreadyExists, "branch %q already exists in %q", to, documentID)
	}

	renamed := *b
	renamed.Name = to
	renamed.UpdatedAt = m.versions.Now()
	err = m.versions.Apply(ctx, model.Changeset{
		DocumentID:     documentID,
		BaseNumber:     snap.LatestNumber(),
		DeleteBranches: []string{from},
		Branches:       []*model.Branch{&renamed},
	})
	if err != nil {
		return nil, err
	}
	return &renamed, nil
}

// SetProtection toggles the protected flag of a branch.
func (m *Manager) SetProtection(ctx context.Context, documentID, name string, protected bool) (*model.Branch, error) {
	snap, err := m.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	b, err := lookup(snap, name)
	if err != nil {
		return nil, err
	}
	updated := *b
	if updated.Protected == protected {
		return &updated, nil
	}
	updated.Protected = protected
	updated.UpdatedAt = m.versions.Now()
	err = m.versions.Apply(ctx, model.Changeset{
		DocumentID: documentID,
		BaseNumber: snap.LatestNumber(),
		Branches:   []*model.Branch{&updated},
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func lookup(snap *model.Snapshot, name string) (*model.Branch, error) {
	b, ok := snap.Branch(name)
	if !ok {
		return nil, apperr.New(apperr.KindBranchNotFound, "branch %q not found in %q", name, snap.Document.ID)
	}
	c := *b
	return &c, nil
}

func checkMutable(snap *model.Snapshot, b *model.Branch, action string) error {
	if b.Name == model.MainBranch || b.Name == snap.Document.DefaultBranch {
		return apperr.New(apperr.KindValidation, "cannot %s default branch %q", action, b.Name)
	}
	if b.Protected {
		return apperr.New(apperr.KindBranchProtected, "cannot %s protected branch %q", action, b.Name)
	}
	return nil
}
