// ABOUTME: Version store implementation with delta-encoded history
// ABOUTME: Appends immutable versions and advances branch heads atomically

package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/model"
)

// VersionStore manages the versions of every document in a repository.
type VersionStore struct {
	repo  model.Repository
	opts  Options
	cache *lru.Cache[string, string] // "doc/version" -> materialized content
}

// NewVersionStore creates a version store over repo.
func NewVersionStore(repo model.Repository, opts Options) *VersionStore {
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = DefaultSnapshotInterval
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Granularity == "" {
		opts.Granularity = diff.UnitLine
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		panic(fmt.Sprintf("version: content cache: %v", err))
	}
	return &VersionStore{repo: repo, opts: opts, cache: cache}
}

// Granularity returns the diff unit used for new versions.
func (vs *VersionStore) Granularity() diff.Unit {
	return vs.opts.Granularity
}

// Now returns the store clock's current time.
func (vs *VersionStore) Now() time.Time {
	return vs.opts.Clock()
}

// Snapshot loads a consistent view of a document.
func (vs *VersionStore) Snapshot(ctx context.Context, documentID string) (*model.Snapshot, error) {
	if err := model.ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	return vs.repo.Load(ctx, documentID)
}

// Documents lists every stored document.
func (vs *VersionStore) Documents(ctx context.Context) ([]*model.Document, error) {
	return vs.repo.Documents(ctx)
}

// Apply commits a changeset built by another component.
func (vs *VersionStore) Apply(ctx context.Context, cs model.Changeset) error {
	return vs.repo.Apply(ctx, cs)
}

// InitializeDocument creates a document with its root version and main branch.
func (vs *VersionStore) InitializeDocument(ctx context.Context, documentID, content string, opts model.InitOptions) (*model.Version, error) {
	if err := model.ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	_, err := vs.repo.Load(ctx, documentID)
	switch {
	case err == nil:
		return nil, apperr.New(apperr.KindDocumentAlreadyExists, "document %q already exists", documentID)
	case !errors.Is(err, apperr.ErrDocumentNotFound):
		return nil, err
	}

	now := vs.opts.Clock()
	message := opts.Message
	if message == "" {
		message = "Initial version"
	}
	root := &model.Version{
		ID:          vs.opts.NewID(),
		DocumentID:  documentID,
		Number:      1,
		Parents:     []string{},
		Branch:      model.MainBranch,
		Kind:        model.KindRoot,
		Snapshot:    true,
		Content:     content,
		Author:      opts.Author,
		AuthorID:    opts.AuthorID,
		Message:     message,
		Changes:     diff.DiffUnits(vs.opts.Granularity, "", content).Stats(),
		ContentHash: Hash(content),
		CreatedAt:   now,
	}
	cs := model.Changeset{
		DocumentID: documentID,
		Document: &model.Document{
			ID:            documentID,
			DefaultBranch: model.MainBranch,
			CreatedBy:     firstNonEmpty(opts.Author, opts.AuthorID),
			CreatedAt:     now,
		},
		Versions: []*model.Version{root},
		Branches: []*model.Branch{{
			Name:        model.MainBranch,
			DocumentID:  documentID,
			Head:        root.ID,
			CreatedFrom: root.ID,
			CreatedBy:   firstNonEmpty(opts.Author, opts.AuthorID),
			CreatedAt:   now,
			UpdatedAt:   now,
		}},
	}
	if err := vs.repo.Apply(ctx, cs); err != nil {
		return nil, err
	}
	vs.cache.Add(cacheKey(documentID, root.ID), content)
	return root.Clone(), nil
}

// CreateVersion appends content on top of a branch head.
func (vs *VersionStore) CreateVersion(ctx context.Context, documentID, branch, content string, meta model.VersionMeta) (*model.Version, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	snap, err := vs.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = snap.Document.DefaultBranch
	}
	b, ok := snap.Branch(branch)
	if !ok {
		return nil, apperr.New(apperr.KindBranchNotFound, "branch %q not found in %q", branch, documentID)
	}
	if b.Protected && !meta.OverrideProtection {
		return nil, apperr.New(apperr.KindBranchProtected, "branch %q is protected", branch)
	}
	return vs.Append(ctx, snap, Draft{
		Branch:   branch,
		Content:  content,
		Parents:  []string{b.Head},
		Kind:     model.KindCommit,
		Author:   meta.Author,
		AuthorID: meta.AuthorID,
		Message:  meta.Message,
	})
}

// Append stores d as the next version of the document and advances d.Branch
// to it. The delta is computed against the branch's current head.
func (vs *VersionStore) Append(ctx context.Context, snap *model.Snapshot, d Draft) (*model.Version, error) {
	b, ok := snap.Branch(d.Branch)
	if !ok {
		return nil, apperr.New(apperr.KindBranchNotFound, "branch %q not found in %q", d.Branch, snap.Document.ID)
	}
	base, ok := snap.Version(b.Head)
	if !ok {
		return nil, apperr.New(apperr.KindInternal, "head %s of branch %q is missing", b.Head, d.Branch)
	}
	baseContent, err := vs.Content(snap, base)
	if err != nil {
		return nil, err
	}

	script := diff.DiffUnits(vs.opts.Granularity, baseContent, d.Content)
	now := vs.opts.Clock()
	v := &model.Version{
		ID:          vs.opts.NewID(),
		DocumentID:  snap.Document.ID,
		Number:      snap.LatestNumber() + 1,
		Parents:     append([]string(nil), d.Parents...),
		Branch:      d.Branch,
		Kind:        d.Kind,
		RevertOf:    d.RevertOf,
		Author:      d.Author,
		AuthorID:    d.AuthorID,
		Message:     d.Message,
		Changes:     script.Stats(),
		ContentHash: Hash(d.Content),
		CreatedAt:   now,
	}
	if vs.chainLength(snap, base)+1 >= vs.opts.SnapshotInterval {
		v.Snapshot = true
		v.Content = d.Content
	} else {
		v.Delta = &script
		v.DeltaBase = base.ID
	}

	updated := *b
	updated.Head = v.ID
	updated.UpdatedAt = now

	cs := model.Changeset{
		DocumentID: snap.Document.ID,
		BaseNumber: snap.LatestNumber(),
		Versions:   []*model.Version{v},
		Branches:   []*model.Branch{&updated},
	}
	if err := vs.repo.Apply(ctx, cs); err != nil {
		return nil, err
	}
	vs.cache.Add(cacheKey(v.DocumentID, v.ID), d.Content)

	out := v.Clone()
	out.Content = d.Content
	return out, nil
}

// GetVersion returns a version with its content materialized.
func (vs *VersionStore) GetVersion(ctx context.Context, documentID, versionID string) (*model.Version, error) {
	snap, err := vs.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	v, ok := snap.Version(versionID)
	if !ok {
		return nil, apperr.New(apperr.KindVersionNotFound, "version %s not found in %q", versionID, documentID)
	}
	return vs.Materialize(snap, v)
}

// Materialize returns a copy of v with Content filled in.
func (vs *VersionStore) Materialize(snap *model.Snapshot, v *model.Version) (*model.Version, error) {
	content, err := vs.Content(snap, v)
	if err != nil {
		return nil, err
	}
	out := v.Clone()
	out.Content = content
	return out, nil
}

// GetDocumentStats summarizes a document's history.
func (vs *VersionStore) GetDocumentStats(ctx context.Context, documentID string) (*model.DocumentStats, error) {
	snap, err := vs.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	stats := &model.DocumentStats{
		DocumentID:    documentID,
		TotalVersions: len(snap.Versions),
		BranchCount:   len(snap.Branches),
		TagCount:      len(snap.Tags),
		Contributors:  []string{},
	}
	seen := make(map[string]bool)
	for _, v := range snap.Versions {
		if who := firstNonEmpty(v.Author, v.AuthorID); who != "" && !seen[who] {
			seen[who] = true
			stats.Contributors = append(stats.Contributors, who)
		}
		switch v.Kind {
		case model.KindMerge:
			stats.MergeCount++
		case model.KindRevert:
			stats.RevertCount++
		}
		if v.CreatedAt.After(stats.LastModifiedAt) {
			stats.LastModifiedAt = v.CreatedAt
		}
	}
	sort.Strings(stats.Contributors)
	return stats, nil
}

// chainLength counts delta hops from v back to the nearest full snapshot.
func (vs *VersionStore) chainLength(snap *model.Snapshot, v *model.Version) int {
	n := 0
	for !v.Snapshot {
		next, ok := snap.Version(v.DeltaBase)
		if !ok {
			break
		}
		v = next
		n++
	}
	return n
}

// Hash returns the hex sha256 of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func cacheKey(documentID, versionID string) string {
	return documentID + "/" + versionID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
