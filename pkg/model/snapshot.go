package model

import (
	"context"
	"sort"
)

// Snapshot is an immutable, consistent view of one document: the document
// record, its versions ordered by number, its branch table and tag table.
// Callers must not modify anything reachable from a Snapshot.
type Snapshot struct {
	Document *Document
	Versions []*Version
	Branches map[string]*Branch
	Tags     map[string]*Tag

	byID map[string]*Version
}

// NewSnapshot indexes the given state. versions must be ordered by number.
func NewSnapshot(doc *Document, versions []*Version, branches []*Branch, tags []*Tag) *Snapshot {
	s := &Snapshot{
		Document: doc,
		Versions: versions,
		Branches: make(map[string]*Branch, len(branches)),
		Tags:     make(map[string]*Tag, len(tags)),
		byID:     make(map[string]*Version, len(versions)),
	}
	for _, v := range versions {
		s.byID[v.ID] = v
	}
	for _, b := range branches {
		s.Branches[b.Name] = b
	}
	for _, t := range tags {
		s.Tags[t.Name] = t
	}
	return s
}

// Version looks up a version by id.
func (s *Snapshot) Version(id string) (*Version, bool) {
	v, ok := s.byID[id]
	return v, ok
}

// VersionByNumber looks up a version by its document-wide number.
func (s *Snapshot) VersionByNumber(n int64) (*Version, bool) {
	if n < 1 || n > int64(len(s.Versions)) {
		return nil, false
	}
	v := s.Versions[n-1]
	return v, v.Number == n
}

// Branch looks up a branch by name.
func (s *Snapshot) Branch(name string) (*Branch, bool) {
	b, ok := s.Branches[name]
	return b, ok
}

// Tag looks up a tag by name.
func (s *Snapshot) Tag(name string) (*Tag, bool) {
	t, ok := s.Tags[name]
	return t, ok
}

// Head returns the version a branch points to.
func (s *Snapshot) Head(branch string) (*Version, bool) {
	b, ok := s.Branches[branch]
	if !ok {
		return nil, false
	}
	return s.Version(b.Head)
}

// LatestNumber returns the highest version number, or 0 for an empty history.
func (s *Snapshot) LatestNumber() int64 {
	if len(s.Versions) == 0 {
		return 0
	}
	return s.Versions[len(s.Versions)-1].Number
}

// SortedBranches returns branches with the default branch first, then by name.
func (s *Snapshot) SortedBranches() []*Branch {
	out := make([]*Branch, 0, len(s.Branches))
	for _, b := range s.Branches {
		out = append(out, b)
	}
	def := MainBranch
	if s.Document != nil && s.Document.DefaultBranch != "" {
		def = s.Document.DefaultBranch
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Name == def) != (out[j].Name == def) {
			return out[i].Name == def
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SortedTags returns tags ordered by creation time, then name.
func (s *Snapshot) SortedTags() []*Tag {
	out := make([]*Tag, 0, len(s.Tags))
	for _, t := range s.Tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Apply returns a new snapshot with cs applied. s is left untouched.
// The changeset must already have been checked with Check.
func (s *Snapshot) Apply(cs Changeset) *Snapshot {
	doc := cs.Document
	if s != nil && doc == nil {
		doc = s.Document
	}

	var versions []*Version
	branches := make([]*Branch, 0, len(cs.Branches)+4)
	var tags []*Tag
	if s != nil {
		versions = make([]*Version, len(s.Versions), len(s.Versions)+len(cs.Versions))
		copy(versions, s.Versions)
		deleted := make(map[string]bool, len(cs.DeleteBranches))
		for _, name := range cs.DeleteBranches {
			deleted[name] = true
		}
		upserted := make(map[string]bool, len(cs.Branches))
		for _, b := range cs.Branches {
			upserted[b.Name] = true
		}
		for name, b := range s.Branches {
			if !deleted[name] && !upserted[name] {
				branches = append(branches, b)
			}
		}
		for _, t := range s.Tags {
			tags = append(tags, t)
		}
	}
	versions = append(versions, cs.Versions...)
	branches = append(branches, cs.Branches...)
	tags = append(tags, cs.Tags...)

	return NewSnapshot(doc, versions, branches, tags)
}

// Repository persists one durable unit per document.
type Repository interface {
	// Load returns the current snapshot of a document, or a
	// DocumentNotFound error.
	Load(ctx context.Context, documentID string) (*Snapshot, error)
	// Apply commits a changeset atomically.
	Apply(ctx context.Context, cs Changeset) error
	// Documents lists all documents ordered by id.
	Documents(ctx context.Context) ([]*Document, error)
	Close() error
}
