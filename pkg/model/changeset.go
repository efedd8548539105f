package model

import (
	"github.com/nainya/docvcs/pkg/apperr"
)

// Changeset is the atomic unit of write for one document.
type Changeset struct {
	DocumentID string
	// BaseNumber is the latest version number the changeset was built
	// against. A repository rejects the changeset if history moved on.
	BaseNumber int64
	// Document is set only when the changeset creates the document.
	Document       *Document
	Versions       []*Version
	Branches       []*Branch
	DeleteBranches []string
	Tags           []*Tag
}

// Empty reports whether the changeset writes nothing.
func (cs Changeset) Empty() bool {
	return cs.Document == nil && len(cs.Versions) == 0 && len(cs.Branches) == 0 &&
		len(cs.DeleteBranches) == 0 && len(cs.Tags) == 0
}

// Check verifies cs against the current snapshot (nil when the document does
// not exist yet). Repositories call it inside their write critical section.
func (cs Changeset) Check(current *Snapshot) error {
	if cs.DocumentID == "" {
		return apperr.New(apperr.KindValidation, "changeset has no document id")
	}
	if cs.Document != nil {
		if current != nil {
			return apperr.New(apperr.KindDocumentAlreadyExists, "document %q already exists", cs.DocumentID)
		}
		if cs.Document.ID != cs.DocumentID {
			return apperr.New(apperr.KindValidation, "document id %q does not match changeset %q", cs.Document.ID, cs.DocumentID)
		}
	} else if current == nil {
		return apperr.New(apperr.KindDocumentNotFound, "document %q not found", cs.DocumentID)
	}

	var latest int64
	known := make(map[string]bool)
	if current != nil {
		latest = current.LatestNumber()
		for _, v := range current.Versions {
			known[v.ID] = true
		}
	}
	if cs.BaseNumber != latest {
		return apperr.New(apperr.KindStorageUnavailable,
			"document %q moved from version %d to %d", cs.DocumentID, cs.BaseNumber, latest)
	}

	next := latest + 1
	for _, v := range cs.Versions {
		if v.DocumentID != cs.DocumentID {
			return apperr.New(apperr.KindValidation, "version %s belongs to %q", v.ID, v.DocumentID)
		}
		if v.Number != next {
			return apperr.New(apperr.KindInternal, "version %s has number %d, expected %d", v.ID, v.Number, next)
		}
		if known[v.ID] {
			return apperr.New(apperr.KindInternal, "version id %s reused", v.ID)
		}
		if len(v.Parents) == 0 && next != 1 {
			return apperr.New(apperr.KindInternal, "version %d has no parents", v.Number)
		}
		for _, p := range v.Parents {
			if !known[p] {
				return apperr.New(apperr.KindVersionNotFound, "parent %s of version %d not found", p, v.Number)
			}
		}
		if !v.Snapshot && (v.Delta == nil || !known[v.DeltaBase]) {
			return apperr.New(apperr.KindInternal, "version %d has no usable delta base", v.Number)
		}
		known[v.ID] = true
		next++
	}

	for _, name := range cs.DeleteBranches {
		if current == nil {
			break
		}
		if _, ok := current.Branch(name); !ok {
			return apperr.New(apperr.KindBranchNotFound, "branch %q not found", name)
		}
	}
	for _, b := range cs.Branches {
		if !known[b.Head] {
			return apperr.New(apperr.KindVersionNotFound, "branch %q head %s not found", b.Name, b.Head)
		}
	}
	for _, t := range cs.Tags {
		if current != nil {
			if _, ok := current.Tag(t.Name); ok {
				return apperr.New(apperr.KindTagAlreadyExists, "tag %q already exists", t.Name)
			}
		}
		if !known[t.VersionID] {
			return apperr.New(apperr.KindVersionNotFound, "tag %q target %s not found", t.Name, t.VersionID)
		}
	}
	return nil
}
