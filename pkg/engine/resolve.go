package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/model"
)

// Resolve turns a reference into a version. A reference is "#N" for version
// number N, a branch name, a tag name, or a version id, tried in that order.
func (e *Engine) Resolve(ctx context.Context, documentID, ref string) (*model.Version, error) {
	return read(e, "resolve", documentID, func() (*model.Version, error) {
		snap, err := e.versions.Snapshot(ctx, documentID)
		if err != nil {
			return nil, err
		}
		v, ok := resolve(snap, ref)
		if !ok {
			return nil, apperr.New(apperr.KindVersionNotFound, "reference %q not found in %q", ref, documentID)
		}
		return e.versions.Materialize(snap, v)
	})
}

func resolve(snap *model.Snapshot, ref string) (*model.Version, bool) {
	if n, ok := strings.CutPrefix(ref, "#"); ok {
		num, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, false
		}
		return snap.VersionByNumber(num)
	}
	if v, ok := snap.Head(ref); ok {
		return v, true
	}
	if t, ok := snap.Tag(ref); ok {
		return snap.Version(t.VersionID)
	}
	return snap.Version(ref)
}

var parentCounts = map[model.VersionKind]int{
	model.KindRoot:   0,
	model.KindCommit: 1,
	model.KindRevert: 1,
	model.KindMerge:  2,
}

// VerifyDocument checks the stored history of a document: gap-free numbering,
// parent links, branch heads, tag targets, delta replay and content hashes.
// All problems found are returned together.
func (e *Engine) VerifyDocument(ctx context.Context, documentID string) error {
	_, err := read(e, "verify_document", documentID, func() (struct{}, error) {
		snap, err := e.versions.Snapshot(ctx, documentID)
		if err != nil {
			return struct{}{}, err
		}
		if problems := e.verify(snap); problems != nil {
			return struct{}{}, apperr.Wrap(apperr.KindInternal, problems, "document %q failed verification", documentID)
		}
		return struct{}{}, nil
	})
	return err
}

func (e *Engine) verify(snap *model.Snapshot) error {
	var result *multierror.Error
	position := make(map[string]int64, len(snap.Versions))

	for i, v := range snap.Versions {
		if v.Number != int64(i+1) {
			result = multierror.Append(result, fmt.Errorf("version %s has number %d at position %d", v.ID, v.Number, i+1))
		}
		if n, ok := parentCounts[v.Kind]; !ok || len(v.Parents) != n {
			result = multierror.Append(result, fmt.Errorf("version %d of kind %q has %d parents", v.Number, v.Kind, len(v.Parents)))
		}
		for _, p := range v.Parents {
			if num, ok := position[p]; !ok || num >= v.Number {
				result = multierror.Append(result, fmt.Errorf("version %d has unknown or later parent %s", v.Number, p))
			}
		}
		position[v.ID] = v.Number

		content, err := e.versions.Uncached(snap, v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("version %d: %w", v.Number, err))
			continue
		}
		if !v.Snapshot && v.Delta != nil {
			base, ok := snap.Version(v.DeltaBase)
			if !ok {
				continue
			}
			baseContent, err := e.versions.Uncached(snap, base)
			if err != nil {
				continue
			}
			if got, err := diff.Patch(baseContent, *v.Delta); err != nil || got != content {
				result = multierror.Append(result, fmt.Errorf("version %d delta does not replay from %s", v.Number, v.DeltaBase))
			}
		}
	}

	for _, b := range snap.SortedBranches() {
		if _, ok := snap.Version(b.Head); !ok {
			result = multierror.Append(result, fmt.Errorf("branch %q head %s is missing", b.Name, b.Head))
		}
	}
	for _, t := range snap.SortedTags() {
		if _, ok := snap.Version(t.VersionID); !ok {
			result = multierror.Append(result, fmt.Errorf("tag %q target %s is missing", t.Name, t.VersionID))
		}
	}
	if _, ok := snap.Branch(snap.Document.DefaultBranch); !ok {
		result = multierror.Append(result, fmt.Errorf("default branch %q is missing", snap.Document.DefaultBranch))
	}
	return result.ErrorOrNil()
}
