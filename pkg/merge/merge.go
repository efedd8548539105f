// Package merge combines two branch heads into a new version using a
// three-way merge against their lowest common ancestor.
package merge

import (
	"context"
	"fmt"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/version"
)

// Result describes a merge. Version is nil when a manual merge stopped on
// conflicts.
type Result struct {
	Version    *model.Version      `json:"version,omitempty"`
	Strategy   model.MergeStrategy `json:"strategy"`
	Base       string              `json:"base"`
	SourceHead string              `json:"source_head"`
	TargetHead string              `json:"target_head"`
	Conflicts  []Conflict          `json:"conflicts,omitempty"`
}

// Resolver merges branches of a document.
type Resolver struct {
	versions *version.VersionStore
}

// NewResolver creates a resolver on top of a version store.
func NewResolver(vs *version.VersionStore) *Resolver {
	return &Resolver{versions: vs}
}

// MergeBranches merges source into target. Under the manual strategy any
// conflicting region stops the merge: the result carries the conflicts and
// the error has kind MergeConflict. Under auto the target's text wins in
// every conflicting region and the conflicts are still reported.
func (r *Resolver) MergeBranches(ctx context.Context, documentID, source, target string, opts model.MergeOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if source == target {
		return nil, apperr.New(apperr.KindValidation, "cannot merge branch %q into itself", source)
	}
	snap, err := r.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	src, ok := snap.Branch(source)
	if !ok {
		return nil, apperr.New(apperr.KindBranchNotFound, "branch %q not found in %q", source, documentID)
	}
	tgt, ok := snap.Branch(target)
	if !ok {
		return nil, apperr.New(apperr.KindBranchNotFound, "branch %q not found in %q", target, documentID)
	}
	if src.Head == tgt.Head || IsAncestor(snap, src.Head, tgt.Head) {
		return nil, apperr.New(apperr.KindNothingToMerge, "%q is already contained in %q", source, target)
	}

	baseID, ok := LowestCommonAncestor(snap, src.Head, tgt.Head)
	if !ok {
		return nil, apperr.New(apperr.KindInternal, "no common ancestor for %q and %q", source, target)
	}
	baseContent, err := r.versions.ContentByID(snap, baseID)
	if err != nil {
		return nil, err
	}
	srcContent, err := r.versions.ContentByID(snap, src.Head)
	if err != nil {
		return nil, err
	}
	tgtContent, err := r.versions.ContentByID(snap, tgt.Head)
	if err != nil {
		return nil, err
	}

	merged, conflicts := ThreeWay(r.versions.Granularity(), baseContent, srcContent, tgtContent)
	res := &Result{
		Strategy:   opts.StrategyOrDefault(),
		Base:       baseID,
		SourceHead: src.Head,
		TargetHead: tgt.Head,
		Conflicts:  conflicts,
	}
	if res.Strategy == model.StrategyManual && len(conflicts) > 0 {
		for i := range res.Conflicts {
			res.Conflicts[i].Resolution = ""
		}
		return res, apperr.New(apperr.KindMergeConflict,
			"%d conflicting region(s) merging %q into %q", len(conflicts), source, target)
	}

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Merge branch '%s' into '%s'", source, target)
	}
	v, err := r.versions.Append(ctx, snap, version.Draft{
		Branch:   target,
		Content:  merged,
		Parents:  []string{src.Head, tgt.Head},
		Kind:     model.KindMerge,
		Author:   opts.Author,
		AuthorID: opts.AuthorID,
		Message:  message,
	})
	if err != nil {
		return nil, err
	}
	res.Version = v
	return res, nil
}
