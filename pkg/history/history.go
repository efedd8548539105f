// Package history answers read-side questions about a document: paginated
// history, version comparison, and reverting to an earlier version.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/version"
)

// Entry is one version in a history page.
type Entry struct {
	ID        string            `json:"id"`
	Number    int64             `json:"number"`
	Parents   []string          `json:"parents"`
	Branch    string            `json:"branch"`
	Kind      model.VersionKind `json:"kind"`
	RevertOf  string            `json:"revert_of,omitempty"`
	Author    string            `json:"author,omitempty"`
	AuthorID  string            `json:"author_id,omitempty"`
	Message   string            `json:"message,omitempty"`
	Changes   diff.Stats        `json:"changes"`
	CreatedAt time.Time         `json:"created_at"`
	Content   *string           `json:"content,omitempty"`
	Diff      *diff.Script      `json:"diff,omitempty"`
}

// Page is one slice of a history listing.
type Page struct {
	Items   []*Entry `json:"items"`
	Total   int      `json:"total"`
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
	HasMore bool     `json:"has_more"`
}

// Query serves history reads and reverts.
type Query struct {
	versions *version.VersionStore
}

// NewQuery creates a history query on top of a version store.
func NewQuery(vs *version.VersionStore) *Query {
	return &Query{versions: vs}
}

// GetVersionHistory lists versions newest first. With a branch, only versions
// reachable from the branch head through any parent are listed.
func (q *Query) GetVersionHistory(ctx context.Context, documentID string, opts model.HistoryOptions) (*Page, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	snap, err := q.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var reachable map[string]bool
	if opts.Branch != "" {
		head, ok := snap.Head(opts.Branch)
		if !ok {
			return nil, apperr.New(apperr.KindBranchNotFound, "branch %q not found in %q", opts.Branch, documentID)
		}
		reachable = ancestry(snap, head.ID)
	}

	var matched []*model.Version
	for i := len(snap.Versions) - 1; i >= 0; i-- {
		v := snap.Versions[i]
		if reachable != nil && !reachable[v.ID] {
			continue
		}
		if opts.Author != "" && v.Author != opts.Author && v.AuthorID != opts.Author {
			continue
		}
		if !opts.Since.IsZero() && v.CreatedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && v.CreatedAt.After(opts.Until) {
			continue
		}
		matched = append(matched, v)
	}

	limit := opts.EffectiveLimit()
	page := &Page{
		Items:  []*Entry{},
		Total:  len(matched),
		Offset: opts.Offset,
		Limit:  limit,
	}
	if opts.Offset >= len(matched) {
		return page, nil
	}
	end := min(opts.Offset+limit, len(matched))
	page.HasMore = end < len(matched)

	for _, v := range matched[opts.Offset:end] {
		e, err := q.entry(snap, v, opts)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, e)
	}
	return page, nil
}

func (q *Query) entry(snap *model.Snapshot, v *model.Version, opts model.HistoryOptions) (*Entry, error) {
	e := &Entry{
		ID:        v.ID,
		Number:    v.Number,
		Parents:   append([]string{}, v.Parents...),
		Branch:    v.Branch,
		Kind:      v.Kind,
		RevertOf:  v.RevertOf,
		Author:    v.Author,
		AuthorID:  v.AuthorID,
		Message:   v.Message,
		Changes:   v.Changes,
		CreatedAt: v.CreatedAt,
	}
	if !opts.IncludeContent && !opts.IncludeDiff {
		return e, nil
	}
	content, err := q.versions.Content(snap, v)
	if err != nil {
		return nil, err
	}
	if opts.IncludeContent {
		e.Content = &content
	}
	if opts.IncludeDiff {
		var parent string
		if !v.IsRoot() {
			parent, err = q.versions.ContentByID(snap, v.Parents[0])
			if err != nil {
				return nil, err
			}
		}
		script := diff.DiffUnits(q.versions.Granularity(), parent, content)
		e.Diff = &script
	}
	return e, nil
}

// CompareVersions diffs the contents of two versions regardless of ancestry.
// Comparing in the opposite direction yields the exact inverse script.
func (q *Query) CompareVersions(ctx context.Context, documentID, fromVersionID, toVersionID string) (*model.DiffResult, error) {
	snap, err := q.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	from, ok := snap.Version(fromVersionID)
	if !ok {
		return nil, apperr.New(apperr.KindVersionNotFound, "version %s not found in %q", fromVersionID, documentID)
	}
	to, ok := snap.Version(toVersionID)
	if !ok {
		return nil, apperr.New(apperr.KindVersionNotFound, "version %s not found in %q", toVersionID, documentID)
	}

	older, newer := from, to
	if older.Number > newer.Number {
		older, newer = newer, older
	}
	oldContent, err := q.versions.Content(snap, older)
	if err != nil {
		return nil, err
	}
	newContent, err := q.versions.Content(snap, newer)
	if err != nil {
		return nil, err
	}
	script := diff.DiffUnits(q.versions.Granularity(), oldContent, newContent)
	if older != from {
		script = script.Invert()
	}
	return &model.DiffResult{
		FromVersionID: fromVersionID,
		ToVersionID:   toVersionID,
		Script:        script,
		Stats:         script.Stats(),
	}, nil
}

// RevertToVersion appends a new version whose content equals the target's.
// The version is created even when the branch head already has that content.
func (q *Query) RevertToVersion(ctx context.Context, documentID, targetVersionID string, opts model.RevertOptions) (*model.Version, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	snap, err := q.versions.Snapshot(ctx, documentID)
	if err != nil {
		return nil, err
	}
	target, ok := snap.Version(targetVersionID)
	if !ok {
		return nil, apperr.New(apperr.KindVersionNotFound, "version %s not found in %q", targetVersionID, documentID)
	}
	branchName := opts.Branch
	if branchName == "" {
		branchName = snap.Document.DefaultBranch
	}
	b, ok := snap.Branch(branchName)
	if !ok {
		return nil, apperr.New(apperr.KindBranchNotFound, "branch %q not found in %q", branchName, documentID)
	}
	if b.Protected && !opts.OverrideProtection {
		return nil, apperr.New(apperr.KindBranchProtected, "branch %q is protected", branchName)
	}
	content, err := q.versions.Content(snap, target)
	if err != nil {
		return nil, err
	}

	message := opts.Message
	if message == "" {
		message = fmt.Sprintf("Revert to version %d (%s)", target.Number, target.ID)
	}
	return q.versions.Append(ctx, snap, version.Draft{
		Branch:   branchName,
		Content:  content,
		Parents:  []string{b.Head},
		Kind:     model.KindRevert,
		RevertOf: target.ID,
		Author:   opts.Author,
		AuthorID: opts.AuthorID,
		Message:  message,
	})
}

func ancestry(snap *model.Snapshot, head string) map[string]bool {
	seen := map[string]bool{head: true}
	queue := []string{head}
	for len(queue) > 0 {
		v, ok := snap.Version(queue[0])
		queue = queue[1:]
		if !ok {
			continue
		}
		for _, p := range v.Parents {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return seen
}
