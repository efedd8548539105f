// Package engine is the entry point of the version control engine. It wires
// the version store, branches, merges, tags and history over one repository
// and serializes writes per document.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/branch"
	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/history"
	"github.com/nainya/docvcs/pkg/merge"
	"github.com/nainya/docvcs/pkg/model"
	"github.com/nainya/docvcs/pkg/tag"
	"github.com/nainya/docvcs/pkg/version"
)

// DefaultLockTimeout bounds the wait for a document's write lock.
const DefaultLockTimeout = 10 * time.Second

// Recorder receives operation outcomes. internal/metrics implements it.
type Recorder interface {
	RecordOperation(op, status string, d time.Duration)
	RecordVersionCreated(kind model.VersionKind)
	RecordMerge(strategy model.MergeStrategy, outcome string, conflicts int)
	RecordDocumentCreated()
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string, time.Duration) {}
func (nopRecorder) RecordVersionCreated(model.VersionKind)        {}
func (nopRecorder) RecordMerge(model.MergeStrategy, string, int)  {}
func (nopRecorder) RecordDocumentCreated()                        {}

// Options configures an Engine.
type Options struct {
	SnapshotInterval int
	CacheSize        int
	Granularity      diff.Unit
	LockTimeout      time.Duration
	Logger           *zerolog.Logger
	Recorder         Recorder
	Clock            func() time.Time
}

// Engine exposes every document operation.
type Engine struct {
	versions *version.VersionStore
	branches *branch.Manager
	merges   *merge.Resolver
	tags     *tag.Registry
	history  *history.Query

	mu          sync.Mutex
	locks       map[string]*docLock // held or awaited locks only
	lockTimeout time.Duration
	log         zerolog.Logger
	rec         Recorder
}

// New creates an engine over repo. The caller owns repo and closes it.
func New(repo model.Repository, opts Options) *Engine {
	vs := version.NewVersionStore(repo, version.Options{
		SnapshotInterval: opts.SnapshotInterval,
		CacheSize:        opts.CacheSize,
		Granularity:      opts.Granularity,
		Clock:            opts.Clock,
	})
	e := &Engine{
		versions:    vs,
		branches:    branch.NewManager(vs),
		merges:      merge.NewResolver(vs),
		tags:        tag.NewRegistry(vs),
		history:     history.NewQuery(vs),
		locks:       make(map[string]*docLock),
		lockTimeout: opts.LockTimeout,
		log:         zerolog.Nop(),
		rec:         opts.Recorder,
	}
	if e.lockTimeout <= 0 {
		e.lockTimeout = DefaultLockTimeout
	}
	if opts.Logger != nil {
		e.log = opts.Logger.With().Str("component", "engine").Logger()
	}
	if e.rec == nil {
		e.rec = nopRecorder{}
	}
	return e
}

// docLock serializes writers of one document. refs counts the holder and
// every waiter; the entry is dropped when it reaches zero.
type docLock struct {
	sem  *semaphore.Weighted
	refs int
}

// lock acquires the write lock of one document.
func (e *Engine) lock(ctx context.Context, documentID string) (func(), error) {
	if err := model.ValidateDocumentID(documentID); err != nil {
		return nil, err
	}

	e.mu.Lock()
	l, ok := e.locks[documentID]
	if !ok {
		l = &docLock{sem: semaphore.NewWeighted(1)}
		e.locks[documentID] = l
	}
	l.refs++
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		e.unref(documentID, l)
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, err, "lock document %q", documentID)
	}
	return func() {
		l.sem.Release(1)
		e.unref(documentID, l)
	}, nil
}

func (e *Engine) unref(documentID string, l *docLock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(e.locks, documentID)
	}
}

// write runs fn under the document's write lock.
func write[T any](ctx context.Context, e *Engine, op, documentID string, fn func() (T, error)) (T, error) {
	start := time.Now()
	var out T
	release, err := e.lock(ctx, documentID)
	if err == nil {
		out, err = fn()
		release()
	}
	e.observe(op, documentID, start, err, true)
	return out, err
}

// read runs fn without locking; fn reads one snapshot.
func read[T any](e *Engine, op, documentID string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	e.observe(op, documentID, start, err, false)
	return out, err
}

func (e *Engine) observe(op, documentID string, start time.Time, err error, mutation bool) {
	d := time.Since(start)
	status := "ok"
	if err != nil {
		status = string(apperr.KindOf(err))
	}
	e.rec.RecordOperation(op, status, d)

	switch kind := apperr.KindOf(err); {
	case err == nil:
		if mutation {
			e.log.Debug().Str("op", op).Str("document_id", documentID).Dur("duration", d).Msg("operation completed")
		}
	case kind == apperr.KindInternal || kind == apperr.KindStorageUnavailable:
		e.log.Error().Err(err).Str("op", op).Str("document_id", documentID).Dur("duration", d).Msg("operation failed")
	default:
		e.log.Warn().Err(err).Str("op", op).Str("document_id", documentID).Str("kind", string(kind)).Msg("operation rejected")
	}
}

// InitializeDocument creates a document, its root version and main branch.
func (e *Engine) InitializeDocument(ctx context.Context, documentID, content string, opts model.InitOptions) (*model.Version, error) {
	v, err := write(ctx, e, "initialize_document", documentID, func() (*model.Version, error) {
		return e.versions.InitializeDocument(ctx, documentID, content, opts)
	})
	if err == nil {
		e.rec.RecordDocumentCreated()
		e.rec.RecordVersionCreated(v.Kind)
	}
	return v, err
}

// CreateVersion appends content to a branch. An empty branch means the
// document's default branch.
func (e *Engine) CreateVersion(ctx context.Context, documentID, branchName, content string, meta model.VersionMeta) (*model.Version, error) {
	v, err := write(ctx, e, "create_version", documentID, func() (*model.Version, error) {
		return e.versions.CreateVersion(ctx, documentID, branchName, content, meta)
	})
	if err == nil {
		e.rec.RecordVersionCreated(v.Kind)
	}
	return v, err
}

// GetVersion returns a version with materialized content.
func (e *Engine) GetVersion(ctx context.Context, documentID, versionID string) (*model.Version, error) {
	return read(e, "get_version", documentID, func() (*model.Version, error) {
		return e.versions.GetVersion(ctx, documentID, versionID)
	})
}

// GetDocumentStats summarizes a document.
func (e *Engine) GetDocumentStats(ctx context.Context, documentID string) (*model.DocumentStats, error) {
	return read(e, "get_document_stats", documentID, func() (*model.DocumentStats, error) {
		return e.versions.GetDocumentStats(ctx, documentID)
	})
}

// ListDocuments lists every document in the repository.
func (e *Engine) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	return read(e, "list_documents", "", func() ([]*model.Document, error) {
		return e.versions.Documents(ctx)
	})
}

// CreateBranch forks a branch at a version.
func (e *Engine) CreateBranch(ctx context.Context, documentID, name, fromVersionID string, opts model.BranchOptions) (*model.Branch, error) {
	return write(ctx, e, "create_branch", documentID, func() (*model.Branch, error) {
		return e.branches.CreateBranch(ctx, documentID, name, fromVersionID, opts)
	})
}

// GetBranch returns one branch.
func (e *Engine) GetBranch(ctx context.Context, documentID, name string) (*model.Branch, error) {
	return read(e, "get_branch", documentID, func() (*model.Branch, error) {
		return e.branches.GetBranch(ctx, documentID, name)
	})
}

// ListBranches returns the default branch first, then the rest by name.
func (e *Engine) ListBranches(ctx context.Context, documentID string) ([]*model.Branch, error) {
	return read(e, "list_branches", documentID, func() ([]*model.Branch, error) {
		return e.branches.ListBranches(ctx, documentID)
	})
}

// DeleteBranch removes a branch pointer.
func (e *Engine) DeleteBranch(ctx context.Context, documentID, name string) error {
	_, err := write(ctx, e, "delete_branch", documentID, func() (struct{}, error) {
		return struct{}{}, e.branches.DeleteBranch(ctx, documentID, name)
	})
	return err
}

// RenameBranch renames a branch.
func (e *Engine) RenameBranch(ctx context.Context, documentID, from, to string) (*model.Branch, error) {
	return write(ctx, e, "rename_branch", documentID, func() (*model.Branch, error) {
		return e.branches.RenameBranch(ctx, documentID, from, to)
	})
}

// SetProtection toggles branch protection.
func (e *Engine) SetProtection(ctx context.Context, documentID, name string, protected bool) (*model.Branch, error) {
	return write(ctx, e, "set_protection", documentID, func() (*model.Branch, error) {
		return e.branches.SetProtection(ctx, documentID, name, protected)
	})
}

// MergeBranches merges source into target. See merge.Resolver.
func (e *Engine) MergeBranches(ctx context.Context, documentID, source, target string, opts model.MergeOptions) (*merge.Result, error) {
	res, err := write(ctx, e, "merge_branches", documentID, func() (*merge.Result, error) {
		return e.merges.MergeBranches(ctx, documentID, source, target, opts)
	})
	outcome := "merged"
	conflicts := 0
	if res != nil {
		conflicts = len(res.Conflicts)
	}
	if err != nil {
		outcome = string(apperr.KindOf(err))
	} else {
		e.rec.RecordVersionCreated(res.Version.Kind)
	}
	e.rec.RecordMerge(opts.StrategyOrDefault(), outcome, conflicts)
	return res, err
}

// CreateTag names a version permanently.
func (e *Engine) CreateTag(ctx context.Context, documentID, versionID, name string, opts model.TagOptions) (*model.Tag, error) {
	return write(ctx, e, "create_tag", documentID, func() (*model.Tag, error) {
		return e.tags.CreateTag(ctx, documentID, versionID, name, opts)
	})
}

// GetTag returns one tag.
func (e *Engine) GetTag(ctx context.Context, documentID, name string) (*model.Tag, error) {
	return read(e, "get_tag", documentID, func() (*model.Tag, error) {
		return e.tags.GetTag(ctx, documentID, name)
	})
}

// ListTags lists tags, optionally of one type.
func (e *Engine) ListTags(ctx context.Context, documentID string, tagType model.TagType) ([]*model.Tag, error) {
	return read(e, "list_tags", documentID, func() ([]*model.Tag, error) {
		return e.tags.ListTags(ctx, documentID, tagType)
	})
}

// GetVersionHistory returns one page of history, newest first.
func (e *Engine) GetVersionHistory(ctx context.Context, documentID string, opts model.HistoryOptions) (*history.Page, error) {
	return read(e, "get_version_history", documentID, func() (*history.Page, error) {
		return e.history.GetVersionHistory(ctx, documentID, opts)
	})
}

// CompareVersions diffs two versions.
func (e *Engine) CompareVersions(ctx context.Context, documentID, fromVersionID, toVersionID string) (*model.DiffResult, error) {
	return read(e, "compare_versions", documentID, func() (*model.DiffResult, error) {
		return e.history.CompareVersions(ctx, documentID, fromVersionID, toVersionID)
	})
}

// RevertToVersion appends a version restoring an earlier content.
func (e *Engine) RevertToVersion(ctx context.Context, documentID, targetVersionID string, opts model.RevertOptions) (*model.Version, error) {
	v, err := write(ctx, e, "revert_to_version", documentID, func() (*model.Version, error) {
		return e.history.RevertToVersion(ctx, documentID, targetVersionID, opts)
	})
	if err == nil {
		e.rec.RecordVersionCreated(v.Kind)
	}
	return v, err
}
