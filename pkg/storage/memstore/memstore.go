// Package memstore is an in-memory model.Repository. Each document is held as
// an immutable snapshot that is swapped atomically on every write, so readers
// never block writers.
package memstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/model"
)

// Store implements model.Repository in memory.
type Store struct {
	docs   sync.Map // document id -> *atomic.Pointer[model.Snapshot]
	closed atomic.Bool
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

var _ model.Repository = (*Store)(nil)

func (s *Store) slot(id string) *atomic.Pointer[model.Snapshot] {
	p, _ := s.docs.LoadOrStore(id, new(atomic.Pointer[model.Snapshot]))
	return p.(*atomic.Pointer[model.Snapshot])
}

func (s *Store) Load(ctx context.Context, documentID string) (*model.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	p, ok := s.docs.Load(documentID)
	if !ok {
		return nil, apperr.New(apperr.KindDocumentNotFound, "document %q not found", documentID)
	}
	snap := p.(*atomic.Pointer[model.Snapshot]).Load()
	if snap == nil {
		return nil, apperr.New(apperr.KindDocumentNotFound, "document %q not found", documentID)
	}
	return snap, nil
}

func (s *Store) Apply(ctx context.Context, cs model.Changeset) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	p := s.slot(cs.DocumentID)
	for {
		current := p.Load()
		if err := cs.Check(current); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return apperr.Wrap(apperr.KindStorageUnavailable, err, "apply to %q", cs.DocumentID)
		}
		if p.CompareAndSwap(current, current.Apply(cs)) {
			return nil
		}
	}
}

func (s *Store) Documents(ctx context.Context) ([]*model.Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var docs []*model.Document
	s.docs.Range(func(_, value any) bool {
		if snap := value.(*atomic.Pointer[model.Snapshot]).Load(); snap != nil {
			docs = append(docs, snap.Document)
		}
		return true
	})
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Close marks the store closed. Later calls fail with StorageUnavailable.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if s.closed.Load() {
		return apperr.New(apperr.KindStorageUnavailable, "memory store is closed")
	}
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, err, "memory store")
	}
	return nil
}
