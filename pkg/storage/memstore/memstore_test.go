package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/model"
)

func createDoc(id string) model.Changeset {
	now := time.Now().UTC()
	return model.Changeset{
		DocumentID: id,
		Document:   &model.Document{ID: id, DefaultBranch: model.MainBranch, CreatedAt: now},
		Versions: []*model.Version{{
			ID: id + "-v1", DocumentID: id, Number: 1, Branch: model.MainBranch,
			Kind: model.KindRoot, Snapshot: true, Content: "root", CreatedAt: now,
		}},
		Branches: []*model.Branch{{Name: model.MainBranch, DocumentID: id, Head: id + "-v1", CreatedFrom: id + "-v1"}},
	}
}

func TestLoadMissingDocument(t *testing.T) {
	s := New()
	_, err := s.Load(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperr.ErrDocumentNotFound))
}

func TestApplyAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Apply(ctx, createDoc("b")))
	require.NoError(t, s.Apply(ctx, createDoc("a")))

	err := s.Apply(ctx, createDoc("a"))
	assert.True(t, errors.Is(err, apperr.ErrDocumentAlreadyExists))

	snap, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.LatestNumber())
	head, ok := snap.Head(model.MainBranch)
	require.True(t, ok)
	assert.Equal(t, "a-v1", head.ID)

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Apply(ctx, createDoc("doc")))

	before, err := s.Load(ctx, "doc")
	require.NoError(t, err)

	require.NoError(t, s.Apply(ctx, model.Changeset{
		DocumentID: "doc",
		BaseNumber: 1,
		Branches:   []*model.Branch{{Name: "feature", DocumentID: "doc", Head: "doc-v1", CreatedFrom: "doc-v1"}},
	}))

	_, ok := before.Branch("feature")
	assert.False(t, ok, "old snapshot must not observe later writes")

	after, err := s.Load(ctx, "doc")
	require.NoError(t, err)
	_, ok = after.Branch("feature")
	assert.True(t, ok)
}

func TestConcurrentCreateOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Apply(ctx, createDoc("race"))
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrDocumentAlreadyExists))
	}
	assert.Equal(t, 1, wins)
}

func TestClosedStore(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	_, err := s.Load(context.Background(), "doc")
	assert.True(t, apperr.IsRetryable(err))
}
