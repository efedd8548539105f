package version

import (
	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/model"
)

// Content materializes the content of v by replaying deltas from the nearest
// cached or snapshot ancestor in its delta chain. Every reconstructed content
// is checked against the stored hash.
func (vs *VersionStore) Content(snap *model.Snapshot, v *model.Version) (string, error) {
	return vs.replay(snap, v, true)
}

// ContentByID materializes a version looked up by id.
func (vs *VersionStore) ContentByID(snap *model.Snapshot, versionID string) (string, error) {
	v, ok := snap.Version(versionID)
	if !ok {
		return "", apperr.New(apperr.KindVersionNotFound, "version %s not found", versionID)
	}
	return vs.Content(snap, v)
}

// Uncached materializes v from storage alone, bypassing the content cache.
func (vs *VersionStore) Uncached(snap *model.Snapshot, v *model.Version) (string, error) {
	return vs.replay(snap, v, false)
}

func (vs *VersionStore) replay(snap *model.Snapshot, v *model.Version, cached bool) (string, error) {
	docID := snap.Document.ID

	var chain []*model.Version
	var content string
	for cur := v; ; {
		if cached {
			if c, ok := vs.cache.Get(cacheKey(docID, cur.ID)); ok {
				content = c
				break
			}
		}
		if cur.Snapshot {
			if err := verify(cur, cur.Content); err != nil {
				return "", err
			}
			content = cur.Content
			if cached {
				vs.cache.Add(cacheKey(docID, cur.ID), content)
			}
			break
		}
		if cur.Delta == nil {
			return "", apperr.New(apperr.KindInternal, "version %d has neither content nor delta", cur.Number)
		}
		chain = append(chain, cur)
		next, ok := snap.Version(cur.DeltaBase)
		if !ok {
			return "", apperr.New(apperr.KindInternal, "delta base %s of version %d is missing", cur.DeltaBase, cur.Number)
		}
		cur = next
	}

	for i := len(chain) - 1; i >= 0; i-- {
		step := chain[i]
		next, err := diff.Patch(content, *step.Delta)
		if err != nil {
			return "", apperr.Wrap(apperr.KindInternal, err, "replay version %d", step.Number)
		}
		if err := verify(step, next); err != nil {
			return "", err
		}
		if cached {
			vs.cache.Add(cacheKey(docID, step.ID), next)
		}
		content = next
	}
	return content, nil
}

func verify(v *model.Version, content string) error {
	if v.ContentHash != "" && Hash(content) != v.ContentHash {
		return apperr.New(apperr.KindInternal, "content hash mismatch for version %d", v.Number)
	}
	return nil
}
