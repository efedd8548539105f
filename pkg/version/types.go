// ABOUTME: Version store configuration and write drafts
// ABOUTME: Drafts describe a version before it is numbered and delta-encoded

package version

import (
	"time"

	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/model"
)

const (
	// DefaultSnapshotInterval is the longest delta chain before a full
	// snapshot is stored.
	DefaultSnapshotInterval = 32
	// DefaultCacheSize is the number of materialized contents kept in memory.
	DefaultCacheSize = 1024
)

// Options configures a VersionStore.
type Options struct {
	SnapshotInterval int
	CacheSize        int
	Granularity      diff.Unit
	// Clock returns the creation time of new records. Defaults to UTC now.
	Clock func() time.Time
	// NewID generates version ids. Defaults to random UUIDs.
	NewID func() string
}

// Draft is a version about to be appended to a branch.
type Draft struct {
	Branch   string
	Content  string
	Parents  []string
	Kind     model.VersionKind
	RevertOf string
	Author   string
	AuthorID string
	Message  string
}
