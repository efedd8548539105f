// ABOUTME: Core entities of the version control engine
// ABOUTME: Documents, versions, branches and tags as stored by a repository

package model

import (
	"time"

	"github.com/nainya/docvcs/pkg/diff"
)

// MainBranch is created with every document and can never be removed.
const MainBranch = "main"

// MaxNameLength bounds branch and tag names.
const MaxNameLength = 100

// Document is the container every version, branch and tag belongs to.
type Document struct {
	ID            string    `json:"id"`
	DefaultBranch string    `json:"default_branch"`
	CreatedBy     string    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// VersionKind records how a version came to be.
type VersionKind string

const (
	KindRoot   VersionKind = "root"
	KindCommit VersionKind = "commit"
	KindMerge  VersionKind = "merge"
	KindRevert VersionKind = "revert"
)

// Version is an immutable point in a document's history.
//
// Stored versions carry either full Content (Snapshot is true) or a Delta
// against DeltaBase. Versions returned to callers have Content materialized.
type Version struct {
	ID          string       `json:"id"`
	DocumentID  string       `json:"document_id"`
	Number      int64        `json:"number"`
	Parents     []string     `json:"parents"`
	Branch      string       `json:"branch"`
	Kind        VersionKind  `json:"kind"`
	RevertOf    string       `json:"revert_of,omitempty"`
	Snapshot    bool         `json:"snapshot"`
	Content     string       `json:"content,omitempty"`
	Delta       *diff.Script `json:"delta,omitempty"`
	DeltaBase   string       `json:"delta_base,omitempty"`
	Author      string       `json:"author,omitempty"`
	AuthorID    string       `json:"author_id,omitempty"`
	Message     string       `json:"message,omitempty"`
	Changes     diff.Stats   `json:"changes"`
	ContentHash string       `json:"content_hash"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsRoot reports whether v has no parents.
func (v *Version) IsRoot() bool {
	return len(v.Parents) == 0
}

// IsMerge reports whether v joins two lines of history.
func (v *Version) IsMerge() bool {
	return len(v.Parents) > 1
}

// Clone returns a copy that shares no slices with v.
func (v *Version) Clone() *Version {
	c := *v
	c.Parents = append([]string(nil), v.Parents...)
	return &c
}

// Branch is a movable pointer into the version graph.
type Branch struct {
	Name        string    `json:"name"`
	DocumentID  string    `json:"document_id"`
	Head        string    `json:"head"`
	CreatedFrom string    `json:"created_from"`
	Protected   bool      `json:"protected"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TagType classifies a tag.
type TagType string

const (
	TagRelease   TagType = "release"
	TagMilestone TagType = "milestone"
	TagBackup    TagType = "backup"
	TagManual    TagType = "manual"
)

// TagTypes lists every accepted tag type.
var TagTypes = []TagType{TagRelease, TagMilestone, TagBackup, TagManual}

// Tag permanently names one version.
type Tag struct {
	Name       string    `json:"name"`
	DocumentID string    `json:"document_id"`
	VersionID  string    `json:"version_id"`
	Type       TagType   `json:"type"`
	Message    string    `json:"message,omitempty"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DiffResult is the outcome of comparing two versions.
type DiffResult struct {
	FromVersionID string      `json:"from_version_id"`
	ToVersionID   string      `json:"to_version_id"`
	Script        diff.Script `json:"script"`
	Stats         diff.Stats  `json:"stats"`
}

// DocumentStats summarizes a document's history.
type DocumentStats struct {
	DocumentID     string    `json:"document_id"`
	TotalVersions  int       `json:"total_versions"`
	BranchCount    int       `json:"branch_count"`
	TagCount       int       `json:"tag_count"`
	Contributors   []string  `json:"contributors"`
	LastModifiedAt time.Time `json:"last_modified_at"`
	MergeCount     int       `json:"merge_count"`
	RevertCount    int       `json:"revert_count"`
}
