package model

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/nainya/docvcs/pkg/apperr"
)

var (
	branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	tagNamePattern    = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

const (
	maxIDLength      = 256
	maxAuthorLength  = 256
	maxMessageLength = 4096

	// DefaultHistoryLimit applies when HistoryOptions.Limit is zero.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps HistoryOptions.Limit.
	MaxHistoryLimit = 500
)

// ValidateDocumentID checks a caller supplied document id.
func ValidateDocumentID(id string) error {
	if err := validation.Validate(id, validation.Required, validation.Length(1, maxIDLength)); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "invalid document id %q", id)
	}
	return nil
}

// ValidateBranchName checks a branch name against the allowed pattern.
func ValidateBranchName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, MaxNameLength),
		validation.Match(branchNamePattern),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidBranchName, err, "invalid branch name %q", name)
	}
	return nil
}

// ValidateTagName checks a tag name against the allowed pattern.
func ValidateTagName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, MaxNameLength),
		validation.Match(tagNamePattern),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidTagName, err, "invalid tag name %q", name)
	}
	return nil
}

func invalid(err error, what string) error {
	if err == nil {
		return nil
	}
	return apperr.Wrap(apperr.KindValidation, err, "invalid %s", what)
}

// InitOptions describes the root version of a new document.
type InitOptions struct {
	Author   string `json:"author,omitempty"`
	AuthorID string `json:"author_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

func (o InitOptions) Validate() error {
	return invalid(validation.ValidateStruct(&o,
		validation.Field(&o.Author, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.AuthorID, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.Message, validation.Length(0, maxMessageLength)),
	), "init options")
}

// VersionMeta describes a new version.
type VersionMeta struct {
	Author   string `json:"author,omitempty"`
	AuthorID string `json:"author_id,omitempty"`
	Message  string `json:"message,omitempty"`
	// OverrideProtection allows writing to a protected branch.
	OverrideProtection bool `json:"override_protection,omitempty"`
}

func (o VersionMeta) Validate() error {
	return invalid(validation.ValidateStruct(&o,
		validation.Field(&o.Author, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.AuthorID, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.Message, validation.Length(0, maxMessageLength)),
	), "version metadata")
}

// BranchOptions describes a new branch.
type BranchOptions struct {
	CreatedBy string `json:"created_by,omitempty"`
	Protected bool   `json:"protected,omitempty"`
}

func (o BranchOptions) Validate() error {
	return invalid(validation.ValidateStruct(&o,
		validation.Field(&o.CreatedBy, validation.Length(0, maxAuthorLength)),
	), "branch options")
}

// MergeStrategy selects how overlapping changes are handled.
type MergeStrategy string

const (
	// StrategyAuto resolves overlapping regions in favour of the target.
	StrategyAuto MergeStrategy = "auto"
	// StrategyManual reports overlapping regions and creates nothing.
	StrategyManual MergeStrategy = "manual"
)

// MergeOptions describes a merge.
type MergeOptions struct {
	Author   string        `json:"author,omitempty"`
	AuthorID string        `json:"author_id,omitempty"`
	Message  string        `json:"message,omitempty"`
	Strategy MergeStrategy `json:"strategy,omitempty"`
}

// StrategyOrDefault returns the strategy, defaulting to auto.
func (o MergeOptions) StrategyOrDefault() MergeStrategy {
	if o.Strategy == "" {
		return StrategyAuto
	}
	return o.Strategy
}

func (o MergeOptions) Validate() error {
	return invalid(validation.ValidateStruct(&o,
		validation.Field(&o.Author, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.AuthorID, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.Message, validation.Length(0, maxMessageLength)),
		validation.Field(&o.Strategy, validation.In(StrategyAuto, StrategyManual)),
	), "merge options")
}

// TagOptions describes a new tag.
type TagOptions struct {
	Message   string  `json:"message,omitempty"`
	Type      TagType `json:"type,omitempty"`
	CreatedBy string  `json:"created_by,omitempty"`
}

// TypeOrDefault returns the tag type, defaulting to manual.
func (o TagOptions) TypeOrDefault() TagType {
	if o.Type == "" {
		return TagManual
	}
	return o.Type
}

func (o TagOptions) Validate() error {
	return invalid(validation.ValidateStruct(&o,
		validation.Field(&o.Message, validation.Length(0, maxMessageLength)),
		validation.Field(&o.Type, validation.In(TagRelease, TagMilestone, TagBackup, TagManual)),
		validation.Field(&o.CreatedBy, validation.Length(0, maxAuthorLength)),
	), "tag options")
}

// RevertOptions describes a revert. Branch defaults to the document's
// default branch.
type RevertOptions struct {
	Author             string `json:"author,omitempty"`
	AuthorID           string `json:"author_id,omitempty"`
	Message            string `json:"message,omitempty"`
	Branch             string `json:"branch,omitempty"`
	OverrideProtection bool   `json:"override_protection,omitempty"`
}

func (o RevertOptions) Validate() error {
	return invalid(validation.ValidateStruct(&o,
		validation.Field(&o.Author, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.AuthorID, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.Message, validation.Length(0, maxMessageLength)),
		validation.Field(&o.Branch, validation.Length(0, MaxNameLength), validation.Match(branchNamePattern)),
	), "revert options")
}

// HistoryOptions filters and paginates a history query. Zero Since or Until
// leaves that side of the time range open.
type HistoryOptions struct {
	Branch         string    `json:"branch,omitempty"`
	Author         string    `json:"author,omitempty"`
	Limit          int       `json:"limit,omitempty"`
	Offset         int       `json:"offset,omitempty"`
	IncludeContent bool      `json:"include_content,omitempty"`
	IncludeDiff    bool      `json:"include_diff,omitempty"`
	Since          time.Time `json:"since,omitempty"`
	Until          time.Time `json:"until,omitempty"`
}

// EffectiveLimit applies the default and the cap.
func (o HistoryOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultHistoryLimit
	case o.Limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return o.Limit
	}
}

func (o HistoryOptions) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.Branch, validation.Length(0, MaxNameLength), validation.Match(branchNamePattern)),
		validation.Field(&o.Author, validation.Length(0, maxAuthorLength)),
		validation.Field(&o.Limit, validation.Min(0)),
		validation.Field(&o.Offset, validation.Min(0)),
	)
	if err == nil && !o.Since.IsZero() && !o.Until.IsZero() && o.Until.Before(o.Since) {
		return apperr.New(apperr.KindValidation, "invalid history options: until %s is before since %s",
			o.Until.Format(time.RFC3339), o.Since.Format(time.RFC3339))
	}
	return invalid(err, "history options")
}
