// Package sqlstore is a model.Repository backed by SQLite (modernc.org/sqlite,
// no cgo). Every document lives in four tables; a changeset is written in a
// single transaction.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nainya/docvcs/pkg/apperr"
	"github.com/nainya/docvcs/pkg/diff"
	"github.com/nainya/docvcs/pkg/model"
)

// DefaultTimeout bounds a single repository call.
const DefaultTimeout = 5 * time.Second

// DefaultReadConns is the size of the read pool when Options leaves it unset.
const DefaultReadConns = 4

// Options configures a Store.
type Options struct {
	// Path of the database file. Parent directories are created.
	Path string
	// Timeout bounds every Load, Apply and Documents call.
	Timeout time.Duration
	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration
	// ReadConns caps the read-only connections serving Load and Documents.
	ReadConns int
}

// Store implements model.Repository on SQLite. Writes go through a single
// connection; reads use a separate read-only pool and see the last
// committed state under WAL, so they never wait for a writer.
type Store struct {
	writer  *sql.DB
	reader  *sql.DB
	timeout time.Duration
}

var _ model.Repository = (*Store)(nil)

// Open opens (and if needed creates) the database at opts.Path.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, apperr.New(apperr.KindValidation, "sqlite path is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = opts.Timeout
	}
	if opts.ReadConns <= 0 {
		opts.ReadConns = DefaultReadConns
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.KindStorageUnavailable, err, "create data directory")
		}
	}

	base := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		opts.Path, opts.BusyTimeout.Milliseconds())
	writer, err := sql.Open("sqlite", base+"&_txlock=immediate")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, err, "open %s", opts.Path)
	}
	// SQLite has a single writer.
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	err = backoff.Retry(func() error {
		pctx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		return writer.PingContext(pctx)
	}, policy)
	if err != nil {
		writer.Close()
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, err, "ping %s", opts.Path)
	}

	mctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if _, err := writer.ExecContext(mctx, schema); err != nil {
		writer.Close()
		return nil, classify(err, "migrate schema")
	}

	// The reader is opened after the schema exists and WAL is on.
	reader, err := sql.Open("sqlite", base+"&_pragma=query_only(1)")
	if err != nil {
		writer.Close()
		return nil, apperr.Wrap(apperr.KindStorageUnavailable, err, "open %s for reading", opts.Path)
	}
	reader.SetMaxOpenConns(opts.ReadConns)
	reader.SetMaxIdleConns(opts.ReadConns)

	return &Store{writer: writer, reader: reader, timeout: opts.Timeout}, nil
}

func (s *Store) Close() error {
	return errors.Join(s.reader.Close(), s.writer.Close())
}

func (s *Store) Load(ctx context.Context, documentID string) (*model.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.reader.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, classify(err, "begin load %q", documentID)
	}
	defer tx.Rollback()

	snap, err := loadSnapshot(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, apperr.New(apperr.KindDocumentNotFound, "document %q not found", documentID)
	}
	return snap, nil
}

func (s *Store) Apply(ctx context.Context, cs model.Changeset) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "begin apply %q", cs.DocumentID)
	}
	defer tx.Rollback()

	current, err := loadSnapshot(ctx, tx, cs.DocumentID)
	if err != nil {
		return err
	}
	if err := cs.Check(current); err != nil {
		return err
	}
	if err := writeChangeset(ctx, tx, cs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit %q", cs.DocumentID)
	}
	return nil
}

func (s *Store) Documents(ctx context.Context) ([]*model.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.reader.QueryContext(ctx,
		`SELECT id, default_branch, created_by, created_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, classify(err, "list documents")
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		var d model.Document
		var created int64
		if err := rows.Scan(&d.ID, &d.DefaultBranch, &d.CreatedBy, &created); err != nil {
			return nil, classify(err, "scan document")
		}
		d.CreatedAt = fromNanos(created)
		docs = append(docs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list documents")
	}
	return docs, nil
}

// loadSnapshot returns nil without error when the document does not exist.
func loadSnapshot(ctx context.Context, tx *sql.Tx, documentID string) (*model.Snapshot, error) {
	var doc model.Document
	var created int64
	err := tx.QueryRowContext(ctx,
		`SELECT id, default_branch, created_by, created_at FROM documents WHERE id = ?`, documentID).
		Scan(&doc.ID, &doc.DefaultBranch, &doc.CreatedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "load document %q", documentID)
	}
	doc.CreatedAt = fromNanos(created)

	versions, err := loadVersions(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	branches, err := loadBranches(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	tags, err := loadTags(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}
	return model.NewSnapshot(&doc, versions, branches, tags), nil
}

func loadVersions(ctx context.Context, tx *sql.Tx, documentID string) ([]*model.Version, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, number, parents, branch, kind, revert_of, snapshot, content, delta,
		       delta_base, author, author_id, message, insertions, deletions,
		       content_hash, created_at
		FROM versions WHERE document_id = ? ORDER BY number`, documentID)
	if err != nil {
		return nil, classify(err, "load versions of %q", documentID)
	}
	defer rows.Close()

	var out []*model.Version
	for rows.Next() {
		v := &model.Version{DocumentID: documentID}
		var parents string
		var delta sql.NullString
		var created int64
		err := rows.Scan(&v.ID, &v.Number, &parents, &v.Branch, &v.Kind, &v.RevertOf,
			&v.Snapshot, &v.Content, &delta, &v.DeltaBase, &v.Author, &v.AuthorID,
			&v.Message, &v.Changes.Insertions, &v.Changes.Deletions, &v.ContentHash, &created)
		if err != nil {
			return nil, classify(err, "scan version of %q", documentID)
		}
		if err := json.Unmarshal([]byte(parents), &v.Parents); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "decode parents of version %s", v.ID)
		}
		if delta.Valid {
			var script diff.Script
			if err := json.Unmarshal([]byte(delta.String), &script); err != nil {
				return nil, apperr.Wrap(apperr.KindInternal, err, "decode delta of version %s", v.ID)
			}
			v.Delta = &script
		}
		v.CreatedAt = fromNanos(created)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "load versions of %q", documentID)
	}
	return out, nil
}

func loadBranches(ctx context.Context, tx *sql.Tx, documentID string) ([]*model.Branch, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT name, head, created_from, protected, created_by, created_at, updated_at
		FROM branches WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, classify(err, "load branches of %q", documentID)
	}
	defer rows.Close()

	var out []*model.Branch
	for rows.Next() {
		b := &model.Branch{DocumentID: documentID}
		var created, updated int64
		if err := rows.Scan(&b.Name, &b.Head, &b.CreatedFrom, &b.Protected, &b.CreatedBy, &created, &updated); err != nil {
			return nil, classify(err, "scan branch of %q", documentID)
		}
		b.CreatedAt = fromNanos(created)
		b.UpdatedAt = fromNanos(updated)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "load branches of %q", documentID)
	}
	return out, nil
}

func loadTags(ctx context.Context, tx *sql.Tx, documentID string) ([]*model.Tag, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT name, version_id, type, message, created_by, created_at
		FROM tags WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, classify(err, "load tags of %q", documentID)
	}
	defer rows.Close()

	var out []*model.Tag
	for rows.Next() {
		t := &model.Tag{DocumentID: documentID}
		var created int64
		if err := rows.Scan(&t.Name, &t.VersionID, &t.Type, &t.Message, &t.CreatedBy, &created); err != nil {
			return nil, classify(err, "scan tag of %q", documentID)
		}
		t.CreatedAt = fromNanos(created)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "load tags of %q", documentID)
	}
	return out, nil
}

func writeChangeset(ctx context.Context, tx *sql.Tx, cs model.Changeset) error {
	if d := cs.Document; d != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, default_branch, created_by, created_at) VALUES (?, ?, ?, ?)`,
			d.ID, d.DefaultBranch, d.CreatedBy, d.CreatedAt.UnixNano())
		if err != nil {
			return classify(err, "insert document %q", d.ID)
		}
	}

	for _, v := range cs.Versions {
		parents, err := json.Marshal(nonNil(v.Parents))
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "encode parents of version %s", v.ID)
		}
		var delta sql.NullString
		if v.Delta != nil {
			raw, err := json.Marshal(v.Delta)
			if err != nil {
				return apperr.Wrap(apperr.KindInternal, err, "encode delta of version %s", v.ID)
			}
			delta = sql.NullString{String: string(raw), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO versions (document_id, number, id, parents, branch, kind, revert_of,
				snapshot, content, delta, delta_base, author, author_id, message,
				insertions, deletions, content_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.DocumentID, v.Number, v.ID, string(parents), v.Branch, string(v.Kind), v.RevertOf,
			v.Snapshot, v.Content, delta, v.DeltaBase, v.Author, v.AuthorID, v.Message,
			v.Changes.Insertions, v.Changes.Deletions, v.ContentHash, v.CreatedAt.UnixNano())
		if err != nil {
			return classify(err, "insert version %d of %q", v.Number, cs.DocumentID)
		}
	}

	for _, name := range cs.DeleteBranches {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM branches WHERE document_id = ? AND name = ?`, cs.DocumentID, name)
		if err != nil {
			return classify(err, "delete branch %q", name)
		}
	}

	for _, b := range cs.Branches {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO branches (document_id, name, head, created_from, protected, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (document_id, name) DO UPDATE SET
				head = excluded.head,
				protected = excluded.protected,
				updated_at = excluded.updated_at`,
			cs.DocumentID, b.Name, b.Head, b.CreatedFrom, b.Protected, b.CreatedBy,
			b.CreatedAt.UnixNano(), b.UpdatedAt.UnixNano())
		if err != nil {
			return classify(err, "upsert branch %q", b.Name)
		}
	}

	for _, t := range cs.Tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tags (document_id, name, version_id, type, message, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			cs.DocumentID, t.Name, t.VersionID, string(t.Type), t.Message, t.CreatedBy, t.CreatedAt.UnixNano())
		if err != nil {
			return classify(err, "insert tag %q", t.Name)
		}
	}
	return nil
}

// classify maps driver failures to engine error kinds. Timeouts, lock
// contention, I/O failures and lost uniqueness races are retryable.
func classify(err error, format string, args ...any) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindStorageUnavailable, err, format, args...)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_FULL, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_CONSTRAINT:
			return apperr.Wrap(apperr.KindStorageUnavailable, err, format, args...)
		}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return apperr.Wrap(apperr.KindStorageUnavailable, err, format, args...)
	}
	return apperr.Wrap(apperr.KindInternal, err, format, args...)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
