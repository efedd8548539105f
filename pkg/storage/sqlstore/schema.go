package sqlstore

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	default_branch TEXT NOT NULL,
	created_by     TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
	document_id  TEXT NOT NULL REFERENCES documents(id),
	number       INTEGER NOT NULL,
	id           TEXT NOT NULL UNIQUE,
	parents      TEXT NOT NULL,
	branch       TEXT NOT NULL,
	kind         TEXT NOT NULL,
	revert_of    TEXT NOT NULL DEFAULT '',
	snapshot     INTEGER NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	delta        TEXT,
	delta_base   TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL DEFAULT '',
	author_id    TEXT NOT NULL DEFAULT '',
	message      TEXT NOT NULL DEFAULT '',
	insertions   INTEGER NOT NULL DEFAULT 0,
	deletions    INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	UNIQUE (document_id, number)
);

CREATE TABLE IF NOT EXISTS branches (
	document_id  TEXT NOT NULL REFERENCES documents(id),
	name         TEXT NOT NULL,
	head         TEXT NOT NULL,
	created_from TEXT NOT NULL,
	protected    INTEGER NOT NULL DEFAULT 0,
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	PRIMARY KEY (document_id, name)
);

CREATE TABLE IF NOT EXISTS tags (
	document_id TEXT NOT NULL REFERENCES documents(id),
	name        TEXT NOT NULL,
	version_id  TEXT NOT NULL,
	type        TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	created_by  TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (document_id, name)
);
`
