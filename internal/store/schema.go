package store

// SchemaSQL is the authoritative schema. Open applies it; tests load it
// through Open(":memory:") rather than declaring tables of their own.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS repositories (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT    NOT NULL,
	url        TEXT    NOT NULL,
	local_path TEXT    NOT NULL,
	last_sync  TEXT,
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE (name, url, local_path)
);

CREATE INDEX IF NOT EXISTS idx_repositories_name ON repositories (name);
`
