package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
	id           TEXT PRIMARY KEY,
	mailbox      TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	uid          INTEGER NOT NULL DEFAULT 0,
	message_id   TEXT NOT NULL,
	newsgroups   TEXT NOT NULL,
	spool_path   TEXT NOT NULL,
	deleted      INTEGER NOT NULL DEFAULT 0,
	delivered_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transfers_message_id ON transfers(message_id);
CREATE INDEX IF NOT EXISTS idx_transfers_delivered_at ON transfers(delivered_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
