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

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	message_id  TEXT NOT NULL,
	account_id  TEXT NOT NULL,
	from_email  TEXT NOT NULL DEFAULT '',
	to_emails   TEXT NOT NULL DEFAULT '[]',
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	html_body   TEXT NOT NULL DEFAULT '',
	date        DATETIME NOT NULL,
	folder      TEXT NOT NULL DEFAULT 'INBOX',
	category    TEXT NOT NULL DEFAULT 'Uncategorized',
	is_read     INTEGER NOT NULL DEFAULT 0,
	attachments TEXT NOT NULL DEFAULT '[]',
	headers     TEXT NOT NULL DEFAULT '{}',
	fetched_at  DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_dedupe
	ON messages(message_id, account_id);

CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_category ON messages(category);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_messages_account_date
	ON messages(account_id, date);

CREATE INDEX IF NOT EXISTS idx_messages_unread
	ON messages(is_read) WHERE is_read = 0;

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
