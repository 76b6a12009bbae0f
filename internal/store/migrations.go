package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations. Timestamps are
// unix milliseconds.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				id               TEXT PRIMARY KEY,
				last_intent      TEXT NOT NULL DEFAULT '',
				tenant_id        TEXT NOT NULL DEFAULT '',
				vpn_context      TEXT,
				pending_handoff  TEXT,
				created_at       INTEGER NOT NULL,
				expires_at       INTEGER NOT NULL
			);

			CREATE INDEX idx_sessions_expires ON sessions (expires_at);

			CREATE TABLE messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
			);

			CREATE INDEX idx_messages_session ON messages (session_id, id);
		`,
	},
	{
		Version: 2,
		Name:    "create email idempotency records",
		SQL: `
			CREATE TABLE email_processed (
				message_id    TEXT PRIMARY KEY,
				processed_at  INTEGER NOT NULL,
				expires_at    INTEGER NOT NULL
			);

			CREATE TABLE email_receipts (
				message_id  TEXT PRIMARY KEY,
				receipt     TEXT NOT NULL,
				expires_at  INTEGER NOT NULL
			);

			CREATE TABLE email_pending (
				message_id  TEXT PRIMARY KEY,
				payload     TEXT NOT NULL,
				created_at  INTEGER NOT NULL,
				expires_at  INTEGER NOT NULL
			);

			CREATE INDEX idx_email_processed_expires ON email_processed (expires_at);
			CREATE INDEX idx_email_receipts_expires ON email_receipts (expires_at);
			CREATE INDEX idx_email_pending_expires ON email_pending (expires_at);
		`,
	},
}
