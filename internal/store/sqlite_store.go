package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
)

// SQLiteStore implements Store on a local SQLite database. Rows carry an
// expires_at column; expired rows are invisible to reads and removed by
// Sweep.
type SQLiteStore struct {
	db     *DB
	opts   Options
	log    *logging.Logger
	ownsDB bool
}

// OpenSQLite opens the database at path and returns a store that closes it
// on Close.
func OpenSQLite(path string, opts Options, log *logging.Logger) (*SQLiteStore, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, err
	}
	s := NewSQLiteStore(db, opts)
	s.ownsDB = true
	return s, nil
}

// NewSQLiteStore creates a store using an already opened database.
func NewSQLiteStore(db *DB, opts Options) *SQLiteStore {
	return &SQLiteStore{db: db, opts: opts.withDefaults(), log: db.log.Sub("sqlite")}
}

func (s *SQLiteStore) now() int64 { return s.opts.Now().UnixMilli() }

func (s *SQLiteStore) sessionExpiry() int64 {
	return s.opts.Now().Add(s.opts.SessionTTL).UnixMilli()
}

func (s *SQLiteStore) emailExpiry() int64 {
	return s.opts.Now().Add(s.opts.EmailTTL).UnixMilli()
}

// upsertSession drops an expired row for id, then creates the session or
// refreshes its expiry. It reports whether the row is new.
func (s *SQLiteStore) upsertSession(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	now := s.now()
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND expires_at <= ?`, id, now); err != nil {
		return false, fmt.Errorf("pruning session: %w", err)
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("checking session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET expires_at = excluded.expires_at`,
		id, now, s.sessionExpiry(),
	); err != nil {
		return false, fmt.Errorf("upserting session: %w", err)
	}
	return n == 0, nil
}

// write runs fn in a transaction after creating or refreshing the session.
func (s *SQLiteStore) write(ctx context.Context, id string, fn func(tx *sql.Tx) error) error {
	id = normKey(id)
	if id == "" {
		return ErrEmptyKey
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := s.upsertSession(ctx, tx, id); err != nil {
			return err
		}
		return fn(tx)
	})
}

func (s *SQLiteStore) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// touch refreshes the expiry of a live session.
func (s *SQLiteStore) touch(ctx context.Context, id string) error {
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE id = ? AND expires_at > ?`,
		s.sessionExpiry(), id, s.now())
	return err
}

// column reads one nullable column of a live session and refreshes its TTL.
// col is always a constant from this file.
func (s *SQLiteStore) column(ctx context.Context, id, col string) (string, bool, error) {
	id = normKey(id)
	var v sql.NullString
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT `+col+` FROM sessions WHERE id = ? AND expires_at > ?`, id, s.now(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", col, err)
	}
	if err := s.touch(ctx, id); err != nil {
		return "", false, err
	}
	return v.String, v.Valid && v.String != "", nil
}

func (s *SQLiteStore) setColumn(ctx context.Context, id, col string, v any) error {
	return s.write(ctx, id, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sessions SET `+col+` = ? WHERE id = ?`, v, normKey(id))
		return err
	})
}

func (s *SQLiteStore) clearColumn(ctx context.Context, id, col string) error {
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE sessions SET `+col+` = NULL, expires_at = ? WHERE id = ? AND expires_at > ?`,
		s.sessionExpiry(), normKey(id), s.now())
	return err
}

func (s *SQLiteStore) EnsureSession(ctx context.Context, id string) (string, bool, error) {
	id = normKey(id)
	if id == "" {
		id = uuid.New().String()
	}
	var created bool
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = s.upsertSession(ctx, tx, id)
		return err
	})
	if err != nil {
		return "", false, err
	}
	return id, created, nil
}

func (s *SQLiteStore) SessionExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ? AND expires_at > ?`, normKey(id), s.now(),
	).Scan(&n)
	if err != nil || n == 0 {
		return false, err
	}
	return true, s.touch(ctx, normKey(id))
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, id string, msg domain.Message) error {
	return s.write(ctx, id, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
			normKey(id), string(msg.Role), msg.Text)
		if err != nil {
			return fmt.Errorf("appending message: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) History(ctx context.Context, id string) ([]domain.Message, error) {
	id = normKey(id)
	ok, err := s.SessionExists(ctx, id)
	if err != nil || !ok {
		return nil, err
	}

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&role, &m.Text); err != nil {
			continue
		}
		m.Role = domain.Role(role)
		msgs = append(msgs, m)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	return msgs, s.touch(ctx, id)
}

func (s *SQLiteStore) LastIntent(ctx context.Context, id string) (domain.Intent, bool, error) {
	v, ok, err := s.column(ctx, id, "last_intent")
	return domain.Intent(v), ok, err
}

func (s *SQLiteStore) SetLastIntent(ctx context.Context, id string, intent domain.Intent) error {
	return s.setColumn(ctx, id, "last_intent", string(intent))
}

func (s *SQLiteStore) TenantID(ctx context.Context, id string) (string, bool, error) {
	return s.column(ctx, id, "tenant_id")
}

func (s *SQLiteStore) SetTenantID(ctx context.Context, id, tenantID string) error {
	return s.setColumn(ctx, id, "tenant_id", tenantID)
}

func (s *SQLiteStore) PendingHandoff(ctx context.Context, id string) (domain.HandoffSummary, bool, error) {
	raw, ok, err := s.column(ctx, id, "pending_handoff")
	if err != nil || !ok {
		return domain.HandoffSummary{}, false, err
	}
	sum, ok := decodeSummary(s.log, "sessions.pending_handoff:"+id, raw)
	return sum, ok, nil
}

func (s *SQLiteStore) SetPendingHandoff(ctx context.Context, id string, sum domain.HandoffSummary) error {
	raw, err := encode(sum)
	if err != nil {
		return err
	}
	return s.setColumn(ctx, id, "pending_handoff", raw)
}

func (s *SQLiteStore) ClearPendingHandoff(ctx context.Context, id string) error {
	return s.clearColumn(ctx, id, "pending_handoff")
}

func (s *SQLiteStore) VPNContext(ctx context.Context, id string) (domain.Context, bool, error) {
	raw, ok, err := s.column(ctx, id, "vpn_context")
	if err != nil || !ok {
		return domain.Context{}, false, err
	}
	c, ok := decodeContext(s.log, "sessions.vpn_context:"+id, raw)
	return c, ok, nil
}

func (s *SQLiteStore) SetVPNContext(ctx context.Context, id string, c domain.Context) error {
	raw, err := encode(c)
	if err != nil {
		return err
	}
	return s.setColumn(ctx, id, "vpn_context", raw)
}

func (s *SQLiteStore) ClearVPNContext(ctx context.Context, id string) error {
	return s.clearColumn(ctx, id, "vpn_context")
}

func (s *SQLiteStore) PendingEmail(ctx context.Context, messageID string) (domain.PendingEmail, bool, error) {
	mid := normKey(messageID)
	var raw string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT payload FROM email_pending WHERE message_id = ? AND expires_at > ?`, mid, s.now(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PendingEmail{}, false, nil
	}
	if err != nil {
		return domain.PendingEmail{}, false, fmt.Errorf("reading pending email: %w", err)
	}
	p, ok := decodePending(s.log, "email_pending:"+mid, raw)
	return p, ok, nil
}

func (s *SQLiteStore) SetPendingEmail(ctx context.Context, p domain.PendingEmail) error {
	mid := normKey(p.MessageID)
	if mid == "" {
		return ErrEmptyKey
	}
	p.MessageID = mid
	raw, err := encode(p)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO email_pending (message_id, payload, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		mid, raw, s.now(), s.emailExpiry())
	return err
}

func (s *SQLiteStore) ClearPendingEmail(ctx context.Context, messageID string) error {
	_, err := s.db.sql.ExecContext(ctx, `DELETE FROM email_pending WHERE message_id = ?`, normKey(messageID))
	return err
}

func (s *SQLiteStore) ListPendingEmails(ctx context.Context) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT message_id FROM email_pending WHERE expires_at > ? ORDER BY message_id`, s.now())
	if err != nil {
		return nil, fmt.Errorf("listing pending emails: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) IsEmailProcessed(ctx context.Context, messageID string) (bool, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM email_processed WHERE message_id = ? AND expires_at > ?`,
		normKey(messageID), s.now(),
	).Scan(&n)
	return n > 0, err
}

const markProcessedSQL = `INSERT INTO email_processed (message_id, processed_at, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(message_id) DO UPDATE SET processed_at = excluded.processed_at, expires_at = excluded.expires_at`

const upsertReceiptSQL = `INSERT INTO email_receipts (message_id, receipt, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(message_id) DO UPDATE SET receipt = excluded.receipt, expires_at = excluded.expires_at`

func (s *SQLiteStore) MarkEmailProcessed(ctx context.Context, messageID string) error {
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	_, err := s.db.sql.ExecContext(ctx, markProcessedSQL, mid, s.now(), s.emailExpiry())
	return err
}

func (s *SQLiteStore) EmailReceipt(ctx context.Context, messageID string) (domain.EmailResult, bool, error) {
	mid := normKey(messageID)
	var raw string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT receipt FROM email_receipts WHERE message_id = ? AND expires_at > ?`, mid, s.now(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EmailResult{}, false, nil
	}
	if err != nil {
		return domain.EmailResult{}, false, fmt.Errorf("reading email receipt: %w", err)
	}
	r, ok := decodeReceipt(s.log, "email_receipts:"+mid, raw)
	return r, ok, nil
}

func (s *SQLiteStore) SetEmailReceipt(ctx context.Context, messageID string, r domain.EmailResult) error {
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	raw, err := encode(r)
	if err != nil {
		return err
	}
	_, err = s.db.sql.ExecContext(ctx, upsertReceiptSQL, mid, raw, s.emailExpiry())
	return err
}

func (s *SQLiteStore) CompleteEmail(ctx context.Context, messageID string, r domain.EmailResult) error {
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	raw, err := encode(r)
	if err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, markProcessedSQL, mid, s.now(), s.emailExpiry()); err != nil {
			return fmt.Errorf("marking processed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsertReceiptSQL, mid, raw, s.emailExpiry()); err != nil {
			return fmt.Errorf("storing receipt: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM email_pending WHERE message_id = ?`, mid); err != nil {
			return fmt.Errorf("clearing pending: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	id = normKey(id)
	var live int64
	err := s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ? AND expires_at > ?`, id, s.now())
		if err != nil {
			return err
		}
		live, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		return err
	})
	return live > 0, err
}

func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	var n int64
	err := s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		for _, table := range []string{"email_processed", "email_receipts", "email_pending"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= ?`, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweeping: %w", err)
	}
	if n > 0 {
		s.log.Debug().Int64("sessions", n).Msg("swept expired sessions")
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
