// Package store persists chat sessions and email idempotency records.
//
// Three backends implement the same Store contract: an in-process map
// (MemoryStore), Redis (RedisStore) and SQLite (SQLiteStore). Session keys
// share one TTL clock that every session read or write refreshes; email
// records expire per key.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soyeahso/triage/internal/domain"
)

// Default TTLs.
const (
	DefaultSessionTTL = 30 * time.Minute
	DefaultEmailTTL   = 30 * time.Minute
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrEmptyKey is returned when a write is attempted with a blank
	// session or message id.
	ErrEmptyKey = errors.New("store: empty key")
)

// Store is the session and email idempotency store. Optional reads return
// (value, found, err); a stored value that cannot be decoded is reported as
// not found.
type Store interface {
	// EnsureSession returns id, or a new uuid when id is empty, creating the
	// session if it does not exist. created reports whether it was new.
	EnsureSession(ctx context.Context, id string) (sessionID string, created bool, err error)
	SessionExists(ctx context.Context, id string) (bool, error)
	AppendMessage(ctx context.Context, id string, msg domain.Message) error
	History(ctx context.Context, id string) ([]domain.Message, error)

	LastIntent(ctx context.Context, id string) (domain.Intent, bool, error)
	SetLastIntent(ctx context.Context, id string, intent domain.Intent) error
	TenantID(ctx context.Context, id string) (string, bool, error)
	SetTenantID(ctx context.Context, id, tenantID string) error

	PendingHandoff(ctx context.Context, id string) (domain.HandoffSummary, bool, error)
	SetPendingHandoff(ctx context.Context, id string, s domain.HandoffSummary) error
	ClearPendingHandoff(ctx context.Context, id string) error

	VPNContext(ctx context.Context, id string) (domain.Context, bool, error)
	SetVPNContext(ctx context.Context, id string, c domain.Context) error
	ClearVPNContext(ctx context.Context, id string) error

	PendingEmail(ctx context.Context, messageID string) (domain.PendingEmail, bool, error)
	SetPendingEmail(ctx context.Context, p domain.PendingEmail) error
	ClearPendingEmail(ctx context.Context, messageID string) error
	ListPendingEmails(ctx context.Context) ([]string, error)

	IsEmailProcessed(ctx context.Context, messageID string) (bool, error)
	MarkEmailProcessed(ctx context.Context, messageID string) error
	EmailReceipt(ctx context.Context, messageID string) (domain.EmailResult, bool, error)
	SetEmailReceipt(ctx context.Context, messageID string, r domain.EmailResult) error
	// CompleteEmail marks messageID processed, stores its receipt and drops
	// any pending record in one step.
	CompleteEmail(ctx context.Context, messageID string, r domain.EmailResult) error

	// DeleteSession removes every key of a session. It reports whether
	// anything was removed.
	DeleteSession(ctx context.Context, id string) (bool, error)
	// Sweep drops expired records and returns the number of sessions removed.
	Sweep(ctx context.Context) (int, error)
	Close() error
}

// Options configures TTLs and the clock shared by all backends.
type Options struct {
	SessionTTL time.Duration
	EmailTTL   time.Duration
	// Now overrides time.Now; used by tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SessionTTL <= 0 {
		o.SessionTTL = DefaultSessionTTL
	}
	if o.EmailTTL <= 0 {
		o.EmailTTL = DefaultEmailTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// normKey trims a session or message id.
func normKey(k string) string {
	return strings.TrimSpace(k)
}
