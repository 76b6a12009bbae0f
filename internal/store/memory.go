package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
)

type memSession struct {
	messages   []domain.Message
	lastIntent domain.Intent
	tenantID   string
	vpn        *domain.Context
	pending    *domain.HandoffSummary
	expires    time.Time
}

type memEntry[T any] struct {
	value   T
	expires time.Time
}

// MemoryStore keeps everything in process memory. Expired records are swept
// on every call.
type MemoryStore struct {
	mu       sync.Mutex
	opts     Options
	log      *logging.Logger
	closed   bool
	sessions map[string]*memSession
	// processed maps message id to the time it was marked.
	processed map[string]memEntry[time.Time]
	receipts  map[string]memEntry[domain.EmailResult]
	pending   map[string]memEntry[domain.PendingEmail]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts Options, log *logging.Logger) *MemoryStore {
	return &MemoryStore{
		opts:      opts.withDefaults(),
		log:       log.Sub("store.memory"),
		sessions:  make(map[string]*memSession),
		processed: make(map[string]memEntry[time.Time]),
		receipts:  make(map[string]memEntry[domain.EmailResult]),
		pending:   make(map[string]memEntry[domain.PendingEmail]),
	}
}

// begin locks the store and sweeps expired records. On success the caller
// must unlock; on error the lock is already released.
func (m *MemoryStore) begin(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.sweepLocked()
	return nil
}

func (m *MemoryStore) sweepLocked() int {
	now := m.opts.Now()
	n := 0
	for id, s := range m.sessions {
		if !now.Before(s.expires) {
			delete(m.sessions, id)
			n++
		}
	}
	for id, e := range m.processed {
		if !now.Before(e.expires) {
			delete(m.processed, id)
		}
	}
	for id, e := range m.receipts {
		if !now.Before(e.expires) {
			delete(m.receipts, id)
		}
	}
	for id, e := range m.pending {
		if !now.Before(e.expires) {
			delete(m.pending, id)
		}
	}
	return n
}

// session returns the live session and refreshes its TTL. With create set a
// missing session is created.
func (m *MemoryStore) session(id string, create bool) *memSession {
	s, ok := m.sessions[id]
	if !ok {
		if !create {
			return nil
		}
		s = &memSession{}
		m.sessions[id] = s
	}
	s.expires = m.opts.Now().Add(m.opts.SessionTTL)
	return s
}

func (m *MemoryStore) EnsureSession(ctx context.Context, id string) (string, bool, error) {
	if err := m.begin(ctx); err != nil {
		return "", false, err
	}
	defer m.mu.Unlock()

	id = normKey(id)
	if id == "" {
		id = uuid.New().String()
	}
	_, existed := m.sessions[id]
	m.session(id, true)
	return id, !existed, nil
}

func (m *MemoryStore) SessionExists(ctx context.Context, id string) (bool, error) {
	if err := m.begin(ctx); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	return m.session(normKey(id), false) != nil, nil
}

// write runs fn against the (possibly new) session under the lock.
func (m *MemoryStore) write(ctx context.Context, id string, fn func(s *memSession)) error {
	if err := m.begin(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	id = normKey(id)
	if id == "" {
		return ErrEmptyKey
	}
	fn(m.session(id, true))
	return nil
}

// read runs fn against an existing session under the lock. fn is not called
// when the session does not exist.
func (m *MemoryStore) read(ctx context.Context, id string, fn func(s *memSession)) error {
	if err := m.begin(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if s := m.session(normKey(id), false); s != nil {
		fn(s)
	}
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, id string, msg domain.Message) error {
	return m.write(ctx, id, func(s *memSession) {
		s.messages = append(s.messages, msg)
	})
}

func (m *MemoryStore) History(ctx context.Context, id string) ([]domain.Message, error) {
	var out []domain.Message
	err := m.read(ctx, id, func(s *memSession) {
		out = append([]domain.Message{}, s.messages...)
	})
	return out, err
}

func (m *MemoryStore) LastIntent(ctx context.Context, id string) (domain.Intent, bool, error) {
	var intent domain.Intent
	err := m.read(ctx, id, func(s *memSession) { intent = s.lastIntent })
	return intent, intent != "", err
}

func (m *MemoryStore) SetLastIntent(ctx context.Context, id string, intent domain.Intent) error {
	return m.write(ctx, id, func(s *memSession) { s.lastIntent = intent })
}

func (m *MemoryStore) TenantID(ctx context.Context, id string) (string, bool, error) {
	var tenantID string
	err := m.read(ctx, id, func(s *memSession) { tenantID = s.tenantID })
	return tenantID, tenantID != "", err
}

func (m *MemoryStore) SetTenantID(ctx context.Context, id, tenantID string) error {
	return m.write(ctx, id, func(s *memSession) { s.tenantID = tenantID })
}

func (m *MemoryStore) PendingHandoff(ctx context.Context, id string) (domain.HandoffSummary, bool, error) {
	var (
		out   domain.HandoffSummary
		found bool
	)
	err := m.read(ctx, id, func(s *memSession) {
		if s.pending != nil {
			out, found = s.pending.Clone(), true
		}
	})
	return out, found, err
}

func (m *MemoryStore) SetPendingHandoff(ctx context.Context, id string, sum domain.HandoffSummary) error {
	c := sum.Clone()
	return m.write(ctx, id, func(s *memSession) { s.pending = &c })
}

func (m *MemoryStore) ClearPendingHandoff(ctx context.Context, id string) error {
	return m.read(ctx, id, func(s *memSession) { s.pending = nil })
}

func (m *MemoryStore) VPNContext(ctx context.Context, id string) (domain.Context, bool, error) {
	var (
		out   domain.Context
		found bool
	)
	err := m.read(ctx, id, func(s *memSession) {
		if s.vpn != nil {
			out, found = s.vpn.Clone(), true
		}
	})
	return out, found, err
}

func (m *MemoryStore) SetVPNContext(ctx context.Context, id string, c domain.Context) error {
	c = c.Clone()
	return m.write(ctx, id, func(s *memSession) { s.vpn = &c })
}

func (m *MemoryStore) ClearVPNContext(ctx context.Context, id string) error {
	return m.read(ctx, id, func(s *memSession) { s.vpn = nil })
}

func (m *MemoryStore) PendingEmail(ctx context.Context, messageID string) (domain.PendingEmail, bool, error) {
	if err := m.begin(ctx); err != nil {
		return domain.PendingEmail{}, false, err
	}
	defer m.mu.Unlock()
	e, ok := m.pending[normKey(messageID)]
	if !ok {
		return domain.PendingEmail{}, false, nil
	}
	return clonePending(e.value), true, nil
}

func (m *MemoryStore) SetPendingEmail(ctx context.Context, p domain.PendingEmail) error {
	if err := m.begin(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	mid := normKey(p.MessageID)
	if mid == "" {
		return ErrEmptyKey
	}
	p.MessageID = mid
	m.pending[mid] = memEntry[domain.PendingEmail]{value: clonePending(p), expires: m.opts.Now().Add(m.opts.EmailTTL)}
	return nil
}

func (m *MemoryStore) ClearPendingEmail(ctx context.Context, messageID string) error {
	if err := m.begin(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	delete(m.pending, normKey(messageID))
	return nil
}

func (m *MemoryStore) ListPendingEmails(ctx context.Context) ([]string, error) {
	if err := m.begin(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) IsEmailProcessed(ctx context.Context, messageID string) (bool, error) {
	if err := m.begin(ctx); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	_, ok := m.processed[normKey(messageID)]
	return ok, nil
}

func (m *MemoryStore) MarkEmailProcessed(ctx context.Context, messageID string) error {
	if err := m.begin(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	m.markLocked(mid)
	return nil
}

func (m *MemoryStore) markLocked(mid string) {
	now := m.opts.Now()
	m.processed[mid] = memEntry[time.Time]{value: now, expires: now.Add(m.opts.EmailTTL)}
}

func (m *MemoryStore) EmailReceipt(ctx context.Context, messageID string) (domain.EmailResult, bool, error) {
	if err := m.begin(ctx); err != nil {
		return domain.EmailResult{}, false, err
	}
	defer m.mu.Unlock()
	e, ok := m.receipts[normKey(messageID)]
	if !ok {
		return domain.EmailResult{}, false, nil
	}
	return cloneResult(e.value), true, nil
}

func (m *MemoryStore) SetEmailReceipt(ctx context.Context, messageID string, r domain.EmailResult) error {
	if err := m.begin(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	m.receipts[mid] = memEntry[domain.EmailResult]{value: cloneResult(r), expires: m.opts.Now().Add(m.opts.EmailTTL)}
	return nil
}

func (m *MemoryStore) CompleteEmail(ctx context.Context, messageID string, r domain.EmailResult) error {
	if err := m.begin(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	mid := normKey(messageID)
	if mid == "" {
		return ErrEmptyKey
	}
	m.markLocked(mid)
	m.receipts[mid] = memEntry[domain.EmailResult]{value: cloneResult(r), expires: m.opts.Now().Add(m.opts.EmailTTL)}
	delete(m.pending, mid)
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	if err := m.begin(ctx); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	id = normKey(id)
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}

func (m *MemoryStore) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	n := m.sweepLocked()
	if n > 0 {
		m.log.Debug().Int("sessions", n).Msg("swept expired sessions")
	}
	return n, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func clonePending(p domain.PendingEmail) domain.PendingEmail {
	p.Summary = p.Summary.Clone()
	p.InternalTags = cloneStrings(p.InternalTags)
	return p
}

func cloneResult(r domain.EmailResult) domain.EmailResult {
	r.InternalTags = cloneStrings(r.InternalTags)
	if r.Summary != nil {
		s := r.Summary.Clone()
		r.Summary = &s
	}
	if r.Preview != nil {
		p := *r.Preview
		p.Fields.Labels = cloneStrings(p.Fields.Labels)
		if p.Fields.Components != nil {
			p.Fields.Components = append([]domain.NameRef{}, p.Fields.Components...)
		}
		r.Preview = &p
	}
	return r
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
