// Package triage orchestrates chat turns and email intake: it runs the VPN
// dialog, parks escalations that have no tenant yet, resumes them once a
// tenant id arrives and keeps email processing idempotent.
package triage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/soyeahso/triage/internal/classifier"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/store"
	"github.com/soyeahso/triage/internal/tenant"
)

// Input limits.
const (
	MaxMessageLen   = 4000
	MinMessageIDLen = 3
	MaxMessageIDLen = 512
)

// ForcedConfidence is reported when the intent is fixed by dialog state
// rather than classified.
const ForcedConfidence = 0.99

var (
	// ErrInvalidInput is returned for missing or out-of-range request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPendingNotFound is returned when resolving an email that has no
	// pending record.
	ErrPendingNotFound = errors.New("pending email not found")
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("session not found")
)

// Service is the escalation workflow. It is safe for concurrent use; turns on
// the same session id or email message id are serialized within a process.
type Service struct {
	store      store.Store
	tenants    *tenant.Registry
	classifier classifier.Classifier
	hooks      *hooks.Manager
	log        *logging.Logger
	locks      *keyedMutex
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClassifier replaces the keyword classifier.
func WithClassifier(c classifier.Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithHooks sets the hook manager that receives lifecycle events.
func WithHooks(h *hooks.Manager) Option {
	return func(s *Service) { s.hooks = h }
}

// WithClock overrides the time source used for pending-email timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the workflow on top of a store and tenant registry.
func NewService(st store.Store, tenants *tenant.Registry, log *logging.Logger, opts ...Option) *Service {
	s := &Service{
		store:      st,
		tenants:    tenants,
		classifier: classifier.New(),
		log:        log.Sub("triage"),
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tenants returns the registry the service resolves tenant ids against.
func (s *Service) Tenants() *tenant.Registry { return s.tenants }

func (s *Service) emit(ctx context.Context, event string, data map[string]any) {
	if s.hooks != nil {
		s.hooks.Emit(ctx, event, data)
	}
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
