// Package hooks dispatches triage lifecycle events (sessions, replies,
// escalations, email outcomes) to subscribers such as metrics, the audit
// log and the gateway's WebSocket broadcast.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/triage/internal/logging"
)

// Event names.
const (
	EventMessageReceived   = "message_received"
	EventReplySent         = "reply_sent"
	EventSessionStart      = "session_start"
	EventSessionEnd        = "session_end"
	EventEscalationPending = "escalation_pending"
	EventEscalated         = "escalated"
	EventEmailProcessed    = "email_processed"
	EventEmailPending      = "email_pending"
	EventEmailDuplicate    = "email_duplicate"
	EventGatewayStart      = "gateway_start"
	EventGatewayStop       = "gateway_stop"
)

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged and does not stop
// the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager holds handler registrations. Register handlers at startup; Emit
// is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for event. name identifies it in logs.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Emit calls the handlers for event in registration order on the caller's
// goroutine. Handler errors and panics are logged.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	m.mu.RLock()
	handlers := m.handlers[event]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		if err := m.call(ctx, h, payload); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", event).
				Str("handler", h.name).
				Msg("hook handler error")
		}
	}
}

func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.handler(ctx, p)
}
