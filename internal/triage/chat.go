package triage

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/soyeahso/triage/internal/classifier"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/escalation"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/tagging"
	"github.com/soyeahso/triage/internal/tenant"
	"github.com/soyeahso/triage/internal/vpnflow"
)

// ChatInput is one inbound chat turn.
type ChatInput struct {
	SessionID string
	Message   string
	// CompanyID is the tenant id supplied in the request body.
	CompanyID string
	// HeaderTenant is the tenant id supplied out of band (X-Company-Id).
	HeaderTenant string
}

// SessionHistory is the read-only view of a session.
type SessionHistory struct {
	SessionID    string           `json:"session_id"`
	LastIntent   *domain.Intent   `json:"last_intent"`
	Messages     []domain.Message `json:"messages"`
	MessageCount int              `json:"message_count"`
}

// ClosureReply is sent once a parked chat escalation is committed.
func ClosureReply(tenantID string) string {
	return "Thanks. I'm escalating this to IT support now.\n" +
		"Company: " + tenantID + "\n" +
		"This session is now closed. If you want to start a new troubleshooting attempt, create a new session (or delete this session)."
}

// Chat runs one turn of a chat session. A new session is created when
// SessionID is empty or unknown.
func (s *Service) Chat(ctx context.Context, in ChatInput) (*domain.ChatResult, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Message) > MaxMessageLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters", ErrInvalidInput, MaxMessageLen)
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	unlock := s.locks.Lock("session:" + sessionID)
	defer unlock()

	sessionID, created, err := s.store.EnsureSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	log := s.log.With("session", sessionID)
	if created {
		log.Debug().Msg("session created")
		s.emit(ctx, hooks.EventSessionStart, map[string]any{"channel": "chat", "session": sessionID})
	}

	if err := s.store.AppendMessage(ctx, sessionID, domain.Message{Role: domain.RoleUser, Text: in.Message}); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}
	s.emit(ctx, hooks.EventMessageReceived, map[string]any{"channel": "chat", "session": sessionID})

	res, err := s.turn(ctx, sessionID, msg, in)
	if err != nil {
		return nil, err
	}
	res.SessionID = sessionID

	if err := s.store.AppendMessage(ctx, sessionID, domain.Message{Role: domain.RoleAssistant, Text: res.Reply}); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}
	s.emit(ctx, hooks.EventReplySent, map[string]any{
		"channel": "chat",
		"session": sessionID,
		"intent":  string(res.Intent),
		"handoff": res.Handoff,
	})
	log.Debug().Str("intent", string(res.Intent)).Bool("handoff", res.Handoff).Msg("chat turn complete")
	return res, nil
}

func (s *Service) turn(ctx context.Context, sessionID, msg string, in ChatInput) (*domain.ChatResult, error) {
	if pending, ok := s.pendingHandoff(ctx, sessionID); ok {
		return s.resumeChat(ctx, sessionID, msg, in, pending)
	}

	vctx := s.vpnContext(ctx, sessionID)
	if vctx.Terminal() {
		return s.terminalTurn(ctx, sessionID, msg, vctx), nil
	}

	t, haveTenant, err := s.chatTenant(ctx, sessionID, in)
	if err != nil {
		return nil, err
	}

	intent, confidence := s.routeIntent(ctx, sessionID, msg, vctx)
	if err := s.store.SetLastIntent(ctx, sessionID, intent); err != nil {
		return nil, fmt.Errorf("set last intent: %w", err)
	}

	if intent == domain.IntentVPN {
		return s.vpnTurn(ctx, sessionID, msg, vctx, t, haveTenant, confidence)
	}

	reply, handoff := classifier.Respond(intent)
	return &domain.ChatResult{
		Intent:     intent,
		Confidence: confidence,
		Reply:      reply,
		Handoff:    handoff,
	}, nil
}

// resumeChat tries to commit a parked escalation. Without a valid tenant id
// the pending record is left untouched and the tenant question repeated.
func (s *Service) resumeChat(ctx context.Context, sessionID, msg string, in ChatInput, pending domain.HandoffSummary) (*domain.ChatResult, error) {
	intent := domain.IntentVPN
	if last, ok := s.lastIntent(ctx, sessionID); ok {
		intent = last
	}

	t, ok := s.tenants.Resolve(tenant.PickCandidate(in.HeaderTenant, in.CompanyID, msg))
	if !ok {
		s.log.Debug().Str("session", sessionID).Msg("pending handoff still waiting for tenant")
		summary := pending.Clone()
		return &domain.ChatResult{
			Intent:     intent,
			Confidence: ForcedConfidence,
			Reply:      s.tenants.AskMessage(),
			Summary:    &summary,
		}, nil
	}

	if err := s.store.SetTenantID(ctx, sessionID, t.ID); err != nil {
		return nil, fmt.Errorf("set tenant: %w", err)
	}
	vctx := s.vpnContext(ctx, sessionID)
	vctx.State = domain.StateHandoff
	if err := s.store.SetVPNContext(ctx, sessionID, vctx); err != nil {
		return nil, fmt.Errorf("finalize context: %w", err)
	}

	summary := pending.Clone()
	if len(summary.InternalTags) == 0 {
		tagging.Attach(&summary)
	}
	preview := escalation.Build(sessionID, t, summary)

	if err := s.store.ClearPendingHandoff(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("clear pending handoff: %w", err)
	}

	s.log.Info().Str("session", sessionID).Str("tenant", t.ID).Msg("escalation committed")
	s.emit(ctx, hooks.EventEscalated, map[string]any{
		"channel": "chat",
		"session": sessionID,
		"tenant":  t.ID,
		"intent":  string(summary.Category),
	})
	return &domain.ChatResult{
		Intent:     intent,
		Confidence: ForcedConfidence,
		Reply:      ClosureReply(t.ID),
		Handoff:    true,
		Summary:    &summary,
		Preview:    preview,
	}, nil
}

// terminalTurn answers a message on a session that already escalated. The
// reply is the same for every message.
func (s *Service) terminalTurn(ctx context.Context, sessionID, msg string, vctx domain.Context) *domain.ChatResult {
	step := vpnflow.Step(msg, vctx)
	summary := *step.Summary
	tagging.Attach(&summary)

	res := &domain.ChatResult{
		Intent:     domain.IntentVPN,
		Confidence: ForcedConfidence,
		Reply:      step.Reply,
		Handoff:    true,
		Summary:    &summary,
	}
	if id, ok := s.sessionTenant(ctx, sessionID); ok {
		if t, ok := s.tenants.Lookup(id); ok {
			res.Preview = escalation.Build(sessionID, t, summary)
		}
	}
	return res
}

func (s *Service) vpnTurn(ctx context.Context, sessionID, msg string, vctx domain.Context, t tenant.Tenant, haveTenant bool, confidence float64) (*domain.ChatResult, error) {
	step := vpnflow.Step(msg, vctx)
	res := &domain.ChatResult{
		Intent:     domain.IntentVPN,
		Confidence: confidence,
		Reply:      step.Reply,
	}

	if !step.Escalate {
		if err := s.store.SetVPNContext(ctx, sessionID, step.Context); err != nil {
			return nil, fmt.Errorf("save context: %w", err)
		}
		return res, nil
	}

	summary := *step.Summary
	tagging.Attach(&summary)
	res.Summary = &summary

	if !haveTenant {
		// Park the escalation and keep the dialog live one step back.
		if err := s.store.SetPendingHandoff(ctx, sessionID, summary); err != nil {
			return nil, fmt.Errorf("park handoff: %w", err)
		}
		rolled := step.Context
		rolled.State = domain.StateCheckResult
		if err := s.store.SetVPNContext(ctx, sessionID, rolled); err != nil {
			return nil, fmt.Errorf("roll back context: %w", err)
		}
		s.log.Info().Str("session", sessionID).Msg("escalation waiting for tenant")
		s.emit(ctx, hooks.EventEscalationPending, map[string]any{"channel": "chat", "session": sessionID})
		res.Reply = s.tenants.AskMessage()
		return res, nil
	}

	if err := s.store.SetVPNContext(ctx, sessionID, step.Context); err != nil {
		return nil, fmt.Errorf("save context: %w", err)
	}
	res.Preview = escalation.Build(sessionID, t, summary)
	res.Handoff = true

	s.log.Info().Str("session", sessionID).Str("tenant", t.ID).Msg("escalated")
	s.emit(ctx, hooks.EventEscalated, map[string]any{
		"channel": "chat",
		"session": sessionID,
		"tenant":  t.ID,
		"intent":  string(domain.IntentVPN),
	})
	return res, nil
}

// chatTenant picks the tenant for a turn: header, then body, then the one
// already stored on the session. A newly supplied valid id is persisted.
func (s *Service) chatTenant(ctx context.Context, sessionID string, in ChatInput) (tenant.Tenant, bool, error) {
	if candidate := tenant.PickCandidate(in.HeaderTenant, in.CompanyID, ""); candidate != "" {
		if t, ok := s.tenants.Resolve(candidate); ok {
			if err := s.store.SetTenantID(ctx, sessionID, t.ID); err != nil {
				return tenant.Tenant{}, false, fmt.Errorf("set tenant: %w", err)
			}
			return t, true, nil
		}
		s.log.Debug().Str("session", sessionID).Str("candidate", candidate).Msg("ignoring unknown tenant id")
	}
	if id, ok := s.sessionTenant(ctx, sessionID); ok {
		if t, ok := s.tenants.Lookup(id); ok {
			return t, true, nil
		}
	}
	return tenant.Tenant{}, false, nil
}

// routeIntent keeps a VPN dialog in progress on the VPN path and classifies
// everything else.
func (s *Service) routeIntent(ctx context.Context, sessionID, msg string, vctx domain.Context) (domain.Intent, float64) {
	if vctx.State != domain.StateStart {
		return domain.IntentVPN, ForcedConfidence
	}
	prev, _ := s.lastIntent(ctx, sessionID)
	return s.classifier.Classify(msg, prev)
}

// History returns the transcript of a live session.
func (s *Service) History(ctx context.Context, sessionID string) (*SessionHistory, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	ok, err := s.store.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	msgs, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	h := &SessionHistory{SessionID: sessionID, Messages: msgs, MessageCount: len(msgs)}
	if intent, ok := s.lastIntent(ctx, sessionID); ok {
		h.LastIntent = &intent
	}
	return h, nil
}

// DeleteSession removes all state of a session.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	unlock := s.locks.Lock("session:" + sessionID)
	defer unlock()

	ok, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	s.emit(ctx, hooks.EventSessionEnd, map[string]any{"channel": "chat", "session": sessionID})
	return nil
}

// Optional reads: a storage failure is logged and treated as "not set".

func (s *Service) pendingHandoff(ctx context.Context, sessionID string) (domain.HandoffSummary, bool) {
	p, ok, err := s.store.PendingHandoff(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("read pending handoff")
		return domain.HandoffSummary{}, false
	}
	return p, ok
}

func (s *Service) vpnContext(ctx context.Context, sessionID string) domain.Context {
	c, ok, err := s.store.VPNContext(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("read vpn context")
	}
	if err != nil || !ok {
		return domain.NewContext()
	}
	c.Normalize()
	return c
}

func (s *Service) lastIntent(ctx context.Context, sessionID string) (domain.Intent, bool) {
	i, ok, err := s.store.LastIntent(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("read last intent")
		return "", false
	}
	return i, ok
}

func (s *Service) sessionTenant(ctx context.Context, sessionID string) (string, bool) {
	id, ok, err := s.store.TenantID(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("read tenant")
		return "", false
	}
	return id, ok
}
