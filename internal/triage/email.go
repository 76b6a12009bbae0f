package triage

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/escalation"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/tagging"
	"github.com/soyeahso/triage/internal/tenant"
	"github.com/soyeahso/triage/internal/vpnflow"
)

// EmailInput is one inbound email. MessageID is the idempotency key.
type EmailInput struct {
	MessageID    string
	From         string
	To           string
	Subject      string
	Body         string
	CompanyID    string
	HeaderTenant string
}

// IngestEmail classifies an email and escalates it once. A message id that
// was already processed returns the stored receipt as a duplicate; one that
// is pending is resumed without classifying again.
func (s *Service) IngestEmail(ctx context.Context, in EmailInput) (*domain.EmailResult, error) {
	messageID, err := validMessageID(in.MessageID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock("email:" + messageID)
	defer unlock()

	processed, err := s.store.IsEmailProcessed(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("check processed: %w", err)
	}
	if processed {
		return s.duplicate(ctx, messageID), nil
	}

	if pending, ok := s.pendingEmail(ctx, messageID); ok {
		t, ok := s.emailTenant(tenant.PickCandidate(in.HeaderTenant, in.CompanyID, ""), in.To)
		if !ok {
			s.log.Debug().Str("message_id", messageID).Msg("pending email still waiting for tenant")
			return pendingResult(pending), nil
		}
		return s.completeEmail(ctx, messageID, pending.Intent, pending.Confidence, pending.Summary, t)
	}

	text := strings.TrimSpace(in.Subject + "\n" + in.Body)
	intent, confidence := s.classifier.Classify(text, "")
	summary := emailSummary(messageID, intent, text, in)
	tagging.Attach(&summary)

	candidate := tenant.PickCandidate(in.HeaderTenant, in.CompanyID, "")
	if t, ok := s.emailTenant(candidate, in.To); ok {
		return s.completeEmail(ctx, messageID, intent, confidence, summary, t)
	}

	p := domain.PendingEmail{
		MessageID:       messageID,
		Intent:          intent,
		Confidence:      confidence,
		InternalTags:    append([]string{}, summary.InternalTags...),
		Summary:         summary,
		CandidateTenant: candidate,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.SetPendingEmail(ctx, p); err != nil {
		return nil, fmt.Errorf("park email: %w", err)
	}
	s.log.Info().Str("message_id", messageID).Str("intent", string(intent)).Msg("email waiting for tenant")
	s.emit(ctx, hooks.EventEmailPending, map[string]any{
		"channel":    "email",
		"message_id": messageID,
		"intent":     string(intent),
	})
	return pendingResult(p), nil
}

// ResolveEmail supplies the tenant for a pending email. Resolving an email
// that was already processed returns its receipt as a duplicate.
func (s *Service) ResolveEmail(ctx context.Context, messageID, companyID string) (*domain.EmailResult, error) {
	messageID, err := validMessageID(messageID)
	if err != nil {
		return nil, err
	}
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return nil, fmt.Errorf("%w: company_id is required", ErrInvalidInput)
	}

	unlock := s.locks.Lock("email:" + messageID)
	defer unlock()

	processed, err := s.store.IsEmailProcessed(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("check processed: %w", err)
	}
	if processed {
		return s.duplicate(ctx, messageID), nil
	}

	pending, ok := s.pendingEmail(ctx, messageID)
	if !ok {
		return nil, ErrPendingNotFound
	}
	t, ok := s.tenants.Resolve(companyID)
	if !ok {
		return pendingResult(pending), nil
	}
	return s.completeEmail(ctx, messageID, pending.Intent, pending.Confidence, pending.Summary, t)
}

// ListPendingEmails returns the message ids waiting for a tenant.
func (s *Service) ListPendingEmails(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListPendingEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending emails: %w", err)
	}
	return ids, nil
}

// completeEmail builds the preview and commits the receipt. The commit marks
// the message processed and drops any pending record together.
func (s *Service) completeEmail(ctx context.Context, messageID string, intent domain.Intent, confidence float64, summary domain.HandoffSummary, t tenant.Tenant) (*domain.EmailResult, error) {
	summary = summary.Clone()
	if len(summary.InternalTags) == 0 {
		tagging.Attach(&summary)
	}
	preview := escalation.Build(messageID, t, summary)

	res := domain.EmailResult{
		Status:       domain.EmailProcessed,
		MessageID:    messageID,
		TenantID:     t.ID,
		Intent:       intent,
		Confidence:   confidence,
		InternalTags: append([]string{}, summary.InternalTags...),
		Summary:      &summary,
		Preview:      preview,
	}
	if err := s.store.CompleteEmail(ctx, messageID, res); err != nil {
		return nil, fmt.Errorf("commit email: %w", err)
	}

	s.log.Info().Str("message_id", messageID).Str("tenant", t.ID).Str("intent", string(intent)).Msg("email processed")
	s.emit(ctx, hooks.EventEmailProcessed, map[string]any{
		"channel":    "email",
		"message_id": messageID,
		"tenant":     t.ID,
		"intent":     string(intent),
	})
	return &res, nil
}

// duplicate replays the stored receipt, or synthesizes a minimal one when the
// receipt is gone or unreadable.
func (s *Service) duplicate(ctx context.Context, messageID string) *domain.EmailResult {
	r, ok, err := s.store.EmailReceipt(ctx, messageID)
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Msg("read receipt")
	}
	if err != nil || !ok || !r.Valid() {
		r = domain.EmailResult{
			Intent:       domain.IntentUnknown,
			InternalTags: []string{},
		}
	}
	r.Status = domain.EmailDuplicateSkipped
	r.MessageID = messageID
	if r.InternalTags == nil {
		r.InternalTags = []string{}
	}

	s.emit(ctx, hooks.EventEmailDuplicate, map[string]any{"channel": "email", "message_id": messageID})
	return &r
}

// emailTenant resolves the explicit candidate. The plus-addressed recipient
// is consulted only when no candidate was supplied; an unknown candidate
// leaves the email pending.
func (s *Service) emailTenant(candidate, to string) (tenant.Tenant, bool) {
	if strings.TrimSpace(candidate) != "" {
		return s.tenants.Resolve(candidate)
	}
	if id, ok := s.tenants.InferFromAddress(to); ok {
		return s.tenants.Lookup(id)
	}
	return tenant.Tenant{}, false
}

func (s *Service) pendingEmail(ctx context.Context, messageID string) (domain.PendingEmail, bool) {
	p, ok, err := s.store.PendingEmail(ctx, messageID)
	if err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Msg("read pending email")
		return domain.PendingEmail{}, false
	}
	if ok && !p.Valid() {
		return domain.PendingEmail{}, false
	}
	return p, ok
}

// emailSummary builds the handoff snapshot for a freshly classified email.
// VPN emails get whatever dialog fields the text already contains.
func emailSummary(messageID string, intent domain.Intent, text string, in EmailInput) domain.HandoffSummary {
	s := domain.HandoffSummary{
		Category: intent,
		State:    domain.StateEmailIngest,
		Email: &domain.EmailMeta{
			MessageID: messageID,
			From:      strings.TrimSpace(in.From),
			To:        strings.TrimSpace(in.To),
			Subject:   strings.TrimSpace(in.Subject),
		},
		Body: strings.TrimSpace(in.Body),
	}
	if intent == domain.IntentVPN {
		s.OS = vpnflow.ExtractOS(text)
		s.Client = vpnflow.ExtractClient(text)
		s.Symptom = vpnflow.ExtractSymptom(text)
		s.ErrorCode = vpnflow.ExtractErrorCode(text)
	}
	return s
}

func pendingResult(p domain.PendingEmail) *domain.EmailResult {
	summary := p.Summary.Clone()
	tags := append([]string{}, p.InternalTags...)
	if len(tags) == 0 {
		tags = append(tags, summary.InternalTags...)
	}
	return &domain.EmailResult{
		Status:       domain.EmailPendingTenant,
		MessageID:    p.MessageID,
		Intent:       p.Intent,
		Confidence:   p.Confidence,
		InternalTags: tags,
		Summary:      &summary,
	}
}

func validMessageID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if n := utf8.RuneCountInString(id); n < MinMessageIDLen || n > MaxMessageIDLen {
		return "", fmt.Errorf("%w: message_id must be %d..%d characters", ErrInvalidInput, MinMessageIDLen, MaxMessageIDLen)
	}
	return id, nil
}
