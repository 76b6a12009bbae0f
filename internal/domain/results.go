package domain

import "time"

// Preview is a ticket payload in the shape a Jira-style tracker accepts.
// Nothing is submitted; it is returned for inspection only.
type Preview struct {
	CorrelationID string        `json:"correlation_id"`
	TenantID      string        `json:"tenant_id"`
	Fields        PreviewFields `json:"fields"`
}

// PreviewFields holds the issue fields of a Preview.
type PreviewFields struct {
	Project     KeyRef    `json:"project"`
	IssueType   NameRef   `json:"issuetype"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Labels      []string  `json:"labels"`
	Components  []NameRef `json:"components,omitempty"`
}

// KeyRef references an entity by key.
type KeyRef struct {
	Key string `json:"key"`
}

// NameRef references an entity by name.
type NameRef struct {
	Name string `json:"name"`
}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	SessionID  string          `json:"session_id"`
	Intent     Intent          `json:"intent"`
	Confidence float64         `json:"confidence"`
	Reply      string          `json:"reply"`
	Handoff    bool            `json:"handoff"`
	Summary    *HandoffSummary `json:"handoff_summary,omitempty"`
	Preview    *Preview        `json:"escalation_preview,omitempty"`
}

// EmailStatus is the processing status reported for an email.
type EmailStatus string

const (
	EmailProcessed        EmailStatus = "processed"
	EmailDuplicateSkipped EmailStatus = "duplicate_skipped"
	EmailPendingTenant    EmailStatus = "pending_tenant"
)

// EmailResult is the response for an ingested or resolved email. The
// processed result is stored verbatim as the idempotency receipt.
type EmailResult struct {
	Status       EmailStatus     `json:"status"`
	MessageID    string          `json:"message_id"`
	TenantID     string          `json:"tenant_id,omitempty"`
	Intent       Intent          `json:"intent"`
	Confidence   float64         `json:"confidence"`
	InternalTags []string        `json:"internal_tags"`
	Summary      *HandoffSummary `json:"handoff_summary,omitempty"`
	Preview      *Preview        `json:"escalation_preview,omitempty"`
}

// PendingEmail is an email whose escalation is parked until a tenant is known.
type PendingEmail struct {
	MessageID       string         `json:"message_id"`
	Intent          Intent         `json:"intent"`
	Confidence      float64        `json:"confidence"`
	InternalTags    []string       `json:"internal_tags"`
	Summary         HandoffSummary `json:"handoff_summary"`
	CandidateTenant string         `json:"candidate_company_id,omitempty"`
	InferredTenant  string         `json:"inferred_from_email,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Valid reports whether a decoded pending record is usable.
func (p PendingEmail) Valid() bool {
	return p.MessageID != "" && p.Intent.Valid() && p.Summary.Category != ""
}

// Valid reports whether a decoded receipt is usable.
func (r EmailResult) Valid() bool {
	return r.Status != "" && r.Intent.Valid()
}
