// Package escalation assembles the ticket payload preview for a handoff.
package escalation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/tagging"
	"github.com/soyeahso/triage/internal/tenant"
)

// maxSummaryLen is the longest summary line a tracker accepts.
const maxSummaryLen = 255

// Build tags s (if it has no tags yet) and renders the preview for tenant t.
// correlationID is the session id or email message id.
func Build(correlationID string, t tenant.Tenant, s domain.HandoffSummary) *domain.Preview {
	if len(s.InternalTags) == 0 {
		tagging.Attach(&s)
	}

	p := &domain.Preview{
		CorrelationID: correlationID,
		TenantID:      t.ID,
		Fields: domain.PreviewFields{
			Project:     domain.KeyRef{Key: t.ProjectKey},
			IssueType:   domain.NameRef{Name: t.IssueType},
			Summary:     Summary(s),
			Description: Description(correlationID, t, s),
			Labels:      t.Labels(s.InternalTags),
		},
	}
	if t.Component != "" {
		p.Fields.Components = []domain.NameRef{{Name: t.Component}}
	}
	return p
}

// Summary renders the one-line ticket title.
func Summary(s domain.HandoffSummary) string {
	var line string
	if s.Category == domain.IntentVPN {
		line = fmt.Sprintf("VPN: %s on %s via %s (error: %s)",
			orUnknown(string(s.Symptom)), orUnknown(string(s.OS)), orUnknown(s.Client), orUnknown(s.ErrorCode))
	} else {
		line = categoryTitle(s.Category)
		if s.Email != nil && strings.TrimSpace(s.Email.Subject) != "" {
			line += ": " + strings.TrimSpace(s.Email.Subject)
		}
	}
	if utf8.RuneCountInString(line) > maxSummaryLen {
		line = string([]rune(line)[:maxSummaryLen-3]) + "..."
	}
	return line
}

// Description renders the ticket body.
func Description(correlationID string, t tenant.Tenant, s domain.HandoffSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Escalated by triage for %s.\n", displayName(t))
	fmt.Fprintf(&b, "Correlation ID: %s\n", correlationID)
	fmt.Fprintf(&b, "Category: %s\n", s.Category)
	fmt.Fprintf(&b, "State: %s\n", s.State)

	if s.Category == domain.IntentVPN {
		b.WriteString("\nVPN details:\n")
		fmt.Fprintf(&b, "- OS: %s\n", orUnknown(string(s.OS)))
		fmt.Fprintf(&b, "- Client: %s\n", orUnknown(s.Client))
		fmt.Fprintf(&b, "- Symptom: %s\n", orUnknown(string(s.Symptom)))
		fmt.Fprintf(&b, "- Error: %s\n", orUnknown(s.ErrorCode))
		fmt.Fprintf(&b, "- Attempts: %d\n", s.AttemptCount)
		if len(s.StepsGiven) > 0 {
			b.WriteString("\nSteps already tried:\n")
			for i, step := range s.StepsGiven {
				fmt.Fprintf(&b, "%d) %s\n", i+1, step)
			}
		}
	}

	if s.Email != nil {
		b.WriteString("\nEmail:\n")
		fmt.Fprintf(&b, "- Message-ID: %s\n", s.Email.MessageID)
		fmt.Fprintf(&b, "- From: %s\n", s.Email.From)
		fmt.Fprintf(&b, "- To: %s\n", s.Email.To)
		fmt.Fprintf(&b, "- Subject: %s\n", s.Email.Subject)
	}
	if body := strings.TrimSpace(s.Body); body != "" {
		b.WriteString("\nOriginal message:\n")
		b.WriteString(body)
		b.WriteString("\n")
	}
	if len(s.InternalTags) > 0 {
		fmt.Fprintf(&b, "\nInternal tags: %s\n", strings.Join(s.InternalTags, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func categoryTitle(c domain.Intent) string {
	switch c {
	case domain.IntentPasswordReset:
		return "Password reset"
	case domain.IntentEmail:
		return "Email issue"
	case domain.IntentGeneral:
		return "General IT request"
	}
	return "Needs triage"
}

func displayName(t tenant.Tenant) string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.ID
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
