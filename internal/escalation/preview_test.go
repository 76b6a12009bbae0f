package escalation

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bank(t *testing.T) tenant.Tenant {
	t.Helper()
	b, ok := tenant.Default().Lookup("ness_bank")
	require.True(t, ok)
	return b
}

func TestBuild_VPN(t *testing.T) {
	s := domain.HandoffSummary{
		Category:     domain.IntentVPN,
		State:        domain.StateHandoff,
		OS:           domain.OSWindows,
		Client:       "AnyConnect",
		Symptom:      domain.SymptomCannotConnect,
		ErrorCode:    "619",
		AttemptCount: 2,
		StepsGiven:   []string{"Restart the VPN client"},
	}

	p := Build("sess-1", bank(t), s)
	require.NotNil(t, p)

	assert.Equal(t, "sess-1", p.CorrelationID)
	assert.Equal(t, "ness_bank", p.TenantID)
	assert.Equal(t, "BANK", p.Fields.Project.Key)
	assert.Equal(t, "Incident", p.Fields.IssueType.Name)
	assert.Equal(t, []domain.NameRef{{Name: "Network"}}, p.Fields.Components)
	assert.Equal(t, []string{"it-support", "vpn", "vpn-connectivity", "error-619", "escalated"}, p.Fields.Labels)
	assert.Equal(t, "VPN: cannot_connect on windows via AnyConnect (error: 619)", p.Fields.Summary)
	assert.Contains(t, p.Fields.Description, "Ness Bank (Fake)")
	assert.Contains(t, p.Fields.Description, "1) Restart the VPN client")
	assert.Contains(t, p.Fields.Description, "Internal tags: vpn, connectivity, error_619, escalated")

	// The caller's summary is not modified.
	assert.Nil(t, s.InternalTags)
}

func TestBuild_GenericEmail(t *testing.T) {
	auto, ok := tenant.Default().Lookup("ness_auto")
	require.True(t, ok)

	s := domain.HandoffSummary{
		Category:     domain.IntentPasswordReset,
		State:        domain.StateEmailIngest,
		InternalTags: []string{"password", "escalated"},
		Email:        &domain.EmailMeta{MessageID: "<m1>", From: "a@x", To: "it+auto@x", Subject: "Locked out"},
		Body:         "I forgot my password",
	}
	p := Build("<m1>", auto, s)

	assert.Equal(t, []string{"helpdesk", "vpn", "pwd", "reset", "handoff"}, p.Fields.Labels)
	assert.Equal(t, "Password reset: Locked out", p.Fields.Summary)
	assert.Equal(t, "Service Request", p.Fields.IssueType.Name)
	assert.Contains(t, p.Fields.Description, "- Message-ID: <m1>")
	assert.Contains(t, p.Fields.Description, "I forgot my password")
	assert.NotContains(t, p.Fields.Description, "VPN details")
}

func TestSummary_Truncates(t *testing.T) {
	s := domain.HandoffSummary{
		Category: domain.IntentGeneral,
		Email:    &domain.EmailMeta{Subject: strings.Repeat("x", 400)},
	}
	got := Summary(s)
	assert.Len(t, got, maxSummaryLen)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSummary_TruncatesOnRuneBoundary(t *testing.T) {
	s := domain.HandoffSummary{
		Category: domain.IntentGeneral,
		Email:    &domain.EmailMeta{Subject: strings.Repeat("é", 300)},
	}
	got := Summary(s)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxSummaryLen, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "é..."))
}

func TestSummary_UnknownFields(t *testing.T) {
	assert.Equal(t, "VPN: unknown on unknown via unknown (error: unknown)",
		Summary(domain.HandoffSummary{Category: domain.IntentVPN}))
	assert.Equal(t, "Needs triage", Summary(domain.HandoffSummary{Category: domain.IntentUnknown}))
}
