package tagging

import (
	"testing"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVPN(t *testing.T) {
	tests := []struct {
		name    string
		symptom domain.Symptom
		code    string
		want    []string
	}{
		{"numeric", domain.SymptomCannotConnect, "619", []string{"vpn", "connectivity", "error_619", "escalated"}},
		{"certificate", domain.SymptomConnectsNoAccess, domain.ErrorCertificate, []string{"vpn", "access", "certificate", "escalated"}},
		{"auth", domain.SymptomDisconnects, domain.ErrorAuthFailed, []string{"vpn", "stability", "auth_failed", "escalated"}},
		{"timeout", "", domain.ErrorTimeout, []string{"vpn", "other", "timeout", "escalated"}},
		{"no code", domain.SymptomOther, "", []string{"vpn", "other", "escalated"}},
		{"free text", domain.SymptomCannotConnect, "Weird Thing", []string{"vpn", "connectivity", "weird_thing", "escalated"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VPN(tt.symptom, tt.code))
		})
	}
}

func TestGeneric(t *testing.T) {
	assert.Equal(t, []string{"password", "escalated"}, Generic(domain.IntentPasswordReset))
	assert.Equal(t, []string{"email", "escalated"}, Generic(domain.IntentEmail))
	assert.Equal(t, []string{"general", "escalated"}, Generic("general"))
	assert.Equal(t, []string{"unknown", "escalated"}, Generic(domain.IntentUnknown))
	assert.Equal(t, []string{"unknown", "escalated"}, Generic("SOMETHING"))
}

func TestAttach(t *testing.T) {
	s := &domain.HandoffSummary{
		Category:  domain.IntentVPN,
		Symptom:   domain.SymptomCannotConnect,
		ErrorCode: "809",
	}
	Attach(s)
	require.Equal(t, []string{"vpn", "connectivity", "error_809", "escalated"}, s.InternalTags)

	first := append([]string{}, s.InternalTags...)
	Attach(s)
	assert.Equal(t, first, s.InternalTags)

	g := &domain.HandoffSummary{Category: domain.IntentEmail}
	Attach(g)
	assert.Equal(t, []string{"email", "escalated"}, g.InternalTags)

	Attach(nil)
}
