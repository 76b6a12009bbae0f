package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentValid(t *testing.T) {
	for _, i := range AllIntents {
		assert.True(t, i.Valid(), string(i))
	}
	assert.False(t, Intent("").Valid())
	assert.False(t, Intent("vpn_issue").Valid())
}

func TestNewContext(t *testing.T) {
	c := NewContext()
	assert.Equal(t, StateStart, c.State)
	assert.NotNil(t, c.StepsGiven)
	assert.Empty(t, c.StepsGiven)
	assert.False(t, c.Terminal())
}

func TestContextCloneIsIndependent(t *testing.T) {
	c := NewContext()
	c.StepsGiven = []string{"a", "b"}

	cp := c.Clone()
	cp.StepsGiven[0] = "changed"

	assert.Equal(t, "a", c.StepsGiven[0])
}

func TestContextNormalize(t *testing.T) {
	var c Context
	c.AttemptCount = -3
	c.Normalize()

	assert.Equal(t, StateStart, c.State)
	assert.NotNil(t, c.StepsGiven)
	assert.Equal(t, 0, c.AttemptCount)
}

func TestContextJSONFieldNames(t *testing.T) {
	c := NewContext()
	c.OS = OSWindows
	c.ErrorCode = "619"
	c.AttemptCount = 1

	data, err := json.Marshal(c)
	require.NoError(t, err)
	raw := string(data)

	assert.Contains(t, raw, `"state":"VPN_START"`)
	assert.Contains(t, raw, `"os":"windows"`)
	assert.Contains(t, raw, `"error_code":"619"`)
	assert.Contains(t, raw, `"attempt_count":1`)
	assert.NotContains(t, raw, "client")
}

func TestSummaryFromContextCopiesSteps(t *testing.T) {
	c := NewContext()
	c.State = StateHandoff
	c.StepsGiven = []string{"restart"}
	c.AttemptCount = 2

	s := SummaryFromContext(c)
	c.StepsGiven[0] = "mutated"

	assert.Equal(t, IntentVPN, s.Category)
	assert.Equal(t, StateHandoff, s.State)
	assert.Equal(t, []string{"restart"}, s.StepsGiven)
	assert.Equal(t, 2, s.AttemptCount)
}

func TestSummaryClone(t *testing.T) {
	s := HandoffSummary{
		Category:     IntentEmail,
		InternalTags: []string{"email"},
		Email:        &EmailMeta{MessageID: "m1"},
	}
	cp := s.Clone()
	cp.InternalTags[0] = "x"
	cp.Email.MessageID = "m2"

	assert.Equal(t, "email", s.InternalTags[0])
	assert.Equal(t, "m1", s.Email.MessageID)
}

func TestSummaryJSONKeepsUnknownKeys(t *testing.T) {
	data, err := json.Marshal(HandoffSummary{Category: IntentVPN, State: StateHandoff, Client: "AnyConnect"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"os", "symptom", "error_code"} {
		v, ok := raw[key]
		assert.True(t, ok, key)
		assert.Nil(t, v, key)
	}
	assert.Equal(t, "AnyConnect", raw["client"])

	var back HandoffSummary
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, HandoffSummary{Category: IntentVPN, State: StateHandoff, Client: "AnyConnect"}, back)
}

func TestPendingEmailValid(t *testing.T) {
	p := PendingEmail{MessageID: "m1", Intent: IntentVPN, Summary: HandoffSummary{Category: IntentVPN}}
	assert.True(t, p.Valid())

	assert.False(t, PendingEmail{}.Valid())
	assert.False(t, PendingEmail{MessageID: "m1", Intent: "bogus", Summary: HandoffSummary{Category: IntentVPN}}.Valid())
}

func TestEmailResultValid(t *testing.T) {
	assert.True(t, EmailResult{Status: EmailProcessed, Intent: IntentGeneral}.Valid())
	assert.False(t, EmailResult{Intent: IntentGeneral}.Valid())
	assert.False(t, EmailResult{Status: EmailProcessed}.Valid())
}
