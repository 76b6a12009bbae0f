package vpnflow

import (
	"testing"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run feeds messages through Step starting from a fresh context.
func run(t *testing.T, msgs ...string) (domain.Context, Result) {
	t.Helper()
	ctx := domain.NewContext()
	var res Result
	for _, m := range msgs {
		res = Step(m, ctx)
		ctx = res.Context
	}
	return ctx, res
}

func TestStep_FullDialogEscalates(t *testing.T) {
	ctx := domain.NewContext()
	msgs := []string{
		"my vpn is broken",
		"windows",
		"anyconnect",
		"can't connect at all",
		"619",
		"still failing",
		"still failing",
	}
	wantStates := []domain.State{
		domain.StateAskOS,
		domain.StateAskClient,
		domain.StateAskSymptom,
		domain.StateAskErrorCode,
		domain.StateCheckResult,
		domain.StateCheckResult,
		domain.StateHandoff,
	}

	var res Result
	for i, m := range msgs {
		res = Step(m, ctx)
		ctx = res.Context
		assert.Equal(t, wantStates[i], ctx.State, "after %q", m)
		if i < len(msgs)-1 {
			assert.False(t, res.Escalate, "after %q", m)
		}
	}

	require.True(t, res.Escalate)
	require.NotNil(t, res.Summary)
	s := res.Summary
	assert.Equal(t, domain.IntentVPN, s.Category)
	assert.Equal(t, domain.StateHandoff, s.State)
	assert.Equal(t, domain.OSWindows, s.OS)
	assert.Equal(t, "AnyConnect", s.Client)
	assert.Equal(t, domain.SymptomCannotConnect, s.Symptom)
	assert.Equal(t, "619", s.ErrorCode)
	assert.Equal(t, 2, s.AttemptCount)
	assert.Equal(t, StepsFor("619"), s.StepsGiven)
	assert.Contains(t, res.Reply, "escalate this to IT support")
	assert.Contains(t, res.Reply, "- Attempts: 2")
}

func TestStep_QuestionsInOrder(t *testing.T) {
	_, res := run(t, "vpn help")
	assert.Equal(t, QuestionOSText, res.Reply)
	assert.Equal(t, domain.QuestionOS, res.Context.LastQuestion)

	_, res = run(t, "vpn help", "mac")
	assert.Equal(t, QuestionClientText, res.Reply)

	_, res = run(t, "vpn help", "mac", "globalprotect")
	assert.Equal(t, QuestionSymptomText, res.Reply)

	_, res = run(t, "vpn help", "mac", "globalprotect", "it keeps disconnecting")
	assert.Equal(t, QuestionErrorCodeText, res.Reply)
	assert.Equal(t, domain.QuestionErrorCode, res.Context.LastQuestion)
}

func TestStep_FieldCaching(t *testing.T) {
	ctx, res := run(t, "windows anyconnect can't connect error 809")
	assert.Equal(t, domain.StateCheckResult, ctx.State)
	assert.Equal(t, 1, ctx.AttemptCount)
	assert.Equal(t, "809", ctx.ErrorCode)
	assert.Contains(t, res.Reply, "Thanks. Try these steps:")
	assert.Contains(t, res.Reply, "1) Check internet connectivity")
	assert.Empty(t, ctx.LastQuestion)
}

func TestStep_KnownFieldsNeverOverwritten(t *testing.T) {
	ctx, _ := run(t, "vpn on windows", "actually linux with forticlient")
	assert.Equal(t, domain.OSWindows, ctx.OS)
	assert.Equal(t, "FortiClient", ctx.Client)
}

func TestStep_RetryCeiling(t *testing.T) {
	ctx, res := run(t, "windows anyconnect can't connect 619", "still failing")
	assert.False(t, res.Escalate)
	assert.Equal(t, 2, ctx.AttemptCount)
	assert.Equal(t, domain.StateCheckResult, ctx.State)

	ctx, res = run(t, "windows anyconnect can't connect 619", "still failing", "nope")
	assert.True(t, res.Escalate)
	assert.Equal(t, domain.StateHandoff, ctx.State)
	assert.Equal(t, 2, ctx.AttemptCount)
}

func TestStep_FailureAdoptsNewErrorCode(t *testing.T) {
	ctx, res := run(t, "windows anyconnect can't connect 619", "still failing, now it says certificate")
	assert.Equal(t, domain.ErrorCertificate, ctx.ErrorCode)
	assert.Equal(t, StepsFor(domain.ErrorCertificate), ctx.StepsGiven)
	assert.Contains(t, res.Reply, "certificate prompt")
}

func TestStep_SuccessHealsContext(t *testing.T) {
	ctx, res := run(t, "windows anyconnect can't connect 619", "works now")
	assert.Equal(t, SuccessText, res.Reply)
	assert.Equal(t, domain.StateStart, ctx.State)
	assert.Equal(t, 0, ctx.AttemptCount)
	assert.Empty(t, ctx.ErrorCode)
	assert.Empty(t, ctx.StepsGiven)
	assert.Equal(t, domain.OSWindows, ctx.OS)
	assert.Equal(t, "AnyConnect", ctx.Client)

	// The next issue only needs the error code again.
	ctx, res = run(t, "windows anyconnect can't connect 619", "works now", "vpn broke again")
	assert.Equal(t, domain.StateAskErrorCode, ctx.State)
	assert.Equal(t, QuestionErrorCodeText, res.Reply)
}

func TestStep_AmbiguousCheckResult(t *testing.T) {
	before, _ := run(t, "windows anyconnect can't connect 619")
	res := Step("hmm maybe", before)
	assert.Equal(t, CheckResultText, res.Reply)
	assert.Equal(t, domain.StateCheckResult, res.Context.State)
	assert.Equal(t, before.AttemptCount, res.Context.AttemptCount)
}

func TestStep_GuardAsksNextMissing(t *testing.T) {
	ctx, res := run(t, "vpn on windows", "no")
	assert.Equal(t, domain.StateAskClient, ctx.State)
	assert.Equal(t, QuestionClientText, res.Reply)
	assert.Equal(t, 0, ctx.AttemptCount)
}

func TestStep_TerminalLock(t *testing.T) {
	ctx, first := run(t, "windows anyconnect can't connect 619", "still", "still")
	require.True(t, first.Escalate)

	for _, m := range []string{"hello?", "works now", "619", ""} {
		res := Step(m, ctx)
		assert.True(t, res.Escalate)
		assert.Equal(t, first.Reply, res.Reply)
		assert.Equal(t, first.Summary, res.Summary)
		assert.Equal(t, domain.StateHandoff, res.Context.State)
	}
}

func TestStep_UnknownStateRestarts(t *testing.T) {
	ctx := domain.NewContext()
	ctx.State = "SOMETHING_ELSE"
	res := Step("hello", ctx)
	assert.Equal(t, RestartText, res.Reply)
	assert.Equal(t, domain.StateAskOS, res.Context.State)
	assert.Equal(t, domain.QuestionOS, res.Context.LastQuestion)
}

func TestStep_DoesNotMutateInput(t *testing.T) {
	ctx := domain.NewContext()
	ctx.OS = domain.OSWindows
	ctx.Client = "AnyConnect"
	ctx.Symptom = domain.SymptomCannotConnect
	ctx.ErrorCode = "619"
	ctx.StepsGiven = []string{"old"}

	_ = Step("go", ctx)
	assert.Equal(t, domain.StateStart, ctx.State)
	assert.Equal(t, []string{"old"}, ctx.StepsGiven)
	assert.Equal(t, 0, ctx.AttemptCount)
}

func TestHandoffReplyUnknownFields(t *testing.T) {
	reply := HandoffReply(domain.HandoffSummary{Category: domain.IntentVPN})
	assert.Contains(t, reply, "- OS: unknown")
	assert.Contains(t, reply, "- Steps tried: N/A")
}

func TestStepsFor(t *testing.T) {
	assert.Len(t, StepsFor("619"), 5)
	assert.Len(t, StepsFor("812"), 5)
	assert.Len(t, StepsFor(domain.ErrorCertificate), 3)
	assert.Len(t, StepsFor(domain.ErrorAuthFailed), 3)
	assert.Equal(t, "Re-type username/password (check Caps Lock)", StepsFor(domain.ErrorAuthFailed)[0])
	assert.Equal(t, "Try a different network (hotspot) to avoid blocked VPN ports", StepsFor(domain.ErrorTimeout)[0])
	assert.Equal(t, []string{"Restart the VPN client", "Reboot the machine", "Try a different network (hotspot)"}, StepsFor("999"))

	s := StepsFor("")
	s[0] = "mutated"
	assert.Equal(t, "Restart the VPN client", StepsFor("")[0])
}
