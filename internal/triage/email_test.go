package triage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/triage/internal/classifier"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vpnEmail(id string) EmailInput {
	return EmailInput{
		MessageID: id,
		From:      "alice@corp.example",
		To:        "support@helpdesk.example",
		Subject:   "VPN down",
		Body:      "Windows laptop, AnyConnect can't connect. Error 619.",
	}
}

func TestIngestEmailIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()
	in := vpnEmail("<m-1@corp.example>")
	in.CompanyID = "ness_bank"

	first, err := svc.IngestEmail(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.EmailProcessed, first.Status)
	assert.Equal(t, "ness_bank", first.TenantID)
	assert.Equal(t, domain.IntentVPN, first.Intent)
	assert.InDelta(t, classifier.ConfidenceVPN, first.Confidence, 1e-9)
	assert.Equal(t, []string{"vpn", "connectivity", "error_619", "escalated"}, first.InternalTags)

	require.NotNil(t, first.Summary)
	assert.Equal(t, domain.StateEmailIngest, first.Summary.State)
	assert.Equal(t, domain.OSWindows, first.Summary.OS)
	assert.Equal(t, "AnyConnect", first.Summary.Client)
	assert.Equal(t, "619", first.Summary.ErrorCode)
	require.NotNil(t, first.Summary.Email)
	assert.Equal(t, "VPN down", first.Summary.Email.Subject)

	require.NotNil(t, first.Preview)
	assert.Equal(t, "<m-1@corp.example>", first.Preview.CorrelationID)

	// A second delivery, even with a different tenant, replays the receipt.
	in.CompanyID = "ness_auto"
	second, err := svc.IngestEmail(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.EmailDuplicateSkipped, second.Status)

	replay := *second
	replay.Status = domain.EmailProcessed
	assert.Equal(t, *first, replay)
}

func TestIngestEmailPendingThenResolve(t *testing.T) {
	svc, st := newTestService(t)
	ctx := t.Context()
	id := "m-pending-1"

	res, err := svc.IngestEmail(ctx, vpnEmail(id))
	require.NoError(t, err)
	assert.Equal(t, domain.EmailPendingTenant, res.Status)
	assert.Equal(t, id, res.MessageID)
	assert.Empty(t, res.TenantID)
	assert.Nil(t, res.Preview)
	assert.NotEmpty(t, res.InternalTags)

	processed, err := st.IsEmailProcessed(ctx, id)
	require.NoError(t, err)
	assert.False(t, processed)

	ids, err := svc.ListPendingEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	res, err = svc.ResolveEmail(ctx, id, "globex")
	require.NoError(t, err)
	assert.Equal(t, domain.EmailPendingTenant, res.Status)

	res, err = svc.ResolveEmail(ctx, id, "ness_auto")
	require.NoError(t, err)
	assert.Equal(t, domain.EmailProcessed, res.Status)
	assert.Equal(t, "ness_auto", res.TenantID)
	require.NotNil(t, res.Preview)
	assert.Equal(t, "AUTO", res.Preview.Fields.Project.Key)

	again, err := svc.ResolveEmail(ctx, id, "ness_bank")
	require.NoError(t, err)
	assert.Equal(t, domain.EmailDuplicateSkipped, again.Status)
	assert.Equal(t, "ness_auto", again.TenantID)

	ids, err = svc.ListPendingEmails(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIngestEmailResumesWithoutReclassifying(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.IngestEmail(ctx, vpnEmail("m-2"))
	require.NoError(t, err)

	redelivered := EmailInput{
		MessageID:    "m-2",
		Subject:      "I forgot my password",
		Body:         "please reset it",
		HeaderTenant: "ness_bank",
	}
	res, err := svc.IngestEmail(ctx, redelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.EmailProcessed, res.Status)
	assert.Equal(t, domain.IntentVPN, res.Intent)
	assert.Equal(t, "VPN down", res.Summary.Email.Subject)
}

func TestIngestEmailPendingWithoutTenantStaysPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.IngestEmail(ctx, vpnEmail("m-3"))
	require.NoError(t, err)
	res, err := svc.IngestEmail(ctx, vpnEmail("m-3"))
	require.NoError(t, err)
	assert.Equal(t, domain.EmailPendingTenant, res.Status)
}

func TestIngestEmailPlusAddress(t *testing.T) {
	svc, _ := newTestService(t)
	in := vpnEmail("m-4")
	in.To = "help+bank@helpdesk.example"

	res, err := svc.IngestEmail(t.Context(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.EmailProcessed, res.Status)
	assert.Equal(t, "ness_bank", res.TenantID)
}

func TestIngestEmailUnknownCandidateIgnoresPlusAddress(t *testing.T) {
	svc, _ := newTestService(t)
	in := vpnEmail("m-4b")
	in.To = "help+bank@helpdesk.example"
	in.HeaderTenant = "no_such_company"

	res, err := svc.IngestEmail(t.Context(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.EmailPendingTenant, res.Status)
	assert.Empty(t, res.TenantID)
}

func TestIngestEmailGenericCategory(t *testing.T) {
	svc, _ := newTestService(t)
	res, err := svc.IngestEmail(t.Context(), EmailInput{
		MessageID: "m-5",
		From:      "bob@corp.example",
		To:        "support@helpdesk.example",
		Subject:   "Outlook",
		Body:      "I cannot send anything since this morning",
		CompanyID: "ness_bank",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IntentEmail, res.Intent)
	assert.Equal(t, []string{"email", "escalated"}, res.InternalTags)
	assert.Equal(t, "I cannot send anything since this morning", res.Summary.Body)
	assert.Empty(t, res.Summary.OS)
	require.NotNil(t, res.Preview)
	assert.Equal(t, "Email issue: Outlook", res.Preview.Fields.Summary)
	assert.Equal(t, []string{"it-support", "vpn", "email-issue", "escalated"}, res.Preview.Fields.Labels)
}

func TestIngestEmailDuplicateWithoutReceipt(t *testing.T) {
	svc, st := newTestService(t)
	ctx := t.Context()
	require.NoError(t, st.MarkEmailProcessed(ctx, "m-6"))

	res, err := svc.IngestEmail(ctx, vpnEmail("m-6"))
	require.NoError(t, err)
	assert.Equal(t, domain.EmailDuplicateSkipped, res.Status)
	assert.Equal(t, "m-6", res.MessageID)
	assert.Equal(t, domain.IntentUnknown, res.Intent)
	assert.Zero(t, res.Confidence)
	assert.NotNil(t, res.InternalTags)
	assert.Empty(t, res.InternalTags)
}

func TestIngestEmailDuplicateIgnoresMalformedReceipt(t *testing.T) {
	svc, st := newTestService(t)
	ctx := t.Context()
	require.NoError(t, st.CompleteEmail(ctx, "m-7", domain.EmailResult{MessageID: "m-7"}))

	res, err := svc.IngestEmail(ctx, vpnEmail("m-7"))
	require.NoError(t, err)
	assert.Equal(t, domain.EmailDuplicateSkipped, res.Status)
	assert.Equal(t, domain.IntentUnknown, res.Intent)
}

func TestIngestEmailValidation(t *testing.T) {
	svc, _ := newTestService(t)
	for _, id := range []string{"", "ab", "  ab  "} {
		_, err := svc.IngestEmail(t.Context(), EmailInput{MessageID: id})
		assert.ErrorIs(t, err, ErrInvalidInput, "id %q", id)
	}
	long := make([]byte, MaxMessageIDLen+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := svc.IngestEmail(t.Context(), EmailInput{MessageID: string(long)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Limits count characters, not bytes.
	_, err = svc.IngestEmail(t.Context(), EmailInput{MessageID: "éé"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	res, err := svc.IngestEmail(t.Context(), EmailInput{
		MessageID: strings.Repeat("é", MaxMessageIDLen),
		Subject:   "VPN down",
		CompanyID: "ness_bank",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EmailProcessed, res.Status)
}

func TestResolveEmailErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.ResolveEmail(ctx, "m-8", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ResolveEmail(ctx, "", "ness_bank")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ResolveEmail(ctx, "m-8", "ness_bank")
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestIngestEmailProcessedCheckFailure(t *testing.T) {
	mem := store.NewMemoryStore(store.Options{}, logging.New(nil, "silent"))
	t.Cleanup(func() { mem.Close() })
	boom := errors.New("backend down")
	svc := newTestServiceWithStore(&failingStore{Store: mem, err: boom, failProcessed: true})

	_, err := svc.IngestEmail(t.Context(), vpnEmail("m-9"))
	assert.ErrorIs(t, err, boom)

	_, ok, err := mem.PendingEmail(t.Context(), "m-9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPendingEmailTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	svc, st := newTestService(t, WithClock(func() time.Time { return at }))

	_, err := svc.IngestEmail(t.Context(), vpnEmail("m-10"))
	require.NoError(t, err)

	p, ok, err := st.PendingEmail(t.Context(), "m-10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, at.Equal(p.CreatedAt))
	assert.Equal(t, domain.IntentVPN, p.Intent)
}
