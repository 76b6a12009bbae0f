// Package vpnflow implements the guided VPN troubleshooting dialog. Step is a
// pure function of the incoming text and the stored context.
package vpnflow

import (
	"fmt"
	"strings"

	"github.com/soyeahso/triage/internal/domain"
)

// MaxAttempts is the number of remediation rounds before escalating.
const MaxAttempts = 2

// Fixed prompts.
const (
	QuestionOSText      = "Which OS are you on (Windows / Mac / Linux)?"
	QuestionClientText  = "Which VPN client are you using? (AnyConnect, GlobalProtect, FortiClient, etc.)"
	QuestionSymptomText = "What happens when you try to connect?\n" +
		"• Can't connect at all\n" +
		"• Connects but no internal access\n" +
		"• Disconnects / unstable"
	QuestionErrorCodeText = "Do you see an error code or message?\n" +
		"(e.g., 619 / 809 / certificate / auth failed)"
	CheckResultText = "Did the steps work?\n" +
		"Reply with 'works now' or 'still failing' and include any error message you see."
	SuccessText = "Nice, glad it's working now. " +
		"If it happens again, tell me the OS, client, and error code and we'll troubleshoot quickly."
	RestartText = "Let's start over. What OS are you on (Windows / Mac / Linux)?"
)

// Result is the outcome of one dialog step.
type Result struct {
	Context  domain.Context
	Reply    string
	Escalate bool
	Summary  *domain.HandoffSummary
}

// Step advances the dialog by one user message. The input context is not
// modified.
func Step(text string, in domain.Context) Result {
	ctx := in.Clone()
	ctx.Normalize()
	msg := strings.TrimSpace(text)

	if ctx.State == domain.StateHandoff {
		return handoff(ctx)
	}

	fill(&ctx, msg)

	if ctx.State != domain.StateCheckResult && (LooksLikeFailure(msg) || LooksLikeSuccess(msg)) {
		if reply, ok := askNextMissing(&ctx); ok {
			return Result{Context: ctx, Reply: reply}
		}
	}

	if ctx.State == domain.StateStart {
		ctx.State = firstMissingState(ctx)
	}

	switch ctx.State {
	case domain.StateAskOS, domain.StateAskClient, domain.StateAskSymptom, domain.StateAskErrorCode, domain.StateGiveSteps:
		if reply, ok := askNextMissing(&ctx); ok {
			return Result{Context: ctx, Reply: reply}
		}
		return giveSteps(ctx)

	case domain.StateCheckResult:
		return checkResult(ctx, msg)
	}

	ctx.State = domain.StateAskOS
	ctx.LastQuestion = domain.QuestionOS
	return Result{Context: ctx, Reply: RestartText}
}

// fill copies any newly mentioned field into ctx. Known fields are never
// overwritten.
func fill(ctx *domain.Context, msg string) {
	if ctx.OS == "" {
		ctx.OS = ExtractOS(msg)
	}
	if ctx.Client == "" {
		ctx.Client = ExtractClient(msg)
	}
	if ctx.Symptom == "" {
		ctx.Symptom = ExtractSymptom(msg)
	}
	if ctx.ErrorCode == "" {
		ctx.ErrorCode = ExtractErrorCode(msg)
	}
}

func firstMissingState(ctx domain.Context) domain.State {
	switch {
	case ctx.OS == "":
		return domain.StateAskOS
	case ctx.Client == "":
		return domain.StateAskClient
	case ctx.Symptom == "":
		return domain.StateAskSymptom
	case ctx.ErrorCode == "":
		return domain.StateAskErrorCode
	default:
		return domain.StateGiveSteps
	}
}

// askNextMissing moves ctx to the first unanswered question. It returns
// false, with ctx in GIVE_STEPS, when every field is known.
func askNextMissing(ctx *domain.Context) (string, bool) {
	ctx.State = firstMissingState(*ctx)
	switch ctx.State {
	case domain.StateAskOS:
		ctx.LastQuestion = domain.QuestionOS
		return QuestionOSText, true
	case domain.StateAskClient:
		ctx.LastQuestion = domain.QuestionClient
		return QuestionClientText, true
	case domain.StateAskSymptom:
		ctx.LastQuestion = domain.QuestionSymptom
		return QuestionSymptomText, true
	case domain.StateAskErrorCode:
		ctx.LastQuestion = domain.QuestionErrorCode
		return QuestionErrorCodeText, true
	}
	ctx.LastQuestion = ""
	return "", false
}

func giveSteps(ctx domain.Context) Result {
	ctx.AttemptCount++
	ctx.StepsGiven = StepsFor(ctx.ErrorCode)
	ctx.State = domain.StateCheckResult
	ctx.LastQuestion = ""

	var b strings.Builder
	b.WriteString("Thanks. Try these steps:\n")
	for i, s := range ctx.StepsGiven {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d) %s", i+1, s)
	}
	b.WriteString("\n\nAfter trying them, reply with what happened (works now / still failing + any new error).")
	return Result{Context: ctx, Reply: b.String()}
}

func checkResult(ctx domain.Context, msg string) Result {
	if LooksLikeSuccess(msg) {
		ctx.State = domain.StateStart
		ctx.AttemptCount = 0
		ctx.ErrorCode = ""
		ctx.StepsGiven = []string{}
		ctx.LastQuestion = ""
		return Result{Context: ctx, Reply: SuccessText}
	}

	if LooksLikeFailure(msg) {
		if ctx.AttemptCount >= MaxAttempts {
			ctx.State = domain.StateHandoff
			return handoff(ctx)
		}
		if code := ExtractErrorCode(msg); code != "" {
			ctx.ErrorCode = code
		}
		return giveSteps(ctx)
	}

	return Result{Context: ctx, Reply: CheckResultText}
}

func handoff(ctx domain.Context) Result {
	summary := domain.SummaryFromContext(ctx)
	return Result{
		Context:  ctx,
		Reply:    HandoffReply(summary),
		Escalate: true,
		Summary:  &summary,
	}
}

// HandoffReply renders the escalation message for a summary.
func HandoffReply(s domain.HandoffSummary) string {
	steps := "N/A"
	if len(s.StepsGiven) > 0 {
		steps = strings.Join(s.StepsGiven, ", ")
	}
	return "I'm going to escalate this to IT support.\n" +
		"Here's what I collected for the handoff:\n" +
		fmt.Sprintf("- OS: %s\n", orUnknown(string(s.OS))) +
		fmt.Sprintf("- VPN client: %s\n", orUnknown(s.Client)) +
		fmt.Sprintf("- Symptom: %s\n", orUnknown(string(s.Symptom))) +
		fmt.Sprintf("- Error: %s\n", orUnknown(s.ErrorCode)) +
		fmt.Sprintf("- Attempts: %d\n", s.AttemptCount) +
		fmt.Sprintf("- Steps tried: %s\n\n", steps) +
		"This case is now with IT. If you want to start a new troubleshooting attempt, create a new session (or delete this session)."
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
