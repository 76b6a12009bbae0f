// Package classifier assigns a coarse intent to free-text support requests
// using keyword rules.
package classifier

import (
	"regexp"
	"strings"

	"github.com/soyeahso/triage/internal/domain"
)

// Confidence levels reported with each rule.
const (
	ConfidenceVPN      = 0.80
	ConfidencePassword = 0.80
	ConfidenceEmail    = 0.75
	ConfidenceFollowUp = 0.62
	ConfidenceUnknown  = 0.40
	ConfidenceGeneral  = 0.55
)

// minGeneralLength is the shortest text classified as GENERAL rather than UNKNOWN.
const minGeneralLength = 8

var (
	vpnPattern      = regexp.MustCompile(`\bvpn\b`)
	passwordPattern = regexp.MustCompile(`password|reset|forgot|locked out`)
	emailPattern    = regexp.MustCompile(`\bemail\b|outlook|gmail|can't send|cant send|can't receive|cant receive`)

	vaguePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bstill\b`),
		regexp.MustCompile(`\bnot working\b`),
		regexp.MustCompile(`\bdoesn't work\b`),
		regexp.MustCompile(`\bdoesnt work\b`),
		regexp.MustCompile(`\bfails?\b`),
		regexp.MustCompile(`\berror\b`),
		regexp.MustCompile(`\bissue\b`),
		regexp.MustCompile(`\bproblem\b`),
		regexp.MustCompile(`\berror[: ]*\d+\b`),
	}
)

// Classifier maps text to an intent and a confidence in [0,1].
type Classifier interface {
	Classify(text string, previous domain.Intent) (domain.Intent, float64)
}

// Rules is the keyword-rule classifier.
type Rules struct{}

// New returns the default keyword classifier.
func New() Rules { return Rules{} }

// Classify applies the rules in priority order. previous may be empty; when
// set, a vague follow-up ("still not working") inherits it.
func (Rules) Classify(text string, previous domain.Intent) (domain.Intent, float64) {
	t := strings.ToLower(strings.TrimSpace(text))

	switch {
	case vpnPattern.MatchString(t):
		return domain.IntentVPN, ConfidenceVPN
	case passwordPattern.MatchString(t):
		return domain.IntentPasswordReset, ConfidencePassword
	case emailPattern.MatchString(t):
		return domain.IntentEmail, ConfidenceEmail
	}

	if previous != "" && isVagueFollowUp(t) {
		return previous, ConfidenceFollowUp
	}

	if len(t) < minGeneralLength {
		return domain.IntentUnknown, ConfidenceUnknown
	}
	return domain.IntentGeneral, ConfidenceGeneral
}

func isVagueFollowUp(t string) bool {
	for _, p := range vaguePatterns {
		if p.MatchString(t) {
			return true
		}
	}
	return false
}
