package vpnflow

import (
	"regexp"
	"strings"

	"github.com/soyeahso/triage/internal/domain"
)

var (
	osPatterns = []struct {
		os domain.OS
		re *regexp.Regexp
	}{
		{domain.OSWindows, regexp.MustCompile(`windows|\bwin ?(?:11|10|7)\b`)},
		{domain.OSMac, regexp.MustCompile(`\b(?:mac|macos|osx|os x|macbook)\b`)},
		{domain.OSLinux, regexp.MustCompile(`\b(?:linux|ubuntu|debian|fedora|arch)\b`)},
		{domain.OSOther, regexp.MustCompile(`\b(?:android|iphone|ios|ipad)\b`)},
	}

	errorCodePattern = regexp.MustCompile(`\b(?:error\s*code\s*[:\-]?\s*|error\s*[:\-]?\s*|code\s*[:\-]?\s*)?(\d{3,4})\b`)

	successPattern = regexp.MustCompile(`\b(?:works now|fixed|resolved|it works|connected|success\w*|working now)\b`)
	failurePattern = regexp.MustCompile(`\b(?:still|doesn't|doesnt|not working|failed|same error|nope|no)\b`)
)

var symptomPhrases = []struct {
	symptom domain.Symptom
	phrases []string
}{
	{domain.SymptomCannotConnect, []string{"can't connect", "cannot connect", "won't connect", "fails to connect"}},
	{domain.SymptomConnectsNoAccess, []string{"connects but", "connected but", "no access", "can't access internal", "cannot access internal"}},
	{domain.SymptomDisconnects, []string{"disconnects", "drops", "keeps disconnecting", "unstable"}},
}

// normalize lowercases text and folds typographic apostrophes.
func normalize(text string) string {
	t := strings.ToLower(text)
	return strings.ReplaceAll(t, "’", "'")
}

// ExtractOS returns the operating system mentioned in text, or "".
func ExtractOS(text string) domain.OS {
	t := normalize(text)
	for _, p := range osPatterns {
		if p.re.MatchString(t) {
			return p.os
		}
	}
	return ""
}

// ExtractClient returns the normalized VPN client name mentioned in text, or "".
func ExtractClient(text string) string {
	t := normalize(text)
	switch {
	case strings.Contains(t, "anyconnect"):
		return "AnyConnect"
	case strings.Contains(t, "globalprotect"), strings.Contains(t, "global protect"):
		return "GlobalProtect"
	case strings.Contains(t, "forticlient"), strings.Contains(t, "forti"):
		return "FortiClient"
	}
	return ""
}

// ExtractSymptom returns the symptom category described in text, or "".
func ExtractSymptom(text string) domain.Symptom {
	t := normalize(text)
	for _, s := range symptomPhrases {
		for _, p := range s.phrases {
			if strings.Contains(t, p) {
				return s.symptom
			}
		}
	}
	return ""
}

// ExtractErrorCode returns a 3-4 digit error code, or one of the keyword
// tokens (CERTIFICATE, TIMEOUT, AUTH_FAILED), or "". Numeric codes win.
func ExtractErrorCode(text string) string {
	t := normalize(text)

	if m := errorCodePattern.FindStringSubmatch(t); m != nil {
		return m[1]
	}

	switch {
	case strings.Contains(t, "cert"):
		return domain.ErrorCertificate
	case strings.Contains(t, "timeout"), strings.Contains(t, "timed out"):
		return domain.ErrorTimeout
	case containsAny(t, "auth failed", "authentication failed", "login failed", "invalid credentials"):
		return domain.ErrorAuthFailed
	}
	return ""
}

// LooksLikeSuccess reports whether text reads as "it works now".
func LooksLikeSuccess(text string) bool {
	return successPattern.MatchString(normalize(text))
}

// LooksLikeFailure reports whether text reads as "still broken".
func LooksLikeFailure(text string) bool {
	return failurePattern.MatchString(normalize(text))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
