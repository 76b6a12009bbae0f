// Package tagging derives the internal, tenant-independent tags attached to
// every handoff summary.
package tagging

import (
	"strings"

	"github.com/soyeahso/triage/internal/domain"
)

// Tag values shared with tenant label maps.
const (
	TagVPN          = "vpn"
	TagConnectivity = "connectivity"
	TagAccess       = "access"
	TagStability    = "stability"
	TagOther        = "other"
	TagCertificate  = "certificate"
	TagAuthFailed   = "auth_failed"
	TagTimeout      = "timeout"
	TagEscalated    = "escalated"
	TagPassword     = "password"
	TagEmail        = "email"
	TagGeneral      = "general"
	TagUnknown      = "unknown"
)

// Attach computes the tags for s and stores them in s.InternalTags. Calling
// it twice yields the same result.
func Attach(s *domain.HandoffSummary) {
	if s == nil {
		return
	}
	s.InternalTags = For(*s)
}

// For returns the internal tags for a summary without modifying it.
func For(s domain.HandoffSummary) []string {
	if s.Category == domain.IntentVPN {
		return VPN(s.Symptom, s.ErrorCode)
	}
	return Generic(s.Category)
}

// VPN builds the ordered tag list for a VPN handoff: domain, problem class,
// technical signal (if any) and the escalation marker.
func VPN(symptom domain.Symptom, errorCode string) []string {
	tags := []string{TagVPN, problemClass(symptom)}
	if sig := signal(errorCode); sig != "" {
		tags = append(tags, sig)
	}
	tags = append(tags, TagEscalated)
	return dedupe(tags)
}

// Generic returns the tags for a non-VPN category.
func Generic(category domain.Intent) []string {
	switch domain.Intent(strings.ToUpper(strings.TrimSpace(string(category)))) {
	case domain.IntentPasswordReset:
		return []string{TagPassword, TagEscalated}
	case domain.IntentEmail:
		return []string{TagEmail, TagEscalated}
	case domain.IntentGeneral:
		return []string{TagGeneral, TagEscalated}
	}
	return []string{TagUnknown, TagEscalated}
}

func problemClass(s domain.Symptom) string {
	switch domain.Symptom(strings.ToLower(strings.TrimSpace(string(s)))) {
	case domain.SymptomCannotConnect:
		return TagConnectivity
	case domain.SymptomConnectsNoAccess:
		return TagAccess
	case domain.SymptomDisconnects:
		return TagStability
	}
	return TagOther
}

// signal maps an error code to a tag: "619" -> "error_619",
// "CERTIFICATE" -> "certificate" and so on.
func signal(code string) string {
	s := strings.ToLower(strings.TrimSpace(code))
	switch {
	case s == "":
		return ""
	case isDigits(s):
		return "error_" + s
	case strings.Contains(s, "cert"):
		return TagCertificate
	case strings.Contains(s, "auth"):
		return TagAuthFailed
	case strings.Contains(s, "timeout"), strings.Contains(s, "timed out"):
		return TagTimeout
	}
	return strings.ReplaceAll(s, " ", "_")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
