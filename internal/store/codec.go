package store

import (
	"encoding/json"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
)

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeContext parses a stored dialog context. Corrupt values are logged
// and reported as absent.
func decodeContext(log *logging.Logger, key, raw string) (domain.Context, bool) {
	var c domain.Context
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("discarding malformed vpn context")
		return domain.Context{}, false
	}
	c.Normalize()
	return c, true
}

func decodeSummary(log *logging.Logger, key, raw string) (domain.HandoffSummary, bool) {
	var s domain.HandoffSummary
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.Category == "" {
		log.Warn().Err(err).Str("key", key).Msg("discarding malformed pending handoff")
		return domain.HandoffSummary{}, false
	}
	return s, true
}

func decodePending(log *logging.Logger, key, raw string) (domain.PendingEmail, bool) {
	var p domain.PendingEmail
	if err := json.Unmarshal([]byte(raw), &p); err != nil || !p.Valid() {
		log.Warn().Err(err).Str("key", key).Msg("discarding malformed pending email")
		return domain.PendingEmail{}, false
	}
	return p, true
}

func decodeReceipt(log *logging.Logger, key, raw string) (domain.EmailResult, bool) {
	var r domain.EmailResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil || !r.Valid() {
		log.Warn().Err(err).Str("key", key).Msg("discarding malformed email receipt")
		return domain.EmailResult{}, false
	}
	return r, true
}

func decodeMessage(raw string) (domain.Message, bool) {
	var m domain.Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return domain.Message{}, false
	}
	return m, true
}
