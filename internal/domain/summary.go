package domain

import "encoding/json"

// EmailMeta identifies the email a summary was built from.
type EmailMeta struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
}

// HandoffSummary is the snapshot of a case handed to IT support. It is an
// independent copy: later changes to the dialog context never alter it.
type HandoffSummary struct {
	Category     Intent     `json:"category"`
	State        State      `json:"state"`
	OS           OS         `json:"os,omitempty"`
	Client       string     `json:"client,omitempty"`
	Symptom      Symptom    `json:"symptom,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	AttemptCount int        `json:"attempt_count"`
	StepsGiven   []string   `json:"steps_given,omitempty"`
	InternalTags []string   `json:"internal_tags,omitempty"`
	Email        *EmailMeta `json:"email,omitempty"`
	Body         string     `json:"body,omitempty"`
}

// MarshalJSON always writes the VPN detail keys so the summary has a fixed
// shape; unknown values are null.
func (s HandoffSummary) MarshalJSON() ([]byte, error) {
	type plain HandoffSummary
	return json.Marshal(struct {
		plain
		OS        *OS      `json:"os"`
		Client    *string  `json:"client"`
		Symptom   *Symptom `json:"symptom"`
		ErrorCode *string  `json:"error_code"`
	}{plain(s), orNull(s.OS), orNull(s.Client), orNull(s.Symptom), orNull(s.ErrorCode)})
}

func orNull[T ~string](v T) *T {
	if v == "" {
		return nil
	}
	return &v
}

// SummaryFromContext snapshots a VPN dialog context.
func SummaryFromContext(c Context) HandoffSummary {
	return HandoffSummary{
		Category:     IntentVPN,
		State:        c.State,
		OS:           c.OS,
		Client:       c.Client,
		Symptom:      c.Symptom,
		ErrorCode:    c.ErrorCode,
		AttemptCount: c.AttemptCount,
		StepsGiven:   append([]string{}, c.StepsGiven...),
	}
}

// Clone returns a deep copy of s.
func (s HandoffSummary) Clone() HandoffSummary {
	out := s
	if s.StepsGiven != nil {
		out.StepsGiven = append([]string{}, s.StepsGiven...)
	}
	if s.InternalTags != nil {
		out.InternalTags = append([]string{}, s.InternalTags...)
	}
	if s.Email != nil {
		e := *s.Email
		out.Email = &e
	}
	return out
}
