package domain

// Intent is the coarse category assigned to an inbound message.
type Intent string

const (
	IntentVPN           Intent = "VPN_ISSUE"
	IntentPasswordReset Intent = "PASSWORD_RESET"
	IntentEmail         Intent = "EMAIL_ISSUE"
	IntentGeneral       Intent = "GENERAL"
	IntentUnknown       Intent = "UNKNOWN"
)

// AllIntents lists every intent the classifier can produce.
var AllIntents = []Intent{
	IntentVPN,
	IntentPasswordReset,
	IntentEmail,
	IntentGeneral,
	IntentUnknown,
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	for _, known := range AllIntents {
		if i == known {
			return true
		}
	}
	return false
}

// Role identifies the author of a session message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a session transcript.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"message"`
}
