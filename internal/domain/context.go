package domain

// State is a position in the VPN troubleshooting dialog.
type State string

const (
	StateStart        State = "VPN_START"
	StateAskOS        State = "VPN_ASK_OS"
	StateAskClient    State = "VPN_ASK_CLIENT"
	StateAskSymptom   State = "VPN_ASK_SYMPTOM"
	StateAskErrorCode State = "VPN_ASK_ERROR_CODE"
	StateGiveSteps    State = "VPN_GIVE_STEPS"
	StateCheckResult  State = "VPN_CHECK_RESULT"
	StateHandoff      State = "VPN_HANDOFF"

	// StateEmailIngest marks summaries built from an email rather than a dialog.
	StateEmailIngest State = "EMAIL_INGEST"
)

// OS is the operating system the user reported.
type OS string

const (
	OSWindows OS = "windows"
	OSMac     OS = "mac"
	OSLinux   OS = "linux"
	OSOther   OS = "other"
)

// Symptom is the high-level failure mode of the VPN connection.
type Symptom string

const (
	SymptomCannotConnect    Symptom = "cannot_connect"
	SymptomConnectsNoAccess Symptom = "connects_no_access"
	SymptomDisconnects      Symptom = "disconnects"
	SymptomOther            Symptom = "other"
)

// Question tags the field the dialog is currently waiting on.
type Question string

const (
	QuestionOS        Question = "OS"
	QuestionClient    Question = "CLIENT"
	QuestionSymptom   Question = "SYMPTOM"
	QuestionErrorCode Question = "ERROR_CODE"
)

// Error code tokens produced for keyword-style errors. Numeric codes are kept
// verbatim ("619", "809", ...).
const (
	ErrorCertificate = "CERTIFICATE"
	ErrorAuthFailed  = "AUTH_FAILED"
	ErrorTimeout     = "TIMEOUT"
)

// Context is the per-session VPN dialog state. Empty strings mean "unknown".
type Context struct {
	State        State    `json:"state"`
	OS           OS       `json:"os,omitempty"`
	Client       string   `json:"client,omitempty"`
	Symptom      Symptom  `json:"symptom,omitempty"`
	ErrorCode    string   `json:"error_code,omitempty"`
	StepsGiven   []string `json:"steps_given"`
	AttemptCount int      `json:"attempt_count"`
	LastQuestion Question `json:"last_question,omitempty"`
}

// NewContext returns a fresh context at the start of the dialog.
func NewContext() Context {
	return Context{State: StateStart, StepsGiven: []string{}}
}

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	out := c
	out.StepsGiven = append([]string{}, c.StepsGiven...)
	return out
}

// Terminal reports whether the dialog has been handed off.
func (c Context) Terminal() bool {
	return c.State == StateHandoff
}

// Normalize repairs a context decoded from storage. An empty state is
// treated as a fresh dialog.
func (c *Context) Normalize() {
	if c.State == "" {
		c.State = StateStart
	}
	if c.StepsGiven == nil {
		c.StepsGiven = []string{}
	}
	if c.AttemptCount < 0 {
		c.AttemptCount = 0
	}
}
