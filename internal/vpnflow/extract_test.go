package vpnflow

import (
	"testing"

	"github.com/soyeahso/triage/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestExtractOS(t *testing.T) {
	tests := []struct {
		text string
		want domain.OS
	}{
		{"I'm on Windows 11", domain.OSWindows},
		{"win10 laptop", domain.OSWindows},
		{"MacBook Pro", domain.OSMac},
		{"running macos", domain.OSMac},
		{"Ubuntu 22.04", domain.OSLinux},
		{"from my iPhone", domain.OSOther},
		{"reboot the machine", ""},
		{"hello there", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractOS(tt.text))
		})
	}
}

func TestExtractClient(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Cisco AnyConnect", "AnyConnect"},
		{"global protect 6", "GlobalProtect"},
		{"GlobalProtect", "GlobalProtect"},
		{"FortiClient VPN", "FortiClient"},
		{"the forti thing", "FortiClient"},
		{"some other client", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractClient(tt.text))
		})
	}
}

func TestExtractSymptom(t *testing.T) {
	tests := []struct {
		text string
		want domain.Symptom
	}{
		{"I can’t connect", domain.SymptomCannotConnect},
		{"it won't connect", domain.SymptomCannotConnect},
		{"connected but no internal sites", domain.SymptomConnectsNoAccess},
		{"keeps disconnecting every hour", domain.SymptomDisconnects},
		{"it is unstable", domain.SymptomDisconnects},
		{"windows", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSymptom(tt.text))
		})
	}
}

func TestExtractErrorCode(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"619", "619"},
		{"error code: 809", "809"},
		{"Error-812 again", "812"},
		{"certificate error 619", "619"},
		{"certificate expired", domain.ErrorCertificate},
		{"request timed out", domain.ErrorTimeout},
		{"timeout", domain.ErrorTimeout},
		{"authentication failed", domain.ErrorAuthFailed},
		{"invalid credentials", domain.ErrorAuthFailed},
		{"error 12", ""},
		{"code 12345", ""},
		{"nothing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractErrorCode(tt.text))
		})
	}
}

func TestLooksLikeSuccess(t *testing.T) {
	assert.True(t, LooksLikeSuccess("it works now!"))
	assert.True(t, LooksLikeSuccess("Connected"))
	assert.True(t, LooksLikeSuccess("fixed, thanks"))
	assert.True(t, LooksLikeSuccess("successfully logged in"))
	assert.False(t, LooksLikeSuccess("disconnected again"))
	assert.False(t, LooksLikeSuccess("still failing"))
}

func TestLooksLikeFailure(t *testing.T) {
	assert.True(t, LooksLikeFailure("no"))
	assert.True(t, LooksLikeFailure("Nope."))
	assert.True(t, LooksLikeFailure("still failing"))
	assert.True(t, LooksLikeFailure("it doesn't work"))
	assert.True(t, LooksLikeFailure("same error as before"))
	assert.False(t, LooksLikeFailure("I don't know"))
	assert.False(t, LooksLikeFailure("nothing changed"))
	assert.False(t, LooksLikeFailure("windows"))
}
