package vpnflow

import "github.com/soyeahso/triage/internal/domain"

var (
	connectivitySteps = []string{
		"Check internet connectivity (open a normal website)",
		"Verify system time/date is correct",
		"Try a different network (mobile hotspot) to rule out firewall/router blocks",
		"Restart the VPN client",
		"Reboot the machine and try again",
	}
	certificateSteps = []string{
		"Restart the VPN client",
		"Check if a certificate prompt appears and accept it (if applicable)",
		"If certificate is expired/missing, IT may need to re-issue it",
	}
	authSteps = []string{
		"Re-type username/password (check Caps Lock)",
		"If SSO: sign out/in via browser and retry",
		"If password was changed recently, wait a few minutes then retry",
	}
	timeoutSteps = []string{
		"Try a different network (hotspot) to avoid blocked VPN ports",
		"Restart the VPN client",
		"Reboot and retry",
	}
	genericSteps = []string{
		"Restart the VPN client",
		"Reboot the machine",
		"Try a different network (hotspot)",
	}
)

// connectivityCodes are the numeric errors that usually mean the tunnel
// never reached the gateway.
var connectivityCodes = map[string]bool{"619": true, "809": true, "812": true}

// StepsFor returns a fresh copy of the remediation script for an error code.
func StepsFor(errorCode string) []string {
	var src []string
	switch {
	case connectivityCodes[errorCode]:
		src = connectivitySteps
	case errorCode == domain.ErrorCertificate:
		src = certificateSteps
	case errorCode == domain.ErrorAuthFailed:
		src = authSteps
	case errorCode == domain.ErrorTimeout:
		src = timeoutSteps
	default:
		src = genericSteps
	}
	return append([]string{}, src...)
}
