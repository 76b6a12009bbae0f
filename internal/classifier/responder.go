package classifier

import "github.com/soyeahso/triage/internal/domain"

// Respond returns the canned reply for a non-VPN intent and whether the
// message needs a human.
func Respond(intent domain.Intent) (reply string, handoff bool) {
	switch intent {
	case domain.IntentVPN:
		return "VPN troubleshooting steps:\n" +
			"1) Disconnect and reconnect VPN.\n" +
			"2) Check your internet connection.\n" +
			"3) Restart the VPN client.\n" +
			"If you see an error code, paste it here.", false
	case domain.IntentPasswordReset:
		return "Password reset help:\n" +
			"1) Use the 'Forgot password' option.\n" +
			"2) Confirm which system you're trying to access.\n" +
			"3) Tell me if you see any specific error message.", false
	case domain.IntentEmail:
		return "Email issue troubleshooting:\n" +
			"• Are you unable to send, receive, or both?\n" +
			"• Which client are you using (Outlook, Gmail, web)?\n" +
			"• What error message do you see?", false
	case domain.IntentGeneral:
		return "Please describe:\n" +
			"• which system\n" +
			"• what exactly happened\n" +
			"• any error message\n" +
			"and I'll guide you.", false
	default:
		return "I'm not sure I understood. Please rephrase your issue in one sentence.", true
	}
}
