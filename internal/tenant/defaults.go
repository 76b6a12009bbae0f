package tenant

// Defaults returns the built-in tenants used when the configuration lists
// none.
func Defaults() []Tenant {
	return []Tenant{
		{
			ID:            "ness_bank",
			DisplayName:   "Ness Bank (Fake)",
			ProjectKey:    "BANK",
			IssueType:     "Incident",
			DefaultLabels: []string{"it-support", "vpn"},
			Component:     "Network",
			LabelMap: map[string][]string{
				"vpn":          {"vpn"},
				"connectivity": {"vpn-connectivity"},
				"access":       {"vpn-access"},
				"stability":    {"vpn-disconnect"},
				"certificate":  {"cert"},
				"auth_failed":  {"auth"},
				"timeout":      {"timeout"},
				"escalated":    {"escalated"},
				"error_619":    {"error-619"},
				"error_809":    {"error-809"},
				"error_812":    {"error-812"},
				"password":     {"password-reset"},
				"email":        {"email-issue"},
				"general":      {"it-general"},
				"unknown":      {"needs-triage"},
			},
		},
		{
			ID:            "ness_auto",
			DisplayName:   "Ness Auto (Fake)",
			ProjectKey:    "AUTO",
			IssueType:     "Service Request",
			DefaultLabels: []string{"helpdesk", "vpn"},
			Component:     "IT",
			LabelMap: map[string][]string{
				"vpn":          {"vpn"},
				"connectivity": {"network", "vpn-connection"},
				"access":       {"access", "vpn-access"},
				"stability":    {"unstable", "vpn-drop"},
				"certificate":  {"cert-issue"},
				"auth_failed":  {"login", "auth"},
				"timeout":      {"timeout"},
				"escalated":    {"handoff"},
				"error_619":    {"err-619"},
				"error_809":    {"err-809"},
				"error_812":    {"err-812"},
				"password":     {"pwd", "reset"},
				"email":        {"mail", "outlook"},
				"general":      {"general"},
				"unknown":      {"triage"},
			},
		},
	}
}

// DefaultAliases maps short plus-address tokens to built-in tenant ids.
func DefaultAliases() map[string]string {
	return map[string]string{
		"bank": "ness_bank",
		"auto": "ness_auto",
	}
}
