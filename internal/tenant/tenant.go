// Package tenant holds the static registry of tenants (companies) that
// escalations can be routed to, and the rules for picking one from user
// input.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

// Tenant is one company's ticketing configuration.
type Tenant struct {
	ID            string              `yaml:"id" json:"id"`
	DisplayName   string              `yaml:"displayName" json:"display_name"`
	ProjectKey    string              `yaml:"projectKey" json:"project_key"`
	IssueType     string              `yaml:"issueType" json:"issue_type"`
	DefaultLabels []string            `yaml:"defaultLabels,omitempty" json:"default_labels,omitempty"`
	Component     string              `yaml:"component,omitempty" json:"component,omitempty"`
	LabelMap      map[string][]string `yaml:"labelMap,omitempty" json:"label_map,omitempty"`
}

// Registry is an immutable set of tenants plus plus-address aliases.
type Registry struct {
	order   []string
	byID    map[string]Tenant
	aliases map[string]string
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9_\-]+`)

// NewRegistry validates and indexes tenants. Ids are matched
// case-insensitively. Aliases must point at a registered tenant.
func NewRegistry(tenants []Tenant, aliases map[string]string) (*Registry, error) {
	if len(tenants) == 0 {
		return nil, fmt.Errorf("tenant registry: no tenants configured")
	}
	r := &Registry{
		byID:    make(map[string]Tenant, len(tenants)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, t := range tenants {
		id := normalizeID(t.ID)
		if id == "" {
			return nil, fmt.Errorf("tenant registry: tenant with empty id")
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("tenant registry: duplicate tenant id %q", id)
		}
		t.ID = id
		t.LabelMap = normalizeLabelMap(t.LabelMap)
		r.byID[id] = t
		r.order = append(r.order, id)
	}
	for alias, target := range aliases {
		a, id := normalizeID(alias), normalizeID(target)
		if _, ok := r.byID[id]; !ok {
			return nil, fmt.Errorf("tenant registry: alias %q points at unknown tenant %q", alias, target)
		}
		r.aliases[a] = id
	}
	return r, nil
}

// Default returns the registry of built-in tenants.
func Default() *Registry {
	r, err := NewRegistry(Defaults(), DefaultAliases())
	if err != nil {
		panic(err)
	}
	return r
}

// IDs returns the registered tenant ids in configuration order.
func (r *Registry) IDs() []string {
	return append([]string{}, r.order...)
}

// Lookup returns the tenant registered under id.
func (r *Registry) Lookup(id string) (Tenant, bool) {
	t, ok := r.byID[normalizeID(id)]
	return t, ok
}

// Resolve turns a candidate string into a tenant. The whole candidate is
// tried as an id, then as an alias, then each word of it as an id.
func (r *Registry) Resolve(candidate string) (Tenant, bool) {
	c := normalizeID(candidate)
	if c == "" {
		return Tenant{}, false
	}
	if t, ok := r.byID[c]; ok {
		return t, true
	}
	if id, ok := r.aliases[c]; ok {
		return r.byID[id], true
	}
	for _, tok := range tokenSplit.Split(c, -1) {
		if t, ok := r.byID[tok]; ok {
			return t, true
		}
	}
	return Tenant{}, false
}

// AskMessage is the reply sent when an escalation is blocked on a tenant id.
func (r *Registry) AskMessage() string {
	return "Before I can escalate this to IT, I need the company ID.\n" +
		"Please reply with one of: " + strings.Join(r.order, ", ")
}

// InferFromAddress resolves a tenant from a plus-addressed recipient such as
// "support+ness_bank@example.com" or an alias like "support+bank@...".
func (r *Registry) InferFromAddress(to string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(to))
	local, _, ok := strings.Cut(s, "@")
	if !ok {
		return "", false
	}
	_, token, ok := strings.Cut(local, "+")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", false
	}
	if _, ok := r.byID[token]; ok {
		return token, true
	}
	if id, ok := r.aliases[token]; ok {
		return id, true
	}
	return "", false
}

// Labels maps internal tags to the tenant's ticket labels. Default labels
// come first, unmapped tags are dropped and duplicates removed in order.
func (t Tenant) Labels(tags []string) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(l string) {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			return
		}
		seen[l] = true
		out = append(out, l)
	}
	for _, l := range t.DefaultLabels {
		add(l)
	}
	for _, tag := range tags {
		for _, l := range t.LabelMap[strings.ToLower(strings.TrimSpace(tag))] {
			add(l)
		}
	}
	return out
}

// PickCandidate applies the tenant precedence: explicit header, then the
// body field, then the message text itself.
func PickCandidate(header, body, message string) string {
	for _, s := range []string{header, body, message} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func normalizeLabelMap(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
