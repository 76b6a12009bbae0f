package config

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// sections are the top-level keys of Config as they appear in YAML.
var sections = func() []string {
	t := reflect.TypeFor[Config]()
	out := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			out = append(out, name)
		}
	}
	return out
}()

// KeyPath addresses a value in the raw config document, e.g.
// "gateway.rateLimit.rps" or "tenants.0.projectKey".
type KeyPath []string

// ParseKeyPath splits a dotted key. The first segment must name a config
// section.
func ParseKeyPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	parts := strings.Split(raw, ".")
	if slices.Contains(parts, "") {
		return nil, &ConfigError{Message: fmt.Sprintf("config key %q has an empty segment", raw)}
	}
	if !slices.Contains(sections, parts[0]) {
		return nil, &ConfigError{Message: fmt.Sprintf("unknown config section %q (want one of %s)", parts[0], strings.Join(sections, ", "))}
	}
	return KeyPath(parts), nil
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// child steps one segment into a map or list node.
func child(node any, key string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[key]
		return v, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(n) {
			return nil, false
		}
		return n[i], true
	}
	return nil, false
}

// Get returns the value at k.
func (k KeyPath) Get(root map[string]any) (any, bool) {
	var node any = root
	for _, key := range k {
		var ok bool
		if node, ok = child(node, key); !ok {
			return nil, false
		}
	}
	return node, true
}

// Set stores value at k, creating missing maps along the way. List
// elements can be replaced but lists are never grown.
func (k KeyPath) Set(root map[string]any, value any) error {
	var node any = root
	for i, key := range k {
		last := i == len(k)-1
		switch n := node.(type) {
		case map[string]any:
			if last {
				n[key] = value
				return nil
			}
			next, ok := n[key].(map[string]any)
			if _, isList := n[key].([]any); isList {
				node = n[key]
				continue
			}
			if !ok {
				next = map[string]any{}
				n[key] = next
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(n) {
				return &ConfigError{Message: fmt.Sprintf("%s: no list element %q", k, key)}
			}
			if last {
				n[idx] = value
				return nil
			}
			node = n[idx]
		default:
			return &ConfigError{Message: fmt.Sprintf("%s: %s is not a section", k, KeyPath(k[:i]))}
		}
	}
	return nil
}

// Unset removes the map entry at k and reports whether it existed.
func (k KeyPath) Unset(root map[string]any) bool {
	parent, ok := k[:len(k)-1].Get(root)
	if !ok {
		return false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	last := k[len(k)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
