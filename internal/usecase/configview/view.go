// Package configview provides the read-only resolved view over the
// hierarchical configuration (§4.1): typed, case-insensitive lookups
// with scope inheritance (global ⊂ Backup <host> ⊂ BackupDirectory <path>).
package configview

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Scope is one level of the configuration tree. Scalars are
// first-wins within a scope (outermost definition loses to an inner
// override only via the parent chain, never within one scope); list
// keys accumulate across repeated directives in the same scope.
type Scope struct {
	Name     string
	Param    string // block parameter, e.g. the host name or directory path
	Parent   *Scope
	scalars  map[string]string
	lists    map[string][]string
	children []*Scope
}

// NewScope creates a root or nested scope.
func NewScope(name, param string, parent *Scope) *Scope {
	s := &Scope{
		Name:    name,
		Param:   param,
		Parent:  parent,
		scalars: map[string]string{},
		lists:   map[string][]string{},
	}
	if parent != nil {
		parent.children = append(parent.children, s)
	}
	return s
}

// SetScalar records a scalar key (first occurrence in this scope wins;
// later occurrences of the same key in the same scope are ignored,
// matching the "first-wins for scalars" rule in §9).
func (s *Scope) SetScalar(key, value string) {
	k := strings.ToLower(key)
	if _, exists := s.scalars[k]; exists {
		return
	}
	s.scalars[k] = value
}

// AppendList accumulates a multi-valued directive (§4.1: Directory,
// Exclude, DestinationList all accumulate across occurrences).
func (s *Scope) AppendList(key string, values ...string) {
	k := strings.ToLower(key)
	s.lists[k] = append(s.lists[k], values...)
}

// Children returns nested scopes in declaration order.
func (s *Scope) Children() []*Scope {
	return s.children
}

// ChildrenNamed returns nested scopes whose block name matches (case-insensitive).
func (s *Scope) ChildrenNamed(name string) []*Scope {
	var out []*Scope
	for _, c := range s.children {
		if strings.EqualFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out
}

// lookupScalar walks from this scope outward to the root, returning
// the first scope (innermost wins) that defines key.
func (s *Scope) lookupScalar(key string) (string, bool) {
	k := strings.ToLower(key)
	for sc := s; sc != nil; sc = sc.Parent {
		if v, ok := sc.scalars[k]; ok {
			return v, true
		}
	}
	return "", false
}

// lookupList accumulates key's values from every scope in the chain,
// innermost first, matching "inner scopes inherit all keys" (§4.1).
func (s *Scope) lookupList(key string) []string {
	k := strings.ToLower(key)
	var out []string
	for sc := s; sc != nil; sc = sc.Parent {
		out = append(out, sc.lists[k]...)
	}
	return out
}

// String returns a scalar value, or def if unset anywhere in the chain.
func (s *Scope) String(key, def string) string {
	if v, ok := s.lookupScalar(key); ok {
		return v
	}
	return def
}

// StringList returns an accumulated list value.
func (s *Scope) StringList(key string) []string {
	return s.lookupList(key)
}

// Bool coerces a scalar to boolean per §4.1: "yes|y|on|true|1"
// (case-insensitive, non-alphanumeric stripped) is true, else false.
func (s *Scope) Bool(key string, def bool) bool {
	v, ok := s.lookupScalar(key)
	if !ok {
		return def
	}
	return ParseBool(v)
}

// ParseBool implements the §4.1 boolean coercion rule.
func ParseBool(raw string) bool {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	switch b.String() {
	case "yes", "y", "on", "true", "1":
		return true
	default:
		return false
	}
}

// Uint coerces a scalar to a non-negative integer.
func (s *Scope) Uint(key string, def uint) (uint, error) {
	v, ok := s.lookupScalar(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q as uint: %w", key, v, err)
	}
	return uint(n), nil
}

// Duration coerces a scalar to a time.Duration via ParseDuration.
func (s *Scope) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := s.lookupScalar(key)
	if !ok {
		return def, nil
	}
	return ParseDuration(v)
}

// ParseDuration accepts "<N>[ ]?<unit>" where unit matches a prefix of
// s/sec…, m/min…, h/hour…, d/day…, w/week… (§4.1). Returns an error on
// an unrecognized unit.
func ParseDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("empty duration")
	}
	i := 0
	for i < len(trimmed) && (trimmed[i] == '-' || trimmed[i] == '+' || (trimmed[i] >= '0' && trimmed[i] <= '9') || trimmed[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("duration %q has no numeric magnitude", raw)
	}
	numPart := trimmed[:i]
	unitPart := strings.ToLower(strings.TrimSpace(trimmed[i:]))

	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration magnitude %q: %w", numPart, err)
	}

	var unitSeconds float64
	switch {
	case unitPart == "" || isPrefixOf(unitPart, "seconds") || isPrefixOf(unitPart, "secs"):
		unitSeconds = 1
	case isPrefixOf(unitPart, "minutes"):
		unitSeconds = 60
	case isPrefixOf(unitPart, "hours"):
		unitSeconds = 3600
	case isPrefixOf(unitPart, "days"):
		unitSeconds = 86400
	case isPrefixOf(unitPart, "weeks"):
		unitSeconds = 604800
	default:
		return 0, fmt.Errorf("duration %q: unknown unit %q", raw, unitPart)
	}
	return time.Duration(n * unitSeconds * float64(time.Second)), nil
}

// isPrefixOf reports whether unit is a non-empty prefix of full, per
// the "unit matches prefix of" rule in §4.1 (e.g. "sec" and "second"
// both match "seconds").
func isPrefixOf(unit, full string) bool {
	if unit == "" {
		return false
	}
	return strings.HasPrefix(full, unit)
}
