// Package ignore suppresses SecurityEvents matching allow-listed benign
// patterns, applied after fusion.
package ignore

import (
	"regexp"
	"strings"

	"github.com/mlidstrom/castellan/internal/event"
)

// Rule is one ignore-list entry. All non-nil fields must match for the
// rule to suppress an event; a nil field matches anything.
type Rule struct {
	EventType      *event.EventType `yaml:"event_type,omitempty"`
	MitreTechnique *string          `yaml:"mitre_technique,omitempty"`
	Channel        *string          `yaml:"channel,omitempty"`
	EventID        *int             `yaml:"event_id,omitempty"`
	// UserPattern supports glob wildcards ("*" matches any run of
	// characters, "?" matches exactly one), grounded on the same
	// compile-to-regex approach as a {variable} pattern resolver.
	UserPattern *string `yaml:"user_pattern,omitempty"`

	compiledUser *regexp.Regexp
}

// Service evaluates a SecurityEvent against a compiled rule list.
type Service struct {
	rules []Rule
}

// New compiles rules into a Service. Rules with an invalid UserPattern
// glob are skipped rather than failing construction: malformed optional
// config degrades gracefully instead of blocking startup.
func New(rules []Rule) *Service {
	compiled := make([]Rule, 0, len(rules))

	for _, r := range rules {
		if r.UserPattern != nil {
			re, err := compileGlob(*r.UserPattern)
			if err != nil {
				continue
			}

			r.compiledUser = re
		}

		compiled = append(compiled, r)
	}

	return &Service{rules: compiled}
}

// ShouldIgnore is a pure predicate: true iff se matches every non-nil field
// of at least one configured rule.
func (s *Service) ShouldIgnore(se event.SecurityEvent) bool {
	for _, r := range s.rules {
		if ruleMatches(r, se) {
			return true
		}
	}

	return false
}

func ruleMatches(r Rule, se event.SecurityEvent) bool {
	if r.EventType != nil && *r.EventType != se.EventType {
		return false
	}

	if r.Channel != nil && *r.Channel != se.LogEvent.Channel {
		return false
	}

	if r.EventID != nil && *r.EventID != se.LogEvent.EventID {
		return false
	}

	if r.MitreTechnique != nil && !containsString(se.MitreTechniques, *r.MitreTechnique) {
		return false
	}

	if r.compiledUser != nil && !r.compiledUser.MatchString(se.LogEvent.User) {
		return false
	}

	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}

	return false
}

// compileGlob turns a "*"/"?" glob into an anchored regex.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder

	b.WriteString("^")

	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}

	b.WriteString("$")

	return regexp.Compile(b.String())
}
