// Package sanitizer rejects templates that use blocked tags, directives or
// event bindings before anything is compiled or executed.
package sanitizer

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/conneroisu/sfclive/internal/errors"
)

// Construct kinds reported in security violations.
const (
	KindTag       = "tag"
	KindDirective = "directive"
	KindEvent     = "event"
)

// Policy is the static table of constructs a template may not use.
type Policy struct {
	BlockedTags       []string `json:"blocked_tags" yaml:"blocked_tags"`
	BlockedDirectives []string `json:"blocked_directives" yaml:"blocked_directives"`
	BlockedEvents     []string `json:"blocked_events" yaml:"blocked_events"`
}

// DefaultPolicy returns the built-in table. The event list is empty: the gate
// exists but admits every event.
func DefaultPolicy() Policy {
	return Policy{
		BlockedTags:       []string{"script", "iframe", "svg", "canvas", "video", "audio"},
		BlockedDirectives: []string{"v-html"},
		BlockedEvents:     []string{},
	}
}

// Merge returns a policy containing the entries of p plus those of other,
// without duplicates. Names are compared case-insensitively.
func (p Policy) Merge(other Policy) Policy {
	return Policy{
		BlockedTags:       mergeNames(p.BlockedTags, other.BlockedTags),
		BlockedDirectives: mergeNames(p.BlockedDirectives, other.BlockedDirectives),
		BlockedEvents:     mergeNames(p.BlockedEvents, other.BlockedEvents),
	}
}

func mergeNames(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	fold := cases.Fold()
	for _, name := range slices.Concat(a, b) {
		name = strings.TrimSpace(name)
		key := fold.String(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

type rule struct {
	name    string
	pattern *regexp.Regexp
}

// Sanitizer checks template text against a Policy.
type Sanitizer struct {
	policy     Policy
	tags       []rule
	directives []rule
	events     []rule
}

// New compiles the matchers for policy.
func New(policy Policy) *Sanitizer {
	s := &Sanitizer{policy: policy}
	fold := cases.Fold()

	for _, tag := range policy.BlockedTags {
		name := fold.String(strings.TrimSpace(tag))
		if name == "" {
			continue
		}
		s.tags = append(s.tags, rule{
			name:    name,
			pattern: regexp.MustCompile(`</?\s*` + regexp.QuoteMeta(name) + `(?:[\s/>]|$)`),
		})
	}

	for _, directive := range policy.BlockedDirectives {
		name := fold.String(strings.TrimSpace(directive))
		if name == "" {
			continue
		}
		s.directives = append(s.directives, rule{
			name:    name,
			pattern: regexp.MustCompile(`(?:^|[\s"'])` + regexp.QuoteMeta(name) + `(?:\s*=|[\s/>]|$)`),
		})
	}

	for _, event := range policy.BlockedEvents {
		name := fold.String(strings.TrimPrefix(strings.TrimSpace(event), "@"))
		if name == "" {
			continue
		}
		s.events = append(s.events, rule{
			name:    name,
			pattern: regexp.MustCompile(`(?:@|v-on:)` + regexp.QuoteMeta(name) + `(?:[\s.=/>]|$)`),
		})
	}
	return s
}

// Policy returns the policy the sanitizer was built from.
func (s *Sanitizer) Policy() Policy {
	return s.policy
}

// CheckTags fails if the template contains an opening or closing blocked tag.
func (s *Sanitizer) CheckTags(template string) error {
	return check(KindTag, s.tags, template)
}

// CheckDirectives fails if the template uses a blocked directive attribute.
func (s *Sanitizer) CheckDirectives(template string) error {
	return check(KindDirective, s.directives, template)
}

// CheckEvents fails if the template binds a blocked event.
func (s *Sanitizer) CheckEvents(template string) error {
	return check(KindEvent, s.events, template)
}

// Check runs the tag, directive and event checks in that order.
func (s *Sanitizer) Check(template string) error {
	for _, fn := range []func(string) error{s.CheckTags, s.CheckDirectives, s.CheckEvents} {
		if err := fn(template); err != nil {
			return err
		}
	}
	return nil
}

func check(kind string, rules []rule, template string) error {
	if len(rules) == 0 || template == "" {
		return nil
	}
	folded := cases.Fold().String(template)
	for _, r := range rules {
		if r.pattern.MatchString(folded) {
			return errors.NewSecurityViolation(kind, r.name)
		}
	}
	return nil
}

// String describes the policy for logs.
func (p Policy) String() string {
	return fmt.Sprintf("tags=%v directives=%v events=%v", p.BlockedTags, p.BlockedDirectives, p.BlockedEvents)
}
