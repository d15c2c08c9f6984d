// Package scoping generates per-render scope tokens and rewrites templates and
// styles so that a component's styles only apply to its own markup.
package scoping

import (
	"strings"

	"github.com/google/uuid"
)

// TokenPrefix starts every scope token.
const TokenPrefix = "data-v-"

// Token is a scope token such as "data-v-1a2b3c4d". It is used both as an
// attribute name on the template root and as an attribute selector in CSS.
type Token string

// String returns the token text.
func (t Token) String() string { return string(t) }

// Selector returns the CSS attribute selector for t.
func (t Token) Selector() string { return "[" + string(t) + "]" }

// Generator produces fresh tokens.
type Generator func() Token

// NewToken returns a token built from the first eight hex characters of a
// random UUID.
func NewToken() Token {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Token(TokenPrefix + id[:8])
}

// Valid reports whether t has the prefix followed by at least one character
// usable in an attribute name.
func (t Token) Valid() bool {
	s := string(t)
	if !strings.HasPrefix(s, TokenPrefix) || len(s) == len(TokenPrefix) {
		return false
	}
	for _, r := range s[len(TokenPrefix):] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return false
		}
	}
	return true
}
