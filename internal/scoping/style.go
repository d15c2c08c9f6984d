package scoping

import (
	"fmt"
	"regexp"
	"strings"
)

// Strategy selects how styles are isolated.
type Strategy string

const (
	// StrategyAttribute wraps the whole sheet in a block keyed on the token:
	// "[token]{style}".
	StrategyAttribute Strategy = "attribute"
	// StrategySelector appends the token to every selector in the sheet.
	StrategySelector Strategy = "selector"
)

// ParseStrategy maps a config value to a Strategy. The empty string is the
// attribute strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyAttribute:
		return StrategyAttribute, nil
	case StrategySelector:
		return StrategySelector, nil
	default:
		return "", fmt.Errorf("unknown scoping strategy %q (want %q or %q)", name, StrategyAttribute, StrategySelector)
	}
}

var (
	blockComment = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	lineComment  = regexp.MustCompile(`(?m)^[ \t]*//.*$`)
)

// ScopeStyle rewrites style so that it only matches elements carrying token.
// An empty style stays empty.
func ScopeStyle(style string, token Token, strategy Strategy) string {
	if strings.TrimSpace(style) == "" {
		return ""
	}
	switch strategy {
	case StrategySelector:
		return scopeSelectors(style, token)
	default:
		return token.Selector() + "{" + style + "}"
	}
}

// StripComments removes block comments and whole-line "//" comments.
func StripComments(style string) string {
	style = blockComment.ReplaceAllString(style, "")
	return lineComment.ReplaceAllString(style, "")
}

func scopeSelectors(style string, token Token) string {
	return scopeBlock(StripComments(style), token)
}

// scopeBlock rewrites a sequence of statements: qualified rules get their
// selector lists scoped, grouping at-rules are scoped recursively and every
// other at-rule is copied verbatim.
func scopeBlock(css string, token Token) string {
	var out strings.Builder
	pos := 0
	for pos < len(css) {
		stop := indexStatementEnd(css, pos)
		if stop < 0 {
			out.WriteString(css[pos:])
			break
		}

		raw := css[pos:stop]
		trimmed := strings.TrimSpace(raw)
		out.WriteString(raw[:len(raw)-len(strings.TrimLeft(raw, " \t\r\n\f"))])

		if css[stop] == ';' || css[stop] == '}' {
			// Statement without a block, e.g. @import, or a stray brace.
			out.WriteString(trimmed)
			out.WriteByte(css[stop])
			pos = stop + 1
			continue
		}

		end := matchingBrace(css, stop)
		body := css[stop+1 : end]

		switch {
		case strings.HasPrefix(trimmed, "@"):
			out.WriteString(trimmed)
			out.WriteString(" {")
			if groupingAtRule(trimmed) {
				out.WriteString(scopeBlock(body, token))
			} else {
				out.WriteString(body)
			}
		default:
			out.WriteString(ScopeSelectorList(trimmed, token))
			out.WriteString(" {")
			out.WriteString(body)
		}

		if end < len(css) {
			out.WriteByte('}')
		}
		pos = end + 1
	}
	return out.String()
}

// ScopeSelectorList appends the token to every selector of a comma separated
// list. A selector containing ":" is split at the first colon and becomes
// "base[token] :pseudo".
func ScopeSelectorList(list string, token Token) string {
	parts := strings.Split(list, ",")
	scoped := make([]string, 0, len(parts))
	for _, sel := range parts {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if i := strings.Index(sel, ":"); i >= 0 {
			base := strings.TrimSpace(sel[:i])
			pseudo := strings.TrimSpace(sel[i:])
			scoped = append(scoped, base+token.Selector()+" "+pseudo)
			continue
		}
		scoped = append(scoped, sel+token.Selector())
	}
	return strings.Join(scoped, ", ")
}

func groupingAtRule(prelude string) bool {
	name := strings.ToLower(prelude)
	if i := strings.IndexAny(name, " \t\r\n({"); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "@media", "@supports", "@container", "@layer", "@document", "@-moz-document", "@scope":
		return true
	}
	return false
}

// indexStatementEnd finds the next '{', ';' or '}' at or after pos outside
// of quoted strings.
func indexStatementEnd(css string, pos int) int {
	var quote byte
	for i := pos; i < len(css); i++ {
		c := css[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{' || c == ';' || c == '}':
			return i
		}
	}
	return -1
}

// matchingBrace returns the index of the brace closing the one at open, or
// len(css) when the block is unterminated.
func matchingBrace(css string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(css); i++ {
		c := css[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(css)
}
