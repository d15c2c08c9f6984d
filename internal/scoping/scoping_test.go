package scoping

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sfclive/internal/errors"
)

func TestNewToken(t *testing.T) {
	pattern := regexp.MustCompile(`^data-v-[0-9a-f]{8}$`)

	seen := make(map[Token]bool)
	for i := 0; i < 50; i++ {
		tok := NewToken()
		assert.Regexp(t, pattern, tok.String())
		assert.True(t, tok.Valid())
		seen[tok] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestTokenValid(t *testing.T) {
	assert.True(t, Token("data-v-t1").Valid())
	assert.False(t, Token("data-v-").Valid())
	assert.False(t, Token("t1").Valid())
	assert.False(t, Token("data-v-a b").Valid())
	assert.Equal(t, "[data-v-t1]", Token("data-v-t1").Selector())
}

func TestScopeTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "single root",
			template: `<div class="card"><p>{{ msg }}</p></div>`,
			expected: `<div class="card" data-v-t1=""><p>{{ msg }}</p></div>`,
		},
		{
			name:     "surrounding whitespace and comments ignored",
			template: "\n  <!-- root -->\n  <section id=\"s\"></section>\n",
			expected: `<section id="s" data-v-t1=""></section>`,
		},
		{
			name:     "attribute names are lower-cased",
			template: `<div :myProp="x"></div>`,
			expected: `<div :myprop="x" data-v-t1=""></div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScopeTemplate(tt.template, Token("data-v-t1"))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestScopeTemplateRootMissing(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"empty", ""},
		{"whitespace", "   \n "},
		{"text root", "just text"},
		{"comment only", "<!-- nothing -->"},
		{"two roots", "<p>a</p><p>b</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScopeTemplate(tt.template, Token("data-v-t1"))
			assert.ErrorIs(t, err, errors.ErrTemplateRootMissing)
		})
	}
}

func TestRootTag(t *testing.T) {
	tag, err := RootTag(" <ul><li>x</li></ul> ")
	require.NoError(t, err)
	assert.Equal(t, "ul", tag)
}

func TestScopeStyleAttribute(t *testing.T) {
	got := ScopeStyle(".a { color: red; }", Token("data-v-t1"), StrategyAttribute)
	assert.Equal(t, "[data-v-t1]{.a { color: red; }}", got)

	assert.Equal(t, "", ScopeStyle("  \n", Token("data-v-t1"), StrategyAttribute))
}

func TestScopeStyleSelector(t *testing.T) {
	tok := Token("t1")

	tests := []struct {
		name     string
		style    string
		expected string
	}{
		{
			name:     "selector list with pseudo class",
			style:    ".a, .b:hover { color: red; }",
			expected: ".a[t1], .b[t1] :hover { color: red; }",
		},
		{
			name:     "several rules",
			style:    "p{margin:0}\n.x > .y { padding: 1px }",
			expected: "p[t1] {margin:0}\n.x > .y[t1] { padding: 1px }",
		},
		{
			name:     "comments stripped",
			style:    "/* header */\n// note\n.a { color: blue; }",
			expected: "\n\n.a[t1] { color: blue; }",
		},
		{
			name:     "urls keep their slashes",
			style:    ".bg { background: url(http://example.com/a.png); }",
			expected: ".bg[t1] { background: url(http://example.com/a.png); }",
		},
		{
			name:     "media query rules scoped",
			style:    "@media (max-width: 600px) { .a { color: red; } }",
			expected: "@media (max-width: 600px) { .a[t1] { color: red; } }",
		},
		{
			name:     "keyframes left intact",
			style:    "@keyframes spin { from { opacity: 0 } to { opacity: 1 } }",
			expected: "@keyframes spin { from { opacity: 0 } to { opacity: 1 } }",
		},
		{
			name:     "import statement kept",
			style:    "@import 'base.css';\n.a{}",
			expected: "@import 'base.css';\n.a[t1] {}",
		},
		{
			name:     "pseudo element",
			style:    "li::before { content: '{'; }",
			expected: "li[t1] ::before { content: '{'; }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ScopeStyle(tt.style, tok, StrategySelector))
		})
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyAttribute, s)

	s, err = ParseStrategy(" Selector ")
	require.NoError(t, err)
	assert.Equal(t, StrategySelector, s)

	_, err = ParseStrategy("shadow")
	assert.Error(t, err)
}
