package compiler

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	sfcerrors "github.com/conneroisu/sfclive/internal/errors"
)

var (
	interpolation  = regexp.MustCompile(`\{\{([\s\S]*?)\}\}`)
	whitespaceRun  = regexp.MustCompile(`[ \t\r\n\f]+`)
	forExpression  = regexp.MustCompile(`^\s*(?:\(([\s\S]*?)\)|([\s\S]*?))\s+(?:in|of)\s+([\s\S]+?)\s*$`)
	simplePath     = regexp.MustCompile(`^[A-Za-z_$][\w$]*(?:\.[A-Za-z_$][\w$]*|\['[^']*'\]|\["[^"]*"\]|\[\d+\]|\[[A-Za-z_$][\w$]*\])*$`)
	functionLike   = regexp.MustCompile(`^(?:[\w$]+|\([^)]*?\))\s*=>|^function(?:\s+[\w$]+)?\s*\(`)
	directiveNames = map[string]bool{
		"v-if": true, "v-else-if": true, "v-else": true, "v-for": true,
		"v-show": true, "v-text": true, "v-html": true, "v-model": true,
		"v-once": true, "v-cloak": true, "v-pre": true,
	}
)

// parser builds the element tree from template markup.
type parser struct {
	diags *sfcerrors.Diagnostics
	root  *element
	stack []*element
	// preDepth is the stack depth of the outermost v-pre element, or -1.
	preDepth int
}

func parse(template string, diags *sfcerrors.Diagnostics) *element {
	p := &parser{diags: diags, preDepth: -1}
	z := html.NewTokenizer(strings.NewReader(template))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				diags.Add("failed to tokenize template: %v", err)
			}
			break
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken:
			p.start(tok, voidElements[tok.Data])
		case html.SelfClosingTagToken:
			p.start(tok, true)
		case html.EndTagToken:
			p.end(tok.Data)
		case html.TextToken:
			p.text(tok.Data)
		}
	}

	for i := len(p.stack) - 1; i >= 0; i-- {
		diags.Add("element <%s> was not closed", p.stack[i].tag)
	}
	if p.root == nil {
		diags.Add("template has no root element")
		return nil
	}
	finalize(p.root)
	return p.root
}

func (p *parser) inPre() bool {
	return p.preDepth >= 0
}

func (p *parser) current() *element {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1]
}

func (p *parser) start(tok html.Token, selfClosing bool) {
	el := &element{tag: tok.Data, parent: p.current()}
	if p.inPre() {
		el.pre = true
		for _, a := range tok.Attr {
			el.addAttr(a.Key, jsString(a.Val), false)
		}
	} else {
		processAttrs(el, tok.Attr, p.diags)
	}

	if !p.attach(el) {
		return
	}

	if !selfClosing {
		p.stack = append(p.stack, el)
		if el.pre && !p.inPre() {
			p.preDepth = len(p.stack) - 1
		}
	}
}

// attach links el into the tree and reports whether it was accepted.
func (p *parser) attach(el *element) bool {
	parent := p.current()

	if el.isElse || el.isElseIf {
		var prev *element
		if parent == nil {
			prev = p.root
		} else {
			prev = parent.lastElementChild()
		}
		head := chainHead(prev)
		if head == nil {
			name := "v-else"
			if el.isElseIf {
				name = "v-else-if"
			}
			p.diags.Add("%s used on element <%s> without corresponding v-if", name, el.tag)
			return true
		}
		if last := head.conditions[len(head.conditions)-1]; last.exp == "" {
			p.diags.Add("v-else-if/v-else on element <%s> follows a v-else", el.tag)
		}
		head.conditions = append(head.conditions, condition{exp: el.elseIfExp, el: el})
		el.parent = parent
		return true
	}

	if parent == nil {
		if p.root != nil {
			p.diags.Add("template must have exactly one root element, found another <%s>", el.tag)
			return true
		}
		if el.tag == "template" {
			p.diags.Add("cannot use <template> as the root element")
		}
		if el.hasFor {
			p.diags.Add("cannot use v-for on the root element")
		}
		p.root = el
		return true
	}

	parent.children = append(parent.children, el)
	return true
}

func (p *parser) end(tag string) {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].tag != tag {
			continue
		}
		for j := len(p.stack) - 1; j > i; j-- {
			p.diags.Add("element <%s> was not closed", p.stack[j].tag)
		}
		p.stack = p.stack[:i]
		if p.preDepth >= len(p.stack) {
			p.preDepth = -1
		}
		return
	}
	if !voidElements[tag] {
		p.diags.Add("stray end tag </%s>", tag)
	}
}

func (p *parser) text(data string) {
	parent := p.current()
	if parent == nil {
		if strings.TrimSpace(data) != "" {
			p.diags.Add("text %q outside the root element", strings.TrimSpace(data))
		}
		return
	}
	t := &textNode{text: data, pre: p.inPre()}
	parent.children = append(parent.children, t)
}

// finalize condenses whitespace and splits interpolations once the tree is
// complete, so that each text node knows its siblings.
func finalize(el *element) {
	keep := preservesWhitespace(el.tag) || el.pre
	out := el.children[:0]
	for i, c := range el.children {
		switch n := c.(type) {
		case *element:
			finalize(n)
			for _, cond := range n.conditions[min(1, len(n.conditions)):] {
				finalize(cond.el)
			}
			out = append(out, n)
		case *textNode:
			if !keep {
				if strings.TrimSpace(n.text) == "" {
					if i == 0 || i == len(el.children)-1 || strings.ContainsAny(n.text, "\r\n") {
						continue
					}
					n.text = " "
				} else {
					n.text = whitespaceRun.ReplaceAllString(n.text, " ")
				}
			}
			n.parts = splitText(n.text, n.pre)
			out = append(out, n)
		}
	}
	el.children = out
}

func splitText(text string, pre bool) []textPart {
	if pre {
		return []textPart{{literal: text}}
	}
	var parts []textPart
	last := 0
	for _, m := range interpolation.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			parts = append(parts, textPart{literal: text[last:m[0]]})
		}
		parts = append(parts, textPart{expr: strings.TrimSpace(text[m[2]:m[3]]), isExpr: true})
		last = m[1]
	}
	if last < len(text) {
		parts = append(parts, textPart{literal: text[last:]})
	}
	return parts
}

// validateText reports invalid interpolations in the subtree of el.
func validateText(el *element, diags *sfcerrors.Diagnostics) {
	for _, c := range el.children {
		switch n := c.(type) {
		case *element:
			validateText(n, diags)
			for _, cond := range n.conditions[min(1, len(n.conditions)):] {
				validateText(cond.el, diags)
			}
		case *textNode:
			for _, part := range n.parts {
				if part.isExpr {
					checkExpression(part.expr, "{{ "+part.expr+" }}", diags)
				}
			}
		}
	}
}
