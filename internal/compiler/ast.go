package compiler

import (
	"strings"
)

// node is an element or a text node of the template tree.
type node interface {
	isStatic() bool
}

// textPart is a literal run or an interpolated expression.
type textPart struct {
	literal string
	expr    string
	isExpr  bool
}

type textNode struct {
	text  string
	parts []textPart
	pre   bool
}

func (t *textNode) hasExpr() bool {
	for _, p := range t.parts {
		if p.isExpr {
			return true
		}
	}
	return false
}

func (t *textNode) isStatic() bool { return !t.hasExpr() }

// binding is a generated "name: code" pair.
type binding struct {
	name string
	code string
}

// handler groups every listener bound to one event name.
type handler struct {
	name  string
	codes []string
}

// condition is one branch of a v-if chain. exp is empty for v-else.
type condition struct {
	exp string
	el  *element
}

type element struct {
	tag      string
	parent   *element
	children []node

	pre  bool
	once bool

	hasFor   bool
	forSrc   string
	forAlias string

	hasIf      bool
	ifExp      string
	isElseIf   bool
	elseIfExp  string
	isElse     bool
	conditions []condition

	key          string
	staticClass  string
	classBinding string
	staticStyle  string
	styleBinding string
	show         string

	attrs  []binding
	props  []binding
	events []handler

	dynamic bool

	static     bool
	staticRoot bool
}

func (e *element) isStatic() bool { return e.static }

// addEvent appends code to the listeners of name, keeping first-seen order.
func (e *element) addEvent(name, code string) {
	e.dynamic = true
	for i := range e.events {
		if e.events[i].name == name {
			e.events[i].codes = append(e.events[i].codes, code)
			return
		}
	}
	e.events = append(e.events, handler{name: name, codes: []string{code}})
}

func (e *element) addAttr(name, code string, dynamic bool) {
	if dynamic {
		e.dynamic = true
	}
	e.attrs = append(e.attrs, binding{name: name, code: code})
}

func (e *element) addProp(name, code string) {
	e.dynamic = true
	e.props = append(e.props, binding{name: name, code: code})
}

// staticAttr returns the literal value of a static attribute.
func (e *element) staticAttr(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.name == name && strings.HasPrefix(a.code, `"`) {
			return unquote(a.code), true
		}
	}
	return "", false
}

// lastElementChild returns the previous element sibling candidate for a
// v-else branch: the last child, skipping whitespace-only text.
func (e *element) lastElementChild() *element {
	for i := len(e.children) - 1; i >= 0; i-- {
		switch c := e.children[i].(type) {
		case *element:
			return c
		case *textNode:
			if strings.TrimSpace(c.text) != "" {
				return nil
			}
		}
	}
	return nil
}

// chainHead returns the element that owns the v-if chain el belongs to.
func chainHead(prev *element) *element {
	if prev == nil || !prev.hasIf {
		return nil
	}
	return prev
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// preservesWhitespace reports whether text in tag keeps its whitespace.
func preservesWhitespace(tag string) bool {
	return tag == "pre" || tag == "textarea"
}
