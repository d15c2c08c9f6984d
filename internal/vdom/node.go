// Package vdom defines the virtual node tree produced by render programs,
// its HTML serialization and the surfaces trees are mounted to.
package vdom

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Kind distinguishes node types.
type Kind int

const (
	ElementNode Kind = iota
	TextNode
	CommentNode
)

func (k Kind) String() string {
	switch k {
	case ElementNode:
		return "element"
	case TextNode:
		return "text"
	case CommentNode:
		return "comment"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is delivered to listeners bound on a node.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Handler reacts to an event bound on a node.
type Handler func(Event) error

// Node is one virtual node.
type Node struct {
	Kind Kind
	Tag  string
	// Text is the content of text and comment nodes.
	Text string
	Key  string

	Attrs map[string]string
	Class []string
	Style map[string]string
	// Props are DOM properties: value, checked, textContent, innerHTML.
	Props map[string]any
	// Hidden is set by v-show when its expression is false.
	Hidden bool

	On       map[string][]Handler
	Children []*Node
}

// NewElement creates an element node.
func NewElement(tag string, children ...*Node) *Node {
	return &Node{Kind: ElementNode, Tag: tag, Children: children}
}

// NewText creates a text node.
func NewText(text string) *Node {
	return &Node{Kind: TextNode, Text: text}
}

// NewComment creates a comment node.
func NewComment(text string) *Node {
	return &Node{Kind: CommentNode, Text: text}
}

// AddListener binds h to event type name.
func (n *Node) AddListener(name string, h Handler) {
	if n.On == nil {
		n.On = make(map[string][]Handler)
	}
	n.On[name] = append(n.On[name], h)
}

// Fire runs the listeners bound to ev.Type in binding order.
func (n *Node) Fire(ev Event) error {
	handlers := n.On[ev.Type]
	if len(handlers) == 0 {
		return fmt.Errorf("no %q listener on <%s>", ev.Type, n.Tag)
	}
	for _, h := range handlers {
		if err := h(ev); err != nil {
			return err
		}
	}
	return nil
}

// Find follows a path of child indexes from n.
func (n *Node) Find(path []int) (*Node, error) {
	cur := n
	for depth, i := range path {
		if i < 0 || i >= len(cur.Children) {
			return nil, fmt.Errorf("path %v: index %d out of range at depth %d", path, i, depth)
		}
		cur = cur.Children[i]
	}
	return cur, nil
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the children of the visited node.
func (n *Node) Walk(fn func(path []int, node *Node) bool) {
	var visit func(path []int, node *Node)
	visit = func(path []int, node *Node) {
		if !fn(path, node) {
			return
		}
		for i, c := range node.Children {
			visit(append(slices.Clone(path), i), c)
		}
	}
	visit(nil, n)
}

// Listeners lists every bound event with the path of its node.
func (n *Node) Listeners() []Binding {
	var out []Binding
	n.Walk(func(path []int, node *Node) bool {
		for _, name := range slices.Sorted(maps.Keys(node.On)) {
			out = append(out, Binding{Path: path, Event: name, Tag: node.Tag})
		}
		return true
	})
	return out
}

// Binding describes an event listener location.
type Binding struct {
	Path  []int  `json:"path"`
	Event string `json:"event"`
	Tag   string `json:"tag"`
}

// HTML serializes the tree.
func (n *Node) HTML() (string, error) {
	if n == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n.toHTML()); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (n *Node) toHTML() *html.Node {
	switch n.Kind {
	case TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Text}
	case CommentNode:
		return &html.Node{Type: html.CommentNode, Data: n.Text}
	}

	el := &html.Node{Type: html.ElementNode, Data: n.Tag, DataAtom: atom.Lookup([]byte(n.Tag))}
	el.Attr = n.attributes()

	if raw, ok := n.Props["innerHTML"]; ok {
		el.AppendChild(&html.Node{Type: html.RawNode, Data: fmt.Sprint(raw)})
		return el
	}
	if text, ok := n.Props["textContent"]; ok {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: fmt.Sprint(text)})
		return el
	}
	if value, ok := n.Props["value"]; ok && n.Tag == "textarea" {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: fmt.Sprint(value)})
		return el
	}
	for _, c := range n.Children {
		el.AppendChild(c.toHTML())
	}
	return el
}

func (n *Node) attributes() []html.Attribute {
	attrs := make([]html.Attribute, 0, len(n.Attrs)+3)
	for _, k := range slices.Sorted(maps.Keys(n.Attrs)) {
		if k == "class" || k == "style" {
			continue
		}
		attrs = append(attrs, html.Attribute{Key: k, Val: n.Attrs[k]})
	}

	classes := slices.Clone(n.Class)
	if c := strings.TrimSpace(n.Attrs["class"]); c != "" {
		classes = append(strings.Fields(c), classes...)
	}
	if len(classes) > 0 {
		attrs = append(attrs, html.Attribute{Key: "class", Val: strings.Join(classes, " ")})
	}

	if style := n.styleText(); style != "" {
		attrs = append(attrs, html.Attribute{Key: "style", Val: style})
	}

	if n.Tag != "textarea" {
		if v, ok := n.Props["value"]; ok {
			attrs = append(attrs, html.Attribute{Key: "value", Val: fmt.Sprint(v)})
		}
	}
	if checked, ok := n.Props["checked"].(bool); ok && checked {
		attrs = append(attrs, html.Attribute{Key: "checked"})
	}
	return attrs
}

func (n *Node) styleText() string {
	var parts []string
	if s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n.Attrs["style"]), ";")); s != "" {
		parts = append(parts, s)
	}
	for _, k := range slices.Sorted(maps.Keys(n.Style)) {
		if k == "display" && n.Hidden {
			continue
		}
		parts = append(parts, k+": "+n.Style[k])
	}
	if n.Hidden {
		parts = append(parts, "display: none")
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// Count returns the number of nodes in the tree.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 0
	n.Walk(func([]int, *Node) bool {
		total++
		return true
	})
	return total
}
