package scoping

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/sfclive/internal/errors"
)

// ScopeTemplate parses template as an HTML fragment in a <body> context,
// adds token as an empty attribute on its single root element and serializes
// the result. Whitespace and comments around the root are dropped.
//
// The parser follows the browser's rules, so attribute names come back
// lower-cased.
func ScopeTemplate(template string, token Token) (string, error) {
	root, err := parseRoot(template)
	if err != nil {
		return "", err
	}

	root.Attr = append(root.Attr, html.Attribute{Key: string(token)})

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", errors.NewInternalError("RENDER_TEMPLATE", "failed to serialize template", err)
	}
	return buf.String(), nil
}

// RootTag returns the tag name of the single root element of template.
func RootTag(template string) (string, error) {
	root, err := parseRoot(template)
	if err != nil {
		return "", err
	}
	return root.Data, nil
}

func parseRoot(template string) (*html.Node, error) {
	if strings.TrimSpace(template) == "" {
		return nil, errors.NewTemplateRootMissing("template is empty")
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(template), body)
	if err != nil {
		return nil, errors.NewTemplateRootMissing("template could not be parsed").WithContext("cause", err.Error())
	}

	var roots []*html.Node
	for _, n := range nodes {
		switch n.Type {
		case html.CommentNode:
			continue
		case html.TextNode:
			if strings.TrimSpace(n.Data) == "" {
				continue
			}
			return nil, errors.NewTemplateRootMissing("template root must be an element, found text")
		case html.ElementNode:
			roots = append(roots, n)
		}
	}

	switch len(roots) {
	case 0:
		return nil, errors.NewTemplateRootMissing("template has no root element")
	case 1:
		return roots[0], nil
	default:
		return nil, errors.NewTemplateRootMissing(
			fmt.Sprintf("template must have exactly one root element, found %d", len(roots)))
	}
}
