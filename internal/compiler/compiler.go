// Package compiler turns template markup into an executable render program.
//
// Compilation is split in two. Compile is pure: it parses the markup,
// validates directives and expressions, marks static sub-trees and generates
// the JavaScript bodies of the render routines. Link turns those bodies into
// callable functions inside a sandbox runtime. Every generated function takes
// exactly three parameters, the node factory _c, the text factory _v and the
// stringifier _s, and resolves everything else through "this", the component
// render context.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	sfcerrors "github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/sandbox"
)

// RenderParams are the only parameters of every generated routine.
var RenderParams = []string{"_c", "_v", "_s"}

// RenderDescription is the generated code for a template.
type RenderDescription struct {
	// Render is the body of the main render routine.
	Render string `json:"render"`
	// StaticRenderFns are bodies for hoisted static sub-trees, referenced
	// from Render as _m(i).
	StaticRenderFns []string `json:"staticRenderFns"`
	// Root is the tag of the root element.
	Root string `json:"root"`
}

// String lists the routines, one per line.
func (d *RenderDescription) String() string {
	var b strings.Builder
	b.WriteString("render: ")
	b.WriteString(d.Render)
	for i, fn := range d.StaticRenderFns {
		fmt.Fprintf(&b, "\nstatic[%d]: %s", i, fn)
	}
	return b.String()
}

// Compile parses and validates template and generates its render
// description. All problems are reported together in one
// TemplateCompileError.
func Compile(template string) (*RenderDescription, error) {
	var diags sfcerrors.Diagnostics

	root := parse(template, &diags)
	if root != nil {
		validateText(root, &diags)
	}
	if err := diags.Err(); err != nil {
		return nil, err
	}

	markStatic(root)
	markStaticRoots(root, false)

	render, statics := generate(root)
	if statics == nil {
		statics = []string{}
	}
	return &RenderDescription{
		Render:          render,
		StaticRenderFns: statics,
		Root:            root.tag,
	}, nil
}

// Program is a linked render description.
type Program struct {
	Render          goja.Callable
	StaticRenderFns []goja.Callable
	Description     *RenderDescription
}

// Link builds the render routines of desc inside rt. The functions are
// created from code text, so they close over nothing but the restricted
// globals of rt.
func Link(rt *sandbox.Runtime, desc *RenderDescription) (*Program, error) {
	if desc == nil {
		return nil, sfcerrors.NewInternalError("LINK_NIL_DESCRIPTION", "no render description to link", nil)
	}

	render, err := rt.Function("render", RenderParams, desc.Render)
	if err != nil {
		return nil, sfcerrors.NewTemplateCompileError(sfcerrors.Diagnostics{err.Error()})
	}

	prog := &Program{
		Render:          render,
		StaticRenderFns: make([]goja.Callable, len(desc.StaticRenderFns)),
		Description:     desc,
	}
	for i, body := range desc.StaticRenderFns {
		fn, err := rt.Function("static"+strconv.Itoa(i), RenderParams, body)
		if err != nil {
			return nil, sfcerrors.NewTemplateCompileError(sfcerrors.Diagnostics{err.Error()})
		}
		prog.StaticRenderFns[i] = fn
	}
	return prog, nil
}
