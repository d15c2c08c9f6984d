package compiler

import (
	"strconv"
	"strings"
)

// Generation stages, in the order genElement applies them.
const (
	stageStatic = iota
	stageFor
	stageIf
	stageElement
)

type generator struct {
	staticFns []string
	inFor     int
}

// generate produces the render body and static render bodies for root.
func generate(root *element) (string, []string) {
	g := &generator{}
	code := g.genElement(root, stageStatic)
	return wrap(code), g.staticFns
}

func wrap(code string) string {
	return "with(this){return " + code + "}"
}

func (g *generator) genElement(el *element, from int) string {
	if from <= stageStatic && g.inFor == 0 && (el.staticRoot || (el.once && !el.hasFor && !el.hasIf)) {
		return g.genStatic(el)
	}
	if from <= stageFor && el.hasFor {
		return g.genFor(el)
	}
	if from <= stageIf && el.hasIf {
		return g.genIf(el.conditions)
	}
	if el.tag == "template" && !el.pre {
		return g.genChildren(el)
	}

	var b strings.Builder
	b.WriteString("_c(")
	b.WriteString(jsString(el.tag))
	if data := genData(el); data != "" {
		b.WriteString(",")
		b.WriteString(data)
	}
	if len(el.children) > 0 {
		b.WriteString(",")
		b.WriteString(g.genChildren(el))
	}
	b.WriteString(")")
	return b.String()
}

// genStatic hoists el into its own render function referenced as _m(i).
// Static functions are cached per instance, which also gives v-once its
// render-once behaviour.
func (g *generator) genStatic(el *element) string {
	i := len(g.staticFns)
	g.staticFns = append(g.staticFns, "")
	g.staticFns[i] = wrap(g.genElement(el, stageFor))
	return "_m(" + strconv.Itoa(i) + ")"
}

func (g *generator) genFor(el *element) string {
	g.inFor++
	body := g.genElement(el, stageIf)
	g.inFor--
	return "_l((" + el.forSrc + "),function(" + el.forAlias + "){return " + body + "})"
}

func (g *generator) genIf(conds []condition) string {
	if len(conds) == 0 {
		return "_e()"
	}
	c := conds[0]
	from := stageStatic
	if c.el.hasIf {
		from = stageElement
	}
	branch := g.genElement(c.el, from)
	if c.exp == "" {
		return branch
	}
	return "(" + c.exp + ")?" + branch + ":" + g.genIf(conds[1:])
}

func (g *generator) genChildren(el *element) string {
	parts := make([]string, 0, len(el.children))
	for _, c := range el.children {
		switch n := c.(type) {
		case *element:
			parts = append(parts, g.genElement(n, stageStatic))
		case *textNode:
			parts = append(parts, genText(n))
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func genText(t *textNode) string {
	if len(t.parts) == 0 {
		return "_v(" + jsString(t.text) + ")"
	}
	codes := make([]string, len(t.parts))
	for i, p := range t.parts {
		if p.isExpr {
			codes[i] = "_s(" + p.expr + ")"
		} else {
			codes[i] = jsString(p.literal)
		}
	}
	return "_v(" + strings.Join(codes, "+") + ")"
}

func genData(el *element) string {
	var fields []string
	if el.key != "" {
		fields = append(fields, "key:"+el.key)
	}
	if el.staticClass != "" {
		fields = append(fields, "staticClass:"+jsString(el.staticClass))
	}
	if el.classBinding != "" {
		fields = append(fields, "class:"+el.classBinding)
	}
	if el.staticStyle != "" {
		fields = append(fields, "staticStyle:"+jsString(el.staticStyle))
	}
	if el.styleBinding != "" {
		fields = append(fields, "style:"+el.styleBinding)
	}
	if len(el.attrs) > 0 {
		fields = append(fields, "attrs:"+genBindings(el.attrs))
	}
	if len(el.props) > 0 {
		fields = append(fields, "domProps:"+genBindings(el.props))
	}
	if len(el.events) > 0 {
		fields = append(fields, "on:"+genHandlers(el.events))
	}
	if el.show != "" {
		fields = append(fields, "show:("+el.show+")")
	}
	if len(fields) == 0 {
		return ""
	}
	return "{" + strings.Join(fields, ",") + "}"
}

func genBindings(bindings []binding) string {
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		parts[i] = jsString(b.name) + ":" + b.code
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func genHandlers(handlers []handler) string {
	parts := make([]string, len(handlers))
	for i, h := range handlers {
		code := h.codes[0]
		if len(h.codes) > 1 {
			code = "[" + strings.Join(h.codes, ",") + "]"
		}
		parts[i] = jsString(h.name) + ":" + code
	}
	return "{" + strings.Join(parts, ",") + "}"
}
