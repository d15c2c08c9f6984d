package compiler

import (
	"strings"

	"golang.org/x/net/html"

	sfcerrors "github.com/conneroisu/sfclive/internal/errors"
)

// processAttrs turns raw attributes into directives and bindings on el.
func processAttrs(el *element, attrs []html.Attribute, diags *sfcerrors.Diagnostics) {
	for _, a := range attrs {
		if a.Key == "v-pre" {
			el.pre = true
			for _, other := range attrs {
				if other.Key != "v-pre" {
					el.addAttr(other.Key, jsString(other.Val), false)
				}
			}
			return
		}
	}

	for _, a := range attrs {
		name, value := a.Key, strings.TrimSpace(a.Val)
		switch {
		case name == "v-for":
			processFor(el, value, diags)
		case name == "v-if":
			el.hasIf = true
			el.ifExp = value
			el.conditions = []condition{{exp: value, el: el}}
			checkExpression(value, `v-if="`+value+`"`, diags)
		case name == "v-else-if":
			el.isElseIf = true
			el.elseIfExp = value
			checkExpression(value, `v-else-if="`+value+`"`, diags)
		case name == "v-else":
			el.isElse = true
		case name == "v-show":
			el.show = value
			el.dynamic = true
			checkExpression(value, `v-show="`+value+`"`, diags)
		case name == "v-text":
			el.addProp("textContent", "_s("+value+")")
			checkExpression(value, `v-text="`+value+`"`, diags)
		case name == "v-html":
			el.addProp("innerHTML", "_s("+value+")")
			checkExpression(value, `v-html="`+value+`"`, diags)
		case name == "v-model" || strings.HasPrefix(name, "v-model."):
			_, mods := splitModifiers(name)
			processModel(el, value, mods, attrs, diags)
		case name == "v-once":
			el.once = true
		case name == "v-cloak":
		case strings.HasPrefix(name, ":") || strings.HasPrefix(name, "v-bind:"):
			arg := strings.TrimPrefix(strings.TrimPrefix(name, "v-bind"), ":")
			processBind(el, arg, value, diags)
		case strings.HasPrefix(name, "@") || strings.HasPrefix(name, "v-on:"):
			arg := strings.TrimPrefix(strings.TrimPrefix(name, "v-on:"), "@")
			processOn(el, arg, value, diags)
		case name == "v-bind" || name == "v-on":
			diags.Add("%s without an argument is not supported on <%s>", name, el.tag)
		case strings.HasPrefix(name, "v-") || strings.HasPrefix(name, "#"):
			diags.Add("unknown directive %s on <%s>", strings.SplitN(name, ".", 2)[0], el.tag)
		default:
			processStaticAttr(el, name, a.Val)
		}
	}
}

func processStaticAttr(el *element, name, value string) {
	switch name {
	case "class":
		el.staticClass = strings.Join(strings.Fields(value), " ")
	case "style":
		el.staticStyle = strings.TrimSpace(value)
	case "key":
		el.key = jsString(value)
	default:
		el.addAttr(name, jsString(value), false)
	}
}

func processFor(el *element, value string, diags *sfcerrors.Diagnostics) {
	m := forExpression.FindStringSubmatch(value)
	if m == nil {
		diags.Add(`invalid v-for expression: "%s"`, value)
		return
	}
	alias := strings.TrimSpace(m[1])
	if alias == "" {
		alias = strings.TrimSpace(m[2])
	}
	if alias == "" {
		diags.Add(`invalid v-for alias in "%s"`, value)
		return
	}
	if err := validateParams(alias); err != nil {
		diags.Add(`invalid v-for alias "%s": %v`, alias, err)
		return
	}
	el.hasFor = true
	el.forAlias = alias
	el.forSrc = m[3]
	checkExpression(el.forSrc, `v-for="`+value+`"`, diags)
}

// splitModifiers separates "name.mod1.mod2" into the name and modifiers.
func splitModifiers(arg string) (string, map[string]bool) {
	parts := strings.Split(arg, ".")
	mods := make(map[string]bool, len(parts)-1)
	for _, m := range parts[1:] {
		mods[m] = true
	}
	return parts[0], mods
}

// mustUseProp reports whether a bound attribute is written as a DOM property.
func mustUseProp(tag, typ, attr string) bool {
	switch attr {
	case "value":
		return (tag == "input" && typ != "button") || tag == "textarea" || tag == "select" || tag == "option"
	case "checked":
		return tag == "input"
	case "selected":
		return tag == "option"
	case "muted":
		return tag == "video"
	}
	return false
}

func processBind(el *element, arg, value string, diags *sfcerrors.Diagnostics) {
	name, mods := splitModifiers(arg)
	if name == "" || strings.HasPrefix(name, "[") {
		diags.Add("dynamic or empty v-bind argument %q on <%s> is not supported", arg, el.tag)
		return
	}
	if !checkExpression(value, `:`+arg+`="`+value+`"`, diags) {
		return
	}
	code := "(" + value + ")"

	switch {
	case name == "key":
		el.key = code
		el.dynamic = true
	case name == "class":
		el.classBinding = code
		el.dynamic = true
	case name == "style":
		el.styleBinding = code
		el.dynamic = true
	case mods["prop"]:
		el.addProp(name, code)
	default:
		typ, _ := el.staticAttr("type")
		if mustUseProp(el.tag, typ, name) {
			el.addProp(name, code)
			return
		}
		el.addAttr(name, code, true)
	}
}

func processOn(el *element, arg, value string, diags *sfcerrors.Diagnostics) {
	name, _ := splitModifiers(arg)
	if name == "" || strings.HasPrefix(name, "[") {
		diags.Add("dynamic or empty v-on argument %q on <%s> is not supported", arg, el.tag)
		return
	}
	if value == "" {
		el.addEvent(name, "function($event){}")
		return
	}

	source := `@` + arg + `="` + value + `"`
	switch {
	case simplePath.MatchString(value) || functionLike.MatchString(value):
		if checkExpression(value, source, diags) {
			el.addEvent(name, value)
		}
	default:
		if checkStatements(value, source, diags) {
			el.addEvent(name, "function($event){"+value+"}")
		}
	}
}

func processModel(el *element, value string, mods map[string]bool, attrs []html.Attribute, diags *sfcerrors.Diagnostics) {
	source := `v-model="` + value + `"`
	if !checkAssignable(value, source, diags) {
		return
	}

	var typ string
	for _, a := range attrs {
		if a.Key == "type" {
			typ = strings.ToLower(a.Val)
		}
	}

	exp := "(" + value + ")"
	switch {
	case el.tag == "input" && typ == "checkbox":
		el.addProp("checked", "!!"+exp)
		el.addEvent("change", "function($event){"+value+"=$event.target.checked}")
	case el.tag == "input" && typ == "radio":
		radioValue := `""`
		for _, a := range attrs {
			switch a.Key {
			case "value":
				radioValue = jsString(a.Val)
			case ":value", "v-bind:value":
				radioValue = "(" + a.Val + ")"
			}
		}
		el.addProp("checked", "("+exp+"==="+radioValue+")")
		el.addEvent("change", "function($event){"+value+"="+radioValue+"}")
	case el.tag == "select":
		el.addProp("value", exp)
		el.addEvent("change", "function($event){"+value+"=$event.target.value}")
	case el.tag == "input" || el.tag == "textarea":
		assigned := "$event.target.value"
		if mods["trim"] {
			assigned = "String(" + assigned + ").trim()"
		}
		if mods["number"] {
			assigned = "Number(" + assigned + ")"
		}
		event := "input"
		if mods["lazy"] {
			event = "change"
		}
		el.addProp("value", exp)
		el.addEvent(event, "function($event){"+value+"="+assigned+"}")
	default:
		diags.Add("v-model is not supported on <%s>", el.tag)
	}
}
