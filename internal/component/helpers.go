package component

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/conneroisu/sfclive/internal/vdom"
)

// throw raises err as a JavaScript exception from inside a native function.
func (in *Instance) throw(err error) {
	if ex, ok := err.(*goja.Exception); ok {
		panic(ex.Value())
	}
	panic(in.vm.NewGoError(err))
}

// createElement is _c(tag, data?, children?).
func (in *Instance) createElement(call goja.FunctionCall) goja.Value {
	node := vdom.NewElement(call.Argument(0).String())

	data, children := call.Argument(1), call.Argument(2)
	if isArray(data) {
		data, children = nil, data
	}
	if present(data) {
		if err := in.applyData(node, data.ToObject(in.vm)); err != nil {
			in.throw(err)
		}
	}
	node.Children = flatten(nil, exportValue(children))
	return in.vm.ToValue(node)
}

// createText is _v(text).
func (in *Instance) createText(call goja.FunctionCall) goja.Value {
	return in.vm.ToValue(vdom.NewText(call.Argument(0).String()))
}

// toDisplayString is _s(value): empty for null and undefined, indented
// JSON for objects and arrays, String(value) otherwise.
func (in *Instance) toDisplayString(call goja.FunctionCall) goja.Value {
	return in.vm.ToValue(displayString(call.Argument(0)))
}

func displayString(v goja.Value) string {
	if !present(v) {
		return ""
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(obj); !isFn {
			if out, err := json.MarshalIndent(obj, "", "  "); err == nil {
				return string(out)
			}
		}
	}
	return v.String()
}

// renderList is _l(source, fn): arrays map (item, index), numbers map
// 1..n, strings map characters and objects map (value, key, index).
func (in *Instance) renderList(call goja.FunctionCall) goja.Value {
	source := call.Argument(0)
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		in.throw(fmt.Errorf("_l: render callback is not a function"))
	}

	var out []interface{}
	apply := func(args ...goja.Value) {
		v, err := fn(goja.Undefined(), args...)
		if err != nil {
			in.throw(err)
		}
		out = append(out, v)
	}

	switch {
	case !present(source):
	case isArray(source):
		obj := source.ToObject(in.vm)
		n := obj.Get("length").ToInteger()
		for i := int64(0); i < n; i++ {
			apply(obj.Get(strconv.FormatInt(i, 10)), in.vm.ToValue(i))
		}
	case isNumber(source):
		n := source.ToInteger()
		for i := int64(0); i < n; i++ {
			apply(in.vm.ToValue(i+1), in.vm.ToValue(i))
		}
	case isString(source):
		for i, r := range []rune(source.String()) {
			apply(in.vm.ToValue(string(r)), in.vm.ToValue(i))
		}
	default:
		obj := source.ToObject(in.vm)
		for i, key := range obj.Keys() {
			apply(obj.Get(key), in.vm.ToValue(key), in.vm.ToValue(i))
		}
	}
	return in.vm.NewArray(out...)
}

// renderStatic is _m(i). Static trees are rendered once per instance.
func (in *Instance) renderStatic(call goja.FunctionCall) goja.Value {
	i := int(call.Argument(0).ToInteger())
	if cached, ok := in.staticTrees[i]; ok {
		return cached
	}
	if i < 0 || i >= len(in.program.StaticRenderFns) {
		in.throw(fmt.Errorf("_m: no static render function %d", i))
	}
	v, err := in.program.StaticRenderFns[i](in.ctx, in.c, in.v, in.s)
	if err != nil {
		in.throw(err)
	}
	in.staticTrees[i] = v
	return v
}

// emptyNode is _e().
func (in *Instance) emptyNode(goja.FunctionCall) goja.Value {
	return in.vm.ToValue(vdom.NewComment(""))
}

func (in *Instance) applyData(node *vdom.Node, data *goja.Object) error {
	if key := data.Get("key"); present(key) {
		node.Key = key.String()
	}
	if sc := data.Get("staticClass"); present(sc) {
		node.Class = append(node.Class, strings.Fields(sc.String())...)
	}
	if cls := data.Get("class"); present(cls) {
		node.Class = append(node.Class, in.classList(cls)...)
	}
	if ss := data.Get("staticStyle"); present(ss) {
		setAttr(node, "style", ss.String())
	}
	if st := data.Get("style"); present(st) {
		in.mergeStyle(node, st)
	}
	if attrs := data.Get("attrs"); present(attrs) {
		obj := attrs.ToObject(in.vm)
		for _, k := range obj.Keys() {
			v := obj.Get(k)
			switch {
			case !present(v):
			case isBool(v):
				if v.ToBoolean() {
					setAttr(node, k, "")
				}
			default:
				setAttr(node, k, v.String())
			}
		}
	}
	if props := data.Get("domProps"); present(props) {
		obj := props.ToObject(in.vm)
		for _, k := range obj.Keys() {
			if node.Props == nil {
				node.Props = make(map[string]any)
			}
			node.Props[k] = obj.Get(k).Export()
		}
	}
	if on := data.Get("on"); present(on) {
		obj := on.ToObject(in.vm)
		for _, name := range obj.Keys() {
			if err := in.bindListeners(node, name, obj.Get(name)); err != nil {
				return err
			}
		}
	}
	if show := data.Get("show"); show != nil && !goja.IsUndefined(show) {
		node.Hidden = !show.ToBoolean()
	}
	return nil
}

func (in *Instance) bindListeners(node *vdom.Node, name string, v goja.Value) error {
	if isArray(v) {
		obj := v.ToObject(in.vm)
		for _, k := range obj.Keys() {
			if err := in.bindListeners(node, name, obj.Get(k)); err != nil {
				return err
			}
		}
		return nil
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return fmt.Errorf("handler for %q on <%s> is not a function", name, node.Tag)
	}
	node.AddListener(name, func(ev vdom.Event) error {
		_, err := fn(in.ctx, in.eventObject(ev))
		return err
	})
	return nil
}

// eventObject builds the $event value: the payload fields plus type and a
// target carrying value and checked.
func (in *Instance) eventObject(ev vdom.Event) goja.Value {
	obj := in.vm.NewObject()
	target := in.vm.NewObject()
	for k, v := range ev.Payload {
		_ = obj.Set(k, v)
		if k == "value" || k == "checked" {
			_ = target.Set(k, v)
		}
	}
	_ = obj.Set("type", ev.Type)
	if _, ok := ev.Payload["target"]; !ok {
		_ = obj.Set("target", target)
	}
	return obj
}

func (in *Instance) classList(v goja.Value) []string {
	switch {
	case !present(v):
		return nil
	case isString(v):
		return strings.Fields(v.String())
	case isArray(v):
		var out []string
		obj := v.ToObject(in.vm)
		for _, k := range obj.Keys() {
			out = append(out, in.classList(obj.Get(k))...)
		}
		return out
	case isObjectValue(v):
		var out []string
		obj := v.ToObject(in.vm)
		for _, k := range obj.Keys() {
			if obj.Get(k).ToBoolean() {
				out = append(out, k)
			}
		}
		return out
	default:
		return strings.Fields(v.String())
	}
}

func (in *Instance) mergeStyle(node *vdom.Node, v goja.Value) {
	if node.Style == nil {
		node.Style = make(map[string]string)
	}
	switch {
	case !present(v):
	case isString(v):
		for _, decl := range strings.Split(v.String(), ";") {
			name, value, ok := strings.Cut(decl, ":")
			if ok && strings.TrimSpace(name) != "" {
				node.Style[strings.TrimSpace(name)] = strings.TrimSpace(value)
			}
		}
	case isArray(v):
		obj := v.ToObject(in.vm)
		for _, k := range obj.Keys() {
			in.mergeStyle(node, obj.Get(k))
		}
	default:
		obj := v.ToObject(in.vm)
		for _, k := range obj.Keys() {
			if val := obj.Get(k); present(val) && val.String() != "" {
				node.Style[hyphenate(k)] = val.String()
			}
		}
	}
}

func setAttr(node *vdom.Node, name, value string) {
	if node.Attrs == nil {
		node.Attrs = make(map[string]string)
	}
	node.Attrs[name] = value
}

// hyphenate converts camelCase style names to kebab-case.
func hyphenate(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// flatten turns exported render output into a flat child list: arrays are
// spliced, strings and numbers become text and null or booleans are dropped.
func flatten(out []*vdom.Node, x interface{}) []*vdom.Node {
	switch v := x.(type) {
	case nil, bool:
		return out
	case *vdom.Node:
		return append(out, v)
	case []interface{}:
		for _, item := range v {
			out = flatten(out, item)
		}
		return out
	case string:
		return append(out, vdom.NewText(v))
	default:
		return append(out, vdom.NewText(fmt.Sprint(v)))
	}
}

func exportValue(v goja.Value) interface{} {
	if !present(v) {
		return nil
	}
	return v.Export()
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

func isArray(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	return ok && obj.ClassName() == "Array"
}

func isObjectValue(v goja.Value) bool {
	_, ok := v.(*goja.Object)
	return ok
}

func exportKind(v goja.Value) reflect.Kind {
	if v == nil || isObjectValue(v) || v.ExportType() == nil {
		return reflect.Invalid
	}
	return v.ExportType().Kind()
}

func isString(v goja.Value) bool {
	return exportKind(v) == reflect.String
}

func isNumber(v goja.Value) bool {
	switch exportKind(v) {
	case reflect.Int, reflect.Int64, reflect.Float64:
		return true
	}
	return false
}

func isBool(v goja.Value) bool {
	return exportKind(v) == reflect.Bool
}
