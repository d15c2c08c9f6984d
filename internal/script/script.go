// Package script evaluates the script section of a component into a
// component definition.
package script

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/sandbox"
)

// Hooks are the lifecycle hooks a definition may carry, in call order.
var Hooks = []string{
	"beforeCreate", "created",
	"beforeMount", "mounted",
	"beforeUpdate", "updated",
	"beforeDestroy", "destroyed",
}

var exportDefault = regexp.MustCompile(`^export\s+default\b`)

// PropSpec describes one declared prop.
type PropSpec struct {
	Name     string
	Type     string
	Required bool
	// Default is nil when the prop has no default. A callable default is a
	// factory and is invoked per instance.
	Default goja.Value
}

// Computed is one computed property. Get and Set are function objects so
// they can be installed as accessors; Set is nil for read-only properties.
type Computed struct {
	Name string
	Get  goja.Value
	Set  goja.Value
}

// Method is one entry of the methods option.
type Method struct {
	Name  string
	Fn    goja.Callable
	Value goja.Value
}

// Definition is the normalized component options object.
type Definition struct {
	Name string
	// Options is the evaluated options object, with data normalized.
	Options *goja.Object
	// Data is the data factory, nil when no data was declared.
	Data     goja.Callable
	Props    []PropSpec
	Methods  []Method
	Computed []Computed
	Hooks    map[string]goja.Callable
}

// Hook returns the named lifecycle hook, or nil.
func (d *Definition) Hook(name string) goja.Callable {
	return d.Hooks[name]
}

// Empty reports whether the definition declares nothing.
func (d *Definition) Empty() bool {
	return d.Data == nil && len(d.Props) == 0 && len(d.Methods) == 0 &&
		len(d.Computed) == 0 && len(d.Hooks) == 0 && d.Name == ""
}

// Strip removes a leading "export default" and trailing semicolons.
func Strip(source string) string {
	src := strings.TrimSpace(source)
	src = exportDefault.ReplaceAllString(src, "")
	return strings.TrimRight(strings.TrimSpace(src), "; \t\r\n")
}

// Evaluate parses source as a single object literal, evaluates it in rt and
// normalizes the result. An empty script yields an empty definition.
func Evaluate(rt *sandbox.Runtime, source string) (*Definition, error) {
	src := Strip(source)
	if src == "" {
		return &Definition{Options: rt.VM().NewObject(), Hooks: map[string]goja.Callable{}}, nil
	}

	if err := checkObjectLiteral(src); err != nil {
		return nil, errors.NewScriptEvaluationError(err)
	}

	v, err := rt.Run("component.js", "("+src+"\n)")
	if err != nil {
		return nil, errors.NewScriptEvaluationError(err)
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, errors.NewScriptEvaluationError(fmt.Errorf("script did not evaluate to an object"))
	}

	def, err := normalize(rt, v.ToObject(rt.VM()))
	if err != nil {
		return nil, errors.NewScriptEvaluationError(err)
	}
	return def, nil
}

// checkObjectLiteral requires src to be exactly one object literal
// expression.
func checkObjectLiteral(src string) error {
	prog, err := parser.ParseFile(nil, "component.js", "var options = "+src+"\n", 0)
	if err != nil {
		return err
	}
	if len(prog.Body) != 1 {
		return fmt.Errorf("script must contain a single default-exported object, found %d statements", len(prog.Body))
	}
	decl, ok := prog.Body[0].(*ast.VariableStatement)
	if !ok || len(decl.List) != 1 {
		return fmt.Errorf("script must contain a single default-exported object")
	}
	if _, ok := decl.List[0].Initializer.(*ast.ObjectLiteral); !ok {
		return fmt.Errorf("default export must be an object literal, got %T", decl.List[0].Initializer)
	}
	return nil
}

// constant builds a zero-argument JavaScript function returning v.
const constant = `(function (value) { return function data() { return value; }; })`

func normalize(rt *sandbox.Runtime, opts *goja.Object) (*Definition, error) {
	vm := rt.VM()
	def := &Definition{Options: opts, Hooks: map[string]goja.Callable{}}

	if name := opts.Get("name"); present(name) {
		def.Name = name.String()
	}

	if data := opts.Get("data"); present(data) {
		if fn, ok := goja.AssertFunction(data); ok {
			def.Data = fn
		} else {
			wrap, err := rt.Run("data.js", constant)
			if err != nil {
				return nil, fmt.Errorf("build data factory: %w", err)
			}
			wrapFn, _ := goja.AssertFunction(wrap)
			factory, err := wrapFn(goja.Undefined(), data)
			if err != nil {
				return nil, fmt.Errorf("build data factory: %w", err)
			}
			if err := opts.Set("data", factory); err != nil {
				return nil, fmt.Errorf("replace data option: %w", err)
			}
			def.Data, _ = goja.AssertFunction(factory)
		}
	}

	props, err := normalizeProps(vm, opts.Get("props"))
	if err != nil {
		return nil, err
	}
	def.Props = props

	if methods := opts.Get("methods"); present(methods) {
		obj := methods.ToObject(vm)
		for _, key := range obj.Keys() {
			value := obj.Get(key)
			fn, ok := goja.AssertFunction(value)
			if !ok {
				return nil, fmt.Errorf("method %q is not a function", key)
			}
			def.Methods = append(def.Methods, Method{Name: key, Fn: fn, Value: value})
		}
	}

	if computed := opts.Get("computed"); present(computed) {
		obj := computed.ToObject(vm)
		for _, key := range obj.Keys() {
			c, err := normalizeComputed(vm, key, obj.Get(key))
			if err != nil {
				return nil, err
			}
			def.Computed = append(def.Computed, c)
		}
	}

	for _, name := range Hooks {
		v := opts.Get(name)
		if !present(v) {
			continue
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return nil, fmt.Errorf("hook %q is not a function", name)
		}
		def.Hooks[name] = fn
	}

	return def, nil
}

func normalizeComputed(vm *goja.Runtime, name string, v goja.Value) (Computed, error) {
	if isFunction(v) {
		return Computed{Name: name, Get: v}, nil
	}
	if !present(v) {
		return Computed{}, fmt.Errorf("computed %q has no getter", name)
	}
	obj := v.ToObject(vm)
	get := obj.Get("get")
	if !isFunction(get) {
		return Computed{}, fmt.Errorf("computed %q has no getter", name)
	}
	c := Computed{Name: name, Get: get}
	if set := obj.Get("set"); present(set) {
		if !isFunction(set) {
			return Computed{}, fmt.Errorf("computed %q setter is not a function", name)
		}
		c.Set = set
	}
	return c, nil
}

func normalizeProps(vm *goja.Runtime, v goja.Value) ([]PropSpec, error) {
	if !present(v) {
		return nil, nil
	}
	obj := v.ToObject(vm)

	if obj.ClassName() == "Array" {
		var specs []PropSpec
		for _, item := range obj.Export().([]interface{}) {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("props array entries must be strings, got %T", item)
			}
			specs = append(specs, PropSpec{Name: name})
		}
		return specs, nil
	}

	var specs []PropSpec
	for _, name := range obj.Keys() {
		prop := PropSpec{Name: name}
		decl := obj.Get(name)
		switch {
		case !present(decl):
		case isFunction(decl):
			prop.Type = typeName(vm, decl)
		case decl.ToObject(vm).ClassName() == "Array":
			prop.Type = typeName(vm, decl)
		default:
			o := decl.ToObject(vm)
			if t := o.Get("type"); present(t) {
				prop.Type = typeName(vm, t)
			}
			if r := o.Get("required"); present(r) {
				prop.Required = r.ToBoolean()
			}
			if d := o.Get("default"); d != nil && !goja.IsUndefined(d) {
				prop.Default = d
			}
		}
		specs = append(specs, prop)
	}
	return specs, nil
}

func isFunction(v goja.Value) bool {
	if v == nil {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}

// typeName renders a prop type declaration such as String or [String, Number].
func typeName(vm *goja.Runtime, v goja.Value) string {
	obj := v.ToObject(vm)
	if obj.ClassName() == "Array" {
		var names []string
		for _, key := range obj.Keys() {
			names = append(names, typeName(vm, obj.Get(key)))
		}
		return strings.Join(names, "|")
	}
	if n := obj.Get("name"); present(n) {
		return n.String()
	}
	return v.String()
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
