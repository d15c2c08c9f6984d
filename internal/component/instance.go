// Package component runs a component definition against a linked render
// program: it builds the render context, renders virtual trees, mounts them
// to a surface and dispatches events back into the component.
package component

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dop251/goja"

	"github.com/conneroisu/sfclive/internal/compiler"
	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/logging"
	"github.com/conneroisu/sfclive/internal/sandbox"
	"github.com/conneroisu/sfclive/internal/script"
	"github.com/conneroisu/sfclive/internal/vdom"
)

// EventHandler receives the arguments of this.$emit(name, ...args).
type EventHandler func(args ...any)

// Config carries per-instance input.
type Config struct {
	Props      map[string]any
	ScopeToken string
	Logger     logging.Logger
}

// State is the lifecycle state of an instance.
type State string

const (
	StateCreated   State = "created"
	StateMounted   State = "mounted"
	StateDestroyed State = "destroyed"
)

// bindSource builds a function calling fn with ctx as this.
const bindSource = `(function (fn, ctx) { return function () { return fn.apply(ctx, arguments); }; })`

// Instance is one live component.
type Instance struct {
	mu sync.Mutex

	rt      *sandbox.Runtime
	vm      *goja.Runtime
	def     *script.Definition
	program *compiler.Program
	logger  logging.Logger
	token   string

	ctx     *goja.Object
	c, v, s goja.Value

	props       *goja.Object
	data        *goja.Object
	attrs       map[string]any
	dataKeys    []string
	staticTrees map[int]goja.Value
	listeners   map[string][]EventHandler

	tree    *vdom.Node
	surface vdom.Surface
	state   State
}

// New builds the render context for def and runs the beforeCreate and
// created hooks.
func New(rt *sandbox.Runtime, def *script.Definition, program *compiler.Program, cfg Config) (*Instance, error) {
	if def == nil || program == nil {
		return nil, errors.NewInstanceError("component needs a definition and a render program", nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	in := &Instance{
		rt:          rt,
		vm:          rt.VM(),
		def:         def,
		program:     program,
		logger:      logger.WithComponent("component"),
		token:       cfg.ScopeToken,
		attrs:       map[string]any{},
		staticTrees: map[int]goja.Value{},
		listeners:   map[string][]EventHandler{},
		state:       StateCreated,
	}
	in.c = in.vm.ToValue(in.createElement)
	in.v = in.vm.ToValue(in.createText)
	in.s = in.vm.ToValue(in.toDisplayString)

	if err := in.init(cfg.Props); err != nil {
		return nil, errors.NewInstanceError("failed to instantiate component", err)
	}
	return in, nil
}

func (in *Instance) init(props map[string]any) error {
	vm := in.vm
	in.ctx = vm.NewObject()

	helpers := map[string]func(goja.FunctionCall) goja.Value{
		"_l": in.renderList,
		"_m": in.renderStatic,
		"_e": in.emptyNode,
		"$emit": func(call goja.FunctionCall) goja.Value {
			args := make([]any, 0, len(call.Arguments))
			for _, a := range call.Arguments[min(1, len(call.Arguments)):] {
				args = append(args, a.Export())
			}
			in.Emit(call.Argument(0).String(), args...)
			return in.ctx
		},
	}
	for _, name := range slices.Sorted(maps.Keys(helpers)) {
		if err := in.ctx.Set(name, helpers[name]); err != nil {
			return err
		}
	}

	if err := in.callHook("beforeCreate"); err != nil {
		return err
	}
	if err := in.initProps(props); err != nil {
		return err
	}
	if err := in.initMethods(); err != nil {
		return err
	}
	if err := in.initData(); err != nil {
		return err
	}
	if err := in.initComputed(); err != nil {
		return err
	}
	if err := in.ctx.Set("$options", in.def.Options); err != nil {
		return err
	}
	return in.callHook("created")
}

func (in *Instance) initProps(props map[string]any) error {
	in.props = in.vm.NewObject()
	declared := make(map[string]bool, len(in.def.Props))

	for _, decl := range in.def.Props {
		declared[decl.Name] = true
		value, given := props[decl.Name]
		var v goja.Value
		switch {
		case given:
			v = in.vm.ToValue(value)
		case decl.Default != nil:
			v = decl.Default
			if fn, ok := goja.AssertFunction(decl.Default); ok && decl.Type != "Function" {
				out, err := fn(in.ctx)
				if err != nil {
					return fmt.Errorf("default for prop %q: %w", decl.Name, err)
				}
				v = out
			}
		default:
			v = goja.Undefined()
			if decl.Required {
				in.logger.Warn(context.Background(), nil, "Missing required prop", "prop", decl.Name)
			}
		}
		if err := in.props.Set(decl.Name, v); err != nil {
			return err
		}
		if err := in.ctx.Set(decl.Name, v); err != nil {
			return err
		}
	}

	for name, value := range props {
		if !declared[name] {
			in.attrs[name] = value
		}
	}
	if err := in.ctx.Set("$attrs", in.attrs); err != nil {
		return err
	}
	return in.ctx.Set("$props", in.props)
}

func (in *Instance) initMethods() error {
	bindV, err := in.rt.Run("bind.js", bindSource)
	if err != nil {
		return err
	}
	bind, _ := goja.AssertFunction(bindV)

	for _, m := range in.def.Methods {
		bound, err := bind(goja.Undefined(), m.Value, in.ctx)
		if err != nil {
			return fmt.Errorf("bind method %q: %w", m.Name, err)
		}
		if err := in.ctx.Set(m.Name, bound); err != nil {
			return err
		}
	}
	return nil
}

func (in *Instance) initData() error {
	in.data = in.vm.NewObject()
	if in.def.Data != nil {
		v, err := in.def.Data(in.ctx, in.ctx)
		if err != nil {
			return fmt.Errorf("data: %w", err)
		}
		if present(v) {
			obj, ok := v.(*goja.Object)
			if !ok {
				return fmt.Errorf("data must return an object, got %s", v.String())
			}
			in.data = obj
		}
	}

	in.dataKeys = in.data.Keys()
	for _, key := range in.dataKeys {
		if err := in.ctx.Set(key, in.data.Get(key)); err != nil {
			return err
		}
	}
	return in.ctx.Set("$data", in.data)
}

func (in *Instance) initComputed() error {
	for _, c := range in.def.Computed {
		if err := in.ctx.DefineAccessorProperty(c.Name, c.Get, c.Set, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("computed %q: %w", c.Name, err)
		}
	}
	return nil
}

func (in *Instance) callHook(name string) error {
	hook := in.def.Hook(name)
	if hook == nil {
		return nil
	}
	if _, err := hook(in.ctx); err != nil {
		return fmt.Errorf("%s hook: %w", name, err)
	}
	return nil
}

// On registers handler for events emitted with this.$emit(name).
func (in *Instance) On(name string, handler EventHandler) {
	if handler == nil {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.listeners[name] = append(in.listeners[name], handler)
}

// Emit calls the handlers registered for name.
func (in *Instance) Emit(name string, args ...any) {
	in.mu.Lock()
	handlers := slices.Clone(in.listeners[name])
	in.mu.Unlock()

	for _, h := range handlers {
		h(args...)
	}
}

// Render runs the render program and returns the virtual tree.
func (in *Instance) Render() (tree *vdom.Node, err error) {
	if in.state == StateDestroyed {
		return nil, errors.NewInstanceError("cannot render a destroyed component", nil)
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInstanceError("render panicked", fmt.Errorf("%v", r))
		}
	}()

	out, err := in.program.Render(in.ctx, in.c, in.v, in.s)
	if err != nil {
		return nil, errors.NewInstanceError("render failed", err)
	}
	root, ok := exportValue(out).(*vdom.Node)
	if !ok || root.Kind != vdom.ElementNode {
		return nil, errors.NewInstanceError("render must return a single root element", nil)
	}
	in.inheritAttrs(root)
	return root, nil
}

// inheritAttrs copies undeclared scalar props onto the root element.
func (in *Instance) inheritAttrs(root *vdom.Node) {
	for _, name := range slices.Sorted(maps.Keys(in.attrs)) {
		switch v := in.attrs[name].(type) {
		case string, int, int64, float64, bool:
			if _, exists := root.Attrs[name]; !exists {
				setAttr(root, name, fmt.Sprint(v))
			}
		}
	}
}

// Mount renders the component into surface.
func (in *Instance) Mount(surface vdom.Surface) error {
	if surface == nil {
		return errors.NewInstanceError("no surface to mount to", nil)
	}
	if in.state == StateDestroyed {
		return errors.NewInstanceError("cannot mount a destroyed component", nil)
	}
	if err := in.callHook("beforeMount"); err != nil {
		return errors.NewInstanceError("mount failed", err)
	}
	tree, err := in.Render()
	if err != nil {
		return err
	}
	if err := surface.Mount(tree); err != nil {
		return errors.NewInstanceError("mount failed", err)
	}
	in.tree = tree
	in.surface = surface
	in.state = StateMounted

	if err := in.callHook("mounted"); err != nil {
		return errors.NewInstanceError("mount failed", err)
	}
	return nil
}

// Update re-renders a mounted component and remounts the new tree.
func (in *Instance) Update() error {
	if in.state != StateMounted {
		return errors.NewInstanceError("component is not mounted", nil)
	}
	if err := in.callHook("beforeUpdate"); err != nil {
		return errors.NewInstanceError("update failed", err)
	}
	tree, err := in.Render()
	if err != nil {
		return err
	}
	if err := in.surface.Mount(tree); err != nil {
		return errors.NewInstanceError("update failed", err)
	}
	in.tree = tree
	if err := in.callHook("updated"); err != nil {
		return errors.NewInstanceError("update failed", err)
	}
	return nil
}

// Dispatch fires event on the node at path in the mounted tree, then
// re-renders.
func (in *Instance) Dispatch(path []int, event string, payload map[string]any) error {
	if in.state != StateMounted || in.tree == nil {
		return errors.NewInstanceError("component is not mounted", nil)
	}
	node, err := in.tree.Find(path)
	if err != nil {
		return errors.NewInstanceError("dispatch target not found", err)
	}
	if err := in.fire(node, vdom.Event{Type: event, Payload: payload}); err != nil {
		return errors.NewInstanceError(fmt.Sprintf("%s handler failed", event), err)
	}
	return in.Update()
}

func (in *Instance) fire(node *vdom.Node, ev vdom.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return node.Fire(ev)
}

// Destroy runs the teardown hooks and clears the surface. Calling it again
// is a no-op.
func (in *Instance) Destroy() error {
	if in.state == StateDestroyed {
		return nil
	}
	var firstErr error
	if err := in.callHook("beforeDestroy"); err != nil {
		firstErr = err
	}
	if in.surface != nil {
		in.surface.Clear()
	}
	in.tree = nil
	in.surface = nil
	in.state = StateDestroyed
	if err := in.callHook("destroyed"); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return errors.NewInstanceError("destroy hook failed", firstErr)
	}
	return nil
}

// Name returns the component name, or "anonymous".
func (in *Instance) Name() string {
	if in.def.Name == "" {
		return "anonymous"
	}
	return in.def.Name
}

// State returns the lifecycle state.
func (in *Instance) State() State {
	return in.state
}

// Tree returns the mounted virtual tree.
func (in *Instance) Tree() *vdom.Node {
	return in.tree
}

// Context returns the render context ("this").
func (in *Instance) Context() *goja.Object {
	return in.ctx
}

// ScopeToken returns the token the instance was created with.
func (in *Instance) ScopeToken() string {
	return in.token
}

// Data exports the current values of the data keys.
func (in *Instance) Data() map[string]any {
	out := make(map[string]any, len(in.dataKeys))
	for _, key := range in.dataKeys {
		out[key] = in.ctx.Get(key).Export()
	}
	return out
}
