/*
Package sandbox provides the capability-restricted JavaScript runtime that
component scripts and compiled render programs execute in.

# Overview

Each render gets a fresh goja runtime. Before any user code runs, the global
object is reduced to an explicit allowlist of language built-ins: eval,
Function, globalThis and every other global are deleted (NaN, Infinity and
undefined are non-configurable and always remain), and the
constructor reachable through function prototypes is cut off. A console
object forwards to the structured logger.

# Usage

	rt, err := sandbox.New(sandbox.WithLogger(logger))
	if err != nil {
		return err
	}
	fn, err := rt.Function("render", []string{"_c", "_v", "_s"}, body)

No execution time limits are applied.
*/
package sandbox

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dop251/goja"

	"github.com/conneroisu/sfclive/internal/logging"
)

// DefaultGlobals are the built-ins left on the global object.
var DefaultGlobals = []string{
	"Object", "Array", "String", "Number", "Boolean",
	"Math", "JSON", "Date", "RegExp",
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError", "EvalError", "URIError",
	"Map", "Set",
	"parseInt", "parseFloat", "isNaN", "isFinite",
	"NaN", "Infinity", "undefined",
}

// DefaultMaxCallStackSize bounds recursion depth in user code.
const DefaultMaxCallStackSize = 2048

type config struct {
	logger       logging.Logger
	globals      []string
	console      bool
	maxCallStack int
}

// Option configures a Runtime.
type Option func(*config)

// WithLogger forwards console output to logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithGlobals replaces the allowlist.
func WithGlobals(names ...string) Option {
	return func(c *config) {
		c.globals = slices.Clone(names)
	}
}

// WithoutConsole leaves no console object on the global object.
func WithoutConsole() Option {
	return func(c *config) {
		c.console = false
	}
}

// WithMaxCallStackSize bounds the call stack depth.
func WithMaxCallStackSize(n int) Option {
	return func(c *config) {
		c.maxCallStack = n
	}
}

// Runtime is a restricted goja runtime. It is not safe for concurrent use.
type Runtime struct {
	vm     *goja.Runtime
	logger logging.Logger
	// ownNames is Object.getOwnPropertyNames captured before the global
	// object is reduced. Built-in globals are not enumerable, so
	// goja.Object.Keys cannot list them.
	ownNames goja.Callable
}

// New creates a runtime restricted to the configured globals.
func New(opts ...Option) (*Runtime, error) {
	cfg := &config{
		logger:       logging.NewNopLogger(),
		globals:      DefaultGlobals,
		console:      true,
		maxCallStack: DefaultMaxCallStackSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	vm := goja.New()
	if cfg.maxCallStack > 0 {
		vm.SetMaxCallStackSize(cfg.maxCallStack)
	}

	rt := &Runtime{vm: vm, logger: cfg.logger.WithComponent("sandbox")}
	v, err := rt.Run("restrict", "Object.getOwnPropertyNames")
	if err != nil {
		return nil, fmt.Errorf("capture property lister: %w", err)
	}
	ownNames, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("capture property lister: not callable")
	}
	rt.ownNames = ownNames

	if err := rt.restrict(cfg.globals); err != nil {
		return nil, err
	}
	if cfg.console {
		if err := vm.Set("console", rt.console()); err != nil {
			return nil, fmt.Errorf("install console: %w", err)
		}
	}
	return rt, nil
}

// PermanentGlobals are non-configurable value properties of the global
// object. They cannot be deleted and are kept whatever the allowlist says.
var PermanentGlobals = []string{"NaN", "Infinity", "undefined"}

// functionForms are evaluated to reach each function prototype. Forms the
// engine cannot parse are skipped.
var functionForms = []string{
	"(function () {})",
	"(function* () {})",
	"(async function () {})",
}

func (r *Runtime) restrict(allowed []string) error {
	// Cut the Function constructor off every function prototype so that
	// (function(){}).constructor cannot stand in for eval.
	for _, form := range functionForms {
		v, err := r.Run("restrict", form)
		if err != nil {
			continue
		}
		proto := v.ToObject(r.vm).Prototype()
		if proto == nil {
			continue
		}
		if err := proto.DefineDataProperty("constructor", goja.Undefined(), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("harden function prototype: %w", err)
		}
	}

	global := r.vm.GlobalObject()
	names, err := r.globalNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		if slices.Contains(allowed, name) || slices.Contains(PermanentGlobals, name) {
			continue
		}
		if err := global.Delete(name); err != nil {
			return fmt.Errorf("remove global %q: %w", name, err)
		}
	}
	return nil
}

// globalNames lists every own property of the global object, enumerable or
// not.
func (r *Runtime) globalNames() ([]string, error) {
	v, err := r.ownNames(goja.Undefined(), r.vm.GlobalObject())
	if err != nil {
		return nil, fmt.Errorf("list globals: %w", err)
	}
	var names []string
	if err := r.vm.ExportTo(v, &names); err != nil {
		return nil, fmt.Errorf("list globals: %w", err)
	}
	return names, nil
}

func (r *Runtime) console() map[string]any {
	ctx := context.Background()
	format := func(call goja.FunctionCall) string {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		return strings.Join(parts, " ")
	}

	return map[string]any{
		"log": func(call goja.FunctionCall) goja.Value {
			msg := format(call)
			r.logger.Info(ctx, msg, "source", "console")
			return goja.Undefined()
		},
		"info": func(call goja.FunctionCall) goja.Value {
			msg := format(call)
			r.logger.Info(ctx, msg, "source", "console")
			return goja.Undefined()
		},
		"debug": func(call goja.FunctionCall) goja.Value {
			msg := format(call)
			r.logger.Debug(ctx, msg, "source", "console")
			return goja.Undefined()
		},
		"warn": func(call goja.FunctionCall) goja.Value {
			msg := format(call)
			r.logger.Warn(ctx, nil, msg, "source", "console")
			return goja.Undefined()
		},
		"error": func(call goja.FunctionCall) goja.Value {
			msg := format(call)
			r.logger.Error(ctx, nil, msg, "source", "console")
			return goja.Undefined()
		},
	}
}

// VM exposes the underlying goja runtime.
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// Globals lists the names currently defined on the global object.
func (r *Runtime) Globals() []string {
	names, err := r.globalNames()
	if err != nil {
		return nil
	}
	slices.Sort(names)
	return names
}

// Run evaluates src as a script.
func (r *Runtime) Run(name, src string) (goja.Value, error) {
	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, err
	}
	return r.vm.RunProgram(prog)
}

// Function builds a function from code text. The resulting function sees
// only its parameters and the restricted globals; it is compiled in sloppy
// mode so that bodies may use "with".
func (r *Runtime) Function(name string, params []string, body string) (goja.Callable, error) {
	src := "(function(" + strings.Join(params, ",") + "){" + body + "\n})"
	v, err := r.Run(name, src)
	if err != nil {
		return nil, fmt.Errorf("build function %s: %w", name, err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("build function %s: result is not callable", name)
	}
	return fn, nil
}
