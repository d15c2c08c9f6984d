// Package renderer manages the single live component rendered from raw
// single-file-component source.
//
// Every Render call runs the whole pipeline from scratch: it destroys the
// previous instance, generates a fresh scope token, splits the source into
// sections, rejects blocked constructs, scopes the template and style,
// compiles the template into a render program, evaluates the script into a
// component definition and finally instantiates and mounts the component.
// Each stage is reported to a trace sink in a fixed order. A failing stage
// tears down whatever the call built, leaves the surface empty and is
// returned wrapped in a RenderFailure error.
package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/conneroisu/sfclive/internal/compiler"
	"github.com/conneroisu/sfclive/internal/component"
	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/logging"
	"github.com/conneroisu/sfclive/internal/sandbox"
	"github.com/conneroisu/sfclive/internal/sanitizer"
	"github.com/conneroisu/sfclive/internal/scoping"
	"github.com/conneroisu/sfclive/internal/script"
	"github.com/conneroisu/sfclive/internal/sfc"
	"github.com/conneroisu/sfclive/internal/styles"
	"github.com/conneroisu/sfclive/internal/trace"
	"github.com/conneroisu/sfclive/internal/vdom"
)

// Stage labels, in emission order.
const (
	StageCreateRenderer  = "create renderer"
	StageStarted         = "render started"
	StageSourceReceived  = "source received"
	StageDestroy         = "destroy existing instance"
	StageToken           = "generate scope token"
	StageSplitTemplate   = "split template"
	StageSplitScript     = "split script"
	StageSplitStyle      = "split style"
	StageCheckTags       = "check template tags"
	StageCheckDirectives = "check template directives"
	StageCheckEvents     = "check template events"
	StageScopeTemplate   = "scope template"
	StageScopeStyle      = "scope style"
	StageCompile         = "compile template"
	StageEvaluate        = "evaluate script"
	StageConstructor     = "create component constructor"
	StageInstantiate     = "instantiate component"
	StageAttachProps     = "attach props"
	StageBindEvents      = "bind events"
	StageMount           = "mount to container"
	StageComplete        = "render complete"
	StageFailed          = "render failed"
)

// Options are the per-render inputs.
type Options struct {
	// Props are handed to the instance verbatim.
	Props map[string]any
	// Events maps event names emitted with this.$emit to handlers.
	Events map[string]component.EventHandler
}

// Option configures a ComponentRenderer.
type Option func(*ComponentRenderer)

// WithSink sends trace events to sink.
func WithSink(sink trace.Sink) Option {
	return func(r *ComponentRenderer) {
		r.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *ComponentRenderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPolicy replaces the default sanitizer policy.
func WithPolicy(policy sanitizer.Policy) Option {
	return func(r *ComponentRenderer) {
		r.sanitizer = sanitizer.New(policy)
	}
}

// WithStrategy selects the style scoping strategy.
func WithStrategy(strategy scoping.Strategy) Option {
	return func(r *ComponentRenderer) {
		r.strategy = strategy
	}
}

// WithTokenGenerator replaces the scope token source.
func WithTokenGenerator(gen scoping.Generator) Option {
	return func(r *ComponentRenderer) {
		if gen != nil {
			r.newToken = gen
		}
	}
}

// WithSandboxOptions are applied to every runtime the renderer creates.
func WithSandboxOptions(opts ...sandbox.Option) Option {
	return func(r *ComponentRenderer) {
		r.sandboxOpts = append(r.sandboxOpts, opts...)
	}
}

// ComponentRenderer owns at most one live component instance and at most
// one published style record. Render, Destroy and Dispatch are serialized.
type ComponentRenderer struct {
	mu sync.Mutex

	surface   vdom.Surface
	registry  styles.Registry
	sanitizer *sanitizer.Sanitizer
	strategy  scoping.Strategy
	newToken  scoping.Generator

	sandboxOpts []sandbox.Option
	sink        trace.Sink
	emitter     *trace.Emitter
	logger      logging.Logger
	handler     *errors.ErrorHandler

	source      string
	origin      sfc.Sections
	working     sfc.Sections
	token       scoping.Token
	styleID     string
	description *compiler.RenderDescription
	instance    *component.Instance
}

// New creates a renderer mounting into surface and publishing styles to
// registry.
func New(surface vdom.Surface, registry styles.Registry, opts ...Option) *ComponentRenderer {
	r := &ComponentRenderer{
		surface:   surface,
		registry:  registry,
		sanitizer: sanitizer.New(sanitizer.DefaultPolicy()),
		strategy:  scoping.StrategyAttribute,
		newToken:  scoping.NewToken,
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.surface == nil {
		r.surface = vdom.NewMemorySurface()
	}
	if r.registry == nil {
		r.registry = styles.NewMemoryRegistry()
	}

	r.logger = r.logger.WithComponent("renderer")
	r.handler = errors.NewErrorHandler(r.logger)
	r.emitter = trace.NewEmitter(trace.Fanout{r.sink, trace.LogSink{Logger: r.logger}})
	r.sandboxOpts = append([]sandbox.Option{sandbox.WithLogger(r.logger)}, r.sandboxOpts...)

	r.emitter.Success(StageCreateRenderer,
		"strategy="+string(r.strategy),
		r.sanitizer.Policy().String(),
	)
	return r
}

// Render replaces the live component with one built from source.
func (r *ComponentRenderer) Render(ctx context.Context, source string, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	perf := logging.StartOperation(r.logger, "render")
	if err := r.render(ctx, source, opts); err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	perf.End(ctx)
	return nil
}

func (r *ComponentRenderer) render(ctx context.Context, source string, opts Options) error {
	em := r.emitter
	em.Success(StageStarted)

	r.source = source
	r.description = nil
	em.Success(StageSourceReceived, source)

	r.destroy()

	r.token = r.newToken()
	em.Success(StageToken, r.token.String())

	sections := sfc.Split(source)
	r.origin = sections
	r.working = sections
	em.Success(StageSplitTemplate, orEmpty(sections.Template))
	em.Success(StageSplitScript, orEmpty(sections.Script))
	em.Success(StageSplitStyle, orEmpty(sections.Style))

	checks := []struct {
		stage string
		check func(string) error
	}{
		{StageCheckTags, r.sanitizer.CheckTags},
		{StageCheckDirectives, r.sanitizer.CheckDirectives},
		{StageCheckEvents, r.sanitizer.CheckEvents},
	}
	for _, c := range checks {
		if err := c.check(sections.Template); err != nil {
			return r.fail(ctx, c.stage, err)
		}
		em.Success(c.stage)
	}

	template, err := scoping.ScopeTemplate(sections.Template, r.token)
	if err != nil {
		return r.fail(ctx, StageScopeTemplate, err)
	}
	r.working.Template = template
	em.Success(StageScopeTemplate, template)

	css := scoping.ScopeStyle(sections.Style, r.token, r.strategy)
	if err := r.registry.Publish(r.token.String(), css); err != nil {
		return r.fail(ctx, StageScopeStyle, errors.NewIOError("STYLE_PUBLISH", "failed to publish style", err))
	}
	r.styleID = r.token.String()
	r.working.Style = css
	em.Success(StageScopeStyle, orEmpty(css))

	desc, err := compiler.Compile(template)
	if err != nil {
		return r.fail(ctx, StageCompile, err)
	}
	r.description = desc

	rt, err := sandbox.New(r.sandboxOpts...)
	if err != nil {
		return r.fail(ctx, StageCompile, errors.NewInternalError("SANDBOX_INIT", "failed to create runtime", err))
	}
	program, err := compiler.Link(rt, desc)
	if err != nil {
		return r.fail(ctx, StageCompile, err)
	}
	em.Success(StageCompile, desc.Render)
	em.Success(StageCompile, desc.StaticRenderFns...)

	em.Success(StageEvaluate, orEmpty(script.Strip(sections.Script)))
	def, err := script.Evaluate(rt, sections.Script)
	if err != nil {
		return r.fail(ctx, StageEvaluate, err)
	}
	em.Success(StageEvaluate, describe(def)...)

	name := def.Name
	if name == "" {
		name = "anonymous"
	}
	em.Success(StageConstructor, fmt.Sprintf("%s <%s>", name, desc.Root))

	inst, err := component.New(rt, def, program, component.Config{
		Props:      opts.Props,
		ScopeToken: r.token.String(),
		Logger:     r.logger,
	})
	if err != nil {
		return r.fail(ctx, StageInstantiate, err)
	}
	r.instance = inst
	em.Success(StageInstantiate, r.token.String())
	em.Success(StageAttachProps, propsDetail(opts.Props))

	events := slices.Sorted(maps.Keys(opts.Events))
	for _, event := range events {
		inst.On(event, opts.Events[event])
	}
	em.Success(StageBindEvents, events...)

	if err := inst.Mount(r.surface); err != nil {
		return r.fail(ctx, StageMount, err)
	}
	em.Success(StageMount, r.surface.Contents())

	em.Done(StageComplete)
	r.logger.Info(ctx, "Component rendered", "component", name, "scope_token", r.token.String())
	return nil
}

// fail tears down what the current call built and reports stage as failed.
func (r *ComponentRenderer) fail(ctx context.Context, stage string, cause error) error {
	if r.instance != nil {
		if err := r.instance.Destroy(); err != nil {
			r.logger.Warn(ctx, err, "Teardown of failed instance reported an error")
		}
		r.instance = nil
	}
	if r.styleID != "" {
		r.registry.Remove(r.styleID)
		r.styleID = ""
	}
	r.surface.Clear()

	r.emitter.Fail(StageFailed, "stage: "+stage, cause.Error())

	err := errors.NewRenderFailure(stage, cause)
	r.handler.Handle(ctx, err)
	return err
}

// Destroy tears down the live instance and its style record. Calling it with
// nothing mounted only clears the surface.
func (r *ComponentRenderer) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroy()
}

func (r *ComponentRenderer) destroy() {
	detail := "no instance mounted"
	if r.instance != nil {
		detail = r.instance.Name()
		if err := r.instance.Destroy(); err != nil {
			r.logger.Warn(context.Background(), err, "Destroy hook failed", "component", detail)
		}
		r.instance = nil
	}
	if r.styleID != "" {
		r.registry.Remove(r.styleID)
		r.styleID = ""
	}
	r.surface.Clear()
	r.emitter.Success(StageDestroy, detail)
}

// Dispatch fires event on the node at path of the mounted tree and
// re-renders the instance.
func (r *ComponentRenderer) Dispatch(ctx context.Context, path []int, event string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.instance == nil {
		return errors.NewInstanceError("no component is mounted", nil)
	}
	if err := r.instance.Dispatch(path, event, payload); err != nil {
		r.handler.Handle(ctx, err)
		return err
	}
	r.logger.Debug(ctx, "Event dispatched", "event", event, "path", path)
	return nil
}

// Source returns the raw text of the last render.
func (r *ComponentRenderer) Source() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

// Structure returns the sections after scoping.
func (r *ComponentRenderer) Structure() sfc.Sections {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.working
}

// OriginStructure returns the sections as extracted.
func (r *ComponentRenderer) OriginStructure() sfc.Sections {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.origin
}

// ScopeToken returns the token of the last render.
func (r *ComponentRenderer) ScopeToken() scoping.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// Instance returns the live instance, or nil.
func (r *ComponentRenderer) Instance() *component.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instance
}

// Description returns the generated code of the last compiled template.
func (r *ComponentRenderer) Description() *compiler.RenderDescription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.description
}

// Surface returns the mount surface.
func (r *ComponentRenderer) Surface() vdom.Surface {
	return r.surface
}

func orEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}

// describe lists the options a definition declares.
func describe(def *script.Definition) []string {
	var out []string
	if def.Name != "" {
		out = append(out, "name="+def.Name)
	}
	if len(def.Props) > 0 {
		names := make([]string, len(def.Props))
		for i, p := range def.Props {
			names[i] = p.Name
		}
		out = append(out, "props="+strings.Join(names, ", "))
	}
	if def.Data != nil {
		out = append(out, "data")
	}
	if len(def.Computed) > 0 {
		names := make([]string, len(def.Computed))
		for i, c := range def.Computed {
			names[i] = c.Name
		}
		out = append(out, "computed="+strings.Join(names, ", "))
	}
	if len(def.Methods) > 0 {
		names := make([]string, len(def.Methods))
		for i, m := range def.Methods {
			names[i] = m.Name
		}
		out = append(out, "methods="+strings.Join(names, ", "))
	}
	var hooks []string
	for _, h := range script.Hooks {
		if def.Hook(h) != nil {
			hooks = append(hooks, h)
		}
	}
	if len(hooks) > 0 {
		out = append(out, "hooks="+strings.Join(hooks, ", "))
	}
	if len(out) == 0 {
		out = append(out, "(empty)")
	}
	return out
}

func propsDetail(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	out, err := json.Marshal(props)
	if err != nil {
		return fmt.Sprintf("%v", props)
	}
	return string(out)
}
