package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sfclive/internal/config"
	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/logging"
	"github.com/conneroisu/sfclive/internal/renderer"
	"github.com/conneroisu/sfclive/internal/scheduler"
	"github.com/conneroisu/sfclive/internal/scoping"
	"github.com/conneroisu/sfclive/internal/server"
	"github.com/conneroisu/sfclive/internal/styles"
	"github.com/conneroisu/sfclive/internal/trace"
	"github.com/conneroisu/sfclive/internal/validation"
	"github.com/conneroisu/sfclive/internal/vdom"
)

var renderCmd = &cobra.Command{
	Use:   "render <file.vue>",
	Short: "Render a component once and print the result",
	Long: `Run the full pipeline on a single-file component and print the result.

Output formats:
  html   a standalone HTML document with the scoped styles and markup
  json   markup, styles, scope token, trace and error as JSON
  trace  the trace events as they happen, followed by a summary

Examples:
  sfclive render Hello.vue
  sfclive render Counter.vue --props '{"label":"clicks"}' --output json
  sfclive render Counter.vue --props-file props.json --output trace --pace
  sfclive render Card.vue --strategy selector`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var renderFlags *RenderFlags

func init() {
	rootCmd.AddCommand(renderCmd)
	renderFlags = AddRenderFlags(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	if err := renderFlags.ValidateFlags(); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	props, err := renderFlags.ParseProps()
	if err != nil {
		return err
	}
	source, err := validation.ReadSource(args[0])
	if err != nil {
		return errors.NewIOError("SOURCE_READ", "failed to read component source", err).WithContext("path", args[0])
	}

	s := newSession(cfg, logger, renderFlags, cmd.OutOrStdout(), cmd.ErrOrStderr())
	defer s.close()

	result := s.render(cmd.Context(), source, props)
	if err := s.write(result); err != nil {
		return err
	}
	return result.err
}

// session renders sources through one renderer and writes results in the
// selected output format.
type session struct {
	renderer *renderer.ComponentRenderer
	surface  *vdom.MemorySurface
	styles   *styles.MemoryRegistry
	recorder *trace.Recorder
	pacer    *scheduler.Throttler
	printer  *TracePrinter

	output string
	out    io.Writer
}

type sessionOptions struct {
	rendererOpts []renderer.Option
	pacerOpts    []scheduler.Option
}

type sessionOption func(*sessionOptions)

func withRendererOptions(opts ...renderer.Option) sessionOption {
	return func(o *sessionOptions) { o.rendererOpts = append(o.rendererOpts, opts...) }
}

func withPacerOptions(opts ...scheduler.Option) sessionOption {
	return func(o *sessionOptions) { o.pacerOpts = append(o.pacerOpts, opts...) }
}

// newSession wires a renderer for flags. Trace lines go to out for the trace
// output, and to errOut when pacing another output.
func newSession(cfg *config.Config, logger logging.Logger, flags *RenderFlags, out, errOut io.Writer, opts ...sessionOption) *session {
	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &session{
		surface:  vdom.NewMemorySurface(),
		styles:   styles.NewMemoryRegistry(),
		recorder: trace.NewRecorder(),
		output:   flags.Output,
		out:      out,
	}

	sinks := trace.Fanout{s.recorder}
	switch {
	case flags.Output == OutputTrace:
		s.printer = NewTracePrinter(out, false)
	case flags.Pace:
		s.printer = NewTracePrinter(errOut, false)
	}
	if s.printer != nil {
		var live trace.Sink = s.printer
		if flags.Pace {
			pacerOpts := append([]scheduler.Option{
				scheduler.WithDelay(cfg.Scheduler.MinDelay, cfg.Scheduler.MaxDelay),
			}, o.pacerOpts...)
			s.pacer = scheduler.New(pacerOpts...)
			live = trace.Paced{Sink: live, Scheduler: s.pacer}
		}
		sinks = append(sinks, live)
	}

	strategy := cfg.StrategyValue()
	if flags.Strategy != "" {
		if parsed, err := scoping.ParseStrategy(flags.Strategy); err == nil {
			strategy = parsed
		}
	}

	rendererOpts := append([]renderer.Option{
		renderer.WithLogger(logger),
		renderer.WithSink(sinks),
		renderer.WithPolicy(cfg.Sanitizer.Policy()),
		renderer.WithStrategy(strategy),
	}, o.rendererOpts...)
	s.renderer = renderer.New(s.surface, s.styles, rendererOpts...)
	return s
}

type renderOutcome struct {
	server.RenderResult
	elapsed time.Duration
	err     error
}

// render runs the pipeline once. With pacing it returns after the paced
// trace has been delivered.
func (s *session) render(ctx context.Context, source string, props map[string]any) *renderOutcome {
	s.recorder.Reset()

	start := time.Now()
	err := s.renderer.Render(ctx, source, renderer.Options{Props: props})
	elapsed := time.Since(start)

	if s.pacer != nil {
		_ = s.pacer.Wait(ctx)
	}

	outcome := &renderOutcome{
		RenderResult: server.RenderResult{
			HTML:  s.surface.Contents(),
			CSS:   s.styles.CSS(),
			Trace: s.recorder.Events(),
			Error: server.NewAPIError(err),
		},
		elapsed: elapsed,
		err:     err,
	}
	if err == nil {
		outcome.ScopeToken = s.renderer.ScopeToken().String()
	}
	return outcome
}

func (s *session) write(result *renderOutcome) error {
	switch s.output {
	case OutputJSON:
		enc := json.NewEncoder(s.out)
		enc.SetIndent("", "  ")
		return enc.Encode(result.RenderResult)
	case OutputTrace:
		printSummary(s.out, result.elapsed, result.err)
		return nil
	default:
		if result.err != nil {
			return nil
		}
		doc := server.PreviewDocument(server.PreviewPage{
			Title: "sfclive render",
			CSS:   result.CSS,
			HTML:  result.HTML,
		})
		if err := doc.Render(context.Background(), s.out); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		return nil
	}
}

func (s *session) close() {
	if s.pacer != nil {
		s.pacer.Close()
	}
}
