// Package server exposes the component renderer over HTTP.
//
// A PreviewServer owns one renderer. Clients post source to /api/render,
// fire events with /api/dispatch and read the composed document from
// /preview. Trace events and re-rendered markup are streamed to websocket
// clients on /ws, optionally paced through the throttled scheduler.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/sfclive/internal/component"
	"github.com/conneroisu/sfclive/internal/config"
	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/logging"
	"github.com/conneroisu/sfclive/internal/renderer"
	"github.com/conneroisu/sfclive/internal/scheduler"
	"github.com/conneroisu/sfclive/internal/styles"
	"github.com/conneroisu/sfclive/internal/trace"
	"github.com/conneroisu/sfclive/internal/validation"
	"github.com/conneroisu/sfclive/internal/vdom"
	"github.com/conneroisu/sfclive/internal/watcher"
)

// PreviewServer serves one live component.
type PreviewServer struct {
	config  *config.Config
	logger  logging.Logger
	handler *errors.ErrorHandler

	renderer *renderer.ComponentRenderer
	surface  *vdom.MemorySurface
	styles   *styles.MemoryRegistry
	recorder *trace.Recorder
	hub      *Hub
	pacer    *scheduler.Throttler
	limiter  *RateLimiter
	watcher  *watcher.FileWatcher

	// renderMu keeps the recorder aligned with a single render.
	renderMu sync.Mutex

	serverMutex  sync.Mutex
	httpServer   *http.Server
	shutdownOnce sync.Once
	started      time.Time
}

// Option configures a PreviewServer.
type Option func(*serverOptions)

type serverOptions struct {
	logger       logging.Logger
	rendererOpts []renderer.Option
	pacerOpts    []scheduler.Option
	rateLimit    *RateLimitConfig
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *serverOptions) { o.logger = logger }
}

// WithRendererOptions passes extra options to the renderer.
func WithRendererOptions(opts ...renderer.Option) Option {
	return func(o *serverOptions) { o.rendererOpts = append(o.rendererOpts, opts...) }
}

// WithSchedulerOptions passes extra options to the trace pacer, after the
// configured delay bounds.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *serverOptions) { o.pacerOpts = append(o.pacerOpts, opts...) }
}

// WithRateLimit replaces the API rate limit.
func WithRateLimit(cfg *RateLimitConfig) Option {
	return func(o *serverOptions) { o.rateLimit = cfg }
}

// New creates a preview server from cfg.
func New(cfg *config.Config, opts ...Option) (*PreviewServer, error) {
	if cfg == nil {
		return nil, errors.NewConfigError("CONFIG_MISSING", "server requires a configuration")
	}

	o := serverOptions{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.WithComponent("server")
	s := &PreviewServer{
		config:   cfg,
		logger:   logger,
		handler:  errors.NewErrorHandler(logger),
		surface:  vdom.NewMemorySurface(),
		styles:   styles.NewMemoryRegistry(),
		recorder: trace.NewRecorder(),
		hub:      NewHub(cfg.Server.AllowedOrigins, logger),
		limiter:  NewRateLimiter(o.rateLimit, logger),
		started:  time.Now(),
	}

	var live trace.Sink = s.hub
	if cfg.Scheduler.Enabled {
		pacerOpts := append([]scheduler.Option{
			scheduler.WithDelay(cfg.Scheduler.MinDelay, cfg.Scheduler.MaxDelay),
		}, o.pacerOpts...)
		s.pacer = scheduler.New(pacerOpts...)
		live = trace.Paced{Sink: s.hub, Scheduler: s.pacer}
	}

	rendererOpts := append([]renderer.Option{
		renderer.WithLogger(o.logger),
		renderer.WithSink(trace.Fanout{s.recorder, live}),
		renderer.WithPolicy(cfg.Sanitizer.Policy()),
		renderer.WithStrategy(cfg.StrategyValue()),
	}, o.rendererOpts...)
	s.renderer = renderer.New(s.surface, s.styles, rendererOpts...)

	return s, nil
}

// RenderRequest is the body of POST /api/render.
type RenderRequest struct {
	Source string         `json:"source"`
	Props  map[string]any `json:"props,omitempty"`
	// Events lists the names emitted with this.$emit that are forwarded to
	// websocket clients.
	Events []string `json:"events,omitempty"`
}

// RenderResult is the outcome of one render.
type RenderResult struct {
	HTML       string        `json:"html"`
	CSS        string        `json:"css"`
	ScopeToken string        `json:"scope_token"`
	Trace      []trace.Event `json:"trace"`
	Error      *APIError     `json:"error,omitempty"`
}

// Render runs the pipeline on req and broadcasts the result. A pipeline
// failure is reported in the result, not as an error.
func (s *PreviewServer) Render(ctx context.Context, req RenderRequest) *RenderResult {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.recorder.Reset()

	events := make(map[string]component.EventHandler, len(req.Events))
	for _, name := range req.Events {
		events[name] = s.forwardEmit(name)
	}

	err := s.renderer.Render(ctx, req.Source, renderer.Options{Props: req.Props, Events: events})

	result := &RenderResult{
		HTML:       s.surface.Contents(),
		CSS:        s.styles.CSS(),
		ScopeToken: s.renderer.ScopeToken().String(),
		Trace:      s.recorder.Events(),
		Error:      NewAPIError(err),
	}
	if err != nil {
		result.ScopeToken = ""
	}

	s.publish(Message{Type: MessageUpdate, HTML: result.HTML, CSS: result.CSS, Error: result.Error})
	return result
}

// RenderFile reads a component source from path and renders it.
func (s *PreviewServer) RenderFile(ctx context.Context, path string, props map[string]any) (*RenderResult, error) {
	source, err := validation.ReadSource(path)
	if err != nil {
		return nil, errors.NewIOError("SOURCE_READ", "failed to read component source", err).WithContext("path", path)
	}
	return s.Render(ctx, RenderRequest{Source: source, Props: props}), nil
}

// Dispatch fires an event on the mounted tree and broadcasts the new markup.
func (s *PreviewServer) Dispatch(ctx context.Context, path []int, event string, payload map[string]any) (string, error) {
	if err := s.renderer.Dispatch(ctx, path, event, payload); err != nil {
		return "", err
	}
	html := s.surface.Contents()
	s.publish(Message{Type: MessageUpdate, HTML: html, CSS: s.styles.CSS()})
	return html, nil
}

// Destroy tears down the mounted component.
func (s *PreviewServer) Destroy() {
	s.renderer.Destroy()
	s.publish(Message{Type: MessageUpdate})
}

func (s *PreviewServer) forwardEmit(name string) component.EventHandler {
	return func(args ...any) {
		s.publish(Message{Type: MessageEmit, Name: name, Args: args})
	}
}

// publish sends msg to websocket clients behind any trace events already
// queued on the pacer.
func (s *PreviewServer) publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if s.pacer == nil {
		s.hub.Broadcast(msg)
		return
	}
	if err := s.pacer.Add(func() { s.hub.Broadcast(msg) }); err != nil {
		s.logger.Debug(context.Background(), "Dropped websocket message", "type", msg.Type, "error", err.Error())
	}
}

// WatchFile renders path now and again whenever it changes on disk.
func (s *PreviewServer) WatchFile(ctx context.Context, path string) error {
	w, err := watcher.NewFileWatcher(s.config.Watch.Debounce, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.AddFile(path); err != nil {
		_ = w.Stop()
		return err
	}
	w.AddFilter(watcher.SourceFilter)
	w.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, event := range events {
			if event.Type == watcher.EventTypeDeleted {
				s.logger.Info(ctx, "Component source removed", "path", event.Path)
				continue
			}
			if _, err := s.RenderFile(ctx, event.Path, nil); err != nil {
				return err
			}
			s.logger.Info(ctx, "Component source changed", "path", event.Path, "change", event.Type.String())
		}
		return nil
	})

	if _, err := s.RenderFile(ctx, path, nil); err != nil {
		_ = w.Stop()
		return err
	}

	s.serverMutex.Lock()
	s.watcher = w
	s.serverMutex.Unlock()

	return w.Start(ctx)
}

// Handler returns the HTTP handler with middleware applied.
func (s *PreviewServer) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/render", s.handleRender)
	api.HandleFunc("POST /api/dispatch", s.handleDispatch)
	api.HandleFunc("POST /api/destroy", s.handleDestroy)
	api.HandleFunc("GET /api/state", s.handleState)

	mux := http.NewServeMux()
	mux.Handle("/api/", RateLimitMiddleware(s.limiter)(api))
	mux.HandleFunc("GET /preview", s.handlePreview)
	mux.Handle("GET /ws", s.hub)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/preview", http.StatusFound)
	})

	return s.addMiddleware(mux)
}

// Start serves until ctx is cancelled.
func (s *PreviewServer) Start(ctx context.Context) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, err, "Shutdown failed")
		}
	}()

	s.logger.Info(ctx, "Preview server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.serverMutex.Lock()
		server, w := s.httpServer, s.watcher
		s.serverMutex.Unlock()

		if w != nil {
			if err := w.Stop(); err != nil {
				s.logger.Warn(ctx, err, "Failed to stop file watcher")
			}
		}
		if s.pacer != nil {
			s.pacer.Close()
		}
		s.hub.Close()
		s.limiter.Stop()
		s.renderer.Destroy()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
