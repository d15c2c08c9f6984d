package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/sfclive/internal/compiler"
	"github.com/conneroisu/sfclive/internal/errors"
	"github.com/conneroisu/sfclive/internal/sfc"
	"github.com/conneroisu/sfclive/internal/validation"
	"github.com/conneroisu/sfclive/internal/version"
)

// maxBodySize bounds API request bodies. A render body carries at most one
// source file plus props.
const maxBodySize = validation.MaxSourceSize + 64<<10

// APIError is the JSON form of a pipeline error.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// NewAPIError converts err, or returns nil for a nil err. Type and code come
// from the innermost SFCError; the stage comes from the render failure
// wrapping it.
func NewAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	out := &APIError{Type: string(errors.ErrorTypeInternal), Code: "INTERNAL_ERROR", Message: err.Error()}
	if outer, ok := err.(*errors.SFCError); ok {
		out.Stage = outer.Stage
	}
	if root := errors.Root(err); root != nil {
		out.Type = string(root.Type)
		out.Code = root.Code
		out.Message = root.Error()
	}
	return out
}

type dispatchRequest struct {
	Path    []int          `json:"path"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

type dispatchResponse struct {
	HTML  string    `json:"html"`
	Error *APIError `json:"error,omitempty"`
}

type stateResponse struct {
	Source      string                      `json:"source"`
	Origin      sfc.Sections                `json:"origin"`
	Working     sfc.Sections                `json:"working"`
	ScopeToken  string                      `json:"scope_token"`
	Description *compiler.RenderDescription `json:"description,omitempty"`
	Component   any                         `json:"component,omitempty"`
	HTML        string                      `json:"html"`
	CSS         string                      `json:"css"`
}

func (s *PreviewServer) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.NewValidationError("SOURCE_EMPTY", "source is required"))
		return
	}

	result := s.Render(r.Context(), req)
	status := http.StatusOK
	if result.Error != nil {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, r, status, result)
}

func (s *PreviewServer) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Event == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.NewValidationError("EVENT_EMPTY", "event is required"))
		return
	}

	html, err := s.Dispatch(r.Context(), req.Path, req.Event, req.Payload)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if s.renderer.Instance() == nil {
			status = http.StatusConflict
		}
		s.writeJSON(w, r, status, dispatchResponse{Error: NewAPIError(err)})
		return
	}
	s.writeJSON(w, r, http.StatusOK, dispatchResponse{HTML: html})
}

func (s *PreviewServer) handleDestroy(w http.ResponseWriter, r *http.Request) {
	s.Destroy()
	s.writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func (s *PreviewServer) handleState(w http.ResponseWriter, r *http.Request) {
	state := stateResponse{
		Source:      s.renderer.Source(),
		Origin:      s.renderer.OriginStructure(),
		Working:     s.renderer.Structure(),
		ScopeToken:  s.renderer.ScopeToken().String(),
		Description: s.renderer.Description(),
		HTML:        s.surface.Contents(),
		CSS:         s.styles.CSS(),
	}
	if inst := s.renderer.Instance(); inst != nil {
		state.Component = inst.Summary()
	}
	s.writeJSON(w, r, http.StatusOK, state)
}

func (s *PreviewServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	doc := PreviewDocument(PreviewPage{
		Title:  "sfclive preview",
		CSS:    s.styles.CSS(),
		HTML:   s.surface.Contents(),
		Reload: true,
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := doc.Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render preview document")
	}
}

// handleHealth returns the server health status for health checks
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"version":   info.Short(),
		"engine":    info.Engine,
		"checks": map[string]any{
			"renderer":  map[string]any{"status": "healthy", "mounted": s.renderer.Instance() != nil},
			"websocket": map[string]any{"status": "healthy", "clients": s.hub.Count()},
			"pacer":     map[string]any{"status": "healthy", "enabled": s.pacer != nil, "queued": s.queued()},
		},
	}
	s.writeJSON(w, r, http.StatusOK, health)
}

func (s *PreviewServer) queued() int {
	if s.pacer == nil {
		return 0
	}
	return s.pacer.Len()
}

func (s *PreviewServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.NewValidationError("BAD_REQUEST", "invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (s *PreviewServer) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.handler.Handle(r.Context(), err)
	s.writeJSON(w, r, status, map[string]any{"error": NewAPIError(err)})
}

func (s *PreviewServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}
