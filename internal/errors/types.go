package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeScript     ErrorType = "script"
	ErrorTypeInstance   ErrorType = "instance"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes for the render pipeline.
const (
	CodeTemplateSecurityViolation = "TEMPLATE_SECURITY_VIOLATION"
	CodeTemplateRootMissing       = "TEMPLATE_ROOT_MISSING"
	CodeTemplateCompile           = "TEMPLATE_COMPILE_ERROR"
	CodeScriptEvaluation          = "SCRIPT_EVALUATION_ERROR"
	CodeInstance                  = "INSTANCE_ERROR"
	CodeRenderFailure             = "RENDER_FAILURE"
)

// Sentinels usable with errors.Is. Comparison is by type and code.
var (
	ErrTemplateSecurityViolation = &SFCError{Type: ErrorTypeSecurity, Code: CodeTemplateSecurityViolation}
	ErrTemplateRootMissing       = &SFCError{Type: ErrorTypeTemplate, Code: CodeTemplateRootMissing}
	ErrTemplateCompile           = &SFCError{Type: ErrorTypeTemplate, Code: CodeTemplateCompile}
	ErrScriptEvaluation          = &SFCError{Type: ErrorTypeScript, Code: CodeScriptEvaluation}
	ErrInstance                  = &SFCError{Type: ErrorTypeInstance, Code: CodeInstance}
	ErrRenderFailure             = &SFCError{Type: ErrorTypeRender, Code: CodeRenderFailure}
)

// SFCError is a structured error type with context.
type SFCError struct {
	Type        ErrorType
	Code        string
	Message     string
	Stage       string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *SFCError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Stage != "" {
		parts = append(parts, "stage:"+e.Stage)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SFCError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SFCError) Is(target error) bool {
	var t *SFCError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SFCError) WithContext(key string, value interface{}) *SFCError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithStage records the pipeline stage the error surfaced in.
func (e *SFCError) WithStage(stage string) *SFCError {
	e.Stage = stage

	return e
}

// Error creation functions

// NewSecurityViolation reports a blocked construct found in a template.
// kind is one of "tag", "directive" or "event".
func NewSecurityViolation(kind, name string) *SFCError {
	return &SFCError{
		Type:    ErrorTypeSecurity,
		Code:    CodeTemplateSecurityViolation,
		Message: fmt.Sprintf("template uses blocked %s %q", kind, name),
		Context: map[string]interface{}{
			"kind":      kind,
			"construct": name,
		},
		Recoverable: false,
	}
}

// NewTemplateRootMissing reports a template without a single root element.
func NewTemplateRootMissing(message string) *SFCError {
	return &SFCError{
		Type:    ErrorTypeTemplate,
		Code:    CodeTemplateRootMissing,
		Message: message,
	}
}

// NewTemplateCompileError aggregates compiler diagnostics into one error.
func NewTemplateCompileError(diags Diagnostics) *SFCError {
	return &SFCError{
		Type:    ErrorTypeTemplate,
		Code:    CodeTemplateCompile,
		Message: "template compilation failed:\n" + diags.String(),
		Context: map[string]interface{}{
			"diagnostics": diags.Messages(),
		},
	}
}

// NewScriptEvaluationError wraps a failure to parse or evaluate a script section.
func NewScriptEvaluationError(cause error) *SFCError {
	return &SFCError{
		Type:    ErrorTypeScript,
		Code:    CodeScriptEvaluation,
		Message: "script evaluation failed",
		Cause:   cause,
	}
}

// NewInstanceError wraps a failure raised by the component runtime.
func NewInstanceError(message string, cause error) *SFCError {
	return &SFCError{
		Type:    ErrorTypeInstance,
		Code:    CodeInstance,
		Message: message,
		Cause:   cause,
	}
}

// NewRenderFailure wraps any pipeline error surfaced to a render caller.
func NewRenderFailure(stage string, cause error) *SFCError {
	return &SFCError{
		Type:        ErrorTypeRender,
		Code:        CodeRenderFailure,
		Message:     "render failed",
		Stage:       stage,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SFCError {
	return &SFCError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SFCError {
	return &SFCError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SFCError {
	return &SFCError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SFCError {
	return &SFCError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *SFCError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	return errors.Is(err, ErrTemplateSecurityViolation)
}

// Root returns the innermost SFCError in err's chain, or nil.
func Root(err error) *SFCError {
	var root *SFCError
	for err != nil {
		var se *SFCError
		if !errors.As(err, &se) {
			break
		}
		root = se
		err = se.Cause
	}

	return root
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err with fields derived from its SFCError chain. Security
// violations and template problems are user errors and logged as warnings.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	root := Root(err)
	if root == nil {
		h.logger.Error(ctx, err, "Unexpected error")
		return
	}

	fields := []interface{}{"type", string(root.Type), "code", root.Code}
	if root.Stage != "" {
		fields = append(fields, "stage", root.Stage)
	}

	switch root.Type {
	case ErrorTypeSecurity:
		h.logger.Warn(ctx, err, "Template rejected by security policy", fields...)
	case ErrorTypeTemplate, ErrorTypeScript, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Component source rejected", fields...)
	default:
		h.logger.Error(ctx, err, "Render pipeline error", fields...)
	}
}
