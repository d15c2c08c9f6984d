package errors

import (
	"errors"
	"fmt"
	"testing"
)

func BenchmarkSFCError_Error(b *testing.B) {
	err := NewRenderFailure("evaluate script", NewScriptEvaluationError(fmt.Errorf("SyntaxError: Unexpected token")))

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		_ = err.Error()
	}
}

func BenchmarkSFCError_Is(b *testing.B) {
	err := NewRenderFailure("check template tags", NewSecurityViolation("tag", "iframe"))

	b.ResetTimer()
	for range b.N {
		_ = errors.Is(err, ErrTemplateSecurityViolation)
	}
}

func BenchmarkRoot(b *testing.B) {
	var err error = NewTemplateRootMissing("template has no root element")
	for i := range 5 {
		err = NewRenderFailure(fmt.Sprintf("stage %d", i), err)
	}

	b.ResetTimer()
	for range b.N {
		_ = Root(err)
	}
}

func BenchmarkDiagnostics_String(b *testing.B) {
	var diags Diagnostics
	for i := range 20 {
		diags.Add("tag <div> at position %d has no matching end tag", i)
	}

	b.ResetTimer()
	for range b.N {
		_ = diags.String()
	}
}
