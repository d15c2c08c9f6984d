// Package errors defines the error taxonomy of the render pipeline and the
// diagnostics list used by the template compiler.
package errors

import (
	"fmt"
	"strings"
)

// Diagnostics is an ordered list of compiler messages.
type Diagnostics []string

// Add appends a formatted diagnostic.
func (d *Diagnostics) Add(format string, args ...interface{}) {
	*d = append(*d, fmt.Sprintf(format, args...))
}

// Len returns the number of diagnostics.
func (d Diagnostics) Len() int {
	return len(d)
}

// Messages returns a copy of the collected messages.
func (d Diagnostics) Messages() []string {
	out := make([]string, len(d))
	copy(out, d)
	return out
}

// String lists every diagnostic with a 1-based index, one per line.
func (d Diagnostics) String() string {
	lines := make([]string, len(d))
	for i, msg := range d {
		lines[i] = fmt.Sprintf("%d. %s", i+1, msg)
	}
	return strings.Join(lines, "\n")
}

// Err returns a TemplateCompileError when any diagnostic was collected.
func (d Diagnostics) Err() error {
	if len(d) == 0 {
		return nil
	}
	return NewTemplateCompileError(d)
}
