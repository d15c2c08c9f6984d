// Package styles holds the global style registry that scoped component
// styles are published to.
package styles

import (
	"fmt"
	"strings"
	"sync"
)

// Record is one published style sheet. ID is the scope token it belongs to.
type Record struct {
	ID  string `json:"id"`
	CSS string `json:"css"`
}

// Registry is where rendered components publish their scoped styles.
type Registry interface {
	Publish(id, css string) error
	Remove(id string)
}

// MemoryRegistry keeps sheets in memory in publication order.
type MemoryRegistry struct {
	mu     sync.RWMutex
	sheets []Record
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{}
}

// Publish stores css under id, replacing a sheet already published under
// the same id.
func (r *MemoryRegistry) Publish(id, css string) error {
	if id == "" {
		return fmt.Errorf("style id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.sheets {
		if r.sheets[i].ID == id {
			r.sheets[i].CSS = css
			return nil
		}
	}
	r.sheets = append(r.sheets, Record{ID: id, CSS: css})
	return nil
}

// Remove deletes the sheet published under id. Unknown ids are ignored.
func (r *MemoryRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.sheets {
		if r.sheets[i].ID == id {
			r.sheets = append(r.sheets[:i], r.sheets[i+1:]...)
			return
		}
	}
}

// Sheets returns a copy of the published sheets.
func (r *MemoryRegistry) Sheets() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, len(r.sheets))
	copy(out, r.sheets)
	return out
}

// Get returns the sheet published under id.
func (r *MemoryRegistry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sheets {
		if s.ID == id {
			return s, true
		}
	}
	return Record{}, false
}

// CSS concatenates every published sheet.
func (r *MemoryRegistry) CSS() string {
	sheets := r.Sheets()
	parts := make([]string, len(sheets))
	for i, s := range sheets {
		parts[i] = s.CSS
	}
	return strings.Join(parts, "\n")
}

// Len returns the number of published sheets.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sheets)
}
