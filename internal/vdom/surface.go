package vdom

import (
	"fmt"
	"sync"
)

// Surface is the container a component tree is mounted into.
type Surface interface {
	Clear()
	Mount(root *Node) error
	Contents() string
}

// MemorySurface renders the mounted tree to HTML and keeps both in memory.
type MemorySurface struct {
	mu     sync.RWMutex
	root   *Node
	html   string
	mounts int
}

// NewMemorySurface creates an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

// Clear removes whatever is mounted.
func (s *MemorySurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = nil
	s.html = ""
}

// Mount replaces the surface contents with root.
func (s *MemorySurface) Mount(root *Node) error {
	if root == nil {
		return fmt.Errorf("cannot mount a nil tree")
	}
	out, err := root.HTML()
	if err != nil {
		return fmt.Errorf("render mounted tree: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = root
	s.html = out
	s.mounts++
	return nil
}

// Contents returns the HTML of the mounted tree, or "" when empty.
func (s *MemorySurface) Contents() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.html
}

// Root returns the mounted tree.
func (s *MemorySurface) Root() *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Empty reports whether nothing is mounted.
func (s *MemorySurface) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root == nil
}

// Mounts counts successful Mount calls.
func (s *MemorySurface) Mounts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mounts
}
