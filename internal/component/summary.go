package component

import (
	"maps"
	"slices"

	"github.com/conneroisu/sfclive/internal/script"
	"github.com/conneroisu/sfclive/internal/vdom"
)

// Summary describes an instance for traces and the state endpoint.
type Summary struct {
	Name       string         `json:"name"`
	State      State          `json:"state"`
	ScopeToken string         `json:"scope_token"`
	Props      []string       `json:"props"`
	Data       []string       `json:"data"`
	Methods    []string       `json:"methods"`
	Computed   []string       `json:"computed"`
	Hooks      []string       `json:"hooks"`
	Events     []string       `json:"events"`
	Bindings   []vdom.Binding `json:"bindings"`
}

// Summary reports what the instance declares and what is bound.
func (in *Instance) Summary() Summary {
	s := Summary{
		Name:       in.Name(),
		State:      in.state,
		ScopeToken: in.token,
		Data:       slices.Clone(in.dataKeys),
	}
	for _, p := range in.def.Props {
		s.Props = append(s.Props, p.Name)
	}
	for _, m := range in.def.Methods {
		s.Methods = append(s.Methods, m.Name)
	}
	for _, c := range in.def.Computed {
		s.Computed = append(s.Computed, c.Name)
	}
	for _, h := range script.Hooks {
		if in.def.Hook(h) != nil {
			s.Hooks = append(s.Hooks, h)
		}
	}

	in.mu.Lock()
	s.Events = slices.Sorted(maps.Keys(in.listeners))
	in.mu.Unlock()

	if in.tree != nil {
		s.Bindings = in.tree.Listeners()
	}
	return s
}
