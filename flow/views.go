package flow

import (
	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
)

// View is a read-only projection of the store for consumers that must not
// mutate the flow. Returned values are copies.
type View interface {
	Nodes() []Node
	Edges() []Edge
	Layout() layout.Settings
	EipID(id string) (ident.EipID, bool)
	Config(id string) (EipConfig, bool)
	Definition(id string) (*eipdef.Component, bool)
	Selection() Selection
}

type readOnly struct{ s *Store }

// View returns a read-only projection of s.
func (s *Store) View() View { return readOnly{s: s} }

func (v readOnly) Nodes() []Node {
	return v.s.Nodes()
}

func (v readOnly) Edges() []Edge {
	return v.s.Edges()
}

func (v readOnly) Layout() layout.Settings {
	return v.s.Layout()
}

func (v readOnly) Selection() Selection {
	return v.s.Selection()
}

func (v readOnly) Config(id string) (EipConfig, bool) {
	return v.s.Config(id)
}

func (v readOnly) EipID(id string) (ident.EipID, bool) {
	return v.s.EipID(id)
}

func (v readOnly) Definition(id string) (*eipdef.Component, bool) {
	return v.s.Definition(id)
}

// Nodes returns a copy of the node list.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNodes(s.cur.nodes)
}

// Edges returns a copy of the edge list.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEdges(s.cur.edges)
}

// Layout returns the layout settings.
func (s *Store) Layout() layout.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.layout
}

// Configs returns a copy of the whole config table.
func (s *Store) Configs() map[string]EipConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConfigs(s.cur.configs)
}

// Config returns a copy of the config for a root or child id.
func (s *Store) Config(id string) (EipConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cur.configs[id]
	if !ok {
		return EipConfig{}, false
	}
	return c.Clone(), true
}

// EipID returns the component id configured for a root or child id.
func (s *Store) EipID(id string) (ident.EipID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cur.configs[id]
	return c.EipID, ok
}

// Definition returns the component definition of a root node. A missing
// definition is reported with false, never as an error.
func (s *Store) Definition(id string) (*eipdef.Component, bool) {
	eipID, ok := s.EipID(id)
	if !ok || s.defs == nil {
		return nil, false
	}
	return s.defs.Lookup(eipID)
}
