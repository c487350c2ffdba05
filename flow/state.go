package flow

import (
	"maps"
	"slices"

	"github.com/c360/eipcanvas/layout"
)

// state is one immutable version of the flow. Mutations work on a clone and
// replace the current pointer on success. Slices and maps are copied by
// clone, but the values they hold are shared with the previous version, so
// code must replace a Node, Edge, or EipConfig rather than modify what its
// pointers or maps reference.
type state struct {
	nodes         []Node
	edges         []Edge
	configs       map[string]EipConfig
	layout        layout.Settings
	selectedChild string
}

func newState(settings layout.Settings) *state {
	return &state{
		nodes:   []Node{},
		edges:   []Edge{},
		configs: map[string]EipConfig{},
		layout:  settings,
	}
}

func (s *state) clone() *state {
	return &state{
		nodes:         slices.Clone(s.nodes),
		edges:         slices.Clone(s.edges),
		configs:       maps.Clone(s.configs),
		layout:        s.layout,
		selectedChild: s.selectedChild,
	}
}

func (s *state) nodeIndex(id string) int {
	return slices.IndexFunc(s.nodes, func(n Node) bool { return n.ID == id })
}

func (s *state) edgeIndex(id string) int {
	return slices.IndexFunc(s.edges, func(e Edge) bool { return e.ID == id })
}

// editConfig applies fn to a private copy of the record for id.
func (s *state) editConfig(id string, fn func(c *EipConfig)) bool {
	c, ok := s.configs[id]
	if !ok {
		return false
	}
	c = c.Clone()
	fn(&c)
	s.configs[id] = c
	return true
}

// removeSubtree deletes root and every descendant from the config table with
// an explicit work-list, and returns the removed ids.
func (s *state) removeSubtree(root string) []string {
	var removed []string
	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c, ok := s.configs[id]
		if !ok {
			continue
		}
		stack = append(stack, c.Children...)
		delete(s.configs, id)
		removed = append(removed, id)
	}
	if slices.Contains(removed, s.selectedChild) {
		s.selectedChild = ""
	}
	return removed
}

// removeNodes drops the given root nodes, their config subtrees, and every
// edge attached to them.
func (s *state) removeNodes(ids map[string]bool) {
	if len(ids) == 0 {
		return
	}
	s.nodes = slices.DeleteFunc(s.nodes, func(n Node) bool { return ids[n.ID] })
	s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool { return ids[e.Source] || ids[e.Target] })
	for id := range ids {
		s.removeSubtree(id)
	}
}

func (s *state) clearSelectedFlags() {
	for i := range s.nodes {
		s.nodes[i].Selected = false
	}
	for i := range s.edges {
		s.edges[i].Selected = false
	}
}

// labelOwner returns the id of a node other than except whose label equals
// label. Empty labels never conflict.
func (s *state) labelOwner(label, except string) (string, bool) {
	if label == "" {
		return "", false
	}
	for _, n := range s.nodes {
		if n.ID != except && n.Data.Label == label {
			return n.ID, true
		}
	}
	return "", false
}
