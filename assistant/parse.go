package assistant

import (
	"encoding/json"
	"strings"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
)

// Definitions resolves component ids named by the model.
// *eipdef.Registry satisfies it.
type Definitions interface {
	Lookup(id ident.EipID) (*eipdef.Component, bool)
	Namespaces() []string
	Components(namespace string) []string
}

type generatedFlow struct {
	Nodes *[]generatedNode `json:"nodes"`
	Edges *[]flow.Edge     `json:"edges"`
}

type generatedNode struct {
	ID       string       `json:"id"`
	Position layout.Point `json:"position"`
	Data     struct {
		EipID ident.EipID `json:"eipId"`
	} `json:"data"`
}

// Parse converts a model response into a candidate flow. Component ids are
// matched against defs. A node that keeps its id and component on the
// current canvas keeps its label and its whole configuration subtree.
// Both defs and current may be nil.
func Parse(raw string, defs Definitions, current flow.View) (flow.SerializedFlow, error) {
	var gen generatedFlow
	if err := json.Unmarshal([]byte(raw), &gen); err != nil {
		return flow.SerializedFlow{}, errors.NewMalformedFlow("assistant", "Parse", "invalid JSON in model response: %v", err)
	}
	if gen.Nodes == nil {
		return flow.SerializedFlow{}, errors.NewMalformedFlow("assistant", "Parse", "no nodes provided in model response")
	}
	nodes := *gen.Nodes

	edges := []flow.Edge{}
	switch {
	case gen.Edges != nil:
		edges = *gen.Edges
		for i, e := range edges {
			if e.ID == "" {
				edges[i].ID = flow.Connection{
					Source: e.Source, Target: e.Target,
					SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle,
				}.EdgeID()
			}
		}
	case len(nodes) != 1:
		return flow.SerializedFlow{}, errors.NewMalformedFlow("assistant", "Parse", "no edges provided in model response")
	}

	out := flow.SerializedFlow{
		Version:    flow.CurrentVersion,
		Nodes:      make([]flow.Node, 0, len(nodes)),
		Edges:      edges,
		EipConfigs: make(map[string]flow.EipConfig, len(nodes)),
	}
	for _, n := range nodes {
		if n.ID == "" {
			return flow.SerializedFlow{}, errors.NewMalformedFlow("assistant", "Parse", "node without id in model response")
		}
		eipID := MatchEipID(defs, n.Data.EipID)
		node := flow.Node{ID: n.ID, Type: flow.NodeType, Position: n.Position}

		if label, ok := reuse(current, n.ID, eipID, out.EipConfigs); ok {
			node.Data.Label = label
		} else {
			out.EipConfigs[n.ID] = flow.NewConfig(eipID)
		}
		out.Nodes = append(out.Nodes, node)
	}
	return out, nil
}

// reuse copies the configuration subtree of an existing node with the same id
// and component into configs and returns the node's label.
func reuse(current flow.View, id string, eipID ident.EipID, configs map[string]flow.EipConfig) (string, bool) {
	if current == nil {
		return "", false
	}
	root, ok := current.Config(id)
	if !ok || !root.EipID.Equal(eipID) {
		return "", false
	}
	label := ""
	for _, n := range current.Nodes() {
		if n.ID == id {
			label = n.Data.Label
			break
		}
	}

	configs[id] = root
	stack := append([]string(nil), root.Children...)
	for len(stack) > 0 {
		childID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		child, ok := current.Config(childID)
		if !ok {
			continue
		}
		configs[childID] = child
		stack = append(stack, child.Children...)
	}
	return label, true
}

// MatchEipID resolves a model supplied component id. An exact match wins;
// otherwise the first namespace, in sorted order, declaring a component with
// the same name (ignoring case) is used. Unknown ids are returned normalized.
func MatchEipID(defs Definitions, id ident.EipID) ident.EipID {
	id = id.Normalize()
	if defs == nil {
		return id
	}
	if _, ok := defs.Lookup(id); ok {
		return id
	}
	for _, ns := range defs.Namespaces() {
		for _, name := range defs.Components(ns) {
			if strings.EqualFold(name, id.Name) {
				return ident.EipID{Namespace: ns, Name: name}
			}
		}
	}
	return id
}

// componentIDs lists every component as namespace:name.
func componentIDs(defs Definitions) []string {
	if defs == nil {
		return nil
	}
	var out []string
	for _, ns := range defs.Namespaces() {
		for _, name := range defs.Components(ns) {
			out = append(out, ident.EipID{Namespace: ns, Name: name}.String())
		}
	}
	return out
}
