package flow

import (
	"maps"
	"slices"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
)

const (
	// NodeType is the diagram node type of every canvas node.
	NodeType = "eipNode"

	// DefaultLabel is displayed for nodes whose label has not been set.
	DefaultLabel = "New Node"

	// RootParent is the parent id passed to UpdateAttribute for root configs.
	RootParent = "root"
)

// NodeData holds the display-only fields of a node. Configuration lives in the
// EipConfig keyed by the node id, never here.
type NodeData struct {
	Label string `json:"label,omitempty"`
}

// Node is a canvas element.
type Node struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Position       layout.Point      `json:"position"`
	Width          *float64          `json:"width,omitempty"`
	Height         *float64          `json:"height,omitempty"`
	SourcePosition layout.HandleSide `json:"sourcePosition,omitempty"`
	TargetPosition layout.HandleSide `json:"targetPosition,omitempty"`
	Selected       bool              `json:"selected,omitempty"`
	Dragging       bool              `json:"dragging,omitempty"`
	Data           NodeData          `json:"data"`
}

// DisplayLabel returns the label or DefaultLabel when none is set.
func (n Node) DisplayLabel() string {
	if n.Data.Label == "" {
		return DefaultLabel
	}
	return n.Data.Label
}

// EdgeKind distinguishes plain edges from dynamic routing edges.
type EdgeKind string

// Edge kinds
const (
	EdgeStandard EdgeKind = ""
	EdgeDynamic  EdgeKind = "dynamicEdge"
)

// ChannelMapping binds a dynamic routing edge to the router's mapping child.
type ChannelMapping struct {
	MapperName string           `json:"mapperName"`
	Matcher    eipdef.Attribute `json:"matcher"`
	Value      *string          `json:"value,omitempty"`
}

// EdgeData is the payload of a dynamic routing edge.
type EdgeData struct {
	Mapping *ChannelMapping `json:"mapping,omitempty"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Target       string    `json:"target"`
	SourceHandle string    `json:"sourceHandle,omitempty"`
	TargetHandle string    `json:"targetHandle,omitempty"`
	Type         EdgeKind  `json:"type,omitempty"`
	PathStyle    string    `json:"pathStyle,omitempty"`
	Animated     bool      `json:"animated,omitempty"`
	Selected     bool      `json:"selected,omitempty"`
	Data         *EdgeData `json:"data,omitempty"`
}

// IsDynamic reports whether the edge is a dynamic routing edge.
func (e Edge) IsDynamic() bool {
	return e.Type == EdgeDynamic
}

// RouterKey configures how a content based router computes its routing key.
type RouterKey struct {
	Name       string                  `json:"name"`
	Attributes map[string]eipdef.Value `json:"attributes,omitempty"`
}

// EipConfig is the configuration record of a root node or nested child.
type EipConfig struct {
	EipID       ident.EipID             `json:"eipId"`
	Attributes  map[string]eipdef.Value `json:"attributes"`
	Children    []string                `json:"children"`
	Description string                  `json:"description,omitempty"`
	RouterKey   *RouterKey              `json:"routerKey,omitempty"`
}

// NewConfig returns an empty record for the component.
func NewConfig(id ident.EipID) EipConfig {
	return EipConfig{
		EipID:      id,
		Attributes: map[string]eipdef.Value{},
		Children:   []string{},
	}
}

// Clone returns a copy that shares no mutable state with c.
func (c EipConfig) Clone() EipConfig {
	out := c
	out.Attributes = maps.Clone(c.Attributes)
	if out.Attributes == nil {
		out.Attributes = map[string]eipdef.Value{}
	}
	out.Children = slices.Clone(c.Children)
	if out.Children == nil {
		out.Children = []string{}
	}
	if c.RouterKey != nil {
		rk := *c.RouterKey
		rk.Attributes = maps.Clone(c.RouterKey.Attributes)
		out.RouterKey = &rk
	}
	return out
}

func cloneNode(n Node) Node {
	if n.Width != nil {
		w := *n.Width
		n.Width = &w
	}
	if n.Height != nil {
		h := *n.Height
		n.Height = &h
	}
	return n
}

func cloneEdge(e Edge) Edge {
	if e.Data != nil {
		d := *e.Data
		if d.Mapping != nil {
			m := *d.Mapping
			if m.Value != nil {
				v := *m.Value
				m.Value = &v
			}
			m.Matcher.Restriction = cloneRestriction(m.Matcher.Restriction)
			d.Mapping = &m
		}
		e.Data = &d
	}
	return e
}

func cloneRestriction(r *eipdef.Restriction) *eipdef.Restriction {
	if r == nil {
		return nil
	}
	out := *r
	out.Enum = slices.Clone(r.Enum)
	return &out
}

func cloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = cloneNode(n)
	}
	return out
}

func cloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = cloneEdge(e)
	}
	return out
}

func cloneConfigs(configs map[string]EipConfig) map[string]EipConfig {
	out := make(map[string]EipConfig, len(configs))
	for id, c := range configs {
		out[id] = c.Clone()
	}
	return out
}
