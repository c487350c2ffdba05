package flow

import (
	"reflect"
	"slices"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
)

// ChangeType is the kind of a diagram change event.
type ChangeType string

// Change types
const (
	ChangePosition   ChangeType = "position"
	ChangeDimensions ChangeType = "dimensions"
	ChangeSelect     ChangeType = "select"
	ChangeRemove     ChangeType = "remove"
	ChangeAdd        ChangeType = "add"
	ChangeReset      ChangeType = "reset"
)

// Dimensions is a measured node size.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeChange is one node delta reported by the diagramming surface.
type NodeChange struct {
	Type       ChangeType    `json:"type"`
	ID         string        `json:"id"`
	Position   *layout.Point `json:"position,omitempty"`
	Dragging   *bool         `json:"dragging,omitempty"`
	Dimensions *Dimensions   `json:"dimensions,omitempty"`
	Selected   bool          `json:"selected,omitempty"`
	Item       *Node         `json:"item,omitempty"`
	// EipID is the component of a node added with ChangeAdd.
	EipID ident.EipID `json:"eipId"`
}

// EdgeChange is one edge delta reported by the diagramming surface.
type EdgeChange struct {
	Type     ChangeType `json:"type"`
	ID       string     `json:"id"`
	Selected bool       `json:"selected,omitempty"`
	Item     *Edge      `json:"item,omitempty"`
}

// Connection is a connect request between two node handles.
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// EdgeID returns the deterministic id of the edge created for c.
func (c Connection) EdgeID() string {
	return "reactflow__edge-" + c.Source + c.SourceHandle + "-" + c.Target + c.TargetHandle
}

// ChannelMappingChildren names the child elements that bind router outputs to
// channels.
var ChannelMappingChildren = []string{"mapping"}

// ChannelAttribute is the mapping child attribute naming the target channel.
// The matcher is the mapping attribute that is not this one.
const ChannelAttribute = "channel"

// OnNodesChange applies node deltas in order. Removing a node also removes
// its config subtree and attached edges in the same commit. Changes naming
// unknown nodes are ignored. Added and reset nodes are held to the same label
// uniqueness as UpdateLabel.
func (s *Store) OnNodesChange(changes []NodeChange) error {
	const op = "OnNodesChange"
	return s.mutate(op, func(st *state) error {
		removed := make(map[string]bool)
		for _, ch := range changes {
			if ch.Type == ChangeAdd {
				if err := addNode(st, ch, removed); err != nil {
					return err
				}
				continue
			}

			i := st.nodeIndex(ch.ID)
			if i < 0 {
				continue
			}
			switch ch.Type {
			case ChangePosition:
				if ch.Position != nil {
					st.nodes[i].Position = *ch.Position
				}
				if ch.Dragging != nil {
					st.nodes[i].Dragging = *ch.Dragging
				}
			case ChangeDimensions:
				if ch.Dimensions != nil {
					w, h := ch.Dimensions.Width, ch.Dimensions.Height
					st.nodes[i].Width, st.nodes[i].Height = &w, &h
				}
			case ChangeSelect:
				if ch.Selected {
					st.selectedChild = ""
				}
				st.nodes[i].Selected = ch.Selected
			case ChangeRemove:
				removed[ch.ID] = true
				st.nodes = slices.Delete(st.nodes, i, i+1)
			case ChangeReset:
				if ch.Item == nil || ch.Item.ID != ch.ID {
					return contract(op, "reset of node %s carries no matching item", ch.ID)
				}
				if err := checkLabel(st, op, *ch.Item); err != nil {
					return err
				}
				st.nodes[i] = placeNode(st, *ch.Item)
			default:
				return contract(op, "unknown node change type %q", ch.Type)
			}
		}
		st.removeNodes(removed)
		return nil
	})
}

// addNode inserts a new root node with an empty config. The id must be
// unused by every node and config, including ids removed earlier in the
// same batch, whose subtrees are only dropped when the batch ends.
func addNode(st *state, ch NodeChange, removed map[string]bool) error {
	const op = "OnNodesChange"
	if ch.Item == nil || ch.Item.ID == "" {
		return contract(op, "add change carries no node")
	}
	id := ch.Item.ID
	switch {
	case removed[id]:
		return contract(op, "node %s was removed earlier in the same batch", id)
	case st.nodeIndex(id) >= 0:
		return contract(op, "node %s already exists", id)
	}
	if _, ok := st.configs[id]; ok {
		return contract(op, "id %s already has a configuration", id)
	}
	if ch.EipID.IsZero() {
		return contract(op, "added node %s has no component id", id)
	}
	if err := checkLabel(st, op, *ch.Item); err != nil {
		return err
	}
	st.configs[id] = NewConfig(ch.EipID)
	st.nodes = append(st.nodes, placeNode(st, *ch.Item))
	return nil
}

func checkLabel(st *state, op string, n Node) error {
	if owner, taken := st.labelOwner(n.Data.Label, n.ID); taken {
		return errors.NewDuplicateLabel(component, op, n.ID, n.Data.Label, owner)
	}
	return nil
}

// placeNode copies an item from the diagramming surface into the canvas. A
// selected item ends any child selection.
func placeNode(st *state, item Node) Node {
	n := cloneNode(item)
	if n.Type == "" {
		n.Type = NodeType
	}
	if n.Selected {
		st.selectedChild = ""
	}
	return n
}

// OnEdgesChange applies edge deltas in order. Changes naming unknown edges
// are ignored. The kind of an added edge is derived from its source node
// exactly as OnConnect does. A reset may not change an edge's source, kind,
// or channel mapping.
func (s *Store) OnEdgesChange(changes []EdgeChange) error {
	const op = "OnEdgesChange"
	return s.mutate(op, func(st *state) error {
		for _, ch := range changes {
			if ch.Type == ChangeAdd {
				if ch.Item == nil || ch.Item.ID == "" {
					return contract(op, "add change carries no edge")
				}
				if st.nodeIndex(ch.Item.Source) < 0 || st.nodeIndex(ch.Item.Target) < 0 {
					return contract(op, "edge %s references a missing node", ch.Item.ID)
				}
				if st.edgeIndex(ch.Item.ID) >= 0 {
					continue
				}
				edge := cloneEdge(*ch.Item)
				if err := s.deriveKind(st, op, &edge); err != nil {
					return err
				}
				if edge.Selected {
					st.selectedChild = ""
				}
				st.edges = append(st.edges, edge)
				continue
			}

			i := st.edgeIndex(ch.ID)
			if i < 0 {
				continue
			}
			switch ch.Type {
			case ChangeSelect:
				if ch.Selected {
					st.selectedChild = ""
				}
				st.edges[i].Selected = ch.Selected
			case ChangeRemove:
				st.edges = slices.Delete(st.edges, i, i+1)
			case ChangeReset:
				if ch.Item == nil || ch.Item.ID != ch.ID {
					return contract(op, "reset of edge %s carries no matching item", ch.ID)
				}
				old, edge := st.edges[i], cloneEdge(*ch.Item)
				if edge.Source != old.Source || edge.Type != old.Type ||
					!reflect.DeepEqual(mappingOf(edge), mappingOf(old)) {
					return contract(op, "reset of edge %s changes its source, type, or channel mapping", ch.ID)
				}
				if st.nodeIndex(edge.Target) < 0 {
					return contract(op, "edge %s references a missing node", ch.ID)
				}
				edge.Animated = old.Animated
				if edge.Selected {
					st.selectedChild = ""
				}
				st.edges[i] = edge
			case ChangePosition, ChangeDimensions:
			default:
				return contract(op, "unknown edge change type %q", ch.Type)
			}
		}
		return nil
	})
}

// OnConnect adds the edge for a connect request and returns it. A request
// matching an existing edge returns that edge unchanged. When the source is a
// content based router the edge is a dynamic routing edge bound to the
// source's enabled mapping child.
func (s *Store) OnConnect(conn Connection) (Edge, error) {
	const op = "OnConnect"
	var out Edge
	err := s.mutate(op, func(st *state) error {
		if st.nodeIndex(conn.Source) < 0 {
			return contract(op, "no source node with id %s", conn.Source)
		}
		if st.nodeIndex(conn.Target) < 0 {
			return contract(op, "no target node with id %s", conn.Target)
		}
		for _, e := range st.edges {
			if e.Source == conn.Source && e.Target == conn.Target &&
				e.SourceHandle == conn.SourceHandle && e.TargetHandle == conn.TargetHandle {
				out = cloneEdge(e)
				return nil
			}
		}

		edge := Edge{
			ID:           conn.EdgeID(),
			Source:       conn.Source,
			Target:       conn.Target,
			SourceHandle: conn.SourceHandle,
			TargetHandle: conn.TargetHandle,
		}
		if err := s.deriveKind(st, op, &edge); err != nil {
			return err
		}

		st.edges = append(st.edges, edge)
		out = cloneEdge(edge)
		return nil
	})
	return out, err
}

// deriveKind sets the kind, animation, and mapping of e from its source
// node's role. An edge out of a content based router becomes a dynamic
// routing edge bound to the router's mapping child, keeping a mapping value
// already carried for that child; any other known source gives a standard
// edge. Without a definition for the source, the given kind is kept when it
// is well formed.
func (s *Store) deriveKind(st *state, op string, e *Edge) error {
	comp := s.sourceComponent(st, e.Source)
	if comp == nil {
		switch {
		case e.Type == EdgeStandard:
			e.Animated, e.Data = false, nil
		case e.Type == EdgeDynamic && mappingOf(*e) != nil:
		default:
			return contract(op, "edge %s has type %q without a known source component", e.ID, e.Type)
		}
		return nil
	}
	if comp.ConnectionType != eipdef.ConnectionContentBasedRouter {
		e.Type, e.Animated, e.Data = EdgeStandard, false, nil
		return nil
	}

	mapping, err := channelMapping(st, op, e.Source, comp)
	if err != nil {
		return err
	}
	if prev := mappingOf(*e); prev != nil && prev.MapperName == mapping.MapperName && prev.Value != nil {
		v := *prev.Value
		mapping.Value = &v
	}
	e.Type, e.Animated, e.Data = EdgeDynamic, true, &EdgeData{Mapping: mapping}
	return nil
}

func mappingOf(e Edge) *ChannelMapping {
	if e.Data == nil {
		return nil
	}
	return e.Data.Mapping
}

func (s *Store) sourceComponent(st *state, nodeID string) *eipdef.Component {
	if s.defs == nil {
		return nil
	}
	cfg, ok := st.configs[nodeID]
	if !ok {
		return nil
	}
	comp, ok := s.defs.Lookup(cfg.EipID)
	if !ok {
		return nil
	}
	return comp
}

// channelMapping finds the router's enabled mapping child and its value
// matcher attribute.
func channelMapping(st *state, op, routerID string, router *eipdef.Component) (*ChannelMapping, error) {
	var mapper *eipdef.Child
	for _, childID := range st.configs[routerID].Children {
		cfg, ok := st.configs[childID]
		if !ok || !slices.Contains(ChannelMappingChildren, cfg.EipID.Name) {
			continue
		}
		if def, ok := router.Child(cfg.EipID.Name); ok {
			mapper = def
			break
		}
	}
	if mapper == nil {
		return nil, contract(op, "source component (%s) does not have a recognized channel mapping child", router.Name)
	}

	for _, attr := range mapper.Attributes {
		if attr.Name != ChannelAttribute {
			return &ChannelMapping{MapperName: mapper.Name, Matcher: attr}, nil
		}
	}
	return nil, contract(op, "channel mapping component (%s) does not have a recognized value matcher attribute", mapper.Name)
}
