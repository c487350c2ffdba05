package flow

import (
	"slices"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
)

// CreateRootNode adds a canvas node for the component at pos together with
// its empty configuration record, and returns the new node id.
func (s *Store) CreateRootNode(eipID ident.EipID, pos layout.Point) string {
	id := s.ids.NodeID()
	_ = s.mutate("CreateRootNode", func(st *state) error {
		source, target := st.layout.Orientation.Handles()
		st.nodes = append(st.nodes, Node{
			ID:             id,
			Type:           NodeType,
			Position:       pos,
			SourcePosition: source,
			TargetPosition: target,
		})
		st.configs[id] = NewConfig(eipID)
		return nil
	})
	return id
}

// UpdateLabel sets a node's label. It fails with a DuplicateLabelError when
// another node already carries the same non-empty label.
func (s *Store) UpdateLabel(nodeID, label string) error {
	const op = "UpdateLabel"
	return s.mutate(op, func(st *state) error {
		i := st.nodeIndex(nodeID)
		if i < 0 {
			return contract(op, "no node with id %s", nodeID)
		}
		if owner, taken := st.labelOwner(label, nodeID); taken {
			return errors.NewDuplicateLabel(component, op, nodeID, label, owner)
		}
		st.nodes[i].Data.Label = label
		return nil
	})
}

// UpdateDescription sets the description of a root or child config.
func (s *Store) UpdateDescription(id, text string) error {
	const op = "UpdateDescription"
	return s.mutate(op, func(st *state) error {
		if !st.editConfig(id, func(c *EipConfig) { c.Description = text }) {
			return contract(op, "no config for id %s", id)
		}
		return nil
	})
}

// UpdateAttribute sets one attribute on the config for id. parentID is
// RootParent for root configs; otherwise id must be listed among parentID's
// children.
func (s *Store) UpdateAttribute(id, parentID, name string, value eipdef.Value) error {
	const op = "UpdateAttribute"
	return s.mutate(op, func(st *state) error {
		if parentID != RootParent {
			parent, ok := st.configs[parentID]
			if !ok {
				return contract(op, "no config for parent id %s", parentID)
			}
			if !slices.Contains(parent.Children, id) {
				return contract(op, "%s is not a child of %s", id, parentID)
			}
		}
		if !st.editConfig(id, func(c *EipConfig) { c.Attributes[name] = value }) {
			return contract(op, "no config for id %s", id)
		}
		return nil
	})
}

// DeleteAttribute removes one attribute. Removing an absent attribute is not
// an error.
func (s *Store) DeleteAttribute(id, name string) error {
	const op = "DeleteAttribute"
	return s.mutate(op, func(st *state) error {
		if !st.editConfig(id, func(c *EipConfig) { delete(c.Attributes, name) }) {
			return contract(op, "no config for id %s", id)
		}
		return nil
	})
}

// EnableChild appends a new child config for the component under parentID
// and returns the child id.
func (s *Store) EnableChild(parentID string, childEipID ident.EipID) (string, error) {
	const op = "EnableChild"
	childID := s.ids.ChildID()
	err := s.mutate(op, func(st *state) error {
		if !st.editConfig(parentID, func(c *EipConfig) { c.Children = append(c.Children, childID) }) {
			return contract(op, "no config for parent id %s", parentID)
		}
		st.configs[childID] = NewConfig(childEipID)
		return nil
	})
	if err != nil {
		return "", err
	}
	return childID, nil
}

// DisableChild detaches childID from parentID and deletes its whole config
// subtree. It fails with a ChildNotFoundError when childID is not listed
// under parentID.
func (s *Store) DisableChild(parentID, childID string) error {
	const op = "DisableChild"
	return s.mutate(op, func(st *state) error {
		parent, ok := st.configs[parentID]
		if !ok {
			return contract(op, "no config for parent id %s", parentID)
		}
		idx := slices.Index(parent.Children, childID)
		if idx < 0 {
			return errors.NewChildNotFound(component, op, parentID, childID)
		}
		st.editConfig(parentID, func(c *EipConfig) { c.Children = slices.Delete(c.Children, idx, idx+1) })
		st.removeSubtree(childID)
		return nil
	})
}

// SetRouterKey sets the router key name and one of its attributes, creating
// the key on first use.
func (s *Store) SetRouterKey(nodeID, keyName, attrName string, value eipdef.Value) error {
	const op = "SetRouterKey"
	return s.mutate(op, func(st *state) error {
		ok := st.editConfig(nodeID, func(c *EipConfig) {
			if c.RouterKey == nil {
				c.RouterKey = &RouterKey{}
			}
			c.RouterKey.Name = keyName
			if c.RouterKey.Attributes == nil {
				c.RouterKey.Attributes = map[string]eipdef.Value{}
			}
			c.RouterKey.Attributes[attrName] = value
		})
		if !ok {
			return contract(op, "no config for id %s", nodeID)
		}
		return nil
	})
}

// SelectChild selects a nested child config and clears node and edge
// selection.
func (s *Store) SelectChild(childID string) error {
	const op = "SelectChild"
	return s.mutate(op, func(st *state) error {
		if _, ok := st.configs[childID]; !ok {
			return contract(op, "no config for child id %s", childID)
		}
		if st.nodeIndex(childID) >= 0 {
			return contract(op, "%s is a root node, not a child", childID)
		}
		st.clearSelectedFlags()
		st.selectedChild = childID
		return nil
	})
}

// ClearChildSelection empties the child selection slot.
func (s *Store) ClearChildSelection() {
	_ = s.mutate("ClearChildSelection", func(st *state) error {
		st.selectedChild = ""
		return nil
	})
}

// ClearFlow removes every node, edge, and config and clears the child
// selection. Layout settings are kept.
func (s *Store) ClearFlow() {
	_ = s.mutate("ClearFlow", func(st *state) error {
		*st = *newState(st.layout)
		return nil
	})
}

// ClearDiagramSelections clears the selected flag of every node and edge.
// The child selection slot is not touched.
func (s *Store) ClearDiagramSelections() {
	_ = s.mutate("ClearDiagramSelections", func(st *state) error {
		st.clearSelectedFlags()
		return nil
	})
}

// SetLayoutOrientation changes the orientation and lays the flow out again.
func (s *Store) SetLayoutOrientation(o layout.Orientation) error {
	const op = "SetLayoutOrientation"
	return s.mutate(op, func(st *state) error {
		if !o.Valid() {
			return errors.WrapInvalid(errors.New("unknown orientation "+string(o)), "Store", op, "validate orientation")
		}
		st.layout.Orientation = o
		s.relayout(st)
		return nil
	})
}

// CycleLayoutDensity advances density through compact, cozy, comfortable and
// lays the flow out again. It returns the new density.
func (s *Store) CycleLayoutDensity() layout.Density {
	var next layout.Density
	_ = s.mutate("CycleLayoutDensity", func(st *state) error {
		st.layout.Density = st.layout.Density.Next()
		next = st.layout.Density
		s.relayout(st)
		return nil
	})
	return next
}

// MappingUpdate holds the channel mapping fields to overwrite. Nil fields
// are left unchanged.
type MappingUpdate struct {
	MapperName *string
	Matcher    *eipdef.Attribute
	Value      *string
}

// UpdateEdgeMapping merges update into the mapping of a dynamic routing edge.
func (s *Store) UpdateEdgeMapping(edgeID string, update MappingUpdate) error {
	const op = "UpdateEdgeMapping"
	return s.mutate(op, func(st *state) error {
		i := st.edgeIndex(edgeID)
		if i < 0 {
			return contract(op, "no edge with id %s", edgeID)
		}
		edge := cloneEdge(st.edges[i])
		if !edge.IsDynamic() {
			return contract(op, "edge %s has type %q, expected %q", edgeID, edge.Type, EdgeDynamic)
		}
		if edge.Data == nil {
			edge.Data = &EdgeData{}
		}
		if edge.Data.Mapping == nil {
			edge.Data.Mapping = &ChannelMapping{}
		}
		m := edge.Data.Mapping
		if update.MapperName != nil {
			m.MapperName = *update.MapperName
		}
		if update.Matcher != nil {
			m.Matcher = *update.Matcher
		}
		if update.Value != nil {
			v := *update.Value
			m.Value = &v
		}
		st.edges[i] = edge
		return nil
	})
}
