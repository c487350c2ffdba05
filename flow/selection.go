package flow

// SelectionState is the derived selection of the editor.
type SelectionState int

// Selection states
const (
	SelectionIdle SelectionState = iota
	SelectionNode
	SelectionEdge
	SelectionChild
)

func (s SelectionState) String() string {
	switch s {
	case SelectionNode:
		return "node"
	case SelectionEdge:
		return "edge"
	case SelectionChild:
		return "child"
	default:
		return "idle"
	}
}

// MarshalText encodes the state name.
func (s SelectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name. Unknown names decode as idle.
func (s *SelectionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "node":
		*s = SelectionNode
	case "edge":
		*s = SelectionEdge
	case "child":
		*s = SelectionChild
	default:
		*s = SelectionIdle
	}
	return nil
}

// Selection is the element side panels render configuration for.
type Selection struct {
	State SelectionState `json:"state"`
	ID    string         `json:"id,omitempty"`
}

// Selection derives the current selection. A selected child wins; otherwise
// exactly one selected node or edge is required, and multi-selection is Idle.
func (s *Store) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectionOf(s.cur)
}

func selectionOf(st *state) Selection {
	if st.selectedChild != "" {
		return Selection{State: SelectionChild, ID: st.selectedChild}
	}

	var sel Selection
	count := 0
	for _, n := range st.nodes {
		if n.Selected {
			count++
			sel = Selection{State: SelectionNode, ID: n.ID}
		}
	}
	for _, e := range st.edges {
		if e.Selected {
			count++
			sel = Selection{State: SelectionEdge, ID: e.ID}
		}
	}
	if count != 1 {
		return Selection{State: SelectionIdle}
	}
	return sel
}
