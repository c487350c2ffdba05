package flow

import (
	"encoding/json"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/layout"
)

// CurrentVersion is the schema version written by Export.
const CurrentVersion = 1

// SerializedFlow is the exported form of a flow.
type SerializedFlow struct {
	Version    int                  `json:"version"`
	Nodes      []Node               `json:"nodes"`
	Edges      []Edge               `json:"edges"`
	EipConfigs map[string]EipConfig `json:"eipConfigs"`
}

// Export returns a copy of the flow in its serialized form. Selection and
// layout settings are not part of it.
func (s *Store) Export() SerializedFlow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SerializedFlow{
		Version:    CurrentVersion,
		Nodes:      cloneNodes(s.cur.nodes),
		Edges:      cloneEdges(s.cur.edges),
		EipConfigs: cloneConfigs(s.cur.configs),
	}
}

// ExportJSON marshals Export.
func (s *Store) ExportJSON() ([]byte, error) {
	data, err := json.Marshal(s.Export())
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "ExportJSON", "marshal flow")
	}
	return data, nil
}

// Restore replaces the flow and the layout settings with persisted state.
// The child selection is cleared.
func (s *Store) Restore(f SerializedFlow, settings layout.Settings) error {
	const op = "Restore"
	if err := settings.Validate(); err != nil {
		err = errors.WrapInvalid(err, "Store", op, "validate layout")
		s.observe(op, err)
		return err
	}
	f = normalizeFlow(f)
	if err := validateFlow(f); err != nil {
		s.observe(op, err)
		return err
	}
	return s.mutate(op, func(st *state) error {
		st.nodes, st.edges, st.configs = f.Nodes, f.Edges, f.EipConfigs
		st.layout = settings
		st.selectedChild = ""
		return nil
	})
}
