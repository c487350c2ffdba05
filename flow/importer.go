package flow

import (
	_ "embed"
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/pkg/ident"
)

//go:embed schema/flow.schema.json
var flowSchemaJSON []byte

var flowSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(flowSchemaJSON))
})

// Schema names reported in ImportResult.
const (
	SchemaCurrent      = "current"
	SchemaLegacyInline = "legacy-inline"
)

// ImportResult describes a successful import.
type ImportResult struct {
	Schema   string   `json:"schema"`
	Warnings []string `json:"warnings,omitempty"`
}

type rawFlow map[string]json.RawMessage

// schemaDetector recognizes one serialized shape and converts it to the
// current one. Detectors run in order and the first match wins; support for a
// new shape is added by appending a detector.
type schemaDetector struct {
	name      string
	detect    func(doc rawFlow) bool
	normalize func(doc rawFlow, ids ident.Generator) (SerializedFlow, []string, error)
}

var schemaDetectors = []schemaDetector{
	{name: SchemaCurrent, detect: isCurrent, normalize: decodeCurrent},
	{name: SchemaLegacyInline, detect: isLegacyInline, normalize: decodeLegacyInline},
}

func malformed(format string, args ...any) error {
	return errors.NewMalformedFlow(component, "Import", format, args...)
}

// Decode parses a serialized flow of any supported shape, converts it to the
// current shape, and validates it. ids allocates child ids for configuration
// lifted out of legacy shapes.
func Decode(raw []byte, ids ident.Generator) (SerializedFlow, *ImportResult, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return SerializedFlow{}, nil, malformed("invalid JSON: %v", err)
	}
	if err := validateStructure(doc); err != nil {
		return SerializedFlow{}, nil, err
	}

	var fields rawFlow
	if err := json.Unmarshal(raw, &fields); err != nil {
		return SerializedFlow{}, nil, malformed("invalid JSON: %v", err)
	}

	for _, d := range schemaDetectors {
		if !d.detect(fields) {
			continue
		}
		f, warnings, err := d.normalize(fields, ids)
		if err != nil {
			return SerializedFlow{}, nil, err
		}
		f = normalizeFlow(f)
		if err := validateFlow(f); err != nil {
			return SerializedFlow{}, nil, err
		}
		return f, &ImportResult{Schema: d.name, Warnings: warnings}, nil
	}
	return SerializedFlow{}, nil, malformed("flow has neither eipConfigs nor a legacy inline configuration")
}

func validateStructure(doc any) error {
	schema, err := flowSchema()
	if err != nil {
		return errors.WrapFatal(err, "flow", "Import", "compile flow schema")
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return malformed("%v", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return malformed("%s", strings.Join(msgs, "; "))
}

func isCurrent(doc rawFlow) bool {
	_, ok := doc["eipConfigs"]
	return ok
}

func decodeCurrent(doc rawFlow, _ ident.Generator) (SerializedFlow, []string, error) {
	var f SerializedFlow
	if v, ok := doc["version"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &f.Version); err != nil {
			return f, nil, malformed("version: %v", err)
		}
		if f.Version > CurrentVersion {
			return f, nil, errors.NewUnsupportedVersion(component, "Import", f.Version, CurrentVersion)
		}
	}
	if err := json.Unmarshal(doc["nodes"], &f.Nodes); err != nil {
		return f, nil, malformed("nodes: %v", err)
	}
	if err := json.Unmarshal(doc["edges"], &f.Edges); err != nil {
		return f, nil, malformed("edges: %v", err)
	}
	if err := json.Unmarshal(doc["eipConfigs"], &f.EipConfigs); err != nil {
		return f, nil, malformed("eipConfigs: %v", err)
	}
	return f, nil, nil
}

type legacyNodeConfig struct {
	Attributes  map[string]eipdef.Value            `json:"attributes"`
	Children    map[string]map[string]eipdef.Value `json:"children"`
	Description string                             `json:"description"`
}

func isLegacyInline(doc rawFlow) bool {
	if _, ok := doc["eipConfigs"]; ok {
		return false
	}
	if v, ok := doc["version"]; ok && string(v) != "null" {
		return false
	}
	if _, ok := doc["eipNodeConfigs"]; ok {
		return true
	}
	var nodes []struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(doc["nodes"], &nodes); err != nil {
		return false
	}
	for _, n := range nodes {
		if _, ok := n.Data["eipId"]; ok {
			return true
		}
	}
	return false
}

// decodeLegacyInline lifts the component id and inline attributes out of each
// node's display data, plus the per-node attribute tree when one exists.
func decodeLegacyInline(doc rawFlow, ids ident.Generator) (SerializedFlow, []string, error) {
	f := SerializedFlow{Version: CurrentVersion, EipConfigs: map[string]EipConfig{}}
	var warnings []string

	tree := map[string]legacyNodeConfig{}
	if raw, ok := doc["eipNodeConfigs"]; ok {
		if err := json.Unmarshal(raw, &tree); err != nil {
			return f, nil, malformed("eipNodeConfigs: %v", err)
		}
	} else {
		warnings = append(warnings, "legacy flow has no configuration tree; attribute and child configuration could not be preserved")
	}

	var rawNodes []map[string]json.RawMessage
	if err := json.Unmarshal(doc["nodes"], &rawNodes); err != nil {
		return f, nil, malformed("nodes: %v", err)
	}

	for _, rn := range rawNodes {
		var data map[string]json.RawMessage
		if raw, ok := rn["data"]; ok {
			if err := json.Unmarshal(raw, &data); err != nil {
				return f, nil, malformed("node data: %v", err)
			}
		}

		var label string
		if raw, ok := data["label"]; ok {
			_ = json.Unmarshal(raw, &label)
		}
		if label == DefaultLabel {
			label = ""
		}
		display, _ := json.Marshal(NodeData{Label: label})
		rn["data"] = display

		var node Node
		encoded, _ := json.Marshal(rn)
		if err := json.Unmarshal(encoded, &node); err != nil {
			return f, nil, malformed("node: %v", err)
		}

		rawID, ok := data["eipId"]
		if !ok {
			return f, nil, malformed("legacy node %s has no eipId", node.ID)
		}
		var eipID ident.EipID
		if err := json.Unmarshal(rawID, &eipID); err != nil {
			return f, nil, malformed("legacy node %s eipId: %v", node.ID, err)
		}

		cfg := NewConfig(eipID)
		if raw, ok := data["attributes"]; ok {
			if err := json.Unmarshal(raw, &cfg.Attributes); err != nil {
				return f, nil, malformed("legacy node %s attributes: %v", node.ID, err)
			}
		}

		if legacy, ok := tree[node.ID]; ok {
			maps.Copy(cfg.Attributes, legacy.Attributes)
			cfg.Description = legacy.Description
			for _, name := range slices.Sorted(maps.Keys(legacy.Children)) {
				childID := ids.ChildID()
				child := NewConfig(ident.EipID{Namespace: eipID.Namespace, Name: name})
				maps.Copy(child.Attributes, legacy.Children[name])
				cfg.Children = append(cfg.Children, childID)
				f.EipConfigs[childID] = child
			}
		}

		f.Nodes = append(f.Nodes, node)
		f.EipConfigs[node.ID] = cfg
	}

	if err := json.Unmarshal(doc["edges"], &f.Edges); err != nil {
		return f, nil, malformed("edges: %v", err)
	}
	return f, warnings, nil
}

// normalizeFlow returns a private copy of f with empty collections filled in.
func normalizeFlow(f SerializedFlow) SerializedFlow {
	out := SerializedFlow{
		Version:    CurrentVersion,
		Nodes:      cloneNodes(f.Nodes),
		Edges:      cloneEdges(f.Edges),
		EipConfigs: cloneConfigs(f.EipConfigs),
	}
	for i := range out.Nodes {
		if out.Nodes[i].Type == "" {
			out.Nodes[i].Type = NodeType
		}
	}
	return out
}

// validateFlow checks the referential invariants: unique ids and labels,
// edge endpoints on existing nodes, and a config table that forms a forest
// rooted at exactly the node ids.
func validateFlow(f SerializedFlow) error {
	nodes := make(map[string]bool, len(f.Nodes))
	labels := make(map[string]string, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.ID == "" {
			return malformed("node without id")
		}
		if nodes[n.ID] {
			return malformed("duplicate node id %s", n.ID)
		}
		nodes[n.ID] = true
		if n.Data.Label != "" {
			if other, dup := labels[n.Data.Label]; dup {
				return malformed("nodes %s and %s share the label %q", other, n.ID, n.Data.Label)
			}
			labels[n.Data.Label] = n.ID
		}
		if _, ok := f.EipConfigs[n.ID]; !ok {
			return malformed("node %s has no eipConfig", n.ID)
		}
	}

	edges := make(map[string]bool, len(f.Edges))
	for _, e := range f.Edges {
		if edges[e.ID] {
			return malformed("duplicate edge id %s", e.ID)
		}
		edges[e.ID] = true
		if !nodes[e.Source] || !nodes[e.Target] {
			return malformed("edge %s references a missing node", e.ID)
		}
		switch e.Type {
		case EdgeStandard:
		case EdgeDynamic:
			if e.Data == nil || e.Data.Mapping == nil {
				return malformed("dynamic edge %s has no channel mapping", e.ID)
			}
		default:
			return malformed("edge %s has unknown type %q", e.ID, e.Type)
		}
	}

	parents := make(map[string]string)
	for _, id := range slices.Sorted(maps.Keys(f.EipConfigs)) {
		c := f.EipConfigs[id]
		if c.EipID.Name == "" {
			return malformed("config %s has no component name", id)
		}
		for _, child := range c.Children {
			if nodes[child] {
				return malformed("node %s is listed as a child of %s", child, id)
			}
			if _, ok := f.EipConfigs[child]; !ok {
				return malformed("config %s lists missing child %s", id, child)
			}
			if p, seen := parents[child]; seen {
				return malformed("child %s is listed under both %s and %s", child, p, id)
			}
			parents[child] = id
		}
	}

	reachable := make(map[string]bool, len(f.EipConfigs))
	stack := make([]string, 0, len(nodes))
	for id := range nodes {
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		stack = append(stack, f.EipConfigs[id].Children...)
	}
	for _, id := range slices.Sorted(maps.Keys(f.EipConfigs)) {
		if !reachable[id] {
			return malformed("config %s is not reachable from any node", id)
		}
	}
	return nil
}

// Import replaces the flow with a serialized one. Selection and layout
// settings are kept, except that a child selection whose config no longer
// exists is cleared.
func (s *Store) Import(raw []byte) (*ImportResult, error) {
	const op = "Import"
	f, result, err := Decode(raw, s.ids)
	if err != nil {
		s.observe(op, err)
		return nil, err
	}
	for _, w := range result.Warnings {
		s.logger.Warn("flow import warning", "schema", result.Schema, "warning", w)
	}
	err = s.mutate(op, func(st *state) error {
		replace(st, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ImportObject imports an already decoded JSON value.
func (s *Store) ImportObject(obj any) (*ImportResult, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		err = malformed("encode object: %v", err)
		s.observe("Import", err)
		return nil, err
	}
	return s.Import(raw)
}

// MergeFlow validates a generated flow exactly as Import does, replaces the
// current flow with it, and lays it out with the current settings. Edge kinds
// are derived from the source components as OnConnect does, since generated
// flows describe router outputs as plain edges.
func (s *Store) MergeFlow(candidate SerializedFlow) (*ImportResult, error) {
	const op = "MergeFlow"
	raw, err := json.Marshal(candidate)
	if err != nil {
		err = malformed("encode candidate: %v", err)
		s.observe(op, err)
		return nil, err
	}
	f, result, err := Decode(raw, s.ids)
	if err != nil {
		s.observe(op, err)
		return nil, err
	}
	err = s.mutate(op, func(st *state) error {
		replace(st, f)
		for i := range st.edges {
			if err := s.deriveKind(st, op, &st.edges[i]); err != nil {
				return malformed("%v", err)
			}
		}
		s.relayout(st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func replace(st *state, f SerializedFlow) {
	st.nodes, st.edges, st.configs = f.Nodes, f.Edges, f.EipConfigs
	if _, ok := st.configs[st.selectedChild]; !ok {
		st.selectedChild = ""
	}
}
