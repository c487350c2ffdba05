package flow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
	fixtures "github.com/c360/eipcanvas/testutil"
)

func buildSampleFlow(t *testing.T, s *Store) {
	t.Helper()
	r := s.CreateRootNode(fixtures.Router, layout.Point{X: 1, Y: 2})
	h := s.CreateRootNode(fixtures.HeaderEnricher, layout.Point{X: 3, Y: 4})
	l := s.CreateRootNode(fixtures.Logger, layout.Point{X: 5, Y: 6})
	require.NoError(t, s.UpdateLabel(r, "route"))
	require.NoError(t, s.UpdateAttribute(r, RootParent, "expression", eipdef.String("headers.type")))
	require.NoError(t, s.UpdateAttribute(r, RootParent, "apply-sequence", eipdef.Bool(true)))
	require.NoError(t, s.UpdateDescription(r, "by type"))
	_, err := s.EnableChild(r, fixtures.Mapping)
	require.NoError(t, err)
	header, err := s.EnableChild(h, fixtures.Header)
	require.NoError(t, err)
	script, err := s.EnableChild(header, fixtures.Script)
	require.NoError(t, err)
	require.NoError(t, s.UpdateAttribute(script, header, "lang", eipdef.String("groovy")))
	require.NoError(t, s.SetRouterKey(r, "header", "name", eipdef.String("type")))

	dyn, err := s.OnConnect(Connection{Source: r, Target: h})
	require.NoError(t, err)
	value := "orders"
	require.NoError(t, s.UpdateEdgeMapping(dyn.ID, MappingUpdate{Value: &value}))
	_, err = s.OnConnect(Connection{Source: h, Target: l})
	require.NoError(t, err)
	width := 140.0
	require.NoError(t, s.OnNodesChange([]NodeChange{{Type: ChangeDimensions, ID: l, Dimensions: &Dimensions{Width: width, Height: 80}}}))
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)
	buildSampleFlow(t, src)

	exported, err := src.ExportJSON()
	require.NoError(t, err)

	dst := newTestStore(t)
	res, err := dst.Import(exported)
	require.NoError(t, err)
	assert.Equal(t, SchemaCurrent, res.Schema)
	assert.Empty(t, res.Warnings)

	again, err := dst.ExportJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(exported), string(again))
	assert.Equal(t, src.Export(), dst.Export())
	assertForest(t, dst)
}

func TestImport_LegacyInlineWithoutTree(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Import([]byte(fixtures.LegacyInlineFlow))
	require.NoError(t, err)
	assert.Equal(t, SchemaLegacyInline, res.Schema)
	require.Len(t, res.Warnings, 1)

	cfg, ok := s.Config("a")
	require.True(t, ok)
	assert.Equal(t, ident.EipID{Namespace: "core", Name: "filter"}, cfg.EipID)
	assert.Empty(t, cfg.Attributes)
	assert.Empty(t, cfg.Children)

	raw, err := s.ExportJSON()
	require.NoError(t, err)
	var doc struct {
		Nodes []struct {
			Data map[string]any `json:"data"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Nodes, 1)
	assert.NotContains(t, doc.Nodes[0].Data, "eipId")
}

func TestImport_LegacyTree(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Import([]byte(fixtures.LegacyTreeFlow))
	require.NoError(t, err)
	assert.Equal(t, SchemaLegacyInline, res.Schema)
	assert.Empty(t, res.Warnings)

	nodes := s.Nodes()
	require.Len(t, nodes, 2)
	assert.Empty(t, nodes[0].Data.Label, "default label is not stored")
	assert.Equal(t, DefaultLabel, nodes[0].DisplayLabel())
	assert.Equal(t, "drop-empty", nodes[1].Data.Label)

	router, _ := s.Config("r")
	assert.Equal(t, fixtures.Router, router.EipID)
	assert.Equal(t, "routes by type", router.Description)
	assert.Equal(t, eipdef.String("headers.type"), router.Attributes["expression"])
	require.Len(t, router.Children, 1)

	mapping, ok := s.Config(router.Children[0])
	require.True(t, ok)
	assert.Equal(t, fixtures.Mapping, mapping.EipID)
	assert.Equal(t, eipdef.String("order"), mapping.Attributes["value"])
	assert.Equal(t, eipdef.String("orders"), mapping.Attributes["channel"])

	filter, _ := s.Config("f")
	assert.Equal(t, eipdef.String("payload != null"), filter.Attributes["expression"])
	assert.Equal(t, eipdef.Bool(true), filter.Attributes["throw-exception-on-rejection"])

	require.Len(t, s.Edges(), 1)
	assertForest(t, s)
}

func TestImport_CurrentFixture(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Import([]byte(fixtures.CurrentFlow))
	require.NoError(t, err)
	assert.Equal(t, SchemaCurrent, res.Schema)

	n2, _ := s.Config("n2")
	assert.Equal(t, []string{"c1"}, n2.Children)
	c1, _ := s.Config("c1")
	assert.Equal(t, eipdef.String("x-source"), c1.Attributes["name"])
	assertForest(t, s)
}

func TestImport_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{"nodes": [`},
		{"missing nodes", `{"edges": [], "eipConfigs": {}}`},
		{"node without id", `{"nodes": [{"type": "eipNode"}], "edges": [], "eipConfigs": {}}`},
		{"unknown shape", `{"nodes": [{"id": "a", "data": {}}], "edges": []}`},
		{"node without config", `{"version": 1, "nodes": [{"id": "a", "data": {}}], "edges": [], "eipConfigs": {}}`},
		{"dangling edge", `{"version": 1, "nodes": [{"id": "a", "data": {}}], "edges": [{"id": "e", "source": "a", "target": "b"}],
			"eipConfigs": {"a": {"eipId": {"namespace": "integration", "name": "filter"}}}}`},
		{"duplicate labels", `{"version": 1, "nodes": [{"id": "a", "data": {"label": "x"}}, {"id": "b", "data": {"label": "x"}}], "edges": [],
			"eipConfigs": {"a": {"eipId": {"namespace": "i", "name": "f"}}, "b": {"eipId": {"namespace": "i", "name": "f"}}}}`},
		{"orphan config", `{"version": 1, "nodes": [], "edges": [],
			"eipConfigs": {"c": {"eipId": {"namespace": "i", "name": "f"}}}}`},
		{"child shared by two parents", `{"version": 1, "nodes": [{"id": "a", "data": {}}, {"id": "b", "data": {}}], "edges": [],
			"eipConfigs": {"a": {"eipId": {"namespace": "i", "name": "f"}, "children": ["c"]},
			               "b": {"eipId": {"namespace": "i", "name": "f"}, "children": ["c"]},
			               "c": {"eipId": {"namespace": "i", "name": "h"}}}}`},
		{"dynamic edge without mapping", `{"version": 1, "nodes": [{"id": "a", "data": {}}, {"id": "b", "data": {}}],
			"edges": [{"id": "e", "source": "a", "target": "b", "type": "dynamicEdge"}],
			"eipConfigs": {"a": {"eipId": {"namespace": "i", "name": "f"}}, "b": {"eipId": {"namespace": "i", "name": "f"}}}}`},
		{"legacy node without eipId", `{"nodes": [{"id": "a", "data": {}}], "edges": [], "eipNodeConfigs": {}}`},
		{"non scalar attribute", `{"version": 1, "nodes": [{"id": "a", "data": {}}], "edges": [],
			"eipConfigs": {"a": {"eipId": {"namespace": "i", "name": "f"}, "attributes": {"x": {"y": 1}}}}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			s.CreateRootNode(fixtures.Filter, layout.Point{})
			before := s.Snapshot()

			_, err := s.Import([]byte(tc.raw))
			var mf *errors.MalformedFlowError
			require.True(t, errors.As(err, &mf), "got %v", err)
			assert.True(t, errors.IsInvalid(err))
			assert.Equal(t, before, s.Snapshot(), "rejected import must not change the flow")
		})
	}
}

func TestImport_FutureVersion(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Import([]byte(fixtures.FutureFlow))

	var uv *errors.UnsupportedVersionError
	require.True(t, errors.As(err, &uv))
	assert.Equal(t, 99, uv.Version)
	assert.Equal(t, CurrentVersion, uv.Supported)
}

func TestImport_KeepsLayoutAndSelection(t *testing.T) {
	settings := layout.Settings{Orientation: layout.Vertical, Density: layout.Comfortable}
	s := newTestStore(t, WithLayout(settings))
	_, err := s.Import([]byte(fixtures.CurrentFlow))
	require.NoError(t, err)
	require.NoError(t, s.SelectChild("c1"))

	_, err = s.Import([]byte(fixtures.CurrentFlow))
	require.NoError(t, err)
	assert.Equal(t, "c1", s.Selection().ID)
	assert.Equal(t, settings, s.Layout())

	_, err = s.Import([]byte(fixtures.LegacyInlineFlow))
	require.NoError(t, err)
	assert.Equal(t, SelectionIdle, s.Selection().State, "dangling child selection is cleared")
	assert.Equal(t, settings, s.Layout())

	positions := s.Nodes()[0].Position
	assert.Equal(t, layout.Point{}, positions, "import does not lay out")
}

func TestImportObject(t *testing.T) {
	s := newTestStore(t)
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(fixtures.CurrentFlow), &obj))

	res, err := s.ImportObject(obj)
	require.NoError(t, err)
	assert.Equal(t, SchemaCurrent, res.Schema)
	assert.Len(t, s.Nodes(), 2)

	_, err = s.ImportObject(func() {})
	assert.True(t, errors.IsInvalid(err))
}

func TestMergeFlow(t *testing.T) {
	s := newTestStore(t)
	s.CreateRootNode(fixtures.Filter, layout.Point{})

	candidate := SerializedFlow{
		Nodes: []Node{
			{ID: "g1", Position: layout.Point{X: 900, Y: 900}},
			{ID: "g2", Position: layout.Point{X: -5, Y: 0}, Data: NodeData{Label: "log"}},
		},
		Edges: []Edge{{ID: "reactflow__edge-g1-g2", Source: "g1", Target: "g2"}},
		EipConfigs: map[string]EipConfig{
			"g1": NewConfig(fixtures.JMSInbound),
			"g2": NewConfig(fixtures.Logger),
		},
	}
	res, err := s.MergeFlow(candidate)
	require.NoError(t, err)
	assert.Equal(t, SchemaCurrent, res.Schema)

	nodes := s.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, NodeType, nodes[0].Type)
	assert.Equal(t, layout.Point{X: 0, Y: 0}, nodes[0].Position)
	assert.Equal(t, 178.0, nodes[1].Position.X)
	assert.Equal(t, layout.PathStyle, s.Edges()[0].PathStyle)

	candidate.Edges = append(candidate.Edges, Edge{ID: "bad", Source: "g1", Target: "missing"})
	_, err = s.MergeFlow(candidate)
	assert.True(t, errors.IsInvalid(err))
	assert.Len(t, s.Edges(), 1)
}

func TestMergeFlow_DerivesRouterEdges(t *testing.T) {
	s := newTestStore(t)
	router := NewConfig(fixtures.Router)
	router.Children = []string{"m"}
	candidate := SerializedFlow{
		Nodes: []Node{{ID: "r"}, {ID: "l"}},
		Edges: []Edge{{ID: "reactflow__edge-r-l", Source: "r", Target: "l"}},
		EipConfigs: map[string]EipConfig{
			"r": router,
			"m": NewConfig(fixtures.Mapping),
			"l": NewConfig(fixtures.Logger),
		},
	}

	_, err := s.MergeFlow(candidate)
	require.NoError(t, err)
	edges := s.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, EdgeDynamic, edges[0].Type)
	assert.True(t, edges[0].Animated)
	require.NotNil(t, edges[0].Data)
	assert.Equal(t, "mapping", edges[0].Data.Mapping.MapperName)
	assertForest(t, s)
	assertRoundTrip(t, s)

	t.Run("router without mapping child", func(t *testing.T) {
		bare := candidate
		bare.EipConfigs = map[string]EipConfig{
			"r": NewConfig(fixtures.Router),
			"l": NewConfig(fixtures.Logger),
		}
		_, err := s.MergeFlow(bare)
		assert.True(t, errors.IsInvalid(err))
		_, ok := s.Config("m")
		assert.True(t, ok, "failed merge leaves the flow unchanged")
	})
}

func TestRestore(t *testing.T) {
	src := newTestStore(t)
	buildSampleFlow(t, src)
	exported := src.Export()

	dst := newTestStore(t)
	settings := layout.Settings{Orientation: layout.Vertical, Density: layout.Compact}
	require.NoError(t, dst.Restore(exported, settings))
	assert.Equal(t, exported, dst.Export())
	assert.Equal(t, settings, dst.Layout())

	err := dst.Restore(exported, layout.Settings{Orientation: "sideways", Density: layout.Cozy})
	assert.True(t, errors.IsInvalid(err))

	broken := src.Export()
	broken.Nodes = append(broken.Nodes, Node{ID: "orphan"})
	err = dst.Restore(broken, settings)
	var mf *errors.MalformedFlowError
	assert.True(t, errors.As(err, &mf))
	assert.Len(t, dst.Nodes(), 3)
}
