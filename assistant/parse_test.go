package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
	fixtures "github.com/c360/eipcanvas/testutil"
)

func TestParse_Shape(t *testing.T) {
	defs := fixtures.Registry(t)

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		nodes   int
		edges   int
	}{
		{"not json", `{"nodes": [`, true, 0, 0},
		{"no nodes", `{"edges": []}`, true, 0, 0},
		{"single node without edges", `{"nodes": [{"id": "a", "data": {"eipId": {"namespace": "integration", "name": "filter"}}}]}`, false, 1, 0},
		{"many nodes without edges", `{"nodes": [{"id": "a"}, {"id": "b"}]}`, true, 0, 0},
		{"node without id", `{"nodes": [{"data": {}}], "edges": []}`, true, 0, 0},
		{"empty flow", `{"nodes": [], "edges": []}`, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, defs, nil)
			if tt.wantErr {
				var mf *errors.MalformedFlowError
				assert.True(t, errors.As(err, &mf), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got.Nodes, tt.nodes)
			assert.Len(t, got.Edges, tt.edges)
			assert.NotNil(t, got.Edges)
			assert.Equal(t, flow.CurrentVersion, got.Version)
		})
	}
}

func TestParse_BuildsConfigsAndEdgeIDs(t *testing.T) {
	raw := `{
	  "nodes": [
	    {"id": "in", "type": "custom", "position": {"x": 5, "y": 6},
	     "data": {"eipId": {"namespace": "JMS", "name": "message-driven-channel-adapter"}, "label": "ignored"}},
	    {"id": "log", "data": {"eipId": {"namespace": "core", "name": "Logging-Channel-Adapter"}}}
	  ],
	  "edges": [{"source": "in", "target": "log"}]
	}`
	got, err := Parse(raw, fixtures.Registry(t), nil)
	require.NoError(t, err)

	require.Len(t, got.Nodes, 2)
	assert.Equal(t, flow.NodeType, got.Nodes[0].Type)
	assert.Equal(t, layout.Point{X: 5, Y: 6}, got.Nodes[0].Position)
	assert.Empty(t, got.Nodes[0].Data.Label)

	assert.Equal(t, flow.NewConfig(fixtures.JMSInbound), got.EipConfigs["in"])
	assert.Equal(t, fixtures.Logger, got.EipConfigs["log"].EipID)
	assert.Equal(t, "reactflow__edge-in-log", got.Edges[0].ID)
}

func TestMatchEipID(t *testing.T) {
	defs := fixtures.Registry(t)

	assert.Equal(t, fixtures.Filter, MatchEipID(defs, ident.EipID{Namespace: " Integration ", Name: "filter"}))
	assert.Equal(t, fixtures.Router, MatchEipID(defs, ident.EipID{Namespace: "spring", Name: "ROUTER"}))
	assert.Equal(t,
		ident.EipID{Namespace: "http", Name: "outbound-channel-adapter"},
		MatchEipID(defs, ident.EipID{Namespace: "amqp", Name: "outbound-channel-adapter"}),
		"ambiguous names resolve to the first namespace in sorted order")
	assert.Equal(t,
		ident.EipID{Namespace: "custom", Name: "Widget"},
		MatchEipID(defs, ident.EipID{Namespace: "Custom", Name: "Widget"}))
	assert.Equal(t, fixtures.Filter, MatchEipID(nil, ident.EipID{Namespace: "INTEGRATION", Name: "filter"}))

	assert.Contains(t, componentIDs(defs), "integration:filter")
	assert.Nil(t, componentIDs(nil))
}

func TestParse_ReusesExistingConfiguration(t *testing.T) {
	s := flow.NewStore(
		flow.WithIDGenerator(&ident.Sequence{}),
		flow.WithDefinitions(fixtures.Registry(t)),
	)
	enricher := s.CreateRootNode(fixtures.HeaderEnricher, layout.Point{})
	require.NoError(t, s.UpdateLabel(enricher, "enrich"))
	header, err := s.EnableChild(enricher, fixtures.Header)
	require.NoError(t, err)
	require.NoError(t, s.UpdateAttribute(header, enricher, "name", eipdef.String("x-trace")))
	filter := s.CreateRootNode(fixtures.Filter, layout.Point{})
	require.NoError(t, s.UpdateDescription(filter, "drops noise"))

	raw := `{
	  "nodes": [
	    {"id": "` + enricher + `", "data": {"eipId": {"namespace": "integration", "name": "header-enricher"}}},
	    {"id": "` + filter + `", "data": {"eipId": {"namespace": "integration", "name": "router"}}}
	  ],
	  "edges": []
	}`
	got, err := Parse(raw, fixtures.Registry(t), s.View())
	require.NoError(t, err)

	assert.Equal(t, "enrich", got.Nodes[0].Data.Label)
	assert.Equal(t, []string{header}, got.EipConfigs[enricher].Children)
	require.Contains(t, got.EipConfigs, header)
	assert.Equal(t, eipdef.String("x-trace"), got.EipConfigs[header].Attributes["name"])

	assert.Empty(t, got.Nodes[1].Data.Label, "component changed")
	assert.Equal(t, flow.NewConfig(fixtures.Router), got.EipConfigs[filter])
	assert.Len(t, got.EipConfigs, 3)
}
