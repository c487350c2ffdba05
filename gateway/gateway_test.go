package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eipcanvas/assistant"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/health"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/metric"
	"github.com/c360/eipcanvas/pkg/ident"
	fixtures "github.com/c360/eipcanvas/testutil"
)

type harness struct {
	store  *flow.Store
	server *Server
	http   *httptest.Server
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	defs := fixtures.Registry(t)
	store := flow.NewStore(
		flow.WithIDGenerator(&ident.Sequence{}),
		flow.WithDefinitions(defs),
	)
	opts = append([]Option{WithDefinitions(defs)}, opts...)
	srv := New(store, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		store.Close()
	})
	return &harness{store: store, server: srv, http: ts}
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.http.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (h *harness) createNode(t *testing.T, id ident.EipID) string {
	t.Helper()
	body, err := json.Marshal(createNodeRequest{EipID: id, Position: layout.Point{X: 10, Y: 20}})
	require.NoError(t, err)
	resp, data := h.do(t, http.MethodPost, "/api/nodes", string(body))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var out idResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out.ID
}

func TestCreateNodeAndState(t *testing.T) {
	h := newHarness(t)
	id := h.createNode(t, fixtures.Filter)
	assert.Equal(t, "node-1", id)

	resp, data := h.do(t, http.MethodGet, "/api/flow/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state StateView
	require.NoError(t, json.Unmarshal(data, &state))
	require.Len(t, state.Nodes, 1)
	assert.Equal(t, layout.Point{X: 10, Y: 20}, state.Nodes[0].Position)
	assert.Equal(t, fixtures.Filter, state.EipConfigs[id].EipID)
	assert.Empty(t, state.Edges)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	t.Run("unknown component", func(t *testing.T) {
		resp, _ := h.do(t, http.MethodPost, "/api/nodes", `{"eipId": {"namespace": "nope", "name": "x"}}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("bad body", func(t *testing.T) {
		resp, _ := h.do(t, http.MethodPost, "/api/nodes", `{`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestErrorStatusMapping(t *testing.T) {
	h := newHarness(t)
	a := h.createNode(t, fixtures.Filter)
	b := h.createNode(t, fixtures.Filter)

	resp, _ := h.do(t, http.MethodPut, "/api/nodes/"+a+"/label", `{"label": "gate"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"duplicate label", http.MethodPut, "/api/nodes/" + b + "/label", `{"label": "gate"}`, http.StatusConflict},
		{"unknown child", http.MethodDelete, "/api/configs/" + a + "/children/child-9", "", http.StatusNotFound},
		{"unknown node", http.MethodPut, "/api/nodes/missing/label", `{"label": "x"}`, http.StatusUnprocessableEntity},
		{"malformed import", http.MethodPut, "/api/flow", `{"nodes": 3}`, http.StatusBadRequest},
		{"future version", http.MethodPut, "/api/flow", fixtures.FutureFlow, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, data := h.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, resp.StatusCode, string(data))
			var body map[string]string
			require.NoError(t, json.Unmarshal(data, &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAttributes(t *testing.T) {
	h := newHarness(t)
	id := h.createNode(t, fixtures.Filter)

	resp, data := h.do(t, http.MethodPut, "/api/configs/"+id+"/attributes/auto-startup", `{"value": "yes"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))

	resp, _ = h.do(t, http.MethodPut, "/api/configs/"+id+"/attributes/undeclared", `{"value": "x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = h.do(t, http.MethodPut, "/api/configs/"+id+"/attributes/auto-startup", `{"value": false}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(data))
	cfg, ok := h.store.Config(id)
	require.True(t, ok)
	v, ok := cfg.Attributes["auto-startup"].Boolean()
	require.True(t, ok)
	assert.False(t, v)

	resp, _ = h.do(t, http.MethodDelete, "/api/configs/"+id+"/attributes/auto-startup", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	cfg, _ = h.store.Config(id)
	assert.NotContains(t, cfg.Attributes, "auto-startup")

	resp, _ = h.do(t, http.MethodPut, "/api/configs/"+id+"/description", `{"description": "drops test traffic"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	cfg, _ = h.store.Config(id)
	assert.Equal(t, "drops test traffic", cfg.Description)
}

func TestChildrenAndSelection(t *testing.T) {
	h := newHarness(t)
	parent := h.createNode(t, fixtures.HeaderEnricher)

	resp, data := h.do(t, http.MethodPost, "/api/configs/"+parent+"/children", `{"eipId": {"namespace": "integration", "name": "header"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	var child idResponse
	require.NoError(t, json.Unmarshal(data, &child))

	resp, _ = h.do(t, http.MethodPut, "/api/selection/child", `{"id": "`+child.ID+`"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, flow.Selection{State: flow.SelectionChild, ID: child.ID}, h.store.Selection())

	resp, _ = h.do(t, http.MethodDelete, "/api/selection/child", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, flow.SelectionIdle, h.store.Selection().State)

	resp, _ = h.do(t, http.MethodDelete, "/api/configs/"+parent+"/children/"+child.ID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, ok := h.store.Config(child.ID)
	assert.False(t, ok)
}

func TestDiagramContract(t *testing.T) {
	h := newHarness(t)
	a := h.createNode(t, fixtures.Filter)
	b := h.createNode(t, fixtures.Logger)

	resp, data := h.do(t, http.MethodPost, "/api/diagram/connect", `{"source": "`+a+`", "target": "`+b+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var edge flow.Edge
	require.NoError(t, json.Unmarshal(data, &edge))
	assert.Equal(t, a, edge.Source)
	assert.Len(t, h.store.Edges(), 1)

	resp, _ = h.do(t, http.MethodPost, "/api/diagram/nodes", `[{"type": "select", "id": "`+a+`", "selected": true}]`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, flow.Selection{State: flow.SelectionNode, ID: a}, h.store.Selection())

	resp, _ = h.do(t, http.MethodDelete, "/api/selection", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, flow.SelectionIdle, h.store.Selection().State)

	resp, _ = h.do(t, http.MethodPost, "/api/diagram/edges", `[{"type": "remove", "id": "`+edge.ID+`"}]`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, h.store.Edges())

	resp, _ = h.do(t, http.MethodPost, "/api/diagram/nodes", `[{"type": "remove", "id": "`+a+`"}]`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Len(t, h.store.Nodes(), 1)
}

func TestImportExport(t *testing.T) {
	h := newHarness(t)

	resp, data := h.do(t, http.MethodPut, "/api/flow", fixtures.CurrentFlow)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var res flow.ImportResult
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Empty(t, res.Warnings)
	assert.Len(t, h.store.Nodes(), 2)

	resp, data = h.do(t, http.MethodGet, "/api/flow", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "flow.json")
	var exported flow.SerializedFlow
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, flow.CurrentVersion, exported.Version)
	assert.Len(t, exported.Nodes, 2)
	assert.Equal(t, []string{"c1"}, exported.EipConfigs["n2"].Children)

	resp, _ = h.do(t, http.MethodDelete, "/api/flow", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, h.store.Nodes())
	assert.Empty(t, h.store.Configs())
}

// syncBuffer is a log sink shared by the server goroutines and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestImport_WarningsLoggedOnce(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	store := flow.NewStore(flow.WithIDGenerator(&ident.Sequence{}), flow.WithLogger(logger))
	srv := New(store, WithLogger(logger))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		store.Close()
	})
	h := &harness{store: store, server: srv, http: ts}

	resp, data := h.do(t, http.MethodPut, "/api/flow", fixtures.LegacyInlineFlow)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var res flow.ImportResult
	require.NoError(t, json.Unmarshal(data, &res))
	require.Len(t, res.Warnings, 1)

	assert.Equal(t, 1, strings.Count(strings.ToLower(out.String()), "import warning"))
}

func TestLayoutEndpoints(t *testing.T) {
	h := newHarness(t)

	resp, data := h.do(t, http.MethodPut, "/api/layout/orientation", `{"orientation": "vertical"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var settings layout.Settings
	require.NoError(t, json.Unmarshal(data, &settings))
	assert.Equal(t, layout.Vertical, settings.Orientation)

	resp, _ = h.do(t, http.MethodPut, "/api/layout/orientation", `{"orientation": "diagonal"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	before := h.store.Layout().Density
	resp, data = h.do(t, http.MethodPost, "/api/layout/density", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &settings))
	assert.NotEqual(t, before, settings.Density)
	assert.Equal(t, h.store.Layout(), settings)
}

func TestDefinitions(t *testing.T) {
	h := newHarness(t)

	resp, data := h.do(t, http.MethodGet, "/api/definitions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var catalog map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &catalog))
	assert.Contains(t, catalog, "integration")
	assert.Contains(t, catalog, "jms")

	resp, _ = h.do(t, http.MethodGet, "/api/definitions/integration/filter", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(t, http.MethodGet, "/api/definitions/integration/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAssistantEndpoints(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t)
		resp, _ := h.do(t, http.MethodPost, "/api/assistant/prompt", `{"input": "x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("merges generated flow", func(t *testing.T) {
		raw := `{"nodes": [{"id": "g1", "position": {"x": 0, "y": 0},
			"data": {"eipId": {"namespace": "integration", "name": "filter"}}}]}`
		defs := fixtures.Registry(t)
		store := flow.NewStore(flow.WithIDGenerator(&ident.Sequence{}), flow.WithDefinitions(defs))
		defer store.Close()
		gen := assistant.GeneratorFunc(func(context.Context, assistant.Request, func(string)) (string, error) {
			return raw, nil
		})
		a := assistant.New(store, gen, assistant.WithDefinitions(defs))
		defer a.Close()
		srv := New(store, WithDefinitions(defs), WithAssistant(a))
		defer srv.Close()
		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()

		resp, err := ts.Client().Post(ts.URL+"/api/assistant/prompt", "application/json", strings.NewReader(`{"input": "a filter"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res assistant.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.True(t, res.Success)
		assert.Len(t, store.Nodes(), 1)

		resp2, err := ts.Client().Post(ts.URL+"/api/assistant/prompt", "application/json", strings.NewReader(`{"input": ""}`))
		require.NoError(t, err)
		resp2.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	})
}

func TestMetricsAndCORS(t *testing.T) {
	h := newHarness(t,
		WithMetrics(metric.NewMetricsRegistry()),
		WithAllowedOrigins([]string{"http://canvas.local"}),
	)
	h.createNode(t, fixtures.Filter)

	req, err := http.NewRequest(http.MethodOptions, h.http.URL+"/api/nodes", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://canvas.local")
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://canvas.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.local")
	resp, err = h.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp, data := h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `eipcanvas_gateway_requests_total{code="201",route="POST /api/nodes"} 1`)
	assert.Contains(t, string(data), "eipcanvas_gateway_stream_clients 0")
}

func dialStream(t *testing.T, h *harness) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/api/flow/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) StateView {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var state StateView
	require.NoError(t, conn.ReadJSON(&state))
	return state
}

func TestStream(t *testing.T) {
	h := newHarness(t)
	h.createNode(t, fixtures.Filter)

	conn := dialStream(t, h)
	initial := readState(t, conn)
	require.Len(t, initial.Nodes, 1)

	h.createNode(t, fixtures.Logger)
	var next StateView
	for next.Revision <= initial.Revision || len(next.Nodes) < 2 {
		next = readState(t, conn)
	}
	assert.Len(t, next.Nodes, 2)
	assert.Equal(t, flow.SelectionIdle, next.Selection.State)

	require.Eventually(t, func() bool {
		h.server.mu.Lock()
		defer h.server.mu.Unlock()
		return len(h.server.clients) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStream_CloseDisconnectsClients(t *testing.T) {
	h := newHarness(t)
	conn := dialStream(t, h)
	readState(t, conn)

	h.server.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/api/flow/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStreamClient_CoalescesPendingSnapshots(t *testing.T) {
	c := &streamClient{notify: make(chan struct{}, 1), done: make(chan struct{})}
	c.push(flow.Snapshot{Revision: 3})
	c.push(flow.Snapshot{Revision: 5})
	c.push(flow.Snapshot{Revision: 4})

	snap, ok := c.take()
	require.True(t, ok)
	assert.Equal(t, uint64(5), snap.Revision)
	_, ok = c.take()
	assert.False(t, ok)

	c.push(flow.Snapshot{Revision: 2})
	_, ok = c.take()
	assert.False(t, ok, "older revisions are dropped")
}

func TestHealth(t *testing.T) {
	t.Run("without checks", func(t *testing.T) {
		h := newHarness(t)
		resp, _ := h.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("aggregates checks", func(t *testing.T) {
		checker := health.NewChecker()
		checker.Register("persistence", func() health.Status {
			return health.NewDegraded("persistence", "last write failed")
		})
		h := newHarness(t, WithHealth(checker))

		resp, data := h.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, "degraded still serves")
		var status health.Status
		require.NoError(t, json.Unmarshal(data, &status))
		assert.True(t, status.IsDegraded())

		checker.Register("nats", func() health.Status { return health.NewUnhealthy("nats", "closed") })
		resp, _ = h.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, WithRateLimit(0.001, 2))

	h.createNode(t, fixtures.Filter)
	h.createNode(t, fixtures.Filter)

	resp, data := h.do(t, http.MethodPost, "/api/nodes", `{"eipId": {"namespace": "integration", "name": "filter"}}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode, string(data))
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Len(t, h.store.Nodes(), 2)

	resp, _ = h.do(t, http.MethodGet, "/api/flow/state", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads are not limited")
}
