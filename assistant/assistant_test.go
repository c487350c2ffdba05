package assistant

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/metric"
	"github.com/c360/eipcanvas/pkg/ident"
	fixtures "github.com/c360/eipcanvas/testutil"
)

const generatedPair = `{
  "nodes": [
    {"id": "g1", "position": {"x": 900, "y": 900},
     "data": {"eipId": {"namespace": "jms", "name": "message-driven-channel-adapter"}}},
    {"id": "g2", "position": {"x": -5, "y": 0},
     "data": {"eipId": {"namespace": "core", "name": "logging-channel-adapter"}}}
  ],
  "edges": [{"source": "g1", "target": "g2"}]
}`

func newTestStore(t *testing.T) *flow.Store {
	t.Helper()
	return flow.NewStore(
		flow.WithIDGenerator(&ident.Sequence{}),
		flow.WithDefinitions(fixtures.Registry(t)),
	)
}

// chunked streams raw in a few fragments.
func chunked(raw string) GeneratorFunc {
	return func(_ context.Context, _ Request, onChunk func(string)) (string, error) {
		for i := 0; i < len(raw); i += 40 {
			onChunk(raw[i:min(i+40, len(raw))])
		}
		return raw, nil
	}
}

func TestPrompt_MergesGeneratedFlow(t *testing.T) {
	s := newTestStore(t)
	registry := metric.NewMetricsRegistry()
	a := New(s, chunked(generatedPair), WithDefinitions(fixtures.Registry(t)), WithMetrics(registry))
	defer a.Close()

	var streamed strings.Builder
	res, err := a.Prompt(context.Background(), "jms to log", func(chunk string) {
		streamed.WriteString(chunk)
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Cause)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, generatedPair, res.Raw)
	assert.Equal(t, generatedPair, streamed.String())
	assert.Equal(t, flow.SchemaCurrent, res.Import.Schema)

	nodes := s.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, layout.Point{X: 0, Y: 0}, nodes[0].Position)
	assert.Equal(t, 178.0, nodes[1].Position.X)

	eipID, ok := s.EipID("g2")
	require.True(t, ok)
	assert.Equal(t, fixtures.Logger, eipID)
	assert.Equal(t, "reactflow__edge-g1-g2", s.Edges()[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.requests.WithLabelValues("ok")))
}

func TestPrompt_SendsCurrentFlow(t *testing.T) {
	s := newTestStore(t)
	id := s.CreateRootNode(fixtures.Filter, layout.Point{})

	var got Request
	gen := GeneratorFunc(func(_ context.Context, req Request, _ func(string)) (string, error) {
		got = req
		return `{"nodes": [{"id": "` + id + `", "data": {"eipId": {"namespace": "integration", "name": "filter"}}}]}`, nil
	})
	a := New(s, gen, WithDefinitions(fixtures.Registry(t)))

	res, err := a.Prompt(context.Background(), "keep it", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, "keep it", got.Input)
	assert.Equal(t, res.RequestID, got.ID)
	require.NotNil(t, got.Current)
	assert.Equal(t, []CurrentNode{{ID: id, Type: flow.NodeType, Data: CurrentNodeData{EipID: fixtures.Filter}}}, got.Current.Nodes)
	assert.Contains(t, got.Components, "integration:filter")

	system, user, err := got.Messages()
	require.NoError(t, err)
	assert.Equal(t, "keep it", user)
	assert.Contains(t, system, `"id":"`+id+`"`)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, req Request, onChunk func(string)) (string, error) {
	args := m.Called(ctx, req, onChunk)
	return args.String(0), args.Error(1)
}

func TestPrompt_RequestCarriesCatalog(t *testing.T) {
	s := newTestStore(t)
	gen := &mockGenerator{}
	jms := fixtures.JMSInbound.String()
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r Request) bool {
		return r.Input == "jms to log" && r.ID != "" && r.Current == nil && slices.Contains(r.Components, jms)
	}), mock.Anything).Return(generatedPair, nil).Once()

	a := New(s, gen, WithDefinitions(fixtures.Registry(t)))
	defer a.Close()

	res, err := a.Prompt(context.Background(), "jms to log", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	gen.AssertExpectations(t)
}

func TestPrompt_Failures(t *testing.T) {
	t.Run("generator error", func(t *testing.T) {
		s := newTestStore(t)
		a := New(s, GeneratorFunc(func(context.Context, Request, func(string)) (string, error) {
			return `{"nod`, errors.WrapTransient(fmt.Errorf("connection refused"), "test", "Generate", "stream")
		}))

		res, err := a.Prompt(context.Background(), "x", nil)
		assert.True(t, errors.IsTransient(err))
		assert.Equal(t, CauseFailed, res.Cause)
		assert.Equal(t, `{"nod`, res.Raw)
		assert.Equal(t, 1.0, testutil.ToFloat64(a.requests.WithLabelValues("failed")))
	})

	t.Run("unparseable response", func(t *testing.T) {
		s := newTestStore(t)
		a := New(s, chunked(`{"edges": []}`))

		res, err := a.Prompt(context.Background(), "x", nil)
		assert.True(t, errors.IsInvalid(err))
		assert.Equal(t, CauseInvalid, res.Cause)
		assert.False(t, res.Success)
	})

	t.Run("candidate fails import validation", func(t *testing.T) {
		s := newTestStore(t)
		existing := s.CreateRootNode(fixtures.Filter, layout.Point{})
		a := New(s, chunked(`{"nodes": [{"id": "a"}, {"id": "b"}], "edges": [{"source": "a", "target": "missing"}]}`))

		res, err := a.Prompt(context.Background(), "x", nil)
		var mf *errors.MalformedFlowError
		assert.True(t, errors.As(err, &mf))
		assert.Equal(t, CauseInvalid, res.Cause)

		nodes := s.Nodes()
		require.Len(t, nodes, 1, "store untouched")
		assert.Equal(t, existing, nodes[0].ID)
	})
}

func TestPrompt_AbortNeverMerges(t *testing.T) {
	s := newTestStore(t)
	started := make(chan struct{})
	gen := GeneratorFunc(func(ctx context.Context, _ Request, onChunk func(string)) (string, error) {
		onChunk(`{"nodes": [`)
		close(started)
		<-ctx.Done()
		// A generator that ignores cancellation still cannot merge.
		return generatedPair, nil
	})
	a := New(s, gen)

	var mu sync.Mutex
	var chunks []string
	done := make(chan *Result)
	go func() {
		res, err := a.Prompt(context.Background(), "x", func(c string) {
			mu.Lock()
			chunks = append(chunks, c)
			mu.Unlock()
		})
		assert.NoError(t, err)
		done <- res
	}()

	<-started
	a.Abort()

	select {
	case res := <-done:
		assert.Equal(t, CauseAborted, res.Cause)
		assert.False(t, res.Success)
		assert.Equal(t, generatedPair, res.Raw)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt did not return after abort")
	}
	assert.Empty(t, s.Nodes())
	assert.Equal(t, 1.0, testutil.ToFloat64(a.requests.WithLabelValues("aborted")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"nodes": [`}, chunks)
}

func TestPrompt_NewPromptSupersedesRunning(t *testing.T) {
	s := newTestStore(t)
	started := make(chan struct{})
	gen := GeneratorFunc(func(ctx context.Context, req Request, onChunk func(string)) (string, error) {
		if req.Input == "slow" {
			close(started)
			<-ctx.Done()
			return `{"nodes": [{"id": "slow"}]}`, ctx.Err()
		}
		return `{"nodes": [{"id": "fast", "data": {"eipId": {"namespace": "integration", "name": "filter"}}}]}`, nil
	})
	a := New(s, gen)

	slow := make(chan *Result)
	go func() {
		res, _ := a.Prompt(context.Background(), "slow", nil)
		slow <- res
	}()
	<-started

	res, err := a.Prompt(context.Background(), "fast", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, CauseAborted, (<-slow).Cause)
	nodes := s.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "fast", nodes[0].ID)
}

func TestAssistant_DuplicateMetricsRegistration(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	s := newTestStore(t)

	first := New(s, chunked(`{"nodes": []}`), WithMetrics(registry))
	second := New(s, chunked(`{"nodes": []}`), WithMetrics(registry))
	assert.Nil(t, second.registrar)

	first.Close()
	first.Close()
	third := New(s, chunked(`{"nodes": []}`), WithMetrics(registry))
	assert.NotNil(t, third.registrar)
	third.Close()
	second.Close()
}
