// Package flow is the authoritative model of an integration flow diagram: the
// canvas nodes, the edges between them, the configuration forest keyed by node
// and child id, the layout settings, and the child selection slot.
//
// A Store serializes every mutation on one lock and commits a fresh state
// value, so readers never observe a half-applied change and a failed mutation
// leaves the previous state in place. Subscribers are notified in commit order
// after the lock is released.
package flow

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/metric"
	"github.com/c360/eipcanvas/pkg/ident"
)

const component = "flow"

// Snapshot is a committed version of the flow. It shares memory with the
// store and must not be modified.
type Snapshot struct {
	Revision      uint64
	Nodes         []Node
	Edges         []Edge
	EipConfigs    map[string]EipConfig
	Layout        layout.Settings
	SelectedChild string
	Selection     Selection
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Store holds the flow state and exposes the mutation commands.
type Store struct {
	mu       sync.RWMutex
	notifyMu sync.Mutex
	cur      *state
	revision uint64
	subs     []subscriber
	nextSub  int
	closed   bool

	initialLayout layout.Settings
	engine        layout.Engine
	defs          Definitions
	ids           ident.Generator
	logger        *slog.Logger
	metrics       *metric.Metrics
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		initialLayout: layout.DefaultSettings(),
		engine:        layout.Layered{},
		ids:           ident.NanoID{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", component)
	s.cur = newState(s.initialLayout)
	return s
}

// Reset discards all state, including layout settings, and notifies
// subscribers.
func (s *Store) Reset() {
	_ = s.mutate("Reset", func(st *state) error {
		*st = *newState(s.initialLayout)
		return nil
	})
}

// Close drops every subscriber. The store stays usable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = nil
}

// Subscribe registers fn to receive every committed snapshot and returns a
// function that removes it. fn runs on the mutating goroutine and must not
// call mutating Store methods.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool { return sub.id == id })
	}
}

// Snapshot returns the current committed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Revision:      s.revision,
		Nodes:         s.cur.nodes,
		Edges:         s.cur.edges,
		EipConfigs:    s.cur.configs,
		Layout:        s.cur.layout,
		SelectedChild: s.cur.selectedChild,
		Selection:     selectionOf(s.cur),
	}
}

// mutate applies fn to a copy of the current state and commits it when fn
// succeeds.
func (s *Store) mutate(op string, fn func(st *state) error) error {
	s.mu.Lock()
	next := s.cur.clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		s.observe(op, err)
		return err
	}
	s.cur = next
	s.revision++
	snap := s.snapshotLocked()
	subs := slices.Clone(s.subs)

	// Taking notifyMu before releasing mu keeps notifications in commit order.
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.observe(op, nil)
	if s.metrics != nil {
		s.metrics.RecordSize(len(snap.Nodes), len(snap.Edges), len(snap.EipConfigs))
	}
	for _, sub := range subs {
		sub.fn(snap)
	}
	return nil
}

func (s *Store) observe(op string, err error) {
	if err == nil {
		if s.metrics != nil {
			s.metrics.RecordMutation(op, "ok")
		}
		return
	}

	class := errors.Classify(err)
	if s.metrics != nil {
		s.metrics.RecordMutation(op, class.String())
	}
	switch class {
	case errors.ErrorFatal:
		s.logger.Error("flow contract violation", "operation", op, "error", err)
	case errors.ErrorInvalid:
		s.logger.Debug("flow mutation rejected", "operation", op, "error", err)
	default:
		s.logger.Warn("flow mutation failed", "operation", op, "error", err)
	}
}

// relayout recomputes every node position and handle side with the current
// layout settings.
func (s *Store) relayout(st *state) {
	boxes := make([]layout.NodeBox, len(st.nodes))
	for i, n := range st.nodes {
		boxes[i] = layout.NodeBox{ID: n.ID}
		if n.Width != nil {
			boxes[i].Width = *n.Width
		}
		if n.Height != nil {
			boxes[i].Height = *n.Height
		}
	}
	refs := make([]layout.EdgeRef, len(st.edges))
	for i, e := range st.edges {
		refs[i] = layout.EdgeRef{Source: e.Source, Target: e.Target}
	}

	start := time.Now()
	res := s.engine.Layout(boxes, refs, st.layout)
	if s.metrics != nil {
		s.metrics.RecordLayout(time.Since(start))
	}

	for i := range st.nodes {
		p, ok := res.Placements[st.nodes[i].ID]
		if !ok {
			continue
		}
		st.nodes[i].Position = p.Position
		st.nodes[i].SourcePosition = p.SourceSide
		st.nodes[i].TargetPosition = p.TargetSide
	}
	if res.PathStyle != "" {
		for i := range st.edges {
			st.edges[i].PathStyle = res.PathStyle
		}
	}
}

func contract(op, format string, args ...any) error {
	return errors.NewContract(component, op, format, args...)
}
