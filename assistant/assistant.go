package assistant

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/metric"
)

const requestsMetric = "requests_total"

// Cause explains why a run produced no merged flow.
type Cause string

// Run outcomes other than success.
const (
	CauseAborted Cause = "aborted"
	CauseFailed  Cause = "failed"
	CauseInvalid Cause = "invalid"
)

// Result is the outcome of a Prompt call. Raw holds the model output
// received before the run ended.
type Result struct {
	RequestID string               `json:"requestId"`
	Raw       string               `json:"raw"`
	Success   bool                 `json:"success"`
	Cause     Cause                `json:"cause,omitempty"`
	Flow      *flow.SerializedFlow `json:"flow,omitempty"`
	Import    *flow.ImportResult   `json:"import,omitempty"`
}

// Target is the store a generated flow is merged into.
type Target interface {
	View() flow.View
	MergeFlow(candidate flow.SerializedFlow) (*flow.ImportResult, error)
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithDefinitions sets the registry used to resolve component ids.
func WithDefinitions(d Definitions) Option {
	return func(a *Assistant) {
		a.defs = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics registers the request counter on r.
func WithMetrics(r metric.MetricsRegistrar) Option {
	return func(a *Assistant) {
		a.registrar = r
	}
}

// Assistant generates flows and merges them into a store. One run is active
// at a time; starting a run aborts the previous one.
type Assistant struct {
	target  Target
	gen     Generator
	defs    Definitions
	session Session
	logger  *slog.Logger

	registrar metric.MetricsRegistrar
	requests  *prometheus.CounterVec
	closeOnce sync.Once
}

// New creates an Assistant merging into target.
func New(target Target, gen Generator, opts ...Option) *Assistant {
	a := &Assistant{
		target: target,
		gen:    gen,
		logger: slog.Default(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eipcanvas",
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Total number of flow generation requests by result",
		}, []string{"result"}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "assistant")

	if a.registrar != nil {
		if err := a.registrar.RegisterCounterVec("assistant", requestsMetric, a.requests); err != nil {
			a.logger.Warn("Assistant metrics not registered", "error", err)
			a.registrar = nil
		}
	}
	return a
}

// Prompt generates a flow for input and merges it into the store. Streamed
// fragments are passed to onChunk, which may be nil, until the run is
// aborted. An aborted run returns a Result with CauseAborted and no error,
// and never modifies the store.
func (a *Assistant) Prompt(ctx context.Context, input string, onChunk func(string)) (*Result, error) {
	token, runCtx := a.session.Begin(ctx)
	defer a.session.End(token)

	res := &Result{RequestID: uuid.NewString()}
	logger := a.logger.With("request_id", res.RequestID)

	req := Request{
		ID:         res.RequestID,
		Input:      input,
		Current:    currentFlow(a.target.View()),
		Components: componentIDs(a.defs),
	}

	forward := func(chunk string) {
		if onChunk != nil && a.session.Valid(token) {
			onChunk(chunk)
		}
	}

	raw, err := a.gen.Generate(runCtx, req, forward)
	res.Raw = raw
	if !a.session.Valid(token) {
		return a.aborted(res, logger), nil
	}
	if err != nil {
		a.finish(res, CauseFailed)
		logger.Warn("Flow generation failed", "error", err)
		return res, err
	}

	candidate, err := Parse(strings.TrimSpace(raw), a.defs, a.target.View())
	if err != nil {
		a.finish(res, CauseInvalid)
		logger.Warn("Model response rejected", "error", err)
		return res, err
	}

	var imported *flow.ImportResult
	err = a.session.Merge(token, func() error {
		var mergeErr error
		imported, mergeErr = a.target.MergeFlow(candidate)
		return mergeErr
	})
	if stderrors.Is(err, ErrAborted) {
		return a.aborted(res, logger), nil
	}
	if err != nil {
		a.finish(res, CauseInvalid)
		logger.Warn("Generated flow rejected", "error", err)
		return res, err
	}

	res.Success = true
	res.Flow = &candidate
	res.Import = imported
	a.requests.WithLabelValues("ok").Inc()
	logger.Info("Generated flow merged", "nodes", len(candidate.Nodes), "edges", len(candidate.Edges))
	return res, nil
}

// Abort cancels the active run, if any. It returns after any merge already in
// progress has completed.
func (a *Assistant) Abort() {
	a.session.Abort()
}

// Close aborts the active run and unregisters metrics.
func (a *Assistant) Close() {
	a.closeOnce.Do(func() {
		a.session.Abort()
		if a.registrar != nil {
			a.registrar.Unregister("assistant", requestsMetric)
		}
	})
}

func (a *Assistant) aborted(res *Result, logger *slog.Logger) *Result {
	a.finish(res, CauseAborted)
	logger.Debug("Flow generation aborted", "received", len(res.Raw))
	return res
}

func (a *Assistant) finish(res *Result, cause Cause) {
	res.Cause = cause
	a.requests.WithLabelValues(string(cause)).Inc()
}
