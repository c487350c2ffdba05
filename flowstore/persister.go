package flowstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/metric"
	"github.com/c360/eipcanvas/pkg/retry"
)

const writesMetric = "persistence_writes_total"

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Persister) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics registers the write counter on r.
func WithMetrics(r metric.MetricsRegistrar) Option {
	return func(p *Persister) {
		p.registrar = r
	}
}

// WithRetry sets the retry policy for a single write.
func WithRetry(cfg retry.Config) Option {
	return func(p *Persister) {
		p.retry = cfg
	}
}

// Persister writes every committed snapshot of a store to a Backend in the
// background, coalescing snapshots that arrive during a write.
type Persister struct {
	backend Backend
	key     string
	logger  *slog.Logger
	retry   retry.Config

	registrar metric.MetricsRegistrar
	writes    *prometheus.CounterVec

	pending     chan flow.Snapshot
	flushes     chan chan struct{}
	stop        chan struct{}
	done        chan struct{}
	unsubscribe func()
	closeOnce   sync.Once

	mu          sync.Mutex
	lastWritten uint64
	lastErr     error
}

// NewPersister starts persisting store under key.
func NewPersister(store *flow.Store, backend Backend, key string, opts ...Option) *Persister {
	p := &Persister{
		backend: backend,
		key:     key,
		logger:  slog.Default(),
		retry:   retry.Transient(),
		pending: make(chan flow.Snapshot, 1),
		flushes: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eipcanvas",
			Subsystem: "persistence",
			Name:      "writes_total",
			Help:      "Total number of flow snapshot writes by backend and result",
		}, []string{"backend", "result"}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "flowstore", "backend", backend.Name(), "key", key)

	if p.registrar != nil {
		if err := p.registrar.RegisterCounterVec("flowstore", writesMetric, p.writes); err != nil {
			p.logger.Warn("Persistence metrics not registered", "error", err)
			p.registrar = nil
		}
	}

	go p.run()
	p.unsubscribe = store.Subscribe(p.enqueue)
	return p
}

// enqueue keeps only the newest snapshot in the buffer. Store notifications
// are serialized, so there is a single sender.
func (p *Persister) enqueue(snap flow.Snapshot) {
	for {
		select {
		case p.pending <- snap:
			return
		default:
		}
		select {
		case <-p.pending:
		default:
		}
	}
}

func (p *Persister) run() {
	defer close(p.done)
	for {
		select {
		case snap := <-p.pending:
			p.write(snap)
		case ack := <-p.flushes:
			select {
			case snap := <-p.pending:
				p.write(snap)
			default:
			}
			close(ack)
		case <-p.stop:
			select {
			case snap := <-p.pending:
				p.write(snap)
			default:
			}
			return
		}
	}
}

func (p *Persister) write(snap flow.Snapshot) {
	p.mu.Lock()
	stale := snap.Revision <= p.lastWritten
	p.mu.Unlock()
	if stale {
		return
	}

	data, err := Encode(FromStore(snap))
	if err == nil {
		err = retry.Do(context.Background(), p.retry, func() error {
			return p.backend.Put(context.Background(), p.key, data)
		})
	}

	p.mu.Lock()
	p.lastErr = err
	if err == nil {
		p.lastWritten = snap.Revision
	}
	p.mu.Unlock()

	if err != nil {
		p.writes.WithLabelValues(p.backend.Name(), "error").Inc()
		p.logger.Error("Flow snapshot write failed", "revision", snap.Revision, "error", err)
		return
	}
	p.writes.WithLabelValues(p.backend.Name(), "ok").Inc()
	p.logger.Debug("Flow snapshot written", "revision", snap.Revision, "bytes", len(data))
}

// Flush waits until the newest snapshot enqueued before the call has been
// written or has failed. It returns the error of the last write attempt.
func (p *Persister) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case p.flushes <- ack:
	case <-p.done:
		return p.LastError()
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Persister", "Flush", "request flush")
	}
	select {
	case <-ack:
		return p.LastError()
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Persister", "Flush", "wait for write")
	}
}

// LastError returns the error of the most recent write, nil after a success.
func (p *Persister) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// LastWritten returns the store revision of the newest written snapshot.
func (p *Persister) LastWritten() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastWritten
}

// Close stops following the store, writes any pending snapshot, and stops
// the writer. The backend is not closed.
func (p *Persister) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.unsubscribe()
		close(p.stop)
	})
	select {
	case <-p.done:
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Persister", "Close", "wait for writer")
	}
	if p.registrar != nil {
		p.registrar.Unregister("flowstore", writesMetric)
	}
	return p.LastError()
}
