package flow

import (
	"log/slog"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/metric"
	"github.com/c360/eipcanvas/pkg/ident"
)

// Definitions looks up component definitions. *eipdef.Registry satisfies it.
type Definitions interface {
	Lookup(id ident.EipID) (*eipdef.Component, bool)
}

// Option configures a Store.
type Option func(*Store)

// WithLayoutEngine sets the engine used by layout-affecting mutations.
func WithLayoutEngine(e layout.Engine) Option {
	return func(s *Store) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithLayout sets the initial layout settings.
func WithLayout(settings layout.Settings) Option {
	return func(s *Store) {
		s.initialLayout = settings
	}
}

// WithDefinitions sets the component definition lookup used by OnConnect.
func WithDefinitions(d Definitions) Option {
	return func(s *Store) {
		s.defs = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records mutation and layout metrics on the registry.
func WithMetrics(r *metric.MetricsRegistry) Option {
	return func(s *Store) {
		if r != nil {
			s.metrics = r.CoreMetrics()
		}
	}
}

// WithIDGenerator sets the node and child id generator.
func WithIDGenerator(g ident.Generator) Option {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}
