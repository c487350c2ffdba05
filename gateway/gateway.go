package gateway

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/c360/eipcanvas/assistant"
	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/health"
	"github.com/c360/eipcanvas/metric"
)

// HTTPHandler is implemented by anything that mounts routes on a shared mux.
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}

// Option configures a Server.
type Option func(*Server)

// WithDefinitions sets the registry used for the catalog endpoints and for
// attribute validation. Without it attribute writes are not validated.
func WithDefinitions(r *eipdef.Registry) Option {
	return func(s *Server) {
		s.defs = r
	}
}

// WithAssistant enables the flow generation endpoints.
func WithAssistant(a *assistant.Assistant) Option {
	return func(s *Server) {
		s.assistant = a
	}
}

// WithMetrics exposes r at /metrics and registers the gateway instruments.
func WithMetrics(r *metric.MetricsRegistry) Option {
	return func(s *Server) {
		s.metrics = r
	}
}

// WithHealth serves checker at /healthz. Without it /healthz always reports
// healthy.
func WithHealth(checker *health.Checker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// WithRateLimit caps mutating requests to perSecond with the given burst.
// Reads and the state stream are not limited. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAllowedOrigins sets the origins allowed for CORS and WebSocket
// upgrades. "*" allows any origin. Empty allows same-origin requests only.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = slices.Clone(origins)
	}
}

// Server is the HTTP transport of a flow.Store.
type Server struct {
	store     *flow.Store
	defs      *eipdef.Registry
	assistant *assistant.Assistant
	metrics   *metric.MetricsRegistry
	health    *health.Checker
	limiter   *rate.Limiter
	logger    *slog.Logger
	origins   []string

	upgrader websocket.Upgrader
	clients  map[*streamClient]struct{}
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup

	requests      *prometheus.CounterVec
	streamClients prometheus.Gauge
	registered    []string
}

var _ HTTPHandler = (*Server)(nil)

// New creates a Server for store.
func New(store *flow.Store, opts ...Option) *Server {
	s := &Server{
		store:   store,
		logger:  slog.Default(),
		clients: make(map[*streamClient]struct{}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eipcanvas",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eipcanvas",
			Subsystem: "gateway",
			Name:      "stream_clients",
			Help:      "Number of connected state stream clients",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "gateway")
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}

	if s.metrics != nil {
		s.register("requests_total", func() error {
			return s.metrics.RegisterCounterVec("gateway", "requests_total", s.requests)
		})
		s.register("stream_clients", func() error {
			return s.metrics.RegisterGauge("gateway", "stream_clients", s.streamClients)
		})
	}
	return s
}

func (s *Server) register(name string, fn func() error) {
	if err := fn(); err != nil {
		s.logger.Warn("Gateway metric not registered", "metric", name, "error", err)
		return
	}
	s.registered = append(s.registered, name)
}

// Handler returns the complete HTTP handler: the API under /api/ and, when
// metrics are configured, /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterHTTPHandlers("/api/", mux)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", metric.Handler(s.metrics))
	}
	return s.middleware(mux)
}

// RegisterHTTPHandlers registers the API routes under prefix.
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	// Flow document
	mux.HandleFunc("GET "+prefix+"flow", s.handleExport)
	mux.HandleFunc("PUT "+prefix+"flow", s.handleImport)
	mux.HandleFunc("DELETE "+prefix+"flow", s.handleClearFlow)
	mux.HandleFunc("GET "+prefix+"flow/state", s.handleState)
	mux.HandleFunc("GET "+prefix+"flow/stream", s.handleStream)

	// Diagramming surface contract
	mux.HandleFunc("POST "+prefix+"diagram/nodes", s.handleNodesChange)
	mux.HandleFunc("POST "+prefix+"diagram/edges", s.handleEdgesChange)
	mux.HandleFunc("POST "+prefix+"diagram/connect", s.handleConnect)

	// Store commands
	mux.HandleFunc("POST "+prefix+"nodes", s.handleCreateNode)
	mux.HandleFunc("PUT "+prefix+"nodes/{id}/label", s.handleUpdateLabel)
	mux.HandleFunc("PUT "+prefix+"nodes/{id}/router-key", s.handleSetRouterKey)
	mux.HandleFunc("PUT "+prefix+"configs/{id}/description", s.handleUpdateDescription)
	mux.HandleFunc("PUT "+prefix+"configs/{id}/attributes/{name}", s.handleUpdateAttribute)
	mux.HandleFunc("DELETE "+prefix+"configs/{id}/attributes/{name}", s.handleDeleteAttribute)
	mux.HandleFunc("POST "+prefix+"configs/{id}/children", s.handleEnableChild)
	mux.HandleFunc("DELETE "+prefix+"configs/{id}/children/{child}", s.handleDisableChild)
	mux.HandleFunc("PUT "+prefix+"edges/{id}/mapping", s.handleUpdateEdgeMapping)
	mux.HandleFunc("PUT "+prefix+"selection/child", s.handleSelectChild)
	mux.HandleFunc("DELETE "+prefix+"selection/child", s.handleClearChildSelection)
	mux.HandleFunc("DELETE "+prefix+"selection", s.handleClearSelections)
	mux.HandleFunc("PUT "+prefix+"layout/orientation", s.handleSetOrientation)
	mux.HandleFunc("POST "+prefix+"layout/density", s.handleCycleDensity)

	// Component catalog
	mux.HandleFunc("GET "+prefix+"definitions", s.handleListDefinitions)
	mux.HandleFunc("GET "+prefix+"definitions/{namespace}/{name}", s.handleGetDefinition)

	// Assistant
	mux.HandleFunc("POST "+prefix+"assistant/prompt", s.handlePrompt)
	mux.HandleFunc("DELETE "+prefix+"assistant/prompt", s.handleAbortPrompt)

	s.logger.Debug("Gateway HTTP handlers registered", "prefix", prefix)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, health.NewHealthy("eipcanvas", "serving"))
		return
	}
	status := s.health.Run("eipcanvas")
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// middleware assigns request ids, applies CORS, and counts requests.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		s.applyCORS(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if s.limited(r) {
			rec.Header().Set("Retry-After", "1")
			writeJSONError(rec, "rate limit exceeded", http.StatusTooManyRequests)
		} else {
			next.ServeHTTP(rec, r)
		}

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *Server) limited(r *http.Request) bool {
	if s.limiter == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return false
	}
	return !s.limiter.Allow()
}

// applyCORS applies CORS headers to the response
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.originAllowed(origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
	w.Header().Add("Vary", "Origin")
}

func (s *Server) originAllowed(origin string) bool {
	return slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.originAllowed(origin) {
		return true
	}
	// Same-origin requests are always allowed.
	return strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://") == r.Host
}

// Close disconnects all stream clients and unregisters metrics. The store is
// not closed.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	s.wg.Wait()

	if s.metrics != nil {
		for _, name := range s.registered {
			s.metrics.Unregister("gateway", name)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
