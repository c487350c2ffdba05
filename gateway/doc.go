// Package gateway exposes a flow.Store over HTTP and WebSocket.
//
// The REST API under /api/ carries the diagramming surface contract (node
// and edge change batches, connect requests), the store commands of the
// configuration side panels, import and export, the component catalog, and
// the flow generation assistant. Every command answers with JSON; failures
// answer {"error": "..."} with a status derived from the error class:
//
//	duplicate label            409 Conflict
//	child not found            404 Not Found
//	malformed or unsupported   400 Bad Request
//	other invalid input        400 Bad Request
//	contract violation         422 Unprocessable Entity
//	rate limit exceeded        429 Too Many Requests
//	anything else              500 Internal Server Error
//
// Mutating requests share one token bucket (WithRateLimit). GET /healthz
// aggregates the registered health checks and answers 503 only when one is
// unhealthy.
//
// GET /api/flow/stream upgrades to a WebSocket that receives the full state
// view on connect and after every commit. Slow clients only see the newest
// state.
//
// Attribute writes are checked against the component definition before they
// reach the store.
//
// Usage:
//
//	srv := gateway.New(store,
//		gateway.WithDefinitions(registry),
//		gateway.WithMetrics(metricsRegistry),
//	)
//	defer srv.Close()
//	httpServer := &http.Server{Addr: ":8080", Handler: srv.Handler()}
package gateway
