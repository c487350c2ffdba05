// Package eipcanvas is the backend of a visual editor for enterprise
// integration flows. It keeps one flow document (a diagram of integration
// components plus the per-node configuration tree behind it), exposes it to a
// browser canvas over HTTP and WebSocket, persists every committed change, and
// can generate flows from natural language with an LLM.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          gateway                    │  REST commands, state stream,
//	│   (net/http + gorilla/websocket)    │  /metrics, /healthz
//	└─────────────────────────────────────┘
//	     ↓ commands            ↑ snapshots
//	┌─────────────────────────────────────┐
//	│           flow.Store                │  Nodes, edges, configs,
//	│  (single writer, committed states)  │  selection, layout
//	└─────────────────────────────────────┘
//	     ↑ MergeFlow        ↓ Subscribe
//	┌──────────────────┐  ┌─────────────────────────────┐
//	│    assistant     │  │  flowstore.Persister         │
//	│ (go-openai SSE)  │  │  memory | NATS KV | SQLite   │
//	└──────────────────┘  │  | Redis                     │
//	                      └─────────────────────────────┘
//
// Supporting packages:
//
//   - eipdef: the component catalog (namespaces, elements, attributes) and
//     attribute validation
//   - layout: the deterministic layered layout engine and layout settings
//   - config: layered JSON/YAML configuration with environment overrides
//   - errors: classified errors (transient, invalid, fatal) and the domain
//     error types the store reports
//   - metric: the Prometheus registry shared by every component
//   - natsclient: NATS connection management and JetStream KV access
//   - health: dependency checks aggregated for /healthz
//   - pkg/ident: node and child id generation, component identifiers
//   - pkg/retry: exponential backoff for transient failures
//
// # Consistency
//
// Every mutation runs on the store's lock against a copy of the current
// state. A mutation that fails leaves the previous state committed, and
// subscribers only ever see committed snapshots in revision order. The
// persister and the WebSocket stream both coalesce: when they fall behind
// they skip straight to the newest revision.
//
// # Running
//
//	go run ./cmd/eipcanvas --config=config.yaml --log-format=text
//
// See package config for the configuration keys and environment variables.
//
// # Testing
//
//	go test ./...                      # unit tests
//	go test -tags=integration ./...    # NATS and Redis via testcontainers
package eipcanvas
