// Package flowstore persists the flow held by a flow.Store.
//
// A persisted record is the JSON document
//
//	{"version": 1, "nodes": [...], "edges": [...], "eipConfigs": {...}, "layout": {...}}
//
// Selection state is never persisted. Records are written through a Backend:
// NATSBackend keeps them in a JetStream key-value bucket with history,
// SQLiteBackend in a single table, RedisBackend under a key prefix, and
// MemoryBackend in process memory for tests and ephemeral servers.
//
// # Writing
//
// A Persister subscribes to the store and writes the latest committed
// snapshot on its own goroutine. Snapshots that arrive while a write is in
// flight replace each other, so a burst of mutations costs one write and no
// mutation ever waits on storage. Failed writes are retried for transient
// errors, logged, and counted in eipcanvas_persistence_writes_total; they are
// never reported to the mutating caller.
//
//	p := flowstore.NewPersister(store, backend, "default",
//		flowstore.WithLogger(logger),
//		flowstore.WithMetrics(registry))
//	defer p.Close(ctx)
//
// # Reading
//
// Load decodes a record and rejects versions newer than flow.CurrentVersion.
// Older shapes go through the same detector chain as a user import, so a
// record written before eipConfigs existed is upgraded on read. Restore loads
// a record into a store, including its layout settings. Recover does the same
// at startup and moves a record that cannot be restored to key+".rejected"
// before the persister can overwrite it.
package flowstore
