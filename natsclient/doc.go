// Package natsclient manages a NATS connection for flow persistence.
//
// Client wraps the connection with a small circuit breaker: after a run of
// failed connection or JetStream calls the client reports StatusCircuitOpen
// and rejects work until the backoff elapses. KVStore layers typed errors and
// compare-and-swap updates over a JetStream key-value bucket:
//
//	client, err := natsclient.NewClient("nats://localhost:4222", natsclient.WithName("eipcanvas"))
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "eipcanvas_flows", History: 10})
//	if err != nil {
//		return err
//	}
//	kv := client.NewKVStore(bucket)
//	err = kv.UpdateWithRetry(ctx, "default", func(current []byte) ([]byte, error) {
//		return next, nil
//	})
//
// UpdateWithRetry reads the current revision, applies the update function and
// writes with Create or Update, retrying on revision conflicts with
// exponential backoff. An update that produces the stored bytes unchanged is
// not written, so the bucket history only records real changes.
//
// TestClient starts a NATS server in a container for integration tests.
package natsclient
