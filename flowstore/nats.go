package flowstore

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/natsclient"
)

// DefaultBucket is the KV bucket holding flow records.
const DefaultBucket = "eipcanvas_flows"

// NATSBackend stores records in a JetStream KV bucket. The bucket keeps the
// last ten revisions of every key.
type NATSBackend struct {
	kv *natsclient.KVStore
}

var _ Backend = (*NATSBackend)(nil)

// NewNATSBackend creates the bucket if needed. The client stays owned by the
// caller.
func NewNATSBackend(ctx context.Context, client *natsclient.Client, bucket string) (*NATSBackend, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.New("nats client cannot be nil"), "flowstore", "NewNATSBackend", "validate client")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kvBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "EIP flow canvas snapshots",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "flowstore", "NewNATSBackend", "create KV bucket")
	}
	return &NATSBackend{kv: client.NewKVStore(kvBucket)}, nil
}

// Name implements Backend.
func (b *NATSBackend) Name() string { return "nats" }

// Put writes data with a compare-and-swap update. A record identical to the
// stored one is not rewritten, so the history only holds distinct snapshots.
func (b *NATSBackend) Put(ctx context.Context, key string, data []byte) error {
	err := b.kv.UpdateWithRetry(ctx, key, func([]byte) ([]byte, error) {
		return data, nil
	})
	if err != nil {
		return errors.Wrap(err, "flowstore", "NATSBackend.Put", "write "+key)
	}
	return nil
}

// Get implements Backend.
func (b *NATSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry.Value, nil
}

// Delete implements Backend.
func (b *NATSBackend) Delete(ctx context.Context, key string) error {
	err := b.kv.Delete(ctx, key)
	if err != nil && !natsclient.IsKVNotFoundError(err) {
		return err
	}
	return nil
}

// Close implements Backend. The NATS client is closed by its owner.
func (b *NATSBackend) Close() error { return nil }
