package flowstore

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
)

// Snapshot is the persisted form of a flow.
type Snapshot struct {
	Version    int                       `json:"version"`
	Nodes      []flow.Node               `json:"nodes"`
	Edges      []flow.Edge               `json:"edges"`
	EipConfigs map[string]flow.EipConfig `json:"eipConfigs"`
	Layout     layout.Settings           `json:"layout"`
}

// FromStore converts a committed store snapshot, dropping selection state.
func FromStore(s flow.Snapshot) Snapshot {
	return Snapshot{
		Version:    flow.CurrentVersion,
		Nodes:      s.Nodes,
		Edges:      s.Edges,
		EipConfigs: s.EipConfigs,
		Layout:     s.Layout,
	}
}

// Flow returns the serialized flow part of the snapshot.
func (s Snapshot) Flow() flow.SerializedFlow {
	return flow.SerializedFlow{
		Version:    s.Version,
		Nodes:      s.Nodes,
		Edges:      s.Edges,
		EipConfigs: s.EipConfigs,
	}
}

// Encode marshals a snapshot.
func Encode(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.WrapFatal(err, "flowstore", "Encode", "marshal snapshot")
	}
	return data, nil
}

// Decode parses a persisted record of any supported version.
func Decode(data []byte) (*Snapshot, error) {
	var header struct {
		Version int             `json:"version"`
		Layout  json.RawMessage `json:"layout"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, errors.NewMalformedFlow("flowstore", "Decode", "invalid JSON: %v", err)
	}
	if header.Version > flow.CurrentVersion {
		return nil, errors.NewUnsupportedVersion("flowstore", "Decode", header.Version, flow.CurrentVersion)
	}

	settings := layout.DefaultSettings()
	if len(header.Layout) > 0 && string(header.Layout) != "null" {
		if err := json.Unmarshal(header.Layout, &settings); err != nil {
			return nil, errors.NewMalformedFlow("flowstore", "Decode", "layout: %v", err)
		}
		if err := settings.Validate(); err != nil {
			return nil, errors.WrapInvalid(err, "flowstore", "Decode", "validate layout")
		}
	}

	f, _, err := flow.Decode(data, ident.NanoID{})
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Version:    f.Version,
		Nodes:      f.Nodes,
		Edges:      f.Edges,
		EipConfigs: f.EipConfigs,
		Layout:     settings,
	}, nil
}

// Load reads and decodes the record stored under key.
func Load(ctx context.Context, backend Backend, key string) (*Snapshot, error) {
	data, err := backend.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.WrapTransient(err, "flowstore", "Load", "read "+key+" from "+backend.Name())
	}
	return Decode(data)
}

// Restore loads the record under key into store. It reports false without
// error when no record exists.
func Restore(ctx context.Context, backend Backend, key string, store *flow.Store) (bool, error) {
	snap, err := Load(ctx, backend, key)
	if stderrors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := store.Restore(snap.Flow(), snap.Layout); err != nil {
		return false, err
	}
	return true, nil
}

// RejectedSuffix is appended to the key of a record set aside by Recover.
const RejectedSuffix = ".rejected"

// Recovery reports the outcome of Recover.
type Recovery struct {
	Restored bool
	// RejectedKey is set when the record could not be restored and was moved.
	RejectedKey string
	Cause       error
}

// Recover restores the record under key into store like Restore. A record
// that exists but cannot be restored is moved to key+RejectedSuffix, so that
// later writes to key do not replace it. Read failures are returned as errors
// and leave the backend untouched.
func Recover(ctx context.Context, backend Backend, key string, store *flow.Store) (*Recovery, error) {
	restored, err := Restore(ctx, backend, key, store)
	if err == nil {
		return &Recovery{Restored: restored}, nil
	}
	if !errors.IsInvalid(err) {
		return nil, err
	}

	data, gerr := backend.Get(ctx, key)
	if gerr != nil {
		return nil, errors.WrapTransient(gerr, "flowstore", "Recover", "read "+key)
	}
	rejected := key + RejectedSuffix
	if perr := backend.Put(ctx, rejected, data); perr != nil {
		return nil, errors.WrapTransient(perr, "flowstore", "Recover", "write "+rejected)
	}
	if derr := backend.Delete(ctx, key); derr != nil {
		return nil, errors.WrapTransient(derr, "flowstore", "Recover", "delete "+key)
	}
	return &Recovery{RejectedKey: rejected, Cause: err}, nil
}
