// Package cluster provides the distributed collections every gutensearch
// service shares: a partitioned keyed map, a partitioned multi-valued map
// and a named cluster-wide lock service.
//
// Entries are partitioned across the configured members by a stable hash of
// the key. Each entry is held by a primary and a configured number of
// synchronous backup replicas. Reads may be served by any replica; writes go
// to the primary, which replicates to its backups before acknowledging.
// Members discover each other through the explicit address list only; there
// is no multicast. Every member serves the RPC surface over HTTP/JSON on the
// cluster node port, and operations against partitions owned by the current
// node short-circuit to the in-process store.
package cluster

import (
	"context"
	"encoding/json"
)

// Map is the distributed keyed map contract.
type Map interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	GetAll(ctx context.Context, keys []string) (map[string]json.RawMessage, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
	ContainsKey(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context) (int, error)

	// Values returns up to limit values across the cluster; limit <= 0
	// returns everything. Iteration order is unspecified.
	Values(ctx context.Context, limit int) ([]json.RawMessage, error)
	Clear(ctx context.Context) error
}

// MultiMap is the distributed multi-valued map contract. Values under one
// key form a set of integers; duplicates are not stored.
type MultiMap interface {
	Get(ctx context.Context, key string) ([]int, error)
	Put(ctx context.Context, key string, member int) error
	ContainsEntry(ctx context.Context, key string, member int) (bool, error)
	KeySet(ctx context.Context) ([]string, error)
	KeyCount(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// LockService hands out cluster-wide named mutexes. Lock blocks until the
// lock is held or ctx is done, and returns the release function.
type LockService interface {
	Lock(ctx context.Context, name string) (func() error, error)
}
