// Package kvstore defines the ordered key-value substrate contract the
// storage engine is built on (spec §6) and provides two implementations:
// an in-memory one for tests and single-process deployments, and a
// go.etcd.io/bbolt-backed one for durable, on-disk storage.
package kvstore

import "context"

// Entry is one key/value pair as returned by Scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// ScanOptions parameterizes a bounded range scan (spec §6). Prefix, when
// set, is equivalent to StartKey=Prefix, EndKey=Prefix+0xFF...; callers
// needing Prefix-with-cursor semantics (chunked scans, spec §4.2/§4.3) set
// StartKey directly instead, once the prefix search is underway.
type ScanOptions struct {
	Prefix   []byte
	StartKey []byte
	EndKey   []byte
	Limit    int
	Reverse  bool
}

// Store is the ordered KV substrate contract (spec §6). Implementations
// must return entries from Scan in ascending key order by default, and in
// descending order when Reverse is set.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) (bool, error)
	Has(ctx context.Context, key []byte) (bool, error)
	Scan(ctx context.Context, opts ScanOptions) ([]Entry, error)
	Count(ctx context.Context, prefix []byte) (int, error)
	Clear(ctx context.Context) error
	// BatchWrite applies deletes then puts. Implementations that can offer
	// atomicity (bbolt's single Tx) do so; memkv applies them under one
	// lock, which is atomic with respect to other Store calls but not a
	// crash-recovery guarantee.
	BatchWrite(ctx context.Context, puts []Entry, deletes [][]byte) error
}
