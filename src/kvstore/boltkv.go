package kvstore

import (
	"bytes"
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

// bucketName is the single bbolt bucket every key lives in. The store
// already namespaces keys with doc:/idx:/meta: prefixes (spec §4.1), so a
// single bucket's natural byte-key ordering is exactly the "ordered KV
// substrate" the core requires - no need for bbolt's own nested buckets.
var bucketName = []byte("syndrdb")

// BoltStore is the durable KV substrate, grounded on andreyvit-edb's
// bbolt-backed storage layer. bbolt buckets are ordered by byte-key, so
// Scan is a cursor walk and BatchWrite is one read-write Tx - giving the
// index manager's phase-2 writes true atomicity (spec §4.2, §9 Batching)
// whenever BoltStore is the backing substrate.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if necessary) a bbolt database file at
// path and ensures the root bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: failed to open bolt database %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: failed to create root bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v == nil {
			return nil
		}
		found = true
		out = append([]byte{}, v...)
		return nil
	})
	return out, found, err
}

func (b *BoltStore) Put(_ context.Context, key, value []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

func (b *BoltStore) Delete(_ context.Context, key []byte) (bool, error) {
	var existed bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt.Get(key) != nil {
			existed = true
		}
		return bkt.Delete(key)
	})
	return existed, err
}

func (b *BoltStore) Has(_ context.Context, key []byte) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketName).Get(key) != nil
		return nil
	})
	return found, err
}

func (b *BoltStore) Scan(_ context.Context, opts ScanOptions) ([]Entry, error) {
	start, end := opts.StartKey, opts.EndKey
	if opts.Prefix != nil {
		start = opts.Prefix
		end = prefixUpperBound(opts.Prefix)
	}

	var out []Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()

		emit := func(k, v []byte) bool {
			if end != nil && bytes.Compare(k, end) >= 0 {
				return false
			}
			out = append(out, Entry{Key: append([]byte{}, k...), Value: append([]byte{}, v...)})
			return opts.Limit <= 0 || len(out) < opts.Limit
		}

		if opts.Reverse {
			var k, v []byte
			if end != nil {
				k, v = c.Seek(end)
				if k == nil {
					k, v = c.Last()
				} else {
					k, v = c.Prev()
				}
			} else {
				k, v = c.Last()
			}
			for k != nil {
				if start != nil && bytes.Compare(k, start) < 0 {
					break
				}
				out = append(out, Entry{Key: append([]byte{}, k...), Value: append([]byte{}, v...)})
				if opts.Limit > 0 && len(out) >= opts.Limit {
					break
				}
				k, v = c.Prev()
			}
			return nil
		}

		var k, v []byte
		if start != nil {
			k, v = c.Seek(start)
		} else {
			k, v = c.First()
		}
		for k != nil {
			if !emit(k, v) {
				break
			}
			k, v = c.Next()
		}
		return nil
	})
	return out, err
}

func (b *BoltStore) Count(_ context.Context, prefix []byte) (int, error) {
	n := 0
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		if prefix == nil {
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				n++
			}
			return nil
		}
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (b *BoltStore) Clear(_ context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

func (b *BoltStore) BatchWrite(_ context.Context, puts []Entry, deletes [][]byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		for _, d := range deletes {
			if err := bkt.Delete(d); err != nil {
				return err
			}
		}
		for _, p := range puts {
			if err := bkt.Put(p.Key, p.Value); err != nil {
				return err
			}
		}
		return nil
	})
}
