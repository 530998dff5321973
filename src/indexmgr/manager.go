// Package indexmgr maintains secondary index rows under document writes,
// enforces unique constraints, and builds indexes retroactively over an
// existing collection (spec §4.2).
//
// Grounded on btree_index/btree_service.go's CreateIndex (scan-then-build)
// and hash_index/hash_index_service.go's insert/find hooks, collapsed
// from the teacher's two index *engines* (B-tree file format, hash bucket
// file format) down to the one KV-range-scan-backed index the spec calls
// for (DESIGN.md: dropped/adapted teacher modules).
package indexmgr

import (
	"context"
	"hash/fnv"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"syndrdb-core/src/dberrors"
	"syndrdb-core/src/document"
	"syndrdb-core/src/keyenc"
	"syndrdb-core/src/kvstore"
)

// IDIndexName is the implicit, unique, undroppable index every collection
// owns on _id (spec §3).
const IDIndexName = "_id_"

// docScanChunk and indexScanChunk are the chunk sizes spec §4.2 specifies
// for retroactive builds and drops.
const (
	docScanChunk   = 5000
	indexScanChunk = 5000
)

// IndexDef describes one index: a named projection of one top-level field
// onto document ids (spec §3).
type IndexDef struct {
	Name   string
	Field  string
	Unique bool
}

// sentinelValue is the one-byte value stored at every index row key; only
// the key's presence matters (spec §4.1).
var sentinelValue = []byte{1}

// Manager owns no state of its own - every index row lives in the KV
// substrate (spec §4.2 "It owns no state of its own").
type Manager struct {
	kv     kvstore.Store
	logger *zap.SugaredLogger
}

// New creates an index manager over kv.
func New(kv kvstore.Store, logger *zap.SugaredLogger) *Manager {
	return &Manager{kv: kv, logger: logger}
}

// fieldValue extracts a document's indexed-field value. absent reports
// whether the field should be skipped for this index (absent or null;
// spec §3's "documents are not indexed on missing fields").
func fieldValue(doc *document.Document, field string) (v document.Value, absent bool) {
	val, ok := doc.Get(field)
	if !ok || val.IsNullish() {
		return document.Value{}, true
	}
	return val, false
}

// CreateIndex builds a new index on field over every existing document in
// collection, enforcing uniqueness if requested. It does not mutate
// collection metadata - the document store does that (spec §4.2 step 0).
func (m *Manager) CreateIndex(ctx context.Context, collection string, existing []IndexDef, field string, unique bool) (IndexDef, error) {
	for _, idx := range existing {
		if idx.Field == field {
			return idx, nil
		}
	}

	name := field + "_1"
	def := IndexDef{Name: name, Field: field, Unique: unique}

	// buildID correlates this build's log lines; it is not a document or
	// index identifier and never reaches disk.
	buildID := uuid.NewString()
	m.logger.Infow("indexmgr: retroactive index build starting", "buildID", buildID, "collection", collection, "field", field, "unique", unique)

	seenHashes := roaring.New()
	lastKey := keyenc.DocPrefix(collection)

	for {
		start := append(append([]byte{}, lastKey...), 0x00)
		entries, err := m.kv.Scan(ctx, kvstore.ScanOptions{
			StartKey: start,
			EndKey:   prefixEnd(keyenc.DocPrefix(collection)),
			Limit:    docScanChunk,
		})
		if err != nil {
			return IndexDef{}, dberrors.Internal(err, "indexmgr: scan documents for index build on %s.%s", collection, field)
		}
		if len(entries) == 0 {
			break
		}

		for _, e := range entries {
			id, err := keyenc.DocIDFromKey(collection, e.Key)
			if err != nil {
				continue
			}
			doc := document.New()
			if err := doc.UnmarshalBSON(e.Value); err != nil {
				return IndexDef{}, dberrors.Internal(err, "indexmgr: decode document %s during index build", id)
			}
			val, absent := fieldValue(doc, field)
			if absent {
				continue
			}
			enc, err := keyenc.EncodeValue(val)
			if err != nil {
				return IndexDef{}, dberrors.BadValue("indexmgr: field %q on document %s: %v", field, id, err)
			}

			if unique {
				dup, err := m.checkBuildDuplicate(ctx, collection, field, enc, id, seenHashes)
				if err != nil {
					return IndexDef{}, err
				}
				if dup {
					return IndexDef{}, dberrors.DuplicateKey(collection, name, field, document.ToGo(val))
				}
			}

			if err := m.kv.Put(ctx, keyenc.IndexKey(collection, field, enc, id), sentinelValue); err != nil {
				return IndexDef{}, dberrors.Internal(err, "indexmgr: write index row for %s", id)
			}
		}

		lastKey = entries[len(entries)-1].Key
		if len(entries) < docScanChunk {
			break
		}
	}

	m.logger.Infow("indexmgr: retroactive index build finished", "buildID", buildID, "collection", collection, "field", field)
	return def, nil
}

// checkBuildDuplicate implements spec §4.2 step 4's per-build dedup set.
// A roaring bitmap of 32-bit value hashes is the fast-path filter
// (DESIGN.md); a hash hit is confirmed against the index rows already
// written this build (a real KV scan) before being reported as a
// collision, so hash collisions across distinct values never produce a
// false DuplicateKey.
func (m *Manager) checkBuildDuplicate(ctx context.Context, collection, field string, enc []byte, id string, seen *roaring.Bitmap) (bool, error) {
	h := hash32(enc)
	if seen.Contains(h) {
		prefix := append(append(keyenc.IndexPrefix(collection, field), enc...), keyenc.US)
		entries, err := m.kv.Scan(ctx, kvstore.ScanOptions{Prefix: prefix, Limit: 1})
		if err != nil {
			return false, dberrors.Internal(err, "indexmgr: confirm duplicate during index build")
		}
		if len(entries) > 0 {
			return true, nil
		}
	}
	seen.Add(h)
	return false, nil
}

func hash32(b []byte) uint32 {
	h := fnv.New32a()
	h.Write(b)
	return h.Sum32()
}

// DropIndex deletes every row of the field's index in chunks (spec
// §4.2). The caller (document store) removes the index from metadata.
func (m *Manager) DropIndex(ctx context.Context, collection, field string) error {
	prefix := keyenc.IndexPrefix(collection, field)
	for {
		entries, err := m.kv.Scan(ctx, kvstore.ScanOptions{Prefix: prefix, Limit: indexScanChunk})
		if err != nil {
			return dberrors.Internal(err, "indexmgr: scan index rows for drop")
		}
		if len(entries) == 0 {
			return nil
		}
		keys := make([][]byte, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}
		if err := m.kv.BatchWrite(ctx, nil, keys); err != nil {
			return dberrors.Internal(err, "indexmgr: delete index rows for drop")
		}
		if len(entries) < indexScanChunk {
			return nil
		}
	}
}

// DropAllForCollection drops every index's rows, including _id_.
func (m *Manager) DropAllForCollection(ctx context.Context, collection string, indexes []IndexDef) error {
	var errs error
	for _, idx := range indexes {
		if err := m.DropIndex(ctx, collection, idx.Field); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// plannedWrite is one index row mutation staged during phase 1 of
// onInsert/onUpdate, applied in phase 2 (spec §4.2).
type plannedWrite struct {
	put    *kvstore.Entry
	delete []byte
}

// OnInsert stages and applies index rows for a newly inserted document,
// enforcing uniqueness before any row is written (spec §4.2's two-phase
// contract: "guaranteeing no partial index writes for simple cases").
func (m *Manager) OnInsert(ctx context.Context, collection string, indexes []IndexDef, doc *document.Document, id string) error {
	var puts []kvstore.Entry

	for _, idx := range indexes {
		val, absent := fieldValue(doc, idx.Field)
		if absent {
			continue
		}
		enc, err := keyenc.EncodeValue(val)
		if err != nil {
			return dberrors.BadValue("indexmgr: field %q: %v", idx.Field, err)
		}
		if idx.Unique {
			if err := m.uniquenessCheck(ctx, collection, idx, enc, val, id, false); err != nil {
				return err
			}
		}
		puts = append(puts, kvstore.Entry{Key: keyenc.IndexKey(collection, idx.Field, enc, id), Value: sentinelValue})
	}

	if err := m.kv.BatchWrite(ctx, puts, nil); err != nil {
		return m.rollback(ctx, puts, err)
	}
	return nil
}

// rollback undoes already-applied index puts when phase 2 fails partway
// (spec §4.2/§9 Batching: only relevant when the KV substrate has no
// atomic BatchWrite of its own, e.g. two independent stores - MemStore and
// BoltStore both apply BatchWrite atomically, so this path is exercised
// only by a future non-atomic substrate).
func (m *Manager) rollback(ctx context.Context, applied []kvstore.Entry, cause error) error {
	var errs error
	for _, p := range applied {
		if _, err := m.kv.Delete(ctx, p.Key); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		m.logger.Errorw("indexmgr: rollback after failed index write also failed", "cause", cause, "rollbackErrors", errs)
	}
	return dberrors.Internal(cause, "indexmgr: failed to write index rows")
}

// OnUpdate diffs old and new index values per affected index, deleting
// stale rows and inserting fresh ones (spec §4.2).
func (m *Manager) OnUpdate(ctx context.Context, collection string, indexes []IndexDef, oldDoc, newDoc *document.Document, id string) error {
	var puts []kvstore.Entry
	var deletes [][]byte

	for _, idx := range indexes {
		oldVal, oldAbsent := fieldValue(oldDoc, idx.Field)
		newVal, newAbsent := fieldValue(newDoc, idx.Field)

		if !oldAbsent && !newAbsent && document.Equal(oldVal, newVal) {
			continue
		}
		if oldAbsent && newAbsent {
			continue
		}

		if !oldAbsent {
			oldEnc, err := keyenc.EncodeValue(oldVal)
			if err != nil {
				return dberrors.BadValue("indexmgr: field %q: %v", idx.Field, err)
			}
			deletes = append(deletes, keyenc.IndexKey(collection, idx.Field, oldEnc, id))
		}
		if !newAbsent {
			newEnc, err := keyenc.EncodeValue(newVal)
			if err != nil {
				return dberrors.BadValue("indexmgr: field %q: %v", idx.Field, err)
			}
			if idx.Unique {
				if err := m.uniquenessCheck(ctx, collection, idx, newEnc, newVal, id, true); err != nil {
					return err
				}
			}
			puts = append(puts, kvstore.Entry{Key: keyenc.IndexKey(collection, idx.Field, newEnc, id), Value: sentinelValue})
		}
	}

	if len(puts) == 0 && len(deletes) == 0 {
		return nil
	}
	if err := m.kv.BatchWrite(ctx, puts, deletes); err != nil {
		return dberrors.Internal(err, "indexmgr: failed to apply index updates")
	}
	return nil
}

// OnDelete removes every index row for doc (spec §4.2, no uniqueness
// check needed).
func (m *Manager) OnDelete(ctx context.Context, collection string, indexes []IndexDef, doc *document.Document, id string) error {
	var deletes [][]byte
	for _, idx := range indexes {
		val, absent := fieldValue(doc, idx.Field)
		if absent {
			continue
		}
		enc, err := keyenc.EncodeValue(val)
		if err != nil {
			continue // an un-indexable value was never written as a row
		}
		deletes = append(deletes, keyenc.IndexKey(collection, idx.Field, enc, id))
	}
	if len(deletes) == 0 {
		return nil
	}
	if err := m.kv.BatchWrite(ctx, nil, deletes); err != nil {
		return dberrors.Internal(err, "indexmgr: failed to delete index rows")
	}
	return nil
}

// uniquenessCheck implements spec §4.2's "Uniqueness check": scan the
// value's index-row prefix with limit 2; any row other than excludeID
// (when excludeSelf) is a collision.
func (m *Manager) uniquenessCheck(ctx context.Context, collection string, idx IndexDef, enc []byte, val document.Value, excludeID string, excludeSelf bool) error {
	prefix := append(append(keyenc.IndexPrefix(collection, idx.Field), enc...), keyenc.US)
	entries, err := m.kv.Scan(ctx, kvstore.ScanOptions{Prefix: prefix, Limit: 2})
	if err != nil {
		return dberrors.Internal(err, "indexmgr: uniqueness check scan")
	}
	for _, e := range entries {
		_, _, decoded, ok := keyenc.DecodeIndexKey(e.Key)
		if !ok {
			continue
		}
		if excludeSelf && decoded.ID == excludeID {
			continue
		}
		return dberrors.DuplicateKey(collection, idx.Name, idx.Field, document.ToGo(val))
	}
	return nil
}

func prefixEnd(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}
