package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"syndrdb-core/src/dberrors"
	"syndrdb-core/src/indexmgr"
	"syndrdb-core/src/keyenc"
	"syndrdb-core/src/kvstore"
)

// CollectionMeta is the per-collection record spec §3 defines: name,
// defined indexes, creation time, schema version, and an eventually
// accurate document count (never to be trusted for filtered counts).
type CollectionMeta struct {
	Name          string              `bson:"name"`
	Indexes       []indexmgr.IndexDef `bson:"indexes"`
	CreatedAt     time.Time           `bson:"createdAt"`
	SchemaVersion int                 `bson:"schemaVersion"`
	DocumentCount int64               `bson:"documentCount"`
	// StorageSizeBytes accumulates serialized document size at insert
	// time and is decremented at delete time; it is an estimate (GetStats
	// supplement), not a re-scan of the collection.
	StorageSizeBytes int64 `bson:"storageSizeBytes"`
}

// schemaVersion is bumped whenever CollectionMeta's on-disk shape changes.
const schemaVersion = 1

// validateCollectionName enforces spec §3's collection-name predicate.
func validateCollectionName(name string) error {
	switch {
	case name == "":
		return dberrors.InvalidNamespace(name, "must not be empty")
	case len(name) > 120:
		return dberrors.InvalidNamespace(name, "must be at most 120 characters")
	case strings.TrimSpace(name) == "":
		return dberrors.InvalidNamespace(name, "must not be only whitespace")
	case strings.Contains(name, ".."):
		return dberrors.InvalidNamespace(name, "must not contain '..'")
	case strings.HasPrefix(name, "system."):
		return dberrors.InvalidNamespace(name, "must not start with 'system.'")
	}
	for _, r := range []string{":", "/", "\\", "\x00"} {
		if strings.Contains(name, r) {
			return dberrors.InvalidNamespace(name, fmt.Sprintf("must not contain %q", r))
		}
	}
	return nil
}

// loadMeta reads a collection's metadata row, returning ok=false if none
// exists (spec §3's "absent" lifecycle state).
func loadMeta(ctx context.Context, kv kvstore.Store, collection string) (CollectionMeta, bool, error) {
	raw, found, err := kv.Get(ctx, keyenc.MetaKey(collection))
	if err != nil {
		return CollectionMeta{}, false, dberrors.Internal(err, "store: read metadata for %s", collection)
	}
	if !found {
		return CollectionMeta{}, false, nil
	}
	var meta CollectionMeta
	if err := bson.Unmarshal(raw, &meta); err != nil {
		return CollectionMeta{}, false, dberrors.Internal(err, "store: decode metadata for %s", collection)
	}
	return meta, true, nil
}

// saveMeta writes a collection's metadata row.
func saveMeta(ctx context.Context, kv kvstore.Store, meta CollectionMeta) error {
	raw, err := bson.Marshal(meta)
	if err != nil {
		return dberrors.Internal(err, "store: encode metadata for %s", meta.Name)
	}
	if err := kv.Put(ctx, keyenc.MetaKey(meta.Name), raw); err != nil {
		return dberrors.Internal(err, "store: write metadata for %s", meta.Name)
	}
	return nil
}

// getOrCreateMeta implements spec §3's "created on first insert" lifecycle
// transition, seeding the implicit _id_ index.
func getOrCreateMeta(ctx context.Context, kv kvstore.Store, collection string) (CollectionMeta, error) {
	meta, ok, err := loadMeta(ctx, kv, collection)
	if err != nil {
		return CollectionMeta{}, err
	}
	if ok {
		return meta, nil
	}
	meta = CollectionMeta{
		Name:          collection,
		Indexes:       []indexmgr.IndexDef{{Name: indexmgr.IDIndexName, Field: "_id", Unique: true}},
		CreatedAt:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
	}
	if err := saveMeta(ctx, kv, meta); err != nil {
		return CollectionMeta{}, err
	}
	return meta, nil
}

func (m CollectionMeta) indexOnField(field string) (indexmgr.IndexDef, bool) {
	for _, idx := range m.Indexes {
		if idx.Field == field {
			return idx, true
		}
	}
	return indexmgr.IndexDef{}, false
}
