// Package store implements the document store: CRUD orchestration, input
// sanitization, per-collection locking, id allocation, and collection
// metadata lifecycle (spec §4.4). It is the one component every front end
// calls into; it delegates indexing to indexmgr and scanning to query.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"syndrdb-core/src/dberrors"
	"syndrdb-core/src/document"
	"syndrdb-core/src/indexmgr"
	"syndrdb-core/src/keyenc"
	"syndrdb-core/src/kvstore"
	"syndrdb-core/src/query"
)

// Chunk sizes and caps from spec §4.4.
const (
	insertChunk     = 5000
	deleteManyChunk = 5000
	dropChunk       = 5000
	bulkUpdateCap   = 50000
	countLimit      = 100000
)

// InsertResult is Insert's return value, mirroring the external
// protocol's acknowledged-write shape.
type InsertResult struct {
	Acknowledged  bool
	InsertedIDs   []string
	InsertedCount int
}

// UpdateResult is UpdateOne/UpdateMany's return value.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    string
}

// DeleteResult is DeleteOne/DeleteMany's return value.
type DeleteResult struct {
	DeletedCount int64
}

// Stats is one collection's entry in GetStats's output (supplemented
// feature, spec §1 Non-goals leave metrics/introspection to a front end
// but this is a cheap, already-tracked estimate the store can expose).
type Stats struct {
	Name             string
	DocumentCount    int64
	IndexCount       int
	StorageSizeBytes int64
}

// CollectionInfo is one collection's entry in ListCollections's output
// (spec §6: "vector of {name, documentCount, indexCount, createdAt}").
type CollectionInfo struct {
	Name          string
	DocumentCount int64
	IndexCount    int
	CreatedAt     time.Time
}

// DocumentStore is the coordinator spec §4.4 describes: it owns no
// document or index state directly (that lives in the KV substrate) but
// owns the per-collection lock table and drives indexmgr/query.
type DocumentStore struct {
	kv          kvstore.Store
	idx         *indexmgr.Manager
	locks       *xsync.MapOf[string, *sync.Mutex]
	journal     *Journal
	logger      *zap.SugaredLogger
	maxDocBytes int
}

// New creates a DocumentStore over kv. journal may be a no-op Journal
// (OpenJournal("")) if mutation logging is disabled. maxDocBytes <= 0
// falls back to the spec's 1 MiB default.
func New(kv kvstore.Store, logger *zap.SugaredLogger, journal *Journal, maxDocBytes int) *DocumentStore {
	if maxDocBytes <= 0 {
		maxDocBytes = 1 << 20
	}
	return &DocumentStore{
		kv:          kv,
		idx:         indexmgr.New(kv, logger),
		locks:       xsync.NewMapOf[string, *sync.Mutex](),
		journal:     journal,
		logger:      logger,
		maxDocBytes: maxDocBytes,
	}
}

// lockFor returns collection's serialization lock, creating it on first
// use (spec §5: "lazily created, never removed").
func (s *DocumentStore) lockFor(collection string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(collection, &sync.Mutex{})
	return lock
}

func (s *DocumentStore) warnJournal(err error) {
	if err != nil {
		s.logger.Warnw("store: journal write failed", "error", err)
	}
}

// Insert validates and writes documents into collection, allocating ids
// for any that lack one (spec §4.4).
func (s *DocumentStore) Insert(ctx context.Context, collection string, docs []*document.Document) (InsertResult, error) {
	if err := validateCollectionName(collection); err != nil {
		return InsertResult{}, err
	}
	for _, d := range docs {
		if err := d.Sanitize(); err != nil {
			return InsertResult{}, err
		}
	}

	lock := s.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()

	meta, err := getOrCreateMeta(ctx, s.kv, collection)
	if err != nil {
		return InsertResult{}, err
	}
	return s.doInsert(ctx, &meta, docs)
}

// doInsert writes docs in chunks of insertChunk, assuming the caller
// already holds the collection lock. On a DuplicateKey (or any) failure
// partway through, it still commits the documentCount/storage delta for
// documents successfully inserted before re-raising (spec §4.4).
func (s *DocumentStore) doInsert(ctx context.Context, meta *CollectionMeta, docs []*document.Document) (InsertResult, error) {
	collection := meta.Name
	var insertedIDs []string
	var sizeDelta int64
	var failure error

chunkLoop:
	for start := 0; start < len(docs); start += insertChunk {
		end := start + insertChunk
		if end > len(docs) {
			end = len(docs)
		}
		for _, d := range docs[start:end] {
			idVal, present := d.Get(document.IDField)
			var id string
			switch {
			case !present:
				var err error
				id, err = NewID()
				if err != nil {
					failure = err
					break chunkLoop
				}
				d.Set(document.IDField, document.String(id))
			case idVal.Kind != document.KindString, len(idVal.Str) < 1, len(idVal.Str) > 256:
				failure = dberrors.InvalidLength("_id must be a string of length 1-256")
				break chunkLoop
			default:
				id = idVal.Str
			}

			raw, err := d.MarshalBSON()
			if err != nil {
				failure = dberrors.BadValue("document %s: %v", id, err)
				break chunkLoop
			}
			if len(raw) > s.maxDocBytes {
				failure = dberrors.DocumentTooLarge(len(raw), s.maxDocBytes)
				break chunkLoop
			}

			if err := s.idx.OnInsert(ctx, collection, meta.Indexes, d, id); err != nil {
				failure = err
				break chunkLoop
			}
			if err := s.kv.Put(ctx, keyenc.DocKey(collection, id), raw); err != nil {
				failure = dberrors.Internal(err, "store: write document %s", id)
				break chunkLoop
			}

			insertedIDs = append(insertedIDs, id)
			sizeDelta += int64(len(raw))
			insertedTotal.Inc()
		}
	}

	meta.DocumentCount += int64(len(insertedIDs))
	meta.StorageSizeBytes += sizeDelta
	if err := saveMeta(ctx, s.kv, *meta); err != nil {
		if failure == nil {
			failure = err
		} else {
			s.logger.Errorw("store: failed to save metadata after insert failure", "collection", collection, "saveError", err)
		}
	}
	s.warnJournal(s.journal.Write("insert", collection, fmt.Sprintf("inserted=%d", len(insertedIDs))))

	return InsertResult{Acknowledged: true, InsertedIDs: insertedIDs, InsertedCount: len(insertedIDs)}, failure
}

// Find plans, executes, and shapes a query (spec §4.4).
func (s *DocumentStore) Find(ctx context.Context, collection string, filter query.Filter, opts query.Options) ([]*document.Document, error) {
	if err := validateCollectionName(collection); err != nil {
		return nil, err
	}
	if err := sanitizeFilterTree(filter, 0); err != nil {
		return nil, err
	}

	meta, ok, err := loadMeta(ctx, s.kv, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	opts.Limit = effectiveFindLimit(opts.Limit)

	plan, err := query.SelectPlan(collection, filter, meta.Indexes)
	if err != nil {
		return nil, err
	}
	findsTotal.Inc()

	docs, err := query.NewExecutor(s.kv).Run(ctx, collection, plan, filter, opts)
	if err != nil {
		return nil, err
	}
	return query.Shape(docs, opts)
}

// FindOne returns the first document matching filter, or nil if none
// matches (spec §6's FindOne operation).
func (s *DocumentStore) FindOne(ctx context.Context, collection string, filter query.Filter, projection query.Filter) (*document.Document, error) {
	docs, err := s.Find(ctx, collection, filter, query.Options{Limit: 1, Projection: projection})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// effectiveFindLimit implements spec §4.4's "Apply limit clamp:
// effectiveLimit = min(limit>0 ? limit : DEFAULT_LIMIT, MAX_LIMIT)".
func effectiveFindLimit(limit int) int {
	if limit <= 0 {
		limit = query.DefaultLimit
	}
	if limit > query.MaxLimit {
		limit = query.MaxLimit
	}
	return limit
}

// CountDocuments returns metadata.documentCount for an empty filter (an
// O(1) eventually-accurate approximation), otherwise executes the filter
// with a 100 000-document cap (spec §4.4).
func (s *DocumentStore) CountDocuments(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	if err := validateCollectionName(collection); err != nil {
		return 0, err
	}
	meta, ok, err := loadMeta(ctx, s.kv, collection)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(filter) == 0 {
		return meta.DocumentCount, nil
	}
	if err := sanitizeFilterTree(filter, 0); err != nil {
		return 0, err
	}

	plan, err := query.SelectPlan(collection, filter, meta.Indexes)
	if err != nil {
		return 0, err
	}
	docs, err := query.NewExecutor(s.kv).Run(ctx, collection, plan, filter, query.Options{Limit: countLimit})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// UpdateOne updates at most one matching document.
func (s *DocumentStore) UpdateOne(ctx context.Context, collection string, filter, update query.Filter, upsert bool) (UpdateResult, error) {
	return s.updateInternal(ctx, collection, filter, update, upsert, 1)
}

// UpdateMany updates every matching document, up to the bulk cap.
func (s *DocumentStore) UpdateMany(ctx context.Context, collection string, filter, update query.Filter, upsert bool) (UpdateResult, error) {
	return s.updateInternal(ctx, collection, filter, update, upsert, bulkUpdateCap)
}

func (s *DocumentStore) updateInternal(ctx context.Context, collection string, filter, update query.Filter, upsert bool, limit int) (UpdateResult, error) {
	if err := validateCollectionName(collection); err != nil {
		return UpdateResult{}, err
	}
	if err := sanitizeFilterTree(filter, 0); err != nil {
		return UpdateResult{}, err
	}
	if err := sanitizeFilterTree(update, 0); err != nil {
		return UpdateResult{}, err
	}
	pu, err := parseUpdate(update)
	if err != nil {
		return UpdateResult{}, err
	}

	lock := s.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()

	meta, ok, err := loadMeta(ctx, s.kv, collection)
	if err != nil {
		return UpdateResult{}, err
	}
	if !ok {
		if !upsert {
			return UpdateResult{}, nil
		}
		meta, err = getOrCreateMeta(ctx, s.kv, collection)
		if err != nil {
			return UpdateResult{}, err
		}
	}

	plan, err := query.SelectPlan(collection, filter, meta.Indexes)
	if err != nil {
		return UpdateResult{}, err
	}
	docs, err := query.NewExecutor(s.kv).Run(ctx, collection, plan, filter, query.Options{Limit: limit})
	if err != nil {
		return UpdateResult{}, err
	}

	if len(docs) == 0 {
		if !upsert {
			return UpdateResult{}, nil
		}
		base, err := upsertBaseDocument(filter, pu)
		if err != nil {
			return UpdateResult{}, err
		}
		insertRes, err := s.doInsert(ctx, &meta, []*document.Document{base})
		if err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{UpsertedID: insertRes.InsertedIDs[0]}, nil
	}

	var modified int64
	var sizeDelta int64
	for _, doc := range docs {
		old := doc.Clone()
		changed, err := applyUpdate(doc, pu)
		if err != nil {
			return UpdateResult{}, err
		}
		if !changed {
			continue
		}

		id := doc.ID()
		if err := s.idx.OnUpdate(ctx, collection, meta.Indexes, old, doc, id); err != nil {
			return UpdateResult{}, err
		}

		raw, err := doc.MarshalBSON()
		if err != nil {
			return UpdateResult{}, dberrors.BadValue("document %s: %v", id, err)
		}
		if len(raw) > s.maxDocBytes {
			return UpdateResult{}, dberrors.DocumentTooLarge(len(raw), s.maxDocBytes)
		}

		oldRaw, _, _ := s.kv.Get(ctx, keyenc.DocKey(collection, id))
		if err := s.kv.Put(ctx, keyenc.DocKey(collection, id), raw); err != nil {
			return UpdateResult{}, dberrors.Internal(err, "store: write updated document %s", id)
		}
		sizeDelta += int64(len(raw)) - int64(len(oldRaw))
		modified++
		updatedTotal.Inc()
	}

	meta.StorageSizeBytes += sizeDelta
	if err := saveMeta(ctx, s.kv, meta); err != nil {
		return UpdateResult{MatchedCount: int64(len(docs)), ModifiedCount: modified}, err
	}
	s.warnJournal(s.journal.Write("update", collection, fmt.Sprintf("matched=%d modified=%d", len(docs), modified)))

	return UpdateResult{MatchedCount: int64(len(docs)), ModifiedCount: modified}, nil
}

// DeleteOne deletes at most one matching document.
func (s *DocumentStore) DeleteOne(ctx context.Context, collection string, filter query.Filter) (DeleteResult, error) {
	if err := validateCollectionName(collection); err != nil {
		return DeleteResult{}, err
	}
	if err := sanitizeFilterTree(filter, 0); err != nil {
		return DeleteResult{}, err
	}

	lock := s.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()

	meta, ok, err := loadMeta(ctx, s.kv, collection)
	if err != nil {
		return DeleteResult{}, err
	}
	if !ok {
		return DeleteResult{}, nil
	}

	plan, err := query.SelectPlan(collection, filter, meta.Indexes)
	if err != nil {
		return DeleteResult{}, err
	}
	docs, err := query.NewExecutor(s.kv).Run(ctx, collection, plan, filter, query.Options{Limit: 1})
	if err != nil {
		return DeleteResult{}, err
	}
	if len(docs) == 0 {
		return DeleteResult{}, nil
	}

	doc := docs[0]
	id := doc.ID()
	raw, _, _ := s.kv.Get(ctx, keyenc.DocKey(collection, id))
	if err := s.idx.OnDelete(ctx, collection, meta.Indexes, doc, id); err != nil {
		return DeleteResult{}, err
	}
	if _, err := s.kv.Delete(ctx, keyenc.DocKey(collection, id)); err != nil {
		return DeleteResult{}, dberrors.Internal(err, "store: delete document %s", id)
	}

	meta.DocumentCount--
	meta.StorageSizeBytes -= int64(len(raw))
	if err := saveMeta(ctx, s.kv, meta); err != nil {
		return DeleteResult{DeletedCount: 1}, err
	}
	deletedTotal.Inc()
	s.warnJournal(s.journal.Write("delete", collection, fmt.Sprintf("id=%s", id)))
	return DeleteResult{DeletedCount: 1}, nil
}

// DeleteMany deletes every matching document, in chunks of
// deleteManyChunk (spec §4.4).
func (s *DocumentStore) DeleteMany(ctx context.Context, collection string, filter query.Filter) (DeleteResult, error) {
	if err := validateCollectionName(collection); err != nil {
		return DeleteResult{}, err
	}
	if err := sanitizeFilterTree(filter, 0); err != nil {
		return DeleteResult{}, err
	}

	lock := s.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()

	meta, ok, err := loadMeta(ctx, s.kv, collection)
	if err != nil {
		return DeleteResult{}, err
	}
	if !ok {
		return DeleteResult{}, nil
	}

	var total int64
	var sizeDelta int64
	for {
		plan, err := query.SelectPlan(collection, filter, meta.Indexes)
		if err != nil {
			return DeleteResult{}, err
		}
		docs, err := query.NewExecutor(s.kv).Run(ctx, collection, plan, filter, query.Options{Limit: deleteManyChunk})
		if err != nil {
			return DeleteResult{}, err
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			id := doc.ID()
			raw, _, _ := s.kv.Get(ctx, keyenc.DocKey(collection, id))
			if err := s.idx.OnDelete(ctx, collection, meta.Indexes, doc, id); err != nil {
				return DeleteResult{}, err
			}
			if _, err := s.kv.Delete(ctx, keyenc.DocKey(collection, id)); err != nil {
				return DeleteResult{}, dberrors.Internal(err, "store: delete document %s", id)
			}
			sizeDelta -= int64(len(raw))
			total++
			deletedTotal.Inc()
		}

		if len(docs) < deleteManyChunk {
			break
		}
	}

	meta.DocumentCount -= total
	meta.StorageSizeBytes += sizeDelta
	if err := saveMeta(ctx, s.kv, meta); err != nil {
		return DeleteResult{DeletedCount: total}, err
	}
	s.warnJournal(s.journal.Write("delete", collection, fmt.Sprintf("deleted=%d", total)))
	return DeleteResult{DeletedCount: total}, nil
}

// CreateIndex builds a new index on field, scanning existing documents
// and enforcing uniqueness if requested (spec §4.4).
func (s *DocumentStore) CreateIndex(ctx context.Context, collection, field string, unique bool) (indexmgr.IndexDef, error) {
	if err := validateCollectionName(collection); err != nil {
		return indexmgr.IndexDef{}, err
	}

	lock := s.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()

	meta, err := getOrCreateMeta(ctx, s.kv, collection)
	if err != nil {
		return indexmgr.IndexDef{}, err
	}
	if existing, ok := meta.indexOnField(field); ok {
		return existing, nil
	}

	def, err := s.idx.CreateIndex(ctx, collection, meta.Indexes, field, unique)
	if err != nil {
		return indexmgr.IndexDef{}, err
	}

	meta.Indexes = append(meta.Indexes, def)
	if err := saveMeta(ctx, s.kv, meta); err != nil {
		return indexmgr.IndexDef{}, err
	}
	s.warnJournal(s.journal.Write("createIndex", collection, def.Name))
	return def, nil
}

// DropIndex removes name's rows and metadata entry. Dropping the
// implicit _id_ index is refused (spec §4.4).
func (s *DocumentStore) DropIndex(ctx context.Context, collection, name string) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	if name == indexmgr.IDIndexName {
		return dberrors.InvalidLength("cannot drop the implicit %s index", indexmgr.IDIndexName)
	}

	lock := s.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()

	meta, ok, err := loadMeta(ctx, s.kv, collection)
	if err != nil {
		return err
	}
	if !ok {
		return dberrors.NamespaceNotFound(collection)
	}

	var field string
	found := false
	kept := make([]indexmgr.IndexDef, 0, len(meta.Indexes))
	for _, idx := range meta.Indexes {
		if idx.Name == name {
			field = idx.Field
			found = true
			continue
		}
		kept = append(kept, idx)
	}
	if !found {
		return dberrors.IndexNotFound(collection, name)
	}

	if err := s.idx.DropIndex(ctx, collection, field); err != nil {
		return err
	}
	meta.Indexes = kept
	if err := saveMeta(ctx, s.kv, meta); err != nil {
		return err
	}
	s.warnJournal(s.journal.Write("dropIndex", collection, name))
	return nil
}

// ListIndexes returns collection's defined indexes, nil if the
// collection has no metadata.
func (s *DocumentStore) ListIndexes(ctx context.Context, collection string) ([]indexmgr.IndexDef, error) {
	meta, ok, err := loadMeta(ctx, s.kv, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return meta.Indexes, nil
}

// CreateCollection explicitly creates an empty collection, the lifecycle
// exception spec §3 calls out but does not give its own operation.
func (s *DocumentStore) CreateCollection(ctx context.Context, collection string) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	lock := s.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()
	_, err := getOrCreateMeta(ctx, s.kv, collection)
	return err
}

// DropCollection deletes every document and index row for collection,
// then its metadata (spec §4.4).
func (s *DocumentStore) DropCollection(ctx context.Context, collection string) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}

	lock := s.lockFor(collection)
	lock.Lock()
	defer lock.Unlock()

	meta, ok, err := loadMeta(ctx, s.kv, collection)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	prefix := keyenc.DocPrefix(collection)
	for {
		entries, err := s.kv.Scan(ctx, kvstore.ScanOptions{Prefix: prefix, Limit: dropChunk})
		if err != nil {
			return dberrors.Internal(err, "store: scan documents for drop")
		}
		if len(entries) == 0 {
			break
		}
		keys := make([][]byte, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}
		if err := s.kv.BatchWrite(ctx, nil, keys); err != nil {
			return dberrors.Internal(err, "store: delete documents for drop")
		}
		if len(entries) < dropChunk {
			break
		}
	}

	if err := s.idx.DropAllForCollection(ctx, collection, meta.Indexes); err != nil {
		return err
	}
	if _, err := s.kv.Delete(ctx, keyenc.MetaKey(collection)); err != nil {
		return dberrors.Internal(err, "store: delete metadata for %s", collection)
	}
	s.warnJournal(s.journal.Write("dropCollection", collection, ""))
	return nil
}

// listCollectionNames enumerates the names of every collection with a
// metadata row.
func (s *DocumentStore) listCollectionNames(ctx context.Context) ([]string, error) {
	prefix := keyenc.MetaPrefix()
	entries, err := s.kv.Scan(ctx, kvstore.ScanOptions{Prefix: prefix})
	if err != nil {
		return nil, dberrors.Internal(err, "store: scan collection metadata")
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = string(e.Key[len(prefix):])
	}
	return names, nil
}

// ListCollections enumerates every collection with a metadata row,
// reporting name, document count, index count, and creation time (spec
// §6: "vector of {name, documentCount, indexCount, createdAt}").
func (s *DocumentStore) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	names, err := s.listCollectionNames(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]CollectionInfo, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			meta, ok, err := loadMeta(gctx, s.kv, name)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			infos[i] = CollectionInfo{
				Name:          name,
				DocumentCount: meta.DocumentCount,
				IndexCount:    len(meta.Indexes),
				CreatedAt:     meta.CreatedAt,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dberrors.Internal(err, "store: list collections")
	}
	return infos, nil
}

// GetStats reports per-collection document count, index count, and
// estimated storage size, fanning reads out across collections
// (supplemented feature, grounded on adfharrison1-go-db's
// GetMemoryStats).
func (s *DocumentStore) GetStats(ctx context.Context) ([]Stats, error) {
	names, err := s.listCollectionNames(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]Stats, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			meta, ok, err := loadMeta(gctx, s.kv, name)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			stats[i] = Stats{
				Name:             name,
				DocumentCount:    meta.DocumentCount,
				IndexCount:       len(meta.Indexes),
				StorageSizeBytes: meta.StorageSizeBytes,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dberrors.Internal(err, "store: gather collection stats")
	}
	return stats, nil
}

// Close releases the store's journal file handle.
func (s *DocumentStore) Close() error {
	return s.journal.Close()
}
