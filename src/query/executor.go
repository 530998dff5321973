package query

import (
	"context"

	"syndrdb-core/src/dberrors"
	"syndrdb-core/src/document"
	"syndrdb-core/src/keyenc"
	"syndrdb-core/src/kvstore"
)

// Execution constants from spec §4.3.
const (
	DefaultLimit = 1000
	MaxLimit     = 5000
	SortEvalCap  = 50000
	scanChunk    = 5000
)

// Options carries the post-scan shaping a caller requested (spec §4.3
// "Sort, skip, limit, projection").
type Options struct {
	Sort       Filter // ordered field -> 1/-1
	Projection Filter // ordered field -> 1/0, pure include or pure exclude
	Limit      int
	Skip       int
}

// Executor runs a Plan against the KV substrate, grounded on
// engine/query_executor.go's chunked-scan execution loop (retargeted from
// the teacher's row-file cursor to idx:/doc: key-range scans).
type Executor struct {
	kv kvstore.Store
}

// NewExecutor creates an Executor over kv.
func NewExecutor(kv kvstore.Store) *Executor {
	return &Executor{kv: kv}
}

// maxNeeded implements spec §4.3's execution-contract cap computation.
// The MaxLimit clamp on an explicit Find limit is applied by the caller
// before Run, so internal callers can pass larger caps (count, bulk
// update).
func maxNeeded(opts Options) int {
	limit := opts.Limit
	if len(opts.Sort) > 0 {
		return SortEvalCap
	}
	if limit > 0 {
		return opts.Skip + limit
	}
	return DefaultLimit
}

// Run executes plan over collection, applying the residual filter when
// the plan calls for it, and returns at most maxNeeded matching
// documents in scan order (sort/skip/limit/projection are applied
// separately by Shape).
func (e *Executor) Run(ctx context.Context, collection string, plan Plan, filter Filter, opts Options) ([]*document.Document, error) {
	needed := maxNeeded(opts)

	var startKey, endKey []byte
	switch plan.Kind {
	case IndexScan:
		startKey, endKey = plan.Range.StartKey, plan.Range.EndKey
	default:
		p := keyenc.DocPrefix(collection)
		startKey, endKey = p, append(append([]byte{}, p...), 0xFF)
	}

	var results []*document.Document
	cur := startKey
	for {
		entries, err := e.kv.Scan(ctx, kvstore.ScanOptions{StartKey: cur, EndKey: endKey, Limit: scanChunk})
		if err != nil {
			return nil, dberrors.Internal(err, "query: scan failed for collection %s", collection)
		}
		if len(entries) == 0 {
			break
		}

		for _, row := range entries {
			var docKey []byte
			if plan.Kind == IndexScan {
				_, _, decoded, ok := keyenc.DecodeIndexKey(row.Key)
				if !ok {
					continue
				}
				docKey = keyenc.DocKey(collection, decoded.ID)
			} else {
				docKey = row.Key
			}

			raw := row.Value
			if plan.Kind == IndexScan {
				var found bool
				raw, found, err = e.kv.Get(ctx, docKey)
				if err != nil {
					return nil, dberrors.Internal(err, "query: fetch document during index scan")
				}
				if !found {
					continue
				}
			}

			doc := document.New()
			if err := doc.UnmarshalBSON(raw); err != nil {
				return nil, dberrors.Internal(err, "query: decode document row")
			}

			if plan.NeedsPostFilter {
				matched, err := Match(doc, filter)
				if err != nil {
					return nil, err
				}
				if !matched {
					continue
				}
			}

			results = append(results, doc)
			if len(results) >= needed {
				return results, nil
			}
		}

		last := entries[len(entries)-1].Key
		cur = append(append([]byte{}, last...), 0x00)
		if len(entries) < scanChunk {
			break
		}
	}

	return results, nil
}
