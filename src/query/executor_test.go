package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"syndrdb-core/src/document"
	"syndrdb-core/src/indexmgr"
	"syndrdb-core/src/keyenc"
	"syndrdb-core/src/kvstore"
)

func seedUsers(t *testing.T, kv kvstore.Store, mgr *indexmgr.Manager, indexes []indexmgr.IndexDef) {
	ctx := context.Background()
	names := []string{"alice", "bob", "carl", "dana"}
	ages := []float64{20, 25, 30, 35}
	for i := range names {
		d := document.New()
		id := string(rune('a' + i))
		d.Set("_id", document.String(id))
		d.Set("name", document.String(names[i]))
		d.Set("age", document.Number(ages[i]))
		data, err := d.MarshalBSON()
		require.NoError(t, err)
		require.NoError(t, kv.Put(ctx, keyenc.DocKey("users", id), data))
		require.NoError(t, mgr.OnInsert(ctx, "users", indexes, d, id))
	}
}

func TestExecutorCollectionScanNoFilter(t *testing.T) {
	kv := kvstore.NewMemStore()
	mgr := indexmgr.New(kv, zap.NewNop().Sugar())
	seedUsers(t, kv, mgr, nil)

	exec := NewExecutor(kv)
	plan := Plan{Kind: CollectionScan}
	docs, err := exec.Run(context.Background(), "users", plan, nil, Options{})
	require.NoError(t, err)
	require.Len(t, docs, 4)
}

func TestExecutorIndexScanWithRange(t *testing.T) {
	kv := kvstore.NewMemStore()
	mgr := indexmgr.New(kv, zap.NewNop().Sugar())
	indexes := []indexmgr.IndexDef{{Name: "age_1", Field: "age"}}
	seedUsers(t, kv, mgr, indexes)

	gte := document.Number(25)
	r, err := keyenc.ComputeRange("users", "age", keyenc.Bounds{Gte: &gte})
	require.NoError(t, err)

	plan := Plan{Kind: IndexScan, Field: "age", Range: r}
	exec := NewExecutor(kv)
	docs, err := exec.Run(context.Background(), "users", plan, nil, Options{})
	require.NoError(t, err)
	require.Len(t, docs, 3)
}

func TestExecutorAppliesResidualFilter(t *testing.T) {
	kv := kvstore.NewMemStore()
	mgr := indexmgr.New(kv, zap.NewNop().Sugar())
	seedUsers(t, kv, mgr, nil)

	exec := NewExecutor(kv)
	plan := Plan{Kind: CollectionScan, NeedsPostFilter: true}
	filter := Filter{{Key: "name", Value: "bob"}}
	docs, err := exec.Run(context.Background(), "users", plan, filter, Options{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "b", docs[0].ID())
}

func TestExecutorRespectsMaxNeeded(t *testing.T) {
	kv := kvstore.NewMemStore()
	mgr := indexmgr.New(kv, zap.NewNop().Sugar())
	seedUsers(t, kv, mgr, nil)

	exec := NewExecutor(kv)
	plan := Plan{Kind: CollectionScan}
	docs, err := exec.Run(context.Background(), "users", plan, nil, Options{Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
}
