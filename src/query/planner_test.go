package query

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"syndrdb-core/src/indexmgr"
)

func TestPlanEmptyFilterIsCollectionScan(t *testing.T) {
	p, err := SelectPlan("users", Filter{}, nil)
	require.NoError(t, err)
	require.Equal(t, CollectionScan, p.Kind)
	require.False(t, p.NeedsPostFilter)
}

func TestPlanScalarEqUsesIndex(t *testing.T) {
	indexes := []indexmgr.IndexDef{{Name: "email_1", Field: "email", Unique: true}}
	p, err := SelectPlan("users", Filter{{Key: "email", Value: "a@x"}}, indexes)
	require.NoError(t, err)
	require.Equal(t, IndexScan, p.Kind)
	require.Equal(t, "email", p.Field)
	require.False(t, p.NeedsPostFilter)
}

func TestPlanRangeOperatorUsesIndexNoPostFilter(t *testing.T) {
	indexes := []indexmgr.IndexDef{{Name: "age_1", Field: "age"}}
	f := Filter{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18.0}}}}
	p, err := SelectPlan("users", f, indexes)
	require.NoError(t, err)
	require.Equal(t, IndexScan, p.Kind)
	require.False(t, p.NeedsPostFilter)
}

func TestPlanNonRangeOperatorForcesPostFilter(t *testing.T) {
	indexes := []indexmgr.IndexDef{{Name: "age_1", Field: "age"}}
	f := Filter{{Key: "age", Value: bson.D{{Key: "$gte", Value: 18.0}, {Key: "$ne", Value: 21.0}}}}
	p, err := SelectPlan("users", f, indexes)
	require.NoError(t, err)
	require.Equal(t, IndexScan, p.Kind)
	require.True(t, p.NeedsPostFilter)
}

func TestPlanExtraFieldForcesPostFilter(t *testing.T) {
	indexes := []indexmgr.IndexDef{{Name: "email_1", Field: "email"}}
	f := Filter{{Key: "email", Value: "a@x"}, {Key: "active", Value: true}}
	p, err := SelectPlan("users", f, indexes)
	require.NoError(t, err)
	require.Equal(t, IndexScan, p.Kind)
	require.True(t, p.NeedsPostFilter)
}

func TestPlanNoIndexedFieldIsCollectionScan(t *testing.T) {
	f := Filter{{Key: "name", Value: "bob"}}
	p, err := SelectPlan("users", f, nil)
	require.NoError(t, err)
	require.Equal(t, CollectionScan, p.Kind)
	require.True(t, p.NeedsPostFilter)
}

func TestPlanAndRecursesIntoSubfilters(t *testing.T) {
	indexes := []indexmgr.IndexDef{{Name: "age_1", Field: "age"}}
	f := Filter{{Key: "$and", Value: bson.A{
		bson.D{{Key: "name", Value: "bob"}},
		bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 10.0}}}},
	}}}
	p, err := SelectPlan("users", f, indexes)
	require.NoError(t, err)
	require.Equal(t, IndexScan, p.Kind)
	require.True(t, p.NeedsPostFilter)
}

func TestPlanOrForcesCollectionScanWhenNoIndexUsable(t *testing.T) {
	f := Filter{{Key: "$or", Value: bson.A{
		bson.D{{Key: "name", Value: "bob"}},
		bson.D{{Key: "age", Value: 10.0}},
	}}}
	p, err := SelectPlan("users", f, nil)
	require.NoError(t, err)
	require.Equal(t, CollectionScan, p.Kind)
	require.True(t, p.NeedsPostFilter)
}
