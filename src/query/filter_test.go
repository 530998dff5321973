package query

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"syndrdb-core/src/document"
)

func sampleDoc() *document.Document {
	d := document.New()
	d.Set("_id", document.String("u1"))
	d.Set("name", document.String("bob"))
	d.Set("age", document.Number(30))
	nested := document.New()
	nested.Set("city", document.String("nyc"))
	d.Set("address", document.DocValue(nested))
	return d
}

func TestMatchScalarEqShorthand(t *testing.T) {
	d := sampleDoc()
	ok, err := Match(d, Filter{{Key: "name", Value: "bob"}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match(d, Filter{{Key: "name", Value: "alice"}})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMatchRangeOperators(t *testing.T) {
	d := sampleDoc()
	ok, err := Match(d, Filter{{Key: "age", Value: bson.D{{Key: "$gte", Value: 30.0}}}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match(d, Filter{{Key: "age", Value: bson.D{{Key: "$lt", Value: 30.0}}}})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMatchNeMatchesAbsentField(t *testing.T) {
	d := sampleDoc()
	ok, err := Match(d, Filter{{Key: "missing", Value: bson.D{{Key: "$ne", Value: "x"}}}})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchInAndNin(t *testing.T) {
	d := sampleDoc()
	ok, err := Match(d, Filter{{Key: "name", Value: bson.D{{Key: "$in", Value: bson.A{"bob", "carl"}}}}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match(d, Filter{{Key: "name", Value: bson.D{{Key: "$nin", Value: bson.A{"carl"}}}}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match(d, Filter{{Key: "missing", Value: bson.D{{Key: "$nin", Value: bson.A{"x"}}}}})
	require.NoError(t, err)
	require.True(t, ok, "missing field counts as matching for $nin")
}

func TestMatchInRejectsOversizedArray(t *testing.T) {
	d := sampleDoc()
	big := make(bson.A, MaxInArraySize+1)
	_, err := Match(d, Filter{{Key: "name", Value: bson.D{{Key: "$in", Value: big}}}})
	require.Error(t, err)
}

func TestMatchExists(t *testing.T) {
	d := sampleDoc()
	ok, err := Match(d, Filter{{Key: "age", Value: bson.D{{Key: "$exists", Value: true}}}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match(d, Filter{{Key: "missing", Value: bson.D{{Key: "$exists", Value: false}}}})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchAndOr(t *testing.T) {
	d := sampleDoc()
	ok, err := Match(d, Filter{{Key: "$and", Value: bson.A{
		bson.D{{Key: "name", Value: "bob"}},
		bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 10.0}}}},
	}}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match(d, Filter{{Key: "$or", Value: bson.A{
		bson.D{{Key: "name", Value: "alice"}},
		bson.D{{Key: "age", Value: 30.0}},
	}}})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchDottedPath(t *testing.T) {
	d := sampleDoc()
	ok, err := Match(d, Filter{{Key: "address.city", Value: "nyc"}})
	require.NoError(t, err)
	require.True(t, ok)
}
