package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"syndrdb-core/src/document"
	"syndrdb-core/src/kvstore"
	"syndrdb-core/src/query"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	j, err := OpenJournal("")
	require.NoError(t, err)
	return New(kvstore.NewMemStore(), zap.NewNop().Sugar(), j, 0)
}

func docWith(fields map[string]interface{}) *document.Document {
	d := document.New()
	for k, v := range fields {
		val, err := document.FromGo(v)
		if err != nil {
			panic(err)
		}
		d.Set(k, val)
	}
	return d
}

func TestInsertAllocatesIDAndBumpsMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Insert(ctx, "users", []*document.Document{docWith(map[string]interface{}{"name": "bob"})})
	require.NoError(t, err)
	require.True(t, res.Acknowledged)
	require.Len(t, res.InsertedIDs, 1)
	require.Len(t, res.InsertedIDs[0], 24)

	meta, ok, err := loadMeta(ctx, s.kv, "users")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, meta.DocumentCount)
	require.Greater(t, meta.StorageSizeBytes, int64(0))
}

func TestInsertRejectsOversizedDocument(t *testing.T) {
	j, err := OpenJournal("")
	require.NoError(t, err)
	s := New(kvstore.NewMemStore(), zap.NewNop().Sugar(), j, 16)

	_, err = s.Insert(context.Background(), "users", []*document.Document{
		docWith(map[string]interface{}{"name": "a very long name that exceeds the cap"}),
	})
	require.Error(t, err)
}

func TestFindAppliesEqFilterUsingIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateIndex(ctx, "users", "email", true)
	require.NoError(t, err)

	_, err = s.Insert(ctx, "users", []*document.Document{
		docWith(map[string]interface{}{"email": "a@x", "age": 30.0}),
		docWith(map[string]interface{}{"email": "b@x", "age": 25.0}),
	})
	require.NoError(t, err)

	docs, err := s.Find(ctx, "users", query.Filter{{Key: "email", Value: "a@x"}}, query.Options{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	v, ok := docs[0].Get("email")
	require.True(t, ok)
	require.Equal(t, "a@x", v.Str)
}

func TestFindOnMissingCollectionReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	docs, err := s.Find(context.Background(), "ghost", query.Filter{}, query.Options{})
	require.NoError(t, err)
	require.Nil(t, docs)
}

func TestFindOneReturnsFirstMatchOrNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "users", []*document.Document{
		docWith(map[string]interface{}{"email": "a@x", "age": 30.0}),
	})
	require.NoError(t, err)

	doc, err := s.FindOne(ctx, "users", query.Filter{{Key: "email", Value: "a@x"}}, nil)
	require.NoError(t, err)
	require.NotNil(t, doc)
	v, _ := doc.Get("email")
	require.Equal(t, "a@x", v.Str)

	doc, err = s.FindOne(ctx, "users", query.Filter{{Key: "email", Value: "nobody"}}, nil)
	require.NoError(t, err)
	require.Nil(t, doc)
}

func TestInsertRejectsNonStringID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), "users", []*document.Document{
		docWith(map[string]interface{}{"_id": 42.0, "name": "bob"}),
	})
	require.Error(t, err)
}

func TestInsertRejectsOutOfRangeIDLength(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), "users", []*document.Document{
		docWith(map[string]interface{}{"_id": "", "name": "bob"}),
	})
	require.Error(t, err)
}

func TestInsertHonorsSuppliedID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	res, err := s.Insert(ctx, "users", []*document.Document{
		docWith(map[string]interface{}{"_id": "custom-id", "name": "bob"}),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"custom-id"}, res.InsertedIDs)
}

func TestInsertAndFindRoundTripsNestedDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addr, err := document.FromMap(map[string]interface{}{"city": "nyc", "zip": "10001"})
	require.NoError(t, err)
	d := document.New()
	d.Set("name", document.String("bob"))
	d.Set("address", document.DocValue(addr))

	res, err := s.Insert(ctx, "users", []*document.Document{d})
	require.NoError(t, err)
	id := res.InsertedIDs[0]

	docs, err := s.Find(ctx, "users", query.Filter{{Key: "_id", Value: id}}, query.Options{})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	v, ok := docs[0].Get("address")
	require.True(t, ok)
	require.Equal(t, document.KindDocument, v.Kind)
	require.NotNil(t, v.Doc)
	city, ok := v.Doc.Get("city")
	require.True(t, ok)
	require.Equal(t, "nyc", city.Str)

	nested, err := s.Find(ctx, "users", query.Filter{{Key: "address.city", Value: "nyc"}}, query.Options{})
	require.NoError(t, err)
	require.Len(t, nested, 1)
}

func TestCountDocumentsEmptyFilterUsesMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "users", []*document.Document{
		docWith(map[string]interface{}{"n": 1.0}),
		docWith(map[string]interface{}{"n": 2.0}),
	})
	require.NoError(t, err)

	n, err := s.CountDocuments(ctx, "users", query.Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestUpdateOneAppliesSetAndInc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Insert(ctx, "users", []*document.Document{
		docWith(map[string]interface{}{"name": "bob", "visits": 1.0}),
	})
	require.NoError(t, err)
	id := res.InsertedIDs[0]

	upd := query.Filter{
		{Key: "$set", Value: bson.D{{Key: "name", Value: "robert"}}},
		{Key: "$inc", Value: bson.D{{Key: "visits", Value: 1.0}}},
	}
	ur, err := s.UpdateOne(ctx, "users", query.Filter{{Key: "_id", Value: id}}, upd, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, ur.MatchedCount)
	require.EqualValues(t, 1, ur.ModifiedCount)

	docs, err := s.Find(ctx, "users", query.Filter{{Key: "_id", Value: id}}, query.Options{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	v, _ := docs[0].Get("name")
	require.Equal(t, "robert", v.Str)
	v, _ = docs[0].Get("visits")
	require.Equal(t, 2.0, v.Num)
}

func TestUpdateOneUpsertInsertsWhenNoMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	upd := query.Filter{{Key: "$set", Value: bson.D{{Key: "name", Value: "carol"}}}}
	ur, err := s.UpdateOne(ctx, "users", query.Filter{{Key: "email", Value: "c@x"}}, upd, true)
	require.NoError(t, err)
	require.NotEmpty(t, ur.UpsertedID)

	docs, err := s.Find(ctx, "users", query.Filter{{Key: "email", Value: "c@x"}}, query.Options{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	v, _ := docs[0].Get("name")
	require.Equal(t, "carol", v.Str)
}

func TestUpdateOneWithoutUpsertNoOpOnMiss(t *testing.T) {
	s := newTestStore(t)
	ur, err := s.UpdateOne(context.Background(), "users", query.Filter{{Key: "email", Value: "nobody"}},
		query.Filter{{Key: "$set", Value: bson.D{{Key: "x", Value: 1}}}}, false)
	require.NoError(t, err)
	require.Zero(t, ur.MatchedCount)
}

func TestDeleteOneRemovesDocumentAndDecrementsCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Insert(ctx, "users", []*document.Document{docWith(map[string]interface{}{"name": "bob"})})
	require.NoError(t, err)
	id := res.InsertedIDs[0]

	dr, err := s.DeleteOne(ctx, "users", query.Filter{{Key: "_id", Value: id}})
	require.NoError(t, err)
	require.EqualValues(t, 1, dr.DeletedCount)

	meta, ok, err := loadMeta(ctx, s.kv, "users")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 0, meta.DocumentCount)
}

func TestDeleteManyRemovesAllMatching(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "users", []*document.Document{
		docWith(map[string]interface{}{"active": false}),
		docWith(map[string]interface{}{"active": false}),
		docWith(map[string]interface{}{"active": true}),
	})
	require.NoError(t, err)

	dr, err := s.DeleteMany(ctx, "users", query.Filter{{Key: "active", Value: false}})
	require.NoError(t, err)
	require.EqualValues(t, 2, dr.DeletedCount)

	n, err := s.CountDocuments(ctx, "users", query.Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestCreateIndexThenDropIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def, err := s.CreateIndex(ctx, "users", "email", true)
	require.NoError(t, err)
	require.Equal(t, "email", def.Field)

	idxs, err := s.ListIndexes(ctx, "users")
	require.NoError(t, err)
	require.Len(t, idxs, 2) // implicit _id_ plus email_1

	require.NoError(t, s.DropIndex(ctx, "users", def.Name))
	idxs, err = s.ListIndexes(ctx, "users")
	require.NoError(t, err)
	require.Len(t, idxs, 1)
}

func TestDropIndexRefusesImplicitIDIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateIndex(ctx, "users", "email", false)
	require.NoError(t, err)

	err = s.DropIndex(ctx, "users", "_id_")
	require.Error(t, err)
}

func TestCreateCollectionThenDropCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateCollection(ctx, "empty"))
	infos, err := s.ListCollections(ctx)
	require.NoError(t, err)
	require.True(t, containsCollection(infos, "empty"))

	_, err = s.Insert(ctx, "empty", []*document.Document{docWith(map[string]interface{}{"a": 1.0})})
	require.NoError(t, err)

	before := collectionNamed(infos, "empty")
	require.False(t, before.CreatedAt.IsZero())
	require.Zero(t, before.DocumentCount)

	require.NoError(t, s.DropCollection(ctx, "empty"))
	infos, err = s.ListCollections(ctx)
	require.NoError(t, err)
	require.False(t, containsCollection(infos, "empty"))

	n, err := s.CountDocuments(ctx, "empty", query.Filter{})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestGetStatsReportsPerCollectionCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "users", []*document.Document{docWith(map[string]interface{}{"a": 1.0})})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "orders", []*document.Document{
		docWith(map[string]interface{}{"a": 1.0}),
		docWith(map[string]interface{}{"a": 2.0}),
	})
	require.NoError(t, err)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)

	byName := map[string]Stats{}
	for _, st := range stats {
		byName[st.Name] = st
	}
	require.EqualValues(t, 1, byName["users"].DocumentCount)
	require.EqualValues(t, 2, byName["orders"].DocumentCount)
}

func TestInvalidCollectionNameRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), "system.users", []*document.Document{docWith(nil)})
	require.Error(t, err)
}

func TestSanitizeRejectsDangerousFilterKey(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Find(context.Background(), "users", query.Filter{{Key: "__proto__", Value: 1}}, query.Options{})
	require.Error(t, err)
}

func containsCollection(infos []CollectionInfo, name string) bool {
	for _, info := range infos {
		if info.Name == name {
			return true
		}
	}
	return false
}

func collectionNamed(infos []CollectionInfo, name string) CollectionInfo {
	for _, info := range infos {
		if info.Name == name {
			return info
		}
	}
	return CollectionInfo{}
}
