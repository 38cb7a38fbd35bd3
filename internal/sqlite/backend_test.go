package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesh-intelligence/docmodel/pkg/types"
)

func attach(t *testing.T, dir string, sync string) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir, SyncStrategy: sync}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func collection(t *testing.T, b *Backend, name string) types.Collection {
	t.Helper()
	c, err := b.Collection(name)
	require.NoError(t, err)
	return c
}

func TestBackendAttachDetach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	require.NoError(t, b.Attach(cfg))
	_, err := os.Stat(filepath.Join(dir, dbFile))
	assert.NoError(t, err)
	assert.ErrorIs(t, b.Attach(cfg), types.ErrAlreadyAttached)

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")
	_, err = b.Collection("posts")
	assert.ErrorIs(t, err, types.ErrDatabaseDetached)
}

func TestBackendAttachValidates(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.Config
		wantErr error
	}{
		{"empty backend", types.Config{}, types.ErrBackendEmpty},
		{"mongo config", types.Config{Backend: types.BackendMongo, MongoURI: "mongodb://x"}, types.ErrBackendUnknown},
		{"bad sync", types.Config{Backend: types.BackendSQLite, SyncStrategy: "later"}, types.ErrSyncStrategyUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.DataDir = t.TempDir()
			assert.ErrorIs(t, NewBackend().Attach(tt.cfg), tt.wantErr)
		})
	}
}

func TestBackendLocksDataDir(t *testing.T) {
	dir := t.TempDir()
	attach(t, dir, "")

	other := NewBackend()
	err := other.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir})
	assert.ErrorIs(t, err, ErrDataDirLocked)
}

func TestCollectionNames(t *testing.T) {
	b := attach(t, t.TempDir(), "")
	for _, name := range []string{"", "../x", "a/b", ".hidden"} {
		_, err := b.Collection(name)
		assert.ErrorIs(t, err, types.ErrInvalidCollection, name)
	}
	a := collection(t, b, "posts")
	again := collection(t, b, "posts")
	assert.Same(t, a, again)
	assert.Equal(t, "posts", a.Name())
}

func TestSaveFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := attach(t, t.TempDir(), "")
	c := collection(t, b, "posts")
	id := primitive.NewObjectID()

	require.NoError(t, c.Save(ctx, bson.M{"_id": id, "title": "a", "hits": int64(1), "tags": bson.A{"x"}}))
	require.NoError(t, c.Save(ctx, bson.M{"_id": id, "title": "b", "hits": int64(2), "tags": bson.A{"x"}}))

	docs, err := c.Find(ctx, bson.D{{Key: "_id", Value: id}}, types.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0]["_id"])
	assert.Equal(t, "b", docs[0]["title"])
	assert.Equal(t, int64(2), docs[0]["hits"])

	n, err := c.Count(ctx, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSaveGeneratesMissingID(t *testing.T) {
	ctx := context.Background()
	c := collection(t, attach(t, t.TempDir(), ""), "notes")
	doc := bson.M{"body": "hi"}
	require.NoError(t, c.Save(ctx, doc))
	id, ok := doc["_id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 36)

	assert.ErrorIs(t, c.Save(ctx, bson.M{"_id": nil}), types.ErrInvalidDocument)
}

func TestFindSortsAndPaginates(t *testing.T) {
	ctx := context.Background()
	c := collection(t, attach(t, t.TempDir(), ""), "people")
	for i, p := range []bson.M{
		{"_id": 1, "name": "carol", "age": int32(40)},
		{"_id": 2, "name": "alice", "age": int32(30)},
		{"_id": 3, "name": "bob", "age": int32(30)},
		{"_id": 4, "name": "dave"},
	} {
		require.NoError(t, c.Save(ctx, p), i)
	}

	names := func(docs []bson.M) []string {
		var out []string
		for _, d := range docs {
			out = append(out, d["name"].(string))
		}
		return out
	}

	docs, err := c.Find(ctx, bson.D{}, types.FindOptions{Sort: bson.D{{Key: "age", Value: -1}, {Key: "name", Value: 1}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "alice", "bob", "dave"}, names(docs))

	docs, err = c.Find(ctx, bson.D{}, types.FindOptions{Sort: bson.D{{Key: "name", Value: 1}}, Skip: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, names(docs))

	docs, err = c.Find(ctx, bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 35}}}}, types.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, names(docs))

	_, err = c.Find(ctx, bson.D{}, types.FindOptions{Sort: bson.D{{Key: "age", Value: 2}}})
	assert.ErrorIs(t, err, types.ErrInvalidSelector)
}

func TestUpdateMultiAndSingle(t *testing.T) {
	ctx := context.Background()
	c := collection(t, attach(t, t.TempDir(), ""), "posts")
	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Save(ctx, bson.M{"_id": i, "hits": int32(0), "open": i != 3}))
	}
	inc := bson.D{{Key: "$inc", Value: bson.D{{Key: "hits", Value: 1}}}}

	res, err := c.Update(ctx, bson.D{{Key: "open", Value: true}}, inc, types.UpdateOptions{Multi: true})
	require.NoError(t, err)
	assert.Equal(t, types.UpdateResult{Matched: 2, Modified: 2}, res)

	res, err = c.Update(ctx, bson.D{}, inc, types.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.UpdateResult{Matched: 1, Modified: 1}, res)

	res, err = c.Update(ctx, bson.D{{Key: "hits", Value: 99}}, inc, types.UpdateOptions{Multi: true})
	require.NoError(t, err)
	assert.Zero(t, res.Matched)

	docs, err := c.Find(ctx, bson.D{}, types.FindOptions{Sort: bson.D{{Key: "_id", Value: 1}}})
	require.NoError(t, err)
	var hits []any
	for _, d := range docs {
		hits = append(hits, d["hits"])
	}
	assert.Equal(t, []any{int32(2), int32(1), int32(0)}, hits)
}

func TestUpdateUnchangedDocumentsAreNotModified(t *testing.T) {
	ctx := context.Background()
	c := collection(t, attach(t, t.TempDir(), ""), "posts")
	require.NoError(t, c.Save(ctx, bson.M{"_id": 1, "title": "same"}))

	res, err := c.Update(ctx, bson.D{}, bson.D{{Key: "$set", Value: bson.D{{Key: "title", Value: "same"}}}}, types.UpdateOptions{Multi: true})
	require.NoError(t, err)
	assert.Equal(t, types.UpdateResult{Matched: 1, Modified: 0}, res)
}

func TestUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	c := collection(t, attach(t, t.TempDir(), ""), "posts")
	require.NoError(t, c.Save(ctx, bson.M{"_id": 1, "tags": bson.A{"a"}}))
	require.NoError(t, c.Save(ctx, bson.M{"_id": 2, "tags": "not an array"}))

	_, err := c.Update(ctx, bson.D{}, bson.D{{Key: "$push", Value: bson.D{{Key: "tags", Value: "b"}}}}, types.UpdateOptions{Multi: true})
	require.ErrorIs(t, err, types.ErrInvalidUpdate)

	docs, err := c.Find(ctx, bson.D{{Key: "_id", Value: 1}}, types.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, bson.A{"a"}, docs[0]["tags"], "first document rolled back")
}

func TestUpdateRejectsBadDocuments(t *testing.T) {
	ctx := context.Background()
	c := collection(t, attach(t, t.TempDir(), ""), "posts")
	require.NoError(t, c.Save(ctx, bson.M{"_id": 1}))

	tests := []struct {
		name   string
		update bson.D
	}{
		{"empty", bson.D{}},
		{"replacement", bson.D{{Key: "title", Value: "x"}}},
		{"unknown operator", bson.D{{Key: "$mul", Value: bson.D{{Key: "n", Value: 2}}}}},
		{"scalar body", bson.D{{Key: "$set", Value: 3}}},
		{"change _id", bson.D{{Key: "$set", Value: bson.D{{Key: "_id", Value: 2}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Update(ctx, bson.D{}, tt.update, types.UpdateOptions{Multi: true})
			assert.ErrorIs(t, err, types.ErrInvalidUpdate)
		})
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	c := collection(t, attach(t, t.TempDir(), ""), "posts")
	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Save(ctx, bson.M{"_id": i, "n": i}))
	}
	n, err := c.Remove(ctx, bson.D{{Key: "n", Value: bson.D{{Key: "$lt", Value: 3}}}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	left, err := c.Count(ctx, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}

func TestPersistenceAcrossAttach(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	id := primitive.NewObjectID()

	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	c := collection(t, b, "posts")
	require.NoError(t, c.Save(ctx, bson.M{"_id": id, "hits": int64(1)}))
	_, err := c.Update(ctx, bson.D{}, bson.D{{Key: "$inc", Value: bson.D{{Key: "hits", Value: int64(4)}}}}, types.UpdateOptions{Multi: true})
	require.NoError(t, err)

	data, err := os.ReadFile(jsonlPath(dir, "posts"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), id.Hex())
	require.NoError(t, b.Detach())

	b2 := attach(t, dir, "")
	docs, err := collection(t, b2, "posts").Find(ctx, bson.D{{Key: "_id", Value: id}}, types.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(5), docs[0]["hits"])
}

func TestOnCloseSyncDefersWrites(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir, SyncStrategy: types.SyncOnClose}))

	c := collection(t, b, "posts")
	require.NoError(t, c.Save(ctx, bson.M{"_id": "a"}))
	_, err := os.Stat(jsonlPath(dir, "posts"))
	assert.True(t, os.IsNotExist(err), "nothing written before detach")

	require.NoError(t, b.Detach())
	data, err := os.ReadFile(jsonlPath(dir, "posts"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"_id":"a"`)
}
