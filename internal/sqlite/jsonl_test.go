package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesh-intelligence/docmodel/pkg/types"
)

func TestJSONLPaths(t *testing.T) {
	p := jsonlPath("/data", "posts")
	assert.Equal(t, filepath.Join("/data", "posts.jsonl"), p)
	assert.Equal(t, "posts", collectionFromPath(p))
}

func TestReadJSONLMissingFile(t *testing.T) {
	records, err := readJSONL(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWriteReadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.jsonl")
	require.NoError(t, writeJSONL(path, [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}))

	records, err := readJSONL(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, `{"a":1}`, string(records[0]))
	assert.Equal(t, `{"b":2}`, string(records[1]))

	require.NoError(t, writeJSONL(path, nil))
	records, err = readJSONL(path)
	require.NoError(t, err)
	assert.Empty(t, records)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadJSONLSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n\n   \n{\"b\":2}\n"), 0o644))
	records, err := readJSONL(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestEncodeDecodeDocument(t *testing.T) {
	id := primitive.NewObjectID()
	when := primitive.NewDateTimeFromTime(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	doc := bson.M{
		"_id":   id,
		"n32":   int32(7),
		"n64":   int64(1) << 40,
		"f":     2.5,
		"when":  when,
		"tags":  bson.A{"x", int32(1)},
		"inner": bson.M{"k": "v"},
	}

	line, err := encodeDocument(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(line), "\n")

	back, err := decodeDocument(line)
	require.NoError(t, err)
	assert.Equal(t, id, back["_id"])
	assert.Equal(t, int32(7), back["n32"])
	assert.Equal(t, int64(1)<<40, back["n64"])
	assert.Equal(t, 2.5, back["f"])
	assert.Equal(t, when, back["when"])

	_, err = decodeDocument([]byte("{not json"))
	assert.Error(t, err)
}

func TestLoaderSkipsBadLines(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		`{"_id":"a","v":{"$numberInt":"1"}}`,
		`{broken`,
		`{"v":{"$numberInt":"2"}}`,
		`{"_id":"b","v":{"$numberInt":"3"}}`,
		`{"_id":"a","v":{"$numberInt":"4"}}`,
	}
	require.NoError(t, os.WriteFile(jsonlPath(dir, "items"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	b := attach(t, dir, "")
	docs, err := collection(t, b, "items").Find(context.Background(), bson.D{}, types.FindOptions{Sort: bson.D{{Key: "_id", Value: 1}}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0]["_id"])
	assert.Equal(t, int32(4), docs[0]["v"], "later line wins")
	assert.Equal(t, "b", docs[1]["_id"])
}

func TestLoaderIsolatesCollections(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(jsonlPath(dir, "posts"), []byte(`{"_id":"x"}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(jsonlPath(dir, "users"), []byte(`{"_id":"x"}`+"\n"+`{"_id":"y"}`+"\n"), 0o644))

	b := attach(t, dir, "")
	ctx := context.Background()
	posts, err := collection(t, b, "posts").Count(ctx, bson.D{})
	require.NoError(t, err)
	users, err := collection(t, b, "users").Count(ctx, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), posts)
	assert.Equal(t, int64(2), users)
}
