package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/pkg/types"
)

type updateCall struct {
	Selector bson.D
	Update   bson.D
	Opts     types.UpdateOptions
}

type findCall struct {
	Selector bson.D
	Opts     types.FindOptions
}

// recordingCollection captures every round trip and answers from canned
// results.
type recordingCollection struct {
	name string

	updates []updateCall
	finds   []findCall
	saves   []bson.M
	removes []bson.D
	counts  []bson.D

	docs      []bson.M
	result    types.UpdateResult
	updateErr error
	saveErr   error
}

func (c *recordingCollection) Name() string { return c.name }

func (c *recordingCollection) Find(_ context.Context, sel bson.D, opts types.FindOptions) ([]bson.M, error) {
	c.finds = append(c.finds, findCall{Selector: sel, Opts: opts})
	out := c.docs
	if opts.Limit > 0 && int64(len(out)) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (c *recordingCollection) Count(_ context.Context, sel bson.D) (int64, error) {
	c.counts = append(c.counts, sel)
	return int64(len(c.docs)), nil
}

func (c *recordingCollection) Save(_ context.Context, doc bson.M) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saves = append(c.saves, doc)
	return nil
}

func (c *recordingCollection) Update(_ context.Context, sel, update bson.D, opts types.UpdateOptions) (types.UpdateResult, error) {
	c.updates = append(c.updates, updateCall{Selector: sel, Update: update, Opts: opts})
	if c.updateErr != nil {
		return types.UpdateResult{}, c.updateErr
	}
	return c.result, nil
}

func (c *recordingCollection) Remove(_ context.Context, sel bson.D) (int64, error) {
	c.removes = append(c.removes, sel)
	return int64(len(c.docs)), nil
}

// fixture is a small schema: a Post document with an embedded Author.
type fixture struct {
	reg    *Registry
	author *Model
	post   *Model
	coll   *recordingCollection
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	reg := NewRegistry()

	author, err := DefineEmbedded("Author", WithRegistry(reg))
	require.NoError(t, err)
	require.NoError(t, author.Declare("name", TypeString))
	require.NoError(t, author.Declare("email", TypeString, Default("")))

	post, err := DefineDocument("Post", append([]Option{WithRegistry(reg)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, post.Declare("title", TypeString, Default("Untitled")))
	require.NoError(t, post.Declare("hits", TypeInteger, Default(0)))
	require.NoError(t, post.Declare("rating", TypeFloat))
	require.NoError(t, post.Declare("available", TypeBoolean, Default(true)))
	require.NoError(t, post.Declare("tags", TypeArray, Default([]any{})))
	require.NoError(t, post.Declare("meta", TypeHash))
	require.NoError(t, post.Declare("token", TypeUUID))
	require.NoError(t, post.Declare("published", TypeTime))
	require.NoError(t, post.Declare("summary", TypeString, As("s")))
	require.NoError(t, post.Embeds("author", author))

	coll := &recordingCollection{name: post.CollectionName()}
	require.NoError(t, post.Bind(coll))
	return &fixture{reg: reg, author: author, post: post, coll: coll}
}

// recordFactory builds fresh instances of either model kind so dirty
// tracking tests run against both.
type recordFactory struct {
	kind  string
	field string
	build func(t *testing.T) *AttributeStore
}

func recordFactories() []recordFactory {
	return []recordFactory{
		{kind: "document", field: "title", build: func(t *testing.T) *AttributeStore {
			f := newFixture(t)
			doc, err := f.post.Instantiate(bson.M{"title": "Original"})
			require.NoError(t, err)
			return doc.Store()
		}},
		{kind: "embedded", field: "name", build: func(t *testing.T) *AttributeStore {
			f := newFixture(t)
			e, err := f.author.instantiateEmbedded(bson.M{"name": "Original"})
			require.NoError(t, err)
			return e.Store()
		}},
	}
}
