package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDeclareErrors(t *testing.T) {
	reg := NewRegistry()
	m, err := DefineDocument("Item", WithRegistry(reg))
	require.NoError(t, err)
	require.NoError(t, m.Declare("name", TypeString))

	tests := []struct {
		name    string
		field   string
		tag     Tag
		opts    []PropertyOption
		wantErr error
	}{
		{"duplicate own", "name", TypeString, nil, ErrDuplicateProperty},
		{"duplicate id", "id", TypeObjectID, nil, ErrDuplicateProperty},
		{"unknown type", "size", Tag("decimal"), nil, ErrUnknownType},
		{"empty name", "", TypeString, nil, ErrInvalidName},
		{"operator name", "$set", TypeString, nil, ErrInvalidName},
		{"dotted name", "a.b", TypeString, nil, ErrInvalidName},
		{"wire key taken", "label", TypeString, []PropertyOption{As("name")}, ErrDuplicateProperty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Declare(tt.field, tt.tag, tt.opts...)
			assert.ErrorIs(t, err, tt.wantErr)
			var pe *PropertyError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestInheritanceShadowsAndExtends(t *testing.T) {
	reg := NewRegistry()
	base, err := DefineDocument("Base", WithRegistry(reg))
	require.NoError(t, err)
	require.NoError(t, base.Declare("name", TypeString, Default("base")))
	require.NoError(t, base.Declare("count", TypeInteger))

	child, err := DefineDocument("Child", WithRegistry(reg), Inherits(base))
	require.NoError(t, err)
	require.NoError(t, child.Declare("name", TypeString, Default("child")))
	require.NoError(t, child.Declare("extra", TypeBoolean))
	assert.Equal(t, "bases", child.CollectionName())

	var names []string
	for _, p := range child.Table().Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"id", "name", "count", "extra"}, names)

	p, err := child.Table().Resolve("count")
	require.NoError(t, err)
	assert.Equal(t, TypeInteger, p.Type)

	doc, err := child.New(nil)
	require.NoError(t, err)
	assert.Equal(t, "child", doc.Values()["name"])

	_, err = base.Table().Resolve("extra")
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestInheritsRequiresSameKind(t *testing.T) {
	reg := NewRegistry()
	e, err := DefineEmbedded("Part", WithRegistry(reg))
	require.NoError(t, err)
	_, err = DefineDocument("Whole", WithRegistry(reg), Inherits(e))
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestTableSealsOnFirstInstance(t *testing.T) {
	reg := NewRegistry()
	base, err := DefineDocument("Thing", WithRegistry(reg))
	require.NoError(t, err)
	child, err := DefineDocument("SubThing", WithRegistry(reg), Inherits(base))
	require.NoError(t, err)

	_, err = child.Instantiate(bson.M{})
	require.NoError(t, err)
	assert.True(t, child.Table().Sealed())
	assert.True(t, base.Table().Sealed())
	assert.ErrorIs(t, base.Declare("late", TypeString), ErrTableSealed)
	assert.ErrorIs(t, child.Declare("late", TypeString), ErrTableSealed)
}

func TestEmbeddedCannotEmbedItself(t *testing.T) {
	reg := NewRegistry()
	node, err := DefineEmbedded("Node", WithRegistry(reg))
	require.NoError(t, err)
	assert.ErrorIs(t, node.Embeds("child", node), ErrRecursiveEmbed)
	assert.ErrorIs(t, node.Declare("child", EmbeddedTag("Node")), ErrRecursiveEmbed)

	doc, err := DefineDocument("Tree", WithRegistry(reg))
	require.NoError(t, err)
	assert.ErrorIs(t, node.Embeds("tree", doc), ErrWrongKind)
}

func TestEachWithDefaultEvaluatesFresh(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	m, err := DefineDocument("Counter", WithRegistry(reg))
	require.NoError(t, err)
	require.NoError(t, m.Declare("n", TypeInteger, DefaultFunc(func() any {
		calls++
		return calls
	})))

	first, err := m.Table().EachWithDefault()
	require.NoError(t, err)
	second, err := m.Table().EachWithDefault()
	require.NoError(t, err)
	assert.Equal(t, Seed{Name: "n", Value: int64(1)}, first[1])
	assert.Equal(t, Seed{Name: "n", Value: int64(2)}, second[1])
}

func TestDefineEmbeddedRegistersOnce(t *testing.T) {
	reg := NewRegistry()
	_, err := DefineEmbedded("Address", WithRegistry(reg))
	require.NoError(t, err)
	_, err = DefineEmbedded("Address", WithRegistry(reg))
	assert.ErrorIs(t, err, ErrDuplicateType)
	assert.Contains(t, reg.Tags(), EmbeddedTag("Address"))
}

func TestCollectionNaming(t *testing.T) {
	reg := NewRegistry()
	m, err := DefineDocument("Article", WithRegistry(reg))
	require.NoError(t, err)
	assert.Equal(t, "articles", m.CollectionName())

	m, err = DefineDocument("Entry", WithRegistry(reg), Collection("journal"))
	require.NoError(t, err)
	assert.Equal(t, "journal", m.CollectionName())

	_, err = DefineDocument("bad.name", WithRegistry(reg))
	assert.ErrorIs(t, err, ErrInvalidName)
}
