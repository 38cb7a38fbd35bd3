package docstore

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/internal/mongo"
	"github.com/mesh-intelligence/docmodel/internal/sqlite"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

func TestNewPicksBackend(t *testing.T) {
	db, err := New(types.Config{Backend: types.BackendSQLite})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Backend{}, db)

	db, err = New(types.Config{Backend: types.BackendMongo}, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.IsType(t, &mongo.Backend{}, db)

	_, err = New(types.Config{})
	assert.ErrorIs(t, err, types.ErrBackendEmpty)
	_, err = New(types.Config{Backend: "redis"})
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	defer db.Detach()

	c, err := db.Collection("posts")
	require.NoError(t, err)
	require.NoError(t, c.Save(context.Background(), bson.M{"_id": "p1"}))
	n, err := c.Count(context.Background(), bson.D{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpenValidates(t *testing.T) {
	_, err := Open(types.Config{Backend: types.BackendMongo})
	assert.ErrorIs(t, err, types.ErrMongoURIEmpty)
}
