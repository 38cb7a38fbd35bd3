// Package docstore is the public entry point to the storage backends. It
// picks the backend named by a types.Config and hides the implementations.
//
// Example:
//
//	db, err := docstore.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".docmodel-data",
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Detach()
package docstore

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/docmodel/internal/mongo"
	"github.com/mesh-intelligence/docmodel/internal/sqlite"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

type options struct {
	log zerolog.Logger
}

// Option configures Open and New.
type Option func(*options)

// WithLogger hands log to the backend.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New returns a detached database for config.Backend.
func New(config types.Config, opts ...Option) (types.Database, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With().Str("backend", config.Backend).Logger()

	switch config.Backend {
	case types.BackendSQLite:
		return sqlite.NewBackend(sqlite.WithLogger(log)), nil
	case types.BackendMongo:
		return mongo.NewBackend(mongo.WithLogger(log)), nil
	case "":
		return nil, types.ErrBackendEmpty
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, config.Backend)
	}
}

// Open creates the backend for config and attaches it.
func Open(config types.Config, opts ...Option) (types.Database, error) {
	db, err := New(config, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.Attach(config); err != nil {
		return nil, fmt.Errorf("attach %s backend: %w", config.Backend, err)
	}
	return db, nil
}
