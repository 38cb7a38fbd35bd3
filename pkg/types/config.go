package types

import "errors"

// Config holds backend selection and parameters for Database.Attach.
type Config struct {
	Backend      string `json:"backend" yaml:"backend"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	SyncStrategy string `json:"sync" yaml:"sync"`
	MongoURI     string `json:"mongo_uri" yaml:"mongo_uri"`
	MongoDB      string `json:"mongo_database" yaml:"mongo_database"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Sync strategies for the sqlite backend's JSONL mirror.
const (
	SyncImmediate = "immediate"
	SyncOnClose   = "on_close"
)

// DefaultMongoDatabase is used when MongoDB is empty.
const DefaultMongoDatabase = "docmodel"

// Config validation errors.
var (
	ErrBackendEmpty        = errors.New("backend must not be empty")
	ErrBackendUnknown      = errors.New("unknown backend")
	ErrSyncStrategyUnknown = errors.New("unknown sync strategy")
	ErrMongoURIEmpty       = errors.New("mongo uri must not be empty")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendMongo:  true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	switch c.SyncStrategy {
	case "", SyncImmediate, SyncOnClose:
	default:
		return ErrSyncStrategyUnknown
	}
	if c.Backend == BackendMongo && c.MongoURI == "" {
		return ErrMongoURIEmpty
	}
	return nil
}

// GetSyncStrategy returns the effective sync strategy, defaulting to immediate.
func (c Config) GetSyncStrategy() string {
	if c.SyncStrategy == "" {
		return SyncImmediate
	}
	return c.SyncStrategy
}

// GetMongoDatabase returns the database name, defaulting to DefaultMongoDatabase.
func (c Config) GetMongoDatabase() string {
	if c.MongoDB == "" {
		return DefaultMongoDatabase
	}
	return c.MongoDB
}
