// Package sqlite implements the embedded document store: SQLite is the
// query engine and one JSONL file per collection is the source of truth.
// Selectors are matched and update operators applied in Go, inside one SQL
// transaction per update, so a multi-document update is atomic.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/docmodel/pkg/types"
)

const (
	dbFile   = "docmodel.db"
	lockFile = ".docmodel.lock"
)

// ErrDataDirLocked is returned by Attach when another process holds the
// data directory.
var ErrDataDirLocked = errors.New("data directory is locked by another process")

// Backend implements types.Database over SQLite with JSONL mirrors.
type Backend struct {
	mu          sync.RWMutex
	attached    bool
	config      types.Config
	db          *sql.DB
	lock        *flock.Flock
	collections map[string]*Collection
	log         zerolog.Logger

	syncStrategy string
	dirtyMu      sync.Mutex
	dirty        map[string]bool // collections awaiting a JSONL write
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Backend) { b.log = log }
}

// NewBackend creates a detached backend. Call Attach to open it.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		collections: make(map[string]*Collection),
		dirty:       make(map[string]bool),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Collection returns the named collection, creating it lazily.
func (b *Backend) Collection(name string) (types.Collection, error) {
	if name == "" || filepath.Base(name) != name || name[0] == '.' {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidCollection, name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return nil, types.ErrDatabaseDetached
	}
	c, ok := b.collections[name]
	if !ok {
		c = &Collection{backend: b, name: name}
		b.collections[name] = c
	}
	return c, nil
}

// Attach locks the data directory, rebuilds the SQLite database and loads
// every JSONL mirror into it.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendSQLite {
		return fmt.Errorf("%w: %s", types.ErrBackendUnknown, config.Backend)
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(dataDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("locking %s: %w", dataDir, err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", dataDir, ErrDataDirLocked)
	}

	// The database is a cache of the JSONL files; start from scratch.
	dbPath := filepath.Join(dataDir, dbFile)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		lock.Unlock()
		return err
	}
	// One connection keeps transactions and plain reads serialized.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		lock.Unlock()
		return err
	}
	if err := loadAllJSONL(db, dataDir, b.log); err != nil {
		db.Close()
		lock.Unlock()
		return fmt.Errorf("load JSONL: %w", err)
	}

	config.DataDir = dataDir
	b.db = db
	b.lock = lock
	b.config = config
	b.syncStrategy = config.GetSyncStrategy()
	b.attached = true
	b.log.Info().Str("data_dir", dataDir).Str("sync", b.syncStrategy).Msg("sqlite backend attached")
	return nil
}

// Detach flushes pending JSONL writes, closes the database and releases the
// data directory. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if err := b.flushLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}
	if err := b.db.Close(); err != nil {
		return err
	}
	b.db = nil
	if err := b.lock.Unlock(); err != nil {
		return fmt.Errorf("unlocking data dir: %w", err)
	}
	b.lock = nil
	b.attached = false
	b.collections = make(map[string]*Collection)
	b.log.Info().Str("data_dir", b.config.DataDir).Msg("sqlite backend detached")
	return nil
}

// persist mirrors a collection to JSONL after a committed change, either
// now or at Detach depending on the sync strategy.
func (b *Backend) persist(collection string) error {
	if b.syncStrategy == types.SyncOnClose {
		b.dirtyMu.Lock()
		b.dirty[collection] = true
		b.dirtyMu.Unlock()
		return nil
	}
	return b.writeCollection(collection)
}

func (b *Backend) flushLocked() error {
	b.dirtyMu.Lock()
	defer b.dirtyMu.Unlock()
	names := make([]string, 0, len(b.dirty))
	for name := range b.dirty {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := b.writeCollection(name); err != nil {
			return fmt.Errorf("flush %s: %w", name, err)
		}
		delete(b.dirty, name)
	}
	return nil
}

// writeCollection rewrites the JSONL mirror of a collection from the
// documents table.
func (b *Backend) writeCollection(collection string) error {
	rows, err := b.db.Query(`SELECT body FROM documents WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return fmt.Errorf("reading %s for persist: %w", collection, err)
	}
	defer rows.Close()

	var records [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return err
		}
		records = append(records, []byte(body))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return writeJSONL(jsonlPath(b.config.DataDir, collection), records)
}

// generateID returns a UUID v7 string for documents saved without an _id.
func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
