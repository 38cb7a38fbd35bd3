package types

import "errors"

// Database defines the interface for backend-agnostic document storage.
// Callers attach to a backend, access collections by name, and detach when done.
type Database interface {
	// Collection returns the Collection for the given name, creating it
	// lazily. Returns ErrInvalidCollection if the name is empty.
	Collection(name string) (Collection, error)

	// Attach connects the Database to the backend described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls succeed.
	// After Detach, collection operations return ErrDatabaseDetached.
	Detach() error
}

// Database lifecycle errors.
var (
	ErrDatabaseDetached  = errors.New("database is detached")
	ErrAlreadyAttached   = errors.New("database is already attached")
	ErrInvalidCollection = errors.New("invalid collection name")
)
