package types

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection executes compiled selectors and update documents against one
// named collection. Every method is a single blocking round trip; no method
// retries.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Find returns the raw documents matching selector. An empty selector
	// matches every document.
	Find(ctx context.Context, selector bson.D, opts FindOptions) ([]bson.M, error)

	// Count returns the number of documents matching selector.
	Count(ctx context.Context, selector bson.D) (int64, error)

	// Save inserts or replaces the whole document keyed by its "_id".
	// A missing "_id" is generated by the backend and written back into
	// doc. Returns ErrInvalidDocument if the "_id" is present but null.
	Save(ctx context.Context, doc bson.M) error

	// Update applies the update document to the documents matching
	// selector: all of them when opts.Multi is set, otherwise the first.
	// The update is atomic across the matched documents.
	Update(ctx context.Context, selector, update bson.D, opts UpdateOptions) (UpdateResult, error)

	// Remove deletes every document matching selector and returns the count.
	Remove(ctx context.Context, selector bson.D) (int64, error)
}

// FindOptions carries ordering and pagination for Find.
type FindOptions struct {
	Sort  bson.D // field -> 1 (ascending) or -1 (descending), in priority order
	Limit int64  // zero means no limit
	Skip  int64
}

// UpdateOptions carries the flags of an update round trip.
type UpdateOptions struct {
	Multi bool
}

// UpdateResult reports what an update touched.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Collection operation errors.
var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrInvalidSelector = errors.New("invalid selector")
	ErrInvalidUpdate   = errors.New("invalid update document")
)
