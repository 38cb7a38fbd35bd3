// Package mongo implements types.Database over a MongoDB server using the
// official driver. Selectors, sort specs and update documents are passed
// through unchanged; the server does the matching.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// DefaultTimeout bounds Connect and the initial ping.
const DefaultTimeout = 10 * time.Second

// Backend implements types.Database for a MongoDB deployment.
type Backend struct {
	mu          sync.RWMutex
	attached    bool
	client      *mongo.Client
	db          *mongo.Database
	collections map[string]*Collection
	log         zerolog.Logger
	timeout     time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Backend) { b.log = log }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) { b.timeout = d }
}

// NewBackend creates a detached backend. Call Attach to connect.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		collections: make(map[string]*Collection),
		log:         zerolog.Nop(),
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach connects to config.MongoURI and pings the server.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendMongo {
		return fmt.Errorf("%w: %s", types.ErrBackendUnknown, config.Backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		return fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("pinging mongo: %w", err)
	}

	b.client = client
	b.db = client.Database(config.GetMongoDatabase())
	b.attached = true
	b.log.Info().Str("database", b.db.Name()).Msg("mongo backend attached")
	return nil
}

// Detach disconnects the client. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting from mongo: %w", err)
	}
	b.log.Info().Str("database", b.db.Name()).Msg("mongo backend detached")
	b.client = nil
	b.db = nil
	b.attached = false
	b.collections = make(map[string]*Collection)
	return nil
}

// Collection returns the named collection, creating it lazily.
func (b *Backend) Collection(name string) (types.Collection, error) {
	if name == "" || strings.ContainsAny(name, "$\x00") || strings.HasPrefix(name, "system.") {
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

// handle returns the driver collection, or ErrDatabaseDetached.
func (b *Backend) handle(name string) (*mongo.Collection, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrDatabaseDetached
	}
	return b.db.Collection(name), nil
}

// Collection forwards operations to one driver collection.
type Collection struct {
	backend *Backend
	name    string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Find runs selector with the sort and pagination of opts.
func (c *Collection) Find(ctx context.Context, selector bson.D, opts types.FindOptions) ([]bson.M, error) {
	coll, err := c.backend.handle(c.name)
	if err != nil {
		return nil, err
	}
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	cur, err := coll.Find(ctx, filter(selector), fo)
	if err != nil {
		return nil, classify(err, types.ErrInvalidSelector)
	}
	docs := []bson.M{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.name, err)
	}
	return docs, nil
}

// Count returns the number of documents matching selector.
func (c *Collection) Count(ctx context.Context, selector bson.D) (int64, error) {
	coll, err := c.backend.handle(c.name)
	if err != nil {
		return 0, err
	}
	n, err := coll.CountDocuments(ctx, filter(selector))
	if err != nil {
		return 0, classify(err, types.ErrInvalidSelector)
	}
	return n, nil
}

// Save replaces the document with doc's _id, inserting it when absent. A
// document without _id gets a new ObjectID, written back into doc.
func (c *Collection) Save(ctx context.Context, doc bson.M) error {
	if doc == nil {
		return types.ErrInvalidDocument
	}
	id, ok := doc["_id"]
	if !ok {
		id = primitive.NewObjectID()
		doc["_id"] = id
	}
	if id == nil {
		return fmt.Errorf("%w: null _id", types.ErrInvalidDocument)
	}
	coll, err := c.backend.handle(c.name)
	if err != nil {
		return err
	}
	_, err = coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return classify(err, types.ErrInvalidDocument)
	}
	return nil
}

// Update issues one UpdateMany, or UpdateOne without opts.Multi.
func (c *Collection) Update(ctx context.Context, selector, update bson.D, opts types.UpdateOptions) (types.UpdateResult, error) {
	if len(update) == 0 {
		return types.UpdateResult{}, fmt.Errorf("%w: empty update", types.ErrInvalidUpdate)
	}
	for _, e := range update {
		if !strings.HasPrefix(e.Key, "$") {
			return types.UpdateResult{}, fmt.Errorf("%w: %q is not an operator", types.ErrInvalidUpdate, e.Key)
		}
	}
	coll, err := c.backend.handle(c.name)
	if err != nil {
		return types.UpdateResult{}, err
	}
	var res *mongo.UpdateResult
	if opts.Multi {
		res, err = coll.UpdateMany(ctx, filter(selector), update)
	} else {
		res, err = coll.UpdateOne(ctx, filter(selector), update)
	}
	if err != nil {
		return types.UpdateResult{}, classify(err, types.ErrInvalidUpdate)
	}
	return types.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// Remove deletes every matching document.
func (c *Collection) Remove(ctx context.Context, selector bson.D) (int64, error) {
	coll, err := c.backend.handle(c.name)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, filter(selector))
	if err != nil {
		return 0, classify(err, types.ErrInvalidSelector)
	}
	return res.DeletedCount, nil
}

// filter turns a nil selector into the empty document the driver expects.
func filter(selector bson.D) bson.D {
	if selector == nil {
		return bson.D{}
	}
	return selector
}

// classify wraps server-side rejections of a request with sentinel, keeping
// the driver error in the chain. Network and timeout errors pass through.
func classify(err error, sentinel error) error {
	var se mongo.ServerError
	if errors.As(err, &se) && !mongo.IsNetworkError(err) && !mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}
