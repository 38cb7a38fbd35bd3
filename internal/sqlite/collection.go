package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

const upsertSQL = `INSERT INTO documents (collection, doc_id, body) VALUES (?, ?, ?)
ON CONFLICT (collection, doc_id) DO UPDATE SET body = excluded.body`

// Collection implements types.Collection for one named collection.
type Collection struct {
	backend *Backend
	name    string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

type storedDoc struct {
	key string
	doc bson.M
}

// scan loads the collection's documents in insertion order. A selector
// with a direct _id equality narrows the read to that row.
func (c *Collection) scan(ctx context.Context, q queryer, selector bson.D) ([]storedDoc, error) {
	query := `SELECT doc_id, body FROM documents WHERE collection = ?`
	args := []any{c.name}
	if id, ok := directID(selector); ok {
		key, err := idKey(id)
		if err != nil {
			return nil, err
		}
		query += ` AND doc_id = ?`
		args = append(args, key)
	}
	query += ` ORDER BY rowid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []storedDoc
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, err
		}
		doc, err := decodeDocument([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", c.name, key, err)
		}
		out = append(out, storedDoc{key: key, doc: doc})
	}
	return out, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Collection) matching(ctx context.Context, q queryer, selector bson.D) ([]storedDoc, error) {
	all, err := c.scan(ctx, q, selector)
	if err != nil {
		return nil, err
	}
	var out []storedDoc
	for _, sd := range all {
		ok, err := matches(sd.doc, selector)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, sd)
		}
	}
	return out, nil
}

// Find returns matching documents, sorted and paginated.
func (c *Collection) Find(ctx context.Context, selector bson.D, opts types.FindOptions) ([]bson.M, error) {
	b := c.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrDatabaseDetached
	}

	found, err := c.matching(ctx, b.db, selector)
	if err != nil {
		return nil, err
	}
	docs := make([]bson.M, len(found))
	for i, sd := range found {
		docs[i] = sd.doc
	}
	if err := sortDocuments(docs, opts.Sort); err != nil {
		return nil, err
	}
	return paginate(docs, opts.Skip, opts.Limit), nil
}

func paginate(docs []bson.M, skip, limit int64) []bson.M {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

// Count returns the number of matching documents.
func (c *Collection) Count(ctx context.Context, selector bson.D) (int64, error) {
	b := c.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return 0, types.ErrDatabaseDetached
	}
	found, err := c.matching(ctx, b.db, selector)
	if err != nil {
		return 0, err
	}
	return int64(len(found)), nil
}

// Save inserts or replaces doc by _id. A document without _id gets a
// UUID v7 string id, written back into doc.
func (c *Collection) Save(ctx context.Context, doc bson.M) error {
	if doc == nil {
		return types.ErrInvalidDocument
	}
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = generateID()
	}
	key, err := idKey(doc["_id"])
	if err != nil {
		return err
	}
	body, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidDocument, err)
	}

	b := c.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrDatabaseDetached
	}
	if _, err := b.db.ExecContext(ctx, upsertSQL, c.name, key, string(body)); err != nil {
		return fmt.Errorf("saving to %s: %w", c.name, err)
	}
	return b.persist(c.name)
}

// Update applies update to the matching documents in one transaction. An
// operator failing on any document rolls the whole update back.
func (c *Collection) Update(ctx context.Context, selector, update bson.D, opts types.UpdateOptions) (types.UpdateResult, error) {
	if err := validateUpdate(update); err != nil {
		return types.UpdateResult{}, err
	}

	b := c.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.UpdateResult{}, types.ErrDatabaseDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return types.UpdateResult{}, fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	found, err := c.matching(ctx, tx, selector)
	if err != nil {
		return types.UpdateResult{}, err
	}
	if !opts.Multi && len(found) > 1 {
		found = found[:1]
	}

	var res types.UpdateResult
	for _, sd := range found {
		res.Matched++
		before := docvalue.Clone(sd.doc)
		if err := applyUpdate(sd.doc, update); err != nil {
			return types.UpdateResult{}, fmt.Errorf("updating %s/%s: %w", c.name, sd.key, err)
		}
		if docvalue.Equal(before, sd.doc) {
			continue
		}
		body, err := encodeDocument(sd.doc)
		if err != nil {
			return types.UpdateResult{}, fmt.Errorf("%w: %v", types.ErrInvalidUpdate, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET body = ? WHERE collection = ? AND doc_id = ?`,
			string(body), c.name, sd.key); err != nil {
			return types.UpdateResult{}, fmt.Errorf("writing %s/%s: %w", c.name, sd.key, err)
		}
		res.Modified++
	}

	if err := tx.Commit(); err != nil {
		return types.UpdateResult{}, fmt.Errorf("committing update: %w", err)
	}
	if res.Modified > 0 {
		if err := b.persist(c.name); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Remove deletes every matching document.
func (c *Collection) Remove(ctx context.Context, selector bson.D) (int64, error) {
	b := c.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return 0, types.ErrDatabaseDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	found, err := c.matching(ctx, tx, selector)
	if err != nil {
		return 0, err
	}
	for _, sd := range found {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND doc_id = ?`, c.name, sd.key); err != nil {
			return 0, fmt.Errorf("removing %s/%s: %w", c.name, sd.key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if len(found) > 0 {
		if err := b.persist(c.name); err != nil {
			return int64(len(found)), err
		}
	}
	return int64(len(found)), nil
}

// directID returns the _id of a selector that pins a single scalar id.
func directID(selector bson.D) (any, bool) {
	for _, e := range selector {
		if e.Key != "_id" {
			continue
		}
		if _, isDoc := docvalue.AsDocument(e.Value); isDoc {
			return nil, false
		}
		if _, isList := docvalue.AsSlice(e.Value); isList {
			return nil, false
		}
		return e.Value, e.Value != nil
	}
	return nil, false
}

// idKey renders an _id as the row key. Numbers of different kinds but equal
// value share a key, as they compare equal.
func idKey(id any) (string, error) {
	switch v := id.(type) {
	case primitive.ObjectID:
		return "o:" + v.Hex(), nil
	case string:
		return "s:" + v, nil
	case nil:
		return "", fmt.Errorf("%w: _id is null", types.ErrInvalidDocument)
	}
	if i, ok := docvalue.ToInt64(id); ok {
		return "n:" + strconv.FormatInt(i, 10), nil
	}
	if f, ok := docvalue.ToFloat(id); ok && !math.IsNaN(f) {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	b, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: id}}, true, false)
	if err != nil {
		return "", fmt.Errorf("%w: _id: %v", types.ErrInvalidDocument, err)
	}
	return "x:" + string(b), nil
}
