package model

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// Scope is an immutable query over one document model. Every chaining
// method returns a new Scope and leaves the receiver untouched. A scope
// without clauses matches every document in the collection.
type Scope struct {
	model   *Model
	clauses []Clause
	sorts   []Sort
	limit   int64
	offset  int64
}

// Scoped returns a scope with no conditions.
func (m *Model) Scoped() Scope { return Scope{model: m} }

// Where returns a scope seeded with clauses.
func (m *Model) Where(clauses ...Clause) Scope { return m.Scoped().Where(clauses...) }

// All loads every document of the model.
func (m *Model) All(ctx context.Context) ([]*Document, error) { return m.Scoped().All(ctx) }

// Count counts every document of the model.
func (m *Model) Count(ctx context.Context) (int64, error) { return m.Scoped().Count(ctx) }

// First loads one document of the model.
func (m *Model) First(ctx context.Context) (*Document, error) { return m.Scoped().First(ctx) }

// Model returns the model the scope is bound to.
func (s Scope) Model() *Model { return s.model }

// Clauses returns a copy of the scope's conditions.
func (s Scope) Clauses() []Clause { return append([]Clause(nil), s.clauses...) }

// Where appends clauses.
func (s Scope) Where(clauses ...Clause) Scope {
	s.clauses = append(s.clauses[:len(s.clauses):len(s.clauses)], clauses...)
	return s
}

// Order appends an ordering directive.
func (s Scope) Order(field string, dir Direction) Scope {
	s.sorts = append(s.sorts[:len(s.sorts):len(s.sorts)], Sort{Field: field, Dir: dir})
	return s
}

// Limit caps the number of documents read. Zero means no cap.
func (s Scope) Limit(n int64) Scope {
	s.limit = n
	return s
}

// Offset skips the first n matching documents.
func (s Scope) Offset(n int64) Scope {
	s.offset = n
	return s
}

// Selector compiles the scope's conditions.
func (s Scope) Selector() (bson.D, error) {
	return CompileSelector(s.model.table, s.clauses)
}

// FindOptions compiles ordering and pagination.
func (s Scope) FindOptions() (types.FindOptions, error) {
	sort, err := CompileSort(s.model.table, s.sorts)
	if err != nil {
		return types.FindOptions{}, err
	}
	return types.FindOptions{Sort: sort, Limit: s.limit, Skip: s.offset}, nil
}

func (s Scope) prepare() (types.Collection, bson.D, error) {
	if err := s.model.expect(KindDocument); err != nil {
		return nil, nil, err
	}
	c, err := s.model.coll()
	if err != nil {
		return nil, nil, err
	}
	sel, err := s.Selector()
	if err != nil {
		return nil, nil, err
	}
	return c, sel, nil
}

// All loads every matching document.
func (s Scope) All(ctx context.Context) ([]*Document, error) {
	var out []*Document
	err := s.Each(ctx, func(d *Document) error {
		out = append(out, d)
		return nil
	})
	return out, err
}

// Each loads matching documents and calls fn for each until fn fails.
func (s Scope) Each(ctx context.Context, fn func(*Document) error) error {
	c, sel, err := s.prepare()
	if err != nil {
		return err
	}
	opts, err := s.FindOptions()
	if err != nil {
		return err
	}
	raws, err := c.Find(ctx, sel, opts)
	if err != nil {
		return fmt.Errorf("find %s: %w", c.Name(), err)
	}
	for _, raw := range raws {
		doc, err := s.model.Instantiate(raw)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// First loads the first matching document or returns ErrDocumentNotFound.
func (s Scope) First(ctx context.Context) (*Document, error) {
	docs, err := s.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrDocumentNotFound
	}
	return docs[0], nil
}

// Count counts matching documents, ignoring limit and offset.
func (s Scope) Count(ctx context.Context) (int64, error) {
	c, sel, err := s.prepare()
	if err != nil {
		return 0, err
	}
	n, err := c.Count(ctx, sel)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name(), err)
	}
	return n, nil
}

// Exists reports whether any document matches.
func (s Scope) Exists(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

// Delete removes every matching document and returns how many went.
func (s Scope) Delete(ctx context.Context) (int64, error) {
	c, sel, err := s.prepare()
	if err != nil {
		return 0, err
	}
	n, err := c.Remove(ctx, sel)
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", c.Name(), err)
	}
	return n, nil
}
