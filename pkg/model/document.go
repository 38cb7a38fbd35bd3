package model

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Record is implemented by Document and EmbeddedDocument.
type Record interface {
	Model() *Model
	Store() *AttributeStore
}

// Document is an instance of a top-level document model.
type Document struct {
	*AttributeStore
	model     *Model
	persisted bool
}

// EmbeddedDocument is an instance of an embedded document model. It is
// persisted only as part of the document holding it.
type EmbeddedDocument struct {
	*AttributeStore
	model *Model
}

// Model returns the document's model.
func (d *Document) Model() *Model { return d.model }

// Model returns the embedded document's model.
func (e *EmbeddedDocument) Model() *Model { return e.model }

// New builds an unsaved document seeded with defaults, then writes attrs.
// The written attributes count as changed.
func (m *Model) New(attrs map[string]any) (*Document, error) {
	if err := m.expect(KindDocument); err != nil {
		return nil, err
	}
	s := m.newStore()
	if err := s.seed(); err != nil {
		return nil, err
	}
	if err := s.AssignAttributes(attrs); err != nil {
		return nil, err
	}
	return &Document{AttributeStore: s, model: m}, nil
}

// NewEmbedded builds an embedded document seeded with defaults, then
// writes attrs.
func (m *Model) NewEmbedded(attrs map[string]any) (*EmbeddedDocument, error) {
	if err := m.expect(KindEmbedded); err != nil {
		return nil, err
	}
	s := m.newStore()
	if err := s.seed(); err != nil {
		return nil, err
	}
	if err := s.AssignAttributes(attrs); err != nil {
		return nil, err
	}
	return &EmbeddedDocument{AttributeStore: s, model: m}, nil
}

// Instantiate builds a persisted document from a stored one. Nothing on
// the result counts as changed.
func (m *Model) Instantiate(raw bson.M) (*Document, error) {
	if err := m.expect(KindDocument); err != nil {
		return nil, err
	}
	s := m.newStore()
	if err := s.load(raw); err != nil {
		return nil, err
	}
	return &Document{AttributeStore: s, model: m, persisted: true}, nil
}

func (m *Model) instantiateEmbedded(raw bson.M) (*EmbeddedDocument, error) {
	s := m.newStore()
	if err := s.load(raw); err != nil {
		return nil, err
	}
	return &EmbeddedDocument{AttributeStore: s, model: m}, nil
}

// Create builds a document from attrs and saves it.
func (m *Model) Create(ctx context.Context, attrs map[string]any) (*Document, error) {
	doc, err := m.New(attrs)
	if err != nil {
		return nil, err
	}
	if err := doc.Save(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// ID returns the typed id attribute.
func (d *Document) ID() any {
	v, _ := d.Read("id")
	return v
}

// IsNewRecord reports whether the document has never been saved or loaded.
func (d *Document) IsNewRecord() bool { return !d.persisted }

// Save writes the whole document. The baseline moves to the saved values
// only when the store confirms the write; on failure the changes stay so
// the save can be retried.
func (d *Document) Save(ctx context.Context) error {
	c, err := d.model.coll()
	if err != nil {
		return err
	}
	wire, err := d.ToWire()
	if err != nil {
		return fmt.Errorf("save %s: %w", d.model.name, err)
	}
	if err := c.Save(ctx, wire); err != nil {
		return fmt.Errorf("save %s: %w", d.model.name, err)
	}
	d.Rebaseline()
	d.persisted = true
	return nil
}

// Reload replaces the attributes with the stored document, discarding
// unsaved changes.
func (d *Document) Reload(ctx context.Context) error {
	fresh, err := d.model.Find(ctx, d.ID())
	if err != nil {
		return err
	}
	d.AttributeStore = fresh.AttributeStore
	d.persisted = true
	return nil
}

// Destroy removes the stored document.
func (d *Document) Destroy(ctx context.Context) error {
	if _, err := d.Scope().Delete(ctx); err != nil {
		return fmt.Errorf("destroy %s: %w", d.model.name, err)
	}
	d.persisted = false
	return nil
}

// Scope returns a scope matching only this document.
func (d *Document) Scope() Scope {
	return d.model.Where(Field("id").Eq(d.ID()))
}

// Find loads the document whose id is id.
func (m *Model) Find(ctx context.Context, id any) (*Document, error) {
	doc, err := m.Where(Field("id").Eq(id)).First(ctx)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil, fmt.Errorf("%s %v: %w", m.name, id, ErrDocumentNotFound)
	}
	return doc, err
}
