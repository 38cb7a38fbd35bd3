// Package model is the typed document-attribute engine: model definitions
// with typed properties, per-instance attribute stores with dirty tracking,
// immutable query scopes compiled to selector documents, and bulk modifier
// operations issued as one multi-document update.
package model

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// Kind distinguishes top-level documents from embedded documents.
type Kind int

const (
	KindDocument Kind = iota
	KindEmbedded
)

func (k Kind) String() string {
	if k == KindEmbedded {
		return "embedded"
	}
	return "document"
}

// Observer is notified after every modifier dispatch.
type Observer interface {
	ObserveModifier(collection, operator string, res types.UpdateResult, elapsed time.Duration, err error)
}

// Model is a model definition: a name, a property table and, for
// documents, the collection instances live in.
type Model struct {
	name       string
	kind       Kind
	collection string
	registry   *Registry
	table      *PropertyTable
	parent     *Model
	log        zerolog.Logger
	observer   Observer

	mu    sync.RWMutex
	bound types.Collection
}

// Option configures a model definition.
type Option func(*Model)

// Collection overrides the collection name. The default is the lowercased
// model name with an "s" appended.
func Collection(name string) Option {
	return func(m *Model) { m.collection = name }
}

// WithRegistry uses reg instead of DefaultRegistry.
func WithRegistry(reg *Registry) Option {
	return func(m *Model) { m.registry = reg }
}

// Inherits extends the property table of parent. Document children share
// the parent's collection unless Collection is also given.
func Inherits(parent *Model) Option {
	return func(m *Model) { m.parent = parent }
}

// WithLogger sets the logger used for modifier dispatch.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Model) { m.log = log }
}

// WithObserver registers an observer for modifier dispatch.
func WithObserver(o Observer) Option {
	return func(m *Model) { m.observer = o }
}

func define(name string, kind Kind, opts []Option) (*Model, error) {
	if err := validName(name); err != nil {
		return nil, fmt.Errorf("define model: %w", err)
	}
	m := &Model{name: name, kind: kind, registry: DefaultRegistry, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	var parentTable *PropertyTable
	if m.parent != nil {
		if m.parent.kind != kind {
			return nil, fmt.Errorf("define %s: inherits %s model %s: %w", name, m.parent.kind, m.parent.name, ErrWrongKind)
		}
		parentTable = m.parent.table
		if m.collection == "" {
			m.collection = m.parent.collection
		}
		if m.observer == nil {
			m.observer = m.parent.observer
		}
	}
	if kind == KindDocument && m.collection == "" {
		m.collection = strings.ToLower(name) + "s"
	}
	if kind == KindEmbedded {
		m.collection = ""
	}
	m.table = newPropertyTable(name, m.registry, parentTable)
	return m, nil
}

// DefineDocument defines a top-level document model. Unless inherited, it
// declares id, stored as _id, defaulting to a fresh ObjectID.
func DefineDocument(name string, opts ...Option) (*Model, error) {
	m, err := define(name, KindDocument, opts)
	if err != nil {
		return nil, err
	}
	if m.parent == nil {
		_, err := m.table.Declare("id", TypeObjectID, As("_id"), DefaultFunc(func() any {
			return primitive.NewObjectID()
		}))
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DefineEmbedded defines an embedded document model and registers its
// caster under EmbeddedTag(name).
func DefineEmbedded(name string, opts ...Option) (*Model, error) {
	m, err := define(name, KindEmbedded, opts)
	if err != nil {
		return nil, err
	}
	if err := m.registry.Register(EmbeddedTag(name), embeddedCaster{model: m}); err != nil {
		return nil, fmt.Errorf("define %s: %w", name, err)
	}
	return m, nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Kind returns whether the model defines documents or embedded documents.
func (m *Model) Kind() Kind { return m.kind }

// CollectionName returns the collection name; empty for embedded models.
func (m *Model) CollectionName() string { return m.collection }

// Table returns the model's property table.
func (m *Model) Table() *PropertyTable { return m.table }

// Registry returns the type registry the model resolves tags in.
func (m *Model) Registry() *Registry { return m.registry }

// Declare adds a typed property.
func (m *Model) Declare(name string, tag Tag, opts ...PropertyOption) error {
	if m.kind == KindEmbedded && tag == EmbeddedTag(m.name) {
		return &PropertyError{Model: m.name, Name: name, Err: ErrRecursiveEmbed}
	}
	_, err := m.table.Declare(name, tag, opts...)
	return err
}

// Embeds declares a property holding one embedded document of model e.
func (m *Model) Embeds(name string, e *Model, opts ...PropertyOption) error {
	if e.kind != KindEmbedded {
		return &PropertyError{Model: m.name, Name: name, Err: ErrWrongKind}
	}
	return m.Declare(name, EmbeddedTag(e.name), opts...)
}

// Bind attaches a document model to the collection its instances are read
// from and written to.
func (m *Model) Bind(c types.Collection) error {
	if m.kind == KindEmbedded {
		return fmt.Errorf("bind %s: %w", m.name, ErrEmbeddedModel)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound = c
	return nil
}

func (m *Model) coll() (types.Collection, error) {
	if m.kind == KindEmbedded {
		return nil, fmt.Errorf("%s: %w", m.name, ErrEmbeddedModel)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bound == nil {
		return nil, fmt.Errorf("%s: %w", m.name, ErrNotBound)
	}
	return m.bound, nil
}

func (m *Model) newStore() *AttributeStore {
	m.table.Seal()
	return newAttributeStore(m.table)
}

func (m *Model) expect(kind Kind) error {
	if m.kind != kind {
		return fmt.Errorf("%s is a %s model: %w", m.name, m.kind, ErrWrongKind)
	}
	return nil
}
