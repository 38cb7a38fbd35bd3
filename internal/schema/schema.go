// Package schema loads model definitions from a YAML file so the CLI can
// work with models it was not compiled with.
//
//	embedded:
//	  - name: Author
//	    properties:
//	      - {name: name, type: string}
//	documents:
//	  - name: Post
//	    collection: posts
//	    properties:
//	      - {name: title, type: string, default: untitled}
//	      - {name: summary, type: string, as: s}
//	      - {name: author, type: Author}
//
// A property type is a registry tag or the name of an embedded model
// defined in the same file. Models may only inherit from models listed
// before them.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/docmodel/pkg/model"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// ErrInvalidSchema is wrapped by every definition error.
var ErrInvalidSchema = errors.New("invalid schema")

// File is the YAML document.
type File struct {
	Embedded  []ModelDef `yaml:"embedded"`
	Documents []ModelDef `yaml:"documents"`
}

// ModelDef defines one model.
type ModelDef struct {
	Name       string        `yaml:"name"`
	Collection string        `yaml:"collection,omitempty"`
	Inherits   string        `yaml:"inherits,omitempty"`
	Properties []PropertyDef `yaml:"properties"`
}

// PropertyDef declares one property.
type PropertyDef struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	As      string `yaml:"as,omitempty"`
	Default any    `yaml:"default,omitempty"`
}

// Schema holds the models defined by a File, in definition order.
type Schema struct {
	registry *model.Registry
	models   map[string]*model.Model
	order    []*model.Model
}

// Load reads and builds the schema at path.
func Load(path string, opts ...model.Option) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	s, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes data and builds its models. opts apply to every model.
// Unknown keys are rejected.
func Parse(data []byte, opts ...model.Option) (*Schema, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return Build(f, opts...)
}

// Build defines the models of f on a fresh registry. All models are
// defined before any property is declared, so properties may embed any
// embedded model in the file.
func Build(f File, opts ...model.Option) (*Schema, error) {
	s := &Schema{registry: model.NewRegistry(), models: make(map[string]*model.Model)}
	defs := append(append([]ModelDef(nil), f.Embedded...), f.Documents...)

	for i, def := range defs {
		embedded := i < len(f.Embedded)
		if err := s.define(def, embedded, opts); err != nil {
			return nil, err
		}
	}
	for _, def := range defs {
		m := s.models[def.Name]
		for _, p := range def.Properties {
			if err := s.declare(m, p); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrInvalidSchema, def.Name, p.Name, err)
			}
		}
	}
	return s, nil
}

func (s *Schema) define(def ModelDef, embedded bool, opts []model.Option) error {
	if def.Name == "" {
		return fmt.Errorf("%w: model without a name", ErrInvalidSchema)
	}
	if _, dup := s.models[def.Name]; dup {
		return fmt.Errorf("%w: model %s defined twice", ErrInvalidSchema, def.Name)
	}
	mopts := append([]model.Option{model.WithRegistry(s.registry)}, opts...)
	if def.Inherits != "" {
		parent, ok := s.models[def.Inherits]
		if !ok {
			return fmt.Errorf("%w: %s inherits %s, which is not defined before it", ErrInvalidSchema, def.Name, def.Inherits)
		}
		mopts = append(mopts, model.Inherits(parent))
	}
	if def.Collection != "" {
		if embedded {
			return fmt.Errorf("%w: embedded model %s has a collection", ErrInvalidSchema, def.Name)
		}
		mopts = append(mopts, model.Collection(def.Collection))
	}

	var (
		m   *model.Model
		err error
	)
	if embedded {
		m, err = model.DefineEmbedded(def.Name, mopts...)
	} else {
		m, err = model.DefineDocument(def.Name, mopts...)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	s.models[def.Name] = m
	s.order = append(s.order, m)
	return nil
}

func (s *Schema) declare(m *model.Model, p PropertyDef) error {
	var popts []model.PropertyOption
	if p.As != "" {
		popts = append(popts, model.As(p.As))
	}
	if p.Default != nil {
		popts = append(popts, model.Default(p.Default))
	}
	if target, ok := s.models[p.Type]; ok {
		return m.Embeds(p.Name, target, popts...)
	}
	if p.Type == "" {
		return errors.New("missing type")
	}
	return m.Declare(p.Name, model.Tag(p.Type), popts...)
}

// Model returns the model named name.
func (s *Schema) Model(name string) (*model.Model, error) {
	m, ok := s.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: model %q", model.ErrUnknownType, name)
	}
	return m, nil
}

// Models returns every model in definition order.
func (s *Schema) Models() []*model.Model {
	return append([]*model.Model(nil), s.order...)
}

// Registry returns the registry the models were defined on.
func (s *Schema) Registry() *model.Registry { return s.registry }

// Bind binds every document model to its collection in db.
func (s *Schema) Bind(db types.Database) error {
	for _, m := range s.order {
		if m.Kind() != model.KindDocument {
			continue
		}
		c, err := db.Collection(m.CollectionName())
		if err != nil {
			return fmt.Errorf("binding %s: %w", m.Name(), err)
		}
		if err := m.Bind(c); err != nil {
			return fmt.Errorf("binding %s: %w", m.Name(), err)
		}
	}
	return nil
}
