package model

import (
	"fmt"
	"strings"
	"sync"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
)

// Property describes one declared field. It is immutable once declared and
// shared by every instance of the model.
type Property struct {
	Name string // Attribute name used by callers.
	Wire string // Key in the stored document; defaults to Name.
	Type Tag    // Registered caster tag.

	def    func() any
	caster Caster
}

// PropertyOption configures a property at declaration time.
type PropertyOption func(*Property)

// Default sets a constant default. Arrays and documents are copied per
// instance by their casters, so a shared literal never aliases.
func Default(v any) PropertyOption {
	return func(p *Property) {
		p.def = func() any { return docvalue.Clone(v) }
	}
}

// DefaultFunc sets a default producer invoked once per new instance.
func DefaultFunc(fn func() any) PropertyOption {
	return func(p *Property) { p.def = fn }
}

// As stores the property under a different key in the document.
func As(wire string) PropertyOption {
	return func(p *Property) { p.Wire = wire }
}

// Typecast coerces raw to the property's type. Failures are reported as
// *TypecastError naming the field.
func (p *Property) Typecast(raw any) (any, error) {
	v, err := p.caster.Typecast(raw)
	if err != nil {
		return nil, p.fieldError(raw, err)
	}
	return v, nil
}

// Serialize returns the wire form of a typed value.
func (p *Property) Serialize(v any) (any, error) {
	w, err := p.caster.Serialize(v)
	if err != nil {
		return nil, p.fieldError(v, err)
	}
	return w, nil
}

// Default returns a freshly produced, typecast default value.
func (p *Property) Default() (any, error) {
	if p.def == nil {
		return nil, nil
	}
	return p.Typecast(p.def())
}

// selectorValue converts a condition value into the representation stored
// in documents, for casters that need it.
func (p *Property) selectorValue(raw any) (any, error) {
	sc, ok := p.caster.(SelectorCaster)
	if !ok {
		return raw, nil
	}
	v, err := sc.SelectorValue(raw)
	if err != nil {
		return nil, p.fieldError(raw, err)
	}
	return v, nil
}

func (p *Property) fieldError(raw any, err error) error {
	if te, ok := err.(*TypecastError); ok {
		out := *te
		out.Field = p.Name
		return &out
	}
	return &TypecastError{Field: p.Name, Type: p.Type, Value: raw, Reason: err.Error()}
}

// PropertyTable is the ordered set of properties declared on one model,
// chained to the table of the model it inherits from.
type PropertyTable struct {
	model    string
	registry *Registry
	parent   *PropertyTable

	mu     sync.RWMutex
	own    []*Property
	byName map[string]*Property
	sealed bool
	props  []*Property // effective order, cached once sealed
}

func newPropertyTable(model string, reg *Registry, parent *PropertyTable) *PropertyTable {
	return &PropertyTable{
		model:    model,
		registry: reg,
		parent:   parent,
		byName:   make(map[string]*Property),
	}
}

// Declare adds a property. Re-declaring a name owned by this table fails
// with ErrDuplicateProperty; re-declaring an inherited name shadows it.
func (t *PropertyTable) Declare(name string, tag Tag, opts ...PropertyOption) (*Property, error) {
	if err := validName(name); err != nil {
		return nil, &PropertyError{Model: t.model, Name: name, Err: err}
	}
	caster, err := t.registry.Lookup(tag)
	if err != nil {
		return nil, &PropertyError{Model: t.model, Name: name, Err: err}
	}
	p := &Property{Name: name, Wire: name, Type: tag, caster: caster}
	for _, opt := range opts {
		opt(p)
	}
	if err := validName(p.Wire); err != nil {
		return nil, &PropertyError{Model: t.model, Name: name, Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return nil, &PropertyError{Model: t.model, Name: name, Err: ErrTableSealed}
	}
	if _, ok := t.byName[name]; ok {
		return nil, &PropertyError{Model: t.model, Name: name, Err: ErrDuplicateProperty}
	}
	for _, other := range t.effectiveLocked() {
		if other.Wire == p.Wire && other.Name != name {
			return nil, &PropertyError{Model: t.model, Name: name,
				Err: fmt.Errorf("%w: wire key %q is used by %s", ErrDuplicateProperty, p.Wire, other.Name)}
		}
	}
	t.own = append(t.own, p)
	t.byName[name] = p
	return p, nil
}

// Resolve finds a property by name in this table or its ancestors.
func (t *PropertyTable) Resolve(name string) (*Property, error) {
	for cur := t; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		p, ok := cur.byName[name]
		cur.mu.RUnlock()
		if ok {
			return p, nil
		}
	}
	return nil, &PropertyError{Model: t.model, Name: name, Err: ErrUnknownProperty}
}

// ByWire finds a property by its document key.
func (t *PropertyTable) ByWire(wire string) (*Property, bool) {
	for _, p := range t.Properties() {
		if p.Wire == wire {
			return p, true
		}
	}
	return nil, false
}

// Properties returns the effective properties in declaration order.
// Inherited properties come first; a shadowing declaration takes the
// position of the property it shadows.
func (t *PropertyTable) Properties() []*Property {
	t.mu.RLock()
	if t.sealed {
		props := t.props
		t.mu.RUnlock()
		return props
	}
	t.mu.RUnlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.effectiveLocked()
}

func (t *PropertyTable) effectiveLocked() []*Property {
	if t.props != nil {
		return t.props
	}
	var out []*Property
	if t.parent != nil {
		inherited := t.parent.Properties()
		out = make([]*Property, 0, len(inherited)+len(t.own))
		for _, p := range inherited {
			if own, ok := t.byName[p.Name]; ok {
				out = append(out, own)
				continue
			}
			out = append(out, p)
		}
	}
	for _, p := range t.own {
		if t.parent != nil {
			if _, err := t.parent.Resolve(p.Name); err == nil {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// Seed is one defaulted attribute value.
type Seed struct {
	Name  string
	Value any
}

// EachWithDefault evaluates every property's default afresh.
func (t *PropertyTable) EachWithDefault() ([]Seed, error) {
	props := t.Properties()
	out := make([]Seed, 0, len(props))
	for _, p := range props {
		v, err := p.Default()
		if err != nil {
			return nil, err
		}
		out = append(out, Seed{Name: p.Name, Value: v})
	}
	return out, nil
}

// Seal freezes the table and its ancestors. Later declarations fail with
// ErrTableSealed.
func (t *PropertyTable) Seal() {
	if t.parent != nil {
		t.parent.Seal()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return
	}
	t.props = t.effectiveLocked()
	t.sealed = true
}

// Sealed reports whether the table has been frozen.
func (t *PropertyTable) Sealed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sealed
}

func validName(name string) error {
	if name == "" || strings.HasPrefix(name, "$") || strings.Contains(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
