package model

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
)

// Change is the before and after value of one changed attribute.
type Change struct {
	Was any
	Is  any
}

// AttributeStore holds one instance's attribute values and the snapshot
// of the values last confirmed persisted. It is not safe for concurrent
// use.
//
// current holds raw values as loaded or typed values as written; reads cast
// lazily and cache the result until the next write to that name. original
// holds wire forms, so change detection compares like with like.
type AttributeStore struct {
	table    *PropertyTable
	current  map[string]any
	original map[string]any
	was      map[string]any
	cache    map[string]any
	extra    bson.M // stored keys no property declares
}

func newAttributeStore(table *PropertyTable) *AttributeStore {
	return &AttributeStore{
		table:    table,
		current:  make(map[string]any),
		original: make(map[string]any),
		was:      make(map[string]any),
		cache:    make(map[string]any),
	}
}

// seed fills every property with its default and takes the result as the
// baseline.
func (s *AttributeStore) seed() error {
	defaults, err := s.table.EachWithDefault()
	if err != nil {
		return err
	}
	for _, d := range defaults {
		s.current[d.Name] = d.Value
		s.cache[d.Name] = d.Value
	}
	s.Rebaseline()
	return nil
}

// load takes a stored document keyed by wire names as both the current and
// the baseline state. Missing properties get their defaults.
func (s *AttributeStore) load(raw bson.M) error {
	seen := make(map[string]bool, len(raw))
	for key, v := range raw {
		p, ok := s.table.ByWire(key)
		if !ok {
			if s.extra == nil {
				s.extra = bson.M{}
			}
			s.extra[key] = v
			continue
		}
		s.current[p.Name] = v
		seen[p.Name] = true
	}
	for _, p := range s.table.Properties() {
		if seen[p.Name] {
			continue
		}
		v, err := p.Default()
		if err != nil {
			return err
		}
		s.current[p.Name] = v
		s.cache[p.Name] = v
	}
	s.Rebaseline()
	return nil
}

// Store returns s. It lets every type embedding an AttributeStore satisfy
// Record.
func (s *AttributeStore) Store() *AttributeStore { return s }

// Table returns the property table backing the store.
func (s *AttributeStore) Table() *PropertyTable { return s.table }

// Read returns the typed value of name.
func (s *AttributeStore) Read(name string) (any, error) {
	p, err := s.table.Resolve(name)
	if err != nil {
		return nil, err
	}
	return s.read(p)
}

func (s *AttributeStore) read(p *Property) (any, error) {
	if v, ok := s.cache[p.Name]; ok {
		return v, nil
	}
	raw, ok := s.current[p.Name]
	if !ok {
		v, err := p.Default()
		if err != nil {
			return nil, err
		}
		s.current[p.Name] = v
		s.cache[p.Name] = v
		return v, nil
	}
	v, err := p.Typecast(raw)
	if err != nil {
		return nil, err
	}
	s.cache[p.Name] = v
	return v, nil
}

// Write casts raw and stores it. The value held before the first write
// since the last baseline is kept as the field's "was" value.
func (s *AttributeStore) Write(name string, raw any) error {
	p, err := s.table.Resolve(name)
	if err != nil {
		return err
	}
	v, err := p.Typecast(raw)
	if err != nil {
		return err
	}
	if _, ok := s.was[p.Name]; !ok {
		prev, err := s.read(p)
		if err != nil {
			prev = s.current[p.Name]
		}
		s.was[p.Name] = prev
	}
	s.current[p.Name] = v
	s.cache[p.Name] = v
	return nil
}

// AssignAttributes writes every entry of attrs. Fields that fail are
// collected into FieldErrors; the others are written.
func (s *AttributeStore) AssignAttributes(attrs map[string]any) error {
	errs := FieldErrors{}
	for _, name := range docvalue.SortedKeys(attrs) {
		if err := s.Write(name, attrs[name]); err != nil {
			errs[name] = err
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// snapshot is the wire form of the current value of p, used for baseline
// comparison. Values that no longer cast are compared raw.
func (s *AttributeStore) snapshot(p *Property) any {
	v, err := s.read(p)
	if err != nil {
		return docvalue.Clone(s.current[p.Name])
	}
	w, err := p.Serialize(v)
	if err != nil {
		return docvalue.Clone(s.current[p.Name])
	}
	return docvalue.Clone(w)
}

func (s *AttributeStore) changed(p *Property) bool {
	return !docvalue.Equal(s.snapshot(p), s.original[p.Name])
}

// IsChanged reports whether any attribute differs from the baseline.
func (s *AttributeStore) IsChanged() bool {
	for _, p := range s.table.Properties() {
		if s.changed(p) {
			return true
		}
	}
	return false
}

// Changed returns the names of attributes that differ from the baseline,
// in declaration order.
func (s *AttributeStore) Changed() []string {
	var names []string
	for _, p := range s.table.Properties() {
		if s.changed(p) {
			names = append(names, p.Name)
		}
	}
	return names
}

// AttributeChanged reports whether name differs from the baseline.
func (s *AttributeStore) AttributeChanged(name string) (bool, error) {
	p, err := s.table.Resolve(name)
	if err != nil {
		return false, err
	}
	return s.changed(p), nil
}

// Changes maps every changed attribute to its was and current values.
func (s *AttributeStore) Changes() map[string]Change {
	out := make(map[string]Change)
	for _, p := range s.table.Properties() {
		if !s.changed(p) {
			continue
		}
		is, _ := s.read(p)
		out[p.Name] = Change{Was: s.wasValue(p), Is: is}
	}
	return out
}

// Change returns the change for name, or false when it is unchanged.
func (s *AttributeStore) Change(name string) (Change, bool, error) {
	p, err := s.table.Resolve(name)
	if err != nil {
		return Change{}, false, err
	}
	if !s.changed(p) {
		return Change{}, false, nil
	}
	is, _ := s.read(p)
	return Change{Was: s.wasValue(p), Is: is}, true, nil
}

// Was returns the value name had before its first write since the last
// baseline. For an unchanged attribute it is the current value.
func (s *AttributeStore) Was(name string) (any, error) {
	p, err := s.table.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !s.changed(p) {
		return s.read(p)
	}
	return s.wasValue(p), nil
}

func (s *AttributeStore) wasValue(p *Property) any {
	if v, ok := s.was[p.Name]; ok {
		return v
	}
	// Changed in place without a write; the baseline is the best answer.
	v, err := p.Typecast(docvalue.Clone(s.original[p.Name]))
	if err != nil {
		return s.original[p.Name]
	}
	return v
}

// Restore resets name to its baseline value.
func (s *AttributeStore) Restore(name string) error {
	p, err := s.table.Resolve(name)
	if err != nil {
		return err
	}
	s.restore(p)
	return nil
}

func (s *AttributeStore) restore(p *Property) {
	s.current[p.Name] = docvalue.Clone(s.original[p.Name])
	delete(s.cache, p.Name)
	delete(s.was, p.Name)
}

// RestoreAll resets every changed attribute.
func (s *AttributeStore) RestoreAll() {
	for _, p := range s.table.Properties() {
		if s.changed(p) {
			s.restore(p)
		}
	}
}

// Rebaseline takes the current values as the persisted state. Only the
// persistence path calls it, after the store confirmed a write.
func (s *AttributeStore) Rebaseline() {
	for _, p := range s.table.Properties() {
		s.original[p.Name] = s.snapshot(p)
		if v, ok := s.cache[p.Name]; ok {
			rebaselineNested(v)
		}
	}
	s.was = make(map[string]any)
}

func rebaselineNested(v any) {
	if r, ok := v.(Record); ok {
		r.Store().Rebaseline()
		return
	}
	if items, ok := v.([]any); ok {
		for _, item := range items {
			rebaselineNested(item)
		}
	}
}

// Values returns every attribute's typed value keyed by name. Attributes
// whose stored value no longer casts are returned raw.
func (s *AttributeStore) Values() map[string]any {
	out := make(map[string]any)
	for _, p := range s.table.Properties() {
		v, err := s.read(p)
		if err != nil {
			v = s.current[p.Name]
		}
		out[p.Name] = v
	}
	return out
}

// Original returns the baseline values, typed, keyed by name.
func (s *AttributeStore) Original() map[string]any {
	out := make(map[string]any)
	for _, p := range s.table.Properties() {
		raw := docvalue.Clone(s.original[p.Name])
		v, err := p.Typecast(raw)
		if err != nil {
			v = raw
		}
		out[p.Name] = v
	}
	return out
}

// ToWire serializes every attribute, including nested embedded documents,
// into a document keyed by wire names. Stored keys that no property
// declares are carried through.
func (s *AttributeStore) ToWire() (bson.M, error) {
	out := make(bson.M, len(s.current)+len(s.extra))
	for k, v := range s.extra {
		out[k] = docvalue.Clone(v)
	}
	for _, p := range s.table.Properties() {
		v, err := s.read(p)
		if err != nil {
			return nil, err
		}
		w, err := p.Serialize(v)
		if err != nil {
			return nil, err
		}
		out[p.Wire] = w
	}
	return out, nil
}
