package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
)

// Tag identifies a registered typecaster.
type Tag string

// Built-in tags.
const (
	TypeString   Tag = "string"
	TypeInteger  Tag = "integer"
	TypeFloat    Tag = "float"
	TypeBoolean  Tag = "boolean"
	TypeTime     Tag = "time"
	TypeObjectID Tag = "objectid"
	TypeUUID     Tag = "uuid"
	TypeArray    Tag = "array"
	TypeHash     Tag = "hash"
	TypeAny      Tag = "any"
)

// embeddedPrefix marks the composite tag of an embedded document model.
const embeddedPrefix = "embedded:"

// EmbeddedTag returns the tag under which the embedded model named name
// registers its caster.
func EmbeddedTag(name string) Tag {
	return Tag(embeddedPrefix + name)
}

// Caster converts raw values into a field's typed value and typed values
// into their wire form. A nil raw value casts to nil.
type Caster interface {
	Typecast(raw any) (any, error)
	Serialize(value any) (any, error)
}

// SelectorCaster is implemented by casters whose values must reach a
// selector in the store's native representation, such as identifiers.
type SelectorCaster interface {
	SelectorValue(raw any) (any, error)
}

// Registry maps tags to casters. Lookups are safe for concurrent use;
// registration normally happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	casters map[Tag]Caster
}

// NewRegistry returns a registry holding the built-in casters.
func NewRegistry() *Registry {
	r := &Registry{casters: make(map[Tag]Caster)}
	r.casters[TypeString] = stringCaster{}
	r.casters[TypeInteger] = integerCaster{}
	r.casters[TypeFloat] = floatCaster{}
	r.casters[TypeBoolean] = booleanCaster{}
	r.casters[TypeTime] = timeCaster{}
	r.casters[TypeObjectID] = objectIDCaster{}
	r.casters[TypeUUID] = uuidCaster{}
	r.casters[TypeArray] = arrayCaster{}
	r.casters[TypeHash] = hashCaster{}
	r.casters[TypeAny] = anyCaster{}
	return r
}

// DefaultRegistry is used by models defined without WithRegistry.
var DefaultRegistry = NewRegistry()

// Register associates tag with caster. Returns ErrDuplicateType if the tag
// is already taken.
func (r *Registry) Register(tag Tag, c Caster) error {
	if tag == "" || c == nil {
		return fmt.Errorf("register type %q: %w", tag, ErrInvalidName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.casters[tag]; ok {
		return fmt.Errorf("register type %q: %w", tag, ErrDuplicateType)
	}
	r.casters[tag] = c
	return nil
}

// Lookup returns the caster for tag or ErrUnknownType.
func (r *Registry) Lookup(tag Tag) (Caster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.casters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return c, nil
}

// Tags lists the registered tags in lexical order.
func (r *Registry) Tags() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]Tag, 0, len(r.casters))
	for t := range r.casters {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func castError(tag Tag, raw any, reason string) error {
	return &TypecastError{Type: tag, Value: raw, Reason: reason}
}

type stringCaster struct{}

func (stringCaster) Typecast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	if i, ok := docvalue.ToInt64(raw); ok && docvalue.IsIntegral(raw) {
		return strconv.FormatInt(i, 10), nil
	}
	if f, ok := docvalue.ToFloat(raw); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return nil, castError(TypeString, raw, "")
}

func (stringCaster) Serialize(v any) (any, error) { return v, nil }

type integerCaster struct{}

func (integerCaster) Typecast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, castError(TypeInteger, raw, "not an integer")
		}
		return i, nil
	}
	if i, ok := docvalue.ToInt64(raw); ok {
		return i, nil
	}
	return nil, castError(TypeInteger, raw, "")
}

func (integerCaster) Serialize(v any) (any, error) { return v, nil }

type floatCaster struct{}

func (floatCaster) Typecast(raw any) (any, error) {
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, castError(TypeFloat, raw, "not a number")
		}
		return f, nil
	}
	if raw == nil {
		return nil, nil
	}
	if f, ok := docvalue.ToFloat(raw); ok {
		return f, nil
	}
	return nil, castError(TypeFloat, raw, "")
}

func (floatCaster) Serialize(v any) (any, error) { return v, nil }

type booleanCaster struct{}

func (booleanCaster) Typecast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "":
			return nil, nil
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
		return nil, castError(TypeBoolean, raw, "not a boolean")
	}
	if i, ok := docvalue.ToInt64(raw); ok && (i == 0 || i == 1) {
		return i == 1, nil
	}
	return nil, castError(TypeBoolean, raw, "")
}

func (booleanCaster) Serialize(v any) (any, error) { return v, nil }

// timeCaster stores times in UTC at millisecond precision, the resolution
// of the store's datetime type, so a round trip compares equal.
type timeCaster struct{}

func (timeCaster) Typecast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v.UTC().Truncate(time.Millisecond), nil
	case primitive.DateTime:
		return v.Time().UTC(), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, castError(TypeTime, raw, "not an RFC 3339 time")
		}
		return t.UTC().Truncate(time.Millisecond), nil
	}
	return nil, castError(TypeTime, raw, "")
}

func (timeCaster) Serialize(v any) (any, error) { return v, nil }

func (c timeCaster) SelectorValue(raw any) (any, error) { return c.Typecast(raw) }

type objectIDCaster struct{}

func (objectIDCaster) Typecast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case primitive.ObjectID:
		return v, nil
	case string:
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return nil, castError(TypeObjectID, raw, "not a hex object id")
		}
		return id, nil
	}
	return nil, castError(TypeObjectID, raw, "")
}

func (objectIDCaster) Serialize(v any) (any, error) { return v, nil }

func (c objectIDCaster) SelectorValue(raw any) (any, error) { return c.Typecast(raw) }

// uuidCaster holds uuid.UUID values and stores them as canonical strings.
type uuidCaster struct{}

func (uuidCaster) Typecast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, castError(TypeUUID, raw, "not a uuid")
		}
		return id, nil
	case []byte:
		id, err := uuid.FromBytes(v)
		if err != nil {
			return nil, castError(TypeUUID, raw, "not a 16 byte uuid")
		}
		return id, nil
	}
	return nil, castError(TypeUUID, raw, "")
}

func (uuidCaster) Serialize(v any) (any, error) {
	if id, ok := v.(uuid.UUID); ok {
		return id.String(), nil
	}
	return v, nil
}

func (c uuidCaster) SelectorValue(raw any) (any, error) {
	v, err := c.Typecast(raw)
	if err != nil {
		return nil, err
	}
	return c.Serialize(v)
}

// arrayCaster copies on cast so a shared default never aliases across
// instances.
type arrayCaster struct{}

func (arrayCaster) Typecast(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := docvalue.AsSlice(raw)
	if !ok {
		return nil, castError(TypeArray, raw, "not an array")
	}
	out := make([]any, len(s))
	copy(out, s)
	return out, nil
}

func (arrayCaster) Serialize(v any) (any, error) { return serializeAny(v) }

type hashCaster struct{}

func (hashCaster) Typecast(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	d, ok := docvalue.AsDocument(raw)
	if !ok {
		return nil, castError(TypeHash, raw, "not a document")
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out, nil
}

func (hashCaster) Serialize(v any) (any, error) { return serializeAny(v) }

type anyCaster struct{}

func (anyCaster) Typecast(raw any) (any, error) { return raw, nil }

func (anyCaster) Serialize(v any) (any, error) { return serializeAny(v) }

// embeddedCaster casts raw documents into embedded documents of one model.
type embeddedCaster struct {
	model *Model
}

func (c embeddedCaster) Typecast(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case *EmbeddedDocument:
		if v.model != c.model {
			return nil, castError(EmbeddedTag(c.model.name), raw, "embedded document of "+v.model.name)
		}
		return v, nil
	}
	d, ok := docvalue.AsDocument(raw)
	if !ok {
		return nil, castError(EmbeddedTag(c.model.name), raw, "not a document")
	}
	doc, err := c.model.instantiateEmbedded(d)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c embeddedCaster) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	doc, ok := v.(*EmbeddedDocument)
	if !ok {
		return nil, castError(EmbeddedTag(c.model.name), v, "not an embedded document")
	}
	return wireOf(doc)
}

// serializeAny produces the wire form of untyped values, recursing into
// arrays, documents and embedded documents.
func serializeAny(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case Record:
		return wireOf(val)
	case uuid.UUID:
		return val.String(), nil
	case time.Time:
		return val.UTC().Truncate(time.Millisecond), nil
	case bson.D:
		out := make(bson.D, len(val))
		for i, e := range val {
			w, err := serializeAny(e.Value)
			if err != nil {
				return nil, err
			}
			out[i] = bson.E{Key: e.Key, Value: w}
		}
		return out, nil
	}
	if d, ok := docvalue.AsDocument(v); ok {
		out := make(bson.M, len(d))
		for k, e := range d {
			w, err := serializeAny(e)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	}
	if s, ok := docvalue.AsSlice(v); ok {
		out := make(bson.A, len(s))
		for i, e := range s {
			w, err := serializeAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	}
	return v, nil
}

func wireOf(r Record) (any, error) {
	w, err := r.Store().ToWire()
	if err != nil {
		return nil, err
	}
	return w, nil
}
