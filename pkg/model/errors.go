package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Schema definition errors. These surface when a model is defined, not when
// it is used.
var (
	ErrDuplicateProperty = errors.New("duplicate property")
	ErrUnknownType       = errors.New("unknown property type")
	ErrDuplicateType     = errors.New("type already registered")
	ErrRecursiveEmbed    = errors.New("model cannot embed itself")
	ErrTableSealed       = errors.New("property table is sealed")
	ErrInvalidName       = errors.New("invalid name")
)

// Usage errors.
var (
	ErrUnknownProperty        = errors.New("unknown property")
	ErrTypecast               = errors.New("typecast failed")
	ErrInvalidModifierPayload = errors.New("invalid modifier payload")
	ErrInvalidCondition       = errors.New("invalid condition")
	ErrNotBound               = errors.New("model is not bound to a collection")
	ErrEmbeddedModel          = errors.New("embedded models have no collection")
	ErrWrongKind              = errors.New("wrong model kind")
	ErrDocumentNotFound       = errors.New("document not found")
)

// PropertyError reports a property name problem on a model. It unwraps to
// ErrUnknownProperty or ErrDuplicateProperty.
type PropertyError struct {
	Model string
	Name  string
	Err   error
}

func (e *PropertyError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Model, e.Name, e.Err)
}

func (e *PropertyError) Unwrap() error { return e.Err }

// TypecastError reports a raw value that cannot be coerced to a field's
// type. It unwraps to ErrTypecast.
type TypecastError struct {
	Field  string
	Type   Tag
	Value  any
	Reason string
}

func (e *TypecastError) Error() string {
	msg := fmt.Sprintf("cannot cast %v (%T) to %s", e.Value, e.Value, e.Type)
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TypecastError) Unwrap() error { return ErrTypecast }

// ModifierError reports a modifier call given a payload shape it does not
// accept. It unwraps to ErrInvalidModifierPayload.
type ModifierError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ModifierError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Field, e.Reason)
}

func (e *ModifierError) Unwrap() error { return ErrInvalidModifierPayload }

// FieldErrors collects per-field failures for the validation layer.
type FieldErrors map[string]error

func (e FieldErrors) Error() string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = e[name].Error()
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e FieldErrors) Unwrap() []error {
	out := make([]error, 0, len(e))
	for _, err := range e {
		out = append(out, err)
	}
	return out
}
