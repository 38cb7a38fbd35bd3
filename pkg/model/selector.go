package model

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
)

// Op is a condition operator.
type Op string

const (
	OpEq     Op = "eq"
	OpNe     Op = "ne"
	OpLt     Op = "lt"
	OpLte    Op = "lte"
	OpGt     Op = "gt"
	OpGte    Op = "gte"
	OpIn     Op = "in"
	OpNin    Op = "nin"
	OpExists Op = "exists"
)

var opSymbols = map[Op]string{
	OpEq:     "$eq",
	OpNe:     "$ne",
	OpLt:     "$lt",
	OpLte:    "$lte",
	OpGt:     "$gt",
	OpGte:    "$gte",
	OpIn:     "$in",
	OpNin:    "$nin",
	OpExists: "$exists",
}

// Symbol returns the operator's wire form.
func (o Op) Symbol() string { return opSymbols[o] }

// ParseOp accepts an operator name with or without the leading "$".
func ParseOp(s string) (Op, error) {
	op := Op(strings.TrimPrefix(s, "$"))
	if _, ok := opSymbols[op]; !ok {
		return "", fmt.Errorf("%w: operator %q", ErrInvalidCondition, s)
	}
	return op, nil
}

// Clause is one query condition.
type Clause struct {
	Field string
	Op    Op
	Value any
}

// Field names an attribute in a condition. Dotted paths reach into
// embedded documents and hashes.
type Field string

func (f Field) Eq(v any) Clause  { return Clause{Field: string(f), Op: OpEq, Value: v} }
func (f Field) Ne(v any) Clause  { return Clause{Field: string(f), Op: OpNe, Value: v} }
func (f Field) Lt(v any) Clause  { return Clause{Field: string(f), Op: OpLt, Value: v} }
func (f Field) Lte(v any) Clause { return Clause{Field: string(f), Op: OpLte, Value: v} }
func (f Field) Gt(v any) Clause  { return Clause{Field: string(f), Op: OpGt, Value: v} }
func (f Field) Gte(v any) Clause { return Clause{Field: string(f), Op: OpGte, Value: v} }

func (f Field) In(vs ...any) Clause {
	return Clause{Field: string(f), Op: OpIn, Value: append([]any(nil), vs...)}
}

func (f Field) Nin(vs ...any) Clause {
	return Clause{Field: string(f), Op: OpNin, Value: append([]any(nil), vs...)}
}

func (f Field) Exists(b bool) Clause { return Clause{Field: string(f), Op: OpExists, Value: b} }

// wirePath maps an attribute path to its document key path. Only the first
// segment is a property; the rest is passed through. The property is
// returned only when the path names it directly.
func wirePath(t *PropertyTable, path string) (string, *Property, error) {
	root, rest, nested := strings.Cut(path, ".")
	p, err := t.Resolve(root)
	if err != nil {
		return "", nil, err
	}
	if nested {
		return p.Wire + "." + rest, nil, nil
	}
	return p.Wire, p, nil
}

type fieldGroup struct {
	wire string
	ops  bson.D
	eqs  []any
}

// CompileSelector translates clauses into a selector document. Fields
// appear in first-seen order. A field with a single equality compiles to a
// direct value; otherwise its operators merge into one sub-document in
// first-seen order, a repeated operator keeping its first position and its
// last value. Conflicting equalities compile to {field: {$in: []}}, which
// matches nothing.
func CompileSelector(t *PropertyTable, clauses []Clause) (bson.D, error) {
	var groups []*fieldGroup
	byWire := make(map[string]*fieldGroup)
	for _, c := range clauses {
		wire, p, err := wirePath(t, c.Field)
		if err != nil {
			return nil, err
		}
		v, err := conditionValue(p, c)
		if err != nil {
			return nil, err
		}
		g, ok := byWire[wire]
		if !ok {
			g = &fieldGroup{wire: wire}
			byWire[wire] = g
			groups = append(groups, g)
		}
		if c.Op == OpEq {
			if !containsEqual(g.eqs, v) {
				g.eqs = append(g.eqs, v)
			}
		}
		g.setOp(c.Op.Symbol(), v)
	}

	out := make(bson.D, 0, len(groups))
	for _, g := range groups {
		switch {
		case len(g.eqs) > 1:
			out = append(out, bson.E{Key: g.wire, Value: bson.D{{Key: "$in", Value: bson.A{}}}})
		case len(g.eqs) == 1 && len(g.ops) == 1:
			out = append(out, bson.E{Key: g.wire, Value: g.ops[0].Value})
		default:
			out = append(out, bson.E{Key: g.wire, Value: g.ops})
		}
	}
	return out, nil
}

func (g *fieldGroup) setOp(symbol string, v any) {
	for i := range g.ops {
		if g.ops[i].Key == symbol {
			g.ops[i].Value = v
			return
		}
	}
	g.ops = append(g.ops, bson.E{Key: symbol, Value: v})
}

func containsEqual(vs []any, v any) bool {
	for _, e := range vs {
		if docvalue.Equal(e, v) {
			return true
		}
	}
	return false
}

// conditionValue validates a clause's value and converts identifier values
// to their stored representation.
func conditionValue(p *Property, c Clause) (any, error) {
	switch c.Op {
	case OpExists:
		b, ok := c.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s $exists wants a bool, got %T", ErrInvalidCondition, c.Field, c.Value)
		}
		return b, nil
	case OpIn, OpNin:
		items, ok := docvalue.AsSlice(c.Value)
		if !ok {
			return nil, fmt.Errorf("%w: %s %s wants a list, got %T", ErrInvalidCondition, c.Field, c.Op.Symbol(), c.Value)
		}
		out := make(bson.A, len(items))
		for i, item := range items {
			v, err := scalarValue(p, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case "":
		return nil, fmt.Errorf("%w: %s has no operator", ErrInvalidCondition, c.Field)
	}
	if _, ok := opSymbols[c.Op]; !ok {
		return nil, fmt.Errorf("%w: operator %q", ErrInvalidCondition, c.Op)
	}
	return scalarValue(p, c.Value)
}

func scalarValue(p *Property, v any) (any, error) {
	if p == nil || v == nil {
		return v, nil
	}
	return p.selectorValue(v)
}

// Direction orders query results.
type Direction int

const (
	Asc  Direction = 1
	Desc Direction = -1
)

// Sort is one ordering directive.
type Sort struct {
	Field string
	Dir   Direction
}

// CompileSort translates ordering directives into a sort document.
func CompileSort(t *PropertyTable, sorts []Sort) (bson.D, error) {
	if len(sorts) == 0 {
		return nil, nil
	}
	out := make(bson.D, 0, len(sorts))
	for _, s := range sorts {
		wire, _, err := wirePath(t, s.Field)
		if err != nil {
			return nil, err
		}
		dir := s.Dir
		if dir != Desc {
			dir = Asc
		}
		out = append(out, bson.E{Key: wire, Value: int32(dir)})
	}
	return out, nil
}
