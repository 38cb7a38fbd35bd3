package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/docmodel/pkg/model"
)

// parseValue reads a command-line value as JSON, keeping integers as
// int64, and falls back to the raw string when it is not JSON.
func parseValue(s string) any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return s
	}
	return normalizeJSON(v)
}

func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeJSON(t[k])
		}
		return t
	}
	return v
}

// parseObject reads a JSON object argument.
func parseObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, userError(fmt.Errorf("parse JSON object: %w", err))
	}
	if m == nil {
		return nil, userError(fmt.Errorf("parse JSON object: expected an object"))
	}
	return normalizeJSON(m).(map[string]any), nil
}

// parseAssignments reads field=value arguments.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, userError(fmt.Errorf("invalid assignment %q (expected field=value)", arg))
		}
		if _, dup := out[field]; dup {
			return nil, userError(fmt.Errorf("field %s given twice", field))
		}
		out[field] = parseValue(value)
	}
	return out, nil
}

// parseRenames reads old=new arguments.
func parseRenames(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		from, to, ok := strings.Cut(arg, "=")
		if !ok || from == "" || to == "" {
			return nil, userError(fmt.Errorf("invalid rename %q (expected old=new)", arg))
		}
		out[from] = to
	}
	return out, nil
}

// conditionForms lists the infix operators of --where, longest first so
// that "<=" is not read as "<".
var conditionForms = []struct {
	symbol string
	op     model.Op
}{
	{"!=", model.OpNe},
	{">=", model.OpGte},
	{"<=", model.OpLte},
	{"=", model.OpEq},
	{">", model.OpGt},
	{"<", model.OpLt},
}

// parseCondition reads one --where expression. Infix forms are field=v,
// field!=v, field>v, field>=v, field<v and field<=v; any operator can be
// written as field:op=v, for example tags:in=["a","b"] or
// title:exists=true.
func parseCondition(expr string) (model.Clause, error) {
	if lhs, value, ok := strings.Cut(expr, "="); ok {
		if field, opName, ok := strings.Cut(lhs, ":"); ok {
			op, err := model.ParseOp(opName)
			if err != nil || field == "" {
				return model.Clause{}, userError(fmt.Errorf("invalid condition %q", expr))
			}
			return conditionClause(field, op, parseValue(value)), nil
		}
	}
	best, at := -1, -1
	for i, f := range conditionForms {
		idx := strings.Index(expr, f.symbol)
		if idx < 0 {
			continue
		}
		if at < 0 || idx < at || (idx == at && len(f.symbol) > len(conditionForms[best].symbol)) {
			best, at = i, idx
		}
	}
	if best < 0 || at == 0 {
		return model.Clause{}, userError(fmt.Errorf("invalid condition %q (expected field<op>value)", expr))
	}
	f := conditionForms[best]
	field := strings.TrimSpace(expr[:at])
	value := strings.TrimSpace(expr[at+len(f.symbol):])
	return model.Clause{Field: field, Op: f.op, Value: parseValue(value)}, nil
}

// conditionClause spreads list values of in/nin into the clause.
func conditionClause(field string, op model.Op, v any) model.Clause {
	if op == model.OpIn || op == model.OpNin {
		if _, ok := v.([]any); !ok {
			v = []any{v}
		}
	}
	return model.Clause{Field: field, Op: op, Value: v}
}

// parseSort reads a --sort expression: field, field:asc or field:desc.
func parseSort(expr string) (model.Sort, error) {
	field, dir, _ := strings.Cut(expr, ":")
	if field == "" {
		return model.Sort{}, userError(fmt.Errorf("invalid sort %q", expr))
	}
	switch strings.ToLower(dir) {
	case "", "asc":
		return model.Sort{Field: field, Dir: model.Asc}, nil
	case "desc":
		return model.Sort{Field: field, Dir: model.Desc}, nil
	}
	return model.Sort{}, userError(fmt.Errorf("invalid sort direction %q (asc or desc)", dir))
}
