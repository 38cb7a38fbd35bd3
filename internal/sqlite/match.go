package sqlite

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// matches reports whether doc satisfies selector. Every field entry must
// hold. A plain value is an equality test; a document whose keys all start
// with "$" is a set of operator conditions.
func matches(doc bson.M, selector bson.D) (bool, error) {
	for _, e := range selector {
		if strings.HasPrefix(e.Key, "$") {
			return false, fmt.Errorf("%w: top-level operator %s", types.ErrInvalidSelector, e.Key)
		}
		v, present := docvalue.Lookup(doc, e.Key)
		ops, isOps := operatorDoc(e.Value)
		if !isOps {
			if !equalOrContains(v, present, e.Value) {
				return false, nil
			}
			continue
		}
		for _, op := range ops {
			ok, err := matchOp(v, present, op.Key, op.Value)
			if err != nil {
				return false, fmt.Errorf("%s: %w", e.Key, err)
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// operatorDoc returns v as ordered operator entries when every key is an
// operator.
func operatorDoc(v any) (bson.D, bool) {
	var d bson.D
	switch val := v.(type) {
	case bson.D:
		d = val
	default:
		m, ok := docvalue.AsDocument(v)
		if !ok {
			return nil, false
		}
		for _, k := range docvalue.SortedKeys(m) {
			d = append(d, bson.E{Key: k, Value: m[k]})
		}
	}
	if len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

// equalOrContains is the store's equality: the field equals want, or the
// field is an array holding want. A missing field equals null.
func equalOrContains(v any, present bool, want any) bool {
	if !present {
		return want == nil
	}
	if docvalue.Equal(v, want) {
		return true
	}
	if items, ok := docvalue.AsSlice(v); ok {
		for _, item := range items {
			if docvalue.Equal(item, want) {
				return true
			}
		}
	}
	return false
}

func matchOp(v any, present bool, op string, arg any) (bool, error) {
	switch op {
	case "$eq":
		return equalOrContains(v, present, arg), nil
	case "$ne":
		return !equalOrContains(v, present, arg), nil
	case "$lt", "$lte", "$gt", "$gte":
		if !present {
			return false, nil
		}
		if compareMatches(v, op, arg) {
			return true, nil
		}
		if items, ok := docvalue.AsSlice(v); ok {
			for _, item := range items {
				if compareMatches(item, op, arg) {
					return true, nil
				}
			}
		}
		return false, nil
	case "$in", "$nin":
		list, ok := docvalue.AsSlice(arg)
		if !ok {
			return false, fmt.Errorf("%w: %s wants an array", types.ErrInvalidSelector, op)
		}
		in := false
		for _, want := range list {
			if equalOrContains(v, present, want) {
				in = true
				break
			}
		}
		return in == (op == "$in"), nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false, fmt.Errorf("%w: $exists wants a bool", types.ErrInvalidSelector)
		}
		return present == want, nil
	}
	return false, fmt.Errorf("%w: unsupported operator %s", types.ErrInvalidSelector, op)
}

func compareMatches(v any, op string, arg any) bool {
	c, ok := docvalue.Compare(v, arg)
	if !ok {
		return false
	}
	switch op {
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	case "$gt":
		return c > 0
	default:
		return c >= 0
	}
}
