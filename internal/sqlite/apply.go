package sqlite

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

type applyFunc func(doc bson.M, path string, arg any) error

var operators = map[string]applyFunc{
	"$inc":      applyInc,
	"$set":      applySet,
	"$unset":    applyUnset,
	"$push":     applyPush,
	"$pushAll":  applyPushAll,
	"$addToSet": applyAddToSet,
	"$pull":     applyPull,
	"$pullAll":  applyPullAll,
	"$pop":      applyPop,
	"$rename":   applyRename,
}

// validateUpdate checks the update document's shape before any document is
// touched. Replacement documents are not accepted.
func validateUpdate(update bson.D) error {
	if len(update) == 0 {
		return fmt.Errorf("%w: empty update", types.ErrInvalidUpdate)
	}
	for _, e := range update {
		if _, ok := operators[e.Key]; !ok {
			return fmt.Errorf("%w: unsupported operator %q", types.ErrInvalidUpdate, e.Key)
		}
		if _, ok := docvalue.AsDocument(e.Value); !ok {
			return fmt.Errorf("%w: %s wants a document", types.ErrInvalidUpdate, e.Key)
		}
	}
	return nil
}

// applyUpdate applies every operator of update to doc in place.
func applyUpdate(doc bson.M, update bson.D) error {
	for _, e := range update {
		fn := operators[e.Key]
		for _, f := range orderedFields(e.Value) {
			if f.Key == "_id" || strings.HasPrefix(f.Key, "_id.") {
				if e.Key != "$set" || !docvalue.Equal(doc["_id"], f.Value) {
					return fmt.Errorf("%w: %s on immutable _id", types.ErrInvalidUpdate, e.Key)
				}
				continue
			}
			if err := fn(doc, f.Key, f.Value); err != nil {
				return fmt.Errorf("%s %s: %w", e.Key, f.Key, err)
			}
		}
	}
	return nil
}

func orderedFields(v any) bson.D {
	if d, ok := v.(bson.D); ok {
		return d
	}
	m, _ := docvalue.AsDocument(v)
	out := make(bson.D, 0, len(m))
	for _, k := range docvalue.SortedKeys(m) {
		out = append(out, bson.E{Key: k, Value: m[k]})
	}
	return out
}

func applySet(doc bson.M, path string, arg any) error {
	parent, key, ok := docvalue.Parent(doc, path, true)
	if !ok {
		return fmt.Errorf("%w: cannot traverse %s", types.ErrInvalidUpdate, path)
	}
	parent[key] = docvalue.Clone(arg)
	return nil
}

func applyUnset(doc bson.M, path string, _ any) error {
	parent, key, ok := docvalue.Parent(doc, path, false)
	if ok {
		delete(parent, key)
	}
	return nil
}

func applyInc(doc bson.M, path string, arg any) error {
	if !docvalue.IsNumber(arg) {
		return fmt.Errorf("%w: increment by non-number %T", types.ErrInvalidUpdate, arg)
	}
	parent, key, ok := docvalue.Parent(doc, path, true)
	if !ok {
		return fmt.Errorf("%w: cannot traverse %s", types.ErrInvalidUpdate, path)
	}
	cur, present := parent[key]
	if !present || cur == nil {
		parent[key] = arg
		return nil
	}
	sum, err := addNumbers(cur, arg)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrInvalidUpdate, path, err)
	}
	parent[key] = sum
	return nil
}

// addNumbers keeps integer arithmetic when both sides are integers, in 32
// bits when both are 32 bit and the sum fits. A Go int counts as 32 bit
// when its value fits, as the driver encodes it that way. A 64 bit
// overflow is an error.
func addNumbers(a, b any) (any, error) {
	if !docvalue.IsNumber(a) {
		return nil, fmt.Errorf("cannot increment non-number %T", a)
	}
	if docvalue.IsIntegral(a) && docvalue.IsIntegral(b) {
		x, okx := docvalue.ToInt64(a)
		y, oky := docvalue.ToInt64(b)
		if okx && oky {
			sum := x + y
			if (y > 0 && sum < x) || (y < 0 && sum > x) {
				return nil, fmt.Errorf("integer overflow adding %d to %d", y, x)
			}
			if is32(a) && is32(b) && fits32(sum) {
				return int32(sum), nil
			}
			return sum, nil
		}
	}
	x, _ := docvalue.ToFloat(a)
	y, _ := docvalue.ToFloat(b)
	return x + y, nil
}

// arrayAt returns the array at path, creating an empty one when missing.
func arrayAt(doc bson.M, path string, create bool) (bson.M, string, bson.A, error) {
	parent, key, ok := docvalue.Parent(doc, path, create)
	if !ok {
		if !create {
			return nil, "", nil, nil
		}
		return nil, "", nil, fmt.Errorf("%w: cannot traverse %s", types.ErrInvalidUpdate, path)
	}
	cur, present := parent[key]
	if !present || cur == nil {
		return parent, key, nil, nil
	}
	items, ok := docvalue.AsSlice(cur)
	if !ok {
		return nil, "", nil, fmt.Errorf("%w: %s is %T, not an array", types.ErrInvalidUpdate, path, cur)
	}
	return parent, key, bson.A(items), nil
}

func applyPush(doc bson.M, path string, arg any) error {
	parent, key, items, err := arrayAt(doc, path, true)
	if err != nil {
		return err
	}
	parent[key] = append(append(bson.A{}, items...), docvalue.Clone(arg))
	return nil
}

func applyPushAll(doc bson.M, path string, arg any) error {
	values, ok := docvalue.AsSlice(arg)
	if !ok {
		return fmt.Errorf("%w: $pushAll wants an array", types.ErrInvalidUpdate)
	}
	parent, key, items, err := arrayAt(doc, path, true)
	if err != nil {
		return err
	}
	out := append(bson.A{}, items...)
	for _, v := range values {
		out = append(out, docvalue.Clone(v))
	}
	parent[key] = out
	return nil
}

func applyAddToSet(doc bson.M, path string, arg any) error {
	parent, key, items, err := arrayAt(doc, path, true)
	if err != nil {
		return err
	}
	for _, item := range items {
		if docvalue.Equal(item, arg) {
			return nil
		}
	}
	parent[key] = append(append(bson.A{}, items...), docvalue.Clone(arg))
	return nil
}

func applyPull(doc bson.M, path string, arg any) error {
	return pullValues(doc, path, []any{arg})
}

func applyPullAll(doc bson.M, path string, arg any) error {
	values, ok := docvalue.AsSlice(arg)
	if !ok {
		return fmt.Errorf("%w: $pullAll wants an array", types.ErrInvalidUpdate)
	}
	return pullValues(doc, path, values)
}

func pullValues(doc bson.M, path string, values []any) error {
	parent, key, items, err := arrayAt(doc, path, false)
	if err != nil || parent == nil || items == nil {
		return err
	}
	out := bson.A{}
	for _, item := range items {
		drop := false
		for _, v := range values {
			if docvalue.Equal(item, v) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, item)
		}
	}
	parent[key] = out
	return nil
}

func applyPop(doc bson.M, path string, arg any) error {
	dir, ok := docvalue.ToInt64(arg)
	if !ok || (dir != 1 && dir != -1) {
		return fmt.Errorf("%w: $pop wants 1 or -1", types.ErrInvalidUpdate)
	}
	parent, key, items, err := arrayAt(doc, path, false)
	if err != nil || parent == nil || len(items) == 0 {
		return err
	}
	if dir == 1 {
		parent[key] = append(bson.A{}, items[:len(items)-1]...)
	} else {
		parent[key] = append(bson.A{}, items[1:]...)
	}
	return nil
}

func applyRename(doc bson.M, path string, arg any) error {
	target, ok := arg.(string)
	if !ok || target == "" {
		return fmt.Errorf("%w: $rename wants a field name", types.ErrInvalidUpdate)
	}
	if target == path || target == "_id" || strings.HasPrefix(target, "_id.") {
		return fmt.Errorf("%w: cannot rename %s to %s", types.ErrInvalidUpdate, path, target)
	}
	parent, key, ok := docvalue.Parent(doc, path, false)
	if !ok {
		return nil
	}
	v, present := parent[key]
	if !present {
		return nil
	}
	delete(parent, key)
	return applySet(doc, target, v)
}

func is32(v any) bool {
	switch n := v.(type) {
	case int32, int16, int8, uint8, uint16:
		return true
	case int:
		return fits32(int64(n))
	}
	return false
}

func fits32(n int64) bool {
	return n >= -1<<31 && n < 1<<31
}
