// Package docvalue implements value semantics shared by the model layer and
// the embedded store: store-style equality and ordering across numeric
// kinds, dotted-path access into nested documents, and deep copies.
package docvalue

import (
	"bytes"
	"cmp"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Equal reports whether a and b are equal the way the document store
// compares them: numbers by value regardless of kind, documents by their
// key/value sets, arrays element-wise.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if IsNumber(a) {
		if x, y, ok := bothInt64(a, b); ok {
			return x == y
		}
		fa, _ := ToFloat(a)
		fb, ok := ToFloat(b)
		return ok && fa == fb
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		return ok && ta.Equal(tb)
	}
	if da, ok := AsDocument(a); ok {
		db, ok := AsDocument(b)
		if !ok || len(da) != len(db) {
			return false
		}
		for k, va := range da {
			vb, ok := db[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	}
	if sa, ok := AsSlice(a); ok {
		sb, ok := AsSlice(b)
		if !ok || len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !Equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders a and b. The second result is false when the two values
// are not of comparable kinds, in which case range conditions never match.
func Compare(a, b any) (int, bool) {
	if fa, ok := ToFloat(a); ok {
		if x, y, ok := bothInt64(a, b); ok {
			return cmp.Compare(x, y), true
		}
		fb, ok := ToFloat(b)
		if !ok {
			return 0, false
		}
		return cmpFloat(fa, fb), true
	}
	switch va := a.(type) {
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(va, vb), true
	case bool:
		vb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case va == vb:
			return 0, true
		case !va:
			return -1, true
		default:
			return 1, true
		}
	case primitive.ObjectID:
		vb, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(va[:], vb[:]), true
	}
	if ta, ok := toTime(a); ok {
		tb, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	return 0, false
}

// bothInt64 returns a and b as int64 when both are integer kinds that fit,
// so integers past 2^53 compare exactly.
func bothInt64(a, b any) (int64, int64, bool) {
	if !IsIntegral(a) || !IsIntegral(b) {
		return 0, 0, false
	}
	x, okx := ToInt64(a)
	y, oky := ToInt64(b)
	return x, y, okx && oky
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsNumber reports whether v is one of Go's numeric kinds.
func IsNumber(v any) bool {
	_, ok := ToFloat(v)
	return ok
}

// ToFloat converts any numeric kind to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ToInt64 converts integral numeric kinds, and floats holding an integral
// value, to int64.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return ToInt64(float64(n))
	case float64:
		if n != math.Trunc(n) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// IsIntegral reports whether v is an integer kind (not a float).
func IsIntegral(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	}
	return time.Time{}, false
}

// AsSlice returns v as []any when v is an array of any element kind.
// Byte slices are binary values, not arrays.
func AsSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []any:
		return s, true
	case bson.A:
		return []any(s), true
	case []byte:
		return nil, false
	case bson.D:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// AsDocument returns v as a bson.M when v is an embedded document in any of
// the shapes the driver or callers produce.
func AsDocument(v any) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]any:
		return bson.M(d), true
	case bson.D:
		m := make(bson.M, len(d))
		for _, e := range d {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}

// Clone deep-copies documents and arrays; scalars are returned as is.
func Clone(v any) any {
	if d, ok := v.(bson.D); ok {
		out := make(bson.D, len(d))
		for i, e := range d {
			out[i] = bson.E{Key: e.Key, Value: Clone(e.Value)}
		}
		return out
	}
	if d, ok := AsDocument(v); ok {
		out := make(bson.M, len(d))
		for k, val := range d {
			out[k] = Clone(val)
		}
		return out
	}
	if s, ok := AsSlice(v); ok {
		out := make(bson.A, len(s))
		for i, val := range s {
			out[i] = Clone(val)
		}
		return out
	}
	return v
}

// Lookup resolves a dotted path inside doc. Numeric segments index arrays.
func Lookup(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		if d, ok := AsDocument(cur); ok {
			v, ok := d[seg]
			if !ok {
				return nil, false
			}
			cur = v
			continue
		}
		if s, ok := AsSlice(cur); ok {
			i, ok := index(seg)
			if !ok || i >= len(s) {
				return nil, false
			}
			cur = s[i]
			continue
		}
		return nil, false
	}
	return cur, true
}

// Parent returns the document holding the last segment of path, creating
// intermediate documents when create is set. The last segment is returned
// alongside it.
func Parent(doc bson.M, path string, create bool) (bson.M, string, bool) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok || next == nil {
			if !create {
				return nil, "", false
			}
			m := bson.M{}
			cur[seg] = m
			cur = m
			continue
		}
		d, ok := AsDocument(next)
		if !ok {
			return nil, "", false
		}
		if _, isD := next.(bson.D); isD {
			// Replace ordered documents with a map so writes land in place.
			cur[seg] = d
		}
		cur = d
	}
	return cur, segs[len(segs)-1], true
}

func index(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
