package sqlite

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// typeRank orders values of different kinds: missing and null first, then
// numbers, strings, documents, arrays, binary, ids, booleans and dates.
func typeRank(v any, present bool) int {
	if !present || v == nil {
		return 0
	}
	switch v.(type) {
	case string:
		return 2
	case []byte, primitive.Binary:
		return 5
	case primitive.ObjectID:
		return 6
	case bool:
		return 7
	case primitive.DateTime:
		return 8
	}
	if docvalue.IsNumber(v) {
		return 1
	}
	if _, ok := docvalue.AsDocument(v); ok {
		return 3
	}
	if _, ok := docvalue.AsSlice(v); ok {
		return 4
	}
	return 9
}

// sortDocuments stable-sorts docs by the keys of spec, each 1 or -1.
func sortDocuments(docs []bson.M, spec bson.D) error {
	if len(spec) == 0 {
		return nil
	}
	dirs := make([]int64, len(spec))
	for i, e := range spec {
		d, ok := docvalue.ToInt64(e.Value)
		if !ok || (d != 1 && d != -1) {
			return fmt.Errorf("%w: sort on %s wants 1 or -1", types.ErrInvalidSelector, e.Key)
		}
		dirs[i] = d
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for k, e := range spec {
			c := compareField(docs[i], docs[j], e.Key)
			if c != 0 {
				return c*int(dirs[k]) < 0
			}
		}
		return false
	})
	return nil
}

func compareField(a, b bson.M, path string) int {
	va, pa := docvalue.Lookup(a, path)
	vb, pb := docvalue.Lookup(b, path)
	ra, rb := typeRank(va, pa), typeRank(vb, pb)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if c, ok := docvalue.Compare(va, vb); ok {
		return c
	}
	return 0
}
