package docvalue

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestEqual(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"ints of different kinds", int32(3), int64(3), true},
		{"int and float", 3, 3.0, true},
		{"different numbers", 3, 4, false},
		{"number and string", 3, "3", false},
		{"nil and nil", nil, nil, true},
		{"nil and value", nil, 0, false},
		{"time and datetime", now, primitive.NewDateTimeFromTime(now), true},
		{"documents ignore shape", bson.M{"a": 1}, bson.D{{Key: "a", Value: int64(1)}}, true},
		{"documents differ", bson.M{"a": 1}, bson.M{"a": 2}, false},
		{"arrays element-wise", []any{1, "x"}, bson.A{int64(1), "x"}, true},
		{"arrays differ in length", []any{1}, bson.A{1, 2}, false},
		{"bytes are not arrays", []byte("ab"), []byte("ab"), true},
		{"strings", "a", "a", true},
		{"large ints compare exactly", int64(1 << 53), int64(1<<53 + 1), false},
		{"large ints of different kinds", int64(1<<53 + 1), uint64(1<<53 + 1), true},
		{"NaN is not equal to itself", math.NaN(), math.NaN(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name   string
		a, b   any
		want   int
		wantOK bool
	}{
		{"numbers", 1, 2.5, -1, true},
		{"strings", "b", "a", 1, true},
		{"bools", false, true, -1, true},
		{"equal times", time.Unix(5, 0), time.Unix(5, 0), 0, true},
		{"mixed kinds", 1, "1", 0, false},
		{"documents", bson.M{}, bson.M{}, 0, false},
		{"large ints", int64(1<<53 + 1), int64(1 << 53), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Compare(tt.a, tt.b)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToInt64(t *testing.T) {
	v, ok := ToInt64(2.0)
	assert.True(t, ok)
	assert.Equal(t, int64(2), v)
	_, ok = ToInt64(2.5)
	assert.False(t, ok)
	_, ok = ToInt64(uint64(1 << 63))
	assert.False(t, ok)
	_, ok = ToInt64(float64(math.MaxInt64))
	assert.False(t, ok, "2^63 does not fit")
	v, ok = ToInt64(float64(math.MinInt64))
	assert.True(t, ok)
	assert.Equal(t, int64(math.MinInt64), v)
	_, ok = ToInt64("2")
	assert.False(t, ok)
}

func TestLookupAndParent(t *testing.T) {
	doc := bson.M{
		"a": bson.M{"b": bson.D{{Key: "c", Value: 1}}},
		"l": bson.A{"x", bson.M{"y": 2}},
	}

	v, ok := Lookup(doc, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = Lookup(doc, "l.1.y")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = Lookup(doc, "l.5")
	assert.False(t, ok)
	_, ok = Lookup(doc, "a.missing")
	assert.False(t, ok)

	parent, key, ok := Parent(doc, "a.b.c", false)
	require.True(t, ok)
	assert.Equal(t, "c", key)
	parent[key] = 9
	v, _ = Lookup(doc, "a.b.c")
	assert.Equal(t, 9, v)

	_, _, ok = Parent(doc, "n.m", false)
	assert.False(t, ok)
	parent, key, ok = Parent(doc, "n.m", true)
	require.True(t, ok)
	parent[key] = "new"
	v, _ = Lookup(doc, "n.m")
	assert.Equal(t, "new", v)
}

func TestCloneIsDeep(t *testing.T) {
	orig := bson.M{"list": []any{bson.M{"k": 1}}}
	c := Clone(orig).(bson.M)
	c["list"].(bson.A)[0].(bson.M)["k"] = 2
	assert.Equal(t, 1, orig["list"].([]any)[0].(bson.M)["k"])
}

func TestAsSlice(t *testing.T) {
	s, ok := AsSlice([]int{1, 2})
	require.True(t, ok)
	assert.Equal(t, []any{1, 2}, s)
	_, ok = AsSlice([]byte("x"))
	assert.False(t, ok)
	_, ok = AsSlice(bson.D{})
	assert.False(t, ok)
	_, ok = AsSlice("x")
	assert.False(t, ok)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
}
