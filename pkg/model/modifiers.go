package model

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mesh-intelligence/docmodel/internal/docvalue"
	"github.com/mesh-intelligence/docmodel/pkg/types"
)

// Modifier is a bulk update operation.
type Modifier int

const (
	ModIncrement Modifier = iota
	ModAssign
	ModUnassign
	ModPush
	ModPushAll
	ModAddToSet
	ModPull
	ModPullAll
	ModPopLast
	ModPopFirst
	ModRename
)

type payloadKind int

const (
	payloadValues  payloadKind = iota // field: value
	payloadNumbers                    // field: number
	payloadLists                      // field: [values]
	payloadNames                      // field names, value synthesized
	payloadStrings                    // field: new name
)

type modifierSpec struct {
	name string
	wire string
	kind payloadKind
	fill any
}

var modifierSpecs = map[Modifier]modifierSpec{
	ModIncrement: {name: "increment", wire: "$inc", kind: payloadNumbers},
	ModAssign:    {name: "assign", wire: "$set", kind: payloadValues},
	ModUnassign:  {name: "unassign", wire: "$unset", kind: payloadNames, fill: 1},
	ModPush:      {name: "push", wire: "$push", kind: payloadValues},
	ModPushAll:   {name: "push_all", wire: "$pushAll", kind: payloadLists},
	ModAddToSet:  {name: "add_to_set", wire: "$addToSet", kind: payloadValues},
	ModPull:      {name: "pull", wire: "$pull", kind: payloadValues},
	ModPullAll:   {name: "pull_all", wire: "$pullAll", kind: payloadLists},
	ModPopLast:   {name: "pop_last", wire: "$pop", kind: payloadNames, fill: 1},
	ModPopFirst:  {name: "pop_first", wire: "$pop", kind: payloadNames, fill: -1},
	ModRename:    {name: "rename", wire: "$rename", kind: payloadStrings},
}

// String returns the public operation name.
func (m Modifier) String() string {
	if s, ok := modifierSpecs[m]; ok {
		return s.name
	}
	return fmt.Sprintf("Modifier(%d)", int(m))
}

// Operator returns the wire operator.
func (m Modifier) Operator() string { return modifierSpecs[m].wire }

// ParseModifier looks a modifier up by its public name.
func ParseModifier(name string) (Modifier, error) {
	for m, s := range modifierSpecs {
		if s.name == name {
			return m, nil
		}
	}
	return 0, &ModifierError{Op: name, Reason: "unknown modifier"}
}

// Modify issues one multi-document update applying mod with payload to
// every document the scope matches. Payload is a map or bson.D of field to
// value; unassign and the pop modifiers also take a []string of field
// names, and rename a map[string]string. Values are sent as given. Store
// failures are returned unchanged, without retry.
func (s Scope) Modify(ctx context.Context, mod Modifier, payload any) (types.UpdateResult, error) {
	spec, ok := modifierSpecs[mod]
	if !ok {
		return types.UpdateResult{}, &ModifierError{Op: mod.String(), Reason: "unknown modifier"}
	}
	body, err := s.buildPayload(spec, payload)
	if err != nil {
		return types.UpdateResult{}, err
	}
	c, sel, err := s.prepare()
	if err != nil {
		return types.UpdateResult{}, err
	}
	update := bson.D{{Key: spec.wire, Value: body}}

	start := time.Now()
	res, err := c.Update(ctx, sel, update, types.UpdateOptions{Multi: true})
	elapsed := time.Since(start)
	if s.model.observer != nil {
		s.model.observer.ObserveModifier(c.Name(), spec.wire, res, elapsed, err)
	}
	if err != nil {
		s.model.log.Error().Err(err).
			Str("collection", c.Name()).
			Str("operator", spec.wire).
			Msg("modifier update failed")
		return res, err
	}
	s.model.log.Debug().
		Str("collection", c.Name()).
		Str("operator", spec.wire).
		Int64("matched", res.Matched).
		Int64("modified", res.Modified).
		Dur("elapsed", elapsed).
		Msg("modifier applied")
	return res, nil
}

type entry struct {
	field string
	value any
}

// buildPayload normalizes the caller's payload into the operator body,
// keyed by wire names. Map keys are emitted in lexical order; bson.D keeps
// the caller's order.
func (s Scope) buildPayload(spec modifierSpec, payload any) (bson.D, error) {
	entries, err := payloadEntries(spec, payload)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &ModifierError{Op: spec.name, Reason: "empty payload"}
	}
	body := make(bson.D, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		wire, _, err := wirePath(s.model.table, e.field)
		if err != nil {
			return nil, err
		}
		if seen[wire] {
			return nil, &ModifierError{Op: spec.name, Field: e.field, Reason: "field given twice"}
		}
		seen[wire] = true
		v, err := checkValue(spec, e, s.model.table)
		if err != nil {
			return nil, err
		}
		body = append(body, bson.E{Key: wire, Value: v})
	}
	return body, nil
}

func payloadEntries(spec modifierSpec, payload any) ([]entry, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case bson.D:
		if spec.kind == payloadNames {
			break
		}
		out := make([]entry, len(p))
		for i, e := range p {
			out[i] = entry{field: e.Key, value: e.Value}
		}
		return out, nil
	case map[string]string:
		if spec.kind != payloadStrings {
			break
		}
		out := make([]entry, 0, len(p))
		for _, k := range docvalue.SortedKeys(p) {
			out = append(out, entry{field: k, value: p[k]})
		}
		return out, nil
	case []string:
		if spec.kind != payloadNames {
			break
		}
		out := make([]entry, len(p))
		for i, name := range p {
			out[i] = entry{field: name, value: spec.fill}
		}
		return out, nil
	default:
		if spec.kind == payloadNames {
			break
		}
		m, ok := docvalue.AsDocument(payload)
		if !ok {
			break
		}
		out := make([]entry, 0, len(m))
		for _, k := range docvalue.SortedKeys(m) {
			out = append(out, entry{field: k, value: m[k]})
		}
		return out, nil
	}
	return nil, &ModifierError{Op: spec.name, Reason: fmt.Sprintf("unsupported payload %T", payload)}
}

func checkValue(spec modifierSpec, e entry, t *PropertyTable) (any, error) {
	switch spec.kind {
	case payloadNumbers:
		if !docvalue.IsNumber(e.value) {
			return nil, &ModifierError{Op: spec.name, Field: e.field, Reason: fmt.Sprintf("wants a number, got %T", e.value)}
		}
	case payloadLists:
		items, ok := docvalue.AsSlice(e.value)
		if !ok {
			return nil, &ModifierError{Op: spec.name, Field: e.field, Reason: fmt.Sprintf("wants a list, got %T", e.value)}
		}
		return bson.A(items), nil
	case payloadStrings:
		name, ok := e.value.(string)
		if !ok || name == "" {
			return nil, &ModifierError{Op: spec.name, Field: e.field, Reason: "wants a new field name"}
		}
		wire, _, err := wirePath(t, name)
		if err != nil {
			// Renaming to an undeclared key is allowed; it is sent as given.
			return name, nil
		}
		return wire, nil
	}
	return e.value, nil
}

// Increment adds each delta to its field ($inc).
func (s Scope) Increment(ctx context.Context, deltas map[string]any) (types.UpdateResult, error) {
	return s.Modify(ctx, ModIncrement, deltas)
}

// Assign sets each field ($set).
func (s Scope) Assign(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return s.Modify(ctx, ModAssign, values)
}

// Unassign removes the named fields ($unset).
func (s Scope) Unassign(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return s.Modify(ctx, ModUnassign, fields)
}

// Push appends one value to each array field ($push).
func (s Scope) Push(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return s.Modify(ctx, ModPush, values)
}

// PushAll appends every listed value to each array field ($pushAll).
func (s Scope) PushAll(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return s.Modify(ctx, ModPushAll, values)
}

// AddToSet appends a value unless the array already holds it ($addToSet).
func (s Scope) AddToSet(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return s.Modify(ctx, ModAddToSet, values)
}

// Pull removes every occurrence of a value ($pull).
func (s Scope) Pull(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return s.Modify(ctx, ModPull, values)
}

// PullAll removes every occurrence of each listed value ($pullAll).
func (s Scope) PullAll(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return s.Modify(ctx, ModPullAll, values)
}

// PopLast removes the last element of each array field ($pop 1).
func (s Scope) PopLast(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return s.Modify(ctx, ModPopLast, fields)
}

// PopFirst removes the first element of each array field ($pop -1).
func (s Scope) PopFirst(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return s.Modify(ctx, ModPopFirst, fields)
}

// Rename moves each field to a new name ($rename).
func (s Scope) Rename(ctx context.Context, names map[string]string) (types.UpdateResult, error) {
	return s.Modify(ctx, ModRename, names)
}

// Modify applies mod to every document of the model.
func (m *Model) Modify(ctx context.Context, mod Modifier, payload any) (types.UpdateResult, error) {
	return m.Scoped().Modify(ctx, mod, payload)
}

// Increment applies $inc to every document of the model.
func (m *Model) Increment(ctx context.Context, deltas map[string]any) (types.UpdateResult, error) {
	return m.Scoped().Increment(ctx, deltas)
}

// Assign applies $set to every document of the model.
func (m *Model) Assign(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return m.Scoped().Assign(ctx, values)
}

// Unassign applies $unset to every document of the model.
func (m *Model) Unassign(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return m.Scoped().Unassign(ctx, fields...)
}

// Push applies $push to every document of the model.
func (m *Model) Push(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return m.Scoped().Push(ctx, values)
}

// PushAll applies $pushAll to every document of the model.
func (m *Model) PushAll(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return m.Scoped().PushAll(ctx, values)
}

// AddToSet applies $addToSet to every document of the model.
func (m *Model) AddToSet(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return m.Scoped().AddToSet(ctx, values)
}

// Pull applies $pull to every document of the model.
func (m *Model) Pull(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return m.Scoped().Pull(ctx, values)
}

// PullAll applies $pullAll to every document of the model.
func (m *Model) PullAll(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return m.Scoped().PullAll(ctx, values)
}

// PopLast applies $pop 1 to every document of the model.
func (m *Model) PopLast(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return m.Scoped().PopLast(ctx, fields...)
}

// PopFirst applies $pop -1 to every document of the model.
func (m *Model) PopFirst(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return m.Scoped().PopFirst(ctx, fields...)
}

// Rename applies $rename to every document of the model.
func (m *Model) Rename(ctx context.Context, names map[string]string) (types.UpdateResult, error) {
	return m.Scoped().Rename(ctx, names)
}

// The instance forms below scope the update to the document's id. They do
// not change the in-memory attributes; Reload picks up the result.

// Increment adds each delta to its field of this document ($inc).
func (d *Document) Increment(ctx context.Context, deltas map[string]any) (types.UpdateResult, error) {
	return d.Scope().Increment(ctx, deltas)
}

// Assign sets fields of this document ($set).
func (d *Document) Assign(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return d.Scope().Assign(ctx, values)
}

// Unassign removes fields from this document ($unset).
func (d *Document) Unassign(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return d.Scope().Unassign(ctx, fields...)
}

// Push appends a value to array fields of this document ($push).
func (d *Document) Push(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return d.Scope().Push(ctx, values)
}

// PushAll appends several values to array fields of this document ($pushAll).
func (d *Document) PushAll(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return d.Scope().PushAll(ctx, values)
}

// AddToSet appends a value to array fields of this document unless present ($addToSet).
func (d *Document) AddToSet(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return d.Scope().AddToSet(ctx, values)
}

// Pull removes every occurrence of a value from array fields of this document ($pull).
func (d *Document) Pull(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return d.Scope().Pull(ctx, values)
}

// PullAll removes several values from array fields of this document ($pullAll).
func (d *Document) PullAll(ctx context.Context, values map[string]any) (types.UpdateResult, error) {
	return d.Scope().PullAll(ctx, values)
}

// PopLast removes the last element of array fields of this document ($pop 1).
func (d *Document) PopLast(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return d.Scope().PopLast(ctx, fields...)
}

// PopFirst removes the first element of array fields of this document ($pop -1).
func (d *Document) PopFirst(ctx context.Context, fields ...string) (types.UpdateResult, error) {
	return d.Scope().PopFirst(ctx, fields...)
}

// Rename renames fields of this document ($rename).
func (d *Document) Rename(ctx context.Context, names map[string]string) (types.UpdateResult, error) {
	return d.Scope().Rename(ctx, names)
}
