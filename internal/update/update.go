// Package update implements the atomic update-operator executor applied
// to documents on a matching write.
package update

import (
	"github.com/knirvcorp/embeddb/internal/dberrors"
	"github.com/knirvcorp/embeddb/internal/path"
	"github.com/knirvcorp/embeddb/internal/value"
)

// operatorOrder is the fixed application order required by the spec.
var operatorOrder = []string{"$set", "$unset", "$inc", "$mul", "$min", "$max", "$push", "$pull", "$addToSet", "$rename"}

// Apply produces a new document by applying update (a map of
// operator -> field-map) to doc. Conflicting writes to the same field
// within a single update are rejected with InvalidArgument.
func Apply(doc value.Value, upd value.Value) (value.Value, error) {
	if upd.Kind() != value.Object {
		return doc, dberrors.NewInvalidArgument("update must be an object of operators")
	}

	touched := make(map[string]string)
	for _, field := range upd.Keys() {
		if !isKnownOperator(field) {
			return doc, dberrors.NewInvalidArgument("unknown update operator " + field)
		}
	}

	out := doc
	for _, op := range operatorOrder {
		fields, ok := upd.Get(op)
		if !ok {
			continue
		}
		if fields.Kind() != value.Object {
			return doc, dberrors.NewInvalidArgument(op + " requires an object of field paths")
		}
		for _, fp := range fields.Keys() {
			if prior, seen := touched[fp]; seen && prior != op {
				return doc, dberrors.NewInvalidArgument("conflicting update operators on field " + fp)
			}
			touched[fp] = op
			operand, _ := fields.Get(fp)
			var err error
			out, err = applyOne(out, op, fp, operand)
			if err != nil {
				return doc, err
			}
		}
	}
	return out, nil
}

func isKnownOperator(op string) bool {
	for _, o := range operatorOrder {
		if o == op {
			return true
		}
	}
	return false
}

func applyOne(doc value.Value, op, fieldPath string, operand value.Value) (value.Value, error) {
	switch op {
	case "$set":
		out, ok := path.Set(doc, fieldPath, operand)
		if !ok {
			return doc, dberrors.NewInvalidArgument("$set cannot overwrite non-object intermediate at " + fieldPath)
		}
		return out, nil
	case "$unset":
		return path.Unset(doc, fieldPath), nil
	case "$inc":
		return applyArith(doc, fieldPath, operand, func(cur, delta float64) float64 { return cur + delta })
	case "$mul":
		return applyMul(doc, fieldPath, operand)
	case "$min":
		return applyMinMax(doc, fieldPath, operand, func(cur, v float64) bool { return v < cur })
	case "$max":
		return applyMinMax(doc, fieldPath, operand, func(cur, v float64) bool { return v > cur })
	case "$push":
		return applyPush(doc, fieldPath, operand)
	case "$pull":
		return applyPull(doc, fieldPath, operand)
	case "$addToSet":
		return applyAddToSet(doc, fieldPath, operand)
	case "$rename":
		return applyRename(doc, fieldPath, operand)
	default:
		return doc, dberrors.NewInvalidArgument("unknown update operator " + op)
	}
}

func applyArith(doc value.Value, fieldPath string, operand value.Value, combine func(cur, delta float64) float64) (value.Value, error) {
	if operand.Kind() != value.Number {
		return doc, dberrors.NewInvalidArgument("$inc/$mul operand must be numeric at " + fieldPath)
	}
	cur, ok := path.Get(doc, fieldPath)
	base := 0.0
	if ok && cur.Kind() == value.Number {
		base = cur.AsNumber()
	}
	out, ok := path.Set(doc, fieldPath, value.NewNumber(combine(base, operand.AsNumber())))
	if !ok {
		return doc, dberrors.NewInvalidArgument("cannot write numeric field at " + fieldPath)
	}
	return out, nil
}

func applyMul(doc value.Value, fieldPath string, operand value.Value) (value.Value, error) {
	if operand.Kind() != value.Number {
		return doc, dberrors.NewInvalidArgument("$mul operand must be numeric at " + fieldPath)
	}
	cur, ok := path.Get(doc, fieldPath)
	var result float64
	if ok && cur.Kind() == value.Number {
		result = cur.AsNumber() * operand.AsNumber()
	} else {
		result = 0
	}
	out, ok := path.Set(doc, fieldPath, value.NewNumber(result))
	if !ok {
		return doc, dberrors.NewInvalidArgument("cannot write numeric field at " + fieldPath)
	}
	return out, nil
}

func applyMinMax(doc value.Value, fieldPath string, operand value.Value, dominates func(cur, v float64) bool) (value.Value, error) {
	if operand.Kind() != value.Number {
		return doc, dberrors.NewInvalidArgument("$min/$max operand must be numeric at " + fieldPath)
	}
	cur, ok := path.Get(doc, fieldPath)
	if !ok || cur.Kind() != value.Number || dominates(cur.AsNumber(), operand.AsNumber()) {
		out, ok := path.Set(doc, fieldPath, operand)
		if !ok {
			return doc, dberrors.NewInvalidArgument("cannot write field at " + fieldPath)
		}
		return out, nil
	}
	return doc, nil
}

func applyPush(doc value.Value, fieldPath string, operand value.Value) (value.Value, error) {
	cur, ok := path.Get(doc, fieldPath)
	var arr value.Value
	if !ok {
		arr = value.NewArray()
	} else if cur.Kind() == value.Array {
		arr = cur
	} else {
		return doc, dberrors.NewInvalidArgument("$push target is not an array at " + fieldPath)
	}
	out, ok := path.Set(doc, fieldPath, arr.Append(operand))
	if !ok {
		return doc, dberrors.NewInvalidArgument("cannot write array field at " + fieldPath)
	}
	return out, nil
}

func applyPull(doc value.Value, fieldPath string, operand value.Value) (value.Value, error) {
	cur, ok := path.Get(doc, fieldPath)
	if !ok || cur.Kind() != value.Array {
		return doc, nil
	}
	filtered := make([]value.Value, 0, len(cur.AsArray()))
	for _, e := range cur.AsArray() {
		if !value.Equal(e, operand) {
			filtered = append(filtered, e)
		}
	}
	out, ok := path.Set(doc, fieldPath, value.NewArray(filtered...))
	if !ok {
		return doc, dberrors.NewInvalidArgument("cannot write array field at " + fieldPath)
	}
	return out, nil
}

func applyAddToSet(doc value.Value, fieldPath string, operand value.Value) (value.Value, error) {
	cur, ok := path.Get(doc, fieldPath)
	var arr value.Value
	if !ok {
		arr = value.NewArray()
	} else if cur.Kind() == value.Array {
		arr = cur
		for _, e := range arr.AsArray() {
			if value.Equal(e, operand) {
				return doc, nil
			}
		}
	} else {
		return doc, dberrors.NewInvalidArgument("$addToSet target is not an array at " + fieldPath)
	}
	out, ok := path.Set(doc, fieldPath, arr.Append(operand))
	if !ok {
		return doc, dberrors.NewInvalidArgument("cannot write array field at " + fieldPath)
	}
	return out, nil
}

func applyRename(doc value.Value, fieldPath string, operand value.Value) (value.Value, error) {
	if operand.Kind() != value.String {
		return doc, dberrors.NewInvalidArgument("$rename target must be a string at " + fieldPath)
	}
	cur, ok := path.Get(doc, fieldPath)
	if !ok {
		return doc, nil
	}
	withoutOld := path.Unset(doc, fieldPath)
	out, ok := path.Set(withoutOld, operand.AsString(), cur)
	if !ok {
		return doc, dberrors.NewInvalidArgument("cannot write renamed field " + operand.AsString())
	}
	return out, nil
}
