// Package query implements the planner and executor of spec §4.3: filter
// analysis, collectionScan/indexScan plan selection, and streamed
// execution with sort/skip/limit/projection.
//
// Grounded on engine/query_engine.go's Query/ExecuteQuery split (plan as a
// distinct stage from execute) and engine/filter_parser.go's
// WhereClause/WhereGroup AND/OR tree, retargeted from the teacher's SQL-ish
// string DSL to the structured mongo-style operator filter spec §4.3
// requires (DESIGN.md: the teacher's tokenizer itself is a drop; the
// AND/OR tree shape survives).
package query

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"syndrdb-core/src/dberrors"
	"syndrdb-core/src/document"
)

// Filter is the ordered top-level query document a caller passes to
// Find/UpdateOne/DeleteOne/etc. bson.D preserves insertion order, which
// the planner's "iterate filter entries in insertion order" rule (spec
// §4.3) depends on; it is also the same ordered-document type
// document.Document's BSON marshaling produces, so a filter round-trips
// over the wire with no conversion.
type Filter = bson.D

// MaxInArraySize bounds $in/$nin arrays (spec §4.3).
const MaxInArraySize = 2000

// Match evaluates the residual filter against doc, implementing every
// operator in spec §4.3's "Residual filter evaluation" section.
func Match(doc *document.Document, filter Filter) (bool, error) {
	for _, entry := range filter {
		switch entry.Key {
		case "$and":
			arr, ok := asArray(entry.Value)
			if !ok {
				return false, dberrors.BadValue("$and requires an array of filters")
			}
			for _, sub := range arr {
				subFilter, ok := asDoc(sub)
				if !ok {
					return false, dberrors.BadValue("$and element must be a filter document")
				}
				matched, err := Match(doc, subFilter)
				if err != nil {
					return false, err
				}
				if !matched {
					return false, nil
				}
			}
			continue
		case "$or":
			arr, ok := asArray(entry.Value)
			if !ok {
				return false, dberrors.BadValue("$or requires an array of filters")
			}
			if len(arr) == 0 {
				return false, dberrors.BadValue("$or requires a non-empty array")
			}
			any := false
			for _, sub := range arr {
				subFilter, ok := asDoc(sub)
				if !ok {
					return false, dberrors.BadValue("$or element must be a filter document")
				}
				matched, err := Match(doc, subFilter)
				if err != nil {
					return false, err
				}
				if matched {
					any = true
					break
				}
			}
			if !any {
				return false, nil
			}
			continue
		}

		if strings.HasPrefix(entry.Key, "$") {
			// Unknown top-level operator: ignored, matching spec's
			// planner rule of skipping $-prefixed entries during plan
			// selection; residual evaluation treats them the same way.
			continue
		}

		path := strings.Split(entry.Key, ".")
		docVal, present := doc.GetPath(path)

		matched, err := matchField(docVal, present, entry.Value)
		if err != nil {
			return false, err
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func matchField(docVal document.Value, present bool, filterVal interface{}) (bool, error) {
	if opDoc, ok := asDoc(filterVal); ok && isOperatorDoc(opDoc) {
		for _, op := range opDoc {
			matched, err := matchOperator(docVal, present, op.Key, op.Value)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil
	}

	target, err := document.FromGo(normalizeScalar(filterVal))
	if err != nil {
		return false, err
	}
	effective := docVal
	if !present {
		effective = document.Null()
	}
	return document.Equal(effective, target), nil
}

func matchOperator(docVal document.Value, present bool, op string, arg interface{}) (bool, error) {
	switch op {
	case "$eq":
		target, err := document.FromGo(normalizeScalar(arg))
		if err != nil {
			return false, err
		}
		effective := docVal
		if !present {
			effective = document.Null()
		}
		return document.Equal(effective, target), nil
	case "$ne":
		target, err := document.FromGo(normalizeScalar(arg))
		if err != nil {
			return false, err
		}
		if !present {
			return true, nil
		}
		return !document.Equal(docVal, target), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present || docVal.IsNullish() {
			return false, nil
		}
		target, err := document.FromGo(normalizeScalar(arg))
		if err != nil {
			return false, err
		}
		cmp, ok := document.Compare(docVal, target, true)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return cmp == document.Greater, nil
		case "$gte":
			return cmp == document.Greater || cmp == document.EqualTo, nil
		case "$lt":
			return cmp == document.Less, nil
		default: // $lte
			return cmp == document.Less || cmp == document.EqualTo, nil
		}
	case "$in":
		arr, ok := asArray(arg)
		if !ok {
			return false, dberrors.BadValue("$in requires an array")
		}
		if len(arr) > MaxInArraySize {
			return false, dberrors.BadValue("$in array of %d elements exceeds the cap of %d", len(arr), MaxInArraySize)
		}
		if !present {
			return false, nil
		}
		for _, e := range arr {
			target, err := document.FromGo(normalizeScalar(e))
			if err != nil {
				return false, err
			}
			if document.Equal(docVal, target) {
				return true, nil
			}
		}
		return false, nil
	case "$nin":
		arr, ok := asArray(arg)
		if !ok {
			return false, dberrors.BadValue("$nin requires an array")
		}
		if len(arr) > MaxInArraySize {
			return false, dberrors.BadValue("$nin array of %d elements exceeds the cap of %d", len(arr), MaxInArraySize)
		}
		if !present {
			return true, nil
		}
		for _, e := range arr {
			target, err := document.FromGo(normalizeScalar(e))
			if err != nil {
				return false, err
			}
			if document.Equal(docVal, target) {
				return false, nil
			}
		}
		return true, nil
	case "$exists":
		return present == isTruthy(arg), nil
	default:
		return false, dberrors.BadValue("unsupported operator %q", op)
	}
}

// IsOperatorDoc exposes isOperatorDoc for callers outside this package
// (store's upsert base-document builder, which strips operator shapes
// out of a filter the same way the planner skips them).
func IsOperatorDoc(d Filter) bool {
	return isOperatorDoc(d)
}

// isOperatorDoc reports whether a sub-document is an operator object
// (every key starts with '$') rather than a nested-document equality
// target.
func isOperatorDoc(d bson.D) bool {
	if len(d) == 0 {
		return false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return false
		}
	}
	return true
}

func isTruthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case float64:
		return t != 0
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

// AsFilter exposes asDoc for callers outside this package (store's update
// payload parsing) that need to normalize a $set/$inc-shaped value the
// same way a nested filter operand is normalized.
func AsFilter(v interface{}) (Filter, bool) {
	return asDoc(v)
}

// asDoc normalizes the several shapes a sub-document can arrive in
// (bson.D from our own round-trips, bson.M/map[string]interface{} from a
// front end's generic JSON decode) into a bson.D. Order is not meaningful
// for operator objects or $and/$or elements used only for matching (as
// opposed to planner field selection, which only ever looks at the
// top-level Filter).
func asDoc(v interface{}) (bson.D, bool) {
	switch t := v.(type) {
	case bson.D:
		return t, true
	case bson.M:
		return mapToD(t), true
	case map[string]interface{}:
		return mapToD(t), true
	case *document.Document:
		d := bson.D{}
		for _, f := range t.Fields() {
			val, _ := t.Get(f)
			d = append(d, bson.E{Key: f, Value: document.ToGo(val)})
		}
		return d, true
	default:
		return nil, false
	}
}

func mapToD(m map[string]interface{}) bson.D {
	d := make(bson.D, 0, len(m))
	for k, v := range m {
		d = append(d, bson.E{Key: k, Value: v})
	}
	return d
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case bson.A:
		return []interface{}(t), true
	case []interface{}:
		return t, true
	default:
		return nil, false
	}
}

// normalizeScalar passes values through unchanged; it exists as the one
// seam where wire-specific numeric types (int32 from a decoded BSON
// document, say) would be widened before reaching document.FromGo.
func normalizeScalar(v interface{}) interface{} {
	return v
}
