package store

import (
	"syndrdb-core/src/dberrors"
	"syndrdb-core/src/document"
	"syndrdb-core/src/query"
)

// parsedUpdate is an UpdateOne/UpdateMany payload after its $set/$inc/
// $unset operators have been pulled apart (spec §4.4).
type parsedUpdate struct {
	set   query.Filter
	inc   query.Filter
	unset []string
}

func parseUpdate(update query.Filter) (parsedUpdate, error) {
	var pu parsedUpdate
	for _, entry := range update {
		switch entry.Key {
		case "$set":
			d, ok := query.AsFilter(entry.Value)
			if !ok {
				return parsedUpdate{}, dberrors.BadValue("$set requires a document")
			}
			pu.set = d
		case "$inc":
			d, ok := query.AsFilter(entry.Value)
			if !ok {
				return parsedUpdate{}, dberrors.BadValue("$inc requires a document")
			}
			pu.inc = d
		case "$unset":
			d, ok := query.AsFilter(entry.Value)
			if !ok {
				return parsedUpdate{}, dberrors.BadValue("$unset requires a document")
			}
			for _, f := range d {
				pu.unset = append(pu.unset, f.Key)
			}
		default:
			return parsedUpdate{}, dberrors.BadValue("unsupported update operator %q", entry.Key)
		}
	}
	return pu, nil
}

// applyUpdate mutates doc in place per pu, reporting whether anything
// actually changed (spec §4.4's modifiedCount).
func applyUpdate(doc *document.Document, pu parsedUpdate) (bool, error) {
	changed := false

	for _, f := range pu.set {
		val, err := document.FromGo(f.Value)
		if err != nil {
			return false, err
		}
		if old, existed := doc.Get(f.Key); !existed || !document.Equal(old, val) {
			changed = true
		}
		doc.Set(f.Key, val)
	}

	for _, f := range pu.inc {
		delta, ok := toFloat(f.Value)
		if !ok {
			return false, dberrors.BadValue("$inc requires a numeric amount for field %q", f.Key)
		}
		base := 0.0
		if cur, ok := doc.Get(f.Key); ok && cur.Kind == document.KindNumber {
			base = cur.Num
		}
		doc.Set(f.Key, document.Number(base+delta))
		if delta != 0 {
			changed = true
		}
	}

	for _, field := range pu.unset {
		if doc.Unset(field) {
			changed = true
		}
	}

	return changed, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// upsertBaseDocument builds the seed document for an upsert (spec §4.4):
// strip operator keys from filter (top-level $-prefixed fields, and
// fields whose value is itself an operator object like {$gte: x}), then
// merge in $set/$inc from the update payload.
func upsertBaseDocument(filter query.Filter, pu parsedUpdate) (*document.Document, error) {
	d := document.New()
	for _, entry := range filter {
		if len(entry.Key) > 0 && entry.Key[0] == '$' {
			continue
		}
		if sub, ok := query.AsFilter(entry.Value); ok && query.IsOperatorDoc(sub) {
			continue
		}
		val, err := document.FromGo(entry.Value)
		if err != nil {
			return nil, err
		}
		d.Set(entry.Key, val)
	}
	if _, err := applyUpdate(d, parsedUpdate{set: pu.set, inc: pu.inc}); err != nil {
		return nil, err
	}
	return d, nil
}
