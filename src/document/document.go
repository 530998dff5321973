package document

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"syndrdb-core/src/dberrors"
)

// IDField is the distinguished field every stored document carries.
const IDField = "_id"

// MaxSanitizeDepth bounds recursion through nested documents/arrays during
// input sanitization, per spec §4.4 ("Recursion depth is capped at 20").
const MaxSanitizeDepth = 20

// dangerousKeys is the set of field names input sanitization rejects
// anywhere in a filter, update, or document payload (spec §4.4).
var dangerousKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// Document is an ordered mapping from field name to Value. Field order is
// preserved for round-tripping (spec §3: "an ordered mapping"); lookups are
// served from the index map.
type Document struct {
	order  []string
	fields map[string]Value
}

// New creates an empty document.
func New() *Document {
	return &Document{fields: make(map[string]Value)}
}

// Set assigns a field, appending it to the order if new.
func (d *Document) Set(field string, v Value) {
	if _, exists := d.fields[field]; !exists {
		d.order = append(d.order, field)
	}
	d.fields[field] = v
}

// Unset removes a field if present, returning whether it was present.
func (d *Document) Unset(field string) bool {
	if _, exists := d.fields[field]; !exists {
		return false
	}
	delete(d.fields, field)
	for i, f := range d.order {
		if f == field {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a field's value and whether it is present (absent is
// distinct from explicitly-null, matching spec §3/§4.2's
// "neither absent nor null" language).
func (d *Document) Get(field string) (Value, bool) {
	v, ok := d.fields[field]
	return v, ok
}

// GetPath descends a dotted field path (spec §4.3: "supported for
// residual evaluation"), returning ok=false if any segment is missing or
// not a document.
func (d *Document) GetPath(path []string) (Value, bool) {
	if len(path) == 0 {
		return Value{}, false
	}
	v, ok := d.Get(path[0])
	if !ok {
		return Value{}, false
	}
	if len(path) == 1 {
		return v, true
	}
	if v.Kind != KindDocument || v.Doc == nil {
		return Value{}, false
	}
	return v.Doc.GetPath(path[1:])
}

// Fields returns field names in insertion order.
func (d *Document) Fields() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// ID returns the document's _id field as a string, or "" if absent or not
// a string.
func (d *Document) ID() string {
	v, ok := d.Get(IDField)
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.Str
}

// Clone produces a deep copy, used before applying $set/$inc/$unset so the
// pre-mutation document remains available for the index manager's
// onUpdate diff (spec §4.2).
func (d *Document) Clone() *Document {
	out := New()
	for _, f := range d.order {
		out.Set(f, cloneValue(d.fields[f]))
	}
	return out
}

func cloneValue(v Value) Value {
	switch v.Kind {
	case KindArray:
		arr := make([]Value, len(v.Arr))
		for i, e := range v.Arr {
			arr[i] = cloneValue(e)
		}
		return Array(arr)
	case KindDocument:
		if v.Doc == nil {
			return v
		}
		return DocValue(v.Doc.Clone())
	default:
		return v
	}
}

// Sanitize validates an externally supplied document/filter/update
// payload per spec §4.4: rejects the dangerous-key set anywhere in the
// structure and caps recursion depth.
func (d *Document) Sanitize() error {
	return sanitizeDoc(d, 0)
}

func sanitizeDoc(d *Document, depth int) error {
	if depth > MaxSanitizeDepth {
		return dberrors.BadValue("document nesting exceeds maximum depth of %d", MaxSanitizeDepth)
	}
	for _, f := range d.order {
		if _, bad := dangerousKeys[f]; bad {
			return dberrors.BadValue("field name %q is not allowed", f)
		}
		if err := sanitizeValue(d.fields[f], depth+1); err != nil {
			return err
		}
	}
	return nil
}

func sanitizeValue(v Value, depth int) error {
	if depth > MaxSanitizeDepth {
		return dberrors.BadValue("document nesting exceeds maximum depth of %d", MaxSanitizeDepth)
	}
	switch v.Kind {
	case KindArray:
		for _, e := range v.Arr {
			if err := sanitizeValue(e, depth+1); err != nil {
				return err
			}
		}
	case KindDocument:
		if v.Doc != nil {
			return sanitizeDoc(v.Doc, depth+1)
		}
	}
	return nil
}

// --- BSON marshaling: the on-disk representation of a document row. ---

// MarshalBSON implements bson.Marshaler, round-tripping field order via
// bson.D.
func (d *Document) MarshalBSON() ([]byte, error) {
	elems := make(bson.D, 0, len(d.order))
	for _, f := range d.order {
		rv, err := valueToRaw(d.fields[f])
		if err != nil {
			return nil, err
		}
		elems = append(elems, bson.E{Key: f, Value: rv})
	}
	return bson.Marshal(elems)
}

// UnmarshalBSON implements bson.Unmarshaler.
func (d *Document) UnmarshalBSON(data []byte) error {
	var raw bson.D
	if err := bson.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.order = nil
	d.fields = make(map[string]Value)
	for _, e := range raw {
		v, err := rawToValue(e.Value)
		if err != nil {
			return err
		}
		d.Set(e.Key, v)
	}
	return nil
}

func valueToRaw(v Value) (interface{}, error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.Bool, nil
	case KindNumber:
		return v.Num, nil
	case KindString:
		return v.Str, nil
	case KindDate:
		return primitive.NewDateTimeFromTime(v.Date), nil
	case KindArray:
		arr := make(bson.A, 0, len(v.Arr))
		for _, e := range v.Arr {
			rv, err := valueToRaw(e)
			if err != nil {
				return nil, err
			}
			arr = append(arr, rv)
		}
		return arr, nil
	case KindDocument:
		if v.Doc == nil {
			return bson.D{}, nil
		}
		// v.Doc implements bson.Marshaler itself; returning it (rather than
		// its already-marshaled bytes) lets the driver embed it as a
		// subdocument instead of a binary blob.
		return v.Doc, nil
	default:
		return nil, fmt.Errorf("document: unknown value kind %d", v.Kind)
	}
}

func rawToValue(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case string:
		return String(t), nil
	case primitive.DateTime:
		return DateVal(t.Time()), nil
	case time.Time:
		return DateVal(t), nil
	case primitive.A:
		arr := make([]Value, 0, len(t))
		for _, e := range t {
			v, err := rawToValue(e)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, v)
		}
		return Array(arr), nil
	case bson.D:
		sub := New()
		for _, e := range t {
			v, err := rawToValue(e.Value)
			if err != nil {
				return Value{}, err
			}
			sub.Set(e.Key, v)
		}
		return DocValue(sub), nil
	case bson.M:
		sub := New()
		for k, e := range t {
			v, err := rawToValue(e)
			if err != nil {
				return Value{}, err
			}
			sub.Set(k, v)
		}
		return DocValue(sub), nil
	case primitive.ObjectID:
		return String(t.Hex()), nil
	default:
		return Value{}, fmt.Errorf("document: unsupported bson type %T", raw)
	}
}

// FromMap builds a Document from an untyped map, the shape front ends hand
// the store (decoded JSON or BSON from the wire). Key order is
// non-deterministic for a Go map; callers that care about field order
// build the Document with New and Set in the order they want.
func FromMap(m map[string]interface{}) (*Document, error) {
	d := New()
	for k, v := range m {
		val, err := FromGo(v)
		if err != nil {
			return nil, err
		}
		d.Set(k, val)
	}
	return d, nil
}

// FromGo converts a plain Go value (as produced by encoding/json or a
// front end's decoder) into a Value.
func FromGo(v interface{}) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case string:
		return String(t), nil
	case time.Time:
		return DateVal(t), nil
	case []interface{}:
		arr := make([]Value, 0, len(t))
		for _, e := range t {
			ev, err := FromGo(e)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, ev)
		}
		return Array(arr), nil
	case map[string]interface{}:
		sub, err := FromMap(t)
		if err != nil {
			return Value{}, err
		}
		return DocValue(sub), nil
	case *Document:
		return DocValue(t), nil
	default:
		return Value{}, dberrors.BadValue("unsupported value type %T", v)
	}
}

// ToGo renders a Value back into a plain Go value, for returning results
// to a front end.
func ToGo(v Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindDate:
		return v.Date
	case KindArray:
		out := make([]interface{}, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = ToGo(e)
		}
		return out
	case KindDocument:
		if v.Doc == nil {
			return map[string]interface{}{}
		}
		return v.Doc.ToMap()
	default:
		return nil
	}
}

// ToMap renders the document as a plain map, in no particular order.
func (d *Document) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(d.order))
	for _, f := range d.order {
		out[f] = ToGo(d.fields[f])
	}
	return out
}
