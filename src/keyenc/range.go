package keyenc

import "syndrdb-core/src/document"

// Range is an inclusive-start, exclusive-end byte-key bracket over an
// index's KV rows, produced from one comparison operator (spec §4.1).
type Range struct {
	StartKey []byte
	EndKey   []byte
}

// FullIndexRange brackets every row of an index, used when a filter
// entry's operator set has no lower or upper bound.
func FullIndexRange(collection, field string) Range {
	p := IndexPrefix(collection, field)
	end := append(append([]byte{}, p...), 0xFF)
	return Range{StartKey: p, EndKey: end}
}

// EqRange brackets exactly the rows for one encoded value.
func EqRange(collection, field string, v document.Value) (Range, error) {
	enc, err := EncodeValue(v)
	if err != nil {
		return Range{}, err
	}
	p := IndexPrefix(collection, field)
	start := append(append([]byte{}, p...), enc...)
	start = append(start, US)
	end := append(append([]byte{}, start...), 0xFF)
	return Range{StartKey: start, EndKey: end}, nil
}

// Gt, Gte, Lt, Lte each compute one bound per spec §4.1; ComputeRange
// combines bounds from multiple operators on the same field by taking the
// tightest start and tightest end.

func gtStart(collection, field string, v document.Value) ([]byte, error) {
	enc, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	p := IndexPrefix(collection, field)
	out := append(append([]byte{}, p...), enc...)
	out = append(out, US, 0xFF)
	return out, nil
}

func gteStart(collection, field string, v document.Value) ([]byte, error) {
	enc, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	p := IndexPrefix(collection, field)
	out := append(append([]byte{}, p...), enc...)
	out = append(out, US)
	return out, nil
}

func ltEnd(collection, field string, v document.Value) ([]byte, error) {
	enc, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	p := IndexPrefix(collection, field)
	out := append(append([]byte{}, p...), enc...)
	out = append(out, US)
	return out, nil
}

func lteEnd(collection, field string, v document.Value) ([]byte, error) {
	enc, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	p := IndexPrefix(collection, field)
	out := append(append([]byte{}, p...), enc...)
	out = append(out, US, 0xFF)
	return out, nil
}

// Bounds describes a single field's comparison-operator set, as extracted
// by the planner from a filter entry (spec §4.3).
type Bounds struct {
	Eq      *document.Value
	Gt, Gte *document.Value
	Lt, Lte *document.Value
}

// Empty reports whether no operator was set (planner falls back to a full
// scan of the field's index in that case).
func (b Bounds) Empty() bool {
	return b.Eq == nil && b.Gt == nil && b.Gte == nil && b.Lt == nil && b.Lte == nil
}

// ComputeRange builds the (startKey, endKey) bracket for a field's bound
// set, per spec §4.1. When Eq is set it takes precedence and the other
// bounds in b are not applied to the range; the planner marks a plan whose
// field combines $eq with other range operators as needing the residual
// filter.
func ComputeRange(collection, field string, b Bounds) (Range, error) {
	if b.Eq != nil {
		return EqRange(collection, field, *b.Eq)
	}
	r := FullIndexRange(collection, field)
	if b.Gt != nil {
		s, err := gtStart(collection, field, *b.Gt)
		if err != nil {
			return Range{}, err
		}
		r.StartKey = s
	}
	if b.Gte != nil {
		s, err := gteStart(collection, field, *b.Gte)
		if err != nil {
			return Range{}, err
		}
		if b.Gt == nil || string(s) > string(r.StartKey) {
			r.StartKey = s
		}
	}
	if b.Lt != nil {
		e, err := ltEnd(collection, field, *b.Lt)
		if err != nil {
			return Range{}, err
		}
		r.EndKey = e
	}
	if b.Lte != nil {
		e, err := lteEnd(collection, field, *b.Lte)
		if err != nil {
			return Range{}, err
		}
		if b.Lt == nil || string(e) < string(r.EndKey) {
			r.EndKey = e
		}
	}
	return r, nil
}
