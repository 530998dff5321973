// Package document models the dynamically typed document value union the
// storage engine persists: null, boolean, integer/double, string, date,
// array, and nested document (spec §3, §9).
package document

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Kind tags a Value's underlying Go representation.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindDate
	KindArray
	KindDocument
)

// Value is the tagged variant every document field holds. Only one of the
// typed accessors is meaningful for a given Kind.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Date time.Time
	Arr  []Value
	Doc  *Document
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value     { return Value{Kind: KindNumber, Num: n} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func DateVal(t time.Time) Value  { return Value{Kind: KindDate, Date: t} }
func Array(vs []Value) Value     { return Value{Kind: KindArray, Arr: vs} }
func DocValue(d *Document) Value { return Value{Kind: KindDocument, Doc: d} }

// IsNullish reports whether v is absent-equivalent: spec §3/§4.1 treat
// null the same as "field absent" for indexing and range-predicate
// purposes.
func (v Value) IsNullish() bool {
	return v.Kind == KindNull
}

// Equal implements the deep structural equality spec §4.3's $eq/$ne and
// array membership ($in/$nin) require.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		// Numbers are the one cross-representation case: a numeric Value
		// compares equal to another numeric Value only (int vs float is
		// not a distinct Kind here - see FromGo).
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		if math.IsNaN(a.Num) && math.IsNaN(b.Num) {
			return true
		}
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	case KindDate:
		return a.Date.Equal(b.Date)
	case KindArray:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !Equal(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	case KindDocument:
		return documentsEqual(a.Doc, b.Doc)
	}
	return false
}

func documentsEqual(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.fields) != len(b.fields) {
		return false
	}
	for k, av := range a.fields {
		bv, ok := b.fields[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

// CompareResult mirrors the three-way comparators used by sort and range
// evaluation. ok is false when the two values are not comparable under
// spec §4.3's stricter typed-comparison rule (see query/filter.go, the
// Open Question decision on mismatched numeric/string comparison).
type CompareResult int

const (
	Less    CompareResult = -1
	EqualTo CompareResult = 0
	Greater CompareResult = 1
)

// numeric attempts to coerce v to a non-NaN float64 for spec §4.3's range
// operators: a number, or a string that parses as one. ±Inf is accepted
// and compares numerically; NaN never coerces.
func numeric(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		if math.IsNaN(v.Num) {
			return 0, false
		}
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// stringify renders v the way a code-point string comparison requires when
// neither side coerces to a number.
func stringify(v Value) string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindDate:
		return v.Date.Format(time.RFC3339Nano)
	case KindNull:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Compare implements spec §4.3's range-predicate and sort comparator:
// numeric-vs-numeric comparison when both sides coerce to numbers (see
// numeric), otherwise code-point string comparison. strict, when true, applies the
// rewrite's stricter Open Question decision: a numeric value never
// compares against a genuinely non-numeric string (query/filter.go uses
// strict=true for $gt/$gte/$lt/$lte; sort uses strict=false so mixed-type
// collections still produce a total, stable order).
func Compare(a, b Value, strict bool) (CompareResult, bool) {
	an, aok := numeric(a)
	bn, bok := numeric(b)
	if aok && bok {
		switch {
		case an < bn:
			return Less, true
		case an > bn:
			return Greater, true
		default:
			return EqualTo, true
		}
	}
	if strict && (aok || bok) {
		return 0, false
	}
	as, bs := stringify(a), stringify(b)
	switch {
	case as < bs:
		return Less, true
	case as > bs:
		return Greater, true
	default:
		return EqualTo, true
	}
}

// SortKeys returns the field names of a document value in a stable order,
// used only for deterministic debug rendering - never for persisted
// layout (BSON already preserves field order on the wire).
func (d *Document) SortKeys() []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
