// Package keyenc implements the sort-order-preserving byte encodings of
// spec §4.1: document/index/metadata key layout and the cross-type value
// encoding used inside index keys.
//
// Grounded on btree_index/btree_service.go's IndexTuple{Key []byte} and
// the encode-then-bytes.Compare discipline btree_storage_engine.go's
// FindRange already uses for fixed-width fields (decodeTID et al.).
package keyenc

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"syndrdb-core/src/document"
)

// US is the Unit Separator byte delimiting an index key's encoded value
// from the document id it points to. It never appears inside a null,
// boolean, number or date encoding (tag digits, hex digits and the number
// class markers 0x00/0x80/0xFE/0xFF) or inside a validated field/collection
// name. A string payload is stored raw and may contain it, which is why
// DecodeIndexKey splits at the last US byte.
const US = 0x1F

// MaxIndexStringLen is the length cap on string values indexed (spec
// §4.1); longer values are an index error.
const MaxIndexStringLen = 1024

// Type tags, in the cross-type sort order spec §4.1 defines.
const (
	tagNull   = '0'
	tagBool   = '1'
	tagNumber = '2'
	tagString = '3'
	tagDate   = '4'
)

// EncodeValue produces the sort-preserving byte encoding of v for use
// inside an index key. Returns an error only for an over-length string
// (spec §4.1's "rejected as an index error").
func EncodeValue(v document.Value) ([]byte, error) {
	switch v.Kind {
	case document.KindNull:
		return []byte{tagNull, ':'}, nil
	case document.KindBool:
		if v.Bool {
			return []byte{tagBool, ':', '1'}, nil
		}
		return []byte{tagBool, ':', '0'}, nil
	case document.KindNumber:
		return encodeNumber(v.Num), nil
	case document.KindString:
		if len(v.Str) > MaxIndexStringLen {
			return nil, fmt.Errorf("keyenc: string value of length %d exceeds index cap of %d", len(v.Str), MaxIndexStringLen)
		}
		out := make([]byte, 0, 2+len(v.Str))
		out = append(out, tagString, ':')
		out = append(out, v.Str...)
		return out, nil
	case document.KindDate:
		ms := v.Date.UnixMilli()
		if ms < 0 {
			ms = 0 // pre-epoch dates unsupported for indexing, per spec §4.1
		}
		out := make([]byte, 0, 2+16)
		out = append(out, tagDate, ':')
		out = appendHex16(out, uint64(ms))
		return out, nil
	default:
		return nil, fmt.Errorf("keyenc: value kind %d cannot be indexed", v.Kind)
	}
}

// encodeNumber implements spec §4.1's number encoding: sentinel finites
// for NaN/+Inf/-Inf, and the IEEE-754 order-preserving transform for
// everything else.
//
// Pinned ordering (DESIGN.md Open Question): -Inf < every finite double
// (by value) < +Inf < NaN. Each class gets its own one-byte marker
// (0x00, 0x80, 0xFE, 0xFF in that order) immediately after the "2:" tag,
// so the classes compare correctly against each other regardless of what
// follows; only the finite class's marker is followed by the 16-hex-digit
// transformed payload.
func encodeNumber(f float64) []byte {
	switch {
	case math.IsNaN(f):
		return []byte{tagNumber, ':', 0xFF, 'N'}
	case math.IsInf(f, 1):
		return []byte{tagNumber, ':', 0xFE, 'Z'}
	case math.IsInf(f, -1):
		return []byte{tagNumber, ':', 0x00, 'A'}
	default:
		bits := math.Float64bits(f)
		if f == 0 {
			bits = 0 // -0 encodes exactly like +0
		}
		if f >= 0 || (f == 0 && !math.Signbit(f)) {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		out := make([]byte, 0, 2+1+16)
		out = append(out, tagNumber, ':', 0x80)
		out = appendHex16(out, bits)
		return out
	}
}

func appendHex16(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	enc := make([]byte, 16)
	hex.Encode(enc, buf[:])
	return append(dst, enc...)
}

// DecodeNumber is the inverse of encodeNumber's finite-path transform,
// used by tests to pin the ordering contract. It is not required by any
// store operation (index rows are never decoded back to a typed value -
// only compared as bytes), but is exported for property tests (spec §8,
// property 2).
func DecodeNumber(enc []byte) (float64, error) {
	if len(enc) < 3 || enc[0] != tagNumber || enc[1] != ':' {
		return 0, fmt.Errorf("keyenc: not a number encoding")
	}
	payload := enc[2:]
	switch {
	case len(payload) >= 2 && payload[0] == 0xFF:
		return math.NaN(), nil
	case len(payload) >= 2 && payload[0] == 0xFE:
		return math.Inf(1), nil
	case len(payload) >= 2 && payload[0] == 0x00:
		return math.Inf(-1), nil
	case len(payload) >= 1+16 && payload[0] == 0x80:
		hexPart := payload[1:17]
		raw := make([]byte, 8)
		if _, err := hex.Decode(raw, hexPart); err != nil {
			return 0, err
		}
		bits := binary.BigEndian.Uint64(raw)
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), nil
	default:
		return 0, fmt.Errorf("keyenc: malformed number encoding")
	}
}
