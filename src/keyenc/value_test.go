package keyenc

import (
	"bytes"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"syndrdb-core/src/document"
)

func TestEncodeNumberOrderPreserving(t *testing.T) {
	values := []float64{-100, -10, -1, -0.5, 0, 0.5, 1, 10, 100}
	var encs [][]byte
	for _, v := range values {
		enc := encodeNumber(v)
		encs = append(encs, enc)
	}
	for i := 1; i < len(encs); i++ {
		require.Truef(t, bytes.Compare(encs[i-1], encs[i]) < 0,
			"encode(%v) should sort before encode(%v)", values[i-1], values[i])
	}
}

func TestEncodeNumberRandomPairs(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		a := (r.Float64() - 0.5) * 1e12
		b := (r.Float64() - 0.5) * 1e12
		if a == b {
			continue
		}
		ea, eb := encodeNumber(a), encodeNumber(b)
		if a < b {
			require.True(t, bytes.Compare(ea, eb) < 0, "a=%v b=%v", a, b)
		} else {
			require.True(t, bytes.Compare(ea, eb) > 0, "a=%v b=%v", a, b)
		}
	}
}

func TestEncodeNumberSentinelOrdering(t *testing.T) {
	negInf := encodeNumber(math.Inf(-1))
	finite := encodeNumber(0)
	posInf := encodeNumber(math.Inf(1))
	nan := encodeNumber(math.NaN())

	require.True(t, bytes.Compare(negInf, finite) < 0)
	require.True(t, bytes.Compare(finite, posInf) < 0)
	require.True(t, bytes.Compare(posInf, nan) < 0)
}

func TestEncodeNumberZeroSignIndependent(t *testing.T) {
	pos := encodeNumber(0)
	neg := encodeNumber(math.Copysign(0, -1))
	require.True(t, bytes.Equal(pos, neg), "positive and negative zero must encode identically")
}

func TestDecodeNumberRoundTrip(t *testing.T) {
	for _, v := range []float64{-100, -1, 0, 1, 100, 3.14159} {
		enc := encodeNumber(v)
		got, err := DecodeNumber(enc)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestEncodeValueCrossTypeOrdering(t *testing.T) {
	nullEnc, _ := EncodeValue(document.Null())
	boolEnc, _ := EncodeValue(document.Bool(false))
	numEnc, _ := EncodeValue(document.Number(0))
	strEnc, _ := EncodeValue(document.String(""))
	dateEnc, _ := EncodeValue(document.DateVal(time.Unix(0, 0).UTC()))

	require.True(t, bytes.Compare(nullEnc, boolEnc) < 0)
	require.True(t, bytes.Compare(boolEnc, numEnc) < 0)
	require.True(t, bytes.Compare(numEnc, strEnc) < 0)
	require.True(t, bytes.Compare(strEnc, dateEnc) < 0)
}

func TestEncodeValueStringLenCap(t *testing.T) {
	long := make([]byte, MaxIndexStringLen+1)
	_, err := EncodeValue(document.String(string(long)))
	require.Error(t, err)
}

func TestDecodeIndexKeyRoundTrip(t *testing.T) {
	enc, err := EncodeValue(document.Number(42))
	require.NoError(t, err)
	key := IndexKey("users", "age", enc, "abc123")

	coll, field, entry, ok := DecodeIndexKey(key)
	require.True(t, ok)
	require.Equal(t, "users", coll)
	require.Equal(t, "age", field)
	require.Equal(t, "abc123", entry.ID)
	require.True(t, bytes.Equal(enc, entry.EncodedValue))
}

func TestDecodeIndexKeyMalformed(t *testing.T) {
	_, _, _, ok := DecodeIndexKey([]byte("idx:users:age:novalueseparator"))
	require.False(t, ok)
}

func TestComputeRangeGteLt(t *testing.T) {
	lo := document.Number(25)
	hi := document.Number(40)
	r, err := ComputeRange("users", "age", Bounds{Gte: &lo, Lt: &hi})
	require.NoError(t, err)
	require.True(t, bytes.Compare(r.StartKey, r.EndKey) < 0)
}
