package keyenc

import (
	"bytes"
	"fmt"
)

// Keyspace prefixes (spec §4.1). The separating colons after the fixed
// tokens are positional, not structural - collection and field names are
// validated to exclude ':' so scanning for the first colons is
// unambiguous.
const (
	docPrefix  = "doc:"
	idxPrefix  = "idx:"
	metaPrefix = "meta:collection:"
)

// DocKey builds the key for a document row: doc:<collection>:<id>.
func DocKey(collection, id string) []byte {
	return []byte(docPrefix + collection + ":" + id)
}

// DocPrefix builds the scan prefix for every document row in a
// collection: doc:<collection>:.
func DocPrefix(collection string) []byte {
	return []byte(docPrefix + collection + ":")
}

// MetaKey builds the key for a collection's metadata row.
func MetaKey(collection string) []byte {
	return []byte(metaPrefix + collection)
}

// MetaPrefix builds the scan prefix covering every collection's metadata
// row, used to enumerate collections.
func MetaPrefix() []byte {
	return []byte(metaPrefix)
}

// IndexPrefix builds the scan prefix for every row of one index:
// idx:<collection>:<field>:.
func IndexPrefix(collection, field string) []byte {
	return []byte(idxPrefix + collection + ":" + field + ":")
}

// IndexKey builds a single index row key:
// idx:<collection>:<field>:<encodedValue><US><id>.
func IndexKey(collection, field string, encodedValue []byte, id string) []byte {
	p := IndexPrefix(collection, field)
	out := make([]byte, 0, len(p)+len(encodedValue)+1+len(id))
	out = append(out, p...)
	out = append(out, encodedValue...)
	out = append(out, US)
	out = append(out, id...)
	return out
}

// DocIDFromKey recovers the id suffix from a document row key, given the
// collection prefix it was built with.
func DocIDFromKey(collection string, key []byte) (string, error) {
	p := DocPrefix(collection)
	if !bytes.HasPrefix(key, p) {
		return "", fmt.Errorf("keyenc: key %q is not a document row for collection %q", key, collection)
	}
	return string(key[len(p):]), nil
}

// DecodedIndexEntry is an index row key split into its two meaningful
// parts (spec §4.2's "index key decoding").
type DecodedIndexEntry struct {
	EncodedValue []byte
	ID           string
}

// DecodeIndexKey finds the third ':' from the left (splitting off the
// idx:<collection>:<field>: prefix) and then the last US byte in the
// remainder, splitting <encodedValue><US><id>. Returns ok=false if the
// key is malformed (no US byte found), per spec §4.2.
func DecodeIndexKey(key []byte) (collection, field string, entry DecodedIndexEntry, ok bool) {
	// First colon ends "idx", second ends collection, third ends field.
	idx1 := bytes.IndexByte(key, ':')
	if idx1 < 0 {
		return "", "", entry, false
	}
	idx2 := bytes.IndexByte(key[idx1+1:], ':')
	if idx2 < 0 {
		return "", "", entry, false
	}
	idx2 += idx1 + 1
	idx3 := bytes.IndexByte(key[idx2+1:], ':')
	if idx3 < 0 {
		return "", "", entry, false
	}
	idx3 += idx2 + 1

	collection = string(key[idx1+1 : idx2])
	field = string(key[idx2+1 : idx3])

	tail := key[idx3+1:]
	usPos := bytes.LastIndexByte(tail, US)
	if usPos < 0 {
		return "", "", entry, false
	}
	entry = DecodedIndexEntry{
		EncodedValue: tail[:usPos],
		ID:           string(tail[usPos+1:]),
	}
	return collection, field, entry, true
}
