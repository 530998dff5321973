package store

import (
	"go.mongodb.org/mongo-driver/bson"

	"syndrdb-core/src/dberrors"
	"syndrdb-core/src/document"
)

// sanitizeFilterTree applies the same dangerous-key/depth-cap rule
// document.Document.Sanitize enforces (spec §4.4) to a bson.D-shaped
// filter/update tree, which - unlike a stored document - may contain
// operator sub-documents and arrays the Document type never holds.
func sanitizeFilterTree(v interface{}, depth int) error {
	if depth > document.MaxSanitizeDepth {
		return dberrors.BadValue("filter nesting exceeds maximum depth of %d", document.MaxSanitizeDepth)
	}
	switch t := v.(type) {
	case bson.D:
		for _, e := range t {
			if err := checkDangerousKey(e.Key); err != nil {
				return err
			}
			if err := sanitizeFilterTree(e.Value, depth+1); err != nil {
				return err
			}
		}
	case bson.M:
		for k, e := range t {
			if err := checkDangerousKey(k); err != nil {
				return err
			}
			if err := sanitizeFilterTree(e, depth+1); err != nil {
				return err
			}
		}
	case map[string]interface{}:
		for k, e := range t {
			if err := checkDangerousKey(k); err != nil {
				return err
			}
			if err := sanitizeFilterTree(e, depth+1); err != nil {
				return err
			}
		}
	case bson.A:
		for _, e := range t {
			if err := sanitizeFilterTree(e, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, e := range t {
			if err := sanitizeFilterTree(e, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkDangerousKey(key string) error {
	switch key {
	case "__proto__", "constructor", "prototype":
		return dberrors.BadValue("field name %q is not allowed", key)
	}
	return nil
}
