package query

import (
	"sort"
	"strings"

	"syndrdb-core/src/dberrors"
	"syndrdb-core/src/document"
)

// Shape applies sort, skip, limit, and projection to docs, in that order,
// per spec §4.3.
func Shape(docs []*document.Document, opts Options) ([]*document.Document, error) {
	out := docs
	if len(opts.Sort) > 0 {
		out = sortDocs(out, opts.Sort)
	}

	skip := opts.Skip
	if skip < 0 {
		skip = 0
	}
	if skip > len(out) {
		skip = len(out)
	}
	out = out[skip:]

	limit := opts.Limit
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}

	if len(opts.Projection) > 0 {
		projected, err := applyProjection(out, opts.Projection)
		if err != nil {
			return nil, err
		}
		out = projected
	}
	return out, nil
}

// sortDocs implements spec §4.3's stable multi-key comparator: compare by
// each sort entry in order, numeric-vs-numeric by subtraction (handled by
// document.Compare's non-strict mode), otherwise by code-point order of
// stringified values; null/absent sorts before any non-null value.
func sortDocs(docs []*document.Document, keys Filter) []*document.Document {
	out := make([]*document.Document, len(docs))
	copy(out, docs)

	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range keys {
			desc := toDirection(key.Value) < 0
			path := strings.Split(key.Key, ".")
			vi, oki := out[i].GetPath(path)
			vj, okj := out[j].GetPath(path)

			ni := !oki || vi.IsNullish()
			nj := !okj || vj.IsNullish()
			if ni && !nj {
				return !desc
			}
			if !ni && nj {
				return desc
			}
			if ni && nj {
				continue
			}

			cmp, ok := document.Compare(vi, vj, false)
			if !ok || cmp == document.EqualTo {
				continue
			}
			if desc {
				return cmp == document.Greater
			}
			return cmp == document.Less
		}
		return false
	})
	return out
}

func toDirection(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 1
	}
}

// applyProjection enforces spec §4.3's pure-include / pure-exclude rule
// and rebuilds each document accordingly.
func applyProjection(docs []*document.Document, projection Filter) ([]*document.Document, error) {
	include := false
	exclude := false
	idExcluded := false
	fields := make([]string, 0, len(projection))

	for _, entry := range projection {
		on := toDirection(entry.Value) != 0
		if entry.Key == document.IDField {
			if !on {
				idExcluded = true
			}
			continue
		}
		if on {
			include = true
		} else {
			exclude = true
		}
		fields = append(fields, entry.Key)
	}
	if include && exclude {
		return nil, dberrors.BadValue("projection cannot mix inclusion and exclusion")
	}

	out := make([]*document.Document, len(docs))
	for i, d := range docs {
		if include {
			out[i] = projectInclude(d, fields, idExcluded)
		} else {
			out[i] = projectExclude(d, fields, idExcluded)
		}
	}
	return out, nil
}

func projectInclude(d *document.Document, fields []string, idExcluded bool) *document.Document {
	n := document.New()
	if !idExcluded {
		if v, ok := d.Get(document.IDField); ok {
			n.Set(document.IDField, v)
		}
	}
	for _, f := range fields {
		if v, ok := d.Get(f); ok {
			n.Set(f, v)
		}
	}
	return n
}

func projectExclude(d *document.Document, fields []string, idExcluded bool) *document.Document {
	excluded := make(map[string]struct{}, len(fields)+1)
	for _, f := range fields {
		excluded[f] = struct{}{}
	}
	if idExcluded {
		excluded[document.IDField] = struct{}{}
	}
	n := document.New()
	for _, f := range d.Fields() {
		if _, skip := excluded[f]; skip {
			continue
		}
		v, _ := d.Get(f)
		n.Set(f, v)
	}
	return n
}
