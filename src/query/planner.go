package query

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"syndrdb-core/src/document"
	"syndrdb-core/src/indexmgr"
	"syndrdb-core/src/keyenc"
)

// PlanKind distinguishes the two shapes a plan can take (spec §4.3).
type PlanKind int

const (
	CollectionScan PlanKind = iota
	IndexScan
)

// Plan is the planner's output: which scan to run, and whether its
// results still need the residual filter applied.
type Plan struct {
	Kind            PlanKind
	Field           string
	IndexName       string
	Range           keyenc.Range
	NeedsPostFilter bool
	// CostEstimate is informational only (spec §4.3): 0 for an empty
	// filter, 1 for an index scan, 2 for a collection scan.
	CostEstimate int
}

// rangeOps is the set of operators the planner treats as range-bound
// (as opposed to $ne/$in/$nin/$exists, which force a post-filter).
var rangeOps = map[string]bool{"$gt": true, "$gte": true, "$lt": true, "$lte": true, "$eq": true}

// SelectPlan implements spec §4.3's plan-selection rules over filter,
// given the indexes currently defined on collection.
func SelectPlan(collection string, filter Filter, indexes []indexmgr.IndexDef) (Plan, error) {
	if len(filter) == 0 {
		return Plan{Kind: CollectionScan, CostEstimate: 0}, nil
	}

	if p, ok, err := planFromEntries(collection, filter, filter, indexes); err != nil {
		return Plan{}, err
	} else if ok {
		return p, nil
	}

	for _, entry := range filter {
		switch entry.Key {
		case "$and":
			arr, ok := asArray(entry.Value)
			if !ok {
				continue
			}
			for _, sub := range arr {
				subFilter, ok := asDoc(sub)
				if !ok {
					continue
				}
				if p, ok, err := planFromEntries(collection, filter, subFilter, indexes); err != nil {
					return Plan{}, err
				} else if ok {
					p.NeedsPostFilter = true
					return p, nil
				}
			}
		case "$or":
			arr, ok := asArray(entry.Value)
			if !ok {
				continue
			}
			for _, sub := range arr {
				subFilter, ok := asDoc(sub)
				if !ok {
					continue
				}
				if p, ok, err := planFromEntries(collection, filter, subFilter, indexes); err != nil {
					return Plan{}, err
				} else if ok {
					p.NeedsPostFilter = true
					return p, nil
				}
			}
		}
	}

	return Plan{Kind: CollectionScan, NeedsPostFilter: true, CostEstimate: 2}, nil
}

// planFromEntries scans entries (which may be the top-level filter or a
// $and/$or sub-filter) for the first entry naming an indexed field, per
// rule 2. fullFilter is the original top-level filter, used to decide
// whether any other non-operator field exists alongside the matched one.
func planFromEntries(collection string, fullFilter, entries bson.D, indexes []indexmgr.IndexDef) (Plan, bool, error) {
	indexed := make(map[string]indexmgr.IndexDef, len(indexes))
	for _, idx := range indexes {
		indexed[idx.Field] = idx
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Key, "$") {
			continue
		}
		idx, ok := indexed[entry.Key]
		if !ok {
			continue
		}

		bounds, nonRangeOp, isFilterShape := extractBounds(entry.Value)
		if !isFilterShape {
			continue
		}
		if bounds.Empty() {
			continue
		}

		r, err := keyenc.ComputeRange(collection, entry.Key, bounds)
		if err != nil {
			return Plan{}, false, err
		}

		needsPost := nonRangeOp || otherFieldsExist(fullFilter, entry.Key)
		return Plan{
			Kind:            IndexScan,
			Field:           entry.Key,
			IndexName:       idx.Name,
			Range:           r,
			NeedsPostFilter: needsPost,
			CostEstimate:    1,
		}, true, nil
	}
	return Plan{}, false, nil
}

// extractBounds reads one filter entry's value as either a scalar
// ($eq shorthand) or an operator object, returning the range-operator
// bound set, whether a non-range operator was also present, and whether
// the value had a shape the planner can use at all (a bare sub-document,
// whether empty or meant as a nested-equality target, is not operator
// shape and yields isFilterShape=false, which plan selection skips).
func extractBounds(v interface{}) (bounds keyenc.Bounds, hasNonRangeOp bool, isFilterShape bool) {
	opDoc, ok := asDoc(v)
	if !ok {
		val, err := document.FromGo(v)
		if err != nil {
			return keyenc.Bounds{}, false, false
		}
		bounds.Eq = &val
		return bounds, false, true
	}
	if !isOperatorDoc(opDoc) {
		return keyenc.Bounds{}, false, false
	}

	for _, op := range opDoc {
		if !rangeOps[op.Key] {
			hasNonRangeOp = true
			continue
		}
		val, err := document.FromGo(op.Value)
		if err != nil {
			return keyenc.Bounds{}, false, false
		}
		switch op.Key {
		case "$eq":
			bounds.Eq = &val
		case "$gt":
			bounds.Gt = &val
		case "$gte":
			bounds.Gte = &val
		case "$lt":
			bounds.Lt = &val
		case "$lte":
			bounds.Lte = &val
		}
	}
	// keyenc.ComputeRange ignores the other bounds when $eq is set, so
	// they are left to the residual filter.
	if bounds.Eq != nil && (bounds.Gt != nil || bounds.Gte != nil || bounds.Lt != nil || bounds.Lte != nil) {
		hasNonRangeOp = true
	}
	return bounds, hasNonRangeOp, true
}

// otherFieldsExist reports whether fullFilter names any non-operator
// field besides matched.
func otherFieldsExist(fullFilter bson.D, matched string) bool {
	for _, entry := range fullFilter {
		if strings.HasPrefix(entry.Key, "$") {
			continue
		}
		if entry.Key != matched {
			return true
		}
	}
	return false
}
