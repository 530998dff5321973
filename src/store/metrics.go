package store

import "github.com/VictoriaMetrics/metrics"

// Store-wide counters, grounded on ValentinKolb-dKV's use of
// VictoriaMetrics/metrics for node-level counters (spec §1 places metrics
// collection itself out of scope; these are the counters a front end's
// /metrics endpoint would scrape, not a feature the core implements).
var (
	insertedTotal = metrics.NewCounter("syndrdb_documents_inserted_total")
	updatedTotal  = metrics.NewCounter("syndrdb_documents_updated_total")
	deletedTotal  = metrics.NewCounter("syndrdb_documents_deleted_total")
	findsTotal    = metrics.NewCounter("syndrdb_finds_total")
)
