// Package metrics provides application-level counters using stdlib expvar.
// Counters are automatically exported on the /debug/vars HTTP endpoint
// when net/http/pprof is imported in the main binary.
package metrics

import "expvar"

// Operation counters.
var (
	EntitiesCreated  = expvar.NewInt("tami_entities_created_total")
	MentionsRecorded = expvar.NewInt("tami_mentions_recorded_total")
	DuplicateScans   = expvar.NewInt("tami_duplicate_scans_total")
	DisambigCalls    = expvar.NewInt("tami_disambig_calls_total")
	MergesTotal      = expvar.NewInt("tami_merges_total")
	MergesFailed     = expvar.NewInt("tami_merges_failed_total")
	OrphansRemoved   = expvar.NewInt("tami_orphans_removed_total")
	CleanupErrors    = expvar.NewInt("tami_cleanup_errors_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }
