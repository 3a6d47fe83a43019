// Package l6metrics owns Layer 6 (Metrics) of the attention data model.
//
// Responsibilities: per-observer snapshots built from the running aggregates
// held by l5states, a throttled aggregator for UI polling, and duration
// distribution summaries for reports.
//
// Dependency rule: L6 reads L5 only and never mutates it.
package l6metrics
