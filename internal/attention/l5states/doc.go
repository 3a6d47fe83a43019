// Package l5states owns Layer 5 (States) of the attention data model.
//
// Responsibilities: the Inactive → Active → Completed lifecycle for every
// DetectionKey, the append-only event log, per-pair and per-observer indexes,
// and the running aggregates the metrics layer reads. Reset discards open
// states without completing them.
//
// Storage is an arena: agents, observers and (agent, observer) pairs get
// stable integer slots on first sight, events live in two flat slices, and
// per-key lists hold indices into them.
//
// Dependency rule: L5 consumes L4 masks. It never evaluates detectors and
// never reads poses.
package l5states
