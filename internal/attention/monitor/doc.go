// Package monitor serves a small HTTP API over a running detection
// engine: per-observer metrics, event and active-state listings, a
// tolerance update endpoint that triggers a recompute, stored sessions
// when an event store is attached, and a debug HTML timeline.
//
// Handlers only read through l5states queries and l6metrics snapshots,
// so they never block on a recompute in progress.
package monitor
