// Package l3tolerance owns Layer 3 (Tolerance) of the attention data model.
//
// Responsibilities: base detector thresholds, the context factor derived from
// observer footprint and agent density, memoised per-observer effective
// thresholds, and hysteresis margins applied while a state is active.
//
// Dependency rule: L3 depends on internal/config only. Observers are keyed by
// plain string ids so that L2 and L3 stay independent.
package l3tolerance
