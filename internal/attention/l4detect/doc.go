// Package l4detect owns Layer 4 (Detection) of the attention data model.
//
// Responsibilities: the closed state taxonomy, per-agent measurements taken
// from the trailing history window (smoothed speed, angular rate, vertical
// gaze angle), per-observer spatial signals, and the rule-based
// classification of those into a StateMask for each (agent, observer) pair
// plus the global pseudo-observer.
//
// Every function here is deterministic: given the same history, volumes,
// thresholds and PairMemory it produces the same masks. PairMemory carries the
// previous tick's raw signals for edge detection and the active set for
// hysteresis; it is owned by the caller.
//
// Dependency rule: L4 may depend on L1, L2 and L3. It never touches event
// state (L5).
package l4detect
