// Package l1history owns Layer 1 (History) of the attention data model.
//
// Responsibilities: per-agent bounded ring buffers of timestamped pose
// samples, trailing-window lookups for the detectors, and clearing on
// simulation reset.
// Key types: PoseSample, Ring, Store.
//
// Dependency rule: L1 depends on nothing else in the attention tree.
package l1history
