// Package pipeline drives the attention layers from a simulation clock.
//
// An Engine samples poses on a fixed simulation-time grid, pushes them into
// the L1 history, evaluates L4 detectors against the L2 volumes with L3
// thresholds and feeds the resulting masks to an L5 manager. Every tick is
// recorded in a tick log; a tolerance or geometry change replays that log
// into a fresh state through PoseAtTime queries and swaps it in atomically.
package pipeline
