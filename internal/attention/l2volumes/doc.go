// Package l2volumes owns Layer 2 (Observers) of the attention data model.
//
// Responsibilities: static observer volume definitions (box or cylinder
// with a yaw rotation and a front face rectangle), point containment and
// gaze ray / face intersection. All functions are pure.
//
// Coordinate convention: Y is up. A volume's Position is the centre of its
// base; its local +Z axis, rotated by Yaw about +Y, is the face normal.
//
// Dependency rule: L2 depends on nothing else in the attention tree.
package l2volumes
