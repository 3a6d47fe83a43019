// Package report renders detected events for people: an HTML timeline
// with per-state counts (go-echarts) and a PNG duration histogram
// (gonum/plot). Reports read events from l5states and never feed back
// into detection.
package report
