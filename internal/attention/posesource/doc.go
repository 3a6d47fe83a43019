// Package posesource provides recorded pose tracks and a playback clock that
// together stand in for the rendering collaborator: Playback implements both
// pipeline.PoseSource and pipeline.Clock.
package posesource
