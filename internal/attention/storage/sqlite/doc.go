// Package sqlite persists detected behaviour events to SQLite.
//
// The detection layers never import this package. Events reach it through
// the l5states.Sink interface via Recorder, which buffers them per session
// and writes them in a single transaction on Flush. A reset or recompute
// swap discards the session's stored events so the database mirrors the
// engine's current event set.
//
// The schema is embedded and applied with golang-migrate on Open.
package sqlite
