// Package queue persists meetings and their transition history, and owns the
// status graph that every stage advances a meeting through.
//
// The meetings table doubles as the work queue: stage workers claim the oldest
// meeting in their pending status, and every status change goes through a
// guarded compare-and-swap update that appends a TransitionRecord in the same
// transaction. The Repository interface abstracts the store so the SQLite
// Store in this package and the Postgres store in queue/postgres are
// interchangeable.
//
// Schema changes bump schemaVersion in schema.go; the transition log is
// append-only and no code path updates or deletes records.
package queue
