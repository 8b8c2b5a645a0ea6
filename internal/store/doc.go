// Package store is the local tournament cache.
//
// The cache is an embedded SQLite database (ncruces/go-sqlite3, WAL mode)
// holding one row per tournament key. It is the source the presentation
// layer reads from; the reconciliation engine keeps it converged with the
// remote API.
//
// Architecture:
//   - Database file: ~/.local/share/tourney/tourney.db by default
//   - WAL mode: concurrent readers while a writer commits
//   - Writes: serialized by a process-wide mutex and BEGIN IMMEDIATE
//   - Schema: versioned through PRAGMA user_version, additive migrations only
//
// Every committed mutation is announced on the change stream (Subscribe).
// WatchAll builds a live query on top of it: it emits the full ordered list
// once, then again after each change.
//
// An upsert whose content equals the stored row leaves the row untouched,
// including LastUpdated, and announces nothing. Repeating an identical
// refresh therefore produces byte-identical state.
package store
