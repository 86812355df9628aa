// Package storage persists reminders and per-chat settings.
//
// Drivers:
//   - "memory": process-local, for tests and dry runs
//   - "file": dependency-free JSON Lines journal + snapshot
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// Every driver serialises mutations, so a record removed by Complete is never
// returned by a later DueBefore and a regenerated record is never lost between
// the remove and the insert.
package storage
