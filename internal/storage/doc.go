// Package storage persists the bot's state: per-date schedule overrides,
// per-occurrence markers, rotation rings and the member directory.
//
// Drivers:
//   - "sqlite": a SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory": process-local maps, for tests and dry runs
package storage
