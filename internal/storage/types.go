package storage

import (
	"errors"
	"time"

	"rotabot/internal/marker"
	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "memory": in-process maps (nothing survives a restart)
//
// An empty Driver means "sqlite".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is every persistence port the bot needs, behind one handle.
// Each method is a single-row read or an atomic upsert; there is no
// cross-row transaction and concurrent writers to one row resolve as
// last-writer-wins.
type Store interface {
	schedule.OverrideStore
	marker.Store
	rotation.Store
	rotation.Directory
	Close() error
}
