// Package marker defines the per-occurrence idempotency flags used by the
// announcement and auto-advance jobs.
//
// A flag is written only after its action has completed. If the process dies
// in between, the action runs again on the next tick.
package marker

import (
	"context"
	"time"
)

type Markers struct {
	OccurrenceID string
	Announced    bool
	AnnouncedAt  time.Time
	Advanced     bool
	AdvancedAt   time.Time
}

// Store keeps one Markers row per occurrence id. Setters are idempotent
// upserts: they set their own flag and timestamp and never clear the other.
type Store interface {
	GetMarkers(ctx context.Context, occurrenceID string) (Markers, bool, error)
	SetAnnounced(ctx context.Context, occurrenceID string, now time.Time) error
	SetAdvanced(ctx context.Context, occurrenceID string, now time.Time) error
}
