package schedule

import (
	"context"
	"time"
)

// Session is one materialized occurrence. It is derived on every query and never stored.
type Session struct {
	OccurrenceID   string
	OriginalDate   Date
	EffectiveStart time.Time
	Cancelled      bool
	Note           string
}

// OccurrenceID depends on the original date only, so it survives moves.
func OccurrenceID(original Date) string { return "default:" + original.String() }

func (s Session) EffectiveDate() Date { return DateOf(s.EffectiveStart) }

// Moved reports whether the session happens on a different day than scheduled.
func (s Session) Moved() bool { return s.EffectiveDate() != s.OriginalDate }

// Override is the latest cancel/move/note edit for one original date.
type Override struct {
	OriginalDate Date
	Cancelled    bool
	MovedTo      *DateTime
	Note         string
	UpdatedAt    time.Time
}

// OverrideStore persists overrides keyed by original date.
// A missing row is reported as ok=false, never as an error.
type OverrideStore interface {
	GetOverride(ctx context.Context, original Date) (Override, bool, error)
	OverridesMovedTo(ctx context.Context, target Date) ([]Override, error)
	UpsertOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, original Date) error
}

// RuleSource yields the current rule. Implementations re-read configuration
// on every call so edits apply without a restart.
type RuleSource interface {
	Rule() (Rule, error)
}

type RuleFunc func() (Rule, error)

func (f RuleFunc) Rule() (Rule, error) { return f() }

// StaticRule always returns the same rule.
func StaticRule(r Rule) RuleSource { return RuleFunc(func() (Rule, error) { return r, nil }) }
