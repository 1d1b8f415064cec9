package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// MaxLookaheadDays bounds Upcoming's forward scan.
const MaxLookaheadDays = 366

// Resolver merges the recurrence rule with stored overrides.
type Resolver struct {
	rules     RuleSource
	overrides OverrideStore
}

func NewResolver(rules RuleSource, overrides OverrideStore) *Resolver {
	return &Resolver{rules: rules, overrides: overrides}
}

func (r *Resolver) Rule() (Rule, error) { return r.rules.Rule() }

// Overrides exposes the underlying store for edit commands.
func (r *Resolver) Overrides() OverrideStore { return r.overrides }

// LocalNow returns now in the rule's zone and today's date there.
func (r *Resolver) LocalNow(now time.Time) (time.Time, Date, error) {
	rule, err := r.rules.Rule()
	if err != nil {
		return time.Time{}, Date{}, err
	}
	local, today := rule.Today(now)
	return local, today, nil
}

// SessionForOriginalDate materializes the occurrence scheduled on date,
// with any override applied. ok is false when date is not an occurrence.
func (r *Resolver) SessionForOriginalDate(ctx context.Context, date Date) (Session, bool, error) {
	rule, err := r.rules.Rule()
	if err != nil {
		return Session{}, false, err
	}
	return r.sessionFor(ctx, rule, date)
}

func (r *Resolver) sessionFor(ctx context.Context, rule Rule, date Date) (Session, bool, error) {
	if !rule.IsOccurrence(date) {
		return Session{}, false, nil
	}
	s := Session{
		OccurrenceID:   OccurrenceID(date),
		OriginalDate:   date,
		EffectiveStart: rule.Start(date),
	}
	o, ok, err := r.overrides.GetOverride(ctx, date)
	if err != nil {
		return Session{}, false, fmt.Errorf("override %s: %w", date, err)
	}
	if ok {
		if o.MovedTo != nil {
			s.EffectiveStart = o.MovedTo.In(rule.loc())
		}
		s.Cancelled = o.Cancelled
		s.Note = o.Note
	}
	return s, true, nil
}

// SessionsOn returns every session whose effective start falls on target,
// including occurrences moved there from other dates. Results are sorted by start.
func (r *Resolver) SessionsOn(ctx context.Context, target Date) ([]Session, error) {
	rule, err := r.rules.Rule()
	if err != nil {
		return nil, err
	}
	return r.sessionsOn(ctx, rule, target)
}

func (r *Resolver) sessionsOn(ctx context.Context, rule Rule, target Date) ([]Session, error) {
	out := make([]Session, 0, 2)
	seen := map[string]bool{}
	add := func(s Session) {
		if seen[s.OccurrenceID] {
			return
		}
		seen[s.OccurrenceID] = true
		out = append(out, s)
	}

	normal, ok, err := r.sessionFor(ctx, rule, target)
	if err != nil {
		return nil, err
	}
	if ok && normal.EffectiveDate() == target {
		add(normal)
	}

	moved, err := r.overrides.OverridesMovedTo(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("overrides moved to %s: %w", target, err)
	}
	for _, o := range moved {
		// Re-resolve: the row may have been edited since the scan.
		s, ok, err := r.sessionFor(ctx, rule, o.OriginalDate)
		if err != nil {
			return nil, err
		}
		if ok && s.EffectiveDate() == target {
			add(s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].EffectiveStart.Before(out[j].EffectiveStart) })
	return out, nil
}

// Upcoming lists up to count sessions starting from today, skipping
// sessions earlier today that already started.
func (r *Resolver) Upcoming(ctx context.Context, now time.Time, count int) ([]Session, error) {
	if count <= 0 {
		return nil, nil
	}
	rule, err := r.rules.Rule()
	if err != nil {
		return nil, err
	}
	local, today := rule.Today(now)
	out := make([]Session, 0, count)
	for i := 0; i < MaxLookaheadDays && len(out) < count; i++ {
		day := today.AddDays(i)
		sessions, err := r.sessionsOn(ctx, rule, day)
		if err != nil {
			return nil, err
		}
		for _, s := range sessions {
			if i == 0 && s.EffectiveStart.Before(local) {
				continue
			}
			out = append(out, s)
			if len(out) >= count {
				break
			}
		}
	}
	return out, nil
}

// Between lists sessions with an effective date in [from, to].
func (r *Resolver) Between(ctx context.Context, from, to Date) ([]Session, error) {
	rule, err := r.rules.Rule()
	if err != nil {
		return nil, err
	}
	var out []Session
	for d := from; !d.After(to); d = d.AddDays(1) {
		sessions, err := r.sessionsOn(ctx, rule, d)
		if err != nil {
			return nil, err
		}
		out = append(out, sessions...)
	}
	return out, nil
}
