package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"rotabot/internal/clock"
	"rotabot/internal/eventbus"
	"rotabot/internal/marker"
	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
	logx "rotabot/pkg/logx"
)

const DefaultAdvanceEvery = 5 * time.Minute

// RotationAdvancer moves a role's turn forward. rotation.Service satisfies it.
type RotationAdvancer interface {
	Advance(ctx context.Context, role rotation.Role) (rotation.State, error)
}

type AdvanceSettings struct {
	Enabled bool
	Every   time.Duration
	Grace   time.Duration
	Roles   []rotation.Role
}

type AdvancerDeps struct {
	Resolver *schedule.Resolver
	Markers  marker.Store
	Rotation RotationAdvancer
	Settings func() AdvanceSettings
	Clock    clock.Clock
	Log      logx.Logger
	Bus      eventbus.Bus
}

// Advancer rotates every configured role once per finished session.
type Advancer struct {
	d     AdvancerDeps
	track tracker
}

func NewAdvancer(d AdvancerDeps) *Advancer {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	a := &Advancer{d: d}
	a.track.snap.Name = "advance"
	return a
}

func (a *Advancer) Snapshot() Snapshot { return a.track.get() }

func (a *Advancer) period() time.Duration {
	if every := a.d.Settings().Every; every > 0 {
		return every
	}
	return DefaultAdvanceEvery
}

// Run ticks until ctx is cancelled. The first tick happens one period
// after start.
func (a *Advancer) Run(ctx context.Context) error {
	period := a.period()
	ticker := a.d.Clock.NewTicker(period)
	defer ticker.Stop()
	a.track.next(a.d.Clock.Now().Add(period))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if a.d.Settings().Enabled {
			n, err := a.Tick(ctx)
			if err != nil {
				a.d.Log.Error("advance: tick failed", logx.Err(err))
			} else if n > 0 {
				a.d.Log.Info("advance: tick finished", logx.Int("advanced", n))
			}
		}

		if p := a.period(); p != period {
			period = p
			ticker.Reset(period)
		}
		a.track.next(a.d.Clock.Now().Add(period))
	}
}

// Tick advances every eligible occurrence from today and yesterday and
// returns how many were advanced. Failures of one occurrence do not stop
// the others; they are joined into the returned error.
func (a *Advancer) Tick(ctx context.Context) (int, error) {
	st := a.d.Settings()
	now := a.d.Clock.Now()
	a.track.set(PhaseDue)

	local, today, err := a.d.Resolver.LocalNow(now)
	if err != nil {
		a.track.finish(now, 0, err)
		return 0, err
	}
	cutoff := local.Add(-st.Grace)

	var candidates []schedule.Session
	for _, day := range []schedule.Date{today, today.AddDays(-1)} {
		sessions, err := a.d.Resolver.SessionsOn(ctx, day)
		if err != nil {
			err = fmt.Errorf("resolve sessions on %s: %w", day, err)
			a.track.finish(now, 0, err)
			return 0, err
		}
		for _, s := range sessions {
			if !s.Cancelled && !s.EffectiveStart.After(cutoff) {
				candidates = append(candidates, s)
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EffectiveStart.Before(candidates[j].EffectiveStart)
	})

	done := 0
	var errs []error
	seen := map[string]bool{}
	for _, s := range candidates {
		if seen[s.OccurrenceID] {
			continue
		}
		seen[s.OccurrenceID] = true
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		advanced, err := a.advanceOne(ctx, s, st.Roles)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.OccurrenceID, err))
			a.d.Log.Warn("advance: occurrence failed", logx.String("occurrence", s.OccurrenceID), logx.Err(err))
			a.d.Bus.Publish(eventbus.Event{Type: eventbus.AdvanceFailed, Data: eventbus.OccurrenceData{OccurrenceID: s.OccurrenceID, Err: err.Error()}})
			continue
		}
		if advanced {
			done++
		}
	}

	err = errors.Join(errs...)
	a.track.finish(a.d.Clock.Now(), done, err)
	return done, err
}

func (a *Advancer) advanceOne(ctx context.Context, s schedule.Session, roles []rotation.Role) (bool, error) {
	m, ok, err := a.d.Markers.GetMarkers(ctx, s.OccurrenceID)
	if err != nil {
		return false, fmt.Errorf("read markers: %w", err)
	}
	if ok && m.Advanced {
		return false, nil
	}

	if len(roles) == 0 {
		roles = rotation.Roles()
	}
	a.track.set(PhaseActing)
	a.d.Log.Info("advance: rotating", logx.String("occurrence", s.OccurrenceID), logx.Time("start", s.EffectiveStart))
	for _, role := range roles {
		if _, err := a.d.Rotation.Advance(ctx, role); err != nil {
			return false, fmt.Errorf("advance %s: %w", role.Key(), err)
		}
	}

	a.track.set(PhaseRecording)
	if err := a.d.Markers.SetAdvanced(ctx, s.OccurrenceID, a.d.Clock.Now().UTC()); err != nil {
		return false, fmt.Errorf("record marker: %w", err)
	}
	a.d.Bus.Publish(eventbus.Event{Type: eventbus.AdvanceApplied, Data: eventbus.OccurrenceData{OccurrenceID: s.OccurrenceID}})
	return true, nil
}
