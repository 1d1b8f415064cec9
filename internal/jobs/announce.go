package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"rotabot/internal/clock"
	"rotabot/internal/eventbus"
	"rotabot/internal/marker"
	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
	kit "rotabot/internal/transport"
	logx "rotabot/pkg/logx"
)

const DefaultIdlePoll = 30 * time.Second

var ErrAnnounceTargetUnset = errors.New("announcement chat is not set")

// Sender delivers one message. notify.Deliverer satisfies it.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string) error
}

type AnnounceSettings struct {
	Enabled  bool
	Target   kit.ChatTarget
	Hour     int
	Minute   int
	IdlePoll time.Duration
	Title    string
}

type AnnouncerDeps struct {
	Resolver  *schedule.Resolver
	Markers   marker.Store
	Roster    Roster
	Directory rotation.Directory
	Sender    Sender
	Settings  func() AnnounceSettings
	Clock     clock.Clock
	Log       logx.Logger
	Bus       eventbus.Bus
}

// Announcer posts the morning message for each session of the day.
type Announcer struct {
	d     AnnouncerDeps
	track tracker
}

// AnnounceResult summarizes one Announce call.
type AnnounceResult struct {
	Date     schedule.Date
	Sessions int
	Sent     int
	Skipped  int
	Failed   int
	Messages []string
}

func NewAnnouncer(d AnnouncerDeps) *Announcer {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	a := &Announcer{d: d}
	a.track.snap.Name = "announce"
	return a
}

func (a *Announcer) Snapshot() Snapshot { return a.track.get() }

// Run loops until ctx is cancelled.
func (a *Announcer) Run(ctx context.Context) error {
	for {
		st := a.d.Settings()
		idle := st.IdlePoll
		if idle <= 0 {
			idle = DefaultIdlePoll
		}

		if !st.Enabled || st.Target.IsZero() {
			a.track.set(PhaseIdle)
			a.track.next(time.Time{})
			if err := a.sleep(ctx, idle); err != nil {
				return err
			}
			continue
		}

		rule, err := a.d.Resolver.Rule()
		if err != nil {
			a.d.Log.Error("announce: cannot load rule", logx.Err(err))
			a.track.finish(a.d.Clock.Now(), 0, err)
			if err := a.sleep(ctx, idle); err != nil {
				return err
			}
			continue
		}

		now := a.d.Clock.Now()
		at, err := NextFire(now, rule.Location, st.Hour, st.Minute)
		if err != nil {
			a.d.Log.Error("announce: bad fire time", logx.Int("hour", st.Hour), logx.Int("minute", st.Minute), logx.Err(err))
			a.track.finish(now, 0, err)
			if err := a.sleep(ctx, idle); err != nil {
				return err
			}
			continue
		}
		a.track.set(PhaseIdle)
		a.track.next(at)
		a.d.Log.Info("announce: next run", logx.Time("at", at), logx.Duration("in", at.Sub(now)))
		if err := a.sleep(ctx, at.Sub(now)); err != nil {
			return err
		}

		// Settings may have changed while sleeping.
		if st := a.d.Settings(); !st.Enabled || st.Target.IsZero() {
			continue
		}
		res, err := a.RunOnce(ctx)
		switch {
		case err != nil:
			a.d.Log.Error("announce: run failed", logx.Err(err))
		default:
			a.d.Log.Info("announce: run finished", logx.Stringer("date", res.Date), logx.Int("sent", res.Sent), logx.Int("skipped", res.Skipped), logx.Int("failed", res.Failed))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// RunOnce announces today's sessions in the rule's zone.
func (a *Announcer) RunOnce(ctx context.Context) (AnnounceResult, error) {
	_, today, err := a.d.Resolver.LocalNow(a.d.Clock.Now())
	if err != nil {
		a.track.finish(a.d.Clock.Now(), 0, err)
		return AnnounceResult{}, err
	}
	return a.Announce(ctx, today, false)
}

// Announce handles every session effective on date. A dry run only builds
// the messages: nothing is sent and no marker is read or written.
func (a *Announcer) Announce(ctx context.Context, date schedule.Date, dryRun bool) (AnnounceResult, error) {
	res := AnnounceResult{Date: date}
	st := a.d.Settings()
	if !dryRun && st.Target.IsZero() {
		return res, ErrAnnounceTargetUnset
	}

	if !dryRun {
		a.track.set(PhaseDue)
	}
	sessions, err := a.d.Resolver.SessionsOn(ctx, date)
	if err != nil {
		if !dryRun {
			a.track.finish(a.d.Clock.Now(), 0, err)
		}
		return res, fmt.Errorf("resolve sessions on %s: %w", date, err)
	}
	res.Sessions = len(sessions)

	var lastErr error
	for _, s := range sessions {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log := a.d.Log.With(logx.String("occurrence", s.OccurrenceID))

		if !dryRun {
			m, ok, err := a.d.Markers.GetMarkers(ctx, s.OccurrenceID)
			if err != nil {
				log.Warn("announce: read markers failed", logx.Err(err))
				res.Failed++
				lastErr = err
				continue
			}
			if ok && m.Announced {
				res.Skipped++
				continue
			}
		}

		msg, err := BuildMessage(ctx, s, st.Title, a.d.Roster, a.d.Directory)
		if err != nil {
			log.Warn("announce: build message failed", logx.Err(err))
			res.Failed++
			lastErr = err
			continue
		}
		res.Messages = append(res.Messages, msg)
		if dryRun {
			continue
		}

		a.track.set(PhaseActing)
		if err := a.d.Sender.SendText(ctx, st.Target, msg); err != nil {
			log.Warn("announce: send failed", logx.Err(err))
			a.d.Bus.Publish(eventbus.Event{Type: eventbus.AnnounceFailed, Data: eventbus.OccurrenceData{OccurrenceID: s.OccurrenceID, Err: err.Error()}})
			res.Failed++
			lastErr = err
			continue
		}

		a.track.set(PhaseRecording)
		if err := a.d.Markers.SetAnnounced(ctx, s.OccurrenceID, a.d.Clock.Now().UTC()); err != nil {
			// The message is out; a later run may repeat it.
			log.Error("announce: record marker failed", logx.Err(err))
			lastErr = err
		}
		res.Sent++
		a.d.Bus.Publish(eventbus.Event{Type: eventbus.AnnounceSent, Data: eventbus.OccurrenceData{OccurrenceID: s.OccurrenceID}})
	}

	if !dryRun {
		a.track.finish(a.d.Clock.Now(), res.Sent, lastErr)
	}
	return res, nil
}

func (a *Announcer) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.d.Clock.After(d):
		return nil
	}
}

// NextFire returns the first hour:minute strictly after now in loc.
func NextFire(now time.Time, loc *time.Location, hour, minute int) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", minute, hour))
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no fire time for %02d:%02d", hour, minute)
	}
	return next, nil
}
