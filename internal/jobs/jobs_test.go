package jobs_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rotabot/internal/clock"
	"rotabot/internal/jobs"
	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
	"rotabot/internal/storage"
	kit "rotabot/internal/transport"
)

var chat = kit.ChatTarget{ChatID: -1001}

type fixture struct {
	store    *storage.Memory
	resolver *schedule.Resolver
	rot      *rotation.Service
	clk      *clock.FakeClock
}

// newFixture schedules Mondays at 18:30 UTC with DM 11,22,33 and Food 22.
func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	rule, err := schedule.ParseRule(schedule.RuleSpec{
		TimeZone:   "UTC",
		Frequency:  "weekly",
		Interval:   1,
		DayOfWeek:  int(time.Monday),
		Time:       "18:30",
		AnchorDate: "2025-01-06",
	})
	require.NoError(t, err)
	store := storage.NewMemory()
	f := &fixture{
		store:    store,
		resolver: schedule.NewResolver(schedule.StaticRule(rule), store),
		rot:      rotation.NewService(store),
		clk:      clock.NewFake(now),
	}
	ctx := context.Background()
	for _, id := range []rotation.MemberID{11, 22, 33} {
		_, err := f.rot.Add(ctx, rotation.RoleDM, id)
		require.NoError(t, err)
	}
	_, err = f.rot.Add(ctx, rotation.RoleFood, 22)
	require.NoError(t, err)
	require.NoError(t, store.RememberMember(ctx, rotation.Member{ID: 11, Name: "Ana <GM>"}))
	return f
}

type recordingSender struct {
	mu   sync.Mutex
	fail error
	msgs []string
}

func (r *recordingSender) SendText(_ context.Context, _ kit.ChatTarget, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.msgs = append(r.msgs, text)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (f *fixture) announcer(sender jobs.Sender, enabled bool) *jobs.Announcer {
	return jobs.NewAnnouncer(jobs.AnnouncerDeps{
		Resolver:  f.resolver,
		Markers:   f.store,
		Roster:    f.rot,
		Directory: f.store,
		Sender:    sender,
		Clock:     f.clk,
		Settings: func() jobs.AnnounceSettings {
			return jobs.AnnounceSettings{Enabled: enabled, Target: chat, Hour: 9, Minute: 0, Title: "Gloomhaven"}
		},
	})
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBuildMessage(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()
	s, ok, err := f.resolver.SessionForOriginalDate(ctx, schedule.NewDate(2025, time.January, 6))
	require.NoError(t, err)
	require.True(t, ok)

	s.Note = "Who: Ana: bring dice"
	msg, err := jobs.BuildMessage(ctx, s, "", f.rot, f.store)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg, "☀️ <b>Game night tonight!</b>\n🗓️ <b>Monday, Jan 6</b> at <b>6:30 PM</b>"))
	assert.Contains(t, msg, `• 🧙 <b>DM:</b> <a href="tg://user?id=11">Ana &lt;GM&gt;</a>`)
	assert.Contains(t, msg, `• 🍕 <b>Food:</b> <a href="tg://user?id=22">user 22</a>`)
	assert.Contains(t, msg, "📝 <b>Note:</b> Who: Ana: bring dice")

	s.Cancelled = true
	s.Note = "sick"
	msg, err = jobs.BuildMessage(ctx, s, "Gloomhaven", f.rot, f.store)
	require.NoError(t, err)
	assert.Equal(t, "🛑 <b>Gloomhaven is cancelled today</b>\n⏰ <i>Was scheduled for</i> <b>6:30 PM</b>\n\n<b>Reason:</b> sick", msg)
}

func TestBuildMessageEmptyRoster(t *testing.T) {
	store := storage.NewMemory()
	s := schedule.Session{EffectiveStart: time.Date(2025, 1, 6, 18, 30, 0, 0, time.UTC)}
	msg, err := jobs.BuildMessage(context.Background(), s, "", rotation.NewService(store), nil)
	require.NoError(t, err)
	assert.Contains(t, msg, "<b>DM:</b> <i>(not set)</i>")
}

func TestAnnounceIsOncePerOccurrence(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
	sender := &recordingSender{}
	a := f.announcer(sender, true)
	ctx := context.Background()
	monday := schedule.NewDate(2025, time.January, 6)

	res, err := a.Announce(ctx, monday, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	res, err = a.Announce(ctx, monday, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent)
	assert.Equal(t, 1, res.Skipped)

	res, err = a.Announce(ctx, monday, true)
	require.NoError(t, err)
	assert.Len(t, res.Messages, 1)
	assert.Equal(t, 1, sender.count())

	m, ok, err := f.store.GetMarkers(ctx, schedule.OccurrenceID(monday))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.Announced)
	assert.False(t, m.Advanced)
}

func TestAnnounceSendFailureLeavesMarkerUnset(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC))
	sender := &recordingSender{fail: errors.New("network down")}
	a := f.announcer(sender, true)
	ctx := context.Background()
	monday := schedule.NewDate(2025, time.January, 6)

	res, err := a.Announce(ctx, monday, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	_, ok, err := f.store.GetMarkers(ctx, schedule.OccurrenceID(monday))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "network down", a.Snapshot().LastErr)
}

func TestAnnounceMovedSessionFollowsItsNewDay(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	monday := schedule.NewDate(2025, time.January, 6)
	require.NoError(t, f.store.UpsertOverride(ctx, schedule.Override{
		OriginalDate: monday,
		MovedTo:      &schedule.DateTime{Date: monday.AddDays(1), Time: schedule.TimeOfDay{Hour: 19}},
	}))
	sender := &recordingSender{}
	a := f.announcer(sender, true)

	res, err := a.Announce(ctx, monday, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sessions)

	res, err = a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Contains(t, sender.msgs[0], "Tuesday, Jan 7</b> at <b>7:00 PM")
}

func TestAnnouncerRunFiresAtConfiguredTime(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC))
	sender := &recordingSender{}
	a := f.announcer(sender, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	f.clk.WaitForTimers(1)
	assert.True(t, a.Snapshot().NextRun.Equal(time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)))

	f.clk.Advance(time.Hour)
	assert.Equal(t, 0, sender.count())

	f.clk.Advance(time.Hour)
	f.clk.WaitForTimers(1)
	assert.Equal(t, 1, sender.count())
	assert.True(t, a.Snapshot().NextRun.Equal(time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)))

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestAnnouncerIdlesWhenDisabled(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 6, 8, 59, 0, 0, time.UTC))
	sender := &recordingSender{}
	a := f.announcer(sender, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	for i := 0; i < 4; i++ {
		f.clk.WaitForTimers(1)
		f.clk.Advance(jobs.DefaultIdlePoll)
	}
	f.clk.WaitForTimers(1)
	assert.Equal(t, 0, sender.count())
	assert.Equal(t, jobs.PhaseIdle, a.Snapshot().Phase)

	cancel()
	<-done
}

func (f *fixture) advancer(rot jobs.RotationAdvancer, grace time.Duration) *jobs.Advancer {
	return jobs.NewAdvancer(jobs.AdvancerDeps{
		Resolver: f.resolver,
		Markers:  f.store,
		Rotation: rot,
		Clock:    f.clk,
		Settings: func() jobs.AdvanceSettings {
			return jobs.AdvanceSettings{Enabled: true, Every: 5 * time.Minute, Grace: grace}
		},
	})
}

func TestAdvanceHonoursGraceAndMarker(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC))
	ctx := context.Background()
	adv := f.advancer(f.rot, time.Hour)

	n, err := adv.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "inside the grace window")

	f.clk.Advance(time.Hour)
	n, err = adv.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = adv.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already advanced")

	dm, err := f.rot.Get(ctx, rotation.RoleDM)
	require.NoError(t, err)
	assert.Equal(t, 1, dm.Index)
	food, err := f.rot.Get(ctx, rotation.RoleFood)
	require.NoError(t, err)
	assert.Equal(t, 0, food.Index)
}

func TestAdvanceCatchesUpYesterdayAndSkipsCancelled(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 14, 1, 0, 0, 0, time.UTC))
	ctx := context.Background()
	require.NoError(t, f.store.UpsertOverride(ctx, schedule.Override{
		OriginalDate: schedule.NewDate(2025, time.January, 6),
		Cancelled:    true,
		MovedTo:      &schedule.DateTime{Date: schedule.NewDate(2025, time.January, 13), Time: schedule.TimeOfDay{Hour: 12}},
	}))
	adv := f.advancer(f.rot, 0)

	n, err := adv.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m, ok, err := f.store.GetMarkers(ctx, "default:2025-01-13")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.Advanced)
	_, ok, err = f.store.GetMarkers(ctx, "default:2025-01-06")
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingFirst struct {
	inner *rotation.Service
	calls int
}

func (f *failingFirst) Advance(ctx context.Context, role rotation.Role) (rotation.State, error) {
	f.calls++
	if f.calls == 1 {
		return rotation.State{}, errors.New("disk full")
	}
	return f.inner.Advance(ctx, role)
}

func TestAdvanceIsolatesFailures(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()
	// Last week's session moved onto this Monday's afternoon.
	require.NoError(t, f.store.UpsertOverride(ctx, schedule.Override{
		OriginalDate: schedule.NewDate(2025, time.January, 6),
		MovedTo:      &schedule.DateTime{Date: schedule.NewDate(2025, time.January, 13), Time: schedule.TimeOfDay{Hour: 12}},
	}))
	adv := f.advancer(&failingFirst{inner: f.rot}, 0)

	n, err := adv.Tick(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default:2025-01-06")
	assert.Equal(t, 1, n)

	moved, _, err := f.store.GetMarkers(ctx, "default:2025-01-06")
	require.NoError(t, err)
	assert.False(t, moved.Advanced)
	regular, _, err := f.store.GetMarkers(ctx, "default:2025-01-13")
	require.NoError(t, err)
	assert.True(t, regular.Advanced)

	n, err = adv.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdvancerRunTicksOnPeriod(t *testing.T) {
	f := newFixture(t, time.Date(2025, 1, 6, 18, 31, 0, 0, time.UTC))
	adv := f.advancer(f.rot, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- adv.Run(ctx) }()

	f.clk.WaitForTimers(1)
	f.clk.Advance(5 * time.Minute)
	eventually(t, func() bool {
		m, _, _ := f.store.GetMarkers(context.Background(), "default:2025-01-06")
		return m.Advanced
	})

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNextFireUsesRuleZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 12:00 UTC is 08:00 EDT, the day after the DST switch.
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	at, err := jobs.NextFire(now, loc, 9, 15)
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2025, 3, 10, 9, 15, 0, 0, loc)))

	at, err = jobs.NextFire(at, loc, 9, 15)
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2025, 3, 11, 9, 15, 0, 0, loc)))

	_, err = jobs.NextFire(now, loc, 25, 0)
	assert.Error(t, err)
}
