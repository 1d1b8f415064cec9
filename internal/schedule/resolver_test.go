package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapOverrides struct {
	rows map[Date]Override
	// staleMoved lets a test return reverse-index hits that no longer match the row.
	staleMoved map[Date][]Override
	err        error
}

func newMapOverrides() *mapOverrides {
	return &mapOverrides{rows: map[Date]Override{}, staleMoved: map[Date][]Override{}}
}

func (m *mapOverrides) GetOverride(_ context.Context, d Date) (Override, bool, error) {
	if m.err != nil {
		return Override{}, false, m.err
	}
	o, ok := m.rows[d]
	return o, ok, nil
}

func (m *mapOverrides) OverridesMovedTo(_ context.Context, target Date) ([]Override, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := append([]Override(nil), m.staleMoved[target]...)
	for _, o := range m.rows {
		if o.MovedTo != nil && o.MovedTo.Date == target {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mapOverrides) UpsertOverride(_ context.Context, o Override) error {
	m.rows[o.OriginalDate] = o
	return nil
}

func (m *mapOverrides) DeleteOverride(_ context.Context, d Date) error {
	delete(m.rows, d)
	return nil
}

func weeklyMonday(t *testing.T) Rule {
	t.Helper()
	r, err := ParseRule(RuleSpec{TimeZone: "America/Chicago", Frequency: "Weekly", Interval: 1, DayOfWeek: 1, Time: "18:30", AnchorDate: "2025-01-06"})
	require.NoError(t, err)
	return r
}

func movedTo(t *testing.T, s string) *DateTime {
	t.Helper()
	dt, err := ParseDateTime(s)
	require.NoError(t, err)
	return &dt
}

func TestSessionForOriginalDate(t *testing.T) {
	ctx := context.Background()
	rule := weeklyMonday(t)
	store := newMapOverrides()
	res := NewResolver(StaticRule(rule), store)

	_, ok, err := res.SessionForOriginalDate(ctx, mustDate(t, "2025-01-07"))
	require.NoError(t, err)
	require.False(t, ok, "Tuesday is not an occurrence")

	s, ok, err := res.SessionForOriginalDate(ctx, mustDate(t, "2025-01-06"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "default:2025-01-06", s.OccurrenceID)
	assert.Equal(t, time.Date(2025, 1, 6, 18, 30, 0, 0, rule.Location), s.EffectiveStart)
	assert.False(t, s.Cancelled)
	assert.Empty(t, s.Note)

	require.NoError(t, store.UpsertOverride(ctx, Override{OriginalDate: mustDate(t, "2025-01-06"), Cancelled: true, Note: "Sam: sick"}))
	s, ok, err = res.SessionForOriginalDate(ctx, mustDate(t, "2025-01-06"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.Cancelled)
	assert.Equal(t, "Sam: sick", s.Note)
}

func TestMoveChangesWhichDateReturnsSession(t *testing.T) {
	ctx := context.Background()
	rule := weeklyMonday(t)
	store := newMapOverrides()
	res := NewResolver(StaticRule(rule), store)

	require.NoError(t, store.UpsertOverride(ctx, Override{
		OriginalDate: mustDate(t, "2025-01-06"),
		MovedTo:      movedTo(t, "2025-01-08T19:00"),
	}))

	got, err := res.SessionsOn(ctx, mustDate(t, "2025-01-06"))
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = res.SessionsOn(ctx, mustDate(t, "2025-01-08"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mustDate(t, "2025-01-06"), got[0].OriginalDate)
	assert.Equal(t, "default:2025-01-06", got[0].OccurrenceID)
	assert.Equal(t, time.Date(2025, 1, 8, 19, 0, 0, 0, rule.Location), got[0].EffectiveStart)
	assert.True(t, got[0].Moved())
}

func TestMoveWithinSameDayStaysOnDate(t *testing.T) {
	ctx := context.Background()
	rule := weeklyMonday(t)
	store := newMapOverrides()
	res := NewResolver(StaticRule(rule), store)

	require.NoError(t, store.UpsertOverride(ctx, Override{
		OriginalDate: mustDate(t, "2025-01-06"),
		MovedTo:      movedTo(t, "2025-01-06T20:15"),
	}))
	got, err := res.SessionsOn(ctx, mustDate(t, "2025-01-06"))
	require.NoError(t, err)
	require.Len(t, got, 1, "forward and reverse lookups must dedup")
	assert.Equal(t, 20, got[0].EffectiveStart.Hour())
	assert.False(t, got[0].Moved())
}

func TestSessionsOnSortsMultipleMovesOntoOneDay(t *testing.T) {
	ctx := context.Background()
	rule := weeklyMonday(t)
	store := newMapOverrides()
	res := NewResolver(StaticRule(rule), store)

	require.NoError(t, store.UpsertOverride(ctx, Override{OriginalDate: mustDate(t, "2025-01-13"), MovedTo: movedTo(t, "2025-01-20T21:00")}))
	require.NoError(t, store.UpsertOverride(ctx, Override{OriginalDate: mustDate(t, "2025-01-27"), MovedTo: movedTo(t, "2025-01-20T12:00")}))

	got, err := res.SessionsOn(ctx, mustDate(t, "2025-01-20"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	ids := []string{got[0].OccurrenceID, got[1].OccurrenceID, got[2].OccurrenceID}
	assert.Equal(t, []string{"default:2025-01-27", "default:2025-01-20", "default:2025-01-13"}, ids)
}

func TestSessionsOnDropsStaleReverseIndexHits(t *testing.T) {
	ctx := context.Background()
	rule := weeklyMonday(t)
	store := newMapOverrides()
	res := NewResolver(StaticRule(rule), store)

	// The row now points elsewhere, but the scan still reports the old target.
	require.NoError(t, store.UpsertOverride(ctx, Override{OriginalDate: mustDate(t, "2025-01-13"), MovedTo: movedTo(t, "2025-01-16T19:00")}))
	store.staleMoved[mustDate(t, "2025-01-15")] = []Override{{OriginalDate: mustDate(t, "2025-01-13"), MovedTo: movedTo(t, "2025-01-15T19:00")}}

	got, err := res.SessionsOn(ctx, mustDate(t, "2025-01-15"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSessionsOnPropagatesStoreErrors(t *testing.T) {
	store := newMapOverrides()
	store.err = errors.New("disk gone")
	res := NewResolver(StaticRule(weeklyMonday(t)), store)

	_, err := res.SessionsOn(context.Background(), mustDate(t, "2025-01-06"))
	require.Error(t, err)
}

func TestSessionsOnInvalidRule(t *testing.T) {
	res := NewResolver(RuleFunc(func() (Rule, error) { return ParseRule(RuleSpec{TimeZone: "Nope/Nowhere"}) }), newMapOverrides())
	_, err := res.SessionsOn(context.Background(), mustDate(t, "2025-01-06"))
	require.ErrorIs(t, err, ErrInvalidTimeZone)
}

func TestUpcomingSkipsStartedSessionsToday(t *testing.T) {
	ctx := context.Background()
	rule := weeklyMonday(t)
	store := newMapOverrides()
	res := NewResolver(StaticRule(rule), store)
	require.NoError(t, store.UpsertOverride(ctx, Override{OriginalDate: mustDate(t, "2025-01-13"), Cancelled: true}))

	now := time.Date(2025, 1, 6, 19, 0, 0, 0, rule.Location)
	got, err := res.Upcoming(ctx, now, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2025-01-13", got[0].OriginalDate.String())
	assert.True(t, got[0].Cancelled)
	assert.Equal(t, "2025-01-20", got[1].OriginalDate.String())
	assert.Equal(t, "2025-01-27", got[2].OriginalDate.String())

	earlier := time.Date(2025, 1, 6, 9, 0, 0, 0, rule.Location)
	got, err = res.Upcoming(ctx, earlier, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-01-06", got[0].OriginalDate.String())
}

func TestBetweenCoversRange(t *testing.T) {
	rule := weeklyMonday(t)
	res := NewResolver(StaticRule(rule), newMapOverrides())
	got, err := res.Between(context.Background(), mustDate(t, "2025-01-01"), mustDate(t, "2025-01-31"))
	require.NoError(t, err)
	require.Len(t, got, 4)
}
