package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidTimeZone = errors.New("invalid time zone")
	ErrInvalidRule     = errors.New("invalid recurrence rule")
)

type Frequency int

const (
	Weekly Frequency = iota
	Monthly
)

func (f Frequency) String() string {
	if f == Monthly {
		return "Monthly"
	}
	return "Weekly"
}

func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	default:
		return Weekly, fmt.Errorf("%w: frequency must be Weekly or Monthly, got %q", ErrInvalidRule, s)
	}
}

// LastWeek selects the last matching weekday of a month.
const LastWeek = -1

// RuleSpec is the raw configuration surface of a recurrence rule.
type RuleSpec struct {
	TimeZone    string
	Frequency   string
	Interval    int
	DayOfWeek   int
	Time        string
	MonthlyWeek int
	AnchorDate  string
}

// Rule decides which calendar dates carry a base occurrence.
// A Rule returned by ParseRule is always in range.
type Rule struct {
	Location    *time.Location
	Frequency   Frequency
	Interval    int
	Weekday     time.Weekday
	Time        TimeOfDay
	MonthlyWeek int
	Anchor      Date
}

// ParseRule builds a Rule from its configuration.
// Out-of-range numeric fields are clamped, never rejected.
func ParseRule(spec RuleSpec) (Rule, error) {
	tz := strings.TrimSpace(spec.TimeZone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %q", ErrInvalidTimeZone, spec.TimeZone)
	}
	freq, err := ParseFrequency(spec.Frequency)
	if err != nil {
		return Rule{}, err
	}
	tod := TimeOfDay{Hour: 18, Minute: 30}
	if strings.TrimSpace(spec.Time) != "" {
		if tod, err = ParseTimeOfDay(spec.Time); err != nil {
			return Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	}
	anchor := NewDate(2025, time.January, 1)
	if strings.TrimSpace(spec.AnchorDate) != "" {
		if anchor, err = ParseDate(spec.AnchorDate); err != nil {
			return Rule{}, fmt.Errorf("%w: anchor %v", ErrInvalidRule, err)
		}
	}
	return Rule{
		Location:    loc,
		Frequency:   freq,
		Interval:    ClampInterval(spec.Interval),
		Weekday:     time.Weekday(clamp(spec.DayOfWeek, 0, 6)),
		Time:        tod,
		MonthlyWeek: ClampMonthlyWeek(spec.MonthlyWeek),
		Anchor:      anchor,
	}, nil
}

func ClampInterval(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ClampMonthlyWeek maps any value onto {1..5, -1}.
func ClampMonthlyWeek(w int) int {
	switch {
	case w == LastWeek:
		return LastWeek
	case w < LastWeek:
		return LastWeek
	case w == 0:
		return 1
	case w > 5:
		return 5
	default:
		return w
	}
}

// IsOccurrence reports whether d is a base occurrence date.
func (r Rule) IsOccurrence(d Date) bool {
	interval := ClampInterval(r.Interval)
	switch r.Frequency {
	case Monthly:
		occ := NthWeekdayOfMonth(d.Year, d.Month, r.Weekday, r.MonthlyWeek)
		if occ != d {
			return false
		}
		anchorOcc := NthWeekdayOfMonth(r.Anchor.Year, r.Anchor.Month, r.Weekday, r.MonthlyWeek)
		return mod(monthsBetween(anchorOcc, occ), interval) == 0
	default:
		if d.Weekday() != r.Weekday {
			return false
		}
		aligned := r.Anchor.AddDays(-mod(int(r.Anchor.Weekday())-int(r.Weekday), 7))
		weeks := aligned.DaysUntil(d) / 7
		return mod(weeks, interval) == 0
	}
}

// Start is the base start of the occurrence on d.
func (r Rule) Start(d Date) time.Time { return d.At(r.Time, r.loc()) }

func (r Rule) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Today returns now in the rule's zone and that calendar date.
func (r Rule) Today(now time.Time) (time.Time, Date) {
	local := now.In(r.loc())
	return local, DateOf(local)
}

func (r Rule) Describe() string {
	every := "every week"
	if r.Interval > 1 {
		every = fmt.Sprintf("every %d weeks", r.Interval)
	}
	day := r.Weekday.String()
	if r.Frequency == Monthly {
		every = "every month"
		if r.Interval > 1 {
			every = fmt.Sprintf("every %d months", r.Interval)
		}
		day = weekOrdinal(r.MonthlyWeek) + " " + day
	}
	return fmt.Sprintf("%s, %s at %s (%s), anchored %s", every, day, r.Time, r.loc(), r.Anchor)
}

func weekOrdinal(w int) string {
	switch w {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	case LastWeek:
		return "last"
	default:
		return fmt.Sprintf("%dth", w)
	}
}

// NthWeekdayOfMonth returns the week-th dow of the month, or the last one
// when week is -1 or the month has no such week.
func NthWeekdayOfMonth(year int, month time.Month, dow time.Weekday, week int) Date {
	if week == LastWeek {
		return lastWeekdayOfMonth(year, month, dow)
	}
	week = clamp(week, 1, 5)
	first := NewDate(year, month, 1)
	d := first.AddDays(mod(int(dow)-int(first.Weekday()), 7) + (week-1)*7)
	if d.Month != month {
		return lastWeekdayOfMonth(year, month, dow)
	}
	return d
}

func lastWeekdayOfMonth(year int, month time.Month, dow time.Weekday) Date {
	last := NewDate(year, month+1, 0)
	return last.AddDays(-mod(int(last.Weekday())-int(dow), 7))
}

func monthsBetween(from, to Date) int {
	return (to.Year-from.Year)*12 + int(to.Month) - int(from.Month)
}

// mod is non-negative for positive m.
func mod(a, m int) int {
	if m <= 0 {
		return 0
	}
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
