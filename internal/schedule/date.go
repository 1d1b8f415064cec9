package schedule

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04"
	secondsPerDay  = 24 * 60 * 60
)

// Date is a civil calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate normalizes out-of-range values the same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("date must be yyyy-mm-dd: %q", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) utc() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// DayNumber counts days since 1970-01-01 (negative before it).
func (d Date) DayNumber() int {
	return int(d.utc().Unix() / secondsPerDay)
}

func (d Date) Weekday() time.Weekday { return d.utc().Weekday() }

func (d Date) AddDays(n int) Date { return DateOf(d.utc().AddDate(0, 0, n)) }

// DaysUntil returns other minus d in whole days.
func (d Date) DaysUntil(other Date) int { return other.DayNumber() - d.DayNumber() }

func (d Date) Before(other Date) bool { return d.DayNumber() < other.DayNumber() }
func (d Date) After(other Date) bool  { return d.DayNumber() > other.DayNumber() }

// At anchors the date at the given wall-clock time in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// TimeOfDay is a 24h wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time must be HH:mm (24-hour): %q", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func TimeOfDayOf(t time.Time) TimeOfDay { return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()} }

// DateTime is a civil timestamp, interpreted in the rule's location.
type DateTime struct {
	Date Date
	Time TimeOfDay
}

func ParseDateTime(s string) (DateTime, error) {
	s = strings.TrimSpace(s)
	// Older rows may carry seconds.
	for _, layout := range []string{dateTimeLayout, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateTime{Date: DateOf(t), Time: TimeOfDayOf(t)}, nil
		}
	}
	return DateTime{}, fmt.Errorf("timestamp must be yyyy-mm-ddTHH:mm: %q", s)
}

func (dt DateTime) String() string { return dt.Date.String() + "T" + dt.Time.String() }

func (dt DateTime) In(loc *time.Location) time.Time { return dt.Date.At(dt.Time, loc) }

// DateTimeOf drops seconds and the zone from t.
func DateTimeOf(t time.Time) DateTime { return DateTime{Date: DateOf(t), Time: TimeOfDayOf(t)} }
