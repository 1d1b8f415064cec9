// Package calendar exports resolved sessions as an iCalendar feed.
package calendar

import (
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"rotabot/internal/schedule"
)

const (
	DefaultLength = 3 * time.Hour
	productID     = "-//rotabot//sessions//EN"
)

type Options struct {
	Title string
	// Length is how long each event lasts. Sessions carry a start only.
	Length time.Duration
	// Stamp is written as DTSTAMP; zero means time.Now.
	Stamp time.Time
}

// Export renders sessions as a VCALENDAR. Each event's UID is derived from
// the occurrence id, so re-imports update moved sessions in place.
func Export(sessions []schedule.Session, opt Options) string {
	title := strings.TrimSpace(opt.Title)
	if title == "" {
		title = "Game night"
	}
	length := opt.Length
	if length <= 0 {
		length = DefaultLength
	}
	stamp := opt.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(title)

	for _, s := range sessions {
		ev := cal.AddEvent(UID(s))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(s.EffectiveStart.UTC())
		ev.SetEndAt(s.EffectiveStart.Add(length).UTC())
		summary := title
		if s.Cancelled {
			summary += " (cancelled)"
			ev.SetStatus(ics.ObjectStatusCancelled)
		} else {
			ev.SetStatus(ics.ObjectStatusConfirmed)
		}
		ev.SetSummary(summary)
		if desc := description(s); desc != "" {
			ev.SetDescription(desc)
		}
	}
	return cal.Serialize()
}

func UID(s schedule.Session) string {
	return strings.ReplaceAll(s.OccurrenceID, ":", "-") + "@rotabot"
}

func description(s schedule.Session) string {
	var parts []string
	if s.Moved() {
		parts = append(parts, "Moved from "+s.OriginalDate.String())
	}
	if note := strings.TrimSpace(s.Note); note != "" {
		parts = append(parts, note)
	}
	return strings.Join(parts, "\n")
}
