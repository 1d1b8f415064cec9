package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"rotabot/internal/schedule"
	"rotabot/internal/transport/telegram/router"
	logx "rotabot/pkg/logx"
)

const (
	defaultNextCount = 4
	maxNextCount     = 12
)

// defaultMoveTime is used when a move targets a date that is not an
// occurrence of the rule.
var defaultMoveTime = schedule.TimeOfDay{Hour: 18, Minute: 30}

// callerName is the name written in front of notes.
func callerName(req *router.Request) string {
	if name := strings.TrimSpace(req.From.DisplayName()); name != "" {
		return name
	}
	return "Unknown"
}

// PrefixNote writes "who: note", unless the note already starts with that
// prefix in any letter case. Blank notes stay blank.
func PrefixNote(who, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return ""
	}
	prefix := who + ":"
	if len(note) >= len(prefix) && strings.EqualFold(note[:len(prefix)], prefix) {
		return note
	}
	return prefix + " " + note
}

func dateArg(s string) (schedule.Date, error) {
	d, err := schedule.ParseDate(s)
	if err != nil {
		return schedule.Date{}, router.Usagef("Dates must be YYYY-MM-DD.")
	}
	return d, nil
}

func timeArg(args []string) (schedule.TimeOfDay, bool) {
	if len(args) == 0 {
		return schedule.TimeOfDay{}, false
	}
	t, err := schedule.ParseTimeOfDay(args[0])
	return t, err == nil
}

func (b *Bot) cmdNext(ctx context.Context, req *router.Request) error {
	count := defaultNextCount
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil {
			return router.Usagef("Count must be a number.")
		}
		count = min(max(n, 1), maxNextCount)
	}
	sessions, err := b.d.Resolver.Upcoming(ctx, b.d.Clock.Now(), count)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return req.Reply(ctx, "No upcoming sessions found.")
	}
	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		lines = append(lines, sessionLine(s))
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func sessionLine(s schedule.Session) string {
	status := "✅ on"
	if s.Cancelled {
		status = "🛑 cancelled"
	}
	moved := ""
	if s.Moved() {
		moved = fmt.Sprintf(" (moved from %s)", s.OriginalDate)
	}
	note := ""
	if n := strings.TrimSpace(s.Note); n != "" {
		note = ": " + html.EscapeString(n)
	}
	start := s.EffectiveStart
	return fmt.Sprintf("• <b>%s</b> @ %s, %s%s%s", start.Format("Mon, Jan 2"), start.Format("3:04 PM"), status, moved, note)
}

// cmdCancel marks an occurrence cancelled and keeps any move.
func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return router.Usagef("Usage: /cancel <yyyy-mm-dd> [reason]")
	}
	d, err := dateArg(req.Args[0])
	if err != nil {
		return err
	}
	store := b.d.Resolver.Overrides()
	o, _, err := store.GetOverride(ctx, d)
	if err != nil {
		return err
	}
	o.OriginalDate = d
	o.Cancelled = true
	if reason := strings.Join(req.Args[1:], " "); strings.TrimSpace(reason) != "" {
		o.Note = PrefixNote(callerName(req), reason)
	}
	o.UpdatedAt = b.d.Clock.Now().UTC()
	if err := store.UpsertOverride(ctx, o); err != nil {
		return err
	}
	req.Logger.Info("occurrence cancelled", logx.Stringer("date", d))
	return req.Reply(ctx, fmt.Sprintf("Cancelled occurrence <b>%s</b>.%s", d, b.offRuleHint(ctx, d)))
}

// cmdMove moves an occurrence and keeps its cancel flag.
func (b *Bot) cmdMove(ctx context.Context, req *router.Request) error {
	const usage = "/move <yyyy-mm-dd> <new yyyy-mm-dd> [HH:mm] [note]"
	if len(req.Args) < 2 {
		return router.Usagef("Usage: %s", usage)
	}
	orig, err := dateArg(req.Args[0])
	if err != nil {
		return err
	}
	target, err := dateArg(req.Args[1])
	if err != nil {
		return err
	}
	rest := req.Args[2:]

	// A leading HH:mm is the new time; anything else starts the note.
	var at schedule.TimeOfDay
	if t, ok := timeArg(rest); ok {
		at = t
		rest = rest[1:]
	} else {
		at = defaultMoveTime
		s, ok, err := b.d.Resolver.SessionForOriginalDate(ctx, orig)
		if err != nil {
			return err
		}
		if ok {
			at = schedule.TimeOfDayOf(s.EffectiveStart)
		}
	}

	store := b.d.Resolver.Overrides()
	o, _, err := store.GetOverride(ctx, orig)
	if err != nil {
		return err
	}
	o.OriginalDate = orig
	o.MovedTo = &schedule.DateTime{Date: target, Time: at}
	if note := strings.Join(rest, " "); strings.TrimSpace(note) != "" {
		o.Note = PrefixNote(callerName(req), note)
	}
	o.UpdatedAt = b.d.Clock.Now().UTC()
	if err := store.UpsertOverride(ctx, o); err != nil {
		return err
	}
	req.Logger.Info("occurrence moved", logx.Stringer("date", orig), logx.Stringer("moved_to", *o.MovedTo))
	return req.Reply(ctx, fmt.Sprintf("Moved occurrence <b>%s</b> → <b>%s %s</b>.%s", orig, target, at, b.offRuleHint(ctx, orig)))
}

func (b *Bot) cmdClear(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return router.Usagef("Usage: /clear <yyyy-mm-dd>")
	}
	d, err := dateArg(req.Args[0])
	if err != nil {
		return err
	}
	if err := b.d.Resolver.Overrides().DeleteOverride(ctx, d); err != nil {
		return err
	}
	req.Logger.Info("override cleared", logx.Stringer("date", d))
	return req.Reply(ctx, fmt.Sprintf("Cleared override for <b>%s</b>.", d))
}

// offRuleHint warns when an edit targets a date the rule never produces;
// such overrides are stored but have no effect.
func (b *Bot) offRuleHint(ctx context.Context, d schedule.Date) string {
	_, ok, err := b.d.Resolver.SessionForOriginalDate(ctx, d)
	if err != nil || ok {
		return ""
	}
	return "\n<i>Note: that date is not a scheduled occurrence.</i>"
}

func (b *Bot) cmdSchedule(ctx context.Context, req *router.Request) error {
	rule, err := b.d.Resolver.Rule()
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("🗓️ <b>%s</b>: %s", html.EscapeString(b.title()), html.EscapeString(rule.Describe())))
}
