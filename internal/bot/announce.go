package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"rotabot/internal/calendar"
	"rotabot/internal/jobs"
	"rotabot/internal/schedule"
	"rotabot/internal/transport/telegram/router"
)

const (
	defaultICSDays = 60
	maxICSDays     = 366
)

// dayArg parses an optional date argument; the default is today in the
// rule's zone.
func (b *Bot) dayArg(args []string) (schedule.Date, error) {
	if len(args) > 0 {
		return dateArg(args[0])
	}
	_, today, err := b.d.Resolver.LocalNow(b.d.Clock.Now())
	return today, err
}

func (b *Bot) cmdPreview(ctx context.Context, req *router.Request) error {
	d, err := b.dayArg(req.Args)
	if err != nil {
		return err
	}
	res, err := b.d.Announcer.Announce(ctx, d, true)
	if err != nil {
		return err
	}
	if len(res.Messages) == 0 {
		return req.Reply(ctx, fmt.Sprintf("No session on <b>%s</b>.", d))
	}
	return req.Reply(ctx, strings.Join(res.Messages, "\n\n"))
}

func (b *Bot) cmdAnnounce(ctx context.Context, req *router.Request) error {
	d, err := b.dayArg(req.Args)
	if err != nil {
		return err
	}
	res, err := b.d.Announcer.Announce(ctx, d, false)
	if errors.Is(err, jobs.ErrAnnounceTargetUnset) {
		return router.Usagef("Set announce.chat_id in the config first.")
	}
	if err != nil {
		return err
	}
	if res.Sessions == 0 {
		return req.Reply(ctx, fmt.Sprintf("No session on <b>%s</b>.", d))
	}
	return req.Reply(ctx, fmt.Sprintf("Announce <b>%s</b>: %d sent, %d already posted, %d failed.", d, res.Sent, res.Skipped, res.Failed))
}

func (b *Bot) cmdStatus(ctx context.Context, req *router.Request) error {
	now := b.d.Clock.Now()
	var sb strings.Builder
	sb.WriteString("📊 <b>Status</b>")
	for _, snap := range b.snapshots() {
		fmt.Fprintf(&sb, "\n\n<b>%s</b>: %s", snap.Name, snap.Phase)
		if !snap.LastRun.IsZero() {
			fmt.Fprintf(&sb, "\nLast run: %s ago (%d handled)", ago(now, snap.LastRun), snap.Done)
		}
		if !snap.NextRun.IsZero() {
			fmt.Fprintf(&sb, "\nNext run: %s", snap.NextRun.Format("Mon Jan 2 15:04 MST"))
		}
		if snap.LastErr != "" {
			fmt.Fprintf(&sb, "\n⚠️ %s", html.EscapeString(snap.LastErr))
		}
	}

	reg := b.d.Registry
	for _, name := range reg.Names() {
		stats, ok := reg.Stats(name)
		if !ok {
			continue
		}
		running, restarts, panics := 0, 0, 0
		for _, t := range stats {
			if t.Running {
				running++
			}
			restarts += t.Restarts
			panics += t.Panics
		}
		fmt.Fprintf(&sb, "\n\n<b>%s</b>: %d/%d running", html.EscapeString(name), running, len(stats))
		if restarts > 0 || panics > 0 {
			fmt.Fprintf(&sb, ", %d restarts, %d panics", restarts, panics)
		}
	}
	return req.Reply(ctx, sb.String())
}

func (b *Bot) snapshots() []jobs.Snapshot {
	var out []jobs.Snapshot
	if b.d.Announcer != nil {
		out = append(out, b.d.Announcer.Snapshot())
	}
	if b.d.Advancer != nil {
		out = append(out, b.d.Advancer.Snapshot())
	}
	return out
}

func ago(now, t time.Time) string {
	return now.Sub(t).Truncate(time.Second).String()
}

// cmdICS replies with the upcoming sessions as a plain-text VCALENDAR.
func (b *Bot) cmdICS(ctx context.Context, req *router.Request) error {
	days := defaultICSDays
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil {
			return router.Usagef("Days must be a number.")
		}
		days = min(max(n, 1), maxICSDays)
	}
	now := b.d.Clock.Now()
	_, today, err := b.d.Resolver.LocalNow(now)
	if err != nil {
		return err
	}
	sessions, err := b.d.Resolver.Between(ctx, today, today.AddDays(days-1))
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return req.Reply(ctx, fmt.Sprintf("No sessions in the next %d days.", days))
	}
	feed := calendar.Export(sessions, calendar.Options{Title: b.title(), Length: b.d.Settings().Length, Stamp: now})
	_, err = req.Sender.SendText(ctx, req.Chat, feed, nil)
	return err
}
