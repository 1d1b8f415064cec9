// Package bot holds the chat commands: rotation turns, session edits and
// announcement controls.
package bot

import (
	"context"
	"strings"
	"time"

	"rotabot/internal/clock"
	"rotabot/internal/jobs"
	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
	kit "rotabot/internal/transport"
	"rotabot/internal/transport/telegram/router"
	logx "rotabot/pkg/logx"
)

// Settings are the presentation values read on each command.
type Settings struct {
	Title string
	// Length is the event length in calendar exports.
	Length time.Duration
}

type Deps struct {
	Resolver  *schedule.Resolver
	Rotation  *rotation.Service
	Directory rotation.Directory
	Announcer *jobs.Announcer
	Advancer  *jobs.Advancer
	Registry  *router.SupervisorRegistry
	Settings  func() Settings
	Clock     clock.Clock
	Log       logx.Logger
}

type Bot struct {
	d Deps
}

func New(d Deps) *Bot {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Settings == nil {
		d.Settings = func() Settings { return Settings{} }
	}
	return &Bot{d: d}
}

// Commands lists every chat command.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{Route: "turn", Aliases: []string{"who"}, Description: "who holds a role now and next", Usage: "/turn <dm|food>", Handle: b.cmdTurn},
		{Route: "advance", Description: "move a rotation forward", Usage: "/advance <dm|food|all>", Handle: b.cmdAdvance},
		{Route: "skip", Aliases: []string{"cant"}, Description: "swap the current holder with the next one", Usage: "/skip <dm|food> [reason]", Handle: b.cmdSkip},
		{Route: "roster list", Description: "show a rotation", Usage: "/roster list <dm|food>", Handle: b.cmdRosterList},
		{Route: "roster add", Description: "add a member (reply to them or give an id)", Usage: "/roster add <dm|food> [user_id]", Access: router.AccessOwnerOnly, Handle: b.cmdRosterAdd},
		{Route: "roster remove", Description: "remove a member (reply to them or give an id)", Usage: "/roster remove <dm|food> [user_id]", Access: router.AccessOwnerOnly, Handle: b.cmdRosterRemove},
		{Route: "roster setindex", Description: "make the member at a position current", Usage: "/roster setindex <dm|food> <pos>", Access: router.AccessOwnerOnly, Handle: b.cmdRosterSetIndex},
		{Route: "next", Description: "upcoming sessions", Usage: "/next [count]", Handle: b.cmdNext},
		{Route: "cancel", Description: "cancel an occurrence", Usage: "/cancel <yyyy-mm-dd> [reason]", Handle: b.cmdCancel},
		{Route: "move", Description: "move an occurrence", Usage: "/move <yyyy-mm-dd> <new yyyy-mm-dd> [HH:mm] [note]", Handle: b.cmdMove},
		{Route: "clear", Description: "undo a cancel or move", Usage: "/clear <yyyy-mm-dd>", Handle: b.cmdClear},
		{Route: "preview", Description: "show the morning message without posting it", Usage: "/preview [yyyy-mm-dd]", Handle: b.cmdPreview},
		{Route: "announce", Description: "post the morning message now", Usage: "/announce [yyyy-mm-dd]", Access: router.AccessOwnerOnly, Handle: b.cmdAnnounce},
		{Route: "schedule", Description: "describe the recurrence", Handle: b.cmdSchedule},
		{Route: "status", Description: "background loop status", Handle: b.cmdStatus},
		{Route: "ics", Description: "upcoming sessions as iCalendar", Usage: "/ics [days]", Handle: b.cmdICS},
	}
}

// RememberSender records who issues commands, so announcements can
// mention people by name.
func (b *Bot) RememberSender() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, req *router.Request) error {
			b.remember(ctx, req)
			return next(ctx, req)
		}
	}
}

func (b *Bot) remember(ctx context.Context, req *router.Request) {
	if b.d.Directory == nil {
		return
	}
	users := []kit.User{req.From}
	if req.ReplyTo != nil {
		users = append(users, *req.ReplyTo)
	}
	for _, u := range users {
		if u.ID == 0 {
			continue
		}
		m := rotation.Member{ID: rotation.MemberID(u.ID), Name: u.DisplayName(), Username: u.Username, SeenAt: b.d.Clock.Now().UTC()}
		if err := b.d.Directory.RememberMember(ctx, m); err != nil {
			req.Logger.Warn("remember member failed", logx.Int64("user_id", u.ID), logx.Err(err))
		}
	}
}

func (b *Bot) title() string {
	if t := strings.TrimSpace(b.d.Settings().Title); t != "" {
		return t
	}
	return jobs.DefaultTitle
}
