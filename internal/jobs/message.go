package jobs

import (
	"context"
	"fmt"
	"html"
	"strings"

	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
)

const DefaultTitle = "Game night"

// Roster reads the current rotation for a role. rotation.Service satisfies it.
type Roster interface {
	Get(ctx context.Context, role rotation.Role) (rotation.State, error)
}

// BuildMessage renders the morning message for one session as Telegram HTML.
func BuildMessage(ctx context.Context, s schedule.Session, title string, roster Roster, dir rotation.Directory) (string, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	title = html.EscapeString(title)
	start := s.EffectiveStart
	note := strings.TrimSpace(s.Note)

	var b strings.Builder
	if s.Cancelled {
		fmt.Fprintf(&b, "🛑 <b>%s is cancelled today</b>\n", title)
		fmt.Fprintf(&b, "⏰ <i>Was scheduled for</i> <b>%s</b>", start.Format("3:04 PM"))
		if note != "" {
			fmt.Fprintf(&b, "\n\n<b>Reason:</b> %s", html.EscapeString(note))
		}
		return b.String(), nil
	}

	fmt.Fprintf(&b, "☀️ <b>%s tonight!</b>\n", title)
	fmt.Fprintf(&b, "🗓️ <b>%s</b> at <b>%s</b>\n\n", start.Format("Monday, Jan 2"), start.Format("3:04 PM"))
	b.WriteString("<b>Assignments</b>")
	for _, role := range rotation.Roles() {
		holder, err := holderMention(ctx, role, roster, dir)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n• %s <b>%s:</b> %s", role.Emoji(), role.String(), holder)
	}
	if note != "" {
		fmt.Fprintf(&b, "\n\n📝 <b>Note:</b> %s", html.EscapeString(note))
	}
	return b.String(), nil
}

func holderMention(ctx context.Context, role rotation.Role, roster Roster, dir rotation.Directory) (string, error) {
	st, err := roster.Get(ctx, role)
	if err != nil {
		return "", err
	}
	id, ok := st.Current()
	if !ok {
		return "<i>(not set)</i>", nil
	}
	return Mention(ctx, dir, id), nil
}

// Mention links a member by id, labelled with the remembered name.
// Lookup failures fall back to the bare id.
func Mention(ctx context.Context, dir rotation.Directory, id rotation.MemberID) string {
	m := rotation.Member{ID: id}
	if dir != nil {
		if found, ok, err := dir.LookupMember(ctx, id); err == nil && ok {
			m = found
		}
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, int64(id), html.EscapeString(m.Label()))
}
