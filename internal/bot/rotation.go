package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"rotabot/internal/jobs"
	"rotabot/internal/rotation"
	"rotabot/internal/transport/telegram/router"
	logx "rotabot/pkg/logx"
)

func roleArg(args []string, usage string) (rotation.Role, error) {
	if len(args) == 0 {
		return 0, router.Usagef("Usage: %s", usage)
	}
	r, err := rotation.ParseRole(args[0])
	if err != nil {
		return 0, router.Usagef("Role must be dm or food.")
	}
	return r, nil
}

func roleKeys(roles []rotation.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Key()
	}
	return out
}

func (b *Bot) mention(ctx context.Context, id rotation.MemberID) string {
	return jobs.Mention(ctx, b.d.Directory, id)
}

func (b *Bot) cmdTurn(ctx context.Context, req *router.Request) error {
	role, err := roleArg(req.Args, "/turn <dm|food>")
	if err != nil {
		return err
	}
	st, err := b.d.Rotation.Get(ctx, role)
	if err != nil {
		return err
	}
	cur, ok := st.Current()
	if !ok {
		return req.Reply(ctx, fmt.Sprintf("No members set for <b>%s</b> yet.", role))
	}
	text := fmt.Sprintf("%s <b>%s:</b> %s", role.Emoji(), role, b.mention(ctx, cur))
	if next, ok := st.Next(); ok && st.Len() > 1 {
		text += fmt.Sprintf("\n⏭️ <i>Next:</i> %s", b.mention(ctx, next))
	}
	return req.Reply(ctx, text)
}

func (b *Bot) cmdAdvance(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return router.Usagef("Usage: /advance <dm|food|all>")
	}
	roles, err := rotation.ParseRoles(req.Args[:1])
	if err != nil {
		return router.Usagef("Role must be dm, food or all.")
	}
	lines := make([]string, 0, len(roles))
	for _, role := range roles {
		st, err := b.d.Rotation.Advance(ctx, role)
		if err != nil {
			return err
		}
		cur, ok := st.Current()
		if !ok {
			lines = append(lines, fmt.Sprintf("%s <b>%s:</b> <i>(no members)</i>", role.Emoji(), role))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s <b>%s</b> advanced. Now up: %s", role.Emoji(), role, b.mention(ctx, cur)))
	}
	req.Logger.Info("rotation advanced by command", logx.Strings("roles", roleKeys(roles)))
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (b *Bot) cmdSkip(ctx context.Context, req *router.Request) error {
	role, err := roleArg(req.Args, "/skip <dm|food> [reason]")
	if err != nil {
		return err
	}
	st, err := b.d.Rotation.Swap(ctx, role)
	if errors.Is(err, rotation.ErrInsufficientMembers) {
		return router.Usagef("Not enough members to skip %s (need at least 2).", role)
	}
	if err != nil {
		return err
	}
	cur, _ := st.Current()
	text := fmt.Sprintf("Skipped <b>%s</b>. Now up: %s", role, b.mention(ctx, cur))
	if reason := strings.TrimSpace(strings.Join(req.Args[1:], " ")); reason != "" {
		text += "\n📝 " + html.EscapeString(reason)
	}
	return req.Reply(ctx, text)
}

func (b *Bot) cmdRosterList(ctx context.Context, req *router.Request) error {
	role, err := roleArg(req.Args, "/roster list <dm|food>")
	if err != nil {
		return err
	}
	st, err := b.d.Rotation.Get(ctx, role)
	if err != nil {
		return err
	}
	if st.Len() == 0 {
		return req.Reply(ctx, fmt.Sprintf("No members set for <b>%s</b> yet.", role))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>%s rotation</b>", role.Emoji(), role)
	for i, id := range st.Members {
		marker := "  "
		if i == st.Index {
			marker = "👉"
		}
		fmt.Fprintf(&sb, "\n%s %d. %s", marker, i+1, b.mention(ctx, id))
	}
	return req.Reply(ctx, sb.String())
}

// targetMember takes the user from the replied-to message, or an explicit
// numeric id after the role.
func targetMember(req *router.Request, usage string) (rotation.MemberID, error) {
	if len(req.Args) >= 2 {
		id, err := strconv.ParseInt(req.Args[1], 10, 64)
		if err != nil || id <= 0 {
			return 0, router.Usagef("User id must be a positive number.")
		}
		return rotation.MemberID(id), nil
	}
	if req.ReplyTo != nil && req.ReplyTo.ID != 0 {
		return rotation.MemberID(req.ReplyTo.ID), nil
	}
	return 0, router.Usagef("Reply to the member's message or give an id: %s", usage)
}

func (b *Bot) cmdRosterAdd(ctx context.Context, req *router.Request) error {
	const usage = "/roster add <dm|food> [user_id]"
	role, err := roleArg(req.Args, usage)
	if err != nil {
		return err
	}
	id, err := targetMember(req, usage)
	if err != nil {
		return err
	}
	st, err := b.d.Rotation.Add(ctx, role, id)
	if errors.Is(err, rotation.ErrDuplicateMember) {
		return router.Usagef("Already in the %s rotation.", role)
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Added %s to <b>%s</b> at position %d.", b.mention(ctx, id), role, st.Position(id)))
}

func (b *Bot) cmdRosterRemove(ctx context.Context, req *router.Request) error {
	const usage = "/roster remove <dm|food> [user_id]"
	role, err := roleArg(req.Args, usage)
	if err != nil {
		return err
	}
	id, err := targetMember(req, usage)
	if err != nil {
		return err
	}
	_, err = b.d.Rotation.Remove(ctx, role, id)
	if errors.Is(err, rotation.ErrMemberNotFound) {
		return router.Usagef("Not in the %s rotation.", role)
	}
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("Removed %s from <b>%s</b>.", b.mention(ctx, id), role))
}

func (b *Bot) cmdRosterSetIndex(ctx context.Context, req *router.Request) error {
	const usage = "/roster setindex <dm|food> <pos>"
	role, err := roleArg(req.Args, usage)
	if err != nil {
		return err
	}
	if len(req.Args) < 2 {
		return router.Usagef("Usage: %s", usage)
	}
	pos, err := strconv.Atoi(req.Args[1])
	if err != nil {
		return router.Usagef("Position must be a number.")
	}
	st, err := b.d.Rotation.SetPosition(ctx, role, pos)
	switch {
	case errors.Is(err, rotation.ErrEmptyRoster):
		return router.Usagef("The %s rotation is empty.", role)
	case errors.Is(err, rotation.ErrPositionOutOfRange):
		return router.Usagef("Position must be between 1 and %d.", st.Len())
	case err != nil:
		return err
	}
	cur, _ := st.Current()
	return req.Reply(ctx, fmt.Sprintf("<b>%s</b> is now on %s (position %d).", role, b.mention(ctx, cur), pos))
}
