package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "rotabot/internal/transport"
	logx "rotabot/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type recordSender struct {
	mu   sync.Mutex
	msgs []sent
	menu []kit.BotCommand
	got  chan struct{}
}

func newRecordSender() *recordSender { return &recordSender{got: make(chan struct{}, 64)} }

func (s *recordSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	s.msgs = append(s.msgs, sent{to: to, text: text})
	s.mu.Unlock()
	s.got <- struct{}{}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func (s *recordSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	s.mu.Lock()
	s.menu = cmds
	s.mu.Unlock()
	return nil
}

func (s *recordSender) wait(t *testing.T) sent {
	t.Helper()
	select {
	case <-s.got:
	case <-time.After(3 * time.Second):
		t.Fatal("no message sent")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[len(s.msgs)-1]
}

func textUpdate(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID:   -100,
		ThreadID: 4,
		From:     kit.User{ID: from, FirstName: "Ana"},
		Text:     text,
		IsGroup:  true,
	}}
}

func startManager(t *testing.T, cmds []Command, opt Options) (*recordSender, chan kit.Update) {
	t.Helper()
	s := newRecordSender()
	m := NewCommandManager(logx.Nop(), s, opt)
	m.SetRegistry(cmds)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, updates
}

func echo(ctx context.Context, req *Request) error {
	return req.Reply(ctx, req.Command+"|"+strings.Join(req.Args, ","))
}

func TestRoutesSubcommandsAndAliases(t *testing.T) {
	s, updates := startManager(t, []Command{
		{Route: "turn", Aliases: []string{"who"}, Handle: echo},
		{Route: "roster list", Handle: echo},
		{Route: "roster add", Access: AccessOwnerOnly, Handle: echo},
	}, Options{Workers: 1, IsOwner: func(id int64) bool { return id == 1 }})

	updates <- textUpdate(2, "/who dm")
	got := s.wait(t)
	assert.Equal(t, "turn|dm", got.text)
	assert.Equal(t, kit.ChatTarget{ChatID: -100, ThreadID: 4}, got.to)

	updates <- textUpdate(2, `/roster list "food"`)
	assert.Equal(t, "roster list|food", s.wait(t).text)

	updates <- textUpdate(2, "/roster_list@rotabot dm")
	assert.Equal(t, "roster list|dm", s.wait(t).text)

	updates <- textUpdate(2, "/roster add dm 5")
	assert.Contains(t, s.wait(t).text, "owners only")

	updates <- textUpdate(1, "/ROSTER add dm -5")
	assert.Equal(t, "roster add|dm,-5", s.wait(t).text)

	updates <- textUpdate(2, "/roster")
	assert.Contains(t, s.wait(t).text, "<code>/roster list</code>")
}

func TestUnknownCommandsInGroupsStayQuiet(t *testing.T) {
	s, updates := startManager(t, []Command{{Route: "turn", Handle: echo}}, Options{Workers: 1})

	updates <- textUpdate(2, "/nope")
	updates <- textUpdate(2, "hello")
	updates <- textUpdate(2, "/nope@rotabot")
	assert.Contains(t, s.wait(t).text, "Unknown command")
	s.mu.Lock()
	assert.Len(t, s.msgs, 1)
	s.mu.Unlock()
}

func TestErrorsAreReported(t *testing.T) {
	s, updates := startManager(t, []Command{
		{Route: "bad", Handle: func(context.Context, *Request) error { return Usagef("Role must be %s", "dm") }},
		{Route: "boom", Handle: func(context.Context, *Request) error { panic("kaboom") }},
		{Route: "fail", Handle: func(context.Context, *Request) error { return errors.New("db down") }},
		{Route: "slow", Timeout: 20 * time.Millisecond, Handle: func(ctx context.Context, _ *Request) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}, Options{Workers: 1})

	updates <- textUpdate(2, "/bad")
	assert.Equal(t, "⚠️ Role must be dm", s.wait(t).text)

	updates <- textUpdate(2, "/boom")
	assert.Contains(t, s.wait(t).text, "Something went wrong")

	updates <- textUpdate(2, "/fail")
	got := s.wait(t).text
	assert.Contains(t, got, "Something went wrong")
	assert.NotContains(t, got, "db down")

	updates <- textUpdate(2, "/slow")
	assert.Contains(t, s.wait(t).text, "too long")
}

func TestMiddlewareSeesRequests(t *testing.T) {
	s := newRecordSender()
	m := NewCommandManager(logx.Nop(), s, Options{Workers: 1})
	var seen []int64
	var mu sync.Mutex
	m.Use(func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			mu.Lock()
			seen = append(seen, req.From.ID)
			mu.Unlock()
			return next(ctx, req)
		}
	})
	m.SetRegistry([]Command{{Route: "turn", Handle: echo}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan kit.Update, 1)
	go func() { _ = m.DispatchLoop(ctx, updates) }()

	updates <- textUpdate(7, "/turn")
	s.wait(t)
	mu.Lock()
	assert.Equal(t, []int64{7}, seen)
	mu.Unlock()
}

func TestHelpAndMenu(t *testing.T) {
	s := newRecordSender()
	m := NewCommandManager(logx.Nop(), s, Options{})
	m.SetRegistry([]Command{
		{Route: "turn", Aliases: []string{"who"}, Description: "who is up", Usage: "/turn <dm|food>", Handle: echo},
		{Route: "announce", Description: "post now", Access: AccessOwnerOnly, Handle: echo},
		{Route: "roster add", Description: "add a member", Access: AccessOwnerOnly, Handle: echo},
		{Route: "roster list", Description: "list members", Handle: echo},
	})

	top := m.helpText(nil)
	assert.Contains(t, top, "<code>/turn</code>: who is up")
	assert.Contains(t, top, "🔒 <code>/announce</code>")
	assert.Less(t, strings.Index(top, "/turn"), strings.Index(top, "/announce"))

	one := m.helpText([]string{"who"})
	assert.Contains(t, one, "/turn &lt;dm|food&gt;")
	assert.Contains(t, one, "<code>/who</code>")

	assert.Contains(t, m.helpText([]string{"nope"}), "Unknown command")

	menu := buildTelegramMenuCommands(m.root, []Command{{Route: "roster add", Access: AccessOwnerOnly, Description: "add a member"}})
	names := make([]string, 0, len(menu))
	for _, c := range menu {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"announce", "help", "roster", "turn", "roster_add"}, names)
	assert.Equal(t, "🔒 add a member", menu[len(menu)-1].Description)
}

func TestParseFlags(t *testing.T) {
	pos, flags, bools := parseFlags([]string{"dm", "--reason=flu", "-5", "--dry", "-v", "x"})
	assert.Equal(t, []string{"dm", "-5"}, pos)
	assert.Equal(t, map[string]string{"reason": "flu", "v": "x"}, flags)
	assert.Equal(t, map[string]bool{"dry": true}, bools)
}

func TestTokenizeCommandLine(t *testing.T) {
	got := tokenizeCommandLine(`/cancel 2025-01-06 "flu season" it\'s`)
	require.Len(t, got, 4)
	assert.Equal(t, "flu season", got[2])
	assert.Equal(t, "it's", got[3])
}

func TestSanitizeTelegramCommand(t *testing.T) {
	assert.Equal(t, "roster_set_index", sanitizeTelegramCommand("Roster set-index"))
	assert.Equal(t, "cmd_1st", sanitizeTelegramCommand("1st"))
	assert.Equal(t, "", sanitizeTelegramCommand("!!"))
}
