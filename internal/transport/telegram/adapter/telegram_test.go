package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	kit "rotabot/internal/transport"
)

func TestSplitTelegramTextShort(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitTelegramText("hello", 10, ""))
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(text, 10, "")
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, got)
}

func TestSplitTelegramTextAvoidsTags(t *testing.T) {
	text := "abcdefgh<b>x</b>"
	got := splitTelegramText(text, 10, "HTML")
	require.NotEmpty(t, got)
	assert.Equal(t, "abcdefgh", got[0])
	assert.Equal(t, text, strings.Join(got, ""))
	for _, c := range got {
		assert.LessOrEqual(t, len([]rune(c)), 10)
	}
}

func TestSplitTelegramTextCountsRunes(t *testing.T) {
	text := strings.Repeat("☀", 25)
	got := splitTelegramText(text, 10, "")
	require.Len(t, got, 3)
	assert.Equal(t, 5, len([]rune(got[2])))
}

func TestToMessage(t *testing.T) {
	m := &tele.Message{
		ID:       7,
		Text:     "/turn dm",
		ThreadID: 3,
		Chat:     &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 11, FirstName: "Ana", Username: "ana"},
		ReplyTo: &tele.Message{
			Sender: &tele.User{ID: 22, FirstName: "Bo"},
		},
	}
	got := toMessage(m)
	require.NotNil(t, got)
	assert.True(t, got.IsGroup)
	assert.Equal(t, int64(-100), got.ChatID)
	assert.Equal(t, 3, got.ThreadID)
	assert.Equal(t, kit.User{ID: 11, FirstName: "Ana", Username: "ana"}, got.From)
	require.NotNil(t, got.ReplyTo)
	assert.Equal(t, int64(22), got.ReplyTo.ID)

	m.Chat.Type = tele.ChatPrivate
	m.ReplyTo = nil
	got = toMessage(m)
	assert.False(t, got.IsGroup)
	assert.Nil(t, got.ReplyTo)

	assert.Nil(t, toMessage(&tele.Message{Text: "x", Chat: &tele.Chat{ID: 1}}))
}

func TestMenuCommandsLimits(t *testing.T) {
	cmds := []kit.BotCommand{
		{Command: "turn", Description: "who is up"},
		{Command: ""},
		{Command: "next"},
		{Command: "long", Description: strings.Repeat("x", 300)},
	}
	got := menuCommands(cmds)
	require.Len(t, got, 3)
	assert.Equal(t, "next", got[1].Description)
	assert.Len(t, got[2].Description, 256)
	assert.Equal(t, menuHash(got), menuHash(menuCommands(cmds)))
}
