package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "rotabot/internal/transport"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "jobs"))
	log.Info("announce sent", Int("sessions", 2), Err(errors.New("boom")))
	log.Trace("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["comp"] != "jobs" || m["message"] != "announce sent" || m["err"] != "boom" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["sessions"].(float64) != 2 {
		t.Fatalf("sessions = %v, want 2", m["sessions"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q, want logx_test.go:<line>", c)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger reports non-zero")
	}
	l.Error("nothing happens")
}

func TestFormatTelegramLine(t *testing.T) {
	got := formatTelegramLine([]byte(`{"level":"warn","message":"send <failed>","occurrence":"default:2025-01-06","time":"x"}`))
	want := "<b>[WARN]</b> send &lt;failed&gt;\n• occurrence=<code>default:2025-01-06</code>"
	if got != want {
		t.Fatalf("formatTelegramLine = %q, want %q", got, want)
	}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	return kit.MessageRef{}, nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestTelegramSinkHonoursMinLevel(t *testing.T) {
	sender := &captureSender{}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, ChatID: -100, MinLevel: "error", RatePerSec: 10},
	}, sender)
	defer svc.Close()

	log.Warn("below threshold")
	log.Error("above threshold")

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if n := sender.count(); n != 1 {
		t.Fatalf("sent %d messages, want 1", n)
	}
}
