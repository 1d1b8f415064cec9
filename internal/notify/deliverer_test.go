package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rotabot/internal/eventbus"
	kit "rotabot/internal/transport"
	logx "rotabot/pkg/logx"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	last     *kit.SendOptions
}

func (f *flakySender) SendText(_ context.Context, to kit.ChatTarget, _ string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = opt
	if f.calls <= f.failures {
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func newTestDeliverer(cfg Config, s kit.Sender, bus eventbus.Bus) (*Deliverer, *[]time.Duration) {
	d := New(cfg, s, logx.Nop(), bus)
	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return d, &slept
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	s := &flakySender{failures: 2}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	d, slept := newTestDeliverer(Config{RatePerSec: 100, RetryMax: 3, RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}, s, bus)
	require.NoError(t, d.SendText(context.Background(), kit.ChatTarget{ChatID: -42}, "<b>hi</b>"))

	require.Equal(t, 3, s.calls)
	require.Equal(t, "HTML", s.last.ParseMode)
	require.Len(t, *slept, 2)
	require.GreaterOrEqual(t, (*slept)[1], 200*time.Millisecond)
	require.Len(t, events, 2)
	ev := <-events
	require.Equal(t, eventbus.NotifyRetry, ev.Type)
	require.Equal(t, 1, ev.Data.(RetryEvent).Attempt)
}

func TestSendGivesUpAfterRetryMax(t *testing.T) {
	s := &flakySender{failures: 10}
	d, _ := newTestDeliverer(Config{RatePerSec: 100, RetryMax: 1}, s, nil)
	err := d.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, "x")
	require.EqualError(t, err, "telegram: 502")
	require.Equal(t, 2, s.calls)
}

func TestSendRejectsEmptyTarget(t *testing.T) {
	d, _ := newTestDeliverer(Config{}, &flakySender{}, nil)
	require.ErrorIs(t, d.SendText(context.Background(), kit.ChatTarget{}, "x"), ErrNoTarget)

	none := New(Config{}, nil, logx.Logger{}, nil)
	require.ErrorIs(t, none.SendText(context.Background(), kit.ChatTarget{ChatID: 1}, "x"), ErrNoSender)
}

func TestRetryDelayIsCapped(t *testing.T) {
	cfg := Config{RetryBase: time.Second, RetryMaxDelay: 3 * time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		got := retryDelay(cfg, attempt)
		require.LessOrEqual(t, got, cfg.RetryMaxDelay+cfg.RetryMaxDelay/5)
		require.GreaterOrEqual(t, got, cfg.RetryBase)
	}
}
