package notify

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rotabot/internal/eventbus"
	kit "rotabot/internal/transport"
	logx "rotabot/pkg/logx"
)

var (
	ErrNoSender = errors.New("notify: no sender configured")
	ErrNoTarget = errors.New("notify: empty chat target")
)

type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// RetryEvent is published as notify.retry before each backoff sleep.
type RetryEvent struct {
	ChatID  int64
	Attempt int
	Err     string
}

// Deliverer is safe for concurrent use.
type Deliverer struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender kit.Sender
	log    logx.Logger
	bus    eventbus.Bus

	// sleep waits for d or ctx; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Deliverer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	d := &Deliverer{sender: sender, log: log, bus: bus, sleep: sleepCtx}
	d.Apply(cfg)
	return d
}

// Apply swaps limits and retry policy; in-flight sends keep their snapshot.
func (d *Deliverer) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	d.mu.Lock()
	d.cfg = cfg
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	d.mu.Unlock()
}

// SendText sends an HTML message, retrying failed attempts. It returns the
// last error once retries are exhausted.
func (d *Deliverer) SendText(ctx context.Context, to kit.ChatTarget, text string) error {
	if d.sender == nil {
		return ErrNoSender
	}
	if to.IsZero() {
		return ErrNoTarget
	}

	d.mu.Lock()
	cfg := d.cfg
	lim := d.limiter
	d.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := d.sender.SendText(callCtx, to, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}

		d.log.Debug("send failed, retrying", logx.Int64("chat_id", to.ChatID), logx.Int("attempt", attempt), logx.Err(err))
		d.bus.Publish(eventbus.Event{Type: eventbus.NotifyRetry, Data: RetryEvent{ChatID: to.ChatID, Attempt: attempt, Err: err.Error()}})
		if err := d.sleep(ctx, retryDelay(cfg, attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// retryDelay doubles from RetryBase per attempt, capped, with up to 20% jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.RetryBase
	for i := 1; i < attempt && delay < cfg.RetryMaxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, cfg.RetryMaxDelay)
	if j := int64(delay) / 5; j > 0 {
		delay += time.Duration(rand.Int64N(j))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
