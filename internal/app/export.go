package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"rotabot/internal/calendar"
	"rotabot/internal/config"
	"rotabot/internal/schedule"
	"rotabot/internal/storage"
	logx "rotabot/pkg/logx"
)

// ExportICS writes the sessions of the next days (today included) as an
// iCalendar feed. It opens the configured store read-only in practice and
// does not contact Telegram.
func ExportICS(ctx context.Context, cfgPath string, days int, now time.Time, w io.Writer) error {
	if days <= 0 {
		return fmt.Errorf("days must be > 0")
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	rule, err := cfg.Rule()
	if err != nil {
		return err
	}
	resolver := schedule.NewResolver(schedule.StaticRule(rule), store)
	_, today, err := resolver.LocalNow(now)
	if err != nil {
		return err
	}
	sessions, err := resolver.Between(ctx, today, today.AddDays(days-1))
	if err != nil {
		return err
	}

	st := botSettings(cfg)
	_, err = io.WriteString(w, calendar.Export(sessions, calendar.Options{Title: st.Title, Length: st.Length, Stamp: now}))
	return err
}
