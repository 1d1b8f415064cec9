package config

import (
	"reflect"
	"slices"
	"strings"

	logx "rotabot/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ and log fields
// describing the new values. The bot token is never logged.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.GroupLog != nt.GroupLog ||
		!slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		s := newCfg.Schedule
		attrs = append(attrs,
			logx.String("schedule.time_zone", s.TimeZone),
			logx.String("schedule.frequency", s.Frequency),
			logx.Int("schedule.interval", s.Interval),
			logx.Int("schedule.day_of_week", s.DayOfWeek),
			logx.String("schedule.time", s.Time),
		)
	}

	if oldCfg.Announce != newCfg.Announce {
		changed = append(changed, "announce")
		a := newCfg.Announce
		attrs = append(attrs,
			logx.Bool("announce.enabled", a.Enabled),
			logx.Int64("announce.chat_id", a.ChatID),
			logx.Int("announce.hour", a.Hour),
			logx.Int("announce.minute", a.Minute),
		)
	}

	if !reflect.DeepEqual(oldCfg.Advance, newCfg.Advance) {
		changed = append(changed, "advance")
		attrs = append(attrs,
			logx.Bool("advance.enabled", newCfg.Advance.Enabled),
			logx.String("advance.every", newCfg.Advance.Every),
			logx.Int("advance.grace_minutes", newCfg.Advance.GraceMinutes),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec),
			logx.Int("notify.retry_max", newCfg.Notify.RetryMax),
		)
	}

	if oldCfg.Commands != newCfg.Commands {
		changed = append(changed, "commands")
		attrs = append(attrs,
			logx.Int("commands.workers", newCfg.Commands.Workers),
			logx.String("commands.timeout", newCfg.Commands.Timeout),
		)
	}

	return changed, attrs
}

// RestartRequired reports changes that only take effect after a restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if oldCfg.Commands.Workers != newCfg.Commands.Workers {
		out = append(out, "commands.workers")
	}
	return out
}
