package app

import (
	"strings"
	"time"

	"rotabot/internal/bot"
	"rotabot/internal/calendar"
	"rotabot/internal/config"
	"rotabot/internal/jobs"
	"rotabot/internal/notify"
	"rotabot/internal/rotation"
	logx "rotabot/pkg/logx"
)

const (
	defaultPollTimeout    = 10 * time.Second
	defaultCommandTimeout = 20 * time.Second
)

// Each map function reads one config section into the settings of a
// component. They run on every reload, so bad values fall back to defaults
// instead of failing; Validate has already rejected them on load.

func loggingConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	out := logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled:    lc.File.Enabled,
			Path:       lc.File.Path,
			MaxSizeMB:  lc.File.MaxSizeMB,
			MaxBackups: lc.File.MaxBackups,
			MaxAgeDays: lc.File.MaxAgeDays,
			Compress:   lc.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
	// telegram.group_log picks the chat; logging.telegram.thread_id wins
	// over a thread given there.
	if target, err := config.ParseChatTarget(cfg.Telegram.GroupLog); err == nil {
		out.Telegram.ChatID = target.ChatID
		out.Telegram.ThreadID = target.ThreadID
	}
	if lc.Telegram.ThreadID > 0 {
		out.Telegram.ThreadID = lc.Telegram.ThreadID
	}
	return out
}

func notifyConfig(cfg *config.Config) notify.Config {
	n := cfg.Notify
	return notify.Config{
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     config.Duration(n.RetryBase, 0),
		RetryMaxDelay: config.Duration(n.RetryMaxDelay, 0),
		SendTimeout:   config.Duration(n.SendTimeout, 0),
	}
}

func announceSettings(cfg *config.Config) jobs.AnnounceSettings {
	a := cfg.Announce
	return jobs.AnnounceSettings{
		Enabled:  a.Enabled,
		Target:   cfg.AnnounceTarget(),
		Hour:     a.Hour,
		Minute:   a.Minute,
		IdlePoll: config.Duration(a.IdlePoll, jobs.DefaultIdlePoll),
		Title:    cfg.Schedule.Title,
	}
}

func advanceSettings(cfg *config.Config) jobs.AdvanceSettings {
	roles, err := cfg.AdvanceRoles()
	if err != nil {
		roles = rotation.Roles()
	}
	return jobs.AdvanceSettings{
		Enabled: cfg.Advance.Enabled,
		Every:   config.Duration(cfg.Advance.Every, jobs.DefaultAdvanceEvery),
		Grace:   time.Duration(cfg.Advance.GraceMinutes) * time.Minute,
		Roles:   roles,
	}
}

func botSettings(cfg *config.Config) bot.Settings {
	title := strings.TrimSpace(cfg.Schedule.Title)
	if title == "" {
		title = jobs.DefaultTitle
	}
	return bot.Settings{
		Title:  title,
		Length: config.Duration(cfg.Schedule.Length, calendar.DefaultLength),
	}
}

func commandTimeout(cfg *config.Config) time.Duration {
	return config.Duration(cfg.Commands.Timeout, defaultCommandTimeout)
}

func pollTimeout(cfg *config.Config) time.Duration {
	return config.Duration(cfg.Telegram.PollTimeout, defaultPollTimeout)
}
