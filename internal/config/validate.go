package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their config key.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks ranges, durations and the recurrence rule. All problems
// are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if err := structValidator().Struct(cfg); err != nil {
		var ferrs validator.ValidationErrors
		if !errors.As(err, &ferrs) {
			return err
		}
		for _, fe := range ferrs {
			key := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				errs = append(errs, fmt.Errorf("%s: must satisfy %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value()))
			} else {
				errs = append(errs, fmt.Errorf("%s: must satisfy %s (got %v)", key, fe.Tag(), fe.Value()))
			}
		}
	}

	for _, d := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"schedule.length", cfg.Schedule.Length},
		{"announce.idle_poll", cfg.Announce.IdlePoll},
		{"advance.every", cfg.Advance.Every},
		{"notify.retry_base", cfg.Notify.RetryBase},
		{"notify.retry_max_delay", cfg.Notify.RetryMaxDelay},
		{"notify.send_timeout", cfg.Notify.SendTimeout},
		{"commands.timeout", cfg.Commands.Timeout},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := cfg.Rule(); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if _, err := cfg.AdvanceRoles(); err != nil {
		errs = append(errs, fmt.Errorf("advance.roles: %w", err))
	}
	if _, err := ParseChatTarget(cfg.Telegram.GroupLog); err != nil {
		errs = append(errs, fmt.Errorf("telegram.group_log: %w", err))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path: required for sqlite"))
		}
	}
	if cfg.Announce.Enabled && cfg.Announce.ChatID == 0 {
		errs = append(errs, errors.New("announce.chat_id: required when announce.enabled"))
	}
	return errors.Join(errs...)
}
