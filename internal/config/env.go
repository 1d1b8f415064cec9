package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const EnvPrefix = "ROTABOT_"

// envOverrides are applied on top of the file on every load, so secrets
// can stay out of the config file.
type envOverrides struct {
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	StorageDriver  string `env:"STORAGE_DRIVER"`
	StoragePath    string `env:"STORAGE_PATH"`
	LogLevel       string `env:"LOG_LEVEL"`
	TimeZone       string `env:"TIMEZONE"`
	AnnounceChatID int64  `env:"ANNOUNCE_CHAT_ID"`
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overlays ROTABOT_* variables from the process environment.
func ApplyEnv(cfg *Config) error { return applyEnv(cfg, nil) }

func applyEnv(cfg *Config, environ map[string]string) error {
	var o envOverrides
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return err
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, o.TelegramToken)
	set(&cfg.Storage.Driver, o.StorageDriver)
	set(&cfg.Storage.Path, o.StoragePath)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Schedule.TimeZone, o.TimeZone)
	if o.AnnounceChatID != 0 {
		cfg.Announce.ChatID = o.AnnounceChatID
	}
	return nil
}
