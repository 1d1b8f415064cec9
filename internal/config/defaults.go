package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Default is the config written by --init.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "10s"},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LogFileConfig{Path: "./data/rotabot.log", MaxSizeMB: 20, MaxBackups: 3, MaxAgeDays: 14},
			Telegram: LogTelegramConfig{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
		Storage: StorageConfig{Driver: "sqlite", Path: "./data/rotabot.db", BusyTimeout: "5s"},
		Schedule: ScheduleConfig{
			TimeZone:    "UTC",
			Frequency:   "weekly",
			Interval:    1,
			DayOfWeek:   1,
			Time:        "18:30",
			MonthlyWeek: 1,
			AnchorDate:  "2025-01-01",
			Title:       "Game night",
			Length:      "3h",
		},
		Announce: AnnounceConfig{Hour: 9, IdlePoll: "30s"},
		Advance:  AdvanceConfig{Enabled: true, Every: "5m", GraceMinutes: 180, Roles: []string{"dm", "food"}},
		Notify:   NotifyConfig{RatePerSec: 3, RetryMax: 3, RetryBase: "500ms", RetryMaxDelay: "10s", SendTimeout: "10s"},
		Commands: CommandsConfig{Workers: 4, Timeout: "20s"},
	}
}

// WriteDefault writes Default to path in the format implied by its
// extension. It reports false when the file already exists.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}

	b, err := Marshal(path, Default())
	if err != nil {
		return false, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return false, err
	}
	return true, nil
}

// Marshal encodes cfg as YAML for .yaml/.yml paths and indented JSON
// otherwise. YAML keys follow the JSON names.
func Marshal(path string, cfg *Config) ([]byte, error) {
	jb, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var tree map[string]any
		if err := json.Unmarshal(jb, &tree); err != nil {
			return nil, err
		}
		out, err := yaml.Marshal(integralNumbers(tree))
		if err != nil {
			return nil, fmt.Errorf("yaml marshal: %w", err)
		}
		return out, nil
	default:
		return append(jb, '\n'), nil
	}
}

// integralNumbers turns whole float64 values back into int64 so chat ids
// are not written in exponent form.
func integralNumbers(in any) any {
	switch x := in.(type) {
	case map[string]any:
		for k, v := range x {
			x[k] = integralNumbers(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = integralNumbers(x[i])
		}
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	default:
		return in
	}
}
