package config

// Config is the whole bot configuration. Durations are Go duration
// strings ("30s", "5m"); empty means the documented default.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Schedule ScheduleConfig `json:"schedule"`
	Announce AnnounceConfig `json:"announce"`
	Advance  AdvanceConfig  `json:"advance"`
	Notify   NotifyConfig   `json:"notify"`
	Commands CommandsConfig `json:"commands"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	PollTimeout  string  `json:"poll_timeout"`
	// GroupLog is "<chat_id>" or "<chat_id>:<thread_id>".
	GroupLog string `json:"group_log"`
}

type LoggingConfig struct {
	Level    string            `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console  bool              `json:"console"`
	File     LogFileConfig     `json:"file"`
	Telegram LogTelegramConfig `json:"telegram"`
}

type LogFileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `json:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days" validate:"gte=0"`
	Compress   bool   `json:"compress"`
}

type LogTelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id" validate:"gte=0"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite sqlite3 memory mem"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"`
}

// ScheduleConfig is the recurrence rule plus presentation settings.
// Out-of-range interval, day_of_week and monthly_week are clamped rather
// than rejected.
type ScheduleConfig struct {
	TimeZone    string `json:"time_zone"`
	Frequency   string `json:"frequency"`
	Interval    int    `json:"interval"`
	DayOfWeek   int    `json:"day_of_week"`
	Time        string `json:"time"`
	MonthlyWeek int    `json:"monthly_week"`
	AnchorDate  string `json:"anchor_date"`

	Title  string `json:"title"`
	Length string `json:"length"`
}

type AnnounceConfig struct {
	Enabled  bool   `json:"enabled"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id" validate:"gte=0"`
	Hour     int    `json:"hour" validate:"gte=0,lte=23"`
	Minute   int    `json:"minute" validate:"gte=0,lte=59"`
	IdlePoll string `json:"idle_poll"`
}

type AdvanceConfig struct {
	Enabled      bool     `json:"enabled"`
	Every        string   `json:"every"`
	GraceMinutes int      `json:"grace_minutes" validate:"gte=0"`
	Roles        []string `json:"roles"`
}

type NotifyConfig struct {
	RatePerSec    int    `json:"rate_per_sec" validate:"gte=0"`
	RetryMax      int    `json:"retry_max" validate:"gte=0,lte=10"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	SendTimeout   string `json:"send_timeout"`
}

type CommandsConfig struct {
	Workers int    `json:"workers" validate:"gte=0,lte=64"`
	Timeout string `json:"timeout"`
}
