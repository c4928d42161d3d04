package config

// Config is the whole bot configuration.
//
// Durations are Go duration strings ("50ms", "10s", "72h"). Secrets may be
// left out of the file and supplied through the environment (see ApplyEnv).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Throttle  ThrottleConfig  `json:"throttle"`
	Drafts    DraftsConfig    `json:"drafts"`
	Events    EventsConfig    `json:"events"`
	Sentry    SentryConfig    `json:"sentry"`
}

type TelegramConfig struct {
	Token string `json:"token" validate:"required"`
	// AdminIDs may compose and send posts.
	AdminIDs    []int64 `json:"admin_ids" validate:"required,min=1,dive,gt=0"`
	PollTimeout string  `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `json:"max_backups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `json:"max_age_days,omitempty" validate:"gte=0"`
	Compress   bool   `json:"compress,omitempty"`
}

// LoggingTelegram mirrors warnings and errors into a Telegram chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

// StorageConfig selects the post store.
//
//	"storage": { "driver": "sqlite", "path": "./data/postbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@db/postbot" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty" validate:"omitempty,oneof=sqlite sqlite3 postgres postgresql pg"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	MaxConns    int32  `json:"max_conns,omitempty" validate:"gte=0"`
}

// BroadcastConfig controls delivery pacing and retry.
//
// Defaults: send_delay 50ms, batch_log_every 50, retry_max 2, workers 1,
// rate_per_sec 0 (off), status_ttl 24h.
type BroadcastConfig struct {
	SendDelay     string `json:"send_delay,omitempty"`
	BatchLogEvery int    `json:"batch_log_every,omitempty" validate:"gte=0"`
	// RetryMax is a pointer so an explicit 0 disables retries.
	RetryMax   *int    `json:"retry_max,omitempty" validate:"omitempty,gte=0,lte=10"`
	Workers    int     `json:"workers,omitempty" validate:"gte=0,lte=32"`
	RatePerSec float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
	StatusTTL  string  `json:"status_ttl,omitempty"`
}

type ThrottleConfig struct {
	AlbumTTL          string `json:"album_ttl,omitempty"`
	DocumentNoticeTTL string `json:"document_notice_ttl,omitempty"`
}

// DraftsConfig controls expiry of abandoned drafts. Sweep is a standard
// five-field cron spec; an empty ExpireAfter disables expiry.
type DraftsConfig struct {
	ExpireAfter string `json:"expire_after,omitempty"`
	Sweep       string `json:"sweep,omitempty"`
}

type EventsConfig struct {
	NATSURL       string `json:"nats_url,omitempty"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
}

type SentryConfig struct {
	DSN         string  `json:"dsn,omitempty"`
	Environment string  `json:"environment,omitempty"`
	SampleRate  float64 `json:"sample_rate,omitempty" validate:"gte=0,lte=1"`
}
