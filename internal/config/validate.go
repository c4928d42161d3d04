package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSQLitePath    = "./data/postbot.db"
	DefaultSendDelay     = 50 * time.Millisecond
	DefaultBatchLogEvery = 50
	DefaultRetryMax      = 2
	DefaultSweep         = "*/15 * * * *"
	DefaultPollTimeout   = 10 * time.Second
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ApplyDefaults fills the fields a minimal config leaves empty.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if isSQLite(cfg.Storage.Driver) && strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultSQLitePath
	}
	if cfg.Broadcast.SendDelay == "" {
		cfg.Broadcast.SendDelay = DefaultSendDelay.String()
	}
	if cfg.Broadcast.BatchLogEvery == 0 {
		cfg.Broadcast.BatchLogEvery = DefaultBatchLogEvery
	}
	if cfg.Broadcast.RetryMax == nil {
		n := DefaultRetryMax
		cfg.Broadcast.RetryMax = &n
	}
	if cfg.Broadcast.Workers == 0 {
		cfg.Broadcast.Workers = 1
	}
	if cfg.Drafts.Sweep == "" {
		cfg.Drafts.Sweep = DefaultSweep
	}
}

func isSQLite(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return true
	}
	return false
}

// Validate checks struct tags, duration fields, the sweep schedule and
// driver-specific requirements. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	durations := map[string]string{
		"telegram.poll_timeout":        cfg.Telegram.PollTimeout,
		"storage.busy_timeout":         cfg.Storage.BusyTimeout,
		"broadcast.send_delay":         cfg.Broadcast.SendDelay,
		"broadcast.status_ttl":         cfg.Broadcast.StatusTTL,
		"throttle.album_ttl":           cfg.Throttle.AlbumTTL,
		"throttle.document_notice_ttl": cfg.Throttle.DocumentNoticeTTL,
		"drafts.expire_after":          cfg.Drafts.ExpireAfter,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if s := strings.TrimSpace(cfg.Drafts.Sweep); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			errs = append(errs, fmt.Errorf("drafts.sweep: %w", err))
		}
	}
	if !isSQLite(cfg.Storage.Driver) && strings.TrimSpace(cfg.Storage.DSN) == "" {
		errs = append(errs, fmt.Errorf("storage.dsn: required for driver %q (or set %s)", cfg.Storage.Driver, EnvDatabaseURL))
	}
	if cfg.Logging.Telegram.Enabled && cfg.Logging.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("logging.telegram.chat_id: required when enabled"))
	}
	return errors.Join(errs...)
}

// fieldPath turns "Config.Telegram.AdminIDs[0]" into "Telegram.AdminIDs[0]".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// DurationOr is ParseDurationOrDefault for values that already passed
// Validate; invalid input yields def.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}

// IsAdmin reports whether id is listed in telegram.admin_ids.
func (c *Config) IsAdmin(id int64) bool {
	if c == nil {
		return false
	}
	for _, a := range c.Telegram.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
