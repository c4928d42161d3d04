package app

import (
	"strings"
	"time"

	"postbot/internal/config"
	"postbot/internal/services/broadcast"
	"postbot/internal/services/drafts"
	"postbot/internal/storage"
	"postbot/internal/throttle"
	logx "postbot/pkg/logx"
)

// The mappers below run on configs that already passed config.Validate, so
// unparsable durations fall back to defaults instead of failing.

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
		MaxConns:    sc.MaxConns,
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	bc := cfg.Broadcast
	retry := broadcast.DefaultRetryMax
	if bc.RetryMax != nil {
		retry = *bc.RetryMax
	}
	return broadcast.Config{
		SendDelay:     config.DurationOr(bc.SendDelay, config.DefaultSendDelay),
		BatchLogEvery: bc.BatchLogEvery,
		RetryMax:      retry,
		Workers:       bc.Workers,
		RatePerSec:    bc.RatePerSec,
		StatusTTL:     config.DurationOr(bc.StatusTTL, 24*time.Hour),
	}
}

func mapThrottleTTLs(cfg *config.Config) (album, document time.Duration) {
	return config.DurationOr(cfg.Throttle.AlbumTTL, throttle.DefaultAlbumTTL),
		config.DurationOr(cfg.Throttle.DocumentNoticeTTL, throttle.DefaultDocumentNoticeTTL)
}

func mapDraftsConfig(cfg *config.Config) drafts.Config {
	return drafts.Config{ExpireAfter: config.DurationOr(cfg.Drafts.ExpireAfter, 0)}
}
