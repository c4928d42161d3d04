package config

import (
	"reflect"
	"sort"
	"strings"

	logx "postbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe log fields (no
// tokens or DSNs) and the changed sections that only take effect after a
// restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	// Telegram: token and poll timeout are read once at start.
	tokenChanged := oldCfg.Telegram.Token != newCfg.Telegram.Token
	pollChanged := strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout)
	if tokenChanged || pollChanged || !reflect.DeepEqual(oldCfg.Telegram.AdminIDs, newCfg.Telegram.AdminIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.admin_count", len(newCfg.Telegram.AdminIDs)),
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
		)
		if tokenChanged || pollChanged {
			restart = append(restart, "telegram")
		}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Broadcast, newCfg.Broadcast) {
		changed = append(changed, "broadcast")
		retry := -1
		if newCfg.Broadcast.RetryMax != nil {
			retry = *newCfg.Broadcast.RetryMax
		}
		attrs = append(attrs,
			logx.String("broadcast.send_delay", newCfg.Broadcast.SendDelay),
			logx.Int("broadcast.batch_log_every", newCfg.Broadcast.BatchLogEvery),
			logx.Int("broadcast.retry_max", retry),
			logx.Int("broadcast.workers", newCfg.Broadcast.Workers),
		)
	}

	if oldCfg.Throttle != newCfg.Throttle {
		changed = append(changed, "throttle")
		attrs = append(attrs,
			logx.String("throttle.album_ttl", newCfg.Throttle.AlbumTTL),
			logx.String("throttle.document_notice_ttl", newCfg.Throttle.DocumentNoticeTTL),
		)
	}

	if oldCfg.Drafts != newCfg.Drafts {
		changed = append(changed, "drafts")
		attrs = append(attrs,
			logx.String("drafts.expire_after", newCfg.Drafts.ExpireAfter),
			logx.String("drafts.sweep", newCfg.Drafts.Sweep),
		)
	}

	if oldCfg.Events != newCfg.Events {
		changed = append(changed, "events")
		restart = append(restart, "events")
		attrs = append(attrs, logx.Bool("events.nats_set", newCfg.Events.NATSURL != ""))
	}
	if oldCfg.Sentry != newCfg.Sentry {
		changed = append(changed, "sentry")
		restart = append(restart, "sentry")
		attrs = append(attrs, logx.Bool("sentry.dsn_set", newCfg.Sentry.DSN != ""))
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
