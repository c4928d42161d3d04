package app

import (
	"context"
	"fmt"
	"strings"

	"postbot/internal/config"
	"postbot/internal/eventbus"
	"postbot/internal/observability/errtrack"
	"postbot/internal/storage"
	"postbot/internal/transport/telegram/adapter"
	logx "postbot/pkg/logx"
)

// Version is stamped at build time and reported with captured errors.
var Version = "dev"

// Bootstrap builds the production dependencies from a loaded config and
// returns an App ready to Start. Everything opened here is closed by Stop,
// or right away when a later step fails.
func Bootstrap(ctx context.Context, cfgm *config.Manager) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is not loaded")
	}

	logs, log := logx.NewService(mapLogConfig(cfg), nil)
	fail := func(err error, closers ...func() error) (*App, error) {
		for _, c := range closers {
			_ = c()
		}
		_ = logs.Close()
		return nil, err
	}

	tg, err := adapter.New(adapter.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, config.DefaultPollTimeout),
	}, log)
	if err != nil {
		return fail(fmt.Errorf("telegram: %w", err))
	}
	logs.SetSender(tg)

	store, err := storage.Open(ctx, mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}

	reporter, err := errtrack.New(errtrack.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     "postbot@" + Version,
		SampleRate:  cfg.Sentry.SampleRate,
	})
	if err != nil {
		return fail(fmt.Errorf("sentry: %w", err), store.Close)
	}

	var bridge *eventbus.NATSBridge
	if url := strings.TrimSpace(cfg.Events.NATSURL); url != "" {
		bridge, err = eventbus.DialNATS(url, cfg.Events.SubjectPrefix, log)
		if err != nil {
			return fail(fmt.Errorf("nats: %w", err), store.Close)
		}
	}

	a, err := New(Deps{
		Config:   cfgm,
		Logs:     logs,
		Log:      log,
		Store:    store,
		Adapter:  tg,
		Bus:      eventbus.New(),
		NATS:     bridge,
		Reporter: reporter,
	})
	if err != nil {
		closers := []func() error{store.Close}
		if bridge != nil {
			closers = append(closers, bridge.Close)
		}
		return fail(err, closers...)
	}
	return a, nil
}
