package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"postbot/internal/app"
	"postbot/internal/config"
	"postbot/pkg/systemd"
)

var opts struct {
	Config  string `long:"config" short:"c" env:"POSTBOT_CONFIG" default:"./config.json" description:"path to the config file (json or yaml)"`
	EnvFile string `long:"env-file" env:"POSTBOT_ENV_FILE" default:".env" description:"dotenv file loaded before the config (optional)"`
	StopTTL int    `long:"stop-timeout" default:"15" description:"seconds to wait for a graceful stop"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "env file:", err)
	}

	cfgm := config.NewManager(opts.Config)
	if _, err := cfgm.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.Bootstrap(ctx, cfgm)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	var sd systemd.Notifier
	_, _ = sd.Ready()
	go func() { _ = sd.Watchdog(ctx) }()

	reason := app.StopUnknown
	select {
	case s := <-sigs:
		reason = app.StopSIGTERM
		if s == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	}
	_, _ = sd.Stopping()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Duration(opts.StopTTL)*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	cancel()

	if reason == app.StopFatalError {
		fmt.Fprintln(os.Stderr, "fatal:", a.Err())
		os.Exit(1)
	}
}
