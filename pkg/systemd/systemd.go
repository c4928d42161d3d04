// Package systemd reports service state to the systemd manager via
// sd_notify. Every call is a no-op outside a unit with NOTIFY_SOCKET set.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notifyFunc matches daemon.SdNotify.
type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier sends state changes. The zero value uses daemon.SdNotify.
type Notifier struct {
	notify   notifyFunc
	watchdog func() (time.Duration, error)
}

func (n Notifier) send(state string) (bool, error) {
	if n.notify == nil {
		return daemon.SdNotify(false, state)
	}
	return n.notify(false, state)
}

// Ready signals that startup finished.
func (n Notifier) Ready() (bool, error) { return n.send(daemon.SdNotifyReady) }

// Stopping signals that shutdown began.
func (n Notifier) Stopping() (bool, error) { return n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(s string) (bool, error) { return n.send("STATUS=" + s) }

// Watchdog pings the manager at half the configured interval until ctx is
// done. It returns immediately when the unit has no watchdog.
func (n Notifier) Watchdog(ctx context.Context) error {
	interval := n.watchdog
	if interval == nil {
		interval = func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) }
	}
	every, err := interval()
	if err != nil || every <= 0 {
		return err
	}
	t := time.NewTicker(every / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := n.send(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
