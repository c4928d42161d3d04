package app

import (
	"context"
	"strings"

	"postbot/internal/config"
	logx "postbot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for drained := false; !drained; {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			if next == nil {
				continue
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// applyConfig pushes the hot-reloadable settings into the running services.
func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	if a.logs != nil {
		a.logs.Apply(mapLogConfig(next))
	}
	a.bcast.Apply(mapBroadcastConfig(next))
	albumTTL, docTTL := mapThrottleTTLs(next)
	a.gates.Album.SetTTL(albumTTL)
	a.gates.DocumentNotice.SetTTL(docTTL)
	a.drafts.Apply(mapDraftsConfig(next))
	if prev == nil || prev.Drafts.Sweep != next.Drafts.Sweep {
		if err := a.registerSweep(next); err != nil {
			a.log.Warn("draft sweep not rescheduled", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
