// Package scheduler runs named cron jobs (robfig/cron) with per-run
// timeouts, overlap skipping and a bounded run history.
//
// Jobs are keyed by name: adding a job under an existing name replaces its
// schedule, which is how hot-reloaded specs take effect.
package scheduler
