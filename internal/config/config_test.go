package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const minimalYAML = `
telegram:
  token: "123:abc"
  admin_ids: [1, 2]
broadcast:
  send_delay: 0s
  retry_max: 0
`

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	m := NewManager(writeFile(t, t.TempDir(), "config.yaml", minimalYAML))
	m.SetLookup(envMap(nil))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultBatchLogEvery, cfg.Broadcast.BatchLogEvery)
	require.NotNil(t, cfg.Broadcast.RetryMax)
	assert.Equal(t, 0, *cfg.Broadcast.RetryMax, "explicit zero is kept")
	assert.Equal(t, time.Duration(0), DurationOr(cfg.Broadcast.SendDelay, 0))
	assert.Equal(t, DefaultSweep, cfg.Drafts.Sweep)
	assert.True(t, cfg.IsAdmin(2))
	assert.False(t, cfg.IsAdmin(3))
	assert.Same(t, cfg, m.Get())
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	dir := t.TempDir()
	_, err := NewManager(writeFile(t, dir, "a.json", `{"telegram":{"token":"x","admin_ids":[1]},"plugins":{}}`)).Parse()
	assert.Error(t, err)
	_, err = NewManager(writeFile(t, dir, "b.json", `{"telegram":{"token":"x","admin_ids":[1]}} {}`)).Parse()
	assert.ErrorContains(t, err, "trailing data")
}

func TestEnvOverrides(t *testing.T) {
	m := NewManager(writeFile(t, t.TempDir(), "c.json", `{"telegram":{"admin_ids":[9]}}`))
	m.SetLookup(envMap(map[string]string{
		EnvBotToken:    " tok ",
		EnvAdminIDs:    "5, 6",
		EnvDatabaseURL: "postgres://bot@localhost/postbot",
		EnvNATSURL:     "nats://127.0.0.1:4222",
		EnvSentryDSN:   "",
	}))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Telegram.Token)
	assert.Equal(t, []int64{5, 6}, cfg.Telegram.AdminIDs)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://bot@localhost/postbot", cfg.Storage.DSN)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Events.NATSURL)
	assert.Empty(t, cfg.Sentry.DSN)
}

func TestParseAdminIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    []int64
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "12345", want: []int64{12345}},
		{in: "1,2,3", want: []int64{1, 2, 3}},
		{in: " 1 , 2 ", want: []int64{1, 2}},
		{in: "[7, 8]", want: []int64{7, 8}},
		{in: `["7","8"]`, want: []int64{7, 8}},
		{in: "1;2 3", want: []int64{1, 2, 3}},
		{in: "1,x", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAdminIDs(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := &Config{
		Storage:   StorageConfig{Driver: "postgres"},
		Broadcast: BroadcastConfig{SendDelay: "fast", Workers: 99},
		Drafts:    DraftsConfig{Sweep: "every tuesday"},
		Logging:   LoggingConfig{Level: "loud", Telegram: LoggingTelegram{Enabled: true}},
	}
	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"Telegram.Token",
		"Telegram.AdminIDs",
		"Broadcast.Workers",
		"Logging.Level",
		"broadcast.send_delay",
		"drafts.sweep",
		"storage.dsn",
		"logging.telegram.chat_id",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	base := func() *Config {
		c := &Config{Telegram: TelegramConfig{Token: "a", AdminIDs: []int64{1}}}
		ApplyDefaults(c)
		return c
	}
	oldCfg, newCfg := base(), base()
	changed, _, restart := SummarizeConfigChange(oldCfg, newCfg)
	assert.Empty(t, changed)
	assert.Empty(t, restart)

	newCfg.Logging.Level = "debug"
	newCfg.Broadcast.SendDelay = "1s"
	newCfg.Storage.Path = "/tmp/x.db"
	changed, _, restart = SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"broadcast", "logging", "storage"}, changed)
	assert.Equal(t, []string{"storage"}, restart)
}

func TestReloadPublishesOnlyValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalYAML)
	m := NewManager(path)
	m.SetLookup(envMap(nil))
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	ctx := context.Background()

	ok, err := m.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "unchanged content is not republished")

	writeFile(t, dir, "config.yaml", minimalYAML+"throttle:\n  album_ttl: 30s\n")
	ok, err = m.Reload(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	got := <-ch
	assert.Equal(t, "30s", got.Throttle.AlbumTTL)

	writeFile(t, dir, "config.yaml", minimalYAML+"throttle:\n  album_ttl: soon\n")
	ok, err = m.Reload(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, "30s", m.Get().Throttle.AlbumTTL)
}

func TestWatchPicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", minimalYAML)
	m := NewManager(path)
	m.SetLookup(envMap(nil))
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "config.yaml", minimalYAML+"drafts:\n  expire_after: 48h\n")
	select {
	case cfg := <-ch:
		assert.Equal(t, "48h", cfg.Drafts.ExpireAfter)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}
