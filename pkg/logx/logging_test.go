package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFieldsInOrder(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug").With(String("comp", "drafts"))

	log.Info("draft updated", Int64("post_id", 7), Err(errors.New("boom")), String("comp", "override"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "draft updated", m["message"])
	assert.Equal(t, "override", m["comp"])
	assert.EqualValues(t, 7, m["post_id"])
	assert.Equal(t, "boom", m["err"])
	assert.Contains(t, m["caller"], "logging_test.go:")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info("hidden")
	assert.Zero(t, buf.Len())
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	assert.True(t, log.IsZero())
	log.Error("nothing happens")
	assert.False(t, Nop().IsZero())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for raw, want := range tests {
		if got := parseLevel(raw, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestFormatEntry(t *testing.T) {
	t.Parallel()
	out, comp := formatEntry([]byte(`{"level":"warn","message":"send failed","comp":"broadcast","chat_id":42,"caller":"x.go:1","attempt":2}`))
	assert.Equal(t, "broadcast", comp)
	assert.Equal(t, "[WARN] send failed\n- attempt=2\n- chat_id=42\n- comp=broadcast", out)

	raw, comp := formatEntry([]byte("not json"))
	assert.Equal(t, "not json", raw)
	assert.Empty(t, comp)
}

type plainRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *plainRecorder) SendPlain(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return nil
}

func (r *plainRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func TestTelegramSinkFiltersAndSuppressesRepeats(t *testing.T) {
	rec := &plainRecorder{}
	svc, log := NewService(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, ChatID: 9, RatePerSec: 100}}, rec)
	defer svc.Close()

	log.Info("below min level")
	log.With(String("comp", selfComp)).Error("send failed")
	log.Error("store down")
	log.Error("store down")
	log.Warn("retrying", Int("attempt", 1))

	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "[ERROR] store down", rec.texts[0])
	assert.Equal(t, "[WARN] retrying\n- attempt=1", rec.texts[1])
}
