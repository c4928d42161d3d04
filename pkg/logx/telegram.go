package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TextSender is the part of the transport adapter the Telegram sink needs.
type TextSender interface {
	SendPlain(ctx context.Context, chatID int64, text string) error
}

const (
	telegramQueueSize = 64
	telegramMaxLen    = 3500
	telegramValueLen  = 300
	// repeatWindow suppresses the same line mirrored again and again.
	repeatWindow = time.Minute
)

// selfComp marks entries from the transport itself; mirroring those could
// loop when Telegram is the thing failing.
const selfComp = "telegram.adapter"

// telegramSink is a zerolog.LevelWriter that mirrors entries into a chat.
// Writes never block: entries over the rate or past a full queue are dropped.
type telegramSink struct {
	mu       sync.Mutex
	sender   TextSender
	chatID   int64
	minLevel zerolog.Level
	limiter  *rate.Limiter
	lastMsg  string
	lastAt   time.Time

	queue   chan telegramItem
	once    sync.Once
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

type telegramItem struct {
	chatID int64
	text   string
}

func newTelegramSink(sender TextSender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		queue:    make(chan telegramItem, telegramQueueSize),
	}
}

func (t *telegramSink) setSender(s TextSender) {
	t.mu.Lock()
	t.sender = s
	t.mu.Unlock()
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	t.mu.Lock()
	t.chatID = cfg.ChatID
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.mu.Unlock()

	if cfg.Enabled {
		t.once.Do(t.start)
	}
}

func (t *telegramSink) start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx)
	}()
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-t.queue:
			t.mu.Lock()
			sender := t.sender
			t.mu.Unlock()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = sender.SendPlain(sctx, it.chatID, it.text)
			cancel()
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	n := len(p)
	text, comp := formatEntry(p)
	if text == "" || comp == selfComp {
		return n, nil
	}

	t.mu.Lock()
	chatID, lim := t.chatID, t.limiter
	skip := chatID == 0 || lim == nil || level < t.minLevel
	now := time.Now()
	if !skip && text == t.lastMsg && now.Sub(t.lastAt) < repeatWindow {
		skip = true
	}
	if !skip && !lim.Allow() {
		skip = true
	}
	if !skip {
		t.lastMsg, t.lastAt = text, now
	}
	t.mu.Unlock()
	if skip {
		return n, nil
	}

	select {
	case t.queue <- telegramItem{chatID: chatID, text: text}:
	default:
		t.dropped.Add(1)
	}
	return n, nil
}

// formatEntry renders one JSON log line as
//
//	[WARN] message
//	- key=value
//
// with keys sorted. It also returns the "comp" field.
func formatEntry(p []byte) (text, comp string) {
	raw := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return truncate(raw, telegramMaxLen), ""
	}
	comp, _ = m["comp"].(string)
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message", zerolog.CallerFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	if lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, truncate(fmt.Sprint(m[k]), telegramValueLen))
	}
	return truncate(b.String(), telegramMaxLen), comp
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
