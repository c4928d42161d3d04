// Package throttle suppresses repeated user-facing notices within a time window.
//
// A Throttle is a keyed "first caller wins" gate: the first ShouldNotify call
// for a key records the time and returns true, later calls inside the TTL
// return false. State is in-memory only and is lost on restart.
package throttle

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake.
type Clock func() time.Time

type Option func(*Throttle)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(t *Throttle) {
		if c != nil {
			t.now = c
		}
	}
}

// WithMaxEntries caps the table size; the oldest entries are evicted first.
func WithMaxEntries(n int) Option {
	return func(t *Throttle) { t.max = n }
}

type Throttle struct {
	mu   sync.Mutex
	now  Clock
	max  int
	seen map[string]entry
}

type entry struct {
	at  time.Time
	ttl time.Duration
}

func New(opts ...Option) *Throttle {
	t := &Throttle{now: time.Now, max: 10000, seen: map[string]entry{}}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ShouldNotify reports whether key may notify now. A non-positive ttl always allows.
func (t *Throttle) ShouldNotify(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)
	if e, ok := t.seen[key]; ok && now.Sub(e.at) < ttl {
		return false
	}
	t.seen[key] = entry{at: now, ttl: ttl}
	t.capLocked()
	return true
}

// Len returns the number of tracked keys.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// pruneLocked drops entries whose own window elapsed.
func (t *Throttle) pruneLocked(now time.Time) {
	for k, e := range t.seen {
		if now.Sub(e.at) >= e.ttl {
			delete(t.seen, k)
		}
	}
}

func (t *Throttle) capLocked() {
	for t.max > 0 && len(t.seen) > t.max {
		var (
			oldestKey string
			oldest    time.Time
		)
		for k, e := range t.seen {
			if oldestKey == "" || e.at.Before(oldest) {
				oldestKey, oldest = k, e.at
			}
		}
		delete(t.seen, oldestKey)
	}
}

// Gate binds a namespace and TTL to a shared Throttle.
type Gate struct {
	t  *Throttle
	ns string

	mu  sync.RWMutex
	ttl time.Duration
}

// Gate returns a gate for namespace ns. Namespaces are disjoint key spaces.
func (t *Throttle) Gate(ns string, ttl time.Duration) *Gate {
	g := &Gate{t: t, ns: ns}
	g.SetTTL(ttl)
	return g
}

// SetTTL changes the window for subsequent calls (config hot reload).
func (g *Gate) SetTTL(ttl time.Duration) {
	g.mu.Lock()
	g.ttl = ttl
	g.mu.Unlock()
}

func (g *Gate) TTL() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ttl
}

// Allow reports whether the key built from parts may notify now.
func (g *Gate) Allow(parts ...any) bool {
	return g.t.ShouldNotify(g.key(parts...), g.TTL())
}

func (g *Gate) key(parts ...any) string {
	var b strings.Builder
	b.WriteString(g.ns)
	for _, p := range parts {
		b.WriteByte('|')
		b.WriteString(fmt.Sprint(p))
	}
	return b.String()
}

const (
	NamespaceAlbum          = "album"
	NamespaceDocumentNotice = "document_notice"

	DefaultAlbumTTL          = 10 * time.Second
	DefaultDocumentNoticeTTL = 5 * time.Second
)

// Gates are the notice windows used by the draft flow.
type Gates struct {
	// Album is keyed by (chat id, media group id).
	Album *Gate
	// DocumentNotice is keyed by (chat id, admin id).
	DocumentNotice *Gate
}

// NewGates builds both gates on one Throttle. Zero TTLs fall back to defaults.
func NewGates(t *Throttle, albumTTL, documentTTL time.Duration) Gates {
	if albumTTL <= 0 {
		albumTTL = DefaultAlbumTTL
	}
	if documentTTL <= 0 {
		documentTTL = DefaultDocumentNoticeTTL
	}
	return Gates{
		Album:          t.Gate(NamespaceAlbum, albumTTL),
		DocumentNotice: t.Gate(NamespaceDocumentNotice, documentTTL),
	}
}
