package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postbot/internal/post"
	logx "postbot/pkg/logx"
)

// stores returns every backend available to the test run. Postgres joins
// when POSTBOT_TEST_POSTGRES_DSN points at a disposable database.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	out := map[string]Store{}

	sq, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "posts.db")}, logx.Nop())
	require.NoError(t, err)
	out["sqlite"] = sq

	if dsn := os.Getenv("POSTBOT_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := Open(ctx, Config{Driver: "postgres", DSN: dsn}, logx.Nop())
		require.NoError(t, err)
		pgs := pg.(*postgresStore)
		_, err = pgs.db.Exec(ctx, `TRUNCATE posts, users RESTART IDENTITY`)
		require.NoError(t, err)
		out["postgres"] = pg
	}
	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range stores(t) {
		s := s
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateDraftSupersedes(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.ActiveDraft(ctx, 10)
		require.ErrorIs(t, err, post.ErrNotFound)

		first, err := s.CreateDraft(ctx, 10, post.Payload{Text: &post.Text{Body: "one"}}, t0)
		require.NoError(t, err)
		second, err := s.CreateDraft(ctx, 10, post.Payload{}, t0.Add(time.Minute))
		require.NoError(t, err)
		require.NotEqual(t, first.ID, second.ID)

		active, err := s.ActiveDraft(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)

		old, err := s.GetPost(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, post.StatusCanceled, old.Status)
		assert.Nil(t, old.SentAt)

		// Another admin is unaffected.
		other, err := s.CreateDraft(ctx, 11, post.Payload{}, t0)
		require.NoError(t, err)
		active, err = s.ActiveDraft(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)
		assert.NotEqual(t, other.ID, active.ID)
	})
}

func TestUpdateDraftRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		d, err := s.CreateDraft(ctx, 20, post.Payload{}, t0)
		require.NoError(t, err)

		pl := post.Payload{
			Text:     &post.Text{Body: "hello", Entities: []post.Entity{{Type: "text_link", Offset: 0, Length: 5, URL: "https://example.org"}}},
			Media:    &post.Media{Kind: post.MediaPhoto, FileRef: "AgAC"},
			Document: &post.Document{FileRef: "BQAC", FileName: "rules.pdf"},
		}
		require.NoError(t, s.UpdateDraft(ctx, d.ID, pl, t0.Add(time.Second)))

		got, err := s.GetPost(ctx, d.ID)
		require.NoError(t, err)
		assert.True(t, pl.Equal(got.Payload), "payload survives the round trip")
		assert.Equal(t, post.StatusDraft, got.Status)
		assert.True(t, got.UpdatedAt.After(got.CreatedAt))
	})
}

func TestGuardedWritesRejectNonDrafts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		d, err := s.CreateDraft(ctx, 30, post.Payload{Text: &post.Text{Body: "x"}}, t0)
		require.NoError(t, err)

		require.NoError(t, s.MarkSent(ctx, d.ID, t0.Add(time.Hour), 7, 2))
		got, err := s.GetPost(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, post.StatusSent, got.Status)
		assert.Equal(t, 7, got.SentSuccess)
		assert.Equal(t, 2, got.SentFailed)
		require.NotNil(t, got.SentAt)
		assert.True(t, got.SentAt.Equal(t0.Add(time.Hour)))

		assert.ErrorIs(t, s.MarkSent(ctx, d.ID, t0, 1, 1), post.ErrNotDraft)
		assert.ErrorIs(t, s.UpdateDraft(ctx, d.ID, post.Payload{}, t0), post.ErrNotDraft)
		ok, err := s.CancelDraft(ctx, d.ID, t0)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.GetPost(ctx, 999999)
		assert.ErrorIs(t, err, post.ErrNotFound)
	})
}

func TestCancelDraftIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		d, err := s.CreateDraft(ctx, 40, post.Payload{}, t0)
		require.NoError(t, err)
		ok, err := s.CancelDraft(ctx, d.ID, t0)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.CancelDraft(ctx, d.ID, t0)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = s.ActiveDraft(ctx, 40)
		assert.ErrorIs(t, err, post.ErrNotFound)
	})
}

func TestListStaleAndRecent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		old, err := s.CreateDraft(ctx, 50, post.Payload{}, t0)
		require.NoError(t, err)
		_, err = s.CreateDraft(ctx, 51, post.Payload{}, t0.Add(2*time.Hour))
		require.NoError(t, err)

		stale, err := s.ListStaleDrafts(ctx, t0.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, old.ID, stale[0].ID)

		recent, err := s.ListRecent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.EqualValues(t, 51, recent[0].CreatedBy)
	})
}

func TestConfirmedRecipients(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.UpsertUser(ctx, 3, "c", UserConfirmed, t0))
		require.NoError(t, s.UpsertUser(ctx, 1, "a", UserConfirmed, t0.Add(time.Second)))
		require.NoError(t, s.UpsertUser(ctx, 2, "", UserTokenVerified, t0))
		require.NoError(t, s.UpsertUser(ctx, 4, "d", UserConfirmed, t0.Add(2*time.Second)))
		require.NoError(t, s.UpsertUser(ctx, 4, "d", UserNone, t0.Add(3*time.Second)))

		ids, err := s.ListConfirmedRecipientIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 1}, ids)
	})
}

func TestConcurrentCreateKeepsOneDraft(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CreateDraft(ctx, 60, post.Payload{}, time.Now())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		recent, err := s.ListRecent(ctx, 50)
		require.NoError(t, err)
		drafts := 0
		for _, p := range recent {
			if p.CreatedBy == 60 && p.Status == post.StatusDraft {
				drafts++
			}
		}
		assert.Equal(t, 1, drafts)
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(context.Background(), Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}
