package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"postbot/internal/post"
	logx "postbot/pkg/logx"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

const pgUniqueViolation = "23505"

type postgresStore struct {
	db  *pgxpool.Pool
	log logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (*postgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	st := &postgresStore{db: pool, log: log}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Debug("postgres store ready", logx.Int("max_conns", int(pcfg.MaxConns)))
	return st, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(postgresMigrations, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) Close() error {
	if s != nil && s.db != nil {
		s.db.Close()
	}
	return nil
}

const pgPostCols = `id, created_by, created_at, updated_at, status, payload, sent_at, sent_count_success, sent_count_failed`

// sqlPost buffers a row before conversion to the domain type.
type sqlPost struct {
	ID        int64
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	Payload   []byte
	SentAt    *time.Time
	Success   int32
	Failed    int32
}

func scanPGPost(r pgx.Row) (*post.Post, error) {
	var sp sqlPost
	if err := r.Scan(&sp.ID, &sp.CreatedBy, &sp.CreatedAt, &sp.UpdatedAt, &sp.Status, &sp.Payload, &sp.SentAt, &sp.Success, &sp.Failed); err != nil {
		return nil, err
	}
	pl, err := decodePayload(sp.Payload)
	if err != nil {
		return nil, err
	}
	return &post.Post{
		ID:          sp.ID,
		CreatedBy:   sp.CreatedBy,
		CreatedAt:   sp.CreatedAt,
		UpdatedAt:   sp.UpdatedAt,
		Status:      post.Status(sp.Status),
		Payload:     pl,
		SentAt:      sp.SentAt,
		SentSuccess: int(sp.Success),
		SentFailed:  int(sp.Failed),
	}, nil
}

func (s *postgresStore) ActiveDraft(ctx context.Context, adminID int64) (*post.Post, error) {
	p, err := scanPGPost(s.db.QueryRow(ctx,
		`SELECT `+pgPostCols+` FROM posts WHERE created_by = $1 AND status = 'draft'`, adminID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, post.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: active draft: %w", err)
	}
	return p, nil
}

// CreateDraft retries when a concurrent transaction from another process
// inserted a draft for the same admin between our UPDATE and INSERT.
func (s *postgresStore) CreateDraft(ctx context.Context, adminID int64, pl post.Payload, now time.Time) (*post.Post, error) {
	b, err := encodePayload(pl)
	if err != nil {
		return nil, err
	}
	const attempts = 3
	for i := 1; ; i++ {
		p, err := s.createDraftTx(ctx, adminID, string(b), now)
		if err == nil {
			p.Payload = pl
			return p, nil
		}
		var pgErr *pgconn.PgError
		if i < attempts && errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			s.log.Debug("draft insert raced; retrying", logx.Int64("admin_id", adminID), logx.Int("attempt", i))
			continue
		}
		return nil, err
	}
}

func (s *postgresStore) createDraftTx(ctx context.Context, adminID int64, payload string, now time.Time) (*post.Post, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE posts SET status = 'canceled', updated_at = @now WHERE created_by = @admin AND status = 'draft'`,
		pgx.NamedArgs{"now": now, "admin": adminID})
	if err != nil {
		return nil, fmt.Errorf("supersede drafts: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.log.Debug("superseded draft", logx.Int64("admin_id", adminID), logx.Int64("count", tag.RowsAffected()))
	}

	p, err := scanPGPost(tx.QueryRow(ctx,
		`INSERT INTO posts (created_by, created_at, updated_at, status, payload)
		 VALUES (@admin, @now, @now, 'draft', @payload)
		 RETURNING `+pgPostCols,
		pgx.NamedArgs{"admin": adminID, "now": now, "payload": payload}))
	if err != nil {
		return nil, fmt.Errorf("insert draft: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *postgresStore) UpdateDraft(ctx context.Context, id int64, pl post.Payload, now time.Time) error {
	b, err := encodePayload(pl)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE posts SET payload = $1, updated_at = $2 WHERE id = $3 AND status = 'draft'`, string(b), now, id)
	if err != nil {
		return fmt.Errorf("db: update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return post.ErrNotDraft
	}
	return nil
}

func (s *postgresStore) CancelDraft(ctx context.Context, id int64, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE posts SET status = 'canceled', updated_at = $1 WHERE id = $2 AND status = 'draft'`, now, id)
	if err != nil {
		return false, fmt.Errorf("db: cancel draft: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) GetPost(ctx context.Context, id int64) (*post.Post, error) {
	p, err := scanPGPost(s.db.QueryRow(ctx, `SELECT `+pgPostCols+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, post.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get post: %w", err)
	}
	return p, nil
}

func (s *postgresStore) MarkSent(ctx context.Context, id int64, at time.Time, success, failed int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE posts
		 SET status = 'sent', sent_at = @at, updated_at = @at, sent_count_success = @ok, sent_count_failed = @fail
		 WHERE id = @id AND status = 'draft'`,
		pgx.NamedArgs{"at": at, "ok": success, "fail": failed, "id": id})
	if err != nil {
		return fmt.Errorf("db: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return post.ErrNotDraft
	}
	return nil
}

func (s *postgresStore) queryPosts(ctx context.Context, q string, args ...any) ([]*post.Post, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*post.Post
	for rows.Next() {
		p, err := scanPGPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *postgresStore) ListStaleDrafts(ctx context.Context, updatedBefore time.Time) ([]*post.Post, error) {
	return s.queryPosts(ctx,
		`SELECT `+pgPostCols+` FROM posts WHERE status = 'draft' AND updated_at < $1 ORDER BY updated_at`, updatedBefore)
}

func (s *postgresStore) ListRecent(ctx context.Context, limit int) ([]*post.Post, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryPosts(ctx, `SELECT `+pgPostCols+` FROM posts ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

func (s *postgresStore) ListConfirmedRecipientIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT tg_id FROM users WHERE status = $1 ORDER BY created_at, tg_id`, string(UserConfirmed))
	if err != nil {
		return nil, fmt.Errorf("db: list recipients: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *postgresStore) UpsertUser(ctx context.Context, tgID int64, username string, status UserStatus, now time.Time) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (tg_id, username, status, created_at, updated_at) VALUES (@id, @username, @status, @now, @now)
		 ON CONFLICT (tg_id) DO UPDATE SET username = EXCLUDED.username, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		pgx.NamedArgs{"id": tgID, "username": nullStr(username), "status": string(status), "now": now})
	return err
}
