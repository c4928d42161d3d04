package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"postbot/internal/post"
	logx "postbot/pkg/logx"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; transactions never interleave.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(ctx, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sqlitePostCols = `id, created_by, created_at, updated_at, status, payload, sent_at, sent_count_success, sent_count_failed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(r rowScanner) (*post.Post, error) {
	var (
		p                  post.Post
		createdMS, updMS   int64
		status             string
		payload            string
		sentMS             sql.NullInt64
		success, failedCnt int
	)
	if err := r.Scan(&p.ID, &p.CreatedBy, &createdMS, &updMS, &status, &payload, &sentMS, &success, &failedCnt); err != nil {
		return nil, err
	}
	pl, err := decodePayload([]byte(payload))
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(createdMS)
	p.UpdatedAt = time.UnixMilli(updMS)
	p.Status = post.Status(status)
	p.Payload = pl
	p.SentSuccess = success
	p.SentFailed = failedCnt
	if sentMS.Valid {
		t := time.UnixMilli(sentMS.Int64)
		p.SentAt = &t
	}
	return &p, nil
}

func (s *sqliteStore) ActiveDraft(ctx context.Context, adminID int64) (*post.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqlitePostCols+` FROM posts WHERE created_by = ? AND status = 'draft'`, adminID)
	p, err := scanSQLitePost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, post.ErrNotFound
	}
	return p, err
}

func (s *sqliteStore) CreateDraft(ctx context.Context, adminID int64, pl post.Payload, now time.Time) (*post.Post, error) {
	b, err := encodePayload(pl)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ms := now.UnixMilli()
	res, err := tx.ExecContext(ctx,
		`UPDATE posts SET status = 'canceled', updated_at = ? WHERE created_by = ? AND status = 'draft'`, ms, adminID)
	if err != nil {
		return nil, fmt.Errorf("supersede drafts: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug("superseded draft", logx.Int64("admin_id", adminID), logx.Int64("count", n))
	}
	res, err = tx.ExecContext(ctx,
		`INSERT INTO posts(created_by, created_at, updated_at, status, payload) VALUES(?, ?, ?, 'draft', ?)`,
		adminID, ms, ms, string(b))
	if err != nil {
		return nil, fmt.Errorf("insert draft: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &post.Post{
		ID:        id,
		CreatedBy: adminID,
		CreatedAt: time.UnixMilli(ms),
		UpdatedAt: time.UnixMilli(ms),
		Status:    post.StatusDraft,
		Payload:   pl,
	}, nil
}

func (s *sqliteStore) UpdateDraft(ctx context.Context, id int64, pl post.Payload, now time.Time) error {
	b, err := encodePayload(pl)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET payload = ?, updated_at = ? WHERE id = ? AND status = 'draft'`,
		string(b), now.UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return post.ErrNotDraft
	}
	return nil
}

func (s *sqliteStore) CancelDraft(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = 'canceled', updated_at = ? WHERE id = ? AND status = 'draft'`, now.UnixMilli(), id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) GetPost(ctx context.Context, id int64) (*post.Post, error) {
	p, err := scanSQLitePost(s.db.QueryRowContext(ctx, `SELECT `+sqlitePostCols+` FROM posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, post.ErrNotFound
	}
	return p, err
}

func (s *sqliteStore) MarkSent(ctx context.Context, id int64, at time.Time, success, failed int) error {
	ms := at.UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = 'sent', sent_at = ?, updated_at = ?, sent_count_success = ?, sent_count_failed = ?
		 WHERE id = ? AND status = 'draft'`,
		ms, ms, success, failed, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return post.ErrNotDraft
	}
	return nil
}

func (s *sqliteStore) queryPosts(ctx context.Context, q string, args ...any) ([]*post.Post, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*post.Post
	for rows.Next() {
		p, err := scanSQLitePost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListStaleDrafts(ctx context.Context, updatedBefore time.Time) ([]*post.Post, error) {
	return s.queryPosts(ctx,
		`SELECT `+sqlitePostCols+` FROM posts WHERE status = 'draft' AND updated_at < ? ORDER BY updated_at`,
		updatedBefore.UnixMilli())
}

func (s *sqliteStore) ListRecent(ctx context.Context, limit int) ([]*post.Post, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryPosts(ctx,
		`SELECT `+sqlitePostCols+` FROM posts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

func (s *sqliteStore) ListConfirmedRecipientIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tg_id FROM users WHERE status = ? ORDER BY created_at, tg_id`, string(UserConfirmed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) UpsertUser(ctx context.Context, tgID int64, username string, status UserStatus, now time.Time) error {
	ms := now.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(tg_id, username, status, created_at, updated_at) VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(tg_id) DO UPDATE SET username = excluded.username, status = excluded.status, updated_at = excluded.updated_at`,
		tgID, nullStr(username), string(status), ms, ms)
	return err
}
