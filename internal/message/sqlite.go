//go:build sqlite
// +build sqlite

package message

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveAd(ctx context.Context, ad Ad) error {
	if ad.CreatedAt.IsZero() {
		ad.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ads(name, src_chat_id, src_thread_id, src_msg_id, fallback_text, created_by, created_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET
		   src_chat_id=excluded.src_chat_id,
		   src_thread_id=excluded.src_thread_id,
		   src_msg_id=excluded.src_msg_id,
		   fallback_text=excluded.fallback_text,
		   created_by=excluded.created_by,
		   created_at=excluded.created_at`,
		ad.Name, ad.Source.ChatID, ad.Source.ThreadID, ad.Source.MessageID,
		ad.FallbackText, ad.CreatedBy, ad.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetAd(ctx context.Context, name string) (Ad, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, src_chat_id, src_thread_id, src_msg_id, fallback_text, created_by, created_at
		 FROM ads WHERE name = ?`, name)
	ad, err := scanAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ad{}, ErrNotFound
	}
	return ad, err
}

func (s *sqliteStore) ListAds(ctx context.Context) ([]Ad, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, src_chat_id, src_thread_id, src_msg_id, fallback_text, created_by, created_at
		 FROM ads ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ad)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteAd(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ads WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SaveTargetList(ctx context.Context, tl TargetList) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO target_lists(name) VALUES(?) ON CONFLICT(name) DO NOTHING`, tl.Name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM target_list_entries WHERE list_name = ?`, tl.Name); err != nil {
		return err
	}
	for _, t := range tl.Targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO target_list_entries(list_name, chat_id, thread_id) VALUES(?,?,?)
			 ON CONFLICT(list_name, chat_id, thread_id) DO NOTHING`,
			tl.Name, t.ChatID, t.ThreadID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetTargetList(ctx context.Context, name string) (TargetList, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM target_lists WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return TargetList{}, err
	}
	if exists == 0 {
		return TargetList{}, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, thread_id FROM target_list_entries WHERE list_name = ? ORDER BY chat_id, thread_id`, name)
	if err != nil {
		return TargetList{}, err
	}
	defer rows.Close()

	tl := TargetList{Name: name}
	for rows.Next() {
		var t transport.ChatTarget
		if err := rows.Scan(&t.ChatID, &t.ThreadID); err != nil {
			return TargetList{}, err
		}
		tl.Targets = append(tl.Targets, t)
	}
	return tl, rows.Err()
}

func (s *sqliteStore) ListTargetLists(ctx context.Context) ([]TargetList, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM target_lists ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TargetList, 0, len(names))
	for _, n := range names {
		tl, err := s.GetTargetList(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, tl)
	}
	return out, nil
}

func (s *sqliteStore) DeleteTargetList(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM target_lists WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAd(r rowScanner) (Ad, error) {
	var ad Ad
	var createdAt string
	err := r.Scan(&ad.Name, &ad.Source.ChatID, &ad.Source.ThreadID, &ad.Source.MessageID,
		&ad.FallbackText, &ad.CreatedBy, &createdAt)
	if err != nil {
		return Ad{}, err
	}
	if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
		ad.CreatedAt = ts
	}
	return ad, nil
}
