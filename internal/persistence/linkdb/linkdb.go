// Package linkdb stores which chat accounts are linked to which game
// accounts, plus ban records for accounts that tried to evade one. The
// decode pipeline never reads it; only the roles lookup path does.
package linkdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Link is one chat-account to game-account association.
type Link struct {
	ChatUserID string
	AccountID  string
	Name       string
	LinkedAt   time.Time
}

// Ban is a recorded ban with the reason it was issued.
type Ban struct {
	AccountID string
	Reason    string
	BannedAt  time.Time
}

// ErrNotFound reports a missing link.
var ErrNotFound = errors.New("link not found")

type DB struct {
	db *sql.DB
}

func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS links (
			chat_user_id TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL,
			name         TEXT NOT NULL,
			linked_at    INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_links_account ON links(account_id);`,
		`CREATE TABLE IF NOT EXISTS bans (
			account_id TEXT PRIMARY KEY,
			reason     TEXT NOT NULL,
			banned_at  INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// PutLink inserts or replaces the link for a chat user.
func (d *DB) PutLink(ctx context.Context, l Link) error {
	if l.LinkedAt.IsZero() {
		l.LinkedAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO links(chat_user_id, account_id, name, linked_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(chat_user_id) DO UPDATE SET
		   account_id = excluded.account_id,
		   name       = excluded.name,
		   linked_at  = excluded.linked_at;`,
		l.ChatUserID, l.AccountID, l.Name, l.LinkedAt.Unix())
	return err
}

// GetLink looks up the link for a chat user.
func (d *DB) GetLink(ctx context.Context, chatUserID string) (Link, error) {
	var l Link
	var ts int64
	err := d.db.QueryRowContext(ctx,
		`SELECT chat_user_id, account_id, name, linked_at FROM links WHERE chat_user_id = ?;`,
		chatUserID).Scan(&l.ChatUserID, &l.AccountID, &l.Name, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, ErrNotFound
	}
	if err != nil {
		return Link{}, err
	}
	l.LinkedAt = time.Unix(ts, 0).UTC()
	return l, nil
}

// GetLinkByAccount finds which chat user an account is linked to.
func (d *DB) GetLinkByAccount(ctx context.Context, accountID string) (Link, error) {
	var l Link
	var ts int64
	err := d.db.QueryRowContext(ctx,
		`SELECT chat_user_id, account_id, name, linked_at FROM links WHERE account_id = ?;`,
		accountID).Scan(&l.ChatUserID, &l.AccountID, &l.Name, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, ErrNotFound
	}
	if err != nil {
		return Link{}, err
	}
	l.LinkedAt = time.Unix(ts, 0).UTC()
	return l, nil
}

// DeleteLink removes a chat user's link. Deleting a missing link is not an
// error.
func (d *DB) DeleteLink(ctx context.Context, chatUserID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM links WHERE chat_user_id = ?;`, chatUserID)
	return err
}

// PutBan records a ban for an account.
func (d *DB) PutBan(ctx context.Context, b Ban) error {
	if b.BannedAt.IsZero() {
		b.BannedAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO bans(account_id, reason, banned_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET
		   reason    = excluded.reason,
		   banned_at = excluded.banned_at;`,
		b.AccountID, b.Reason, b.BannedAt.Unix())
	return err
}

// DeleteBan lifts a ban. Lifting a missing ban is not an error.
func (d *DB) DeleteBan(ctx context.Context, accountID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM bans WHERE account_id = ?;`, accountID)
	return err
}

// GetBan returns the ban for an account, or ok=false.
func (d *DB) GetBan(ctx context.Context, accountID string) (Ban, bool, error) {
	var b Ban
	var ts int64
	err := d.db.QueryRowContext(ctx,
		`SELECT account_id, reason, banned_at FROM bans WHERE account_id = ?;`,
		accountID).Scan(&b.AccountID, &b.Reason, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Ban{}, false, nil
	}
	if err != nil {
		return Ban{}, false, err
	}
	b.BannedAt = time.Unix(ts, 0).UTC()
	return b, true, nil
}
