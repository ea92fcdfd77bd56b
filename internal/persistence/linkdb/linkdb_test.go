package linkdb_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"skyvault.gg/internal/persistence/linkdb"
)

func open(t *testing.T) *linkdb.DB {
	t.Helper()
	db, err := linkdb.Open(filepath.Join(t.TempDir(), "links.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLinks_PutGetDelete(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	if _, err := db.GetLink(ctx, "chat1"); !errors.Is(err, linkdb.ErrNotFound) {
		t.Fatalf("missing link: err=%v, want ErrNotFound", err)
	}

	if err := db.PutLink(ctx, linkdb.Link{ChatUserID: "chat1", AccountID: "acct1", Name: "Player1"}); err != nil {
		t.Fatalf("PutLink: %v", err)
	}

	l, err := db.GetLink(ctx, "chat1")
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if l.AccountID != "acct1" || l.Name != "Player1" || l.LinkedAt.IsZero() {
		t.Fatalf("link=%+v", l)
	}

	byAcct, err := db.GetLinkByAccount(ctx, "acct1")
	if err != nil || byAcct.ChatUserID != "chat1" {
		t.Fatalf("GetLinkByAccount: %+v, %v", byAcct, err)
	}

	// Relinking replaces the old association.
	if err := db.PutLink(ctx, linkdb.Link{ChatUserID: "chat1", AccountID: "acct2", Name: "Player1"}); err != nil {
		t.Fatalf("relink: %v", err)
	}
	l, _ = db.GetLink(ctx, "chat1")
	if l.AccountID != "acct2" {
		t.Fatalf("relink kept %q", l.AccountID)
	}

	if err := db.DeleteLink(ctx, "chat1"); err != nil {
		t.Fatalf("DeleteLink: %v", err)
	}
	if _, err := db.GetLink(ctx, "chat1"); !errors.Is(err, linkdb.ErrNotFound) {
		t.Fatalf("after delete: err=%v, want ErrNotFound", err)
	}
	// Idempotent delete.
	if err := db.DeleteLink(ctx, "chat1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestBans(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	if _, ok, err := db.GetBan(ctx, "acct1"); err != nil || ok {
		t.Fatalf("unexpected ban: ok=%v err=%v", ok, err)
	}

	if err := db.PutBan(ctx, linkdb.Ban{AccountID: "acct1", Reason: "evading"}); err != nil {
		t.Fatalf("PutBan: %v", err)
	}
	b, ok, err := db.GetBan(ctx, "acct1")
	if err != nil || !ok {
		t.Fatalf("GetBan: ok=%v err=%v", ok, err)
	}
	if b.Reason != "evading" || b.BannedAt.IsZero() {
		t.Fatalf("ban=%+v", b)
	}

	if err := db.DeleteBan(ctx, "acct1"); err != nil {
		t.Fatalf("DeleteBan: %v", err)
	}
	if _, ok, err := db.GetBan(ctx, "acct1"); err != nil || ok {
		t.Fatalf("ban survived delete: ok=%v err=%v", ok, err)
	}
	if err := db.DeleteBan(ctx, "acct1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
