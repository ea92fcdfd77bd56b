// Command admin operates on the service's local state: the link store and
// the persisted evaluation artifacts. It never talks to the upstream API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"skyvault.gg/internal/persistence/evlog"
	"skyvault.gg/internal/persistence/invsnap"
	"skyvault.gg/internal/persistence/linkdb"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "link":
			linkCmd(os.Args[2:])
			return
		case "unlink":
			unlinkCmd(os.Args[2:])
			return
		case "show":
			showCmd(os.Args[2:])
			return
		case "ban":
			banCmd(os.Args[2:])
			return
		case "unban":
			unbanCmd(os.Args[2:])
			return
		case "snap":
			snapCmd(os.Args[2:])
			return
		case "evlog":
			evlogCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin <link|unlink|show|ban|unban|snap|evlog> [flags]")
	os.Exit(2)
}

func openDB(dataDir string) *linkdb.DB {
	db, err := linkdb.Open(filepath.Join(dataDir, "links.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open link store:", err)
		os.Exit(1)
	}
	return db
}

func linkCmd(args []string) {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	user := fs.String("user", "", "chat user id")
	account := fs.String("account", "", "game account id")
	name := fs.String("name", "", "display name (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*user) == "" || strings.TrimSpace(*account) == "" {
		fmt.Fprintln(os.Stderr, "missing -user or -account")
		os.Exit(2)
	}

	db := openDB(*dataDir)
	defer db.Close()
	err := db.PutLink(context.Background(), linkdb.Link{
		ChatUserID: *user,
		AccountID:  strings.ToLower(strings.ReplaceAll(*account, "-", "")),
		Name:       *name,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "link:", err)
		os.Exit(1)
	}
	fmt.Printf("linked %s -> %s\n", *user, *account)
}

func unlinkCmd(args []string) {
	fs := flag.NewFlagSet("unlink", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	user := fs.String("user", "", "chat user id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*user) == "" {
		fmt.Fprintln(os.Stderr, "missing -user")
		os.Exit(2)
	}

	db := openDB(*dataDir)
	defer db.Close()
	if err := db.DeleteLink(context.Background(), *user); err != nil {
		fmt.Fprintln(os.Stderr, "unlink:", err)
		os.Exit(1)
	}
	fmt.Println("unlinked", *user)
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	user := fs.String("user", "", "chat user id")
	account := fs.String("account", "", "game account id (reverse lookup)")
	_ = fs.Parse(args)

	db := openDB(*dataDir)
	defer db.Close()
	ctx := context.Background()

	var l linkdb.Link
	var err error
	switch {
	case strings.TrimSpace(*user) != "":
		l, err = db.GetLink(ctx, *user)
	case strings.TrimSpace(*account) != "":
		l, err = db.GetLinkByAccount(ctx, strings.ToLower(strings.ReplaceAll(*account, "-", "")))
	default:
		fmt.Fprintln(os.Stderr, "missing -user or -account")
		os.Exit(2)
	}
	if errors.Is(err, linkdb.ErrNotFound) {
		fmt.Println("not linked")
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "lookup:", err)
		os.Exit(1)
	}

	fmt.Printf("user=%s account=%s name=%q linked_at=%s\n", l.ChatUserID, l.AccountID, l.Name, l.LinkedAt.Format("2006-01-02 15:04:05"))
	if ban, banned, err := db.GetBan(ctx, l.AccountID); err == nil && banned {
		fmt.Printf("BANNED since %s: %s\n", ban.BannedAt.Format("2006-01-02"), ban.Reason)
	}
}

func banCmd(args []string) {
	fs := flag.NewFlagSet("ban", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	account := fs.String("account", "", "game account id")
	reason := fs.String("reason", "", "ban reason")
	_ = fs.Parse(args)

	if strings.TrimSpace(*account) == "" {
		fmt.Fprintln(os.Stderr, "missing -account")
		os.Exit(2)
	}

	db := openDB(*dataDir)
	defer db.Close()
	err := db.PutBan(context.Background(), linkdb.Ban{
		AccountID: strings.ToLower(strings.ReplaceAll(*account, "-", "")),
		Reason:    *reason,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ban:", err)
		os.Exit(1)
	}
	fmt.Println("banned", *account)
}

func unbanCmd(args []string) {
	fs := flag.NewFlagSet("unban", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	account := fs.String("account", "", "game account id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*account) == "" {
		fmt.Fprintln(os.Stderr, "missing -account")
		os.Exit(2)
	}

	db := openDB(*dataDir)
	defer db.Close()
	if err := db.DeleteBan(context.Background(), strings.ToLower(strings.ReplaceAll(*account, "-", ""))); err != nil {
		fmt.Fprintln(os.Stderr, "unban:", err)
		os.Exit(1)
	}
	fmt.Println("unbanned", *account)
}

func snapCmd(args []string) {
	fs := flag.NewFlagSet("snap", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	account := fs.String("account", "", "game account id")
	items := fs.Bool("items", false, "also print item ids")
	_ = fs.Parse(args)

	if strings.TrimSpace(*account) == "" {
		fmt.Fprintln(os.Stderr, "missing -account")
		os.Exit(2)
	}
	acct := strings.ToLower(strings.ReplaceAll(*account, "-", ""))

	snap, err := invsnap.Read(filepath.Join(*dataDir, "inv", acct+".json.zst"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("account=%s taken_at=%s items=%d skins=%d roles=%d\n",
		snap.AccountID, snap.TakenAt.Format("2006-01-02 15:04:05"), len(snap.Items), len(snap.AppliedSkins), len(snap.Roles))
	for _, role := range snap.Roles {
		fmt.Println("role", role)
	}
	if *items {
		for uuid, it := range snap.Items {
			fmt.Printf("item %s %s\n", uuid, it.ID())
		}
	}
}

func evlogCmd(args []string) {
	fs := flag.NewFlagSet("evlog", flag.ExitOnError)
	path := fs.String("path", "", "path to an evlog-*.jsonl.zst file")
	account := fs.String("account", "", "filter by game account id (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -path")
		os.Exit(2)
	}

	entries, err := evlog.ReadFile(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read evlog:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if *account != "" && e.AccountID != *account {
			continue
		}
		fmt.Printf("%s %s items=%d roles=%s %dms\n",
			e.Time.Format("2006-01-02 15:04:05"), e.AccountID, e.ItemCount, strings.Join(e.Roles, ","), e.Duration)
	}
}
