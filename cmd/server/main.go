package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"skyvault.gg/internal/config"
	"skyvault.gg/internal/persistence/evlog"
	"skyvault.gg/internal/persistence/linkdb"
	"skyvault.gg/internal/profile"
	"skyvault.gg/internal/protocol"
	"skyvault.gg/internal/rules"
	"skyvault.gg/internal/service"
	"skyvault.gg/internal/transport/httpapi"
	"skyvault.gg/internal/transport/ws"
	"skyvault.gg/internal/upstream"
)

func main() {
	var (
		addr      = flag.String("addr", "", "http listen address (overrides config)")
		cfgPath   = flag.String("config", "./configs/skyvault.yaml", "config path")
		dataDir   = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB = flag.Bool("disable_db", false, "disable the sqlite link store (/v1/roles then always reports unlinked)")
		noSnap    = flag.Bool("no_snapshots", false, "disable per-evaluation inventory snapshots")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*cfgPath)
	if os.IsNotExist(err) {
		logger.Printf("config not found (%s); using defaults", *cfgPath)
	} else if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Listen = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
	}
	if cfg.Upstream.APIKey == "" {
		logger.Printf("warning: no upstream api key (set upstream.api_key or SKYVAULT_API_KEY)")
	}

	table := rules.Parse(cfg.ItemRoles)
	for _, ar := range cfg.AttributeRoles {
		table.Attribute = append(table.Attribute, rules.AttributeRule{
			ItemID:    ar.ItemID,
			Attribute: ar.Attribute,
			Role:      ar.Role,
		})
	}
	logger.Printf("rule table: %d item rules, %d attribute rules", len(table.Rules), len(table.Attribute))

	ctx, cancel := signalContext()
	defer cancel()

	client := upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, logger)

	if cfg.Firehose.URL != "" {
		fh := ws.NewFirehose(cfg.Firehose.URL, cfg.Firehose.ClientName, logger)
		client.SetPublisher(func(ev upstream.Event) {
			fh.Publish(protocol.EventMsg{URL: ev.URL, Params: ev.Params, Data: ev.Data})
		})
		go fh.Run(ctx)
	}

	var store httpapi.LinkStore
	if !*disableDB {
		links, err := linkdb.Open(filepath.Join(cfg.DataDir, "links.db"))
		if err != nil {
			logger.Fatalf("open link store: %v", err)
		}
		defer links.Close()
		store = links
	}

	ev := &service.Evaluator{
		Source:          client,
		Museum:          client,
		Gate:            profile.MuseumGate{MinExperience: cfg.Museum.MinExperience, Zone: cfg.Museum.Zone},
		Table:           table,
		RankRoles:       cfg.RankRoles,
		GuildID:         cfg.GuildID,
		GuildMemberRole: cfg.GuildMemberRole,
		Log:             logger,
	}
	if !*noSnap {
		ev.SnapshotDir = cfg.DataDir
	}
	audit := evlog.New(cfg.DataDir)
	defer audit.Close()
	ev.Audit = audit
	if cfg.GuildID != "" {
		if err := ev.LoadGuild(ctx); err != nil {
			logger.Printf("%v (guild membership role disabled)", err)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.NewServer(ev, store, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
