// Command evaluate runs one evaluation pass from the terminal, either
// against a saved profiles document (offline, no museum fetches) or live
// against the upstream API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"skyvault.gg/internal/config"
	"skyvault.gg/internal/profile"
	"skyvault.gg/internal/rules"
	"skyvault.gg/internal/service"
	"skyvault.gg/internal/upstream"
)

func main() {
	var (
		docPath   = flag.String("doc", "", "path to a saved profiles document (offline mode)")
		accountID = flag.String("account", "", "game account id")
		cfgPath   = flag.String("config", "./configs/skyvault.yaml", "config path")
		showItems = flag.Bool("items", false, "also print the unified item ids")
	)
	flag.Parse()

	if *accountID == "" {
		fmt.Fprintln(os.Stderr, "missing -account")
		os.Exit(2)
	}
	// Member keys in the document use the compact lowercase form.
	acct := strings.ToLower(strings.ReplaceAll(*accountID, "-", ""))

	cfg, err := config.Load(*cfgPath)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	table := rules.Parse(cfg.ItemRoles)
	for _, ar := range cfg.AttributeRoles {
		table.Attribute = append(table.Attribute, rules.AttributeRule{
			ItemID:    ar.ItemID,
			Attribute: ar.Attribute,
			Role:      ar.Role,
		})
	}

	logger := log.New(os.Stderr, "[evaluate] ", log.LstdFlags)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var doc *profile.Document
	var museum profile.MuseumFetcher
	if *docPath != "" {
		raw, err := os.ReadFile(*docPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read document:", err)
			os.Exit(1)
		}
		doc = &profile.Document{}
		if err := json.Unmarshal(raw, doc); err != nil {
			fmt.Fprintln(os.Stderr, "parse document:", err)
			os.Exit(1)
		}
	} else {
		client := upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, logger)
		doc, err = client.Profiles(ctx, acct)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fetch profiles:", err)
			os.Exit(1)
		}
		museum = client
	}
	if doc == nil || len(doc.Profiles) == 0 {
		fmt.Fprintln(os.Stderr, service.ErrNoProfiles)
		os.Exit(1)
	}

	agg := &profile.Aggregator{
		Museum: museum,
		Gate:   profile.MuseumGate{MinExperience: cfg.Museum.MinExperience, Zone: cfg.Museum.Zone},
		Log:    logger,
	}
	res := agg.Aggregate(ctx, doc, acct)
	roles := table.Evaluate(res.Items, res.AppliedSkins)

	fmt.Printf("account=%s profiles=%d items=%d skins=%d\n",
		acct, len(doc.Profiles), len(res.Items), len(res.AppliedSkins))
	for _, role := range roles {
		fmt.Println("role", role)
	}
	if *showItems {
		counts := map[string]int{}
		for _, it := range res.Items {
			if id := it.ID(); id != "" {
				counts[id]++
			}
		}
		ids := make([]string, 0, len(counts))
		for id := range counts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("item %s x%d\n", id, counts[id])
		}
	}
}
