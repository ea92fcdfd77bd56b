// Package service ties the pipeline together: fetch an account's profile
// document, aggregate every container, evaluate the rule table, and attach
// the handful of non-item roles (rank, guild membership). One call is one
// full recomputation; nothing is cached between calls.
package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"skyvault.gg/internal/persistence/evlog"
	"skyvault.gg/internal/persistence/invsnap"
	"skyvault.gg/internal/profile"
	"skyvault.gg/internal/protocol"
	"skyvault.gg/internal/rules"
	"skyvault.gg/internal/upstream"
)

// ProfileSource is the upstream surface the evaluator consumes.
// *upstream.Client satisfies it; tests substitute fakes.
type ProfileSource interface {
	Profiles(ctx context.Context, accountID string) (*profile.Document, error)
	PlayerRecord(ctx context.Context, accountID string) (*upstream.Player, error)
	GuildMembers(ctx context.Context, guildID string) ([]string, error)
}

// ErrNoProfiles reports an account with no profile data at all.
var ErrNoProfiles = fmt.Errorf("account has no profiles")

type Evaluator struct {
	Source ProfileSource
	Museum profile.MuseumFetcher
	Gate   profile.MuseumGate
	Table  rules.Table

	RankRoles       map[string]string
	GuildID         string
	GuildMemberRole string

	// SnapshotDir, when set, receives a per-account snapshot of each
	// evaluation for debugging. Failures to write are logged, never
	// surfaced.
	SnapshotDir string

	// Audit, when set, records every completed pass.
	Audit *evlog.Logger

	Log *log.Logger

	mu    sync.RWMutex
	guild map[string]bool
}

// LoadGuild fetches the guild roster once so membership checks are local.
// Safe to call again to refresh.
func (e *Evaluator) LoadGuild(ctx context.Context) error {
	if e.GuildID == "" || e.Source == nil {
		return nil
	}
	members, err := e.Source.GuildMembers(ctx, e.GuildID)
	if err != nil {
		return fmt.Errorf("guild roster: %w", err)
	}
	roster := make(map[string]bool, len(members))
	for _, id := range members {
		roster[normalizeAccountID(id)] = true
	}
	e.mu.Lock()
	e.guild = roster
	e.mu.Unlock()
	return nil
}

func (e *Evaluator) inGuild(accountID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.guild[accountID]
}

// Evaluate runs one full pass for an account and returns the earned role
// set. Per-container decode failures and museum hiccups degrade silently
// (logged); only a missing profiles document is an error.
func (e *Evaluator) Evaluate(ctx context.Context, accountID string) (protocol.EvaluateResponse, error) {
	accountID = normalizeAccountID(accountID)
	started := time.Now()

	doc, err := e.Source.Profiles(ctx, accountID)
	if err != nil {
		return protocol.EvaluateResponse{}, err
	}
	if doc == nil || len(doc.Profiles) == 0 {
		return protocol.EvaluateResponse{}, ErrNoProfiles
	}

	agg := &profile.Aggregator{Museum: e.Museum, Gate: e.Gate, Log: e.Log}
	res := agg.Aggregate(ctx, doc, accountID)

	roles := e.Table.Evaluate(res.Items, res.AppliedSkins)
	roles = append(roles, e.miscRoles(ctx, accountID)...)
	roles = dedupeSorted(roles)
	if roles == nil {
		roles = []string{} // serialize as [] rather than null
	}

	resp := protocol.EvaluateResponse{
		AccountID:    accountID,
		Roles:        roles,
		ItemCount:    len(res.Items),
		AppliedSkins: dedupeSorted(res.AppliedSkins),
		EvaluatedAt:  time.Now().UTC(),
	}

	if e.SnapshotDir != "" {
		_, err := invsnap.Write(e.SnapshotDir, invsnap.Snapshot{
			AccountID:    accountID,
			TakenAt:      resp.EvaluatedAt,
			Items:        res.Items,
			AppliedSkins: resp.AppliedSkins,
			Roles:        roles,
		})
		if err != nil {
			e.logf("snapshot %s: %v", accountID, err)
		}
	}

	if e.Audit != nil {
		err := e.Audit.Write(evlog.Entry{
			Time:      resp.EvaluatedAt,
			AccountID: accountID,
			Roles:     roles,
			ItemCount: resp.ItemCount,
			Source:    "api",
			Duration:  time.Since(started).Milliseconds(),
		})
		if err != nil {
			e.logf("audit %s: %v", accountID, err)
		}
	}

	return resp, nil
}

// miscRoles covers the grants that do not come from item ownership. Any
// failure here degrades to "no extra roles"; a flaky player record must not
// strip item entitlements.
func (e *Evaluator) miscRoles(ctx context.Context, accountID string) []string {
	var out []string

	if e.GuildMemberRole != "" && e.inGuild(accountID) {
		out = append(out, e.GuildMemberRole)
	}

	if len(e.RankRoles) > 0 {
		p, err := e.Source.PlayerRecord(ctx, accountID)
		if err != nil {
			e.logf("player record %s: %v", accountID, err)
			return out
		}
		if role, ok := e.RankRoles[p.Player.Rank]; ok {
			out = append(out, role)
		}
	}
	return out
}

func (e *Evaluator) logf(format string, args ...any) {
	if e.Log != nil {
		e.Log.Printf(format, args...)
	}
}

func normalizeAccountID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
