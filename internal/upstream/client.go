// Package upstream is the HTTP client for the game data API: account
// profiles, per-profile museums, player records, guild rosters. The decode
// pipeline never touches this package directly; it reaches it through the
// aggregator's museum-fetch boundary or the service facade.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"skyvault.gg/internal/profile"
)

// playerRateLimitCause marks the per-player lookup cooldown, which is
// handled by serving the cached last response instead of waiting out the
// window.
const playerRateLimitCause = "You have already looked up this player too recently, please try again shortly"

// Event is one upstream response, published to the firehose for central
// tracking.
type Event struct {
	URL    string            `json:"url"`
	Params map[string]string `json:"params"`
	Data   json.RawMessage   `json:"data"`
}

// StatusError reports a non-success upstream status after retries ran out.
type StatusError struct {
	Endpoint string
	Status   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: status %d", e.Endpoint, e.Status)
}

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     *log.Logger

	// retryWait paces retries on transient upstream failures. Tests
	// shrink it.
	retryWait  time.Duration
	maxRetries int

	publish func(Event) // optional firehose hook

	mu   sync.Mutex
	last map[string]json.RawMessage // last good response per subject id
}

func New(baseURL, apiKey string, logger *log.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpc:      &http.Client{Timeout: 30 * time.Second},
		log:        logger,
		retryWait:  5 * time.Second,
		maxRetries: 3,
		last:       map[string]json.RawMessage{},
	}
}

// SetPublisher installs the firehose hook. Every successful response is
// handed to fn; fn must not block.
func (c *Client) SetPublisher(fn func(Event)) { c.publish = fn }

// SetRetry overrides retry pacing (tests).
func (c *Client) SetRetry(wait time.Duration, max int) {
	c.retryWait = wait
	c.maxRetries = max
}

// Profiles fetches the full profiles document for an account id (dashes are
// stripped; upstream wants the compact form).
func (c *Client) Profiles(ctx context.Context, accountID string) (*profile.Document, error) {
	raw, err := c.get(ctx, "/skyblock/profiles", map[string]string{
		"uuid": strings.ReplaceAll(accountID, "-", ""),
	})
	if err != nil {
		return nil, err
	}
	var doc profile.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("profiles document: %w", err)
	}
	return &doc, nil
}

// FetchMuseum satisfies profile.MuseumFetcher.
func (c *Client) FetchMuseum(ctx context.Context, profileID string) (*profile.MuseumDocument, error) {
	raw, err := c.get(ctx, "/skyblock/museum", map[string]string{"profile": profileID})
	if err != nil {
		return nil, err
	}
	var doc profile.MuseumDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("museum document: %w", err)
	}
	return &doc, nil
}

// Player is the subset of the upstream player record the service consumes.
type Player struct {
	Player struct {
		Rank        string `json:"rank"`
		SocialMedia struct {
			Links map[string]string `json:"links"`
		} `json:"socialMedia"`
	} `json:"player"`
}

// LinkedDiscord returns the discord name the player linked in game, or "".
func (p *Player) LinkedDiscord() string {
	return p.Player.SocialMedia.Links["DISCORD"]
}

func (c *Client) PlayerRecord(ctx context.Context, accountID string) (*Player, error) {
	raw, err := c.get(ctx, "/player", map[string]string{
		"uuid": strings.ReplaceAll(accountID, "-", ""),
	})
	if err != nil {
		return nil, err
	}
	var p Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("player record: %w", err)
	}
	return &p, nil
}

// GuildMembers returns the account ids of a guild's members.
func (c *Client) GuildMembers(ctx context.Context, guildID string) ([]string, error) {
	raw, err := c.get(ctx, "/guild", map[string]string{"id": guildID})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Guild struct {
			Members []struct {
				UUID string `json:"uuid"`
			} `json:"members"`
		} `json:"guild"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("guild document: %w", err)
	}
	out := make([]string, 0, len(resp.Guild.Members))
	for _, m := range resp.Guild.Members {
		out = append(out, m.UUID)
	}
	return out, nil
}

// get performs one authenticated request with retries. 429 responses caused
// by the per-player cooldown are served from the cached last response for
// that subject when available; other failures retry with pacing until the
// budget or the context runs out.
func (c *Client) get(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	subject := subjectID(params)

	var lastStatus int
	for attempt := 0; ; attempt++ {
		raw, status, err := c.do(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		if status == http.StatusOK || status == http.StatusNoContent {
			if subject != "" {
				c.mu.Lock()
				c.last[subject] = raw
				c.mu.Unlock()
			}
			if c.publish != nil {
				c.publish(Event{URL: c.baseURL + endpoint, Params: params, Data: raw})
			}
			return raw, nil
		}
		lastStatus = status

		if status == http.StatusTooManyRequests {
			var body struct {
				Cause string `json:"cause"`
			}
			_ = json.Unmarshal(raw, &body)
			if body.Cause == playerRateLimitCause && subject != "" {
				c.mu.Lock()
				cached, ok := c.last[subject]
				c.mu.Unlock()
				if ok {
					return cached, nil
				}
			}
			c.logf("rate limited on %s (attempt %d)", endpoint, attempt+1)
		} else {
			c.logf("upstream %s returned %d (attempt %d)", endpoint, status, attempt+1)
		}

		if attempt >= c.maxRetries {
			return nil, &StatusError{Endpoint: endpoint, Status: lastStatus}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryWait):
		}
	}
}

func (c *Client) do(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, int, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, 0, err
	}
	return raw, resp.StatusCode, nil
}

func (c *Client) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}

// subjectID picks the identifier a request is about, for last-response
// caching. Mirrors upstream's own rate-limit keying.
func subjectID(params map[string]string) string {
	for _, k := range []string{"uuid", "player", "id", "profile"} {
		if v := params[k]; v != "" {
			return v
		}
	}
	return ""
}
