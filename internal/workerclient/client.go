// Package workerclient implements the outbound RPC side of the seven-scope
// cache-invalidation taxonomy (spec.md §4.5, C10): one POST per invalidation
// to a worker's edge endpoint, with a bounded timeout and no retry — the
// caller decides whether a failure is surfaced or gracefully degraded.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Scope is one of the seven cache-invalidation scopes of spec.md §4.5.
type Scope string

const (
	ScopeUserSession           Scope = "user-session"
	ScopeUserProtectedHost     Scope = "user-protectedhost"
	ScopeUserWorker            Scope = "user-worker"
	ScopeAllUsersProtectedHost Scope = "allusers-protectedhost"
	ScopeAllUsersWorker        Scope = "allusers-worker"
	ScopeHost                  Scope = "host"
	ScopeConfig                Scope = "config"
)

// Invalidation is the wire shape posted to a worker's cache-clear endpoint.
type Invalidation struct {
	Scope  Scope          `json:"scope"`
	Target map[string]any `json:"target"`
	Reason string         `json:"reason"`
}

const (
	defaultTimeout      = 10 * time.Second
	forceRefreshTimeout = 5 * time.Second
)

// Client posts cache-invalidation commands to edge workers.
type Client struct {
	http *http.Client
}

func New() *Client {
	return &Client{http: &http.Client{}}
}

// ClearCache posts one invalidation to https://<domain>/sunray-wrkr/v1/cache/clear
// with the given worker API key as Bearer auth and a 10s timeout (spec.md
// §4.5). The forceRefresh flag selects the shorter 5s timeout spec.md §5
// contracts for legacy "force refresh" flows.
func (c *Client) ClearCache(ctx context.Context, domain, apiKey string, inv Invalidation, forceRefresh bool) error {
	timeout := defaultTimeout
	if forceRefresh {
		timeout = forceRefreshTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("workerclient: marshal invalidation: %w", err)
	}

	url := fmt.Sprintf("https://%s/sunray-wrkr/v1/cache/clear", domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("workerclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("workerclient: cache clear request to %s: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("workerclient: cache clear to %s returned status %d", domain, resp.StatusCode)
	}
	return nil
}
