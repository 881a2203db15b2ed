package apiclient

import (
	"context"
	"net/http"

	"github.com/marmos91/staticd/pkg/api/handlers"
)

// Readiness is the payload of a successful GET /health/ready.
type Readiness struct {
	State   string `json:"state"`
	Address string `json:"address"`
	Workers int    `json:"workers"`
}

// Status fetches server counters, the origin and the cache state.
func (c *Client) Status(ctx context.Context) (*handlers.StatusResponse, error) {
	st, err := do[handlers.StatusResponse](ctx, c, http.MethodGet, "/api/v1/status")
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Ready returns the readiness payload. A server that is not listening
// yields an APIError for which IsUnavailable is true.
func (c *Client) Ready(ctx context.Context) (*Readiness, error) {
	r, err := do[Readiness](ctx, c, http.MethodGet, "/health/ready")
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Cache fetches the cache gate and slot state.
func (c *Client) Cache(ctx context.Context) (*handlers.CacheStatus, error) {
	cs, err := do[handlers.CacheStatus](ctx, c, http.MethodGet, "/api/v1/cache")
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// ToggleCache flips the cache gate and returns the resulting state.
func (c *Client) ToggleCache(ctx context.Context) (*handlers.CacheStatus, error) {
	cs, err := do[handlers.CacheStatus](ctx, c, http.MethodPost, "/api/v1/cache/toggle")
	if err != nil {
		return nil, err
	}
	return &cs, nil
}
