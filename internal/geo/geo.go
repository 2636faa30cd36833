// Package geo resolves an IP address to a human-readable location for the
// confirmation and notify messages.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Resolver turns an IP address into a display location. Implementations
// return an empty string when the IP cannot be resolved; callers treat
// that as "unknown".
type Resolver interface {
	Locate(ctx context.Context, ip string) string
}

// NoopResolver never resolves anything.
type NoopResolver struct{}

func (NoopResolver) Locate(ctx context.Context, ip string) string { return "" }

var _ Resolver = NoopResolver{}

// HTTPResolver queries an ip-api.com compatible JSON endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type geoResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
}

func (r *HTTPResolver) Locate(ctx context.Context, ip string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+ip, nil)
	if err != nil {
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var out geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Status != "success" {
		return ""
	}

	if out.City == "" {
		return out.Country
	}
	return fmt.Sprintf("%s, %s", out.Country, out.City)
}

var _ Resolver = (*HTTPResolver)(nil)
