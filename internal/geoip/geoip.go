// Package geoip enriches node check-ins with coarse location and VPN hints.
// Lookups are best effort: a failed or slow lookup never blocks validation.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Enrichment is the lookup result recorded against a node's last-seen state.
type Enrichment struct {
	Country string
	City    string
	VPN     bool
}

// Geo renders the enrichment as a single stored string, e.g. "AU/Sydney".
func (e Enrichment) Geo() string {
	if e.Country == "" {
		return ""
	}
	if e.City == "" {
		return e.Country
	}
	return e.Country + "/" + e.City
}

// Resolver looks up enrichment data for an IP. The boolean reports whether a
// usable result was obtained; callers treat false as "record the IP only".
type Resolver interface {
	Resolve(ctx context.Context, ip string) (Enrichment, bool)
}

// NoopResolver never resolves anything. Used when no lookup endpoint is
// configured.
type NoopResolver struct{}

func (NoopResolver) Resolve(context.Context, string) (Enrichment, bool) {
	return Enrichment{}, false
}

// HTTPResolver queries a JSON lookup endpoint of the form
// GET <base>/<ip> returning {"country_code": "...", "city": "...", "vpn": bool}.
type HTTPResolver struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 2 * time.Second},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, ip string) (Enrichment, bool) {
	if ip == "" {
		return Enrichment{}, false
	}

	endpoint := fmt.Sprintf("%s/%s", r.BaseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Enrichment{}, false
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return Enrichment{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Enrichment{}, false
	}

	var body struct {
		CountryCode string `json:"country_code"`
		City        string `json:"city"`
		VPN         bool   `json:"vpn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Enrichment{}, false
	}

	return Enrichment{Country: body.CountryCode, City: body.City, VPN: body.VPN}, true
}
