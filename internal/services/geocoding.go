package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"golang.org/x/time/rate"
)

// GeocodingService performs reverse geocoding against a Nominatim-style
// provider with caching, bounded retries, and exponential backoff. It is
// advisory: it never returns an error, only a best-effort address string.
type GeocodingService struct {
	cache      *GeoCache
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	retries    int

	backoffBase time.Duration
	backoffCap  time.Duration
}

// Models the subset of the provider's response that we care about.
type nominatimResponse struct {
	Error       string           `json:"error"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
}

type nominatimAddress struct {
	HouseNumber   string `json:"house_number"`
	Road          string `json:"road"`
	Pedestrian    string `json:"pedestrian"`
	Suburb        string `json:"suburb"`
	Neighbourhood string `json:"neighbourhood"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	State         string `json:"state"`
	Country       string `json:"country"`
	Postcode      string `json:"postcode"`
}

// GeocodingOptions configures the resolver; zero values get sane defaults.
type GeocodingOptions struct {
	BaseURL      string
	UserAgent    string
	Timeout      time.Duration
	Retries      int
	CallInterval time.Duration // minimum spacing between provider calls
}

// NewGeocodingService returns a resolver backed by the given cache. The
// limiter spaces out every network call regardless of attempt number, which
// is what the provider's usage policy asks for.
func NewGeocodingService(cache *GeoCache, opts GeocodingOptions) *GeocodingService {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://nominatim.openstreetmap.org/reverse"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "CivicFixApp/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.CallInterval <= 0 {
		opts.CallInterval = 500 * time.Millisecond
	}

	return &GeocodingService{
		cache:       cache,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Every(opts.CallInterval), 1),
		baseURL:     opts.BaseURL,
		userAgent:   opts.UserAgent,
		retries:     opts.Retries,
		backoffBase: time.Second,
		backoffCap:  5 * time.Second,
	}
}

// ResolveAddress maps a coordinate pair to a human-readable address. On a
// cache hit within TTL it returns immediately; otherwise it attempts the
// provider up to retries+1 times and falls back to formatted coordinates,
// caching the fallback so repeated failures for the same cell stay local.
func (g *GeocodingService) ResolveAddress(ctx context.Context, lat, lon float64) string {
	key := cacheKey(lat, lon)
	if address, ok := g.cache.Get(key); ok {
		return address
	}

	var lastErr error
	for attempt := 1; attempt <= g.retries+1; attempt++ {
		address, err := g.fetchAddress(ctx, lat, lon)
		if err == nil {
			g.cache.Set(key, address)
			return address
		}
		lastErr = err

		if attempt <= g.retries {
			delay := g.backoffDelay(attempt)
			log.Warnf("geocoding attempt %d/%d failed, retrying in %v: %v",
				attempt, g.retries+1, delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				attempt = g.retries + 1 // no point retrying a dead request
			}
		}
	}

	log.Errorf("geocoding failed after %d attempts: %v", g.retries+1, lastErr)

	fallback := FormatCoordinatesAsAddress(lat, lon)
	g.cache.Set(key, fallback)
	return fallback
}

// backoffDelay grows exponentially per failed attempt, capped at backoffCap.
func (g *GeocodingService) backoffDelay(attempt int) time.Duration {
	delay := g.backoffBase * (1 << (attempt - 1))
	if delay > g.backoffCap {
		delay = g.backoffCap
	}
	return delay
}

// fetchAddress performs one provider call. Any non-200 status, provider
// error field, or transport failure is a retryable error.
func (g *GeocodingService) fetchAddress(ctx context.Context, lat, lon float64) (string, error) {
	// Respect the provider's rate limit before every call, first attempt included.
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", fmt.Sprintf("%f", lat))
	params.Set("lon", fmt.Sprintf("%f", lon))
	params.Set("zoom", "18")
	params.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("provider rate limited (429)")
	case http.StatusServiceUnavailable:
		return "", fmt.Errorf("provider unavailable (503)")
	default:
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var data nominatimResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("failed to parse geocoding response: %w", err)
	}
	if data.Error != "" {
		return "", fmt.Errorf("provider error: %s", data.Error)
	}

	return formatAddress(data.Address, data.DisplayName), nil
}

// formatAddress concatenates the best available locality fields, most
// specific first, falling back to the provider's free-text display name.
func formatAddress(a nominatimAddress, displayName string) string {
	var parts []string

	switch {
	case a.HouseNumber != "" && a.Road != "":
		parts = append(parts, a.HouseNumber+" "+a.Road)
	case a.Road != "":
		parts = append(parts, a.Road)
	case a.Pedestrian != "":
		parts = append(parts, a.Pedestrian)
	}

	if v := firstNonEmpty(a.Suburb, a.Neighbourhood); v != "" {
		parts = append(parts, v)
	}
	if v := firstNonEmpty(a.City, a.Town, a.Village); v != "" {
		parts = append(parts, v)
	}
	if a.State != "" {
		parts = append(parts, a.State)
	}
	if a.Country != "" {
		parts = append(parts, a.Country)
	}
	if a.Postcode != "" {
		parts = append(parts, a.Postcode)
	}

	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if displayName != "" {
		return displayName
	}
	return "Address not available"
}

// FormatCoordinatesAsAddress is the deterministic fallback when the provider
// cannot be reached.
func FormatCoordinatesAsAddress(lat, lon float64) string {
	return fmt.Sprintf("Location (%.4f, %.4f)", lat, lon)
}

// cacheKey rounds to 4 decimal places (~11m grid) so nearby lookups share an entry.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

// Returns the first non-empty string in the list.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
