package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestGeocoder(t *testing.T, handler http.HandlerFunc, retries int) (*GeocodingService, *httptest.Server) {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cache := NewGeoCache(24*time.Hour, 1000, 0)
	svc := NewGeocodingService(cache, GeocodingOptions{
		BaseURL:      ts.URL,
		UserAgent:    "CivicFixApp/1.0",
		Timeout:      2 * time.Second,
		Retries:      retries,
		CallInterval: time.Millisecond,
	})
	// Keep test runs fast; the growth curve is covered separately.
	svc.backoffBase = time.Millisecond
	return svc, ts
}

func TestResolveAddressFormatsStructuredResponse(t *testing.T) {
	var calls int64
	svc, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		if r.URL.Query().Get("addressdetails") != "1" {
			t.Error("request must set the addressing detail flag")
		}
		if ua := r.Header.Get("User-Agent"); ua != "CivicFixApp/1.0" {
			t.Errorf("missing client identifier header, got %q", ua)
		}
		fmt.Fprint(w, `{"address":{"house_number":"221","road":"Baker Street",
			"suburb":"Marylebone","city":"London","state":"England",
			"country":"United Kingdom","postcode":"NW1 6XE"}}`)
	}, 2)

	got := svc.ResolveAddress(context.Background(), 51.5238, -0.1586)
	want := "221 Baker Street, Marylebone, London, England, United Kingdom, NW1 6XE"
	if got != want {
		t.Errorf("address = %q, want %q", got, want)
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want 1", calls)
	}
}

func TestResolveAddressCachesWithinTTL(t *testing.T) {
	var calls int64
	svc, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		fmt.Fprint(w, `{"address":{"city":"Springfield","country":"USA"}}`)
	}, 2)

	first := svc.ResolveAddress(context.Background(), 39.7684, -89.6502)
	// Identical once rounded to 4 decimal places: same cache cell.
	second := svc.ResolveAddress(context.Background(), 39.76841, -89.65019)

	if first != second {
		t.Errorf("cached lookup returned different address: %q vs %q", first, second)
	}
	if calls != 1 {
		t.Errorf("provider called %d times for one cache cell, want 1", calls)
	}
}

func TestResolveAddressFallsBackAfterRetries(t *testing.T) {
	var calls int64
	svc, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)

	got := svc.ResolveAddress(context.Background(), 39.7684, -89.6502)

	if got != "Location (39.7684, -89.6502)" {
		t.Errorf("fallback address = %q", got)
	}
	if calls != 3 {
		t.Errorf("provider called %d times, want retries+1 = 3", calls)
	}

	// The fallback is cached too: repeated failures for the same cell must
	// not re-trigger the network.
	again := svc.ResolveAddress(context.Background(), 39.7684, -89.6502)
	if again != got {
		t.Errorf("second lookup = %q, want cached fallback %q", again, got)
	}
	if calls != 3 {
		t.Errorf("provider re-called after fallback was cached: %d calls", calls)
	}
}

func TestResolveAddressRetriesRateLimit(t *testing.T) {
	var calls int64
	svc, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"address":{"city":"Springfield","country":"USA"}}`)
	}, 2)

	got := svc.ResolveAddress(context.Background(), 39.7684, -89.6502)
	if got != "Springfield, USA" {
		t.Errorf("address after 429 retry = %q", got)
	}
	if calls != 2 {
		t.Errorf("provider called %d times, want 2", calls)
	}
}

func TestResolveAddressProviderErrorField(t *testing.T) {
	svc, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"Unable to geocode"}`)
	}, 1)

	got := svc.ResolveAddress(context.Background(), 0.0001, 0.0001)
	if !strings.HasPrefix(got, "Location (") {
		t.Errorf("provider error should exhaust retries into fallback, got %q", got)
	}
}

func TestResolveAddressDisplayNameFallback(t *testing.T) {
	svc, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"display_name":"Somewhere on the Steppe"}`)
	}, 0)

	if got := svc.ResolveAddress(context.Background(), 48.0, 67.0); got != "Somewhere on the Steppe" {
		t.Errorf("display_name fallback = %q", got)
	}
}

func TestResolveAddressNeverEmpty(t *testing.T) {
	svc, _ := newTestGeocoder(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}, 0)

	if got := svc.ResolveAddress(context.Background(), 12.0, 34.0); got != "Address not available" {
		t.Errorf("bare response should map to %q, got %q", "Address not available", got)
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	cache := NewGeoCache(time.Hour, 10, 0)
	svc := NewGeocodingService(cache, GeocodingOptions{Retries: 5})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // capped
		{5, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := svc.backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestFormatAddressPreferenceOrder(t *testing.T) {
	tests := []struct {
		name    string
		addr    nominatimAddress
		display string
		want    string
	}{
		{
			name: "pedestrian way when no road",
			addr: nominatimAddress{Pedestrian: "Old Arcade", Town: "Smalltown", Country: "USA"},
			want: "Old Arcade, Smalltown, USA",
		},
		{
			name: "road without house number",
			addr: nominatimAddress{Road: "Elm Street", Village: "Tinyville", Country: "USA"},
			want: "Elm Street, Tinyville, USA",
		},
		{
			name: "neighbourhood when no suburb",
			addr: nominatimAddress{Neighbourhood: "Old Quarter", City: "Metropolis", Country: "USA"},
			want: "Old Quarter, Metropolis, USA",
		},
		{
			name:    "display name when unstructured",
			addr:    nominatimAddress{},
			display: "Middle of Nowhere 42",
			want:    "Middle of Nowhere 42",
		},
		{
			name: "nothing at all",
			addr: nominatimAddress{},
			want: "Address not available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAddress(tt.addr, tt.display); got != tt.want {
				t.Errorf("formatAddress = %q, want %q", got, tt.want)
			}
		})
	}
}
