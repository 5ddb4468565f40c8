package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	return NewWithConfig(Config{
		BaseURL:         baseURL,
		Rows:            10,
		Timeout:         2 * time.Second,
		RateLimitPerSec: 100,
		RateLimitBurst:  100,
		MaxRetries:      0,
	})
}

const searchPayload = `{
	"success": true,
	"result": {
		"results": [
			{
				"title": "Private Residential Property Price Index",
				"organization": {"title": "Urban Redevelopment Authority"},
				"metadata_modified": "2025-04-01T08:30:00",
				"resources": [
					{"url": "https://example.com/ppi.csv", "format": "CSV"},
					{"url": "https://example.com/ppi.pdf", "format": "PDF"}
				]
			},
			{
				"title": "No resources here",
				"resources": []
			}
		]
	}
}`

func TestSearchPackagesParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/package_search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "price index" {
			t.Errorf("query param q = %q, want %q", got, "price index")
		}
		w.Write([]byte(searchPayload))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	packages, err := client.SearchPackages(context.Background(), "price index")
	if err != nil {
		t.Fatalf("SearchPackages failed: %v", err)
	}
	if len(packages) != 2 {
		t.Fatalf("got %d packages, want 2", len(packages))
	}

	first := packages[0]
	if first.Title != "Private Residential Property Price Index" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Agency != "Urban Redevelopment Authority" {
		t.Errorf("agency = %q", first.Agency)
	}
	if first.LastModified.IsZero() {
		t.Error("last modified not parsed")
	}
	if len(first.Resources) != 2 {
		t.Fatalf("got %d resources, want 2", len(first.Resources))
	}
	if first.Resources[0].Format != "CSV" {
		t.Errorf("resource format = %q, want CSV", first.Resources[0].Format)
	}
}

func TestSearchPackagesUnsuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchPackages(context.Background(), "anything")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("SearchPackages = %v, want ErrSourceUnavailable", err)
	}
}

func TestSearchPackagesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchPackages(context.Background(), "anything")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("SearchPackages = %v, want ErrSourceUnavailable", err)
	}
}

func TestSearchPackagesNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchPackages(context.Background(), "anything")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("SearchPackages = %v, want ErrSourceUnavailable", err)
	}
}

func TestSearchPackagesRetriesOnTooManyRequests(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(searchPayload))
	}))
	defer server.Close()

	client := NewWithConfig(Config{
		BaseURL:         server.URL,
		Timeout:         2 * time.Second,
		RateLimitPerSec: 100,
		RateLimitBurst:  100,
		MaxRetries:      1,
	})
	packages, err := client.SearchPackages(context.Background(), "price index")
	if err != nil {
		t.Fatalf("SearchPackages failed after retry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(packages) != 2 {
		t.Errorf("got %d packages, want 2", len(packages))
	}
}
