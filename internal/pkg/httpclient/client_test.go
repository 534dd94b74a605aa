package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
)

func newTestClient(baseURL string) *Client {
	return NewClient(noop.NewTracerProvider().Tracer("test"), StaticResolver{"customer-service": baseURL}, time.Second)
}

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/customer/identify/email" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("dry") != "1" {
			t.Errorf("Expected query to be forwarded")
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"count": len(in)})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	var out struct {
		Count int `json:"count"`
	}
	err := c.DoJSON(context.Background(), http.MethodPut, "customer-service", "api/v1/customer/identify/email",
		url.Values{"dry": {"1"}}, map[string]string{"c1": "Laptop", "c2": "Laptop"}, &out)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.Count != 2 {
		t.Errorf("Expected count 2, got %d", out.Count)
	}
}

func TestDoJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "customer not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).DoJSON(context.Background(), http.MethodGet, "customer-service", "/x", nil, nil, nil)
	if !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("Expected 404 StatusError, got %v", err)
	}
}

func TestDoJSONUnknownService(t *testing.T) {
	err := newTestClient("http://unused").DoJSON(context.Background(), http.MethodGet, "product-service", "/x", nil, nil, nil)
	if err == nil {
		t.Fatalf("Expected resolution error")
	}
}
