package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testDispatcher() *Dispatcher {
	d := NewDispatcher()
	d.now = func() time.Time { return time.Date(2025, 11, 2, 10, 30, 0, 0, time.UTC) }
	d.wait = true
	return d
}

func TestDispatchPostsPayload(t *testing.T) {
	var got Payload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload not json: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := testDispatcher()
	d.Dispatch("acme", srv.URL, map[string]any{"rating": 5, "quality": "Good"})

	if contentType != "application/json" {
		t.Fatalf("content type = %q", contentType)
	}
	if got.ClientID != "acme" {
		t.Fatalf("clientId = %q", got.ClientID)
	}
	if got.Timestamp != "2025-11-02T10:30:00Z" {
		t.Fatalf("timestamp = %q", got.Timestamp)
	}
	if got.Answers["quality"] != "Good" {
		t.Fatalf("answers = %v", got.Answers)
	}
}

func TestDispatchSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := testDispatcher()
	// Rejected, unreachable and unconfigured targets must all be
	// absorbed without panicking or returning anything.
	d.Dispatch("acme", srv.URL, map[string]any{"rating": 1})
	d.Dispatch("acme", "http://127.0.0.1:1/unreachable", map[string]any{"rating": 1})
	d.Dispatch("acme", "", map[string]any{"rating": 1})
}
