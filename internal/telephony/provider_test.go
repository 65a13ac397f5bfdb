package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"contact-automation/internal/faults"
)

func TestClient_ListRecordings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recordings" || r.URL.Query().Get("entry_id") != "T1" {
			t.Fatalf("unexpected request %s", r.URL)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Fatalf("missing auth header")
		}
		_, _ = w.Write([]byte(`{"recordings":[
			{"id":"r1","url":"https://rec/1.mp3","duration":10,"created_at":"2025-06-10T10:00:00Z"},
			{"id":"r0","url":""},
			{"id":"r2","url":"https://rec/2.mp3","duration":12}
		]}`))
	}))
	defer srv.Close()

	refs, err := NewClient(srv.URL, "k", time.Second).ListRecordings(context.Background(), "T1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 2 || refs[1].ID != "r2" || refs[0].DurationSeconds != 10 {
		t.Fatalf("unexpected refs: %+v", refs)
	}
	if refs[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at parsed")
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "k", time.Second)

	if _, err := c.ListRecordings(context.Background(), "T1"); !faults.IsTransport(err) {
		t.Fatalf("5xx should be a transport error, got %v", err)
	}
	status = http.StatusOK
	if _, err := c.ListRecordings(context.Background(), "T1"); !errors.Is(err, faults.ErrMalformed) {
		t.Fatalf("bad body should be malformed, got %v", err)
	}
	if _, err := NewClient("", "", 0).ListRecordings(context.Background(), "T1"); !errors.Is(err, faults.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestClient_Say(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/calls/c1/say" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "k", time.Second).Say(context.Background(), "c1", "Здравствуйте"); err != nil {
		t.Fatalf("say: %v", err)
	}
	if got["text"] != "Здравствуйте" {
		t.Fatalf("unexpected body: %v", got)
	}
}
