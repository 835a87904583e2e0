package feed_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"clarus_vitae/internal/adapters/feed"
	"clarus_vitae/internal/domain"
)

func TestClient_GetProperty_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/properties/sha-wellness" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "p1"})
		}
	}))
	defer ts.Close()

	cl, err := feed.New(ts.URL, "test-key", 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got, err := cl.GetProperty(ctx, "sha-wellness")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got["id"] != "p1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_GetProperty_404IsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, _ := feed.New(ts.URL, "test-key", 100)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := cl.GetProperty(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_GetReviews_ArrayAndEnvelope(t *testing.T) {
	var envelope atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "25" {
			t.Errorf("limit not forwarded: %s", r.URL.RawQuery)
		}
		if envelope.Load() {
			_, _ = w.Write([]byte(`{"data":[{"id":"r1"},{"id":"r2"}]}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"r1"}]`))
	}))
	defer ts.Close()

	cl, _ := feed.New(ts.URL, "k", 100)
	ctx := context.Background()

	got, err := cl.GetReviews(ctx, "x", 25)
	if err != nil || len(got) != 1 {
		t.Fatalf("array: %v %v", got, err)
	}
	envelope.Store(true)
	got, err = cl.GetReviews(ctx, "x", 25)
	if err != nil || len(got) != 2 || got[1]["id"] != "r2" {
		t.Fatalf("envelope: %v %v", got, err)
	}
}

func TestClient_Forbidden(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	cl, _ := feed.New(ts.URL, "k", 100)
	if _, err := cl.GetReviews(context.Background(), "x", 1); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := feed.New("http://x", "", 1); err == nil {
		t.Fatalf("expected error without key")
	}
}
