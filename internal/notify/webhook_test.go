package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/approvedrevs/internal/model"
)

func testWebhook(configs ...WebhookConfig) *Webhook {
	w := NewWebhook(configs)
	w.retryDelay = time.Millisecond
	return w
}

func approvedEvent() Event {
	return RevisionApproved(model.Actor{Name: "Alice"}, fooItem, 7)
}

func TestHandleMatchesEvents(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := testWebhook(WebhookConfig{URL: srv.URL, Events: []string{KindRevisionApproved}})

	if err := w.Handle(context.Background(), approvedEvent()); err != nil {
		t.Fatal(err)
	}
	if err := w.Handle(context.Background(), RevisionUnapproved(model.Anonymous(), fooItem)); err != nil {
		t.Fatal(err)
	}
	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestHandleEmptyEventListMatchesAll(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := testWebhook(
		WebhookConfig{URL: srv.URL},
		WebhookConfig{URL: srv.URL, Events: []string{"*"}},
	)
	if err := w.Handle(context.Background(), approvedEvent()); err != nil {
		t.Fatal(err)
	}
	if called.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", called.Load())
	}
}

func TestHandleRetriesOn5xx(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := testWebhook(WebhookConfig{URL: srv.URL}).Handle(context.Background(), approvedEvent()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if called.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", called.Load())
	}
}

func TestHandleNoRetryOn4xx(t *testing.T) {
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := testWebhook(WebhookConfig{URL: srv.URL}).Handle(context.Background(), approvedEvent())
	if err == nil {
		t.Fatal("expected error for 4xx")
	}
	if called.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", called.Load())
	}
}

func TestHandleSendsHeadersAndGenericBody(t *testing.T) {
	var got Event
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := testWebhook(WebhookConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}})
	if err := w.Handle(context.Background(), approvedEvent()); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer t" {
		t.Errorf("expected auth header, got %q", auth)
	}
	if got.Kind != KindRevisionApproved || got.RevisionID != 7 || got.Title != "Foo" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestFormatSlack(t *testing.T) {
	body, err := FormatPayload("slack", approvedEvent())
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	blocks, ok := payload["blocks"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %v", payload["blocks"])
	}
}
