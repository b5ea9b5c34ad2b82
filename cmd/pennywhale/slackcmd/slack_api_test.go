package slackcmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRTMConnect(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rtm.connect" {
			t.Errorf("path = %q, want /rtm.connect", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer xoxb-1" {
			t.Errorf("authorization = %q, want bearer bot token", auth)
		}
		_, _ = w.Write([]byte(`{"ok":true,"url":"wss://example.invalid/ws","self":{"id":"U0BOT","name":"pennywhale"}}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-1")
	url, self, err := api.rtmConnect(context.Background())
	if err != nil {
		t.Fatalf("rtmConnect() error = %v", err)
	}
	if url != "wss://example.invalid/ws" {
		t.Fatalf("url = %q, want socket url", url)
	}
	if self.ID != "U0BOT" {
		t.Fatalf("self.ID = %q, want U0BOT", self.ID)
	}
}

func TestRTMConnectAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-bad")
	if _, _, err := api.rtmConnect(context.Background()); err == nil {
		t.Fatalf("rtmConnect() error = nil, want invalid_auth")
	}
}

func TestPostMessageRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"ts":"1.000200"}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-1")
	if err := api.postMessage(context.Background(), "C100", "hello"); err != nil {
		t.Fatalf("postMessage() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2 (one retry)", got)
	}
}

func TestPostMessageNonRetryableFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	api := newSlackAPI(srv.Client(), srv.URL, "xoxb-1")
	err := api.postMessage(context.Background(), "C404", "hello")
	if err == nil {
		t.Fatalf("postMessage() error = nil, want channel_not_found")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on api error)", got)
	}
}

func TestSlackRetryDelayHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	headers := http.Header{}
	headers.Set("Retry-After", "7")
	wait, retryable := slackRetryDelay(http.StatusTooManyRequests, headers, 1)
	if !retryable {
		t.Fatalf("retryable = false, want true for 429")
	}
	if wait.Seconds() != 7 {
		t.Fatalf("wait = %v, want 7s", wait)
	}

	if _, retryable := slackRetryDelay(http.StatusBadRequest, http.Header{}, 1); retryable {
		t.Fatalf("retryable = true for 400, want false")
	}
}
