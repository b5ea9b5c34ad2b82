package slackcmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pennywhale/pennywhale/bot"
	"github.com/pennywhale/pennywhale/internal/idempotency"
)

func rtmTestServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Give the client a moment to drain before the close frame.
		time.Sleep(50 * time.Millisecond)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
}

func dialRTM(t *testing.T, srv *httptest.Server) *rtmConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return &rtmConn{conn: conn}
}

func TestConsumeRTMForwardsMessagesOnly(t *testing.T) {
	t.Parallel()

	srv := rtmTestServer(t, []string{
		`{"type":"hello"}`,
		`{"type":"message","user":"U1","text":"hi","channel":"C1","ts":"1.0"}`,
		`{"type":"pong","reply_to":1}`,
		`{"type":"message","user":"U2","text":"yo","channel":"C2","ts":"2.0"}`,
		`{"ok":true,"reply_to":2}`,
	})
	defer srv.Close()

	conn := dialRTM(t, srv)
	defer conn.close()

	var events []bot.Event
	err := consumeRTM(context.Background(), conn, idempotency.NewSeenSet(16), func(ev bot.Event) {
		events = append(events, ev)
	})
	if err == nil {
		t.Fatalf("consumeRTM() error = nil, want close error after stream end")
	}

	if len(events) != 2 {
		t.Fatalf("events = %+v, want 2 messages", events)
	}
	if events[0].User != "U1" || events[1].User != "U2" {
		t.Fatalf("events = %+v, want U1 then U2", events)
	}
}

func TestConsumeRTMDeduplicatesReplays(t *testing.T) {
	t.Parallel()

	frame := `{"type":"message","user":"U1","text":"hi","channel":"C1","ts":"1.0"}`
	srv := rtmTestServer(t, []string{frame, frame, frame})
	defer srv.Close()

	conn := dialRTM(t, srv)
	defer conn.close()

	count := 0
	_ = consumeRTM(context.Background(), conn, idempotency.NewSeenSet(16), func(ev bot.Event) {
		count++
	})

	if count != 1 {
		t.Fatalf("delivered = %d, want 1 after dedup", count)
	}
}

func TestConsumeRTMStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	hold := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-hold
	}))
	defer srv.Close()
	defer close(hold)

	conn := dialRTM(t, srv)
	defer conn.close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- consumeRTM(ctx, conn, idempotency.NewSeenSet(16), nil)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("consumeRTM() error = nil, want context cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("consumeRTM did not stop after context cancel")
	}
}
