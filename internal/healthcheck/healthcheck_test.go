package healthcheck

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
)

func TestNormalizeListen(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "8080", want: ":8080"},
		{in: ":8080", want: ":8080"},
		{in: "127.0.0.1:9000", want: "127.0.0.1:9000"},
		{in: "  ", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizeListen(tt.in); got != tt.want {
			t.Fatalf("NormalizeListen(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeListenPortEnv(t *testing.T) {
	t.Setenv("PORT", "5000")
	if got := NormalizeListen(""); got != ":5000" {
		t.Fatalf("NormalizeListen(\"\") = %q, want :5000", got)
	}
}

func TestServerAnswersAnyPath(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := StartServer(context.Background(), logger, "127.0.0.1:0", "slack")
	if err != nil {
		t.Fatalf("StartServer() error = %v", err)
	}
	defer func() { _ = srv.Shutdown(context.Background()) }()

	base := "http://" + srv.Addr()
	for _, path := range []string{"/", "/anything", "/deep/probe/path"} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		if len(body) != 0 {
			t.Fatalf("GET %s body = %q, want empty", path, body)
		}
	}

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode /health: %v", err)
	}
	if ok, _ := payload["ok"].(bool); !ok {
		t.Fatalf("/health ok = %v, want true", payload["ok"])
	}
	if payload["mode"] != "slack" {
		t.Fatalf("/health mode = %v, want slack", payload["mode"])
	}
}
