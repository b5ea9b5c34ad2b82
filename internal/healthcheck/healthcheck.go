// Package healthcheck runs the liveness HTTP listener. Hosting platforms
// probe an HTTP port to decide the process is alive; every path answers an
// empty 200, and /health additionally reports a small JSON payload.
package healthcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NormalizeListen turns a configured listen value into a net listen address.
// Accepts ":8080", "8080", or a full host:port; an empty value falls back to
// the PORT environment variable (hosting platform convention), and an empty
// result disables the listener.
func NormalizeListen(listen string) string {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		listen = strings.TrimSpace(os.Getenv("PORT"))
	}
	if listen == "" {
		return ""
	}
	if _, err := strconv.Atoi(listen); err == nil {
		return ":" + listen
	}
	return listen
}

type Server struct {
	srv  *http.Server
	addr string
}

// Addr is the bound listen address.
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// StartServer begins serving liveness probes on listen. It returns once the
// listener is bound; serving continues until Shutdown.
func StartServer(ctx context.Context, logger *slog.Logger, listen, mode string) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode = strings.TrimSpace(mode)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		payload := map[string]any{
			"ok":   true,
			"time": time.Now().Format(time.RFC3339Nano),
		}
		if mode != "" {
			payload["mode"] = mode
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(payload)
	})
	// Platform probes hit arbitrary paths; all of them get an empty 200.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Warn("health_server_error", "addr", listen, "error", serveErr.Error())
		}
	}()
	logger.Info("health_server_start", "addr", ln.Addr().String(), "mode", mode)
	return &Server{srv: srv, addr: ln.Addr().String()}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
