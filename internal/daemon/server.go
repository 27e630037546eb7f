package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/messenger"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes metrics and channel health over HTTP.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer binds the metrics listener. It returns a nil server when no
// address is configured.
func NewServer(cfg *config.Config, reg *prometheus.Registry, store *messenger.Store, logger *zap.Logger) (*Server, error) {
	if cfg.Metrics.Addr == "" {
		return nil, nil
	}
	listener, err := net.Listen("tcp", cfg.Metrics.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Metrics.Addr, err)
	}
	return &Server{
		httpServer: &http.Server{Handler: newMux(reg, store)},
		listener:   listener,
		logger:     logger,
	}, nil
}

func newMux(reg *prometheus.Registry, store *messenger.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := store.ConnectionState()
		w.Header().Set("Content-Type", "application/json")
		if state != status.Connected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"connection": string(state)})
	})
	return mux
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("metrics server starting", zap.String("addr", s.Addr()))
	if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("metrics server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics server shutdown", zap.Error(err))
	}
}
