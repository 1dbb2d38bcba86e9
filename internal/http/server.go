package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

const shutdownGrace = 5 * time.Second

type Server struct {
	log *logger.Logger
	srv *nethttp.Server
}

func NewServer(log *logger.Logger, addr string, cfg RouterConfig) *Server {
	if cfg.Log == nil {
		cfg.Log = log
	}
	return &Server{
		log: log.With("component", "OpsServer"),
		srv: &nethttp.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Handler() nethttp.Handler { return s.srv.Handler }

// Run serves until ctx ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ops server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
