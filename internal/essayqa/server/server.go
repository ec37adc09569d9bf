// Package server 提供问答服务的 HTTP 接口。
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kart-io/logger"

	httpopts "github.com/kart-io/essay-qa/pkg/options/http"
)

// Server HTTP 服务，随 context 取消优雅退出。
type Server struct {
	srv  *http.Server
	opts *httpopts.Options
}

// New 创建 HTTP 服务。
func New(handler http.Handler, opts *httpopts.Options) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         opts.Addr,
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		opts: opts,
	}
}

// Run 监听并服务，ctx 取消后在 ShutdownTimeout 内关闭。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", ln.Addr().String())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Infow("HTTP server shutting down", "timeout", s.opts.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
