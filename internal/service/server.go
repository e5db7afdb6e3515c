package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server HTTP服务生命周期封装
// Stop先drain在途请求，再按注册顺序执行清理回调
// （租户连接池、Redis等依赖在此统一收尾）
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	onStop     []func()
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{httpServer: s, logger: logger}
}

// OnStop 注册Stop时执行的清理回调（在drain完成后按注册顺序调用）
func (s *Server) OnStop(fn func()) {
	s.onStop = append(s.onStop, fn)
}

func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server, draining in-flight requests")
	err := s.httpServer.Shutdown(ctx)
	for _, fn := range s.onStop {
		fn()
	}
	return err
}
