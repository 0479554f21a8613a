package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/openpress/identity/internal/account"
	"github.com/openpress/identity/internal/config"
)

type Server struct {
	config     *config.AppConfig
	log        *zap.Logger
	httpServer *http.Server
}

type Params struct {
	fx.In

	Config         *config.AppConfig
	Logger         *zap.Logger
	AccountHandler *account.Handler
	AuthMiddleware *account.Middleware
}

func NewServer(p Params) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(p.Logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/v1", func(r chi.Router) {
		p.AccountHandler.Routes(r, p.AuthMiddleware)
	})

	addr := fmt.Sprintf("%s:%s", p.Config.Server.Host, p.Config.Server.Port)

	return &Server{
		config: p.Config,
		log:    p.Logger,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  p.Config.Server.ReadTimeout,
			WriteTimeout: p.Config.Server.WriteTimeout,
		},
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func (s *Server) Start() error {
	s.log.Info("starting HTTP server", zap.String("address", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

func (s *Server) Stop() {
	s.log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("graceful shutdown failed", zap.Error(err))
	}
}
