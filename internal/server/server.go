// Пакет server — HTTP-сервер Content Registry с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/goartstore/content-registry/internal/api/handlers"
	"github.com/bigkaa/goartstore/content-registry/internal/api/middleware"
	"github.com/bigkaa/goartstore/content-registry/internal/config"
)

// Пути, на которые не распространяется JWT middleware (health-проверки, сбор метрик).
var authExcludedPrefixes = []string{"/health", "/metrics", "/openapi.yaml"}

// Options — необязательные компоненты сервера.
type Options struct {
	// Auth — JWT middleware (nil — аутентификация отключена)
	Auth *middleware.JWTAuth
	// AuthRequired — требовать субъект для загрузки и передачи владения
	AuthRequired bool
	// Validator — проверка запросов по OpenAPI контракту (nil — без проверки)
	Validator *middleware.RequestValidator
}

// Server — HTTP-сервер Content Registry.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, opts Options) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, handler, opts),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер: middleware в порядке
// RequestID → RealIP → Recoverer → RequestLogger → Metrics → JWT → OpenAPI, затем маршруты.
func NewRouter(logger *slog.Logger, handler *handlers.APIHandler, opts Options) chi.Router {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.Recoverer(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	var requireAuth func(http.Handler) http.Handler
	if opts.Auth != nil {
		router.Use(WithExclusions(opts.Auth.Middleware(), authExcludedPrefixes...))
		if opts.AuthRequired {
			requireAuth = middleware.RequireSubject()
		}
	}
	if opts.Validator != nil {
		router.Use(opts.Validator.Middleware())
	}

	handler.Mount(router, requireAuth)
	return router
}

// WithExclusions оборачивает middleware, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без middleware.
func WithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
