package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chatwire/livechat/internal/infrastructure/configs"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/ratelimiter"
	healthHandler "github.com/chatwire/livechat/internal/presentation/handler/health"
	livechatHandler "github.com/chatwire/livechat/internal/presentation/handler/livechat"
)

type Application struct {
	config          configs.Config
	healthHandler   healthHandler.Handler
	livechatHandler livechatHandler.Handler
	logger          logging.Logger
	ratelimiter     ratelimiter.Limiter
}

func NewApplication(
	config configs.Config,
	healthHandler healthHandler.Handler,
	livechatHandler livechatHandler.Handler,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
) *Application {
	return &Application{
		config:          config,
		healthHandler:   healthHandler,
		livechatHandler: livechatHandler,
		logger:          logger,
		ratelimiter:     ratelimiter,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(app.rateLimiterMiddleware)
	r.Use(app.enableCors)
	r.Use(app.loggerMiddleware)

	r.Route("/api", func(r chi.Router) {
		// The websocket endpoint must stay outside any timeout middleware;
		// upgraded connections live for hours.
		r.Get("/livechat/ws", app.livechatHandler.ServeWS)

		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetHealth)
		r.Get("/live", app.healthHandler.GetHealth)
	})

	r.With(app.prometheusMiddleware).Handle("/metrics", promhttp.Handler())

	return r
}

func (app *Application) Run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      otelhttp.NewHandler(mux, "livechat-api"),
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Info(logging.General, logging.Shutdown, "signal caught", map[logging.ExtraKey]any{
			"signal": s.String(),
		})

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		"addr": srv.Addr,
	})

	return nil
}
