package main

import (
	"context"
	"expvar"
	"log"
	"runtime"

	"github.com/chatwire/livechat/internal/infrastructure/configs"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/messaging"
	"github.com/chatwire/livechat/internal/infrastructure/ratelimiter"
	"github.com/chatwire/livechat/internal/infrastructure/tracing"
	"github.com/chatwire/livechat/internal/infrastructure/ws"
	"github.com/chatwire/livechat/internal/presentation/api"
	"github.com/chatwire/livechat/internal/presentation/handler/health"
	"github.com/chatwire/livechat/internal/presentation/handler/livechat"
	"github.com/chatwire/livechat/internal/relay"
)

const serviceName = "livechat-api"

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(ctx)

	logger := logging.NewLogger(logging.NewDefaultConfig())

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	wsCore := ws.NewCore()
	go wsCore.Run(ctx)

	broker := messaging.NewBrokerClient(cfg.Rabbit, logger)
	if err := broker.Open(ctx); err != nil {
		log.Fatal(err)
	}
	defer broker.Shutdown()

	socketRelay := relay.New(broker, cfg.Rabbit.SocketQueue, wsCore, logger)
	go func() {
		if err := socketRelay.Listen(ctx); err != nil {
			logger.Fatal(logging.RabbitMQ, logging.Consume, "socket relay stopped", map[logging.ExtraKey]any{
				logging.Queue:        cfg.Rabbit.SocketQueue,
				logging.ErrorMessage: err.Error(),
			})
		}
	}()

	healthHandler := health.NewHandler()
	livechatHandler := livechat.NewHandler(wsCore, logger)

	rl := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})
	app := api.NewApplication(*cfg, *healthHandler, *livechatHandler, logger, rl)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	if err := app.Run(mux); err != nil {
		log.Fatal(err)
	}
}
