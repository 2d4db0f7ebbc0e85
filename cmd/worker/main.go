package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/chatwire/livechat/internal/followup"
	"github.com/chatwire/livechat/internal/infrastructure/cache"
	"github.com/chatwire/livechat/internal/infrastructure/configs"
	"github.com/chatwire/livechat/internal/infrastructure/logging"
	"github.com/chatwire/livechat/internal/infrastructure/messaging"
	"github.com/chatwire/livechat/internal/infrastructure/singleinstance"
	"github.com/chatwire/livechat/internal/infrastructure/tracing"
	"github.com/chatwire/livechat/internal/persistence/db"
	"github.com/chatwire/livechat/internal/persistence/repository"
)

const serviceName = "livechat-worker"

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer sh(context.Background())

	logger := logging.NewLogger(logging.NewDefaultConfig())

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	store, err := cache.NewRedisStore(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	locks := cache.NewLockManager(store, logger)
	sharedCache := cache.New(store, locks, logger)

	mongoCfg := db.NewMongoDefaultConfig()
	mongoClient, err := db.NewMongoClient(ctx, mongoCfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = db.DisconnectMongo(context.Background(), mongoClient)
	}()

	campaigns := repository.NewCampaignRepository(db.GetDatabase(mongoClient, mongoCfg))
	if err := campaigns.EnsureIndexes(ctx); err != nil {
		log.Fatal(err)
	}

	broker := messaging.NewBrokerClient(cfg.Rabbit, logger)
	if err := broker.Open(ctx); err != nil {
		log.Fatal(err)
	}
	defer broker.Shutdown()

	worker := followup.NewWorker(broker, broker, campaigns, sharedCache, cfg.Rabbit, logger)

	guard := singleinstance.NewGuard(store, "campaign-followup", logger)
	if err := guard.Run(ctx, worker.Listen); err != nil && ctx.Err() == nil {
		logger.Fatal(logging.Campaign, logging.Followup, "worker stopped", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}
