package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-clothing-orders/internal/config"
	"github.com/ariefcatur/go-clothing-orders/internal/events"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-clothing-orders/internal/kafka"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/redisx"
)

// The inventory worker keeps the Redis availability and low-stock views in
// step with the ledger by consuming stock-changed events.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("load config")
	}
	logger.Init(cfg.ServiceName+"-inventory", cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
		logger.Logger.Fatal().Msg("KAFKA_BROKERS and REDIS_ADDR are required for the inventory worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.NewCache(rdb)
	if err := cache.Ping(ctx); err != nil {
		logger.Logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping")
	}

	proj := inventory.NewProjector(cache, cfg.LowStockThreshold)
	proj.Name = cfg.InventoryGroup
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, events.TopicStockChanged, cfg.InventoryWorkers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx).
			Str("group", cfg.InventoryGroup).
			Str("topic", events.TopicStockChanged).
			Int("workers", cfg.InventoryWorkers).
			Msg("inventory consumer started")
		return cons.Start(gctx, proj.Handle)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error(ctx).Err(err).Msg("consumer exited")
		os.Exit(1)
	}
	logger.Info(ctx).Msg("inventory consumer stopped")
}
