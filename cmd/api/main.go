package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-clothing-orders/internal/auth"
	"github.com/ariefcatur/go-clothing-orders/internal/config"
	"github.com/ariefcatur/go-clothing-orders/internal/events"
	"github.com/ariefcatur/go-clothing-orders/internal/httpx"
	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-clothing-orders/internal/kafka"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/memstore"
	"github.com/ariefcatur/go-clothing-orders/internal/orders"
	"github.com/ariefcatur/go-clothing-orders/internal/postgres"
	"github.com/ariefcatur/go-clothing-orders/internal/redisx"
	"github.com/ariefcatur/go-clothing-orders/internal/tracing"
)

// store is what both services need from a backend.
type store interface {
	orders.UnitOfWork
	inventory.Runner
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("load config")
	}
	logger.Init(cfg.ServiceName, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error(ctx).Err(err).Msg("tracing init failed, continuing without it")
		shutdownTracing = func(context.Context) error { return nil }
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("store", cfg.Store).Msg("open store")
	}
	defer closeStore()

	// Redis is optional; without it the cache is nil and every call is a no-op.
	var cache *redisx.Cache
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		cache = redisx.NewCache(rdb)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn(ctx).Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, cache calls will fail soft")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var pub events.Publisher = events.Nop{}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024)
		// not tied to the signal: in-flight requests still publish while the
		// server drains, and Close below flushes them
		prod.Start(context.Background())
		pub = &events.KafkaPublisher{Producer: prod}
	} else {
		logger.Info(ctx).Msg("no kafka brokers configured, events are discarded")
	}

	inv := inventory.NewService(st, pub, cfg.ServiceName)
	inv.LowStockThreshold = cfg.LowStockThreshold

	ord := orders.NewService(st, pub, cfg.ServiceName)
	ord.Pricing = orders.Pricing{ShippingFee: cfg.ShippingFee, TaxRate: cfg.TaxRate}

	if cfg.Store == "memory" {
		if err := seedCatalog(ctx, st.(*memstore.Store), inv); err != nil {
			logger.Logger.Fatal().Err(err).Msg("seed catalog")
		}
	}

	router := httpx.NewRouter(httpx.Deps{
		Orders:    ord,
		Inventory: inv,
		Cache:     cache,
		Auth:      &httpx.Authenticator{Secret: []byte(cfg.JWTSecret)},
	})
	handler := httpx.CORS(cfg.CORSOrigins)(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info(gctx).Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(gctx).Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		if prod != nil {
			prod.Close()      // close inbox, flush and close the writer
			prod.WaitClosed() // drain
		}
		_ = shutdownTracing(sctx)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx).Err(err).Msg("api exited")
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store, func(), error) {
	if cfg.Store == "memory" {
		return memstore.New(), func() {}, nil
	}
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return &postgres.Store{DB: pool}, pool.Close, nil
}

// seedCatalog gives the in-memory store a few variants to order against.
func seedCatalog(ctx context.Context, st *memstore.Store, inv *inventory.Service) error {
	catalog := []struct {
		orders.Variant
		onHand int
	}{
		{orders.Variant{ID: "tee-black-m", ProductName: "Basic Tee", SKU: "TEE-BLK-M", ColorName: "Black", SizeName: "M", Price: decimal.NewFromInt(99000)}, 50},
		{orders.Variant{ID: "tee-black-l", ProductName: "Basic Tee", SKU: "TEE-BLK-L", ColorName: "Black", SizeName: "L", Price: decimal.NewFromInt(99000)}, 30},
		{orders.Variant{ID: "linen-white-m", ProductName: "Linen Shirt", SKU: "LIN-WHT-M", ColorName: "White", SizeName: "M", Price: decimal.NewFromInt(249000)}, 12},
		{orders.Variant{ID: "chino-khaki-32", ProductName: "Chino Pants", SKU: "CHI-KHK-32", ColorName: "Khaki", SizeName: "32", Price: decimal.NewFromInt(329000)}, 8},
	}
	for _, c := range catalog {
		c.Variant.Active = true
		st.PutVariant(c.Variant)
		if _, err := inv.OpenStock(ctx, auth.System, c.ID, c.onHand, "demo seed"); err != nil {
			return err
		}
	}
	st.PutDiscountCode(orders.DiscountCode{
		Code:   "WELCOME10",
		Type:   orders.DiscountPercentage,
		Value:  decimal.NewFromInt(10),
		Active: true,
	})
	logger.Info(ctx).Int("variants", len(catalog)).Msg("seeded demo catalog")
	return nil
}
