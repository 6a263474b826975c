package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/cache"
	"github.com/ariefcatur/go-realtime-market/internal/config"
	"github.com/ariefcatur/go-realtime-market/internal/httpx"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
	kafkax "github.com/ariefcatur/go-realtime-market/internal/kafka"
	"github.com/ariefcatur/go-realtime-market/internal/logging"
	"github.com/ariefcatur/go-realtime-market/internal/market"
	"github.com/ariefcatur/go-realtime-market/internal/memory"
	"github.com/ariefcatur/go-realtime-market/internal/notify"
	"github.com/ariefcatur/go-realtime-market/internal/orders"
	"github.com/ariefcatur/go-realtime-market/internal/postgres"
	"github.com/ariefcatur/go-realtime-market/internal/redisx"
	"github.com/ariefcatur/go-realtime-market/internal/users"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type stores struct {
	orders    orders.Repository
	catalog   orders.Catalog
	market    market.Repository
	users     users.Directory
	inventory inventory.Store
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Redis
	var readCache cache.Store = cache.NewMemory()
	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache", zap.Error(err))
		} else {
			defer rdb.Close()
			readCache = redisx.NewCache(rdb)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Kafka producer
	var notifier notify.Notifier = notify.Log{Logger: logger}
	var prod *kafkax.Producer
	if cfg.KafkaEnabled() {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.StatusTopic, 1024, logger)
		prod.Start(gctx)
		notifier = notify.Multi{notifier, kafkax.NewNotifier(prod, cfg.ServiceName)}
	}

	inv := inventory.Instrument(st.inventory, logger)
	om := orders.NewManager(orders.Deps{
		Repo: st.orders, Catalog: st.catalog, Users: st.users, Inventory: inv,
		Cache: readCache, Notifier: notifier, Logger: logger.Named("orders"), CacheTTL: cfg.CacheTTL,
	})
	mm := market.NewManager(market.Deps{
		Repo: st.market, Users: st.users, Inventory: inv,
		Cache: readCache, Notifier: notifier, Logger: logger.Named("market"), CacheTTL: cfg.CacheTTL,
	})

	router := httpx.NewRouter(logger)
	(&httpx.OrdersHandler{Orders: om, Log: logger}).Register(router)
	(&httpx.MarketHandler{Market: mm, Log: logger}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		if prod != nil {
			prod.Close()
			prod.WaitClosed()
		}
		return err
	})
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on exit")
		m := memory.New()
		if err := seedMemory(m, cfg.SeedFile, logger); err != nil {
			return stores{}, err
		}
		return stores{orders: m, catalog: m, market: m, users: m, inventory: m, close: func() {}}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		return stores{}, err
	}
	return stores{
		orders:    &postgres.OrderRepo{DB: db},
		catalog:   &postgres.Catalog{DB: db},
		market:    &postgres.MarketRepo{DB: db},
		users:     &postgres.Users{DB: db},
		inventory: &postgres.Inventory{DB: db},
		close:     db.Close,
	}, nil
}

// seedMemory loads users and products, without which every create request on
// an empty memory store fails validation.
func seedMemory(m *memory.Store, path string, logger *zap.Logger) error {
	if path == "" {
		logger.Warn("no SEED_FILE set; memory store starts without users or products")
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	u, p, err := m.LoadSeed(f)
	if err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	logger.Info("memory store seeded", zap.String("file", path), zap.Int("users", u), zap.Int("products", p))
	return nil
}
