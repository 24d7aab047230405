package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/config"
	"github.com/ariefcatur/go-marketplace-core/internal/httpx"
	"github.com/ariefcatur/go-marketplace-core/internal/inventory"
	kafkax "github.com/ariefcatur/go-marketplace-core/internal/kafka"
	"github.com/ariefcatur/go-marketplace-core/internal/logger"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/postgres"
	"github.com/ariefcatur/go-marketplace-core/internal/realtime"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/refund"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
	"github.com/ariefcatur/go-marketplace-core/internal/store/memstore"
	"go.uber.org/zap"
)

// backend is everything the API needs from the document store.
type backend interface {
	httpx.ProductStore
	inventory.ProductStore
	orders.Store
	refund.Store
	store.Subscriber
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("load config", zap.Error(err))
	}
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	log := logger.L().With(zap.String("service", cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var db backend
	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory store, data is lost on exit")
		db = memstore.New()
	default:
		pool, err := postgres.Connect(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if cfg.Store.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				log.Fatal("db migrate", zap.Error(err))
			}
		}
		db = postgres.NewStore(pool, log.Named("postgres"))
	}

	// Redis
	rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.DB)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, idempotency and caching degrade to misses", zap.Error(err))
	}
	cache := redisx.Client{RDB: rdb}

	// Kafka producer
	var events orders.Publisher
	var prod *kafkax.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		prod = kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Buffer, log.Named("kafka"))
		prod.Start(ctx)
		events = prod
	}

	fees, err := cfg.FeeTable()
	if err != nil {
		log.Fatal("fee table", zap.Error(err))
	}

	// Core
	reconciler := inventory.NewReconciler(db, log.Named("inventory"), cfg.InventoryConflictRetries)
	refunds := &refund.Calculator{
		Fees:    fees,
		Refunds: db,
		Orders:  db,
		Events:  events,
		Clock:   store.SystemClock,
		Log:     log.Named("refund"),
		Service: cfg.ServiceName,
	}
	manager := &orders.Manager{
		Orders:    db,
		Inventory: reconciler,
		Refunds:   refunds,
		Events:    events,
		Clock:     store.SystemClock,
		Log:       log.Named("orders"),
		Service:   cfg.ServiceName,
	}
	supervisor := realtime.NewSupervisor(db, log.Named("realtime"), cfg.Realtime)

	router := httpx.NewRouter(log, httpx.RouterOptions{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		RateLimit:      cfg.HTTP.RateLimit,
		RateBurst:      cfg.HTTP.RateBurst,
	},
		[]httpx.Registrar{
			&httpx.ProductsHandler{Products: db, Clock: store.SystemClock},
			&httpx.InventoryHandler{Inventory: reconciler},
			&httpx.OrdersHandler{Orders: manager, Refunds: refunds, Cache: cache},
			&httpx.RefundsHandler{Refunds: refunds, Cache: cache},
		},
		&httpx.WatchHandler{Supervisor: supervisor},
	)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	cancel()
}
