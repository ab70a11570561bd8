package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/order-lifecycle/internal/config"
	"github.com/ariefcatur/order-lifecycle/internal/customers"
	"github.com/ariefcatur/order-lifecycle/internal/httpclient"
	"github.com/ariefcatur/order-lifecycle/internal/httpx"
	"github.com/ariefcatur/order-lifecycle/internal/idempotency"
	kafkax "github.com/ariefcatur/order-lifecycle/internal/kafka"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
	"github.com/ariefcatur/order-lifecycle/internal/orders"
	"github.com/ariefcatur/order-lifecycle/internal/postgres"
	"github.com/ariefcatur/order-lifecycle/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNew(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := cfg.RequireOrders(); err != nil {
		log.Fatal("config", zap.Error(err))
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("orders-api exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("schema migrated")
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	m := metrics.New()
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)

	idemStore := &idempotency.PostgresStore{DB: db}
	coord := idempotency.NewCoordinator(idemStore,
		idempotency.WithCache(&idempotency.RedisCache{Client: rdb}),
		idempotency.WithMetrics(m),
	)
	validator := &customers.Validator{Client: httpclient.New(cfg.CustomersAPIURL, cfg.ServiceToken, cfg.OutboundTimeout)}

	svc := orders.NewService(&orders.Repo{DB: db}, validator, coord,
		orders.WithPublisher(prod, cfg.ServiceName),
		orders.WithServiceMetrics(m),
		orders.WithStatusCache(&orders.RedisStatusCache{Client: rdb}),
	)

	router := httpx.NewRouter(log, m)
	(&httpx.OrdersHandler{Service: svc}).Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// The producer outlives the server so late requests can still publish.
	prodCtx, stopProd := context.WithCancel(context.Background())
	defer stopProd()
	pg := new(errgroup.Group)
	pg.Go(func() error { return prod.Run(prodCtx) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpx.Serve(gctx, srv, log) })
	if cfg.IdempotencyStaleAfter > 0 {
		rep := &idempotency.StaleReporter{
			Store:      idemStore,
			StaleAfter: cfg.IdempotencyStaleAfter,
			Log:        log,
			Metrics:    m,
		}
		g.Go(func() error { return rep.Run(gctx) })
	}

	err = g.Wait()
	stopProd()
	if perr := pg.Wait(); perr != nil {
		log.Warn("producer close", zap.Error(perr))
	}
	return err
}
