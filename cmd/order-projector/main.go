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
	"github.com/ariefcatur/order-lifecycle/internal/httpx"
	kafkax "github.com/ariefcatur/order-lifecycle/internal/kafka"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
	"github.com/ariefcatur/order-lifecycle/internal/orders"
	"github.com/ariefcatur/order-lifecycle/internal/projector"
	"github.com/ariefcatur/order-lifecycle/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNew(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	m := metrics.New()
	p := &projector.Projector{
		Dedup:    &projector.RedisDeduper{Client: rdb, Service: cfg.ProjectorGroup},
		Statuses: &orders.RedisStatusCache{Client: rdb},
		Metrics:  m,
		Log:      log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.LifecycleTopics, cfg.ProjectorWorkers, log)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpx.NewRouter(log, m), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("projector started",
			zap.String("group", cfg.ProjectorGroup),
			zap.Strings("topics", orders.LifecycleTopics),
			zap.Int("workers", cfg.ProjectorWorkers))
		return cons.Start(gctx, p.Handle)
	})
	g.Go(func() error { return httpx.Serve(gctx, srv, log) })

	if err := g.Wait(); err != nil {
		log.Error("order-projector exited", zap.Error(err))
	}
}
