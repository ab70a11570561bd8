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

	"github.com/ariefcatur/order-lifecycle/internal/config"
	"github.com/ariefcatur/order-lifecycle/internal/customers"
	"github.com/ariefcatur/order-lifecycle/internal/httpx"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
	"github.com/ariefcatur/order-lifecycle/internal/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNew(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := cfg.RequireCustomers(); err != nil {
		log.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if cfg.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}

	router := httpx.NewRouter(log, metrics.New())
	(&httpx.CustomersHandler{Customers: &customers.Repo{DB: db}, ServiceToken: cfg.ServiceToken}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	if err := httpx.Serve(ctx, srv, log); err != nil {
		log.Error("customers-api exited", zap.Error(err))
	}
}
