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
	"github.com/ariefcatur/order-lifecycle/internal/httpclient"
	"github.com/ariefcatur/order-lifecycle/internal/httpx"
	"github.com/ariefcatur/order-lifecycle/internal/logging"
	"github.com/ariefcatur/order-lifecycle/internal/metrics"
	"github.com/ariefcatur/order-lifecycle/internal/saga"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.MustNew(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := cfg.RequireOrchestrator(); err != nil {
		log.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	orch := saga.NewOrchestrator(
		httpclient.New(cfg.CustomersAPIURL, cfg.ServiceToken, cfg.OutboundTimeout),
		httpclient.New(cfg.OrdersAPIURL, cfg.ServiceToken, cfg.OutboundTimeout),
		m,
	)

	router := httpx.NewRouter(log, m)
	(&httpx.SagaHandler{Orchestrator: orch}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	if err := httpx.Serve(ctx, srv, log); err != nil {
		log.Error("orchestrator exited", zap.Error(err))
	}
}
