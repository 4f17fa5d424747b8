package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"disputeflow/auth"
	"disputeflow/config"
	"disputeflow/db"
	"disputeflow/host"
	"disputeflow/metrics"
	"disputeflow/outbox"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadFromPath(*configPath)
	if cfg.JWTSecret == "" {
		log.Fatal("jwt secret is required (JWT_SECRET or config file)")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	mx := metrics.New(registry)

	hostRepo := host.NewRepository(pool)
	executor := host.NewExecutor(pool, hostRepo).WithMetrics(mx)
	replayer := host.NewReplayer(hostRepo, hostRepo).WithMetrics(mx)
	authSvc := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	worker := outbox.NewWorker(pool, cfg.OutboxInterval)

	server := &Server{
		authService: authSvc,
		executor:    executor,
		replayer:    replayer,
		metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.routes(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("api listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("api terminated: %v", err)
	}
}
