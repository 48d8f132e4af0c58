package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradejournal/internal/config"
	"tradejournal/internal/terminal"
	"tradejournal/internal/worker"
	"tradejournal/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	// Терминал обязан быть доступен на старте: без него worker бесполезен
	bridge := terminal.NewClient(cfg.Worker.BridgeURL, cfg.Worker.LoginTimeout, cfg.Worker.FetchTimeout, logger)

	probeCtx, probeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bridge.Probe(probeCtx); err != nil {
		probeCancel()
		logger.Fatal("mt5 bridge probe failed", utils.String("bridge_url", cfg.Worker.BridgeURL), utils.Err(err))
	}
	probeCancel()

	logger.Info("mt5 bridge is up", utils.String("bridge_url", cfg.Worker.BridgeURL))

	gateway := worker.NewGateway(cfg.Worker.GatewayURL, cfg.Security.WorkerSecret, cfg.Worker.GatewayTimeout, logger)
	engine := worker.NewEngine(gateway, worker.NewTerminalClient(bridge), cfg.Worker, logger)

	// Метрики на отдельном порту: worker не несет пользовательского API
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler: metricsMux(),
	}
	go func() {
		logger.Info("metrics server started", utils.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", utils.Err(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down worker")
		cancel()
	}()

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("engine stopped with error", utils.Err(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", utils.Err(err))
	}

	logger.Info("worker exited")
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
