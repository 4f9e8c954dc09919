package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offline-sync-engine/internal/config"
	"offline-sync-engine/internal/handler"
	"offline-sync-engine/internal/metrics"
	"offline-sync-engine/internal/middleware"
	"offline-sync-engine/internal/service"
	"offline-sync-engine/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and its local API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	routerCfg := handler.RouterConfig{
		Logger:             logger.Named("http"),
		JWTSecret:          cfg.JWTSecret(),
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		CORSAllowedMethods: cfg.CORS.AllowedMethods,
		CORSAllowedHeaders: cfg.CORS.AllowedHeaders,
	}

	var (
		syncMetrics *metrics.SyncMetrics
		observer    service.CycleObserver
		err         error
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if syncMetrics, err = metrics.NewSyncMetrics(reg); err != nil {
			return err
		}
		if routerCfg.RequestMetrics, err = middleware.NewPrometheusMiddleware(reg); err != nil {
			return err
		}
		routerCfg.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		observer = syncMetrics
	}

	eng, err := newEngine(cfg, logger, observer)
	if err != nil {
		return err
	}
	defer eng.Close()

	if syncMetrics != nil {
		eng.sync.AddListener(syncMetrics.ObserveStatus)
	}

	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnections: cfg.WebSocket.MaxConnections,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, logger.Named("ws"))
	wsManager.SetStatusSource(eng.sync.Status)
	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(eng.sync, wsManager))
	eng.sync.AddListener(wsManager.PublishStatus)
	go wsManager.Run(hubCtx)

	routerCfg.Documents = handler.NewDocumentHandler(eng.documents, logger)
	routerCfg.Businesses = handler.NewBusinessHandler(eng.businesses, eng.articles, logger)
	routerCfg.Sync = handler.NewSyncHandler(eng.sync, eng.documents, logger)
	routerCfg.WebSocket = handler.NewWebSocketHandler(wsManager, cfg.JWTSecret(), cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, logger.Named("ws"))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Remote.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting syncd",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("local_db", cfg.Local.Path),
			zap.Bool("auth", cfg.Auth.Enabled),
			zap.Bool("metrics", cfg.Metrics.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	eng.sync.Start()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("syncd stopped gracefully")
	return nil
}
