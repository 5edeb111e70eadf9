package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"borrow_engine/internal/app/port"
	"borrow_engine/internal/app/provider"
	"borrow_engine/internal/app/service"
	"borrow_engine/internal/client"
	"borrow_engine/internal/infrastructure/configloader"
	marketclient "borrow_engine/internal/infrastructure/network/client"
	chaindefinition "borrow_engine/internal/infrastructure/network/definition"
	"borrow_engine/internal/infrastructure/registryloader"
	"borrow_engine/internal/infrastructure/restapi"
	"borrow_engine/internal/pkg/logger"
	"borrow_engine/internal/pkg/metrics"

	slogzap "github.com/samber/slog-zap/v2"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "path to the YAML configuration file")
	flag.Parse()

	// logrus covers the window before the structured logger exists.
	bootLog := logrus.New()

	cfg, err := configloader.Load(*configPath)
	if err != nil {
		bootLog.WithError(err).WithField("path", *configPath).Fatal("Failed to load configuration")
	}

	zapLogger, err := buildZapLogger(cfg.Logging.Level)
	if err != nil {
		bootLog.WithError(err).Fatal("Failed to initialize zap logger")
	}
	defer zapLogger.Sync()

	slogHandler := slogzap.Option{
		Level:  slogLevel(cfg.Logging.Level),
		Logger: zapLogger,
	}.NewZapHandler()
	slog.SetDefault(slog.New(slogHandler))

	logger.Info("Borrowing power engine starting...")
	appLogger := logger.NewSlogAdapter()

	metrics.MustRegister()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainProvider := chaindefinition.NewChainDefinitionProvider(appLogger, cfg)
	activeChains := chainProvider.GetAllChainDefinitions()
	if len(activeChains) == 0 {
		logger.Fatal("No active chains: check the market data directory and chain configuration")
	}

	registry := registryloader.NewMarketFileLoader(cfg.MarketDataDir, appLogger)
	if err := registry.Load(activeChains); err != nil {
		logger.Fatal("Failed to load market registry", "error", err)
	}

	readerProvider := marketclient.NewEVMMarketReaderProvider(cfg, appLogger)
	priceResolver := service.NewPriceResolver(readerProvider, appLogger,
		time.Duration(cfg.Polling.PriceCacheTTLSeconds)*time.Second)
	positionReader := service.NewPositionReader(appLogger)

	powerService := service.NewBorrowingPowerService(
		registry, chainProvider, readerProvider, priceResolver, positionReader, appLogger, cfg)
	liquidityService := service.NewLiquidityService(
		registry, chainProvider, readerProvider, appLogger, cfg)
	validator := service.NewBorrowValidator(
		powerService, liquidityService, priceResolver, registry, chainProvider, appLogger, cfg)

	if cfg.PriceFeed.Enabled {
		feedClient := client.NewPriceFeedClient(
			cfg.PriceFeed.BaseURL,
			time.Duration(cfg.PriceFeed.RequestTimeoutMillis)*time.Millisecond,
			zapLogger,
			cfg.PriceFeed.MaxTokensPerBatchRequest,
		)
		fallbackPrices := service.NewFallbackPriceService(
			registry, chainProvider, feedClient, priceResolver, appLogger, cfg)
		if err := fallbackPrices.RefreshAll(ctx); err != nil {
			logger.Warn("Initial fallback price refresh failed", "error", err)
		}
		go runFallbackPriceRefresher(ctx, fallbackPrices, cfg)
	} else {
		logger.Info("Price feed disabled, fallback prices stay at their static values")
	}

	poller := service.NewSnapshotPoller(ctx, powerService, appLogger, cfg)
	defer poller.Stop()

	watchlist := provider.NewWatchlistProvider(cfg.WatchlistPath, appLogger)
	warmWatchlist(watchlist, poller, appLogger)

	go runLiquidityRefresher(ctx, liquidityService, chainProvider, cfg)

	handler := restapi.NewEngineHandler(
		poller, validator, liquidityService, registry, chainProvider, appLogger, cfg)
	router := restapi.SetupRouter(handler)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown signal received")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("Engine stopped")
}

// warmWatchlist starts poll loops for connections listed in the watchlist
// file, so their snapshots are ready before any client asks.
func warmWatchlist(watchlist port.WatchlistProvider, poller *service.SnapshotPoller, log port.Logger) {
	connections, err := watchlist.GetWatchedConnections()
	if err != nil {
		log.Warn("Failed to load watchlist, starting without pre-warmed connections", "error", err)
		return
	}
	for _, conn := range connections {
		poller.Watch(conn)
	}
	if len(connections) > 0 {
		log.Info("Pre-warming watchlist connections", "count", len(connections))
	}
}

// runLiquidityRefresher refreshes every active chain's market cash on the
// liquidity interval, keeping the cache warm for validations.
func runLiquidityRefresher(ctx context.Context, liquidity port.LiquidityService, chains port.ChainDefinitionProvider, cfg *configloader.Config) {
	ticker := time.NewTicker(time.Duration(cfg.Polling.LiquidityIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, chain := range chains.GetAllChainDefinitions() {
				if err := liquidity.RefreshChain(ctx, chain.ChainID); err != nil && ctx.Err() == nil {
					logger.Warn("Liquidity refresh failed", "chain", chain.Name, "error", err)
				}
			}
		}
	}
}

func buildZapLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level == "debug" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	return zapCfg.Build()
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runFallbackPriceRefresher re-runs the feed refresh on its interval.
func runFallbackPriceRefresher(ctx context.Context, svc *service.FallbackPriceService, cfg *configloader.Config) {
	ticker := time.NewTicker(time.Duration(cfg.PriceFeed.RefreshIntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.RefreshAll(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Fallback price refresh failed", "error", err)
			}
		}
	}
}
