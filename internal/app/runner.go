// internal/app/runner.go
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
	"github.com/rovshanmuradov/walletwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/walletwatch/internal/config"
	"github.com/rovshanmuradov/walletwatch/internal/deadtoken"
	"github.com/rovshanmuradov/walletwatch/internal/dex"
	"github.com/rovshanmuradov/walletwatch/internal/events"
	"github.com/rovshanmuradov/walletwatch/internal/monitor"
	"github.com/rovshanmuradov/walletwatch/internal/notify"
	"github.com/rovshanmuradov/walletwatch/internal/price"
	"github.com/rovshanmuradov/walletwatch/internal/ratelimit"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
	"github.com/rovshanmuradov/walletwatch/internal/storage/memory"
	redisstore "github.com/rovshanmuradov/walletwatch/internal/storage/redis"
	"github.com/rovshanmuradov/walletwatch/internal/subscription"
	"github.com/rovshanmuradov/walletwatch/internal/trending"
	"github.com/rovshanmuradov/walletwatch/internal/utils/metrics"
)

const eventBufferSize = 1024

// Runner собирает все компоненты и управляет их жизненным циклом.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	service  *monitor.Service
	server   *Server
	shutdown *ShutdownHandler
}

// NewRunner создаёт компоненты по конфигурации. Хранилище – Redis, если задан redis_url,
// иначе память процесса.
func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	metrics.Register(prometheus.DefaultRegisterer)
	shutdown := NewShutdownHandler(logger, 30*time.Second)

	limiter := ratelimit.New(ratelimit.Config{
		RatePerSecond: cfg.RPCRatePerSecond,
		TaskTimeout:   cfg.TaskTimeout,
	}, logger)
	shutdown.AddFunc("limiter", func() error {
		limiter.Close()
		return nil
	})

	policy := solbc.DefaultRetryPolicy()
	policy.MaxAttempts = uint(cfg.Retries + 1)
	policy.BaseDelay = cfg.RetryBaseDelay
	client := solbc.NewClient(cfg.RPCURL, limiter, policy, logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	shutdown.Add("store", store)

	bus := events.NewBus(logger, eventBufferSize)
	shutdown.AddFunc("event_bus", func() error {
		return bus.Shutdown(context.Background())
	})

	dispatchers := notify.Multi{notify.NewLogDispatcher(logger)}
	if cfg.WebhookURL != "" {
		dispatchers = append(dispatchers, notify.NewWebhookDispatcher(cfg.WebhookURL, logger))
	}
	notify.Subscribe(bus, dispatchers)

	evaluator := alarm.NewEvaluator(cfg.AlarmCooldown, logger)
	aggregator := trending.NewAggregator(store, cfg.TrendingWindow, logger)

	deps := monitor.Deps{
		Store:      store,
		Locator:    dex.NewLocator(client, logger),
		Prices:     price.NewCalculator(client, logger),
		DeadTokens: deadtoken.NewClassifier(client, store, cfg.LowPriceThreshold, logger),
		Metadata:   solbc.NewMetadataFetcher(client, logger),
		Trending:   aggregator,
		Alarms:     evaluator,
		Events:     bus,
	}
	if vault, ok := cfg.Vault(); ok {
		deps.Subscriptions = subscription.NewLedger(client, store, vault, cfg.MonthlyCost(), cfg.SignaturePageSize, logger)
		logger.Info("Subscription ledger enabled", zap.String("vault", vault.String()))
	}

	service := monitor.NewService(monitor.Config{
		Interval:     cfg.RefreshInterval,
		FailureLimit: cfg.FailureLimit,
		PriceWindow:  cfg.PriceWindow,
	}, deps, logger)

	server := NewServer(cfg.MetricsAddr, service, evaluator, aggregator, cfg.RefreshInterval, logger)
	shutdown.AddFunc("http", func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(stopCtx)
	})

	return &Runner{
		cfg:      cfg,
		logger:   logger,
		service:  service,
		server:   server,
		shutdown: shutdown,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.RedisURL == "" {
		logger.Warn("redis_url is not set, state is kept in memory")
		return memory.NewStore(cfg.PriceWindow), nil
	}
	store, err := redisstore.NewStore(ctx, cfg.RedisURL, redisstore.Options{
		Retention:   cfg.PriceWindow,
		TrendingKey: TrendingKey(cfg.TrendingWindow),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open redis store: %w", err)
	}
	return store, nil
}

// TrendingKey – ключ ранжирования для окна, например "trending:1h".
func TrendingKey(window time.Duration) string {
	s := strings.TrimSuffix(window.String(), "0s")
	if strings.HasSuffix(s, "h0m") {
		s = strings.TrimSuffix(s, "0m")
	}
	return "trending:" + s
}

// Run запускает HTTP-сервер и цикл обновления до отмены ctx, затем закрывает компоненты.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(r.server.Start)
	g.Go(func() error {
		runErr := r.service.Run(gctx)
		r.logger.Info("Shutting down")
		shutdownErr := r.shutdown.Shutdown(context.Background())
		return multierror.Append(runErr, shutdownErr).ErrorOrNil()
	})

	return g.Wait()
}
