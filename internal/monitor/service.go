// internal/monitor/service.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
	"github.com/rovshanmuradov/walletwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/walletwatch/internal/deadtoken"
	"github.com/rovshanmuradov/walletwatch/internal/dex"
	"github.com/rovshanmuradov/walletwatch/internal/events"
	"github.com/rovshanmuradov/walletwatch/internal/price"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
	"github.com/rovshanmuradov/walletwatch/internal/subscription"
	"github.com/rovshanmuradov/walletwatch/internal/trending"
	"github.com/rovshanmuradov/walletwatch/internal/utils/logger"
	"github.com/rovshanmuradov/walletwatch/internal/utils/metrics"
)

const (
	DefaultInterval     = time.Minute
	DefaultFailureLimit = 5
)

// Store – часть хранилища, которую обходит цикл обновления.
type Store interface {
	storage.TokenStore
	storage.PriceStore
	storage.HoldingStore
}

type PoolLocator interface {
	Locate(ctx context.Context, mint solana.PublicKey) (*dex.PoolDescriptor, error)
}

type PriceQuoter interface {
	Quote(ctx context.Context, token *storage.Token, prior []storage.PriceSample) (*price.Quote, error)
}

type DeadTokenChecker interface {
	Check(ctx context.Context, token *storage.Token) (deadtoken.Verdict, error)
}

type MetadataSource interface {
	Fetch(ctx context.Context, mint solana.PublicKey) (*solbc.TokenMetadata, error)
}

type TrendingRefresher interface {
	Refresh(ctx context.Context) ([]trending.Entry, error)
}

type SubscriptionRefresher interface {
	Sync(ctx context.Context) (int, error)
	Refresh(ctx context.Context, source solana.PublicKey) (*subscription.Wallet, error)
}

// Config – параметры цикла обновления.
type Config struct {
	Interval time.Duration
	// FailureLimit – после стольких ошибок работа данного вида для токена пропускается
	FailureLimit int
	// PriceWindow – глубина истории, читаемой для отсева транзакций и алармов
	PriceWindow time.Duration
}

// Deps – зависимости сервиса. Metadata, Subscriptions и Events необязательны.
type Deps struct {
	Store         Store
	Locator       PoolLocator
	Prices        PriceQuoter
	DeadTokens    DeadTokenChecker
	Metadata      MetadataSource
	Trending      TrendingRefresher
	Alarms        *alarm.Evaluator
	Subscriptions SubscriptionRefresher
	Events        events.Publisher
}

// CycleReport – итог одного цикла обновления.
type CycleReport struct {
	ID       string
	Tokens   int
	Sampled  int
	Dead     int
	Alerts   int
	Failed   int
	Duration time.Duration
	// FinishedAt – время завершения цикла по часам сервиса
	FinishedAt time.Time
}

// Service периодически обновляет пулы, цены, метаданные, ранжирование и алармы.
type Service struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last *CycleReport
}

// NewService создаёт сервис обновления.
func NewService(cfg Config, deps Deps, logger *zap.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = DefaultFailureLimit
	}
	if cfg.PriceWindow <= 0 {
		cfg.PriceWindow = 2 * time.Hour
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("monitor"),
		now:    time.Now,
	}
}

// WithClock подменяет источник текущего времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Run выполняет цикл сразу и затем по тикеру до отмены ctx.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Refresh loop started", zap.Duration("interval", s.cfg.Interval))
	for {
		if _, err := s.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("Refresh cycle finished with errors", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Refresh loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// LastCycle возвращает итог последнего завершённого цикла.
func (s *Service) LastCycle() (CycleReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return CycleReport{}, false
	}
	return *s.last, true
}

// RefreshOnce выполняет один цикл. Ошибки отдельных токенов и пользователей
// не прерывают цикл и возвращаются сводкой.
func (s *Service) RefreshOnce(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	log, cycleID := logger.WithOperation(s.logger, "refresh")
	report := &CycleReport{ID: cycleID}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	collect := func(err error) {
		mu.Lock()
		result = multierror.Append(result, err)
		mu.Unlock()
	}

	holdings, err := s.loadHoldings(ctx, log)
	if err != nil {
		collect(err)
	}
	s.trackHeldTokens(ctx, holdings, collect)

	mints, err := s.deps.Store.ListTokens(ctx)
	if err != nil {
		return report, fmt.Errorf("list tokens: %w", err)
	}
	report.Tokens = len(mints)
	s.publish(events.CycleStartedEvent{
		BaseEvent: events.NewBase(events.CycleStarted, s.now()),
		CycleID:   cycleID,
		Tokens:    len(mints),
	})

	stageStart := time.Now()
	var g errgroup.Group
	for _, mint := range mints {
		g.Go(func() error {
			outcome, err := s.refreshToken(ctx, mint, log)
			mu.Lock()
			if outcome.sampled {
				report.Sampled++
			}
			if outcome.dead {
				report.Dead++
			}
			mu.Unlock()
			if err != nil {
				log.Warn("Token refresh failed",
					zap.String("mint", mint.String()),
					zap.Error(err))
				collect(fmt.Errorf("token %s: %w", mint, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	metrics.ObserveStage("tokens", time.Since(stageStart))
	metrics.SetDeadTokens(report.Dead)

	if s.deps.Trending != nil {
		stageStart = time.Now()
		entries, err := s.deps.Trending.Refresh(ctx)
		if err != nil {
			collect(fmt.Errorf("trending: %w", err))
		} else {
			s.publish(events.TrendingUpdatedEvent{
				BaseEvent: events.NewBase(events.TrendingUpdated, s.now()),
				Entries:   len(entries),
			})
		}
		metrics.ObserveStage("trending", time.Since(stageStart))
	}

	stageStart = time.Now()
	report.Alerts = s.evaluateAlarms(ctx, holdings, log, collect)
	metrics.ObserveStage("alarms", time.Since(stageStart))

	if s.deps.Subscriptions != nil {
		stageStart = time.Now()
		s.refreshSubscriptions(ctx, holdings, log, collect)
		metrics.ObserveStage("subscriptions", time.Since(stageStart))
	}

	report.Duration = time.Since(start)
	report.FinishedAt = s.now()
	metrics.ObserveStage("cycle", report.Duration)

	err = result.ErrorOrNil()
	if result != nil {
		report.Failed = result.Len()
	}
	s.publish(events.CycleCompletedEvent{
		BaseEvent: events.NewBase(events.CycleCompleted, s.now()),
		CycleID:   cycleID,
		Tokens:    report.Tokens,
		Sampled:   report.Sampled,
		Alerts:    report.Alerts,
		Failed:    report.Failed,
		Duration:  report.Duration,
		Err:       err,
	})

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	log.Info("Refresh cycle completed",
		zap.Int("tokens", report.Tokens),
		zap.Int("sampled", report.Sampled),
		zap.Int("dead", report.Dead),
		zap.Int("alerts", report.Alerts),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))

	return report, err
}

func (s *Service) loadHoldings(ctx context.Context, log *zap.Logger) ([]*storage.Holding, error) {
	users, err := s.deps.Store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	holdings := make([]*storage.Holding, 0, len(users))
	var result *multierror.Error
	for _, userID := range users {
		h, err := s.deps.Store.GetHolding(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Warn("Failed to load holding", zap.String("user_id", userID), zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		holdings = append(holdings, h)
	}
	return holdings, result.ErrorOrNil()
}

// trackHeldTokens добавляет токены пользователей в общий набор.
func (s *Service) trackHeldTokens(ctx context.Context, holdings []*storage.Holding, collect func(error)) {
	for _, h := range holdings {
		for _, mint := range h.Mints {
			if err := s.deps.Store.AddToken(ctx, mint); err != nil {
				collect(fmt.Errorf("add token %s: %w", mint, err))
			}
		}
	}
}

func (s *Service) publish(event events.Event) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(event); err != nil {
		s.logger.Debug("Event not published",
			zap.String("event_type", string(event.Type())),
			zap.Error(err))
	}
}

// isTransient отделяет сбои RPC от ошибок данных: первые не увеличивают счётчики.
func isTransient(err error) bool {
	var rpcErr *solbc.Error
	return errors.As(err, &rpcErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
