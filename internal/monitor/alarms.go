// internal/monitor/alarms.go
package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
	"github.com/rovshanmuradov/walletwatch/internal/events"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

// evaluateAlarms проверяет токены каждого пользователя по его пресету и
// публикует сработавшие алармы. Возвращает число алармов.
func (s *Service) evaluateAlarms(ctx context.Context, holdings []*storage.Holding, log *zap.Logger, collect func(error)) int {
	if s.deps.Alarms == nil {
		return 0
	}

	raised := 0
	for _, h := range holdings {
		userLog := log.With(zap.String("user_id", h.UserID))

		preset, err := alarm.ParsePreset(h.AlarmPreset)
		if err != nil {
			userLog.Warn("Unknown alarm preset, using standard", zap.String("preset", h.AlarmPreset))
			preset = alarm.PresetStandard
		}
		cfg, err := alarm.PresetConfig(preset)
		if err != nil {
			collect(fmt.Errorf("user %s: %w", h.UserID, err))
			continue
		}

		for _, mint := range h.Mints {
			token, err := s.deps.Store.GetToken(ctx, mint)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				collect(fmt.Errorf("user %s token %s: %w", h.UserID, mint, err))
				continue
			}
			if token.IsDead {
				continue
			}

			now := s.now()
			samples, err := s.deps.Store.Prices(ctx, mint, now.Add(-s.cfg.PriceWindow), now)
			if err != nil {
				collect(fmt.Errorf("user %s token %s: %w", h.UserID, mint, err))
				continue
			}

			event := s.deps.Alarms.Check(h.UserID, token, cfg, samples)
			if event == nil {
				continue
			}
			raised++
			s.publish(events.NewAlarmRaised(*event))
		}
	}
	return raised
}

// refreshSubscriptions один раз читает новые транзакции vault'а и затем
// параллельно пересчитывает срок подписки каждого кошелька.
func (s *Service) refreshSubscriptions(ctx context.Context, holdings []*storage.Holding, log *zap.Logger, collect func(error)) {
	found, err := s.deps.Subscriptions.Sync(ctx)
	if err != nil {
		// уже сохранённые платежи всё равно пересчитываются
		log.Warn("Subscription vault scan failed", zap.Error(err))
		collect(fmt.Errorf("subscription scan: %w", err))
	} else if found > 0 {
		log.Info("Subscription payments found", zap.Int("count", found))
	}

	var g errgroup.Group
	for _, h := range holdings {
		if h.Wallet.IsZero() {
			continue
		}
		g.Go(func() error {
			wallet, err := s.deps.Subscriptions.Refresh(ctx, h.Wallet)
			if err != nil {
				log.Warn("Subscription refresh failed",
					zap.String("user_id", h.UserID),
					zap.String("wallet", h.Wallet.String()),
					zap.Error(err))
				collect(fmt.Errorf("subscription %s: %w", h.Wallet, err))
				return nil
			}
			log.Debug("Subscription refreshed",
				zap.String("user_id", h.UserID),
				zap.Time("subscription_end", wallet.SubscriptionEnd),
				zap.Int("payments", len(wallet.Payments)))
			return nil
		})
	}
	_ = g.Wait()
}
