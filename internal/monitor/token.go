// internal/monitor/token.go
package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/events"
	"github.com/rovshanmuradov/walletwatch/internal/price"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
	"github.com/rovshanmuradov/walletwatch/internal/utils/metrics"
)

type tokenOutcome struct {
	sampled bool
	dead    bool
}

// refreshToken: пул → цена → проверка на мёртвый токен → метаданные.
func (s *Service) refreshToken(ctx context.Context, mint solana.PublicKey, log *zap.Logger) (tokenOutcome, error) {
	var outcome tokenOutcome
	log = log.With(zap.String("mint", mint.String()))

	token, err := s.deps.Store.GetToken(ctx, mint)
	if errors.Is(err, storage.ErrNotFound) {
		token = &storage.Token{Mint: mint}
	} else if err != nil {
		return outcome, fmt.Errorf("get token: %w", err)
	}
	if token.IsDead {
		outcome.dead = true
		return outcome, nil
	}

	var errs *multierror.Error
	if token.Failures(storage.FailurePrice) < s.cfg.FailureLimit {
		sampled, err := s.refreshPrice(ctx, token, log)
		outcome.sampled = sampled
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if s.deps.DeadTokens != nil {
		verdict, err := s.deps.DeadTokens.Check(ctx, token)
		switch {
		case err != nil:
			errs = multierror.Append(errs, fmt.Errorf("dead token check: %w", err))
		case verdict.Dead():
			outcome.dead = true
			s.publish(events.TokenDeadEvent{
				BaseEvent: events.NewBase(events.TokenDead, s.now()),
				Mint:      mint,
				Reason:    string(verdict.Reason),
			})
			return outcome, errs.ErrorOrNil()
		case verdict.LastTradeAt.After(token.LastTradeAt):
			token.LastTradeAt = verdict.LastTradeAt
			if err := s.deps.Store.SaveToken(ctx, token); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("save token: %w", err))
			}
		}
	}

	if s.deps.Metadata != nil && !token.HasMetadata() &&
		token.Failures(storage.FailureMetadata) < s.cfg.FailureLimit {
		if err := s.refreshMetadata(ctx, token, log); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return outcome, errs.ErrorOrNil()
}

// refreshPrice находит пул при необходимости и сохраняет новую выборку цены.
func (s *Service) refreshPrice(ctx context.Context, token *storage.Token, log *zap.Logger) (bool, error) {
	if !token.HasPool() {
		if found, err := s.locatePool(ctx, token, log); !found || err != nil {
			return false, err
		}
	}

	now := s.now()
	prior, err := s.deps.Store.Prices(ctx, token.Mint, now.Add(-s.cfg.PriceWindow), now)
	if err != nil {
		return false, fmt.Errorf("load prices: %w", err)
	}

	quote, err := s.deps.Prices.Quote(ctx, token, prior)
	if errors.Is(err, price.ErrCurveComplete) {
		log.Info("Bonding curve completed, relocating pool")
		token.ApplyPool(nil)
		if err := s.deps.Store.SaveToken(ctx, token); err != nil {
			return false, fmt.Errorf("reset pool: %w", err)
		}
		if found, err := s.locatePool(ctx, token, log); !found || err != nil {
			return false, err
		}
		quote, err = s.deps.Prices.Quote(ctx, token, prior)
	}
	switch {
	case errors.Is(err, price.ErrStale):
		return false, nil
	case err != nil && isTransient(err):
		return false, fmt.Errorf("quote: %w", err)
	case err != nil:
		log.Debug("Price unavailable", zap.Error(err))
		return false, s.recordFailure(ctx, token, storage.FailurePrice)
	}

	if err := s.deps.Store.AppendPrice(ctx, token.Mint, quote.Sample); err != nil {
		return false, fmt.Errorf("append price: %w", err)
	}

	dirty := false
	if token.PriceFetchFailures > 0 {
		if err := s.deps.Store.ResetFailures(ctx, token.Mint, storage.FailurePrice); err != nil {
			return true, fmt.Errorf("reset failures: %w", err)
		}
		token.PriceFetchFailures = 0
	}
	if quote.TradeAt.After(token.LastTradeAt) {
		token.LastTradeAt = quote.TradeAt
		dirty = true
	}
	if dirty {
		if err := s.deps.Store.SaveToken(ctx, token); err != nil {
			return true, fmt.Errorf("save token: %w", err)
		}
	}

	s.publish(events.PriceSampledEvent{
		BaseEvent:    events.NewBase(events.PriceSampled, s.now()),
		Mint:         token.Mint,
		Pool:         string(quote.Sample.Pool),
		Price:        quote.Sample.Price,
		MarketCapSol: quote.Sample.MarketCapSol,
	})
	return true, nil
}

// locatePool ищет пул токена и сохраняет его. false без ошибки: пул не найден.
func (s *Service) locatePool(ctx context.Context, token *storage.Token, log *zap.Logger) (bool, error) {
	desc, err := s.deps.Locator.Locate(ctx, token.Mint)
	if err != nil {
		return false, fmt.Errorf("locate pool: %w", err)
	}
	if desc == nil {
		log.Debug("No pool found")
		return false, s.recordFailure(ctx, token, storage.FailurePrice)
	}
	token.ApplyPool(desc)
	if err := s.deps.Store.SaveToken(ctx, token); err != nil {
		return false, fmt.Errorf("save pool: %w", err)
	}
	log.Info("Pool located",
		zap.String("pool", string(desc.Variant)),
		zap.String("pool_address", desc.PoolAddress.String()))
	return true, nil
}

func (s *Service) refreshMetadata(ctx context.Context, token *storage.Token, log *zap.Logger) error {
	md, err := s.deps.Metadata.Fetch(ctx, token.Mint)
	if err != nil {
		if isTransient(err) {
			return fmt.Errorf("metadata: %w", err)
		}
		log.Debug("Metadata unavailable", zap.Error(err))
		return s.recordFailure(ctx, token, storage.FailureMetadata)
	}
	if md.Name == "" && md.Symbol == "" {
		log.Debug("Metadata has neither name nor symbol")
		return s.recordFailure(ctx, token, storage.FailureMetadata)
	}

	token.Metadata = storage.Metadata{
		Symbol:      md.Symbol,
		Name:        md.Name,
		Image:       md.Image,
		URI:         md.URI,
		Description: md.Description,
	}
	if err := s.deps.Store.SaveToken(ctx, token); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, token *storage.Token, kind storage.FailureKind) error {
	n, err := s.deps.Store.IncrementFailures(ctx, token.Mint, kind)
	if err != nil {
		return fmt.Errorf("increment %s failures: %w", kind, err)
	}
	metrics.RecordTokenFailure(string(kind))
	if kind == storage.FailurePrice {
		token.PriceFetchFailures = n
	} else {
		token.MetadataFetchFailures = n
	}
	if n >= s.cfg.FailureLimit {
		s.logger.Info("Failure limit reached",
			zap.String("mint", token.Mint.String()),
			zap.String("kind", string(kind)),
			zap.Int("failures", n))
	}
	return nil
}
