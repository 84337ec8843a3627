// Package deadtoken определяет токены, обновлять которые больше не имеет смысла.
package deadtoken

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

const (
	// InactivityPeriod – токен без транзакций дольше этого срока считается мёртвым
	InactivityPeriod = 28 * 24 * time.Hour
	// FlatSampleCount – сколько последних выборок проверяется на неизменность цены
	FlatSampleCount = 15
	// FlatTolerance – допустимое относительное отклонение от опорной цены (±0.001%)
	FlatTolerance = 0.00001
	// DefaultLowPriceThreshold – цена в SOL, ниже которой неизменный токен считается брошенным
	DefaultLowPriceThreshold = 1e-8
)

// Reason – причина, по которой токен признан мёртвым.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonInactive  Reason = "inactive"
	ReasonFlatPrice Reason = "flat_price"
	ReasonZeroPrice Reason = "zero_price"
	// ReasonMarked – токен уже помечен мёртвым в хранилище
	ReasonMarked Reason = "marked"
)

// FlatOrZero проверяет правила по истории цены. samples упорядочены по времени.
// Опорная цена – самая ранняя из FlatSampleCount последних выборок.
func FlatOrZero(samples []storage.PriceSample, lowPrice float64) Reason {
	if len(samples) < FlatSampleCount {
		return ReasonNone
	}
	window := samples[len(samples)-FlatSampleCount:]
	reference := window[0].Price
	if reference == 0 {
		return ReasonZeroPrice
	}

	latest := window[len(window)-1].Price
	if latest >= lowPrice {
		return ReasonNone
	}
	tolerance := math.Abs(reference) * FlatTolerance
	for _, s := range window {
		if math.Abs(s.Price-reference) > tolerance {
			return ReasonNone
		}
	}
	return ReasonFlatPrice
}

// Inactive сообщает, что последняя транзакция старше InactivityPeriod (или её нет).
func Inactive(lastTradeAt, now time.Time) bool {
	return lastTradeAt.IsZero() || now.Sub(lastTradeAt) > InactivityPeriod
}

// RPC – вызов, которым ищется последняя транзакция по mint.
type RPC interface {
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
}

// Store – часть хранилища, нужная классификатору.
type Store interface {
	RecentPrices(ctx context.Context, mint solana.PublicKey, n int) ([]storage.PriceSample, error)
	MarkDead(ctx context.Context, mint solana.PublicKey) error
}

// Verdict – результат проверки токена.
type Verdict struct {
	Reason Reason
	// LastTradeAt – время последней транзакции, если его пришлось уточнить по RPC
	LastTradeAt time.Time
}

// Dead сообщает, признан ли токен мёртвым.
func (v Verdict) Dead() bool {
	return v.Reason != ReasonNone
}

// Classifier проверяет токены и помечает мёртвые в хранилище. История не удаляется.
type Classifier struct {
	client   RPC
	store    Store
	lowPrice float64
	now      func() time.Time
	logger   *zap.Logger
}

// NewClassifier создаёт классификатор. lowPrice <= 0 означает DefaultLowPriceThreshold.
func NewClassifier(client RPC, store Store, lowPrice float64, logger *zap.Logger) *Classifier {
	if lowPrice <= 0 {
		lowPrice = DefaultLowPriceThreshold
	}
	return &Classifier{
		client:   client,
		store:    store,
		lowPrice: lowPrice,
		now:      time.Now,
		logger:   logger.Named("dead-token"),
	}
}

// WithClock подменяет источник текущего времени.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// Check проверяет токен и при необходимости помечает его мёртвым.
func (c *Classifier) Check(ctx context.Context, token *storage.Token) (Verdict, error) {
	if token.IsDead {
		return Verdict{Reason: ReasonMarked}, nil
	}

	samples, err := c.store.RecentPrices(ctx, token.Mint, FlatSampleCount)
	if err != nil {
		return Verdict{}, fmt.Errorf("recent prices: %w", err)
	}
	verdict := Verdict{Reason: FlatOrZero(samples, c.lowPrice)}

	if !verdict.Dead() {
		lastTrade := token.LastTradeAt
		if Inactive(lastTrade, c.now()) {
			// сохранённое значение устарело, уточняем по последней подписи mint
			lastTrade, err = c.latestActivity(ctx, token.Mint)
			if err != nil {
				return Verdict{}, err
			}
			verdict.LastTradeAt = lastTrade
		}
		if Inactive(lastTrade, c.now()) {
			verdict.Reason = ReasonInactive
		}
	}

	if verdict.Dead() {
		if err := c.store.MarkDead(ctx, token.Mint); err != nil {
			return Verdict{}, fmt.Errorf("mark dead: %w", err)
		}
		c.logger.Info("Token marked dead",
			zap.String("mint", token.Mint.String()),
			zap.String("reason", string(verdict.Reason)))
	}
	return verdict, nil
}

func (c *Classifier) latestActivity(ctx context.Context, mint solana.PublicKey) (time.Time, error) {
	limit := 1
	sigs, err := c.client.GetSignaturesForAddress(ctx, mint, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("mint signatures: %w", err)
	}
	if len(sigs) == 0 || sigs[0] == nil || sigs[0].BlockTime == nil {
		return time.Time{}, nil
	}
	return time.Unix(int64(*sigs[0].BlockTime), 0), nil
}
