// Package trending ранжирует токены по изменению цены за скользящее окно.
package trending

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

const (
	// MaxK – максимальный размер списков победителей и проигравших
	MaxK = 50
	// DefaultWindow – окно изменения цены
	DefaultWindow = time.Hour
)

// Entry – изменение цены токена за окно в процентах.
type Entry = storage.TrendingEntry

// Result – победители (по убыванию изменения) и проигравшие (по возрастанию).
type Result struct {
	Winners []Entry
	Losers  []Entry
}

// Store – часть хранилища, нужная агрегатору.
type Store interface {
	storage.TrendingStore
	ListTokens(ctx context.Context) ([]solana.PublicKey, error)
	Prices(ctx context.Context, mint solana.PublicKey, from, to time.Time) ([]storage.PriceSample, error)
}

// Aggregator поддерживает ранжирование и читает из него топы.
type Aggregator struct {
	store  Store
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewAggregator создаёт агрегатор. window <= 0 означает DefaultWindow.
func NewAggregator(store Store, window time.Duration, logger *zap.Logger) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{
		store:  store,
		window: window,
		now:    time.Now,
		logger: logger.Named("trending"),
	}
}

// WithClock подменяет источник текущего времени.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// TTL ранжированной структуры.
func (a *Aggregator) TTL() time.Duration {
	return 2 * a.window
}

// Top возвращает k победителей и k проигравших. Если ранжирование содержит меньше k
// записей, изменения пересчитываются по истории цен и записываются обратно.
func (a *Aggregator) Top(ctx context.Context, k int) (*Result, error) {
	if k <= 0 || k > MaxK {
		k = MaxK
	}

	count, err := a.store.TrendingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("trending count: %w", err)
	}

	if count >= int64(k) {
		winners, err := a.store.TopTrending(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("top trending: %w", err)
		}
		losers, err := a.store.BottomTrending(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("bottom trending: %w", err)
		}
		return &Result{Winners: winners, Losers: losers}, nil
	}

	entries, err := a.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(entries, k), nil
}

// Refresh пересчитывает изменения всех токенов и заменяет ранжирование.
func (a *Aggregator) Refresh(ctx context.Context) ([]Entry, error) {
	entries, err := a.Compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.store.SaveTrending(ctx, entries, a.TTL()); err != nil {
		return nil, fmt.Errorf("save trending: %w", err)
	}
	a.logger.Debug("Trending recomputed", zap.Int("tokens", len(entries)))
	return entries, nil
}

// Compute считает изменение цены по всем токенам. Ошибка чтения одного токена
// не прерывает расчёт остальных.
func (a *Aggregator) Compute(ctx context.Context) ([]Entry, error) {
	mints, err := a.store.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	now := a.now()
	var entries []Entry
	for _, mint := range mints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		samples, err := a.store.Prices(ctx, mint, now.Add(-2*a.window), now)
		if err != nil {
			a.logger.Warn("Failed to read price history",
				zap.String("mint", mint.String()),
				zap.Error(err))
			continue
		}
		change, ok := PercentChange(samples, now, a.window)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Mint: mint, PercentChange: change})
	}
	return entries, nil
}

// PercentChange считает изменение от опорной выборки до последней. Опорная выборка –
// ближайшая по модулю разницы времени к now-window. samples упорядочены по времени.
// ok=false, если последней выборки нет в окне, выборок меньше двух или цена не положительна.
func PercentChange(samples []storage.PriceSample, now time.Time, window time.Duration) (float64, bool) {
	if len(samples) < 2 {
		return 0, false
	}

	latest := samples[len(samples)-1]
	start := now.Add(-window).UnixMilli()
	if latest.Timestamp < start || latest.Timestamp > now.UnixMilli() {
		return 0, false
	}

	anchor := 0
	best := absDiff(samples[0].Timestamp, start)
	for i := 1; i < len(samples)-1; i++ {
		if d := absDiff(samples[i].Timestamp, start); d < best {
			anchor, best = i, d
		}
	}

	base := samples[anchor].Price
	if !(base > 0) || !(latest.Price > 0) {
		return 0, false
	}
	change := (latest.Price - base) / base * 100
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return 0, false
	}
	return change, true
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Rank строит k победителей и k проигравших из произвольного набора изменений.
func Rank(entries []Entry, k int) *Result {
	if k <= 0 || k > MaxK {
		k = MaxK
	}

	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PercentChange != sorted[j].PercentChange {
			return sorted[i].PercentChange < sorted[j].PercentChange
		}
		return sorted[i].Mint.String() < sorted[j].Mint.String()
	})

	n := min(k, len(sorted))
	result := &Result{
		Winners: make([]Entry, 0, n),
		Losers:  make([]Entry, 0, n),
	}
	for i := 0; i < n; i++ {
		result.Losers = append(result.Losers, sorted[i])
		result.Winners = append(result.Winners, sorted[len(sorted)-1-i])
	}
	return result
}
