package trending

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/storage"
	"github.com/rovshanmuradov/walletwatch/internal/storage/memory"
)

var now = time.UnixMilli(1_700_000_000_000)

func sample(age time.Duration, price float64) storage.PriceSample {
	return storage.PriceSample{Price: price, Timestamp: now.Add(-age).UnixMilli()}
}

func seed(t *testing.T, store *memory.Store, mint solana.PublicKey, samples ...storage.PriceSample) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.AddToken(ctx, mint))
	for _, s := range samples {
		require.NoError(t, store.AppendPrice(ctx, mint, s))
	}
}

func newTestAggregator(store *memory.Store) *Aggregator {
	store.WithClock(func() time.Time { return now })
	return NewAggregator(store, time.Hour, zap.NewNop()).WithClock(func() time.Time { return now })
}

func TestPercentChangeFromWindowStart(t *testing.T) {
	change, ok := PercentChange([]storage.PriceSample{
		sample(time.Hour, 1.0),
		sample(0, 1.5),
	}, now, time.Hour)
	require.True(t, ok)
	assert.InDelta(t, 50.0, change, 1e-9)
}

func TestPercentChangeUsesClosestAnchor(t *testing.T) {
	// ближайшая к now-1h выборка лежит после границы окна
	change, ok := PercentChange([]storage.PriceSample{
		sample(time.Hour+100*time.Second, 2.0),
		sample(time.Hour-50*time.Second, 1.0),
		sample(30*time.Minute, 1.2),
		sample(0, 1.5),
	}, now, time.Hour)
	require.True(t, ok)
	assert.InDelta(t, 50.0, change, 1e-9)
}

func TestPercentChangeExclusions(t *testing.T) {
	cases := map[string][]storage.PriceSample{
		"single sample":         {sample(0, 1.0)},
		"latest outside window": {sample(3*time.Hour, 1.0), sample(2*time.Hour, 2.0)},
		"zero anchor":           {sample(time.Hour, 0), sample(0, 1.0)},
		"negative latest":       {sample(time.Hour, 1.0), sample(0, -1.0)},
	}
	for name, samples := range cases {
		_, ok := PercentChange(samples, now, time.Hour)
		assert.False(t, ok, name)
	}
}

func TestTopFallbackComputesAndWritesBack(t *testing.T) {
	store := memory.NewStore(3 * time.Hour)
	ctx := context.Background()

	up, down, flat, stale := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(),
		solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	seed(t, store, up, sample(time.Hour, 1.0), sample(0, 1.5))
	seed(t, store, down, sample(time.Hour, 2.0), sample(0, 1.0))
	seed(t, store, flat, sample(time.Hour, 3.0), sample(0, 3.0))
	seed(t, store, stale, sample(150*time.Minute, 1.0), sample(90*time.Minute, 5.0))

	agg := newTestAggregator(store)
	result, err := agg.Top(ctx, 2)
	require.NoError(t, err)

	require.Len(t, result.Winners, 2)
	assert.Equal(t, up, result.Winners[0].Mint)
	assert.InDelta(t, 50.0, result.Winners[0].PercentChange, 1e-9)
	assert.Equal(t, flat, result.Winners[1].Mint)

	require.Len(t, result.Losers, 2)
	assert.Equal(t, down, result.Losers[0].Mint)
	assert.InDelta(t, -50.0, result.Losers[0].PercentChange, 1e-9)

	count, err := store.TrendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count, "stale token is excluded, the rest is written back")
}

func TestTopFastPathReadsRanking(t *testing.T) {
	store := memory.NewStore(0)
	ctx := context.Background()
	agg := newTestAggregator(store)

	var entries []Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, Entry{Mint: solana.NewWallet().PublicKey(), PercentChange: float64(i*10 - 20)})
	}
	require.NoError(t, store.SaveTrending(ctx, entries, agg.TTL()))

	// история цен пуста: ответ может прийти только из ранжирования
	result, err := agg.Top(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []Entry{entries[4], entries[3]}, result.Winners)
	assert.Equal(t, []Entry{entries[0], entries[1]}, result.Losers)
}

func TestTopCapsK(t *testing.T) {
	store := memory.NewStore(3 * time.Hour)
	for i := 0; i < MaxK+10; i++ {
		seed(t, store, solana.NewWallet().PublicKey(), sample(time.Hour, 1.0), sample(0, 1.0+float64(i)/100))
	}

	result, err := newTestAggregator(store).Top(context.Background(), 500)
	require.NoError(t, err)
	assert.Len(t, result.Winners, MaxK)
	assert.Len(t, result.Losers, MaxK)
	for i := 1; i < len(result.Winners); i++ {
		assert.GreaterOrEqual(t, result.Winners[i-1].PercentChange, result.Winners[i].PercentChange, fmt.Sprint(i))
		assert.LessOrEqual(t, result.Losers[i-1].PercentChange, result.Losers[i].PercentChange, fmt.Sprint(i))
	}
}
