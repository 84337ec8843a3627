package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
	"github.com/rovshanmuradov/walletwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/walletwatch/internal/deadtoken"
	"github.com/rovshanmuradov/walletwatch/internal/dex"
	"github.com/rovshanmuradov/walletwatch/internal/events"
	"github.com/rovshanmuradov/walletwatch/internal/price"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
	"github.com/rovshanmuradov/walletwatch/internal/storage/memory"
	"github.com/rovshanmuradov/walletwatch/internal/subscription"
	"github.com/rovshanmuradov/walletwatch/internal/trending"
)

var now = time.UnixMilli(1_700_000_000_000)

func clock() time.Time { return now }

type stubLocator struct {
	mu    sync.Mutex
	desc  *dex.PoolDescriptor
	calls int
}

func (l *stubLocator) Locate(context.Context, solana.PublicKey) (*dex.PoolDescriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.desc, nil
}

type stubQuoter struct {
	mu     sync.Mutex
	prices map[solana.PublicKey]float64
	err    error
	calls  int
	// кривая завершена: pump-пул больше не даёт цену
	curveComplete bool
}

func (q *stubQuoter) Quote(_ context.Context, token *storage.Token, _ []storage.PriceSample) (*price.Quote, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	if q.curveComplete && token.Pool == dex.VariantPump {
		return nil, price.ErrCurveComplete
	}
	p, ok := q.prices[token.Mint]
	if !ok {
		return nil, price.ErrNoPrice
	}
	return &price.Quote{
		Sample:  storage.PriceSample{Price: p, Pool: token.Pool, Timestamp: now.UnixMilli()},
		TradeAt: now.Add(-time.Minute),
	}, nil
}

type stubDead struct {
	dead map[solana.PublicKey]deadtoken.Reason
}

func (d *stubDead) Check(_ context.Context, token *storage.Token) (deadtoken.Verdict, error) {
	return deadtoken.Verdict{Reason: d.dead[token.Mint]}, nil
}

type stubMetadata struct {
	mu    sync.Mutex
	md    *solbc.TokenMetadata
	err   error
	calls int
}

func (m *stubMetadata) Fetch(context.Context, solana.PublicKey) (*solbc.TokenMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.md, m.err
}

type stubSubscriptions struct {
	mu        sync.Mutex
	syncs     int
	refreshed map[solana.PublicKey]int
	syncErr   error
}

func (l *stubSubscriptions) Sync(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncs++
	return 0, l.syncErr
}

func (l *stubSubscriptions) Refresh(_ context.Context, source solana.PublicKey) (*subscription.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshed[source]++
	return &subscription.Wallet{Pubkey: source}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store   *memory.Store
	locator *stubLocator
	quoter  *stubQuoter
	dead    *stubDead
	events  *recorder
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewStore(2 * time.Hour).WithClock(clock),
		locator: &stubLocator{},
		quoter:  &stubQuoter{prices: map[solana.PublicKey]float64{}},
		dead:    &stubDead{dead: map[solana.PublicKey]deadtoken.Reason{}},
		events:  &recorder{},
	}
	f.service = NewService(Config{FailureLimit: 3}, Deps{
		Store:      f.store,
		Locator:    f.locator,
		Prices:     f.quoter,
		DeadTokens: f.dead,
		Trending:   trending.NewAggregator(f.store, time.Hour, zap.NewNop()).WithClock(clock),
		Alarms:     alarm.NewEvaluator(alarm.DefaultCooldown, zap.NewNop()).WithClock(clock),
		Events:     f.events,
	}, zap.NewNop()).WithClock(clock)
	return f
}

func raydiumPool() *dex.PoolDescriptor {
	return &dex.PoolDescriptor{
		Variant:     dex.VariantRaydium,
		PoolAddress: solana.NewWallet().PublicKey(),
		BaseVault:   solana.NewWallet().PublicKey(),
		QuoteVault:  solana.NewWallet().PublicKey(),
		BaseMint:    solana.NewWallet().PublicKey(),
		QuoteMint:   dex.WrappedSolMint,
	}
}

func TestRefreshLocatesPoolAndStoresSample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	require.NoError(t, f.store.AddToken(ctx, mint))
	f.locator.desc = raydiumPool()
	f.quoter.prices[mint] = 0.5

	report, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tokens)
	assert.Equal(t, 1, report.Sampled)
	assert.NotEmpty(t, report.ID)

	token, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, dex.VariantRaydium, token.Pool)
	assert.Equal(t, f.locator.desc.BaseVault, token.BaseVault)
	assert.Equal(t, now.Add(-time.Minute).Unix(), token.LastTradeAt.Unix())

	samples, err := f.store.RecentPrices(ctx, mint, 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 0.5, samples[0].Price)

	assert.Len(t, f.events.ofType(events.PriceSampled), 1)
	assert.Len(t, f.events.ofType(events.CycleCompleted), 1)

	// пул уже известен
	_, err = f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.locator.calls)
}

func TestRefreshStopsAfterFailureLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	require.NoError(t, f.store.AddToken(ctx, mint))

	for i := 0; i < 5; i++ {
		_, err := f.service.RefreshOnce(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, f.locator.calls)
	token, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, 3, token.PriceFetchFailures)
}

func TestRefreshStaleQuoteIsNotAFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(raydiumPool())
	require.NoError(t, f.store.SaveToken(ctx, token))
	f.quoter.err = price.ErrStale

	report, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Sampled)

	stored, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.Zero(t, stored.PriceFetchFailures)
}

func TestRefreshTransientErrorIsReportedNotCounted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(raydiumPool())
	require.NoError(t, f.store.SaveToken(ctx, token))
	f.quoter.err = solbc.NewError(errors.New("503 service unavailable"), "getTokenAccountBalance")

	report, err := f.service.RefreshOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, report.Failed)

	stored, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.Zero(t, stored.PriceFetchFailures)
}

func TestRefreshSkipsDeadTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dead := solana.NewWallet().PublicKey()
	require.NoError(t, f.store.AddToken(ctx, dead))
	require.NoError(t, f.store.MarkDead(ctx, dead))

	dying := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: dying}
	token.ApplyPool(raydiumPool())
	require.NoError(t, f.store.SaveToken(ctx, token))
	f.quoter.prices[dying] = 0.000000001
	f.dead.dead[dying] = deadtoken.ReasonFlatPrice

	report, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Dead)
	assert.Equal(t, 1, f.quoter.calls)

	deadEvents := f.events.ofType(events.TokenDead)
	require.Len(t, deadEvents, 1)
	assert.Equal(t, dying, deadEvents[0].(events.TokenDeadEvent).Mint)
}

func TestRefreshFetchesMetadataOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.service.deps.Metadata = &stubMetadata{md: &solbc.TokenMetadata{Symbol: "WIF", Name: "dogwifhat"}}
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(raydiumPool())
	require.NoError(t, f.store.SaveToken(ctx, token))
	f.quoter.prices[mint] = 2

	_, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)

	stored, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, "WIF", stored.Metadata.Symbol)
	assert.Equal(t, "dogwifhat", stored.Metadata.Name)
}

func TestRefreshCountsMetadataFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.service.deps.Metadata = &stubMetadata{err: errors.New("metadata account too short")}
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(raydiumPool())
	require.NoError(t, f.store.SaveToken(ctx, token))
	f.quoter.prices[mint] = 2

	_, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)

	stored, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.MetadataFetchFailures)
	assert.Zero(t, stored.PriceFetchFailures)
}

func TestRefreshStopsFetchingEmptyMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	md := &stubMetadata{md: &solbc.TokenMetadata{URI: "https://example.invalid/meta.json"}}
	f.service.deps.Metadata = md
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(raydiumPool())
	require.NoError(t, f.store.SaveToken(ctx, token))
	f.quoter.prices[mint] = 2

	for i := 0; i < 5; i++ {
		_, err := f.service.RefreshOnce(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, md.calls)
	stored, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.MetadataFetchFailures)
	assert.False(t, stored.HasMetadata())
}

func TestRefreshRelocatesAfterCurveCompletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(&dex.PoolDescriptor{
		Variant:     dex.VariantPump,
		PoolAddress: solana.NewWallet().PublicKey(),
		BaseMint:    mint,
		QuoteMint:   dex.WrappedSolMint,
	})
	require.NoError(t, f.store.SaveToken(ctx, token))

	swapPool := &dex.PoolDescriptor{
		Variant:     dex.VariantPumpSwap,
		PoolAddress: solana.NewWallet().PublicKey(),
		BaseVault:   solana.NewWallet().PublicKey(),
		QuoteVault:  solana.NewWallet().PublicKey(),
		BaseMint:    mint,
		QuoteMint:   dex.WrappedSolMint,
	}
	f.locator.desc = swapPool
	f.quoter.curveComplete = true
	f.quoter.prices[mint] = 0.7

	report, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sampled)
	assert.Equal(t, 1, f.locator.calls)

	stored, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, dex.VariantPumpSwap, stored.Pool)
	assert.Equal(t, swapPool.PoolAddress, stored.PoolAddress)
	assert.Zero(t, stored.PriceFetchFailures)

	samples, err := f.store.RecentPrices(ctx, mint, 10)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, dex.VariantPumpSwap, samples[0].Pool)

	// новый пул сохранён, повторный поиск не нужен
	_, err = f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.locator.calls)
}

func TestRefreshCompletedCurveWithoutSuccessor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(&dex.PoolDescriptor{Variant: dex.VariantPump, PoolAddress: solana.NewWallet().PublicKey(), BaseMint: mint})
	require.NoError(t, f.store.SaveToken(ctx, token))
	f.quoter.curveComplete = true

	_, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)

	stored, err := f.store.GetToken(ctx, mint)
	require.NoError(t, err)
	assert.False(t, stored.HasPool())
	assert.Equal(t, 1, stored.PriceFetchFailures)
	assert.Equal(t, 1, f.locator.calls)
}

func TestRefreshRaisesAlarmForHolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint, Metadata: storage.Metadata{Symbol: "PEPE"}}
	token.ApplyPool(raydiumPool())
	require.NoError(t, f.store.SaveToken(ctx, token))
	require.NoError(t, f.store.AppendPrice(ctx, mint, storage.PriceSample{
		Price:     1.0,
		Timestamp: now.Add(-10 * time.Minute).UnixMilli(),
	}))
	require.NoError(t, f.store.SaveHolding(ctx, &storage.Holding{
		UserID:      "u1",
		Mints:       []solana.PublicKey{mint},
		AlarmPreset: "standard",
	}))
	f.quoter.prices[mint] = 1.5

	report, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Alerts)

	raised := f.events.ofType(events.AlarmRaised)
	require.Len(t, raised, 1)
	a := raised[0].(events.AlarmRaisedEvent).Alarm
	assert.Equal(t, "u1", a.UserID)
	assert.Equal(t, "PEPE", a.Symbol)
	assert.Equal(t, alarm.AlertCritical, a.Type)
	assert.Equal(t, 1, a.WindowMinutes)

	// повтор в пределах cooldown подавляется
	report, err = f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Alerts)

	last, ok := f.service.LastCycle()
	require.True(t, ok)
	assert.Equal(t, report.ID, last.ID)
}

func TestRefreshTracksHeldTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mint := solana.NewWallet().PublicKey()
	require.NoError(t, f.store.SaveHolding(ctx, &storage.Holding{
		UserID: "u2",
		Mints:  []solana.PublicKey{mint},
	}))

	report, err := f.service.RefreshOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tokens)

	mints, err := f.store.ListTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{mint}, mints)
}

func TestRefreshScansVaultOncePerCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subs := &stubSubscriptions{refreshed: map[solana.PublicKey]int{}}
	f.service.deps.Subscriptions = subs

	var wallets []solana.PublicKey
	for _, id := range []string{"u1", "u2", "u3"} {
		w := solana.NewWallet().PublicKey()
		wallets = append(wallets, w)
		require.NoError(t, f.store.SaveHolding(ctx, &storage.Holding{UserID: id, Wallet: w}))
	}
	require.NoError(t, f.store.SaveHolding(ctx, &storage.Holding{UserID: "no-wallet"}))

	for i := 0; i < 3; i++ {
		_, err := f.service.RefreshOnce(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, subs.syncs)
	require.Len(t, subs.refreshed, 3)
	for _, w := range wallets {
		assert.Equal(t, 3, subs.refreshed[w])
	}
}

func TestRefreshRecomputesSubscriptionsWhenScanFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subs := &stubSubscriptions{refreshed: map[solana.PublicKey]int{}, syncErr: errors.New("vault signatures: boom")}
	f.service.deps.Subscriptions = subs
	w := solana.NewWallet().PublicKey()
	require.NoError(t, f.store.SaveHolding(ctx, &storage.Holding{UserID: "u1", Wallet: w}))

	_, err := f.service.RefreshOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, subs.refreshed[w])
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.service.cfg.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.service.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
	assert.GreaterOrEqual(t, len(f.events.ofType(events.CycleCompleted)), 2)
}
