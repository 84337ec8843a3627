// Package memory – хранилище в памяти процесса. Используется, когда Redis не настроен, и в тестах.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

// DefaultRetention – сколько хранится история цены
const DefaultRetention = 2 * time.Hour

// Store is an in-memory implementation of storage.Store.
// Токены хранятся в том же плоском представлении, что и в Redis.
type Store struct {
	mu        sync.RWMutex
	retention time.Duration
	now       func() time.Time

	tokens   map[solana.PublicKey]map[string]string
	prices   map[solana.PublicKey][]storage.PriceSample
	trending []storage.TrendingEntry
	expireAt time.Time
	holdings map[string]storage.Holding
	payments map[solana.PublicKey]map[string]storage.Payment
	subEnds  map[solana.PublicKey]time.Time
	cursors  map[solana.PublicKey]string
}

var _ storage.Store = (*Store)(nil)

// NewStore создаёт пустое хранилище. retention <= 0 означает DefaultRetention.
func NewStore(retention time.Duration) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		retention: retention,
		now:       time.Now,
		tokens:    make(map[solana.PublicKey]map[string]string),
		prices:    make(map[solana.PublicKey][]storage.PriceSample),
		holdings:  make(map[string]storage.Holding),
		payments:  make(map[solana.PublicKey]map[string]storage.Payment),
		subEnds:   make(map[solana.PublicKey]time.Time),
		cursors:   make(map[solana.PublicKey]string),
	}
}

// WithClock подменяет часы, по которым истекает TTL ранжирования.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close ничего не делает.
func (s *Store) Close() error { return nil }

func (s *Store) AddToken(_ context.Context, mint solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[mint]; !ok {
		s.tokens[mint] = make(map[string]string)
	}
	return nil
}

func (s *Store) ListTokens(_ context.Context) ([]solana.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mints := make([]solana.PublicKey, 0, len(s.tokens))
	for mint := range s.tokens {
		mints = append(mints, mint)
	}
	sort.Slice(mints, func(i, j int) bool { return mints[i].String() < mints[j].String() })
	return mints, nil
}

func (s *Store) GetToken(_ context.Context, mint solana.PublicKey) (*storage.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.tokens[mint]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return storage.DecodeToken(mint, fields)
}

func (s *Store) SaveToken(_ context.Context, token *storage.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.Mint] = storage.EncodeToken(token)
	return nil
}

func (s *Store) MarkDead(_ context.Context, mint solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldsFor(mint)[storage.FieldIsDead] = "true"
	return nil
}

func (s *Store) IncrementFailures(_ context.Context, mint solana.PublicKey, kind storage.FailureKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := s.fieldsFor(mint)
	token, err := storage.DecodeToken(mint, fields)
	if err != nil {
		return 0, err
	}
	n := token.Failures(kind) + 1
	fields[storage.FailureField(kind)] = strconv.Itoa(n)
	return n, nil
}

func (s *Store) ResetFailures(_ context.Context, mint solana.PublicKey, kind storage.FailureKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldsFor(mint)[storage.FailureField(kind)] = "0"
	return nil
}

// fieldsFor возвращает карту полей токена, создавая её при необходимости. Вызывается под s.mu.
func (s *Store) fieldsFor(mint solana.PublicKey) map[string]string {
	fields, ok := s.tokens[mint]
	if !ok {
		fields = make(map[string]string)
		s.tokens[mint] = fields
	}
	return fields
}

// AppendPrice добавляет выборку, сохраняя порядок по времени, и удаляет устаревшие.
func (s *Store) AppendPrice(_ context.Context, mint solana.PublicKey, sample storage.PriceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := append(s.prices[mint], sample)
	sort.SliceStable(series, func(i, j int) bool { return series[i].Timestamp < series[j].Timestamp })

	cutoff := sample.Time().Add(-s.retention).UnixMilli()
	first := sort.Search(len(series), func(i int) bool { return series[i].Timestamp >= cutoff })
	s.prices[mint] = append([]storage.PriceSample(nil), series[first:]...)
	return nil
}

func (s *Store) Prices(_ context.Context, mint solana.PublicKey, from, to time.Time) ([]storage.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []storage.PriceSample
	lo, hi := from.UnixMilli(), to.UnixMilli()
	for _, sample := range s.prices[mint] {
		if sample.Timestamp >= lo && sample.Timestamp <= hi {
			result = append(result, sample)
		}
	}
	return result, nil
}

func (s *Store) RecentPrices(_ context.Context, mint solana.PublicKey, n int) ([]storage.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.prices[mint]
	if n <= 0 {
		return nil, nil
	}
	if n > len(series) {
		n = len(series)
	}
	return append([]storage.PriceSample(nil), series[len(series)-n:]...), nil
}

func (s *Store) TrendingCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.liveTrending())), nil
}

func (s *Store) TopTrending(_ context.Context, k int) ([]storage.TrendingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.liveTrending()
	result := make([]storage.TrendingEntry, 0, k)
	for i := len(entries) - 1; i >= 0 && len(result) < k; i-- {
		result = append(result, entries[i])
	}
	return result, nil
}

func (s *Store) BottomTrending(_ context.Context, k int) ([]storage.TrendingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.liveTrending()
	if k > len(entries) {
		k = len(entries)
	}
	return append([]storage.TrendingEntry(nil), entries[:k]...), nil
}

func (s *Store) SaveTrending(_ context.Context, entries []storage.TrendingEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]storage.TrendingEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PercentChange < sorted[j].PercentChange })
	s.trending = sorted
	s.expireAt = s.now().Add(ttl)
	return nil
}

// liveTrending возвращает ранжирование по возрастанию или nil, если TTL истёк. Вызывается под s.mu.
func (s *Store) liveTrending() []storage.TrendingEntry {
	if !s.now().Before(s.expireAt) {
		return nil
	}
	return s.trending
}

func (s *Store) ListUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.holdings))
	for id := range s.holdings {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) GetHolding(_ context.Context, userID string) (*storage.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	h.Mints = append([]solana.PublicKey(nil), h.Mints...)
	return &h, nil
}

func (s *Store) SaveHolding(_ context.Context, holding *storage.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := *holding
	h.Mints = append([]solana.PublicKey(nil), holding.Mints...)
	s.holdings[h.UserID] = h
	return nil
}

func (s *Store) Payments(_ context.Context, wallet solana.PublicKey) ([]storage.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := make([]storage.Payment, 0, len(s.payments[wallet]))
	for _, p := range s.payments[wallet] {
		payments = append(payments, p)
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].Timestamp.Before(payments[j].Timestamp) })
	return payments, nil
}

func (s *Store) AddPayments(_ context.Context, wallet solana.PublicKey, payments []storage.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byWallet, ok := s.payments[wallet]
	if !ok {
		byWallet = make(map[string]storage.Payment)
		s.payments[wallet] = byWallet
	}
	for _, p := range payments {
		byWallet[p.Signature] = p
	}
	return nil
}

func (s *Store) SubscriptionEnd(_ context.Context, wallet solana.PublicKey) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subEnds[wallet], nil
}

func (s *Store) SetSubscriptionEnd(_ context.Context, wallet solana.PublicKey, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subEnds[wallet] = end
	return nil
}

func (s *Store) VaultCursor(_ context.Context, vault solana.PublicKey) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[vault], nil
}

func (s *Store) SetVaultCursor(_ context.Context, vault solana.PublicKey, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[vault] = signature
	return nil
}
