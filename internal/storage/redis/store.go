// Package redis реализует хранилище токенов поверх Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

const (
	tokensKey = "tokens"
	usersKey  = "users"

	fieldWallet          = "wallet"
	fieldMints           = "mints"
	fieldAlarmPreset     = "alarmPreset"
	fieldSubscriptionEnd = "subscriptionEndTimestamp"

	// DefaultTrendingKey – ключ ранжированного изменения цены за час
	DefaultTrendingKey = "trending:1h"
	// DefaultRetention – сколько хранится история цены
	DefaultRetention = 2 * time.Hour
)

// Options настраивает хранилище.
type Options struct {
	// Retention – выборки старше этого срока удаляются при каждой записи
	Retention   time.Duration
	TrendingKey string
}

// Store реализует storage.Store на Redis.
type Store struct {
	rdb    *redis.Client
	opts   Options
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore подключается к Redis по URL и проверяет соединение.
func NewStore(ctx context.Context, url string, opts Options, logger *zap.Logger) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewStoreFromClient(rdb, opts, logger), nil
}

// NewStoreFromClient оборачивает готовый клиент.
func NewStoreFromClient(rdb *redis.Client, opts Options, logger *zap.Logger) *Store {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.TrendingKey == "" {
		opts.TrendingKey = DefaultTrendingKey
	}
	return &Store{
		rdb:    rdb,
		opts:   opts,
		logger: logger.Named("redis-store"),
	}
}

// Close закрывает соединение с Redis.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Key helpers
func tokenKey(mint solana.PublicKey) string {
	return fmt.Sprintf("token:%s", mint)
}

func pricesKey(mint solana.PublicKey) string {
	return fmt.Sprintf("prices:%s", mint)
}

func holdingKey(userID string) string {
	return fmt.Sprintf("holdings:%s", userID)
}

func walletKey(wallet solana.PublicKey) string {
	return fmt.Sprintf("wallet:%s", wallet)
}

func paymentsKey(wallet solana.PublicKey) string {
	return fmt.Sprintf("wallet:%s:payments", wallet)
}

func vaultCursorKey(vault solana.PublicKey) string {
	return fmt.Sprintf("vault:%s:cursor", vault)
}

func scoreMs(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// addressFields – поля, которые удаляются, если адрес в записи пустой
var addressFields = []string{
	storage.FieldPool,
	storage.FieldPoolAddress,
	storage.FieldBaseVault,
	storage.FieldQuoteVault,
	storage.FieldBaseMint,
	storage.FieldQuoteMint,
	storage.FieldBaseLPVault,
	storage.FieldQuoteLPVault,
}

// AddToken регистрирует mint в наборе известных токенов.
func (s *Store) AddToken(ctx context.Context, mint solana.PublicKey) error {
	if err := s.rdb.SAdd(ctx, tokensKey, mint.String()).Err(); err != nil {
		return fmt.Errorf("sadd failed: %w", err)
	}
	return nil
}

// ListTokens возвращает все известные mint'ы.
func (s *Store) ListTokens(ctx context.Context) ([]solana.PublicKey, error) {
	members, err := s.rdb.SMembers(ctx, tokensKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}

	mints := make([]solana.PublicKey, 0, len(members))
	for _, member := range members {
		mint, err := solana.PublicKeyFromBase58(member)
		if err != nil {
			s.logger.Warn("Skipping invalid mint in token set", zap.String("member", member), zap.Error(err))
			continue
		}
		mints = append(mints, mint)
	}
	return mints, nil
}

// GetToken читает запись токена. Зарегистрированный токен без полей возвращается пустым.
func (s *Store) GetToken(ctx context.Context, mint solana.PublicKey) (*storage.Token, error) {
	fields, err := s.rdb.HGetAll(ctx, tokenKey(mint)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		known, err := s.rdb.SIsMember(ctx, tokensKey, mint.String()).Result()
		if err != nil {
			return nil, fmt.Errorf("sismember failed: %w", err)
		}
		if !known {
			return nil, storage.ErrNotFound
		}
		return &storage.Token{Mint: mint}, nil
	}
	return storage.DecodeToken(mint, fields)
}

// SaveToken записывает все поля токена. Последняя запись побеждает.
func (s *Store) SaveToken(ctx context.Context, token *storage.Token) error {
	fields := storage.EncodeToken(token)

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	var stale []string
	for _, field := range addressFields {
		if _, ok := fields[field]; !ok {
			stale = append(stale, field)
		}
	}

	key := tokenKey(token.Mint)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, tokensKey, token.Mint.String())
		if len(stale) > 0 {
			pipe.HDel(ctx, key, stale...)
		}
		pipe.HSet(ctx, key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save token %s: %w", token.Mint, err)
	}
	return nil
}

// MarkDead помечает токен мёртвым. История цен сохраняется.
func (s *Store) MarkDead(ctx context.Context, mint solana.PublicKey) error {
	if err := s.rdb.HSet(ctx, tokenKey(mint), storage.FieldIsDead, "true").Err(); err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// IncrementFailures увеличивает счётчик ошибок и возвращает новое значение.
func (s *Store) IncrementFailures(ctx context.Context, mint solana.PublicKey, kind storage.FailureKind) (int, error) {
	n, err := s.rdb.HIncrBy(ctx, tokenKey(mint), storage.FailureField(kind), 1).Result()
	if err != nil {
		return 0, fmt.Errorf("hincrby failed: %w", err)
	}
	return int(n), nil
}

// ResetFailures обнуляет счётчик ошибок.
func (s *Store) ResetFailures(ctx context.Context, mint solana.PublicKey, kind storage.FailureKind) error {
	if err := s.rdb.HSet(ctx, tokenKey(mint), storage.FailureField(kind), "0").Err(); err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// AppendPrice добавляет выборку и удаляет всё, что старше Retention.
func (s *Store) AppendPrice(ctx context.Context, mint solana.PublicKey, sample storage.PriceSample) error {
	member, err := storage.EncodeSample(sample)
	if err != nil {
		return err
	}

	key := pricesKey(mint)
	cutoff := sample.Time().Add(-s.opts.Retention)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(sample.Timestamp), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+scoreMs(cutoff))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append price for %s: %w", mint, err)
	}
	return nil
}

// Prices возвращает выборки в диапазоне [from, to] по возрастанию времени.
func (s *Store) Prices(ctx context.Context, mint solana.PublicKey, from, to time.Time) ([]storage.PriceSample, error) {
	results, err := s.rdb.ZRangeByScoreWithScores(ctx, pricesKey(mint), &redis.ZRangeBy{
		Min: scoreMs(from),
		Max: scoreMs(to),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	return s.decodeSamples(mint, results), nil
}

// RecentPrices возвращает не более n последних выборок по возрастанию времени.
func (s *Store) RecentPrices(ctx context.Context, mint solana.PublicKey, n int) ([]storage.PriceSample, error) {
	if n <= 0 {
		return nil, nil
	}
	results, err := s.rdb.ZRevRangeWithScores(ctx, pricesKey(mint), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	samples := s.decodeSamples(mint, results)
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

func (s *Store) decodeSamples(mint solana.PublicKey, results []redis.Z) []storage.PriceSample {
	samples := make([]storage.PriceSample, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		sample, err := storage.DecodeSample(member, z.Score)
		if err != nil {
			s.logger.Warn("Skipping malformed price sample",
				zap.String("mint", mint.String()),
				zap.Error(err))
			continue
		}
		samples = append(samples, sample)
	}
	return samples
}

// TrendingCount возвращает количество ранжированных токенов.
func (s *Store) TrendingCount(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, s.opts.TrendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return n, nil
}

// TopTrending возвращает k токенов с наибольшим ростом.
func (s *Store) TopTrending(ctx context.Context, k int) ([]storage.TrendingEntry, error) {
	results, err := s.rdb.ZRevRangeWithScores(ctx, s.opts.TrendingKey, 0, int64(k-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}
	return decodeTrending(results), nil
}

// BottomTrending возвращает k токенов с наибольшим падением.
func (s *Store) BottomTrending(ctx context.Context, k int) ([]storage.TrendingEntry, error) {
	results, err := s.rdb.ZRangeWithScores(ctx, s.opts.TrendingKey, 0, int64(k-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	return decodeTrending(results), nil
}

// SaveTrending заменяет ранжированную структуру и выставляет TTL.
func (s *Store) SaveTrending(ctx context.Context, entries []storage.TrendingEntry, ttl time.Duration) error {
	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Score: e.PercentChange, Member: e.Mint.String()}
	}

	key := s.opts.TrendingKey
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) > 0 {
			pipe.ZAdd(ctx, key, members...)
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save trending: %w", err)
	}
	return nil
}

func decodeTrending(results []redis.Z) []storage.TrendingEntry {
	entries := make([]storage.TrendingEntry, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		mint, err := solana.PublicKeyFromBase58(member)
		if err != nil {
			continue
		}
		entries = append(entries, storage.TrendingEntry{Mint: mint, PercentChange: z.Score})
	}
	return entries
}

// ListUsers возвращает идентификаторы пользователей.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	users, err := s.rdb.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}
	return users, nil
}

// GetHolding читает токены пользователя.
func (s *Store) GetHolding(ctx context.Context, userID string) (*storage.Holding, error) {
	fields, err := s.rdb.HGetAll(ctx, holdingKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}

	holding := &storage.Holding{
		UserID:      userID,
		AlarmPreset: fields[fieldAlarmPreset],
	}
	if w := fields[fieldWallet]; w != "" {
		if holding.Wallet, err = solana.PublicKeyFromBase58(w); err != nil {
			return nil, fmt.Errorf("invalid wallet of user %s: %w", userID, err)
		}
	}
	if holding.Mints, err = storage.DecodeMints(fields[fieldMints]); err != nil {
		return nil, fmt.Errorf("invalid mints of user %s: %w", userID, err)
	}
	return holding, nil
}

// SaveHolding записывает токены пользователя.
func (s *Store) SaveHolding(ctx context.Context, holding *storage.Holding) error {
	key := holdingKey(holding.UserID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, usersKey, holding.UserID)
		pipe.HSet(ctx, key, map[string]interface{}{
			fieldWallet:      holding.Wallet.String(),
			fieldMints:       storage.EncodeMints(holding.Mints),
			fieldAlarmPreset: holding.AlarmPreset,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save holding of %s: %w", holding.UserID, err)
	}
	return nil
}

// Payments возвращает платежи кошелька по возрастанию времени.
func (s *Store) Payments(ctx context.Context, wallet solana.PublicKey) ([]storage.Payment, error) {
	members, err := s.rdb.ZRange(ctx, paymentsKey(wallet), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	payments := make([]storage.Payment, 0, len(members))
	for _, member := range members {
		var p storage.Payment
		if err := json.Unmarshal([]byte(member), &p); err != nil {
			s.logger.Warn("Skipping malformed payment",
				zap.String("wallet", wallet.String()),
				zap.Error(err))
			continue
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// AddPayments сохраняет платежи. Повторная запись того же платежа ничего не меняет.
func (s *Store) AddPayments(ctx context.Context, wallet solana.PublicKey, payments []storage.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(payments))
	for _, p := range payments {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode payment %s: %w", p.Signature, err)
		}
		members = append(members, redis.Z{Score: float64(p.Timestamp.UnixMilli()), Member: string(data)})
	}

	if err := s.rdb.ZAdd(ctx, paymentsKey(wallet), members...).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// SubscriptionEnd возвращает сохранённую дату окончания подписки (zero, если её нет).
func (s *Store) SubscriptionEnd(ctx context.Context, wallet solana.PublicKey) (time.Time, error) {
	value, err := s.rdb.HGet(ctx, walletKey(wallet), fieldSubscriptionEnd).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("hget failed: %w", err)
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid subscription end %q: %w", value, err)
	}
	return time.UnixMilli(ms), nil
}

// SetSubscriptionEnd сохраняет дату окончания подписки.
func (s *Store) SetSubscriptionEnd(ctx context.Context, wallet solana.PublicKey, end time.Time) error {
	if err := s.rdb.HSet(ctx, walletKey(wallet), fieldSubscriptionEnd, scoreMs(end)).Err(); err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

// VaultCursor возвращает последнюю обработанную подпись vault'а.
func (s *Store) VaultCursor(ctx context.Context, vault solana.PublicKey) (string, error) {
	sig, err := s.rdb.Get(ctx, vaultCursorKey(vault)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return sig, nil
}

// SetVaultCursor запоминает последнюю обработанную подпись vault'а.
func (s *Store) SetVaultCursor(ctx context.Context, vault solana.PublicKey, signature string) error {
	if err := s.rdb.Set(ctx, vaultCursorKey(vault), signature, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}
