// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ErrNotFound возвращается, когда запись отсутствует в хранилище
var ErrNotFound = errors.New("record not found")

// FailureKind определяет счётчик ошибок токена.
type FailureKind string

const (
	FailurePrice    FailureKind = "price"
	FailureMetadata FailureKind = "metadata"
)

// TokenStore хранит состояние токенов.
type TokenStore interface {
	// Токены
	AddToken(ctx context.Context, mint solana.PublicKey) error
	ListTokens(ctx context.Context) ([]solana.PublicKey, error)
	GetToken(ctx context.Context, mint solana.PublicKey) (*Token, error)
	SaveToken(ctx context.Context, token *Token) error
	MarkDead(ctx context.Context, mint solana.PublicKey) error

	// Счётчики ошибок
	IncrementFailures(ctx context.Context, mint solana.PublicKey, kind FailureKind) (int, error)
	ResetFailures(ctx context.Context, mint solana.PublicKey, kind FailureKind) error
}

// PriceStore хранит историю цен, упорядоченную по времени.
type PriceStore interface {
	AppendPrice(ctx context.Context, mint solana.PublicKey, sample PriceSample) error
	// Prices возвращает выборки в диапазоне [from, to] по возрастанию времени.
	Prices(ctx context.Context, mint solana.PublicKey, from, to time.Time) ([]PriceSample, error)
	// RecentPrices возвращает не более n последних выборок по возрастанию времени.
	RecentPrices(ctx context.Context, mint solana.PublicKey, n int) ([]PriceSample, error)
}

// TrendingStore – ранжированная по изменению цены структура.
type TrendingStore interface {
	TrendingCount(ctx context.Context) (int64, error)
	TopTrending(ctx context.Context, k int) ([]TrendingEntry, error)
	BottomTrending(ctx context.Context, k int) ([]TrendingEntry, error)
	SaveTrending(ctx context.Context, entries []TrendingEntry, ttl time.Duration) error
}

// HoldingStore хранит токены пользователей и их настройки уведомлений.
type HoldingStore interface {
	ListUsers(ctx context.Context) ([]string, error)
	GetHolding(ctx context.Context, userID string) (*Holding, error)
	SaveHolding(ctx context.Context, holding *Holding) error
}

// PaymentStore хранит платежи за подписку по кошельку.
type PaymentStore interface {
	Payments(ctx context.Context, wallet solana.PublicKey) ([]Payment, error)
	AddPayments(ctx context.Context, wallet solana.PublicKey, payments []Payment) error
	SubscriptionEnd(ctx context.Context, wallet solana.PublicKey) (time.Time, error)
	SetSubscriptionEnd(ctx context.Context, wallet solana.PublicKey, end time.Time) error
	// VaultCursor – последняя обработанная подпись vault'а ("" если проходов ещё не было)
	VaultCursor(ctx context.Context, vault solana.PublicKey) (string, error)
	SetVaultCursor(ctx context.Context, vault solana.PublicKey, signature string) error
}

// Store объединяет все части хранилища
type Store interface {
	TokenStore
	PriceStore
	TrendingStore
	HoldingStore
	PaymentStore
	Close() error
}
