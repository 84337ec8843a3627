// Package price вычисляет цену токена по найденному пулу.
package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/walletwatch/internal/dex"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
	"github.com/rovshanmuradov/walletwatch/internal/utils/metrics"
)

var (
	// ErrNoPrice – цену нельзя вычислить (нулевой баланс, нет сделок, нечисловой результат)
	ErrNoPrice = errors.New("no price available")
	// ErrStale – последняя сделка уже учтена в истории цены
	ErrStale = errors.New("price already recorded for these transactions")
	// ErrNoPool – у токена нет пула, по которому считается цена
	ErrNoPool = errors.New("token has no pool")
	// ErrCurveComplete – bonding curve завершена, пул нужно искать заново
	ErrCurveComplete = errors.New("bonding curve completed")
)

// DefaultSignatureLimit – сколько последних подписей bonding curve просматривается в поиске сделки
const DefaultSignatureLimit = 5

// RPC – вызовы, необходимые для расчёта цены.
type RPC interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error)
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetParsedTransaction(ctx context.Context, sig solana.Signature) (*solbc.ParsedTransaction, error)
}

// Quote – результат расчёта цены.
type Quote struct {
	Sample storage.PriceSample
	// TradeAt – время сделки, по которой получена цена (только для bonding curve)
	TradeAt time.Time
}

// Option настраивает Calculator.
type Option func(*Calculator)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// WithSignatureLimit задаёт глубину поиска сделки на bonding curve.
func WithSignatureLimit(limit int) Option {
	return func(c *Calculator) {
		if limit > 0 {
			c.signatureLimit = limit
		}
	}
}

// Calculator считает цену в двух режимах: по балансам vault'ов и по последней сделке.
type Calculator struct {
	client         RPC
	logger         *zap.Logger
	now            func() time.Time
	signatureLimit int
}

// NewCalculator создаёт калькулятор цены.
func NewCalculator(client RPC, logger *zap.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		client:         client,
		logger:         logger.Named("price"),
		now:            time.Now,
		signatureLimit: DefaultSignatureLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote вычисляет текущую цену токена. prior – уже сохранённые выборки токена,
// используются для отсева повторной обработки одних и тех же транзакций.
func (c *Calculator) Quote(ctx context.Context, token *storage.Token, prior []storage.PriceSample) (*Quote, error) {
	desc := token.PoolDescriptor()
	if desc == nil {
		return nil, ErrNoPool
	}

	var (
		quote *Quote
		err   error
	)
	switch {
	case desc.Variant == dex.VariantPump:
		quote, err = c.replayCurve(ctx, token.Mint, desc.PoolAddress, prior)
	case desc.Variant.UsesVaultRatio():
		quote, err = c.vaultRatio(ctx, token.Mint, desc)
	default:
		return nil, fmt.Errorf("%w: unsupported variant %s", ErrNoPool, desc.Variant)
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordPriceSample(string(desc.Variant))
	return quote, nil
}
