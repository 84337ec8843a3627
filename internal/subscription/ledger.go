// Package subscription находит оплаты подписки в блокчейне и считает дату её окончания.
package subscription

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

// DefaultSignatureLimit – размер страницы подписей vault'а
const DefaultSignatureLimit = 100

// DefaultMaxPages – сколько страниц читается за один проход до сохранённого курсора
const DefaultMaxPages = 10

// Payment – оплата подписки.
type Payment = storage.Payment

// Wallet – кошелёк пользователя с упорядоченными платежами.
type Wallet struct {
	Pubkey          solana.PublicKey
	Payments        []Payment
	SubscriptionEnd time.Time
}

// Active сообщает, действует ли подписка в момент now.
func (w *Wallet) Active(now time.Time) bool {
	return now.Before(w.SubscriptionEnd)
}

// RPC – вызовы для поиска платежей.
type RPC interface {
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetParsedTransaction(ctx context.Context, sig solana.Signature) (*solbc.ParsedTransaction, error)
}

// Store – хранилище платежей и курсора vault'а.
type Store interface {
	Payments(ctx context.Context, wallet solana.PublicKey) ([]storage.Payment, error)
	AddPayments(ctx context.Context, wallet solana.PublicKey, payments []storage.Payment) error
	SetSubscriptionEnd(ctx context.Context, wallet solana.PublicKey, end time.Time) error
	VaultCursor(ctx context.Context, vault solana.PublicKey) (string, error)
	SetVaultCursor(ctx context.Context, vault solana.PublicKey, signature string) error
}

var lamportsPerSol = decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))

// Ledger ищет переводы на vault сервиса и ведёт сроки подписки кошельков.
type Ledger struct {
	client      RPC
	store       Store
	vault       solana.PublicKey
	monthlyCost decimal.Decimal
	limit       int
	maxPages    int
	logger      *zap.Logger
}

// NewLedger создаёт Ledger. limit <= 0 означает DefaultSignatureLimit.
func NewLedger(client RPC, store Store, vault solana.PublicKey, monthlyCost decimal.Decimal, limit int, logger *zap.Logger) *Ledger {
	if limit <= 0 {
		limit = DefaultSignatureLimit
	}
	return &Ledger{
		client:      client,
		store:       store,
		vault:       vault,
		monthlyCost: monthlyCost,
		limit:       limit,
		maxPages:    DefaultMaxPages,
		logger:      logger.Named("subscription"),
	}
}

// Sync читает подписи vault'а новее сохранённого курсора, запрашивает каждую
// транзакцию один раз и сохраняет найденные платежи по кошельку плательщика.
// Курсор сдвигается только после успешного прохода. Возвращает число новых платежей.
func (l *Ledger) Sync(ctx context.Context) (int, error) {
	cursor, err := l.store.VaultCursor(ctx, l.vault)
	if err != nil {
		return 0, fmt.Errorf("load vault cursor: %w", err)
	}

	sigs, err := l.newSignatures(ctx, cursor)
	if err != nil {
		return 0, err
	}
	if len(sigs) == 0 {
		return 0, nil
	}

	byPayer := make(map[solana.PublicKey][]Payment)
	found := 0
	for _, s := range sigs {
		if s.Err != nil {
			continue
		}
		tx, err := l.client.GetParsedTransaction(ctx, s.Signature)
		if err != nil {
			if solbc.IsNotFound(err) {
				continue
			}
			return 0, fmt.Errorf("transaction %s: %w", s.Signature, err)
		}

		payment, ok := DetectPayer(tx, l.vault, l.monthlyCost)
		if !ok {
			continue
		}
		byPayer[payment.Source] = append(byPayer[payment.Source], *payment)
		found++
	}

	for payer, payments := range byPayer {
		if err := l.store.AddPayments(ctx, payer, payments); err != nil {
			return 0, fmt.Errorf("save payments of %s: %w", payer, err)
		}
		l.logger.Info("New subscription payments",
			zap.String("wallet", payer.String()),
			zap.Int("count", len(payments)))
	}

	if err := l.store.SetVaultCursor(ctx, l.vault, sigs[0].Signature.String()); err != nil {
		return found, fmt.Errorf("save vault cursor: %w", err)
	}
	return found, nil
}

// newSignatures возвращает подписи vault'а от новых к старым. Без курсора читается одна
// страница, с курсором – страницы до него, но не больше maxPages.
func (l *Ledger) newSignatures(ctx context.Context, cursor string) ([]*rpc.TransactionSignature, error) {
	var until solana.Signature
	if cursor != "" {
		sig, err := solana.SignatureFromBase58(cursor)
		if err != nil {
			l.logger.Warn("Invalid vault cursor, rescanning latest page",
				zap.String("cursor", cursor),
				zap.Error(err))
			cursor = ""
		} else {
			until = sig
		}
	}

	var (
		out    []*rpc.TransactionSignature
		before solana.Signature
	)
	for page := 0; page < l.maxPages; page++ {
		limit := l.limit
		batch, err := l.client.GetSignaturesForAddress(ctx, l.vault, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Before:     before,
			Until:      until,
			Commitment: rpc.CommitmentFinalized,
		})
		if err != nil {
			return nil, fmt.Errorf("vault signatures: %w", err)
		}
		for _, s := range batch {
			if s != nil {
				out = append(out, s)
			}
		}
		if cursor == "" || len(batch) < limit || len(out) == 0 {
			return out, nil
		}
		before = out[len(out)-1].Signature
	}

	l.logger.Warn("Vault scan stopped before reaching cursor",
		zap.Int("pages", l.maxPages),
		zap.Int("signatures", len(out)))
	return out, nil
}

// Refresh пересчитывает срок подписки кошелька по сохранённым платежам.
// RPC не вызывается: новые платежи сохраняет Sync.
func (l *Ledger) Refresh(ctx context.Context, source solana.PublicKey) (*Wallet, error) {
	payments, err := l.store.Payments(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	sortPayments(payments)

	end := SubscriptionEnd(payments, l.monthlyCost)
	if !end.IsZero() {
		if err := l.store.SetSubscriptionEnd(ctx, source, end); err != nil {
			return nil, fmt.Errorf("save subscription end: %w", err)
		}
	}
	return &Wallet{Pubkey: source, Payments: payments, SubscriptionEnd: end}, nil
}

// DetectPayer находит в транзакции кошелёк, оплативший подписку: аккаунт с наибольшей
// потерей lamports, отличный от destination.
func DetectPayer(tx *solbc.ParsedTransaction, destination solana.PublicKey, cost decimal.Decimal) (*Payment, bool) {
	if tx == nil || tx.Failed {
		return nil, false
	}

	var (
		payer solana.PublicKey
		loss  int64
	)
	for _, key := range tx.AccountKeys {
		if key.Equals(destination) {
			continue
		}
		delta, ok := tx.LamportDelta(key)
		if ok && -delta > loss {
			payer, loss = key, -delta
		}
	}
	if loss == 0 {
		return nil, false
	}
	return DetectPayment(tx, payer, destination, cost)
}

// DetectPayment проверяет, что в одной транзакции source потерял не меньше cost,
// а destination получил не меньше cost. Сумма платежа – то, что получил destination.
func DetectPayment(tx *solbc.ParsedTransaction, source, destination solana.PublicKey, cost decimal.Decimal) (*Payment, bool) {
	if tx == nil || tx.Failed {
		return nil, false
	}
	sourceDelta, ok := tx.LamportDelta(source)
	if !ok {
		return nil, false
	}
	destDelta, ok := tx.LamportDelta(destination)
	if !ok {
		return nil, false
	}

	costLamports := cost.Mul(lamportsPerSol)
	if decimal.NewFromInt(-sourceDelta).LessThan(costLamports) || decimal.NewFromInt(destDelta).LessThan(costLamports) {
		return nil, false
	}

	return &Payment{
		Signature:   tx.Signature.String(),
		AmountSol:   decimal.NewFromInt(destDelta).Div(lamportsPerSol),
		Source:      source,
		Destination: destination,
		Timestamp:   tx.BlockTime,
	}, true
}

// SubscriptionEnd накапливает платежи по возрастанию времени. Каждый раз, когда накоплено
// не меньше cost, окончание сдвигается на месяц от max(текущее окончание, время платежа),
// а cost вычитается. Остаток переносится на следующие платежи.
func SubscriptionEnd(payments []Payment, cost decimal.Decimal) time.Time {
	if !cost.IsPositive() {
		return time.Time{}
	}

	sorted := append([]Payment(nil), payments...)
	sortPayments(sorted)

	var (
		end time.Time
		acc = decimal.Zero
	)
	for _, p := range sorted {
		acc = acc.Add(p.AmountSol)
		for acc.GreaterThanOrEqual(cost) {
			start := end
			if p.Timestamp.After(start) {
				start = p.Timestamp
			}
			end = start.AddDate(0, 1, 0)
			acc = acc.Sub(cost)
		}
	}
	return end
}

func sortPayments(payments []Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].Timestamp.Before(payments[j].Timestamp)
	})
}
