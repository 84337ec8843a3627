package price

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/walletwatch/internal/dex"
	"github.com/rovshanmuradov/walletwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

// replayCurve находит последнюю сделку по bonding curve и берёт цену из неё.
func (c *Calculator) replayCurve(ctx context.Context, mint, curve solana.PublicKey, prior []storage.PriceSample) (*Quote, error) {
	limit := c.signatureLimit
	sigs, err := c.client.GetSignaturesForAddress(ctx, curve, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("curve signatures: %w", err)
	}

	seen := coveredSignatures(prior)
	// транзакции без сделки поверх учтённых: возможна миграция кривой
	skipped := 0
	for _, s := range sigs {
		if s == nil || s.Err != nil {
			continue
		}
		if _, ok := seen[s.Signature.String()]; ok {
			// более новых сделок нет
			return nil, c.noNewTrade(ctx, mint, skipped, ErrStale)
		}

		tx, err := c.client.GetParsedTransaction(ctx, s.Signature)
		if err != nil {
			if solbc.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("curve transaction: %w", err)
		}
		if tx.Failed {
			continue
		}

		trade := findTrade(tx, mint)
		if trade == nil {
			skipped++
			continue
		}
		price, ok := trade.Price()
		if !ok {
			return nil, ErrNoPrice
		}

		mcap := pumpfun.MarketCapSol(price)
		quote := &Quote{Sample: storage.PriceSample{
			Price:        price,
			MarketCapSol: &mcap,
			Pool:         dex.VariantPump,
			Signatures:   []string{tx.Signature.String()},
			Timestamp:    c.now().UnixMilli(),
		}}
		switch {
		case trade.Timestamp > 0:
			quote.TradeAt = time.Unix(trade.Timestamp, 0)
		case !tx.BlockTime.IsZero():
			quote.TradeAt = tx.BlockTime
		}
		return quote, nil
	}

	c.logger.Debug("No trade found on bonding curve",
		zap.String("mint", mint.String()),
		zap.Int("signatures", len(sigs)))
	return nil, c.noNewTrade(ctx, mint, skipped, ErrNoPrice)
}

// noNewTrade проверяет, не завершена ли кривая, если свежие транзакции не содержат сделок.
func (c *Calculator) noNewTrade(ctx context.Context, mint solana.PublicKey, skipped int, fallback error) error {
	if skipped == 0 {
		return fallback
	}
	curve, err := pumpfun.FetchBondingCurve(ctx, c.client, mint)
	switch {
	case solbc.IsNotFound(err):
		// аккаунт кривой закрыт, торговли на ней больше нет
		return ErrCurveComplete
	case err != nil:
		return fmt.Errorf("bonding curve: %w", err)
	case curve.Complete:
		c.logger.Info("Bonding curve completed", zap.String("mint", mint.String()))
		return ErrCurveComplete
	}
	return fallback
}

const instructionMintIndex = 2

// findTrade возвращает сделку по mint из инструкций pump-программы.
// Событие TradeEvent точнее инструкции buy/sell (там лимиты, а не фактические суммы).
func findTrade(tx *solbc.ParsedTransaction, mint solana.PublicKey) *pumpfun.Trade {
	var fallback *pumpfun.Trade
	for _, ix := range tx.InstructionsFor(pumpfun.PumpFunProgramID) {
		trade, err := pumpfun.DecodeTrade(ix.Data)
		if err != nil {
			continue
		}
		if trade.FromEvent {
			if trade.Mint.Equals(mint) {
				return trade
			}
			continue
		}
		// buy/sell: mint – третий аккаунт инструкции
		if fallback == nil && len(ix.Accounts) > instructionMintIndex && ix.Accounts[instructionMintIndex].Equals(mint) {
			trade.Mint = mint
			fallback = trade
		}
	}
	return fallback
}

// coveredSignatures собирает подписи, уже использованные в истории цены.
func coveredSignatures(prior []storage.PriceSample) map[string]struct{} {
	seen := make(map[string]struct{})
	for _, s := range prior {
		for _, sig := range s.Signatures {
			seen[sig] = struct{}{}
		}
	}
	return seen
}
