package price

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/dex"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

// VaultRatio возвращает цену mint'а в единицах второй стороны пула.
// Для mint на базовой стороне цена = quote/base, иначе base/quote.
// Нулевые, отрицательные и нечисловые значения дают ok=false.
func VaultRatio(base, quote float64, mintIsBase bool) (float64, bool) {
	if !(base > 0) || !(quote > 0) {
		return 0, false
	}
	price := quote / base
	if !mintIsBase {
		price = base / quote
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, false
	}
	return price, true
}

// vaultAccounts возвращает аккаунты, балансы которых определяют цену.
// У meteora резервы лежат в yield-vault'ах, поэтому берутся LP-аккаунты пула.
func vaultAccounts(desc *dex.PoolDescriptor) (base, quote solana.PublicKey) {
	if desc.Variant == dex.VariantMeteora && desc.LPVaults != nil {
		return desc.LPVaults.Base, desc.LPVaults.Quote
	}
	return desc.BaseVault, desc.QuoteVault
}

func (c *Calculator) vaultRatio(ctx context.Context, mint solana.PublicKey, desc *dex.PoolDescriptor) (*Quote, error) {
	baseAcc, quoteAcc := vaultAccounts(desc)

	base, err := c.balance(ctx, baseAcc)
	if err != nil {
		return nil, fmt.Errorf("base vault balance: %w", err)
	}
	quote, err := c.balance(ctx, quoteAcc)
	if err != nil {
		return nil, fmt.Errorf("quote vault balance: %w", err)
	}

	price, ok := VaultRatio(base, quote, desc.IsBase(mint))
	if !ok {
		c.logger.Debug("Vault ratio is not a price",
			zap.String("mint", mint.String()),
			zap.Float64("base", base),
			zap.Float64("quote", quote))
		return nil, ErrNoPrice
	}

	return &Quote{Sample: storage.PriceSample{
		Price:     price,
		Pool:      desc.Variant,
		Timestamp: c.now().UnixMilli(),
	}}, nil
}

// balance возвращает баланс токенного аккаунта в UI-единицах.
func (c *Calculator) balance(ctx context.Context, account solana.PublicKey) (float64, error) {
	res, err := c.client.GetTokenAccountBalance(ctx, account)
	if err != nil {
		return 0, err
	}
	return uiAmount(res.Value)
}

func uiAmount(v *rpc.UiTokenAmount) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("empty token amount")
	}
	raw, err := decimal.NewFromString(v.Amount)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", v.Amount, err)
	}
	amount, _ := raw.Shift(-int32(v.Decimals)).Float64()
	return amount, nil
}
