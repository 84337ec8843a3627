// ==========================================
// File: internal/dex/types.go
// ==========================================
package dex

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// WrappedSolMint – mint нативного SOL, вторая сторона всех искомых пар
var WrappedSolMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// Variant определяет протокол, на котором торгуется токен.
type Variant string

const (
	VariantPump        Variant = "pump"
	VariantPumpSwap    Variant = "pump-swap"
	VariantRaydium     Variant = "raydium"
	VariantRaydiumCPMM Variant = "raydium-cpmm"
	VariantMeteora     Variant = "meteora"
	VariantNone        Variant = "none"
)

// ParseVariant разбирает строковое значение варианта пула.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantPump, VariantPumpSwap, VariantRaydium, VariantRaydiumCPMM, VariantMeteora, VariantNone:
		return v, nil
	case "":
		return VariantNone, nil
	}
	return VariantNone, fmt.Errorf("unknown pool variant %q", s)
}

// UsesVaultRatio сообщает, считается ли цена по балансам vault'ов.
func (v Variant) UsesVaultRatio() bool {
	switch v {
	case VariantPumpSwap, VariantRaydium, VariantRaydiumCPMM, VariantMeteora:
		return true
	}
	return false
}

// LPVaults – LP-аккаунты yield-vault'ов (только meteora).
type LPVaults struct {
	Base  solana.PublicKey
	Quote solana.PublicKey
}

// PoolDescriptor описывает найденный пул токена.
type PoolDescriptor struct {
	Variant     Variant
	PoolAddress solana.PublicKey
	BaseVault   solana.PublicKey
	QuoteVault  solana.PublicKey
	BaseMint    solana.PublicKey
	QuoteMint   solana.PublicKey
	LPVaults    *LPVaults
}

// IsBase сообщает, находится ли mint на базовой стороне пула.
func (p *PoolDescriptor) IsBase(mint solana.PublicKey) bool {
	return p.BaseMint.Equals(mint)
}
