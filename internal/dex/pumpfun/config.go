// internal/dex/pumpfun/config.go
package pumpfun

import (
	"github.com/gagliardetto/solana-go"
)

// PumpFunProgramID – программа bonding curve Pump.fun
var PumpFunProgramID = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

const (
	// TokenDecimals – все токены Pump.fun выпускаются с 6 знаками
	TokenDecimals = 6
	// TokenTotalSupply – эмиссия токена в целых единицах
	TokenTotalSupply = 1_000_000_000

	// MintSuffix – суффикс адреса mint у токенов, запущенных через bonding curve
	MintSuffix = "pump"
	// BonkMintSuffix – суффикс mint у запусков в стиле "bonk"
	BonkMintSuffix = "bonk"

	bondingCurveSeed = "bonding-curve"
)
