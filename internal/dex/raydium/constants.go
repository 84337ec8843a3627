// internal/dex/raydium/constants.go
package raydium

import (
	"github.com/gagliardetto/solana-go"
)

// Program IDs
var (
	// Используем MPK для краткости, так как это константы
	RaydiumV4ProgramID = solana.MPK("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
)

// Layout AmmInfo (LIQUIDITY_STATE_LAYOUT_V4). Дискриминатора нет, аккаунт опознаётся по размеру.
const (
	AmmInfoSize = 752

	statusOffset       = 0
	baseDecimalOffset  = 32
	quoteDecimalOffset = 40
	poolOpenTimeOffset = 224
	BaseVaultOffset    = 336
	QuoteVaultOffset   = 368
	BaseMintOffset     = 400
	QuoteMintOffset    = 432
	LpMintOffset       = 464
	OpenOrdersOffset   = 496
	MarketIDOffset     = 528
	lpReserveOffset    = 720
)
