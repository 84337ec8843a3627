package pumpswap

import (
	"github.com/gagliardetto/solana-go"
)

var (
	// PumpSwapProgramID – AMM, в который мигрируют токены после завершения bonding curve
	PumpSwapProgramID = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")

	// PoolDiscriminator is the discriminator for Pool accounts
	PoolDiscriminator = []byte{241, 154, 109, 4, 17, 177, 109, 188}
)

// Pool account layout offsets
const (
	offsetPoolBump  = 8
	offsetIndex     = offsetPoolBump + 1
	offsetCreator   = offsetIndex + 2
	OffsetBaseMint  = offsetCreator + 32 // 43
	OffsetQuoteMint = OffsetBaseMint + 32
	offsetLPMint    = OffsetQuoteMint + 32
	offsetBaseAcc   = offsetLPMint + 32
	offsetQuoteAcc  = offsetBaseAcc + 32
	offsetLPSupply  = offsetQuoteAcc + 32

	PoolMinSize = offsetLPSupply + 8
)

// Pool represents a liquidity pool in PumpSwap
type Pool struct {
	PoolBump              uint8            // PDA bump
	Index                 uint16           // Pool index
	Creator               solana.PublicKey // Creator of the pool
	BaseMint              solana.PublicKey // Base token mint
	QuoteMint             solana.PublicKey // Quote token mint (usually WSOL)
	LPMint                solana.PublicKey // LP token mint
	PoolBaseTokenAccount  solana.PublicKey // Pool's base token account
	PoolQuoteTokenAccount solana.PublicKey // Pool's quote token account
	LPSupply              uint64           // True circulating supply of LP tokens
}
