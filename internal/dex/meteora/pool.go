// Package meteora декодирует пулы Meteora Dynamic AMM.
package meteora

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/walletwatch/internal/utils/binary"
)

var (
	// DynamicAMMProgramID – программа Meteora Dynamic AMM
	DynamicAMMProgramID = solana.MustPublicKeyFromBase58("Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB")

	// PoolDiscriminator – дискриминатор аккаунта Pool
	PoolDiscriminator = binary.AnchorDiscriminator("account", "Pool")
)

// Смещения полей аккаунта Pool
const (
	offsetLPMint     = 8
	OffsetTokenAMint = offsetLPMint + 32 // 40
	OffsetTokenBMint = OffsetTokenAMint + 32
	offsetAVault     = OffsetTokenBMint + 32
	offsetBVault     = offsetAVault + 32
	offsetAVaultLP   = offsetBVault + 32
	offsetBVaultLP   = offsetAVaultLP + 32
	offsetLPBump     = offsetBVaultLP + 32
	offsetEnabled    = offsetLPBump + 1

	PoolMinSize = offsetEnabled + 1
)

// Pool – пул Meteora. Резервы хранятся в yield-vault'ах, пулу принадлежат
// LP-токены этих vault'ов (AVaultLP/BVaultLP).
type Pool struct {
	LPMint     solana.PublicKey
	TokenAMint solana.PublicKey
	TokenBMint solana.PublicKey
	AVault     solana.PublicKey
	BVault     solana.PublicKey
	AVaultLP   solana.PublicKey
	BVaultLP   solana.PublicKey
	Enabled    bool
}

// PoolFilters возвращает фильтры для поиска пула с mintA в слоте A и mintB в слоте B.
func PoolFilters(mintA, mintB solana.PublicKey) []rpc.RPCFilter {
	return []rpc.RPCFilter{
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: PoolDiscriminator}},
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: OffsetTokenAMint, Bytes: mintA.Bytes()}},
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: OffsetTokenBMint, Bytes: mintB.Bytes()}},
	}
}

// ParsePool разбирает данные аккаунта Pool.
func ParsePool(data []byte) (*Pool, error) {
	if err := binary.EnsureLength(data, PoolMinSize, "meteora pool"); err != nil {
		return nil, err
	}
	if !binary.HasDiscriminator(data, PoolDiscriminator) {
		return nil, fmt.Errorf("invalid discriminator for meteora pool")
	}

	return &Pool{
		LPMint:     binary.ReadPubKey(data, offsetLPMint),
		TokenAMint: binary.ReadPubKey(data, OffsetTokenAMint),
		TokenBMint: binary.ReadPubKey(data, OffsetTokenBMint),
		AVault:     binary.ReadPubKey(data, offsetAVault),
		BVault:     binary.ReadPubKey(data, offsetBVault),
		AVaultLP:   binary.ReadPubKey(data, offsetAVaultLP),
		BVaultLP:   binary.ReadPubKey(data, offsetBVaultLP),
		Enabled:    binary.ReadBool(data, offsetEnabled),
	}, nil
}
