// Package raydiumcpmm декодирует пулы Raydium CPMM (constant product без OpenBook).
package raydiumcpmm

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/walletwatch/internal/utils/binary"
)

var (
	// CPMMProgramID – программа Raydium CPMM
	CPMMProgramID = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")

	// PoolStateDiscriminator – дискриминатор аккаунта PoolState
	PoolStateDiscriminator = binary.AnchorDiscriminator("account", "PoolState")
)

const (
	offsetAmmConfig   = 8
	offsetCreator     = offsetAmmConfig + 32
	offsetToken0Vault = offsetCreator + 32
	offsetToken1Vault = offsetToken0Vault + 32
	offsetLPMint      = offsetToken1Vault + 32
	OffsetToken0Mint  = offsetLPMint + 32 // 168
	OffsetToken1Mint  = OffsetToken0Mint + 32
	offsetToken0Prog  = OffsetToken1Mint + 32
	offsetToken1Prog  = offsetToken0Prog + 32
	offsetObservation = offsetToken1Prog + 32
	offsetAuthBump    = offsetObservation + 32
	offsetStatus      = offsetAuthBump + 1
	offsetLPDecimals  = offsetStatus + 1
	offsetMint0Dec    = offsetLPDecimals + 1
	offsetMint1Dec    = offsetMint0Dec + 1
	offsetLPSupply    = offsetMint1Dec + 1

	PoolStateMinSize = offsetLPSupply + 8
)

// PoolState – состояние пула CPMM
type PoolState struct {
	AmmConfig     solana.PublicKey
	Creator       solana.PublicKey
	Token0Vault   solana.PublicKey
	Token1Vault   solana.PublicKey
	LPMint        solana.PublicKey
	Token0Mint    solana.PublicKey
	Token1Mint    solana.PublicKey
	Status        uint8
	Mint0Decimals uint8
	Mint1Decimals uint8
	LPSupply      uint64
}

// PoolFilters возвращает фильтры для поиска пула с mint0 в слоте 0 и mint1 в слоте 1.
func PoolFilters(mint0, mint1 solana.PublicKey) []rpc.RPCFilter {
	return []rpc.RPCFilter{
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: PoolStateDiscriminator}},
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: OffsetToken0Mint, Bytes: mint0.Bytes()}},
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: OffsetToken1Mint, Bytes: mint1.Bytes()}},
	}
}

// ParsePoolState разбирает данные аккаунта PoolState.
func ParsePoolState(data []byte) (*PoolState, error) {
	if err := binary.EnsureLength(data, PoolStateMinSize, "cpmm pool state"); err != nil {
		return nil, err
	}
	if !binary.HasDiscriminator(data, PoolStateDiscriminator) {
		return nil, fmt.Errorf("invalid discriminator for cpmm pool state")
	}

	return &PoolState{
		AmmConfig:     binary.ReadPubKey(data, offsetAmmConfig),
		Creator:       binary.ReadPubKey(data, offsetCreator),
		Token0Vault:   binary.ReadPubKey(data, offsetToken0Vault),
		Token1Vault:   binary.ReadPubKey(data, offsetToken1Vault),
		LPMint:        binary.ReadPubKey(data, offsetLPMint),
		Token0Mint:    binary.ReadPubKey(data, OffsetToken0Mint),
		Token1Mint:    binary.ReadPubKey(data, OffsetToken1Mint),
		Status:        data[offsetStatus],
		Mint0Decimals: data[offsetMint0Dec],
		Mint1Decimals: data[offsetMint1Dec],
		LPSupply:      binary.ReadUint64LittleEndian(data, offsetLPSupply),
	}, nil
}
