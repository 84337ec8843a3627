// internal/dex/raydium/state.go
package raydium

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// AmmInfo – состояние пула Raydium AMM v4
type AmmInfo struct {
	Status       uint64
	BaseDecimal  uint64
	QuoteDecimal uint64
	PoolOpenTime uint64

	BaseVault  solana.PublicKey // Vault для базового токена
	QuoteVault solana.PublicKey // Vault для котируемого токена
	BaseMint   solana.PublicKey // Базовый токен
	QuoteMint  solana.PublicKey // Котируемый токен
	LPMint     solana.PublicKey // LP токен
	OpenOrders solana.PublicKey // Открытые ордера
	MarketID   solana.PublicKey // ID рынка OpenBook
	LPReserve  uint64
}

// PoolFilters возвращает фильтры для поиска пула с baseMint и quoteMint на своих местах.
func PoolFilters(baseMint, quoteMint solana.PublicKey) []rpc.RPCFilter {
	return []rpc.RPCFilter{
		{DataSize: AmmInfoSize},
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: BaseMintOffset, Bytes: baseMint.Bytes()}},
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: QuoteMintOffset, Bytes: quoteMint.Bytes()}},
	}
}

// DecodeAmmInfo декодирует бинарные данные в структуру состояния
func DecodeAmmInfo(data []byte) (*AmmInfo, error) {
	if len(data) != AmmInfoSize {
		return nil, fmt.Errorf("unexpected amm info length: got %d, want %d", len(data), AmmInfoSize)
	}

	// Функция-помощник для чтения PublicKey
	readPubKey := func(offset int) solana.PublicKey {
		var key solana.PublicKey
		copy(key[:], data[offset:offset+32])
		return key
	}

	// Функция-помощник для чтения uint64
	readUint64 := func(offset int) uint64 {
		return binary.LittleEndian.Uint64(data[offset : offset+8])
	}

	return &AmmInfo{
		Status:       readUint64(statusOffset),
		BaseDecimal:  readUint64(baseDecimalOffset),
		QuoteDecimal: readUint64(quoteDecimalOffset),
		PoolOpenTime: readUint64(poolOpenTimeOffset),
		BaseVault:    readPubKey(BaseVaultOffset),
		QuoteVault:   readPubKey(QuoteVaultOffset),
		BaseMint:     readPubKey(BaseMintOffset),
		QuoteMint:    readPubKey(QuoteMintOffset),
		LPMint:       readPubKey(LpMintOffset),
		OpenOrders:   readPubKey(OpenOrdersOffset),
		MarketID:     readPubKey(MarketIDOffset),
		LPReserve:    readUint64(lpReserveOffset),
	}, nil
}
