// =============================
// File: internal/dex/pumpswap/pool.go
// =============================
package pumpswap

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/walletwatch/internal/utils/binary"
)

// PoolFilters возвращает memcmp-фильтры для поиска пула по паре mint'ов.
func PoolFilters(baseMint, quoteMint solana.PublicKey) []rpc.RPCFilter {
	return []rpc.RPCFilter{
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: PoolDiscriminator}},
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: OffsetBaseMint, Bytes: baseMint.Bytes()}},
		{Memcmp: &rpc.RPCFilterMemcmp{Offset: OffsetQuoteMint, Bytes: quoteMint.Bytes()}},
	}
}

// ParsePool parses account data into Pool structure
func ParsePool(data []byte) (*Pool, error) {
	if err := binary.EnsureLength(data, PoolMinSize, "pumpswap pool"); err != nil {
		return nil, err
	}
	if !binary.HasDiscriminator(data, PoolDiscriminator) {
		return nil, fmt.Errorf("invalid discriminator for Pool")
	}

	return &Pool{
		PoolBump:              data[offsetPoolBump],
		Index:                 binary.ReadUint16LittleEndian(data, offsetIndex),
		Creator:               binary.ReadPubKey(data, offsetCreator),
		BaseMint:              binary.ReadPubKey(data, OffsetBaseMint),
		QuoteMint:             binary.ReadPubKey(data, OffsetQuoteMint),
		LPMint:                binary.ReadPubKey(data, offsetLPMint),
		PoolBaseTokenAccount:  binary.ReadPubKey(data, offsetBaseAcc),
		PoolQuoteTokenAccount: binary.ReadPubKey(data, offsetQuoteAcc),
		LPSupply:              binary.ReadUint64LittleEndian(data, offsetLPSupply),
	}, nil
}
