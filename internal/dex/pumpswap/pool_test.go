package pumpswap

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/walletwatch/internal/utils/binary"
)

var wsol = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

func TestParsePool(t *testing.T) {
	baseMint := solana.NewWallet().PublicKey()
	quoteMint := wsol
	baseAcc := solana.NewWallet().PublicKey()
	quoteAcc := solana.NewWallet().PublicKey()

	data := make([]byte, PoolMinSize+32)
	copy(data, PoolDiscriminator)
	data[offsetPoolBump] = 254
	binary.WritePubKey(baseMint, data, OffsetBaseMint)
	binary.WritePubKey(quoteMint, data, OffsetQuoteMint)
	binary.WritePubKey(baseAcc, data, offsetBaseAcc)
	binary.WritePubKey(quoteAcc, data, offsetQuoteAcc)
	binary.WriteUint64LittleEndian(123456, data, offsetLPSupply)

	pool, err := ParsePool(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(254), pool.PoolBump)
	assert.Equal(t, baseMint, pool.BaseMint)
	assert.Equal(t, quoteMint, pool.QuoteMint)
	assert.Equal(t, baseAcc, pool.PoolBaseTokenAccount)
	assert.Equal(t, quoteAcc, pool.PoolQuoteTokenAccount)
	assert.Equal(t, uint64(123456), pool.LPSupply)
}

func TestParsePoolRejectsInvalidData(t *testing.T) {
	_, err := ParsePool(make([]byte, 10))
	assert.Error(t, err)

	_, err = ParsePool(make([]byte, PoolMinSize))
	assert.Error(t, err, "zero discriminator must be rejected")
}

func TestPoolFiltersOffsets(t *testing.T) {
	base := solana.NewWallet().PublicKey()
	filters := PoolFilters(base, wsol)
	require.Len(t, filters, 3)

	assert.Equal(t, uint64(0), filters[0].Memcmp.Offset)
	assert.Equal(t, uint64(43), filters[1].Memcmp.Offset)
	assert.Equal(t, base.Bytes(), []byte(filters[1].Memcmp.Bytes))
	assert.Equal(t, uint64(75), filters[2].Memcmp.Offset)
}
