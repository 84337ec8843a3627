package raydiumcpmm

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/walletwatch/internal/utils/binary"
)

func TestParsePoolState(t *testing.T) {
	vault0 := solana.NewWallet().PublicKey()
	vault1 := solana.NewWallet().PublicKey()
	mint0 := solana.NewWallet().PublicKey()
	mint1 := solana.NewWallet().PublicKey()

	data := make([]byte, 637)
	copy(data, PoolStateDiscriminator)
	binary.WritePubKey(vault0, data, offsetToken0Vault)
	binary.WritePubKey(vault1, data, offsetToken1Vault)
	binary.WritePubKey(mint0, data, OffsetToken0Mint)
	binary.WritePubKey(mint1, data, OffsetToken1Mint)
	data[offsetMint0Dec] = 9
	data[offsetMint1Dec] = 6
	binary.WriteUint64LittleEndian(999, data, offsetLPSupply)

	state, err := ParsePoolState(data)
	require.NoError(t, err)
	assert.Equal(t, vault0, state.Token0Vault)
	assert.Equal(t, vault1, state.Token1Vault)
	assert.Equal(t, mint0, state.Token0Mint)
	assert.Equal(t, mint1, state.Token1Mint)
	assert.Equal(t, uint8(9), state.Mint0Decimals)
	assert.Equal(t, uint8(6), state.Mint1Decimals)
	assert.Equal(t, uint64(999), state.LPSupply)
}

func TestLayoutOffsets(t *testing.T) {
	assert.Equal(t, 72, offsetToken0Vault)
	assert.Equal(t, 168, OffsetToken0Mint)
	assert.Equal(t, 200, OffsetToken1Mint)
	assert.Equal(t, 333, offsetLPSupply)
}

func TestParsePoolStateRejectsShortData(t *testing.T) {
	_, err := ParsePoolState(PoolStateDiscriminator)
	assert.Error(t, err)
}
