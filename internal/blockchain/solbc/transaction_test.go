package solbc

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
)

func TestParsedTransactionLamportDelta(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	vault := solana.NewWallet().PublicKey()
	stranger := solana.NewWallet().PublicKey()

	tx := &ParsedTransaction{
		AccountKeys:  []solana.PublicKey{payer, vault},
		PreBalances:  []uint64{2_000_000_000, 100},
		PostBalances: []uint64{1_749_995_000, 250_000_100},
	}

	delta, ok := tx.LamportDelta(payer)
	assert.True(t, ok)
	assert.Equal(t, int64(-250_005_000), delta)

	delta, ok = tx.LamportDelta(vault)
	assert.True(t, ok)
	assert.Equal(t, int64(250_000_000), delta)

	_, ok = tx.LamportDelta(stranger)
	assert.False(t, ok)
}

func TestParsedTransactionInstructionsFor(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	tx := &ParsedTransaction{
		Instructions: []Instruction{
			{ProgramID: program, Data: []byte{1}},
			{ProgramID: other, Data: []byte{2}},
			{ProgramID: program, Data: []byte{3}, Inner: true},
		},
	}

	found := tx.InstructionsFor(program)
	assert.Len(t, found, 2)
	assert.Equal(t, []byte{1}, found[0].Data)
	assert.True(t, found[1].Inner)
}
