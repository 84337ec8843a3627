// internal/blockchain/solbc/transaction.go
package solbc

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Instruction – инструкция транзакции с разрешёнными адресами.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte
	// Inner=true для инструкций, вызванных через CPI
	Inner bool
}

// ParsedTransaction – транзакция в виде, удобном для анализа балансов и инструкций.
type ParsedTransaction struct {
	Signature    solana.Signature
	Slot         uint64
	BlockTime    time.Time
	Failed       bool
	AccountKeys  []solana.PublicKey
	PreBalances  []uint64
	PostBalances []uint64
	Instructions []Instruction
}

// AccountIndex возвращает индекс аккаунта в списке ключей или -1.
func (t *ParsedTransaction) AccountIndex(account solana.PublicKey) int {
	for i, key := range t.AccountKeys {
		if key.Equals(account) {
			return i
		}
	}
	return -1
}

// LamportDelta возвращает изменение баланса аккаунта в лампортах (post - pre).
func (t *ParsedTransaction) LamportDelta(account solana.PublicKey) (int64, bool) {
	idx := t.AccountIndex(account)
	if idx < 0 || idx >= len(t.PreBalances) || idx >= len(t.PostBalances) {
		return 0, false
	}
	return int64(t.PostBalances[idx]) - int64(t.PreBalances[idx]), true
}

// InstructionsFor возвращает все инструкции (внешние и внутренние) указанной программы.
func (t *ParsedTransaction) InstructionsFor(programID solana.PublicKey) []Instruction {
	var out []Instruction
	for _, ix := range t.Instructions {
		if ix.ProgramID.Equals(programID) {
			out = append(out, ix)
		}
	}
	return out
}

// ParseTransactionResult переводит ответ getTransaction в ParsedTransaction.
func ParseTransactionResult(sig solana.Signature, res *rpc.GetTransactionResult) (*ParsedTransaction, error) {
	if res == nil || res.Transaction == nil {
		return nil, ErrTransactionNotFound
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}

	parsed := &ParsedTransaction{
		Signature: sig,
		Slot:      res.Slot,
	}
	if res.BlockTime != nil {
		parsed.BlockTime = time.Unix(int64(*res.BlockTime), 0).UTC()
	}

	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)

	if res.Meta != nil {
		keys = append(keys, res.Meta.LoadedAddresses.Writable...)
		keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)
		parsed.Failed = res.Meta.Err != nil
		parsed.PreBalances = res.Meta.PreBalances
		parsed.PostBalances = res.Meta.PostBalances
	}
	parsed.AccountKeys = keys

	resolve := func(programIdx int, accounts []int, data []byte, inner bool) (Instruction, bool) {
		if programIdx < 0 || programIdx >= len(keys) {
			return Instruction{}, false
		}
		ix := Instruction{ProgramID: keys[programIdx], Data: data, Inner: inner}
		for _, a := range accounts {
			if a >= 0 && a < len(keys) {
				ix.Accounts = append(ix.Accounts, keys[a])
			}
		}
		return ix, true
	}

	for _, ci := range tx.Message.Instructions {
		accounts := make([]int, len(ci.Accounts))
		for i, a := range ci.Accounts {
			accounts[i] = int(a)
		}
		if ix, ok := resolve(int(ci.ProgramIDIndex), accounts, []byte(ci.Data), false); ok {
			parsed.Instructions = append(parsed.Instructions, ix)
		}
	}

	if res.Meta != nil {
		for _, set := range res.Meta.InnerInstructions {
			for _, ci := range set.Instructions {
				accounts := make([]int, len(ci.Accounts))
				for i, a := range ci.Accounts {
					accounts[i] = int(a)
				}
				if ix, ok := resolve(int(ci.ProgramIDIndex), accounts, []byte(ci.Data), true); ok {
					parsed.Instructions = append(parsed.Instructions, ix)
				}
			}
		}
	}

	return parsed, nil
}
