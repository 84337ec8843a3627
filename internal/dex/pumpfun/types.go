// internal/dex/pumpfun/types.go
package pumpfun

import (
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/walletwatch/internal/utils/binary"
)

var (
	// BondingCurveDiscriminator – дискриминатор аккаунта BondingCurve
	BondingCurveDiscriminator = binary.AnchorDiscriminator("account", "BondingCurve")

	// BuyDiscriminator и SellDiscriminator – дискриминаторы инструкций buy/sell
	BuyDiscriminator  = binary.AnchorDiscriminator("global", "buy")
	SellDiscriminator = binary.AnchorDiscriminator("global", "sell")

	// TradeEventDiscriminator – дискриминатор события TradeEvent
	TradeEventDiscriminator = binary.AnchorDiscriminator("event", "TradeEvent")

	// EventIxTag – префикс self-CPI инструкции, через которую anchor эмитит события
	// (sha256("anchor:event")[:8] в little-endian порядке u64)
	EventIxTag = []byte{0xe4, 0x45, 0xa5, 0x2e, 0x51, 0xcb, 0x9a, 0x1d}
)

// Смещения полей аккаунта BondingCurve
const (
	virtualTokenReservesOffset = 8
	virtualSolReservesOffset   = 16
	realTokenReservesOffset    = 24
	realSolReservesOffset      = 32
	tokenTotalSupplyOffset     = 40
	completeOffset             = 48

	BondingCurveMinSize = completeOffset + 1
)

// BondingCurve – состояние bonding curve токена
type BondingCurve struct {
	Address              solana.PublicKey
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// TradeEvent – событие сделки в том виде, в котором программа его эмитит
type TradeEvent struct {
	Mint                 solana.PublicKey
	SolAmount            uint64
	TokenAmount          uint64
	IsBuy                bool
	User                 solana.PublicKey
	Timestamp            int64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

// Trade – нормализованная сделка, извлечённая из события или инструкции buy/sell
type Trade struct {
	Mint        solana.PublicKey
	SolAmount   uint64 // лампорты
	TokenAmount uint64 // базовые единицы токена (6 знаков)
	IsBuy       bool
	Timestamp   int64
	// FromEvent=false означает, что сумма SOL взята из лимита инструкции, а не из факта сделки
	FromEvent bool
}
