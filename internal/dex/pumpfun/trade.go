// internal/dex/pumpfun/trade.go
package pumpfun

import (
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/walletwatch/internal/utils/binary"
)

// ErrNotTrade – данные инструкции не относятся к сделке
var ErrNotTrade = errors.New("instruction is not a trade")

// DecodeTrade извлекает сделку из данных инструкции программы Pump.fun.
// Поддерживаются self-CPI события TradeEvent и инструкции buy/sell.
func DecodeTrade(data []byte) (*Trade, error) {
	prefix := len(EventIxTag) + binary.DiscriminatorSize

	switch {
	case binary.HasDiscriminator(data, EventIxTag):
		if len(data) < prefix || !binary.HasDiscriminator(data[len(EventIxTag):], TradeEventDiscriminator) {
			return nil, ErrNotTrade
		}
		var event TradeEvent
		if err := bin.NewBorshDecoder(data[prefix:]).Decode(&event); err != nil {
			return nil, fmt.Errorf("failed to decode trade event: %w", err)
		}
		return &Trade{
			Mint:        event.Mint,
			SolAmount:   event.SolAmount,
			TokenAmount: event.TokenAmount,
			IsBuy:       event.IsBuy,
			Timestamp:   event.Timestamp,
			FromEvent:   true,
		}, nil

	case binary.HasDiscriminator(data, BuyDiscriminator), binary.HasDiscriminator(data, SellDiscriminator):
		// buy: amount, max_sol_cost; sell: amount, min_sol_output
		if err := binary.EnsureLength(data, binary.DiscriminatorSize+16, "trade instruction"); err != nil {
			return nil, err
		}
		return &Trade{
			TokenAmount: binary.ReadUint64LittleEndian(data, binary.DiscriminatorSize),
			SolAmount:   binary.ReadUint64LittleEndian(data, binary.DiscriminatorSize+8),
			IsBuy:       binary.HasDiscriminator(data, BuyDiscriminator),
		}, nil
	}

	return nil, ErrNotTrade
}

// Price возвращает цену токена в SOL. ok=false при нулевых объёмах.
func (t *Trade) Price() (float64, bool) {
	if t.SolAmount == 0 || t.TokenAmount == 0 {
		return 0, false
	}
	sol := float64(t.SolAmount) / float64(solana.LAMPORTS_PER_SOL)
	tokens := float64(t.TokenAmount) / math.Pow10(TokenDecimals)
	price := sol / tokens
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, false
	}
	return price, true
}

// MarketCapSol оценивает капитализацию при полной эмиссии.
func MarketCapSol(price float64) float64 {
	return price * TokenTotalSupply
}
