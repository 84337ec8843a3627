// internal/dex/pumpfun/bonding_curve.go
package pumpfun

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/walletwatch/internal/utils/binary"
)

// AccountReader – часть RPC-клиента, необходимая для чтения bonding curve
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// IsCurveMint сообщает, выпущен ли mint через bonding curve Pump.fun.
func IsCurveMint(mint solana.PublicKey) bool {
	return strings.HasSuffix(mint.String(), MintSuffix)
}

// IsBonkMint сообщает, запущен ли mint в стиле "bonk".
func IsBonkMint(mint solana.PublicKey) bool {
	return strings.HasSuffix(mint.String(), BonkMintSuffix)
}

// DeriveBondingCurveAddress вычисляет PDA bonding curve для mint.
func DeriveBondingCurveAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(bondingCurveSeed), mint.Bytes()},
		PumpFunProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive bonding curve: %w", err)
	}
	return addr, nil
}

// ParseBondingCurve разбирает данные аккаунта bonding curve.
func ParseBondingCurve(data []byte) (*BondingCurve, error) {
	if err := binary.EnsureLength(data, BondingCurveMinSize, "bonding curve"); err != nil {
		return nil, err
	}
	if !binary.HasDiscriminator(data, BondingCurveDiscriminator) {
		return nil, fmt.Errorf("invalid discriminator for bonding curve")
	}

	return &BondingCurve{
		VirtualTokenReserves: binary.ReadUint64LittleEndian(data, virtualTokenReservesOffset),
		VirtualSolReserves:   binary.ReadUint64LittleEndian(data, virtualSolReservesOffset),
		RealTokenReserves:    binary.ReadUint64LittleEndian(data, realTokenReservesOffset),
		RealSolReserves:      binary.ReadUint64LittleEndian(data, realSolReservesOffset),
		TokenTotalSupply:     binary.ReadUint64LittleEndian(data, tokenTotalSupplyOffset),
		Complete:             binary.ReadBool(data, completeOffset),
	}, nil
}

// FetchBondingCurve получает и парсит bonding curve токена.
// Ошибка not-found клиента возвращается без изменений.
func FetchBondingCurve(ctx context.Context, client AccountReader, mint solana.PublicKey) (*BondingCurve, error) {
	addr, err := DeriveBondingCurveAddress(mint)
	if err != nil {
		return nil, err
	}

	accountInfo, err := client.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get bonding curve account: %w", err)
	}

	curve, err := ParseBondingCurve(accountInfo.Value.Data.GetBinary())
	if err != nil {
		return nil, err
	}
	curve.Address = addr
	return curve, nil
}
