// =============================
// File: internal/dex/locator.go
// =============================
package dex

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/walletwatch/internal/dex/meteora"
	"github.com/rovshanmuradov/walletwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/walletwatch/internal/dex/pumpswap"
	"github.com/rovshanmuradov/walletwatch/internal/dex/raydium"
	"github.com/rovshanmuradov/walletwatch/internal/dex/raydiumcpmm"
	"github.com/rovshanmuradov/walletwatch/internal/utils/metrics"
)

// RPC – методы клиента, необходимые для поиска пулов.
type RPC interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, programID solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
}

// ProbeHook вызывается перед каждой проверкой протокола.
type ProbeHook func(probe Variant)

// Option настраивает Locator.
type Option func(*Locator)

// WithProbeHook регистрирует хук, получающий имя каждой выполняемой проверки.
func WithProbeHook(hook ProbeHook) Option {
	return func(l *Locator) {
		l.onProbe = hook
	}
}

// Locator ищет пул токена в фиксированном порядке протоколов:
// bonding curve → pump-swap → meteora → raydium AMM v4 → raydium CPMM.
type Locator struct {
	client  RPC
	logger  *zap.Logger
	onProbe ProbeHook
}

// NewLocator создаёт Locator. Все RPC-вызовы идут через client, который делит лимитер.
func NewLocator(client RPC, logger *zap.Logger, opts ...Option) *Locator {
	l := &Locator{
		client: client,
		logger: logger.Named("pool-locator"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// probe возвращает (nil, nil), если протокол не подошёл.
type probe struct {
	variant Variant
	run     func(ctx context.Context, mint solana.PublicKey) (*PoolDescriptor, error)
}

// Locate возвращает пул токена или nil, если ни один протокол не подошёл.
// Ошибка возвращается только при сбое RPC, который не удалось повторить.
func (l *Locator) Locate(ctx context.Context, mint solana.PublicKey) (*PoolDescriptor, error) {
	logger := l.logger.With(zap.String("mint", mint.String()))

	var probes []probe

	if pumpfun.IsCurveMint(mint) {
		l.notify(VariantPump)
		desc, complete, err := l.probeBondingCurve(ctx, mint)
		if err != nil {
			metrics.RecordProbe(string(VariantPump), "error")
			return nil, err
		}
		if desc != nil {
			metrics.RecordProbe(string(VariantPump), "hit")
			logger.Debug("Token is on bonding curve")
			return desc, nil
		}
		metrics.RecordProbe(string(VariantPump), "miss")
		if complete {
			probes = append(probes, probe{VariantPumpSwap, l.probePumpSwap})
		}
	} else if pumpfun.IsBonkMint(mint) {
		probes = append(probes, probe{VariantPumpSwap, l.probePumpSwap})
	}

	probes = append(probes,
		probe{VariantMeteora, l.probeMeteora},
		probe{VariantRaydium, l.probeRaydium},
		probe{VariantRaydiumCPMM, l.probeRaydiumCPMM},
	)

	for _, p := range probes {
		l.notify(p.variant)

		desc, err := p.run(ctx, mint)
		if err != nil {
			metrics.RecordProbe(string(p.variant), "error")
			return nil, fmt.Errorf("%s probe: %w", p.variant, err)
		}
		if desc != nil {
			metrics.RecordProbe(string(p.variant), "hit")
			logger.Debug("Pool located",
				zap.String("variant", string(desc.Variant)),
				zap.String("pool", desc.PoolAddress.String()))
			return desc, nil
		}
		metrics.RecordProbe(string(p.variant), "miss")
	}

	logger.Debug("No pool found for token")
	return nil, nil
}

func (l *Locator) notify(v Variant) {
	if l.onProbe != nil {
		l.onProbe(v)
	}
}

// probeBondingCurve возвращает синтетический дескриптор для незавершённой кривой.
// complete=true означает, что токен мигрировал и нужно проверить pump-swap.
func (l *Locator) probeBondingCurve(ctx context.Context, mint solana.PublicKey) (*PoolDescriptor, bool, error) {
	curve, err := pumpfun.FetchBondingCurve(ctx, l.client, mint)
	if err != nil {
		if solbc.IsNotFound(err) {
			return nil, false, nil
		}
		if isUpstreamError(err) {
			return nil, false, err
		}
		l.logger.Debug("Bonding curve is not decodable", zap.String("mint", mint.String()), zap.Error(err))
		return nil, false, nil
	}
	if curve.Complete {
		return nil, true, nil
	}
	return &PoolDescriptor{
		Variant:     VariantPump,
		PoolAddress: curve.Address,
		BaseMint:    mint,
		QuoteMint:   WrappedSolMint,
	}, false, nil
}

// scan выполняет отфильтрованный getProgramAccounts и возвращает первый аккаунт,
// который удалось декодировать. Порядок аккаунтов определяет нода.
func scan[T any](
	ctx context.Context,
	l *Locator,
	programID solana.PublicKey,
	filters []rpc.RPCFilter,
	decode func([]byte) (*T, error),
) (solana.PublicKey, *T, error) {
	accounts, err := l.client.GetProgramAccountsWithOpts(ctx, programID, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters:    filters,
	})
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	for _, acc := range accounts {
		if acc == nil || acc.Account == nil || acc.Account.Data == nil {
			continue
		}
		decoded, err := decode(acc.Account.Data.GetBinary())
		if err != nil {
			l.logger.Debug("Skipping undecodable account",
				zap.String("program_id", programID.String()),
				zap.String("account", acc.Pubkey.String()),
				zap.Error(err))
			continue
		}
		return acc.Pubkey, decoded, nil
	}
	return solana.PublicKey{}, nil, nil
}

// orderings возвращает пары (mint, WSOL) и (WSOL, mint) в порядке проверки.
func orderings(mint solana.PublicKey) [][2]solana.PublicKey {
	return [][2]solana.PublicKey{
		{mint, WrappedSolMint},
		{WrappedSolMint, mint},
	}
}

func (l *Locator) probePumpSwap(ctx context.Context, mint solana.PublicKey) (*PoolDescriptor, error) {
	for _, pair := range orderings(mint) {
		addr, pool, err := scan(ctx, l, pumpswap.PumpSwapProgramID, pumpswap.PoolFilters(pair[0], pair[1]), pumpswap.ParsePool)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			continue
		}
		return &PoolDescriptor{
			Variant:     VariantPumpSwap,
			PoolAddress: addr,
			BaseVault:   pool.PoolBaseTokenAccount,
			QuoteVault:  pool.PoolQuoteTokenAccount,
			BaseMint:    pool.BaseMint,
			QuoteMint:   pool.QuoteMint,
		}, nil
	}
	return nil, nil
}

func (l *Locator) probeMeteora(ctx context.Context, mint solana.PublicKey) (*PoolDescriptor, error) {
	for _, pair := range orderings(mint) {
		addr, pool, err := scan(ctx, l, meteora.DynamicAMMProgramID, meteora.PoolFilters(pair[0], pair[1]), meteora.ParsePool)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			continue
		}
		return &PoolDescriptor{
			Variant:     VariantMeteora,
			PoolAddress: addr,
			BaseVault:   pool.AVault,
			QuoteVault:  pool.BVault,
			BaseMint:    pool.TokenAMint,
			QuoteMint:   pool.TokenBMint,
			LPVaults: &LPVaults{
				Base:  pool.AVaultLP,
				Quote: pool.BVaultLP,
			},
		}, nil
	}
	return nil, nil
}

func (l *Locator) probeRaydium(ctx context.Context, mint solana.PublicKey) (*PoolDescriptor, error) {
	for _, pair := range orderings(mint) {
		addr, info, err := scan(ctx, l, raydium.RaydiumV4ProgramID, raydium.PoolFilters(pair[0], pair[1]), raydium.DecodeAmmInfo)
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue
		}
		return &PoolDescriptor{
			Variant:     VariantRaydium,
			PoolAddress: addr,
			BaseVault:   info.BaseVault,
			QuoteVault:  info.QuoteVault,
			BaseMint:    info.BaseMint,
			QuoteMint:   info.QuoteMint,
		}, nil
	}
	return nil, nil
}

func (l *Locator) probeRaydiumCPMM(ctx context.Context, mint solana.PublicKey) (*PoolDescriptor, error) {
	for _, pair := range orderings(mint) {
		addr, state, err := scan(ctx, l, raydiumcpmm.CPMMProgramID, raydiumcpmm.PoolFilters(pair[0], pair[1]), raydiumcpmm.ParsePoolState)
		if err != nil {
			return nil, err
		}
		if state == nil {
			continue
		}
		return &PoolDescriptor{
			Variant:     VariantRaydiumCPMM,
			PoolAddress: addr,
			BaseVault:   state.Token0Vault,
			QuoteVault:  state.Token1Vault,
			BaseMint:    state.Token0Mint,
			QuoteMint:   state.Token1Mint,
		}, nil
	}
	return nil, nil
}

// isUpstreamError отделяет сбой RPC от ошибки декодирования данных.
func isUpstreamError(err error) bool {
	var rpcErr *solbc.Error
	return errors.As(err, &rpcErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || solbc.IsRetryableError(err)
}
