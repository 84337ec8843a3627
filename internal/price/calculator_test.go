package price

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/blockchain/solbc"
	"github.com/rovshanmuradov/walletwatch/internal/dex"
	"github.com/rovshanmuradov/walletwatch/internal/dex/pumpfun"
	"github.com/rovshanmuradov/walletwatch/internal/storage"
)

// MockRPC реализует интерфейс RPC
type MockRPC struct {
	mock.Mock
}

func (m *MockRPC) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	args := m.Called(ctx, pubkey)
	res, _ := args.Get(0).(*rpc.GetAccountInfoResult)
	return res, args.Error(1)
}

func (m *MockRPC) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error) {
	args := m.Called(ctx, account)
	res, _ := args.Get(0).(*rpc.GetTokenAccountBalanceResult)
	return res, args.Error(1)
}

func (m *MockRPC) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	args := m.Called(ctx, address, opts)
	res, _ := args.Get(0).([]*rpc.TransactionSignature)
	return res, args.Error(1)
}

func (m *MockRPC) GetParsedTransaction(ctx context.Context, sig solana.Signature) (*solbc.ParsedTransaction, error) {
	args := m.Called(ctx, sig)
	res, _ := args.Get(0).(*solbc.ParsedTransaction)
	return res, args.Error(1)
}

func balance(amount string, decimals uint8) *rpc.GetTokenAccountBalanceResult {
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: amount, Decimals: decimals}}
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newTestCalculator(client RPC) *Calculator {
	return NewCalculator(client, zap.NewNop(), WithClock(func() time.Time { return fixedNow }))
}

func TestVaultRatio(t *testing.T) {
	pairs := [][2]float64{{1, 1}, {2000, 1}, {0.5, 3}, {1e-9, 1e9}, {123456.789, 0.001}}
	for _, p := range pairs {
		b, q := p[0], p[1]

		price, ok := VaultRatio(b, q, true)
		require.True(t, ok)
		assert.InDelta(t, q/b, price, q/b*1e-12)

		price, ok = VaultRatio(b, q, false)
		require.True(t, ok)
		assert.InDelta(t, b/q, price, b/q*1e-12)
	}

	for _, p := range [][2]float64{{0, 1}, {1, 0}, {0, 0}, {-1, 2}} {
		price, ok := VaultRatio(p[0], p[1], true)
		assert.False(t, ok)
		assert.Zero(t, price)
	}
}

func TestQuoteVaultRatioForBaseMint(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(&dex.PoolDescriptor{
		Variant:    dex.VariantRaydium,
		BaseVault:  solana.NewWallet().PublicKey(),
		QuoteVault: solana.NewWallet().PublicKey(),
		BaseMint:   mint,
		QuoteMint:  dex.WrappedSolMint,
	})

	client := new(MockRPC)
	client.On("GetTokenAccountBalance", mock.Anything, token.BaseVault).Return(balance("2000000000", 6), nil)
	client.On("GetTokenAccountBalance", mock.Anything, token.QuoteVault).Return(balance("1000000000", 9), nil)

	quote, err := newTestCalculator(client).Quote(context.Background(), token, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.0005, quote.Sample.Price, 1e-15)
	assert.Equal(t, dex.VariantRaydium, quote.Sample.Pool)
	assert.Equal(t, fixedNow.UnixMilli(), quote.Sample.Timestamp)
	assert.Nil(t, quote.Sample.MarketCapSol)
	client.AssertExpectations(t)
}

func TestQuoteVaultRatioForQuoteMint(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(&dex.PoolDescriptor{
		Variant:    dex.VariantRaydiumCPMM,
		BaseVault:  solana.NewWallet().PublicKey(),
		QuoteVault: solana.NewWallet().PublicKey(),
		BaseMint:   dex.WrappedSolMint,
		QuoteMint:  mint,
	})

	client := new(MockRPC)
	client.On("GetTokenAccountBalance", mock.Anything, token.BaseVault).Return(balance("5000000000", 9), nil)
	client.On("GetTokenAccountBalance", mock.Anything, token.QuoteVault).Return(balance("10000000", 6), nil)

	quote, err := newTestCalculator(client).Quote(context.Background(), token, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, quote.Sample.Price, 1e-12)
}

func TestQuoteMeteoraUsesLPVaults(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	desc := &dex.PoolDescriptor{
		Variant:    dex.VariantMeteora,
		BaseVault:  solana.NewWallet().PublicKey(),
		QuoteVault: solana.NewWallet().PublicKey(),
		BaseMint:   mint,
		QuoteMint:  dex.WrappedSolMint,
		LPVaults:   &dex.LPVaults{Base: solana.NewWallet().PublicKey(), Quote: solana.NewWallet().PublicKey()},
	}
	token := &storage.Token{Mint: mint}
	token.ApplyPool(desc)

	client := new(MockRPC)
	client.On("GetTokenAccountBalance", mock.Anything, desc.LPVaults.Base).Return(balance("400", 0), nil)
	client.On("GetTokenAccountBalance", mock.Anything, desc.LPVaults.Quote).Return(balance("100", 0), nil)

	quote, err := newTestCalculator(client).Quote(context.Background(), token, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, quote.Sample.Price, 1e-12)
	client.AssertNotCalled(t, "GetTokenAccountBalance", mock.Anything, desc.BaseVault)
}

func TestQuoteZeroBalanceIsAbsent(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	token := &storage.Token{Mint: mint}
	token.ApplyPool(&dex.PoolDescriptor{
		Variant:    dex.VariantPumpSwap,
		BaseVault:  solana.NewWallet().PublicKey(),
		QuoteVault: solana.NewWallet().PublicKey(),
		BaseMint:   mint,
		QuoteMint:  dex.WrappedSolMint,
	})

	client := new(MockRPC)
	client.On("GetTokenAccountBalance", mock.Anything, token.BaseVault).Return(balance("0", 6), nil)
	client.On("GetTokenAccountBalance", mock.Anything, token.QuoteVault).Return(balance("1000", 9), nil)

	quote, err := newTestCalculator(client).Quote(context.Background(), token, nil)
	assert.ErrorIs(t, err, ErrNoPrice)
	assert.Nil(t, quote)
}

func TestQuoteWithoutPool(t *testing.T) {
	_, err := newTestCalculator(new(MockRPC)).Quote(context.Background(), &storage.Token{Mint: solana.NewWallet().PublicKey()}, nil)
	assert.ErrorIs(t, err, ErrNoPool)
}

func tradeEventData(mint solana.PublicKey, sol, tokens uint64, ts int64) []byte {
	data := append([]byte{}, pumpfun.EventIxTag...)
	data = append(data, pumpfun.TradeEventDiscriminator...)
	data = append(data, mint.Bytes()...)
	data = binary.LittleEndian.AppendUint64(data, sol)
	data = binary.LittleEndian.AppendUint64(data, tokens)
	data = append(data, 1)
	data = append(data, solana.NewWallet().PublicKey().Bytes()...)
	data = binary.LittleEndian.AppendUint64(data, uint64(ts))
	data = binary.LittleEndian.AppendUint64(data, 30_000_000_000)
	data = binary.LittleEndian.AppendUint64(data, 1_000_000_000_000_000)
	return data
}

func pumpToken(t *testing.T) *storage.Token {
	t.Helper()
	mint := solana.MustPublicKeyFromBase58("2qEHjDLDLbuBgRYvsxhc5D6uDWAivNFZGan56P1tpump")
	curve, err := pumpfun.DeriveBondingCurveAddress(mint)
	require.NoError(t, err)
	return &storage.Token{Mint: mint, Pool: dex.VariantPump, PoolAddress: curve, BaseMint: mint, QuoteMint: dex.WrappedSolMint}
}

func TestQuoteReplaysLatestCurveTrade(t *testing.T) {
	token := pumpToken(t)
	failedSig := solana.Signature{1}
	tradeSig := solana.Signature{2}

	client := new(MockRPC)
	client.On("GetSignaturesForAddress", mock.Anything, token.PoolAddress, mock.Anything).Return([]*rpc.TransactionSignature{
		{Signature: failedSig, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		{Signature: tradeSig},
	}, nil)
	client.On("GetParsedTransaction", mock.Anything, tradeSig).Return(&solbc.ParsedTransaction{
		Signature: tradeSig,
		Instructions: []solbc.Instruction{
			{ProgramID: solana.ComputeBudget, Data: []byte{2, 0, 0, 0}},
			// событие другого mint в той же транзакции
			{ProgramID: pumpfun.PumpFunProgramID, Inner: true, Data: tradeEventData(solana.NewWallet().PublicKey(), 5, 5, 1)},
			{ProgramID: pumpfun.PumpFunProgramID, Inner: true, Data: tradeEventData(token.Mint, 1_000_000_000, 1_000_000_000, 1_700_000_100)},
		},
	}, nil)

	quote, err := newTestCalculator(client).Quote(context.Background(), token, nil)
	require.NoError(t, err)

	// 1 SOL за 1000 токенов
	assert.InDelta(t, 0.001, quote.Sample.Price, 1e-15)
	require.NotNil(t, quote.Sample.MarketCapSol)
	assert.InDelta(t, 1_000_000.0, *quote.Sample.MarketCapSol, 1e-6)
	assert.Equal(t, []string{tradeSig.String()}, quote.Sample.Signatures)
	assert.Equal(t, dex.VariantPump, quote.Sample.Pool)
	assert.Equal(t, time.Unix(1_700_000_100, 0), quote.TradeAt)
	client.AssertNotCalled(t, "GetParsedTransaction", mock.Anything, failedSig)
}

func TestQuoteReplayFallsBackToInstruction(t *testing.T) {
	token := pumpToken(t)
	sig := solana.Signature{3}

	data := append([]byte{}, pumpfun.SellDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, 2_000_000)  // 2 токена
	data = binary.LittleEndian.AppendUint64(data, 10_000_000) // 0.01 SOL

	client := new(MockRPC)
	client.On("GetSignaturesForAddress", mock.Anything, token.PoolAddress, mock.Anything).Return([]*rpc.TransactionSignature{{Signature: sig}}, nil)
	client.On("GetParsedTransaction", mock.Anything, sig).Return(&solbc.ParsedTransaction{
		Signature: sig,
		BlockTime: time.Unix(1_700_000_200, 0),
		Instructions: []solbc.Instruction{{
			ProgramID: pumpfun.PumpFunProgramID,
			Accounts:  []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), token.Mint},
			Data:      data,
		}},
	}, nil)

	quote, err := newTestCalculator(client).Quote(context.Background(), token, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, quote.Sample.Price, 1e-15)
	assert.Equal(t, time.Unix(1_700_000_200, 0), quote.TradeAt)
}

func TestQuoteReplaySkipsCoveredSignatures(t *testing.T) {
	token := pumpToken(t)
	sig := solana.Signature{4}

	client := new(MockRPC)
	client.On("GetSignaturesForAddress", mock.Anything, token.PoolAddress, mock.Anything).Return([]*rpc.TransactionSignature{{Signature: sig}}, nil)

	prior := []storage.PriceSample{{Price: 0.001, Signatures: []string{sig.String()}, Timestamp: fixedNow.Add(-time.Minute).UnixMilli()}}
	quote, err := newTestCalculator(client).Quote(context.Background(), token, prior)
	assert.ErrorIs(t, err, ErrStale)
	assert.Nil(t, quote)
	client.AssertNotCalled(t, "GetParsedTransaction", mock.Anything, mock.Anything)
}

func TestQuoteReplayWithoutTrades(t *testing.T) {
	token := pumpToken(t)

	client := new(MockRPC)
	client.On("GetSignaturesForAddress", mock.Anything, token.PoolAddress, mock.Anything).Return([]*rpc.TransactionSignature{}, nil)

	_, err := newTestCalculator(client).Quote(context.Background(), token, nil)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func curveAccount(complete bool) *rpc.GetAccountInfoResult {
	data := make([]byte, pumpfun.BondingCurveMinSize)
	copy(data, pumpfun.BondingCurveDiscriminator)
	if complete {
		data[48] = 1
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)}}
}

// после миграции новейшая транзакция кривой – migrate без сделки
func migratedCurveClient(t *testing.T, token *storage.Token, complete bool) (*MockRPC, []storage.PriceSample) {
	t.Helper()
	migrateSig := solana.Signature{5}
	lastTradeSig := solana.Signature{6}

	client := new(MockRPC)
	client.On("GetSignaturesForAddress", mock.Anything, token.PoolAddress, mock.Anything).Return([]*rpc.TransactionSignature{
		{Signature: migrateSig},
		{Signature: lastTradeSig},
	}, nil)
	client.On("GetParsedTransaction", mock.Anything, migrateSig).Return(&solbc.ParsedTransaction{
		Signature: migrateSig,
		Instructions: []solbc.Instruction{
			{ProgramID: pumpfun.PumpFunProgramID, Data: []byte{155, 234, 231, 146, 236, 158, 162, 30}},
		},
	}, nil)
	client.On("GetAccountInfo", mock.Anything, token.PoolAddress).Return(curveAccount(complete), nil)

	prior := []storage.PriceSample{{Price: 0.001, Signatures: []string{lastTradeSig.String()}, Timestamp: fixedNow.Add(-time.Minute).UnixMilli()}}
	return client, prior
}

func TestQuoteReplayDetectsCompletedCurve(t *testing.T) {
	token := pumpToken(t)
	client, prior := migratedCurveClient(t, token, true)

	quote, err := newTestCalculator(client).Quote(context.Background(), token, prior)
	assert.ErrorIs(t, err, ErrCurveComplete)
	assert.Nil(t, quote)
	client.AssertNumberOfCalls(t, "GetAccountInfo", 1)
}

func TestQuoteReplayActiveCurveWithoutNewTradeIsStale(t *testing.T) {
	token := pumpToken(t)
	client, prior := migratedCurveClient(t, token, false)

	_, err := newTestCalculator(client).Quote(context.Background(), token, prior)
	assert.ErrorIs(t, err, ErrStale)
}

func TestQuoteReplayClosedCurveCountsAsCompleted(t *testing.T) {
	token := pumpToken(t)
	sig := solana.Signature{7}

	client := new(MockRPC)
	client.On("GetSignaturesForAddress", mock.Anything, token.PoolAddress, mock.Anything).Return([]*rpc.TransactionSignature{{Signature: sig}}, nil)
	client.On("GetParsedTransaction", mock.Anything, sig).Return(&solbc.ParsedTransaction{Signature: sig}, nil)
	client.On("GetAccountInfo", mock.Anything, token.PoolAddress).Return(nil, solbc.ErrAccountNotFound)

	_, err := newTestCalculator(client).Quote(context.Background(), token, nil)
	assert.ErrorIs(t, err, ErrCurveComplete)
}
