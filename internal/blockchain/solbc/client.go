// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/walletwatch/internal/ratelimit"
	"github.com/rovshanmuradov/walletwatch/internal/utils/metrics"
	"go.uber.org/zap"
)

// Client – тонкий адаптер над solana-go. Каждый вызов проходит через общий лимитер
// и повторяется согласно RetryPolicy.
type Client struct {
	rpc     *rpc.Client
	limiter *ratelimit.Limiter
	policy  RetryPolicy
	logger  *zap.Logger
}

// NewClient создаёт новый клиент, принимая RPC URL, лимитер и логгер через dependency injection.
func NewClient(rpcURL string, limiter *ratelimit.Limiter, policy RetryPolicy, logger *zap.Logger) *Client {
	return &Client{
		rpc:     rpc.New(rpcURL),
		limiter: limiter,
		policy:  policy,
		logger:  logger.Named("solbc-client"),
	}
}

// invoke ставит вызов в очередь лимитера; временные ошибки повторяются, каждая попытка занимает новый слот.
func invoke[T any](ctx context.Context, c *Client, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	return Retry(ctx, c.policy, c.logger.With(zap.String("method", method)), func() (T, error) {
		return ratelimit.Do(ctx, c.limiter, func(taskCtx context.Context) (T, error) {
			start := time.Now()
			result, err := fn(taskCtx)
			metrics.RecordRPC(method, time.Since(start), err)
			if err != nil && !IsNotFound(err) {
				return result, NewError(err, method)
			}
			return result, err
		})
	})
}

// GetAccountInfo получает информацию об аккаунте.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	result, err := invoke(ctx, c, "getAccountInfo", func(ctx context.Context) (*rpc.GetAccountInfoResult, error) {
		return c.rpc.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		})
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		c.logger.Debug("GetAccountInfo error",
			zap.String("pubkey", pubkey.String()),
			zap.Error(err))
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, ErrAccountNotFound
	}
	return result, nil
}

// GetProgramAccountsWithOpts получает все аккаунты программы с опциями фильтрации
func (c *Client) GetProgramAccountsWithOpts(
	ctx context.Context,
	programID solana.PublicKey,
	opts *rpc.GetProgramAccountsOpts,
) (rpc.GetProgramAccountsResult, error) {
	accounts, err := invoke(ctx, c, "getProgramAccounts", func(ctx context.Context) (rpc.GetProgramAccountsResult, error) {
		return c.rpc.GetProgramAccountsWithOpts(ctx, programID, opts)
	})
	if err != nil {
		c.logger.Debug("GetProgramAccountsWithOpts error",
			zap.String("program_id", programID.String()),
			zap.Error(err))
		return nil, err
	}
	return accounts, nil
}

// GetTokenAccountBalance получает баланс токенного аккаунта
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (*rpc.GetTokenAccountBalanceResult, error) {
	result, err := invoke(ctx, c, "getTokenAccountBalance", func(ctx context.Context) (*rpc.GetTokenAccountBalanceResult, error) {
		return c.rpc.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	})
	if err != nil {
		c.logger.Debug("GetTokenAccountBalance error",
			zap.String("account", account.String()),
			zap.Error(err))
		return nil, err
	}
	if result == nil || result.Value == nil {
		return nil, ErrInvalidResponse
	}
	return result, nil
}

// GetSignaturesForAddress возвращает подписи транзакций адреса, от новых к старым.
func (c *Client) GetSignaturesForAddress(
	ctx context.Context,
	address solana.PublicKey,
	opts *rpc.GetSignaturesForAddressOpts,
) ([]*rpc.TransactionSignature, error) {
	sigs, err := invoke(ctx, c, "getSignaturesForAddress", func(ctx context.Context) ([]*rpc.TransactionSignature, error) {
		return c.rpc.GetSignaturesForAddressWithOpts(ctx, address, opts)
	})
	if err != nil {
		c.logger.Debug("GetSignaturesForAddress error",
			zap.String("address", address.String()),
			zap.Error(err))
		return nil, err
	}
	return sigs, nil
}

// GetParsedTransaction получает транзакцию в base64 и разбирает её в ParsedTransaction.
func (c *Client) GetParsedTransaction(ctx context.Context, sig solana.Signature) (*ParsedTransaction, error) {
	maxVersion := uint64(0)
	res, err := invoke(ctx, c, "getTransaction", func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		return c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		c.logger.Debug("GetTransaction error",
			zap.String("signature", sig.String()),
			zap.Error(err))
		return nil, err
	}
	return ParseTransactionResult(sig, res)
}
