// internal/blockchain/solbc/errors.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rovshanmuradov/walletwatch/internal/ratelimit"
)

var (
	// ErrAccountNotFound возникает, когда аккаунт отсутствует в сети
	ErrAccountNotFound = errors.New("account not found")

	// ErrTransactionNotFound возникает, когда нода не вернула транзакцию
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrRateLimit возникает при превышении лимита запросов на стороне ноды
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrInvalidResponse возникает при получении некорректного ответа
	ErrInvalidResponse = errors.New("invalid RPC response")
)

// Error представляет ошибку RPC с дополнительным контекстом
type Error struct {
	Err    error
	Method string
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s]: %v", e.Method, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError создает новую ошибку RPC
func NewError(err error, method string) error {
	return &Error{
		Err:    err,
		Method: method,
	}
}

// IsNotFound проверяет, означает ли ошибка отсутствие аккаунта или транзакции
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, rpc.ErrNotFound)
}

// IsRetryableError проверяет, является ли ошибка временной (5xx, 429, сетевые сбои, таймауты)
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || IsNotFound(err) || errors.Is(err, ratelimit.ErrClosed) {
		return false
	}
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ratelimit.ErrTaskTimeout) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code >= http.StatusInternalServerError ||
			httpErr.Code == http.StatusTooManyRequests
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case http.StatusTooManyRequests, rpcCodeNodeUnhealthy:
			return true
		}
		return false
	}

	// обрыв соединения, DNS, таймауты транспорта
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

// rpcCodeNodeUnhealthy – нода отстаёт от кластера
const rpcCodeNodeUnhealthy = -32005
