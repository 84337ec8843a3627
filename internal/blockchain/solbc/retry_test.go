package solbc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(attempts uint) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       attempts,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
		IsRetryable:       IsRetryableError,
	}
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastPolicy(3), zap.NewNop(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, jsonrpc.NewHTTPError(503, errors.New("service unavailable"))
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(4), zap.NewNop(), func() (int, error) {
		calls++
		return 0, jsonrpc.NewHTTPError(502, errors.New("bad gateway"))
	})

	assert.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetryDoesNotRepeatPermanentErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), zap.NewNop(), func() (int, error) {
		calls++
		return 0, ErrAccountNotFound
	})

	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetryUsesCustomPredicate(t *testing.T) {
	policy := fastPolicy(3)
	policy.IsRetryable = func(err error) bool { return err.Error() == "again" }

	calls := 0
	_, err := Retry(context.Background(), policy, zap.NewNop(), func() (string, error) {
		calls++
		return "", errors.New("again")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"http 500", jsonrpc.NewHTTPError(500, errors.New("internal")), true},
		{"http 429", jsonrpc.NewHTTPError(429, errors.New("slow down")), true},
		{"http 400", jsonrpc.NewHTTPError(400, errors.New("bad request")), false},
		{"wrapped http 503", NewError(jsonrpc.NewHTTPError(503, errors.New("unavailable")), "getTransaction"), true},
		{"rpc 429", &jsonrpc.RPCError{Code: 429, Message: "too many requests"}, true},
		{"rpc node behind", &jsonrpc.RPCError{Code: -32005, Message: "node is behind"}, true},
		{"rpc invalid params", &jsonrpc.RPCError{Code: -32602, Message: "invalid param: 500 502 eof"}, false},
		{"connection reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "rpc.local"}, true},
		{"transport timeout", &url.Error{Op: "Post", URL: "http://rpc.local", Err: context.DeadlineExceeded}, true},
		{"unexpected eof", fmt.Errorf("rpc call: %w", io.ErrUnexpectedEOF), true},
		{"digits in message", errors.New("account 5002 has invalid owner"), false},
		{"eof in message", errors.New("invalid geofence data"), false},
		{"not found", rpc.ErrNotFound, false},
		{"wrapped not found", fmt.Errorf("curve lookup: %w", ErrAccountNotFound), false},
		{"cancelled", context.Canceled, false},
		{"rate limit", ErrRateLimit, true},
		{"decode failure", errors.New("invalid data length"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}
