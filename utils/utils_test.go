package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTicketCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := GenerateTicketCode()
		require.NoError(t, err)
		assert.NotEmpty(t, code)
		assert.False(t, seen[code], "duplicate code generated: %s", code)
		seen[code] = true
	}
}

func TestGenerateTicketCode_URLSafe(t *testing.T) {
	code, err := GenerateTicketCode()
	require.NoError(t, err)

	for _, r := range code {
		assert.NotContains(t, "+/=", string(r))
	}
}

func TestHashClaimCode_Deterministic(t *testing.T) {
	code, err := GenerateClaimCode()
	require.NoError(t, err)

	first := HashClaimCode(code)
	second := HashClaimCode(code)

	assert.Equal(t, first, second)
	assert.NotEqual(t, code, first)
	assert.Len(t, first, 64) // hex of a 256-bit digest
}

func TestHashClaimCode_DistinctInputs(t *testing.T) {
	a, err := GenerateClaimCode()
	require.NoError(t, err)
	b, err := GenerateClaimCode()
	require.NoError(t, err)

	assert.NotEqual(t, HashClaimCode(a), HashClaimCode(b))
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Equal(t, uint32(1), cb.counts.Requests)
	assert.Equal(t, uint32(1), cb.counts.TotalSuccesses)
}

func TestCircuitBreaker_ExecuteFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")

	wantErr := errors.New("provider unavailable")
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, uint32(1), cb.counts.TotalFailures)
}

func TestCircuitBreaker_TripsOpen(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 4
	cb.failureRatio = 0.5

	boom := errors.New("boom")
	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return boom
		})
	}

	assert.Equal(t, BreakerOpen, cb.State())

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("request must not run while breaker is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test")
	cb.maxRequests = 2
	cb.failureRatio = 0.5
	cb.timeout = 10 * time.Millisecond

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return boom
		})
	}
	require.Equal(t, BreakerOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, BreakerHalfOpen, cb.State())

	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, BreakerClosed, cb.State())
}
