package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Allow_FirstRequestStartsWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := &redisStore{redis: db, scope: "purchase", limit: 5, window: time.Minute}

	mock.ExpectIncr("ratelimit:purchase:user:u-1").SetVal(1)
	mock.ExpectExpire("ratelimit:purchase:user:u-1", time.Minute).SetVal(true)

	allowed, err := store.Allow("user:u-1")

	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Allow_OverLimitDenied(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := &redisStore{redis: db, scope: "scan", limit: 5, window: time.Minute}

	mock.ExpectIncr("ratelimit:scan:gate-1").SetVal(6)

	allowed, err := store.Allow("gate-1")

	require.NoError(t, err)
	assert.False(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Allow_FailsOpenOnRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := &redisStore{redis: db, scope: "purchase", limit: 5, window: time.Minute}

	mock.ExpectIncr("ratelimit:purchase:user:u-1").SetErr(assert.AnError)

	allowed, err := store.Allow("user:u-1")

	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiter_PurchaseGuard(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	limiter := NewRateLimiter(db)
	guard := limiter.PurchaseGuard(10, time.Minute)

	mock.ExpectIncr("ratelimit:purchase:192.0.2.9").SetVal(1)
	mock.ExpectExpire("ratelimit:purchase:192.0.2.9", time.Minute).SetVal(true)
	mock.ExpectIncr("ratelimit:purchase:192.0.2.9").SetVal(11)

	calls := 0
	handler := guard(func(e *core.RequestEvent) error {
		calls++
		return nil
	})

	event := &core.RequestEvent{}
	event.Request = httptest.NewRequest(http.MethodPost, "/api/passaddis/orders", nil)
	event.Request.RemoteAddr = "192.0.2.9:51234"
	event.Response = httptest.NewRecorder()

	require.NoError(t, handler(event))
	assert.Equal(t, 1, calls)

	// The eleventh request in the window is rejected before the handler.
	err := handler(event)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSuspiciousUserAgent(t *testing.T) {
	assert.True(t, isSuspiciousUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1)"))
	assert.True(t, isSuspiciousUserAgent("python-scraper/1.0"))
	assert.False(t, isSuspiciousUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)"))
	assert.False(t, isSuspiciousUserAgent(""))
}
