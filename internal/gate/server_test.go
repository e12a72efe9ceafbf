package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passaddis/internal/services"
	"passaddis/internal/store"
	"passaddis/models"
	"passaddis/security"
)

func newGateFixture(t *testing.T) (*Server, string) {
	t.Helper()

	s := store.NewMemoryStore()
	s.PutEvent(&models.Event{ID: "ev-1", Name: "Addis Jazz Night", Status: "PUBLISHED"})
	s.PutTicketType(&models.TicketType{
		ID: "tt-1", EventID: "ev-1", Name: "Regular",
		Price: decimal.NewFromInt(500), Quantity: 10, MaxPerOrder: 4,
	})
	require.NoError(t, s.CreateTickets(context.Background(), []*models.Ticket{{
		ID: "tk-1", TicketTypeID: "tt-1", EventID: "ev-1",
		OwnerID: "buyer-1", Code: "gate-test-code", Status: models.TicketValid,
	}}))

	server := NewServer(services.NewTicketValidator(s, s), nil, Config{
		Addr:   ":0",
		APIKey: "gate-secret",
	})
	return server, "gate-test-code"
}

func doValidate(server *Server, code, apiKey string) *httptest.ResponseRecorder {
	body := `{"code":"` + code + `"}`
	req := httptest.NewRequest(http.MethodPost, "/gate/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Gate-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	server.routes().ServeHTTP(rec, req)
	return rec
}

func TestGateServer_Validate_Admits(t *testing.T) {
	server, code := newGateFixture(t)

	rec := doValidate(server, code, "gate-secret")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Admitted)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "tk-1", resp.Result.Ticket.ID)
}

func TestGateServer_Validate_SecondScanConflict(t *testing.T) {
	server, code := newGateFixture(t)

	require.Equal(t, http.StatusOK, doValidate(server, code, "gate-secret").Code)

	rec := doValidate(server, code, "gate-secret")

	require.Equal(t, http.StatusConflict, rec.Code)
	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Admitted)
	assert.Equal(t, "already_used", resp.Reason)
	assert.NotNil(t, resp.UsedAt)
}

func TestGateServer_Validate_UnknownCode(t *testing.T) {
	server, _ := newGateFixture(t)

	rec := doValidate(server, "nope", "gate-secret")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateServer_Validate_RequiresGateKey(t *testing.T) {
	server, code := newGateFixture(t)

	assert.Equal(t, http.StatusUnauthorized, doValidate(server, code, "").Code)
	assert.Equal(t, http.StatusUnauthorized, doValidate(server, code, "wrong").Code)
}

func TestGateServer_BlocksScraperUserAgents(t *testing.T) {
	server, code := newGateFixture(t)
	db, _ := redismock.NewClientMock()
	server.limiter = security.NewRateLimiter(db)

	req := httptest.NewRequest(http.MethodPost, "/gate/validate", strings.NewReader(`{"code":"`+code+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gate-Key", "gate-secret")
	req.Header.Set("User-Agent", "ticket-scraper/1.0")
	rec := httptest.NewRecorder()
	server.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Ordinary devices keep scanning even when Redis is unreachable: both
	// the anti-bot counter and the scan limiter fail open.
	rec = doValidate(server, code, "gate-secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateServer_Healthz(t *testing.T) {
	server, _ := newGateFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
