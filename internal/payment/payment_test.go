package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passaddis/internal/payment/chapa"
	"passaddis/internal/payment/telebirr"
)

func signHex(key string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// telebirrSign mirrors the gateway's key-sorted query-string HMAC.
func telebirrSign(key string, fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return signHex(key, []byte(strings.Join(parts, "&")))
}

func TestChapaAdapter_ParseWebhook(t *testing.T) {
	adapter := NewChapaAdapter(&chapa.Config{SecretKey: "sk", WebhookSecret: "whsec"})
	payload := []byte(`{"tx_ref":"order-1","reference":"APq123","status":"success","amount":"2625.00","currency":"ETB"}`)

	confirmation, err := adapter.ParseWebhook(payload, signHex("whsec", payload))

	require.NoError(t, err)
	assert.Equal(t, "order-1", confirmation.OrderID)
	assert.Equal(t, ProviderChapa, confirmation.Provider)
	assert.Equal(t, "APq123", confirmation.Reference)
	assert.True(t, confirmation.Amount.Equal(decimal.RequireFromString("2625.00")))
}

func TestChapaAdapter_ParseWebhook_BadSignature(t *testing.T) {
	adapter := NewChapaAdapter(&chapa.Config{SecretKey: "sk", WebhookSecret: "whsec"})
	payload := []byte(`{"tx_ref":"order-1","status":"success"}`)

	_, err := adapter.ParseWebhook(payload, "deadbeef")

	assert.ErrorIs(t, err, chapa.ErrBadSignature)
}

// A signed webhook for a failed charge must be distinguishable from a bad
// signature: receivers acknowledge the former and reject the latter.
func TestChapaAdapter_ParseWebhook_FailedCharge(t *testing.T) {
	adapter := NewChapaAdapter(&chapa.Config{SecretKey: "sk", WebhookSecret: "whsec"})
	payload := []byte(`{"tx_ref":"order-1","status":"failed"}`)

	_, err := adapter.ParseWebhook(payload, signHex("whsec", payload))

	assert.ErrorIs(t, err, ErrChargeNotSuccessful)
	assert.NotErrorIs(t, err, chapa.ErrBadSignature)
}

func TestTelebirrAdapter_ParseWebhook_TradeNotPaid(t *testing.T) {
	adapter := NewTelebirrAdapter(&telebirr.Config{AppID: "app", AppKey: "key"})
	payload := []byte(`{"outTradeNo":"order-1","tradeNo":"T-9","tradeStatus":"Failure","totalAmount":"100.00"}`)

	_, err := adapter.ParseWebhook(payload, telebirrSign("key", map[string]string{
		"outTradeNo":  "order-1",
		"tradeNo":     "T-9",
		"tradeStatus": "Failure",
		"totalAmount": "100.00",
	}))

	assert.ErrorIs(t, err, ErrChargeNotSuccessful)
}

func TestRegistry_PrimaryAndLookup(t *testing.T) {
	registry := NewRegistry(NewFactory())

	require.NoError(t, registry.Register(ProviderChapa, &chapa.Config{SecretKey: "sk"}))
	require.NoError(t, registry.Register(ProviderTelebirr, &telebirr.Config{AppID: "app", AppKey: "key"}))

	primary, err := registry.Primary()
	require.NoError(t, err)
	assert.Equal(t, ProviderChapa, primary.Name())

	tb, err := registry.Provider(ProviderTelebirr)
	require.NoError(t, err)
	assert.Equal(t, ProviderTelebirr, tb.Name())

	_, err = registry.Provider(ProviderCBEBirr)
	assert.Error(t, err)
}

func TestRegistry_UnimplementedProvider(t *testing.T) {
	registry := NewRegistry(NewFactory())

	err := registry.Register(ProviderCBEBirr, nil)
	assert.Error(t, err)
}
