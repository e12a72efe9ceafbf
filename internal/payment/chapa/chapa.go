// Package chapa is a minimal client for the Chapa payment API
// (https://developer.chapa.co): hosted checkout initialization,
// transaction verification, and webhook signature checks.
package chapa

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"passaddis/utils"
)

const defaultBaseURL = "https://api.chapa.co/v1"

var (
	ErrBadSignature   = errors.New("chapa: webhook signature mismatch")
	ErrChargeNotFound = errors.New("chapa: transaction not found")
	ErrChargeFailed   = errors.New("chapa: charge not successful")
)

type Config struct {
	SecretKey     string `json:"secret_key" mapstructure:"secret_key"`
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret"`
	BaseURL       string `json:"base_url" mapstructure:"base_url"`
	CallbackURL   string `json:"callback_url" mapstructure:"callback_url"`
}

type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	callbackURL   string

	hc      *http.Client
	breaker *utils.CircuitBreaker
}

func New(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:       baseURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		callbackURL:   cfg.CallbackURL,
		hc:            &http.Client{Timeout: 10 * time.Second},
		breaker:       utils.NewCircuitBreaker("chapa"),
	}
}

type CheckoutForm struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	TxRef       string `json:"tx_ref"`
	CallbackURL string `json:"callback_url,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
}

type Transaction struct {
	TxRef     string          `json:"tx_ref"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeCheckout starts a hosted checkout session and returns the URL
// the buyer is redirected to.
func (c *Client) InitializeCheckout(ctx context.Context, form *CheckoutForm) (string, error) {
	if form.CallbackURL == "" {
		form.CallbackURL = c.callbackURL
	}

	var checkoutURL string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		raw, err := c.post(ctx, "/transaction/initialize", form)
		if err != nil {
			return err
		}
		var data struct {
			CheckoutURL string `json:"checkout_url"`
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("chapa: decode checkout response: %w", err)
		}
		checkoutURL = data.CheckoutURL
		return nil
	})
	if err != nil {
		return "", err
	}
	if checkoutURL == "" {
		return "", errors.New("chapa: empty checkout url")
	}
	return checkoutURL, nil
}

// VerifyTransaction checks a transaction by its tx_ref. Only a "success"
// status yields a transaction; anything else is ErrChargeFailed.
func (c *Client) VerifyTransaction(ctx context.Context, txRef string) (*Transaction, error) {
	var tx Transaction
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		raw, err := c.get(ctx, "/transaction/verify/"+txRef)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &tx)
	})
	if err != nil {
		return nil, err
	}
	if tx.Status != "success" {
		return nil, ErrChargeFailed
	}
	if tx.TxRef == "" {
		tx.TxRef = txRef
	}
	return &tx, nil
}

// VerifyWebhook checks the Chapa-Signature header: hex HMAC-SHA256 of the
// raw body keyed with the webhook secret.
func (c *Client) VerifyWebhook(payload []byte, signature string) error {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("chapa: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chapa: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chapa: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrChargeNotFound
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("chapa: decode response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || parsed.Status != "success" {
		return nil, fmt.Errorf("chapa: api error (%d): %s", resp.StatusCode, parsed.Message)
	}
	return parsed.Data, nil
}
