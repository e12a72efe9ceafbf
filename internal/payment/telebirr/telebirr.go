// Package telebirr is a minimal client for the telebirr H5 web payment
// flow: order creation returning a pay URL, and HMAC verification of the
// asynchronous payment notification.
package telebirr

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
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"passaddis/utils"
)

var (
	ErrBadSignature  = errors.New("telebirr: notification signature mismatch")
	ErrTradeNotPaid  = errors.New("telebirr: trade not paid")
	ErrOrderRejected = errors.New("telebirr: order rejected")
)

type Config struct {
	AppID     string `json:"app_id" mapstructure:"app_id"`
	AppKey    string `json:"app_key" mapstructure:"app_key"`
	ShortCode string `json:"short_code" mapstructure:"short_code"`
	NotifyURL string `json:"notify_url" mapstructure:"notify_url"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
}

type Client struct {
	appID     string
	appKey    string
	shortCode string
	notifyURL string
	baseURL   string

	hc      *http.Client
	breaker *utils.CircuitBreaker
}

func New(cfg *Config) *Client {
	return &Client{
		appID:     cfg.AppID,
		appKey:    cfg.AppKey,
		shortCode: cfg.ShortCode,
		notifyURL: cfg.NotifyURL,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		hc:        &http.Client{Timeout: 10 * time.Second},
		breaker:   utils.NewCircuitBreaker("telebirr"),
	}
}

// Notification is the decoded payment callback body.
type Notification struct {
	OutTradeNo  string          `json:"outTradeNo"`
	TradeNo     string          `json:"tradeNo"`
	TradeStatus string          `json:"tradeStatus"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	MSISDN      string          `json:"msisdn,omitempty"`
}

type createOrderRequest struct {
	AppID       string `json:"appId"`
	ShortCode   string `json:"shortCode"`
	OutTradeNo  string `json:"outTradeNo"`
	Subject     string `json:"subject"`
	TotalAmount string `json:"totalAmount"`
	NotifyURL   string `json:"notifyUrl"`
	ReturnURL   string `json:"returnUrl,omitempty"`
	Timeout     string `json:"timeoutExpress"`
	Nonce       string `json:"nonce"`
	Timestamp   string `json:"timestamp"`
	Sign        string `json:"sign"`
}

type createOrderResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		ToPayURL string `json:"toPayUrl"`
	} `json:"data"`
}

// CreateOrder registers a prepay order and returns the pay URL for the
// buyer's telebirr app or browser.
func (c *Client) CreateOrder(ctx context.Context, outTradeNo, subject string, amount decimal.Decimal, returnURL string) (string, error) {
	nonce, err := utils.GenerateClaimCode()
	if err != nil {
		return "", fmt.Errorf("telebirr: nonce: %w", err)
	}

	req := &createOrderRequest{
		AppID:       c.appID,
		ShortCode:   c.shortCode,
		OutTradeNo:  outTradeNo,
		Subject:     subject,
		TotalAmount: amount.StringFixed(2),
		NotifyURL:   c.notifyURL,
		ReturnURL:   returnURL,
		Timeout:     "30m",
		Nonce:       nonce,
		Timestamp:   fmt.Sprintf("%d", time.Now().Unix()),
	}
	req.Sign = c.sign(map[string]string{
		"appId":       req.AppID,
		"shortCode":   req.ShortCode,
		"outTradeNo":  req.OutTradeNo,
		"subject":     req.Subject,
		"totalAmount": req.TotalAmount,
		"nonce":       req.Nonce,
		"timestamp":   req.Timestamp,
	})

	var payURL string
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		payload, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("telebirr: marshal order: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment/v1/merchant/preOrder", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(httpReq)
		if err != nil {
			return fmt.Errorf("telebirr: request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("telebirr: read response: %w", err)
		}
		var parsed createOrderResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("telebirr: decode response (%d): %w", resp.StatusCode, err)
		}
		if resp.StatusCode >= 400 || parsed.Code != 200 {
			return fmt.Errorf("%w: code %d: %s", ErrOrderRejected, parsed.Code, parsed.Message)
		}
		payURL = parsed.Data.ToPayURL
		return nil
	})
	if err != nil {
		return "", err
	}
	return payURL, nil
}

// ParseNotification authenticates and decodes a payment callback. Only a
// completed trade yields a notification.
func (c *Client) ParseNotification(payload []byte, signature string) (*Notification, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("telebirr: decode notification: %w", err)
	}
	flat := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "sign" {
			continue
		}
		flat[k] = fmt.Sprintf("%v", v)
	}
	if !hmac.Equal([]byte(c.sign(flat)), []byte(signature)) {
		return nil, ErrBadSignature
	}

	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("telebirr: decode notification: %w", err)
	}
	if n.TradeStatus != "Completed" {
		return nil, ErrTradeNotPaid
	}
	return &n, nil
}

// sign produces the hex HMAC-SHA256 over the key-sorted query string of the
// request fields, keyed with the app key.
func (c *Client) sign(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fields[k])
	}

	mac := hmac.New(sha256.New, []byte(c.appKey))
	mac.Write([]byte(sb.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
