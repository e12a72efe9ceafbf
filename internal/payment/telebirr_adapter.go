package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"passaddis/internal/payment/telebirr"
)

// TelebirrAdapter conforms the telebirr client to Provider.
type TelebirrAdapter struct {
	client *telebirr.Client
}

func NewTelebirrAdapter(cfg *telebirr.Config) *TelebirrAdapter {
	return &TelebirrAdapter{client: telebirr.New(cfg)}
}

func (a *TelebirrAdapter) Name() ProviderName {
	return ProviderTelebirr
}

func (a *TelebirrAdapter) Initialize(ctx context.Context, req *CheckoutRequest) (string, error) {
	subject := fmt.Sprintf("PassAddis order %s", req.OrderID)
	return a.client.CreateOrder(ctx, req.OrderID, subject, req.Amount, req.ReturnURL)
}

// Verify is not offered by the telebirr H5 flow; reconciliation relies on
// the notification callback being redelivered.
func (a *TelebirrAdapter) Verify(_ context.Context, _ string) (*Confirmation, error) {
	return nil, fmt.Errorf("telebirr: transaction query not supported")
}

func (a *TelebirrAdapter) ParseWebhook(payload []byte, signature string) (*Confirmation, error) {
	n, err := a.client.ParseNotification(payload, signature)
	if err != nil {
		if errors.Is(err, telebirr.ErrTradeNotPaid) {
			return nil, fmt.Errorf("%w: %v", ErrChargeNotSuccessful, err)
		}
		return nil, err
	}
	return &Confirmation{
		OrderID:   n.OutTradeNo,
		Provider:  ProviderTelebirr,
		Reference: n.TradeNo,
		Amount:    n.TotalAmount,
		Currency:  "ETB",
	}, nil
}

func (a *TelebirrAdapter) Close(_ context.Context) error {
	return nil
}

func decimalFromString(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("payment: empty amount")
	}
	return decimal.NewFromString(raw)
}
