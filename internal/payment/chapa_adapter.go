package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"passaddis/internal/payment/chapa"
)

// ChapaAdapter conforms the chapa client to Provider.
type ChapaAdapter struct {
	client *chapa.Client
}

func NewChapaAdapter(cfg *chapa.Config) *ChapaAdapter {
	return &ChapaAdapter{client: chapa.New(cfg)}
}

func (a *ChapaAdapter) Name() ProviderName {
	return ProviderChapa
}

func (a *ChapaAdapter) Initialize(ctx context.Context, req *CheckoutRequest) (string, error) {
	return a.client.InitializeCheckout(ctx, &chapa.CheckoutForm{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Email:       req.Email,
		PhoneNumber: req.Phone,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		TxRef:       req.OrderID,
		ReturnURL:   req.ReturnURL,
	})
}

func (a *ChapaAdapter) Verify(ctx context.Context, orderID string) (*Confirmation, error) {
	tx, err := a.client.VerifyTransaction(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Confirmation{
		OrderID:   tx.TxRef,
		Provider:  ProviderChapa,
		Reference: tx.Reference,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
	}, nil
}

func (a *ChapaAdapter) ParseWebhook(payload []byte, signature string) (*Confirmation, error) {
	if err := a.client.VerifyWebhook(payload, signature); err != nil {
		return nil, err
	}

	var event struct {
		TxRef     string `json:"tx_ref"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    string `json:"amount"`
		Currency  string `json:"currency"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("chapa: decode webhook: %w", err)
	}
	if event.Status != "success" {
		return nil, fmt.Errorf("%w: status %q", ErrChargeNotSuccessful, event.Status)
	}

	confirmation := &Confirmation{
		OrderID:   event.TxRef,
		Provider:  ProviderChapa,
		Reference: event.Reference,
		Currency:  event.Currency,
	}
	if amount, err := decimalFromString(event.Amount); err == nil {
		confirmation.Amount = amount
	}
	return confirmation, nil
}

func (a *ChapaAdapter) Close(_ context.Context) error {
	return nil
}
