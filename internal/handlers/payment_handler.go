package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"passaddis/internal/payment"
	"passaddis/internal/services"
	"passaddis/internal/status"
	"passaddis/monitoring"
)

type PaymentHandler struct {
	orchestrator *services.PurchaseOrchestrator
	payments     *payment.Registry

	// devMode enables the unauthenticated payment simulator.
	devMode bool
}

func NewPaymentHandler(orchestrator *services.PurchaseOrchestrator, payments *payment.Registry, devMode bool) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator, payments: payments, devMode: devMode}
}

// Webhook receives gateway payment callbacks. The provider name is in the
// path; the raw body and signature header are handed to the matching
// adapter, and a verified success confirms the order. Replays are harmless:
// the confirm step is idempotent.
func (h *PaymentHandler) Webhook(e *core.RequestEvent) error {
	providerName := payment.ProviderName(e.Request.PathValue("provider"))
	provider, err := h.payments.Provider(providerName)
	if err != nil {
		return apis.NewNotFoundError("Unknown payment provider", nil)
	}

	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		monitoring.TrackPaymentWebhook(string(providerName), "read_error")
		return apis.NewBadRequestError("Unreadable payload", err)
	}

	confirmation, err := provider.ParseWebhook(body, signatureHeader(e.Request, providerName))
	if err != nil {
		// 200 on verified-but-unsuccessful charges so gateways stop
		// retrying; 400 only for unauthenticated payloads.
		if errors.Is(err, payment.ErrChargeNotSuccessful) {
			monitoring.TrackPaymentWebhook(string(providerName), "charge_failed")
			slog.Info("payment webhook reported unsuccessful charge", "provider", providerName, "error", err)
			return e.JSON(http.StatusOK, map[string]string{"status": "ignored"})
		}
		monitoring.TrackPaymentWebhook(string(providerName), "rejected")
		slog.Warn("payment webhook rejected", "provider", providerName, "error", err)
		return apis.NewBadRequestError("Invalid webhook", nil)
	}

	order, err := h.orchestrator.ConfirmPaidOrder(e.Request.Context(), confirmation.OrderID)
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			monitoring.TrackPaymentWebhook(string(providerName), "unknown_order")
			return apis.NewNotFoundError("Order not found", nil)
		}
		monitoring.TrackPaymentWebhook(string(providerName), "error")
		return apis.NewApiError(http.StatusInternalServerError, "Failed to confirm order", err)
	}

	monitoring.TrackPaymentWebhook(string(providerName), "confirmed")
	slog.Info("payment confirmed",
		"provider", providerName,
		"order_id", order.ID,
		"reference", confirmation.Reference,
	)
	return e.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// SimulatePayment confirms a pending order without a gateway. Registered
// only in development.
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	if !h.devMode {
		return apis.NewNotFoundError("Not found", nil)
	}
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := e.BindBody(&req); err != nil || req.OrderID == "" {
		return apis.NewBadRequestError("Order ID required", err)
	}

	order, err := h.orchestrator.ConfirmPaidOrder(e.Request.Context(), req.OrderID)
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			return apis.NewNotFoundError("Order not found", nil)
		}
		if errors.Is(err, status.ErrOrderNotPending) {
			return apis.NewApiError(http.StatusConflict, "Order is not payable", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to confirm order", err)
	}
	return e.JSON(http.StatusOK, order)
}

func signatureHeader(r *http.Request, provider payment.ProviderName) string {
	switch provider {
	case payment.ProviderChapa:
		return r.Header.Get("Chapa-Signature")
	case payment.ProviderTelebirr:
		return r.Header.Get("X-Telebirr-Signature")
	default:
		return r.Header.Get("X-Signature")
	}
}
