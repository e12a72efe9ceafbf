// Package handlers wires the API routes onto the PocketBase app.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"passaddis/internal/payment"
	"passaddis/internal/services"
	"passaddis/internal/status"
)

type OrderHandler struct {
	orchestrator *services.PurchaseOrchestrator
	payments     *payment.Registry

	// issueImmediately skips the gateway and issues tickets with the order.
	issueImmediately bool
}

func NewOrderHandler(orchestrator *services.PurchaseOrchestrator, payments *payment.Registry, issueImmediately bool) *OrderHandler {
	return &OrderHandler{
		orchestrator:     orchestrator,
		payments:         payments,
		issueImmediately: issueImmediately,
	}
}

// CreateOrder reserves inventory and creates an order for the signed-in
// buyer. In the gateway flow the response carries the hosted checkout URL.
func (h *OrderHandler) CreateOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		EventID   string              `json:"event_id"`
		Items     []services.LineItem `json:"items"`
		Provider  string              `json:"provider"`
		ReturnURL string              `json:"return_url"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}

	ctx := e.Request.Context()
	order, err := h.orchestrator.Purchase(ctx, e.Auth.Id, req.EventID, req.Items, services.PurchaseOptions{
		IssueImmediately: h.issueImmediately,
	})
	if err != nil {
		return purchaseError(err)
	}

	response := map[string]any{"order": order}

	if !h.issueImmediately && h.payments != nil {
		provider, perr := h.resolveProvider(req.Provider)
		if perr != nil {
			return apis.NewBadRequestError("Unknown payment provider", perr)
		}
		checkoutURL, cerr := provider.Initialize(ctx, &payment.CheckoutRequest{
			OrderID:   order.ID,
			Amount:    order.Total,
			Currency:  "ETB",
			Email:     e.Auth.GetString("email"),
			Phone:     e.Auth.GetString("phone"),
			FirstName: e.Auth.GetString("name"),
			ReturnURL: req.ReturnURL,
		})
		if cerr != nil {
			slog.Error("checkout initialization failed", "order_id", order.ID, "provider", provider.Name(), "error", cerr)
			return apis.NewApiError(http.StatusBadGateway, "Payment provider unavailable", cerr)
		}
		response["checkout_url"] = checkoutURL
		response["provider"] = provider.Name()
	}

	return e.JSON(http.StatusCreated, response)
}

// GetOrder returns one of the buyer's orders with its tickets.
func (h *OrderHandler) GetOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("id")
	if orderID == "" {
		return apis.NewBadRequestError("Order ID required", nil)
	}

	order, err := h.orchestrator.Order(e.Request.Context(), e.Auth.Id, orderID)
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			return apis.NewNotFoundError("Order not found", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load order", err)
	}
	return e.JSON(http.StatusOK, order)
}

// ListOrders returns the buyer's orders, newest first.
func (h *OrderHandler) ListOrders(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orders, err := h.orchestrator.Orders(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load orders", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"orders": orders})
}

func (h *OrderHandler) resolveProvider(name string) (payment.Provider, error) {
	if name == "" {
		return h.payments.Primary()
	}
	return h.payments.Provider(payment.ProviderName(name))
}

func purchaseError(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidLineItem):
		return apis.NewBadRequestError("Invalid line items", err)
	case errors.Is(err, status.ErrInsufficientInventory):
		return apis.NewApiError(http.StatusConflict, "Not enough tickets remaining", err)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Purchase failed", err)
	}
}
