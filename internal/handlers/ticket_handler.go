package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"passaddis/internal/services"
	"passaddis/internal/status"
)

type TicketHandler struct {
	wallet *services.Wallet
}

func NewTicketHandler(wallet *services.Wallet) *TicketHandler {
	return &TicketHandler{wallet: wallet}
}

// ListMyTickets returns the signed-in user's wallet, newest first. Scannable
// codes are included: this endpoint is the source for the wallet's QR view.
func (h *TicketHandler) ListMyTickets(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	tickets, err := h.wallet.Tickets(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load tickets", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}

// GetTicket returns one ticket from the caller's wallet. Tickets owned by
// other users report not found.
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticket, err := h.wallet.Ticket(e.Request.Context(), e.Auth.Id, e.Request.PathValue("id"))
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return apis.NewNotFoundError("Ticket not found", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load ticket", err)
	}
	return e.JSON(http.StatusOK, ticket)
}
