package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"passaddis/internal/services"
	"passaddis/internal/status"
)

type TransferHandler struct {
	coordinator *services.TransferCoordinator
}

func NewTransferHandler(coordinator *services.TransferCoordinator) *TransferHandler {
	return &TransferHandler{coordinator: coordinator}
}

// InitiateTransfer creates a transfer offer for one of the caller's
// tickets. The claim code appears only in this response; the caller relays
// it to the recipient out of band.
func (h *TransferHandler) InitiateTransfer(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TicketID         string `json:"ticket_id"`
		RecipientContact string `json:"recipient_contact"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TicketID == "" || req.RecipientContact == "" {
		return apis.NewBadRequestError("Ticket ID and recipient contact required", nil)
	}

	initiated, err := h.coordinator.Initiate(e.Request.Context(), e.Auth.Id, req.TicketID, req.RecipientContact)
	if err != nil {
		return transferError(err)
	}
	return e.JSON(http.StatusCreated, initiated)
}

// ClaimTransfer redeems a claim code and hands the ticket to the caller.
func (h *TransferHandler) ClaimTransfer(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		ClaimCode string `json:"claim_code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ClaimCode == "" {
		return apis.NewBadRequestError("Claim code required", nil)
	}

	ticket, err := h.coordinator.Claim(e.Request.Context(), e.Auth.Id, req.ClaimCode)
	if err != nil {
		return transferError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket": ticket})
}

// CancelTransfer aborts the caller's pending offer for a ticket.
func (h *TransferHandler) CancelTransfer(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ticketID := e.Request.PathValue("ticketId")
	if ticketID == "" {
		return apis.NewBadRequestError("Ticket ID required", nil)
	}

	request, err := h.coordinator.Cancel(e.Request.Context(), e.Auth.Id, ticketID)
	if err != nil {
		return transferError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"request": request})
}

// ListTransfers returns the caller's pending offers (sent and addressed to
// their verified contacts) plus their settled history.
func (h *TransferHandler) ListTransfers(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()
	contacts := verifiedContacts(e.Auth)

	pending, err := h.coordinator.PendingTransfers(ctx, e.Auth.Id, contacts)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load transfers", err)
	}
	history, err := h.coordinator.TransferHistory(ctx, e.Auth.Id)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load transfers", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"pending": pending,
		"history": history,
	})
}

func verifiedContacts(auth *core.Record) []string {
	var contacts []string
	if email := auth.GetString("email"); email != "" && auth.GetBool("verified") {
		contacts = append(contacts, email)
	}
	if phone := auth.GetString("phone"); phone != "" {
		contacts = append(contacts, phone)
	}
	return contacts
}

func transferError(err error) error {
	switch {
	case errors.Is(err, status.ErrTransferDenied):
		return apis.NewNotFoundError("Ticket not available for transfer", nil)
	case errors.Is(err, status.ErrTicketNotTransferable):
		return apis.NewApiError(http.StatusConflict, "Ticket cannot be transferred", err)
	case errors.Is(err, status.ErrTransferAlreadyPending):
		return apis.NewApiError(http.StatusConflict, "A transfer is already pending for this ticket", err)
	case errors.Is(err, status.ErrTransferExpired):
		return apis.NewApiError(http.StatusGone, "Transfer offer expired", err)
	case errors.Is(err, status.ErrTransferNotPending):
		return apis.NewApiError(http.StatusConflict, "Transfer is no longer pending", err)
	case errors.Is(err, status.ErrNotTransferOwner):
		return apis.NewForbiddenError("Only the sender can cancel this transfer", nil)
	case errors.Is(err, status.ErrTransferNotFound):
		return apis.NewNotFoundError("Transfer not found", nil)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Transfer failed", err)
	}
}
