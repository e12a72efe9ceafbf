package services

import (
	"context"
	"log/slog"
	"time"

	"passaddis/internal/status"
	"passaddis/internal/store"
	"passaddis/models"
	"passaddis/monitoring"
)

// TicketValidator consumes scannable codes at the venue gate. A code is
// redeemable at most once: the VALID->USED transition is a conditional
// update, so two simultaneous scans of the same QR at two gates can never
// both succeed.
type TicketValidator struct {
	tickets store.TicketRepository
	catalog store.CatalogRepository
}

func NewTicketValidator(tickets store.TicketRepository, catalog store.CatalogRepository) *TicketValidator {
	return &TicketValidator{tickets: tickets, catalog: catalog}
}

// ValidationResult carries the consumed ticket with its event context for
// gate display.
type ValidationResult struct {
	Ticket     *models.Ticket     `json:"ticket"`
	TicketType *models.TicketType `json:"ticket_type,omitempty"`
	Event      *models.Event      `json:"event,omitempty"`
}

// Validate looks up the ticket by code and transitions it VALID->USED.
func (v *TicketValidator) Validate(ctx context.Context, code string) (*ValidationResult, error) {
	ticket, err := v.tickets.TicketByCode(ctx, code)
	if err != nil {
		monitoring.TrackValidation("not_found")
		return nil, err
	}

	if ticket.Status != models.TicketValid {
		return nil, v.rejectionFor(ticket)
	}

	won, err := v.tickets.MarkTicketUsed(ctx, ticket.ID, time.Now().UTC())
	if err != nil {
		monitoring.TrackValidation("error")
		return nil, err
	}
	if !won {
		// Lost the race against a concurrent scan; re-read for the precise
		// rejection, including the winning scan's usedAt.
		current, err := v.tickets.TicketByID(ctx, ticket.ID)
		if err != nil {
			monitoring.TrackValidation("error")
			return nil, err
		}
		return nil, v.rejectionFor(current)
	}

	used, err := v.tickets.TicketByID(ctx, ticket.ID)
	if err != nil {
		monitoring.TrackValidation("error")
		return nil, err
	}

	monitoring.TrackValidation("success")
	slog.Info("ticket validated", "ticket_id", used.ID, "event_id", used.EventID)

	result := &ValidationResult{Ticket: used}
	if tt, err := v.catalog.TicketTypeByID(ctx, used.TicketTypeID); err == nil {
		result.TicketType = tt
	}
	if ev, err := v.catalog.EventByID(ctx, used.EventID); err == nil {
		result.Event = ev
	}
	return result, nil
}

func (v *TicketValidator) rejectionFor(ticket *models.Ticket) error {
	switch ticket.Status {
	case models.TicketUsed:
		monitoring.TrackValidation("already_used")
		return &status.AlreadyUsedError{TicketID: ticket.ID, UsedAt: ticket.UsedAt}
	default:
		monitoring.TrackValidation("not_redeemable")
		return &status.NotRedeemableError{TicketID: ticket.ID, Status: string(ticket.Status)}
	}
}
