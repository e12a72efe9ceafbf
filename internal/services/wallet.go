package services

import (
	"context"

	"passaddis/internal/status"
	"passaddis/internal/store"
	"passaddis/models"
)

// Wallet reads issued tickets on behalf of their owner.
type Wallet struct {
	tickets store.TicketRepository
}

func NewWallet(tickets store.TicketRepository) *Wallet {
	return &Wallet{tickets: tickets}
}

// Tickets lists the owner's tickets, newest first.
func (w *Wallet) Tickets(ctx context.Context, ownerID string) ([]*models.Ticket, error) {
	return w.tickets.TicketsByOwner(ctx, ownerID)
}

// Ticket returns one ticket, ownership-checked. A ticket owned by someone
// else is reported the same as a missing id so ids reveal nothing.
func (w *Wallet) Ticket(ctx context.Context, ownerID, ticketID string) (*models.Ticket, error) {
	ticket, err := w.tickets.TicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.OwnerID != ownerID {
		return nil, status.ErrTicketNotFound
	}
	return ticket, nil
}
