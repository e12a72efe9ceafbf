// Package store defines the persistence ports the core services depend on,
// plus three implementations: an in-memory store for tests and dev mode, a
// PocketBase/dbx store for production, and a Redis Lua-script inventory for
// flash-sale events.
//
// Every mutation of shared state (sold counters, ticket status, transfer
// status) goes through a conditional update: the implementation must apply
// the read-check-write as one atomic step and report whether this caller won.
package store

import (
	"context"
	"time"

	"passaddis/models"
)

type CatalogRepository interface {
	EventByID(ctx context.Context, eventID string) (*models.Event, error)
	TicketTypeByID(ctx context.Context, ticketTypeID string) (*models.TicketType, error)
	TicketTypesByEvent(ctx context.Context, eventID string) ([]*models.TicketType, error)
}

// InventoryRepository is the single serialization point for a ticket type's
// sold counter. Reserve atomically increments sold by qty only when
// sold+qty <= quantity and returns the new sold count; on capacity shortfall
// it returns a *status.InsufficientInventoryError and performs no mutation.
// Release is the compensating decrement and never drops sold below zero.
type InventoryRepository interface {
	Reserve(ctx context.Context, ticketTypeID string, qty int) (int, error)
	Release(ctx context.Context, ticketTypeID string, qty int) error
}

type OrderRepository interface {
	// CreatePurchase persists an order and any already-issued tickets in one
	// transaction. tickets may be nil for a PENDING order.
	CreatePurchase(ctx context.Context, order *models.Order, tickets []*models.Ticket) error

	OrderByID(ctx context.Context, orderID string) (*models.Order, error)
	OrdersByBuyer(ctx context.Context, buyerID string) ([]*models.Order, error)

	// MarkOrderPaid transitions PENDING->PAID and inserts the tickets in the
	// same transaction. The boolean reports whether this call won the
	// transition; a false return with nil error means another caller already
	// paid the order.
	MarkOrderPaid(ctx context.Context, orderID string, tickets []*models.Ticket, at time.Time) (bool, error)
}

type TicketRepository interface {
	// CreateTickets fails with status.ErrCodeCollision when any scannable
	// code is already taken, inserting nothing.
	CreateTickets(ctx context.Context, tickets []*models.Ticket) error

	TicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
	TicketByCode(ctx context.Context, code string) (*models.Ticket, error)
	TicketsByOwner(ctx context.Context, ownerID string) ([]*models.Ticket, error)
	TicketsByOrder(ctx context.Context, orderID string) ([]*models.Ticket, error)

	// MarkTicketUsed transitions VALID->USED and stamps usedAt. The boolean
	// reports whether this call won; false means the ticket was not VALID at
	// the moment of the update.
	MarkTicketUsed(ctx context.Context, ticketID string, at time.Time) (bool, error)
}

type TransferRepository interface {
	// CreateTransfer fails with status.ErrTransferAlreadyPending when a
	// PENDING request already exists for the same ticket.
	CreateTransfer(ctx context.Context, req *models.TransferRequest) error

	TransferByID(ctx context.Context, requestID string) (*models.TransferRequest, error)
	TransferByClaimHash(ctx context.Context, claimHash string) (*models.TransferRequest, error)
	PendingTransferByTicket(ctx context.Context, ticketID string) (*models.TransferRequest, error)

	// UpdateTransferStatus is a CAS on the request status. The boolean
	// reports whether the transition from->to was applied.
	UpdateTransferStatus(ctx context.Context, requestID string, from, to models.TransferStatus) (bool, error)

	// ClaimTransfer atomically marks the request CLAIMED (only from PENDING)
	// and reassigns the ticket's owner (only while the ticket is VALID).
	// Both happen or neither does; false with nil error means either guard
	// failed.
	ClaimTransfer(ctx context.Context, requestID, ticketID, newOwnerID string, at time.Time) (bool, error)

	TransfersBySender(ctx context.Context, senderID string) ([]*models.TransferRequest, error)
	TransfersByParticipant(ctx context.Context, userID string) ([]*models.TransferRequest, error)
	PendingTransfersByRecipient(ctx context.Context, contacts []string) ([]*models.TransferRequest, error)

	// PendingTransfersExpiredBefore lists PENDING requests whose deadline is
	// at or before t, for the housekeeping sweep.
	PendingTransfersExpiredBefore(ctx context.Context, t time.Time) ([]*models.TransferRequest, error)
}

// Store aggregates every port for implementations that back all of them.
type Store interface {
	CatalogRepository
	InventoryRepository
	OrderRepository
	TicketRepository
	TransferRepository
}
