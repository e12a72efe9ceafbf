// Package status holds the typed error values the core returns to its
// callers. Every failure path in the services resolves to one of these, so
// the orchestrator can decide whether to compensate and the HTTP layer can
// map to a precise response.
package status

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Validation errors: bad input, no side effects.
	ErrInvalidLineItem = errors.New("purchase: invalid line item")

	// Capacity errors: legitimate contention, retried by the caller.
	ErrInsufficientInventory = errors.New("inventory: insufficient inventory")

	// State-conflict errors: entity no longer in the required state.
	ErrTicketAlreadyUsed      = errors.New("ticket: already used")
	ErrTicketNotRedeemable    = errors.New("ticket: not redeemable")
	ErrTicketNotTransferable  = errors.New("transfer: ticket not transferable")
	ErrTransferAlreadyPending = errors.New("transfer: transfer already pending for ticket")
	ErrTransferExpired        = errors.New("transfer: transfer expired")
	ErrTransferNotPending     = errors.New("transfer: transfer not pending")
	ErrOrderNotPending        = errors.New("order: order not pending")

	// Not-found errors.
	ErrTicketNotFound     = errors.New("ticket: ticket not found")
	ErrTransferNotFound   = errors.New("transfer: transfer not found")
	ErrOrderNotFound      = errors.New("order: order not found")
	ErrTicketTypeNotFound = errors.New("catalog: ticket type not found")
	ErrEventNotFound      = errors.New("catalog: event not found")

	// Authorization errors. ErrTransferDenied deliberately does not reveal
	// whether the ticket exists to a non-owner.
	ErrTransferDenied   = errors.New("transfer: transfer denied")
	ErrNotTransferOwner = errors.New("transfer: not transfer owner")
	ErrNotTicketOwner   = errors.New("ticket: not ticket owner")

	// Store-level conflicts.
	ErrCodeCollision = errors.New("ticket: code collision")
	ErrConflict      = errors.New("store: conditional update conflict")
)

// InsufficientInventoryError names the ticket type that could not cover the
// request so the caller can render a precise message.
type InsufficientInventoryError struct {
	TicketTypeID string
	Requested    int
	Remaining    int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("inventory: insufficient inventory for ticket type %s: requested %d, remaining %d",
		e.TicketTypeID, e.Requested, e.Remaining)
}

func (e *InsufficientInventoryError) Unwrap() error { return ErrInsufficientInventory }

// InvalidLineItemError carries the offending line for display.
type InvalidLineItemError struct {
	TicketTypeID string
	Reason       string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("purchase: invalid line item %s: %s", e.TicketTypeID, e.Reason)
}

func (e *InvalidLineItemError) Unwrap() error { return ErrInvalidLineItem }

// AlreadyUsedError reports a replayed scan together with the original
// redemption time for audit display at the gate.
type AlreadyUsedError struct {
	TicketID string
	UsedAt   *time.Time
}

func (e *AlreadyUsedError) Error() string {
	if e.UsedAt != nil {
		return fmt.Sprintf("ticket: already used at %s", e.UsedAt.Format(time.RFC3339))
	}
	return "ticket: already used"
}

func (e *AlreadyUsedError) Unwrap() error { return ErrTicketAlreadyUsed }

// NotRedeemableError reports a scan of a cancelled or expired ticket.
type NotRedeemableError struct {
	TicketID string
	Status   string
}

func (e *NotRedeemableError) Error() string {
	return fmt.Sprintf("ticket: not redeemable, status %s", e.Status)
}

func (e *NotRedeemableError) Unwrap() error { return ErrTicketNotRedeemable }
