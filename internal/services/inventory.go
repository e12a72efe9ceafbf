// Package services implements the ticket inventory and purchase-transfer
// core: the inventory ledger, ticket issuer, purchase orchestrator, gate
// validator, and transfer coordinator.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"passaddis/internal/status"
	"passaddis/internal/store"
	"passaddis/monitoring"
)

// InventoryLedger is the only component allowed to mutate sold counts. Every
// purchase path for a ticket type funnels through Reserve, which delegates
// the atomic check-and-increment to the store.
type InventoryLedger struct {
	inventory store.InventoryRepository
}

func NewInventoryLedger(inventory store.InventoryRepository) *InventoryLedger {
	return &InventoryLedger{inventory: inventory}
}

// Reserve atomically claims qty units of a ticket type. On success it
// returns the new sold count; on shortfall it returns
// status.ErrInsufficientInventory (as an *InsufficientInventoryError naming
// the type) and mutates nothing.
func (l *InventoryLedger) Reserve(ctx context.Context, ticketTypeID string, qty int) (int, error) {
	if qty < 1 {
		return 0, &status.InvalidLineItemError{
			TicketTypeID: ticketTypeID,
			Reason:       fmt.Sprintf("reserve quantity must be >= 1, got %d", qty),
		}
	}

	sold, err := l.inventory.Reserve(ctx, ticketTypeID, qty)
	if err != nil {
		if errors.Is(err, status.ErrInsufficientInventory) {
			monitoring.TrackReservation("reserve", "insufficient")
			return 0, err
		}
		monitoring.TrackReservation("reserve", "error")
		return 0, err
	}

	monitoring.TrackReservation("reserve", "success")
	return sold, nil
}

// Release is the compensating decrement used when a later purchase step
// fails. It is never exposed to external callers.
func (l *InventoryLedger) Release(ctx context.Context, ticketTypeID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("inventory: release quantity must be >= 1, got %d", qty)
	}

	if err := l.inventory.Release(ctx, ticketTypeID, qty); err != nil {
		monitoring.TrackReservation("release", "error")
		slog.Error("inventory release failed", "ticket_type", ticketTypeID, "qty", qty, "error", err)
		return err
	}

	monitoring.TrackReservation("release", "success")
	return nil
}
