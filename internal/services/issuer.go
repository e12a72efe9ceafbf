package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"passaddis/models"
	"passaddis/monitoring"
	"passaddis/utils"
)

// TicketIssuer mints Ticket records with crypto-random scannable codes.
// Persistence is left to the orchestrator so issuance can share the order's
// transaction; Mint only builds records.
type TicketIssuer struct{}

func NewTicketIssuer() *TicketIssuer {
	return &TicketIssuer{}
}

// Mint builds count VALID tickets for one order line. Codes are generated
// independently per ticket; a duplicate within the batch is regenerated on
// the spot, a collision with a persisted code surfaces later as
// status.ErrCodeCollision and the orchestrator mints a fresh batch.
func (i *TicketIssuer) Mint(order *models.Order, tt *models.TicketType, ownerID string, count int) ([]*models.Ticket, error) {
	if count < 1 {
		return nil, fmt.Errorf("issuer: count must be >= 1, got %d", count)
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, count)
	tickets := make([]*models.Ticket, 0, count)

	for len(tickets) < count {
		code, err := utils.GenerateTicketCode()
		if err != nil {
			return nil, fmt.Errorf("issuer: generate code: %w", err)
		}
		if seen[code] {
			continue
		}
		seen[code] = true

		tickets = append(tickets, &models.Ticket{
			ID:           uuid.NewString(),
			OrderID:      order.ID,
			TicketTypeID: tt.ID,
			EventID:      tt.EventID,
			OwnerID:      ownerID,
			Code:         code,
			Price:        tt.Price,
			Status:       models.TicketValid,
			CreatedAt:    now,
		})
	}

	monitoring.TrackTicketsIssued(count)
	return tickets, nil
}
