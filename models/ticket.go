package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "VALID"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketExpired   TicketStatus = "EXPIRED"
)

// Ticket is one admission credential. Code is the opaque scannable token
// checked at venue entry; it is the sole credential, so it is generated from
// crypto/rand and never derived from the ticket or order id.
type Ticket struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	TicketTypeID string          `json:"ticket_type_id"`
	EventID      string          `json:"event_id"`
	OwnerID      string          `json:"owner_id"`
	Code         string          `json:"code"`
	Price        decimal.Decimal `json:"price"`
	Status       TicketStatus    `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UsedAt       *time.Time      `json:"used_at,omitempty"`
}

func (t *Ticket) IsValid() bool {
	return t.Status == TicketValid
}
