package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	City        string    `json:"city"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	OrganizerID string    `json:"organizer_id"`
	Status      string    `json:"status"` // DRAFT, PUBLISHED, CANCELLED, ENDED
}

// TicketType is a priced admission category within one event with its own
// capacity. Sold is written only by the inventory ledger.
type TicketType struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Sold        int             `json:"sold"`
	MaxPerOrder int             `json:"max_per_order"`
}

func (t *TicketType) Remaining() int {
	return t.Quantity - t.Sold
}
