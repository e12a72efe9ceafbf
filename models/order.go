package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

type Order struct {
	ID        string          `json:"id"`
	BuyerID   string          `json:"buyer_id"`
	EventID   string          `json:"event_id"`
	Status    OrderStatus     `json:"status"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Fee       decimal.Decimal `json:"fee"`
	Total     decimal.Decimal `json:"total"`
	Lines     []OrderLine     `json:"lines"`
	Tickets   []*Ticket       `json:"tickets,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

type OrderLine struct {
	TicketTypeID string          `json:"ticket_type_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}
