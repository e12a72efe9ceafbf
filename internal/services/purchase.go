package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"passaddis/internal/notify"
	"passaddis/internal/status"
	"passaddis/internal/store"
	"passaddis/models"
	"passaddis/monitoring"
)

// FeeFunc computes the platform service fee for an order subtotal. The fee
// policy is injected so the orchestrator stays ignorant of pricing rules.
type FeeFunc func(subtotal decimal.Decimal) decimal.Decimal

// LineItem is one entry of a purchase cart.
type LineItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// PurchaseOptions selects between the simplified single-step flow (tickets
// issued with the order, status PAID) and the gateway flow (order PENDING,
// tickets deferred to ConfirmPaidOrder).
type PurchaseOptions struct {
	IssueImmediately bool
}

// mintAttempts bounds retries after a scannable-code collision. Collisions
// are astronomically unlikely with 160-bit codes, so more than a couple of
// attempts means something else is wrong.
const mintAttempts = 3

// PurchaseOrchestrator turns a validated cart into an Order plus issued
// tickets, or fails with nothing reserved and nothing issued.
type PurchaseOrchestrator struct {
	catalog store.CatalogRepository
	orders  store.OrderRepository
	ledger  *InventoryLedger
	issuer  *TicketIssuer
	fee     FeeFunc
	notify  notify.Publisher
}

func NewPurchaseOrchestrator(
	catalog store.CatalogRepository,
	orders store.OrderRepository,
	ledger *InventoryLedger,
	issuer *TicketIssuer,
	fee FeeFunc,
	publisher notify.Publisher,
) *PurchaseOrchestrator {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &PurchaseOrchestrator{
		catalog: catalog,
		orders:  orders,
		ledger:  ledger,
		issuer:  issuer,
		fee:     fee,
		notify:  publisher,
	}
}

// Purchase validates the cart, reserves inventory in ascending ticket-type
// order, and persists the order. Any failure after a partial reservation
// releases every unit reserved by this call before returning, so a failed
// purchase is indistinguishable from one never attempted.
func (o *PurchaseOrchestrator) Purchase(ctx context.Context, buyerID, eventID string, items []LineItem, opts PurchaseOptions) (*models.Order, error) {
	started := time.Now()
	defer func() { monitoring.TrackPurchaseDuration(time.Since(started)) }()

	ticketTypes, err := o.validateItems(ctx, eventID, items)
	if err != nil {
		return nil, err
	}

	// Ascending ticket-type-ID order gives every concurrent purchase the
	// same global reservation order, so carts can never deadlock or livelock
	// against each other.
	sorted := append([]LineItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TicketTypeID < sorted[j].TicketTypeID })

	var reserved []LineItem
	for _, item := range sorted {
		if _, err := o.ledger.Reserve(ctx, item.TicketTypeID, item.Quantity); err != nil {
			o.releaseAll(ctx, reserved)
			return nil, err
		}
		reserved = append(reserved, item)
	}

	order := o.buildOrder(buyerID, eventID, sorted, ticketTypes, opts)

	var persistErr error
	if opts.IssueImmediately {
		persistErr = o.persistPaidOrder(ctx, order, ticketTypes)
	} else {
		persistErr = o.orders.CreatePurchase(ctx, order, nil)
	}
	if persistErr != nil {
		o.releaseAll(ctx, reserved)
		return nil, persistErr
	}

	if opts.IssueImmediately {
		o.notify.Publish(notify.UserChannel(buyerID), map[string]any{
			"type":     "order_paid",
			"order_id": order.ID,
			"tickets":  len(order.Tickets),
		})
	}

	slog.Info("purchase completed",
		"order_id", order.ID,
		"buyer_id", buyerID,
		"event_id", eventID,
		"status", order.Status,
		"total", order.Total,
	)
	return order, nil
}

// ConfirmPaidOrder issues tickets for a PENDING order once the payment
// callback adapter reports it paid. Safe to call more than once: exactly one
// caller wins the PENDING->PAID transition and mints tickets; later calls
// observe the paid order.
func (o *PurchaseOrchestrator) ConfirmPaidOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := o.orders.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderPaid:
		return order, nil
	case models.OrderCancelled:
		return nil, status.ErrOrderNotPending
	}

	ticketTypes := make(map[string]*models.TicketType, len(order.Lines))
	for _, line := range order.Lines {
		tt, err := o.catalog.TicketTypeByID(ctx, line.TicketTypeID)
		if err != nil {
			return nil, err
		}
		ticketTypes[line.TicketTypeID] = tt
	}

	for attempt := 1; ; attempt++ {
		tickets, err := o.mintForOrder(order, ticketTypes)
		if err != nil {
			return nil, err
		}

		won, err := o.orders.MarkOrderPaid(ctx, orderID, tickets, time.Now().UTC())
		if err != nil {
			if errors.Is(err, status.ErrCodeCollision) && attempt < mintAttempts {
				slog.Warn("ticket code collision, reminting", "order_id", orderID, "attempt", attempt)
				continue
			}
			return nil, err
		}
		if won {
			o.notify.Publish(notify.UserChannel(order.BuyerID), map[string]any{
				"type":     "payment_success",
				"order_id": orderID,
				"tickets":  len(tickets),
			})
		}
		break
	}

	return o.orders.OrderByID(ctx, orderID)
}

// Order returns an order with its tickets, ownership-checked.
func (o *PurchaseOrchestrator) Order(ctx context.Context, buyerID, orderID string) (*models.Order, error) {
	order, err := o.orders.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, status.ErrOrderNotFound
	}
	return order, nil
}

func (o *PurchaseOrchestrator) Orders(ctx context.Context, buyerID string) ([]*models.Order, error) {
	return o.orders.OrdersByBuyer(ctx, buyerID)
}

func (o *PurchaseOrchestrator) validateItems(ctx context.Context, eventID string, items []LineItem) (map[string]*models.TicketType, error) {
	if len(items) == 0 {
		return nil, &status.InvalidLineItemError{Reason: "empty cart"}
	}

	ticketTypes := make(map[string]*models.TicketType, len(items))
	for _, item := range items {
		if _, dup := ticketTypes[item.TicketTypeID]; dup {
			return nil, &status.InvalidLineItemError{
				TicketTypeID: item.TicketTypeID,
				Reason:       "duplicate line item",
			}
		}

		tt, err := o.catalog.TicketTypeByID(ctx, item.TicketTypeID)
		if err != nil {
			if errors.Is(err, status.ErrTicketTypeNotFound) {
				return nil, &status.InvalidLineItemError{
					TicketTypeID: item.TicketTypeID,
					Reason:       "unknown ticket type",
				}
			}
			return nil, err
		}
		if tt.EventID != eventID {
			return nil, &status.InvalidLineItemError{
				TicketTypeID: item.TicketTypeID,
				Reason:       "ticket type does not belong to event",
			}
		}
		if item.Quantity < 1 || item.Quantity > tt.MaxPerOrder {
			return nil, &status.InvalidLineItemError{
				TicketTypeID: item.TicketTypeID,
				Reason:       fmt.Sprintf("quantity %d outside 1..%d", item.Quantity, tt.MaxPerOrder),
			}
		}
		ticketTypes[item.TicketTypeID] = tt
	}
	return ticketTypes, nil
}

func (o *PurchaseOrchestrator) buildOrder(buyerID, eventID string, items []LineItem, ticketTypes map[string]*models.TicketType, opts PurchaseOptions) *models.Order {
	subtotal := decimal.Zero
	lines := make([]models.OrderLine, len(items))
	for i, item := range items {
		tt := ticketTypes[item.TicketTypeID]
		lines[i] = models.OrderLine{
			TicketTypeID: item.TicketTypeID,
			Quantity:     item.Quantity,
			UnitPrice:    tt.Price,
		}
		subtotal = subtotal.Add(tt.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	fee := o.fee(subtotal)

	now := time.Now().UTC()
	order := &models.Order{
		ID:        uuid.NewString(),
		BuyerID:   buyerID,
		EventID:   eventID,
		Status:    models.OrderPending,
		Subtotal:  subtotal,
		Fee:       fee,
		Total:     subtotal.Add(fee),
		Lines:     lines,
		CreatedAt: now,
	}
	if opts.IssueImmediately {
		order.Status = models.OrderPaid
		order.PaidAt = &now
	}
	return order
}

func (o *PurchaseOrchestrator) persistPaidOrder(ctx context.Context, order *models.Order, ticketTypes map[string]*models.TicketType) error {
	for attempt := 1; ; attempt++ {
		tickets, err := o.mintForOrder(order, ticketTypes)
		if err != nil {
			return err
		}
		err = o.orders.CreatePurchase(ctx, order, tickets)
		if err == nil {
			order.Tickets = tickets
			return nil
		}
		if errors.Is(err, status.ErrCodeCollision) && attempt < mintAttempts {
			slog.Warn("ticket code collision, reminting", "order_id", order.ID, "attempt", attempt)
			continue
		}
		return err
	}
}

func (o *PurchaseOrchestrator) mintForOrder(order *models.Order, ticketTypes map[string]*models.TicketType) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	for _, line := range order.Lines {
		tt, ok := ticketTypes[line.TicketTypeID]
		if !ok {
			return nil, status.ErrTicketTypeNotFound
		}
		minted, err := o.issuer.Mint(order, tt, order.BuyerID, line.Quantity)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, minted...)
	}
	return tickets, nil
}

// releaseAll unwinds reservations in the same deterministic order they were
// taken. Release failures are logged, not returned: the purchase already
// failed and the caller's error must name the original cause.
func (o *PurchaseOrchestrator) releaseAll(ctx context.Context, reserved []LineItem) {
	for _, item := range reserved {
		if err := o.ledger.Release(ctx, item.TicketTypeID, item.Quantity); err != nil {
			slog.Error("compensating release failed", "ticket_type", item.TicketTypeID, "qty", item.Quantity, "error", err)
		}
	}
}
