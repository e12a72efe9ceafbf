package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passaddis/internal/status"
	"passaddis/internal/store"
	"passaddis/models"
)

func fivePercentFee(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(decimal.NewFromFloat(0.05)).Round(2)
}

func newPurchaseFixture() (*store.MemoryStore, *PurchaseOrchestrator) {
	s := store.NewMemoryStore()
	s.PutEvent(&models.Event{ID: "ev-1", Name: "Addis Jazz Night", Status: "PUBLISHED"})
	s.PutTicketType(&models.TicketType{
		ID: "tt-regular", EventID: "ev-1", Name: "Regular",
		Price: decimal.NewFromInt(500), Quantity: 100, MaxPerOrder: 6,
	})
	s.PutTicketType(&models.TicketType{
		ID: "tt-vip", EventID: "ev-1", Name: "VIP",
		Price: decimal.NewFromInt(1500), Quantity: 10, MaxPerOrder: 4,
	})
	s.PutTicketType(&models.TicketType{
		ID: "tt-scarce", EventID: "ev-1", Name: "Front Row",
		Price: decimal.NewFromInt(3000), Quantity: 1, MaxPerOrder: 2,
	})

	orchestrator := NewPurchaseOrchestrator(
		s, s, NewInventoryLedger(s), NewTicketIssuer(), fivePercentFee, nil,
	)
	return s, orchestrator
}

func soldCount(t *testing.T, s *store.MemoryStore, ticketTypeID string) int {
	t.Helper()
	tt, err := s.TicketTypeByID(context.Background(), ticketTypeID)
	require.NoError(t, err)
	return tt.Sold
}

func TestPurchaseOrchestrator_Purchase_ImmediateIssue(t *testing.T) {
	s, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	order, err := orchestrator.Purchase(ctx, "buyer-1", "ev-1", []LineItem{
		{TicketTypeID: "tt-regular", Quantity: 2},
		{TicketTypeID: "tt-vip", Quantity: 1},
	}, PurchaseOptions{IssueImmediately: true})

	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.Len(t, order.Tickets, 3)

	// 2*500 + 1*1500 = 2500, fee 5% = 125.
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(2500)), "subtotal %s", order.Subtotal)
	assert.True(t, order.Fee.Equal(decimal.NewFromInt(125)), "fee %s", order.Fee)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(2625)), "total %s", order.Total)

	assert.Equal(t, 2, soldCount(t, s, "tt-regular"))
	assert.Equal(t, 1, soldCount(t, s, "tt-vip"))

	for _, ticket := range order.Tickets {
		assert.Equal(t, models.TicketValid, ticket.Status)
		assert.Equal(t, "buyer-1", ticket.OwnerID)
		assert.NotEmpty(t, ticket.Code)
	}
}

func TestPurchaseOrchestrator_Purchase_AtomicRollbackOnShortfall(t *testing.T) {
	s, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	// tt-scarce has 1 unit; asking for 2 fails after tt-regular was already
	// reserved (ids sort reserve order: tt-regular, tt-scarce, tt-vip).
	_, err := orchestrator.Purchase(ctx, "buyer-1", "ev-1", []LineItem{
		{TicketTypeID: "tt-regular", Quantity: 3},
		{TicketTypeID: "tt-vip", Quantity: 2},
		{TicketTypeID: "tt-scarce", Quantity: 2},
	}, PurchaseOptions{IssueImmediately: true})

	require.ErrorIs(t, err, status.ErrInsufficientInventory)
	var insufficient *status.InsufficientInventoryError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "tt-scarce", insufficient.TicketTypeID)

	// Every reservation taken before the failure must be unwound.
	assert.Equal(t, 0, soldCount(t, s, "tt-regular"))
	assert.Equal(t, 0, soldCount(t, s, "tt-vip"))
	assert.Equal(t, 0, soldCount(t, s, "tt-scarce"))

	orders, err := orchestrator.Orders(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPurchaseOrchestrator_Purchase_RejectsBadCarts(t *testing.T) {
	_, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	cases := []struct {
		name  string
		items []LineItem
	}{
		{"empty cart", nil},
		{"zero quantity", []LineItem{{TicketTypeID: "tt-regular", Quantity: 0}}},
		{"over max per order", []LineItem{{TicketTypeID: "tt-vip", Quantity: 5}}},
		{"unknown ticket type", []LineItem{{TicketTypeID: "tt-ghost", Quantity: 1}}},
		{"duplicate line", []LineItem{
			{TicketTypeID: "tt-regular", Quantity: 1},
			{TicketTypeID: "tt-regular", Quantity: 2},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := orchestrator.Purchase(ctx, "buyer-1", "ev-1", tc.items, PurchaseOptions{IssueImmediately: true})
			assert.ErrorIs(t, err, status.ErrInvalidLineItem)
		})
	}
}

func TestPurchaseOrchestrator_Purchase_WrongEvent(t *testing.T) {
	s, orchestrator := newPurchaseFixture()
	s.PutEvent(&models.Event{ID: "ev-2", Name: "Timket Festival", Status: "PUBLISHED"})

	_, err := orchestrator.Purchase(context.Background(), "buyer-1", "ev-2", []LineItem{
		{TicketTypeID: "tt-regular", Quantity: 1},
	}, PurchaseOptions{IssueImmediately: true})

	assert.ErrorIs(t, err, status.ErrInvalidLineItem)
}

func TestPurchaseOrchestrator_Purchase_ConcurrentLastUnit(t *testing.T) {
	s, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = orchestrator.Purchase(ctx, "buyer-1", "ev-1", []LineItem{
				{TicketTypeID: "tt-scarce", Quantity: 1},
			}, PurchaseOptions{IssueImmediately: true})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, status.ErrInsufficientInventory)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, soldCount(t, s, "tt-scarce"))
}

func TestPurchaseOrchestrator_DeferredFlowAndConfirm(t *testing.T) {
	s, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	order, err := orchestrator.Purchase(ctx, "buyer-1", "ev-1", []LineItem{
		{TicketTypeID: "tt-regular", Quantity: 2},
	}, PurchaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Nil(t, order.PaidAt)
	assert.Empty(t, order.Tickets)

	// Inventory is held while the order awaits payment.
	assert.Equal(t, 2, soldCount(t, s, "tt-regular"))

	confirmed, err := orchestrator.ConfirmPaidOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, confirmed.Status)
	require.NotNil(t, confirmed.PaidAt)
	assert.Len(t, confirmed.Tickets, 2)

	// Replayed webhook: same paid order back, no extra tickets.
	again, err := orchestrator.ConfirmPaidOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, confirmed.PaidAt.Unix(), again.PaidAt.Unix())
	assert.Len(t, again.Tickets, 2)

	tickets, err := s.TicketsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestPurchaseOrchestrator_ConfirmPaidOrder_ConcurrentWebhooks(t *testing.T) {
	s, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	order, err := orchestrator.Purchase(ctx, "buyer-1", "ev-1", []LineItem{
		{TicketTypeID: "tt-vip", Quantity: 1},
	}, PurchaseOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orchestrator.ConfirmPaidOrder(ctx, order.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tickets, err := s.TicketsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
}

func TestPurchaseOrchestrator_Order_OwnershipChecked(t *testing.T) {
	_, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	order, err := orchestrator.Purchase(ctx, "buyer-1", "ev-1", []LineItem{
		{TicketTypeID: "tt-regular", Quantity: 1},
	}, PurchaseOptions{IssueImmediately: true})
	require.NoError(t, err)

	got, err := orchestrator.Order(ctx, "buyer-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	// Another buyer probing the id learns nothing.
	_, err = orchestrator.Order(ctx, "buyer-2", order.ID)
	assert.ErrorIs(t, err, status.ErrOrderNotFound)
}

func TestTicketIssuer_Mint_UniqueCodesWithinBatch(t *testing.T) {
	issuer := NewTicketIssuer()
	order := &models.Order{ID: "order-1", BuyerID: "buyer-1"}
	tt := &models.TicketType{ID: "tt-1", EventID: "ev-1", Price: decimal.NewFromInt(500)}

	tickets, err := issuer.Mint(order, tt, "buyer-1", 50)
	require.NoError(t, err)
	require.Len(t, tickets, 50)

	codes := make(map[string]bool, len(tickets))
	for _, ticket := range tickets {
		assert.False(t, codes[ticket.Code], "duplicate code in batch")
		codes[ticket.Code] = true
		assert.Equal(t, "order-1", ticket.OrderID)
		assert.Equal(t, models.TicketValid, ticket.Status)
	}
}
