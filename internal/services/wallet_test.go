package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passaddis/internal/status"
)

func TestWallet_Ticket(t *testing.T) {
	s, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	order, err := orchestrator.Purchase(ctx, "buyer-1", "ev-1", []LineItem{
		{TicketTypeID: "tt-regular", Quantity: 1},
	}, PurchaseOptions{IssueImmediately: true})
	require.NoError(t, err)

	wallet := NewWallet(s)

	ticket, err := wallet.Ticket(ctx, "buyer-1", order.Tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, order.Tickets[0].ID, ticket.ID)
	assert.Equal(t, order.Tickets[0].Code, ticket.Code)

	// Someone else's ticket and a missing id look identical.
	_, err = wallet.Ticket(ctx, "buyer-2", order.Tickets[0].ID)
	assert.ErrorIs(t, err, status.ErrTicketNotFound)

	_, err = wallet.Ticket(ctx, "buyer-1", "no-such-ticket")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}

func TestWallet_Tickets(t *testing.T) {
	s, orchestrator := newPurchaseFixture()
	ctx := context.Background()

	order, err := orchestrator.Purchase(ctx, "buyer-1", "ev-1", []LineItem{
		{TicketTypeID: "tt-regular", Quantity: 2},
	}, PurchaseOptions{IssueImmediately: true})
	require.NoError(t, err)

	wallet := NewWallet(s)

	tickets, err := wallet.Tickets(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, tickets, len(order.Tickets))

	empty, err := wallet.Tickets(ctx, "buyer-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
