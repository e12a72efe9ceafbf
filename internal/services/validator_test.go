package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passaddis/internal/status"
	"passaddis/internal/store"
	"passaddis/models"
)

func newValidatorFixture(t *testing.T) (*store.MemoryStore, *TicketValidator, *models.Ticket) {
	t.Helper()
	s, orchestrator := newPurchaseFixture()

	order, err := orchestrator.Purchase(context.Background(), "buyer-1", "ev-1", []LineItem{
		{TicketTypeID: "tt-regular", Quantity: 1},
	}, PurchaseOptions{IssueImmediately: true})
	require.NoError(t, err)
	require.Len(t, order.Tickets, 1)

	return s, NewTicketValidator(s, s), order.Tickets[0]
}

func TestTicketValidator_Validate_Success(t *testing.T) {
	s, validator, ticket := newValidatorFixture(t)

	result, err := validator.Validate(context.Background(), ticket.Code)

	require.NoError(t, err)
	assert.Equal(t, ticket.ID, result.Ticket.ID)
	assert.Equal(t, models.TicketUsed, result.Ticket.Status)
	require.NotNil(t, result.Ticket.UsedAt)
	require.NotNil(t, result.Event)
	assert.Equal(t, "Addis Jazz Night", result.Event.Name)
	require.NotNil(t, result.TicketType)
	assert.Equal(t, "Regular", result.TicketType.Name)

	stored, err := s.TicketByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, stored.Status)
}

func TestTicketValidator_Validate_UnknownCode(t *testing.T) {
	_, validator, _ := newValidatorFixture(t)

	_, err := validator.Validate(context.Background(), "no-such-code")

	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}

func TestTicketValidator_Validate_SecondScanRejected(t *testing.T) {
	_, validator, ticket := newValidatorFixture(t)
	ctx := context.Background()

	first, err := validator.Validate(ctx, ticket.Code)
	require.NoError(t, err)

	_, err = validator.Validate(ctx, ticket.Code)
	require.ErrorIs(t, err, status.ErrTicketAlreadyUsed)

	// The rejection reports the winning scan's timestamp unchanged.
	var alreadyUsed *status.AlreadyUsedError
	require.True(t, errors.As(err, &alreadyUsed))
	require.NotNil(t, alreadyUsed.UsedAt)
	assert.Equal(t, first.Ticket.UsedAt.Unix(), alreadyUsed.UsedAt.Unix())
}

// Two gates scanning the same QR simultaneously: exactly one admission.
func TestTicketValidator_Validate_ConcurrentAtMostOnce(t *testing.T) {
	_, validator, ticket := newValidatorFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = validator.Validate(ctx, ticket.Code)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range results {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, status.ErrTicketAlreadyUsed)
		}
	}
	assert.Equal(t, 1, admitted)
}

func TestTicketValidator_Validate_NonValidStatusRejected(t *testing.T) {
	s := store.NewMemoryStore()
	s.PutEvent(&models.Event{ID: "ev-1", Name: "Addis Jazz Night", Status: "PUBLISHED"})
	require.NoError(t, s.CreateTickets(context.Background(), []*models.Ticket{{
		ID:      "tk-cancelled",
		EventID: "ev-1",
		OwnerID: "buyer-1",
		Code:    "cancelled-code",
		Status:  models.TicketCancelled,
	}}))
	validator := NewTicketValidator(s, s)

	_, err := validator.Validate(context.Background(), "cancelled-code")

	require.ErrorIs(t, err, status.ErrTicketNotRedeemable)
	var notRedeemable *status.NotRedeemableError
	require.True(t, errors.As(err, &notRedeemable))
	assert.Equal(t, string(models.TicketCancelled), notRedeemable.Status)
}
