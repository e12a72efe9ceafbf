package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"passaddis/internal/status"
	"passaddis/models"
)

// PBStore implements Store on top of a PocketBase app. Conditional updates
// go through raw dbx UPDATEs with RowsAffected checks; multi-row steps run
// inside app.RunInTransaction.
type PBStore struct {
	app core.App
}

func NewPBStore(app core.App) *PBStore {
	return &PBStore{app: app}
}

func (s *PBStore) EventByID(_ context.Context, eventID string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrEventNotFound
		}
		return nil, fmt.Errorf("store: find event: %w", err)
	}
	return recordToEvent(record), nil
}

func (s *PBStore) TicketTypeByID(_ context.Context, ticketTypeID string) (*models.TicketType, error) {
	record, err := s.app.FindRecordById("ticket_types", ticketTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketTypeNotFound
		}
		return nil, fmt.Errorf("store: find ticket type: %w", err)
	}
	return recordToTicketType(record), nil
}

func (s *PBStore) TicketTypesByEvent(_ context.Context, eventID string) ([]*models.TicketType, error) {
	records, err := s.app.FindRecordsByFilter(
		"ticket_types",
		"event_id = {:eventId}",
		"id",
		-1,
		0,
		map[string]any{"eventId": eventID},
	)
	if err != nil {
		return nil, fmt.Errorf("store: list ticket types: %w", err)
	}
	out := make([]*models.TicketType, len(records))
	for i, r := range records {
		out[i] = recordToTicketType(r)
	}
	return out, nil
}

func (s *PBStore) Reserve(_ context.Context, ticketTypeID string, qty int) (int, error) {
	// The WHERE clause is the no-oversell guard; the read-check-write happens
	// as one statement on the database side.
	result, err := s.app.DB().NewQuery(
		"UPDATE ticket_types SET sold = sold + {:qty} WHERE id = {:id} AND sold + {:qty} <= quantity",
	).Bind(dbx.Params{"qty": qty, "id": ticketTypeID}).Execute()
	if err != nil {
		return 0, fmt.Errorf("store: reserve: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: reserve rows affected: %w", err)
	}
	if affected == 0 {
		record, err := s.app.FindRecordById("ticket_types", ticketTypeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, status.ErrTicketTypeNotFound
			}
			return 0, fmt.Errorf("store: reserve re-read: %w", err)
		}
		tt := recordToTicketType(record)
		return 0, &status.InsufficientInventoryError{
			TicketTypeID: ticketTypeID,
			Requested:    qty,
			Remaining:    tt.Quantity - tt.Sold,
		}
	}

	record, err := s.app.FindRecordById("ticket_types", ticketTypeID)
	if err != nil {
		return 0, fmt.Errorf("store: reserve re-read: %w", err)
	}
	return record.GetInt("sold"), nil
}

func (s *PBStore) Release(_ context.Context, ticketTypeID string, qty int) error {
	_, err := s.app.DB().NewQuery(
		"UPDATE ticket_types SET sold = MAX(sold - {:qty}, 0) WHERE id = {:id}",
	).Bind(dbx.Params{"qty": qty, "id": ticketTypeID}).Execute()
	if err != nil {
		return fmt.Errorf("store: release: %w", err)
	}
	return nil
}

func (s *PBStore) CreatePurchase(_ context.Context, order *models.Order, tickets []*models.Ticket) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		if err := saveOrder(txApp, order); err != nil {
			return err
		}
		return saveTickets(txApp, tickets)
	})
}

func (s *PBStore) OrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	record, err := s.app.FindRecordById("orders", orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrOrderNotFound
		}
		return nil, fmt.Errorf("store: find order: %w", err)
	}
	order := recordToOrder(record)
	order.Tickets, err = s.TicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PBStore) OrdersByBuyer(_ context.Context, buyerID string) ([]*models.Order, error) {
	records, err := s.app.FindRecordsByFilter(
		"orders",
		"buyer_id = {:buyerId}",
		"-created_at",
		-1,
		0,
		map[string]any{"buyerId": buyerID},
	)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	out := make([]*models.Order, len(records))
	for i, r := range records {
		out[i] = recordToOrder(r)
	}
	return out, nil
}

func (s *PBStore) MarkOrderPaid(_ context.Context, orderID string, tickets []*models.Ticket, at time.Time) (bool, error) {
	won := false
	err := s.app.RunInTransaction(func(txApp core.App) error {
		result, err := txApp.DB().NewQuery(
			"UPDATE orders SET status = {:paid}, paid_at = {:at} WHERE id = {:id} AND status = {:pending}",
		).Bind(dbx.Params{
			"paid":    string(models.OrderPaid),
			"pending": string(models.OrderPending),
			"at":      at.UTC().Format(types.DefaultDateLayout),
			"id":      orderID,
		}).Execute()
		if err != nil {
			return fmt.Errorf("store: mark order paid: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		won = true
		return saveTickets(txApp, tickets)
	})
	if err != nil {
		return false, err
	}
	if !won {
		// Distinguish "someone else paid it" from "no such order".
		if _, err := s.app.FindRecordById("orders", orderID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, status.ErrOrderNotFound
			}
			return false, fmt.Errorf("store: mark order paid re-read: %w", err)
		}
	}
	return won, nil
}

func (s *PBStore) CreateTickets(_ context.Context, tickets []*models.Ticket) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return saveTickets(txApp, tickets)
	})
}

func (s *PBStore) TicketByID(_ context.Context, ticketID string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("store: find ticket: %w", err)
	}
	return recordToTicket(record), nil
}

func (s *PBStore) TicketByCode(_ context.Context, code string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"tickets",
		"code = {:code}",
		map[string]any{"code": code},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("store: find ticket by code: %w", err)
	}
	return recordToTicket(record), nil
}

func (s *PBStore) TicketsByOwner(_ context.Context, ownerID string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"owner_id = {:ownerId}",
		"-created_at",
		-1,
		0,
		map[string]any{"ownerId": ownerID},
	)
	if err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}
	out := make([]*models.Ticket, len(records))
	for i, r := range records {
		out[i] = recordToTicket(r)
	}
	return out, nil
}

func (s *PBStore) TicketsByOrder(_ context.Context, orderID string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"order_id = {:orderId}",
		"id",
		-1,
		0,
		map[string]any{"orderId": orderID},
	)
	if err != nil {
		return nil, fmt.Errorf("store: list order tickets: %w", err)
	}
	out := make([]*models.Ticket, len(records))
	for i, r := range records {
		out[i] = recordToTicket(r)
	}
	return out, nil
}

func (s *PBStore) MarkTicketUsed(_ context.Context, ticketID string, at time.Time) (bool, error) {
	result, err := s.app.DB().NewQuery(
		"UPDATE tickets SET status = {:used}, used_at = {:at} WHERE id = {:id} AND status = {:valid}",
	).Bind(dbx.Params{
		"used":  string(models.TicketUsed),
		"valid": string(models.TicketValid),
		"at":    at.UTC().Format(types.DefaultDateLayout),
		"id":    ticketID,
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("store: mark ticket used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *PBStore) CreateTransfer(_ context.Context, req *models.TransferRequest) error {
	collection, err := s.app.FindCollectionByNameOrId("transfers")
	if err != nil {
		return fmt.Errorf("store: transfers collection: %w", err)
	}
	record := core.NewRecord(collection)
	record.Set("id", req.ID)
	record.Set("ticket_id", req.TicketID)
	record.Set("sender_id", req.SenderID)
	record.Set("recipient_contact", req.RecipientContact)
	record.Set("claim_code_hash", req.ClaimCodeHash)
	record.Set("status", string(req.Status))
	record.Set("claimed_by", req.ClaimedBy)
	record.Set("created_at", req.CreatedAt.UTC().Format(types.DefaultDateLayout))
	record.Set("expires_at", req.ExpiresAt.UTC().Format(types.DefaultDateLayout))
	if err := s.app.Save(record); err != nil {
		// The partial unique index on (ticket_id) WHERE status = 'PENDING'
		// rejects a second live offer; re-check to map the violation.
		if pending, perr := s.PendingTransferByTicket(context.Background(), req.TicketID); perr == nil && pending != nil {
			return status.ErrTransferAlreadyPending
		}
		return fmt.Errorf("store: save transfer: %w", err)
	}
	return nil
}

func (s *PBStore) PendingTransfersExpiredBefore(_ context.Context, t time.Time) ([]*models.TransferRequest, error) {
	return s.listTransfers(
		"status = {:pending} && expires_at <= {:cutoff}",
		map[string]any{
			"pending": string(models.TransferPending),
			"cutoff":  t.UTC().Format(types.DefaultDateLayout),
		},
	)
}

func (s *PBStore) TransferByID(_ context.Context, requestID string) (*models.TransferRequest, error) {
	record, err := s.app.FindRecordById("transfers", requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTransferNotFound
		}
		return nil, fmt.Errorf("store: find transfer: %w", err)
	}
	return recordToTransfer(record), nil
}

func (s *PBStore) TransferByClaimHash(_ context.Context, claimHash string) (*models.TransferRequest, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"transfers",
		"claim_code_hash = {:hash}",
		map[string]any{"hash": claimHash},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTransferNotFound
		}
		return nil, fmt.Errorf("store: find transfer by claim hash: %w", err)
	}
	return recordToTransfer(record), nil
}

func (s *PBStore) PendingTransferByTicket(_ context.Context, ticketID string) (*models.TransferRequest, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"transfers",
		"ticket_id = {:ticketId} && status = {:pending}",
		map[string]any{"ticketId": ticketID, "pending": string(models.TransferPending)},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find pending transfer: %w", err)
	}
	return recordToTransfer(record), nil
}

func (s *PBStore) UpdateTransferStatus(_ context.Context, requestID string, from, to models.TransferStatus) (bool, error) {
	result, err := s.app.DB().NewQuery(
		"UPDATE transfers SET status = {:to} WHERE id = {:id} AND status = {:from}",
	).Bind(dbx.Params{
		"to":   string(to),
		"from": string(from),
		"id":   requestID,
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("store: update transfer status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *PBStore) ClaimTransfer(_ context.Context, requestID, ticketID, newOwnerID string, at time.Time) (bool, error) {
	won := false
	err := s.app.RunInTransaction(func(txApp core.App) error {
		result, err := txApp.DB().NewQuery(
			"UPDATE transfers SET status = {:claimed}, claimed_by = {:owner} WHERE id = {:id} AND status = {:pending}",
		).Bind(dbx.Params{
			"claimed": string(models.TransferClaimed),
			"pending": string(models.TransferPending),
			"owner":   newOwnerID,
			"id":      requestID,
		}).Execute()
		if err != nil {
			return fmt.Errorf("store: claim transfer: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}

		// Ownership reassignment must commit together with the status flip,
		// and only while the ticket is still VALID. A ticket scanned at the
		// gate mid-offer aborts the claim.
		result, err = txApp.DB().NewQuery(
			"UPDATE tickets SET owner_id = {:owner} WHERE id = {:ticketId} AND status = {:valid}",
		).Bind(dbx.Params{
			"owner":    newOwnerID,
			"ticketId": ticketID,
			"valid":    string(models.TicketValid),
		}).Execute()
		if err != nil {
			return fmt.Errorf("store: reassign ticket owner: %w", err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errClaimTicketNotValid
		}
		won = true
		return nil
	})
	if errors.Is(err, errClaimTicketNotValid) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return won, nil
}

// errClaimTicketNotValid aborts the claim transaction so the already-applied
// transfer status flip rolls back when the ticket guard fails.
var errClaimTicketNotValid = errors.New("store: claim: ticket not valid")

func (s *PBStore) TransfersBySender(_ context.Context, senderID string) ([]*models.TransferRequest, error) {
	return s.listTransfers("sender_id = {:userId}", map[string]any{"userId": senderID})
}

func (s *PBStore) TransfersByParticipant(_ context.Context, userID string) ([]*models.TransferRequest, error) {
	return s.listTransfers(
		"sender_id = {:userId} || claimed_by = {:userId}",
		map[string]any{"userId": userID},
	)
}

func (s *PBStore) PendingTransfersByRecipient(_ context.Context, contacts []string) ([]*models.TransferRequest, error) {
	var out []*models.TransferRequest
	for _, contact := range contacts {
		list, err := s.listTransfers(
			"recipient_contact = {:contact} && status = {:pending}",
			map[string]any{"contact": contact, "pending": string(models.TransferPending)},
		)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

func (s *PBStore) listTransfers(filter string, params map[string]any) ([]*models.TransferRequest, error) {
	records, err := s.app.FindRecordsByFilter("transfers", filter, "-created_at", -1, 0, params)
	if err != nil {
		return nil, fmt.Errorf("store: list transfers: %w", err)
	}
	out := make([]*models.TransferRequest, len(records))
	for i, r := range records {
		out[i] = recordToTransfer(r)
	}
	return out, nil
}

func saveOrder(app core.App, order *models.Order) error {
	collection, err := app.FindCollectionByNameOrId("orders")
	if err != nil {
		return fmt.Errorf("store: orders collection: %w", err)
	}
	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("store: marshal order lines: %w", err)
	}
	record := core.NewRecord(collection)
	record.Set("id", order.ID)
	record.Set("buyer_id", order.BuyerID)
	record.Set("event_id", order.EventID)
	record.Set("status", string(order.Status))
	record.Set("subtotal", order.Subtotal.String())
	record.Set("fee", order.Fee.String())
	record.Set("total", order.Total.String())
	record.Set("lines", string(lines))
	record.Set("created_at", order.CreatedAt.UTC().Format(types.DefaultDateLayout))
	if order.PaidAt != nil {
		record.Set("paid_at", order.PaidAt.UTC().Format(types.DefaultDateLayout))
	}
	if err := app.Save(record); err != nil {
		return fmt.Errorf("store: save order: %w", err)
	}
	return nil
}

func saveTickets(app core.App, tickets []*models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	collection, err := app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return fmt.Errorf("store: tickets collection: %w", err)
	}
	for _, t := range tickets {
		record := core.NewRecord(collection)
		record.Set("id", t.ID)
		record.Set("order_id", t.OrderID)
		record.Set("ticket_type_id", t.TicketTypeID)
		record.Set("event_id", t.EventID)
		record.Set("owner_id", t.OwnerID)
		record.Set("code", t.Code)
		record.Set("price", t.Price.String())
		record.Set("status", string(t.Status))
		record.Set("created_at", t.CreatedAt.UTC().Format(types.DefaultDateLayout))
		if err := app.Save(record); err != nil {
			if codeTaken(app, t.Code) {
				return status.ErrCodeCollision
			}
			return fmt.Errorf("store: save ticket: %w", err)
		}
	}
	return nil
}

// codeTaken re-checks after a failed insert whether the unique code index
// caused the failure.
func codeTaken(app core.App, code string) bool {
	_, err := app.FindFirstRecordByFilter("tickets", "code = {:code}", map[string]any{"code": code})
	return err == nil
}

func recordToEvent(r *core.Record) *models.Event {
	return &models.Event{
		ID:          r.Id,
		Name:        r.GetString("name"),
		Description: r.GetString("description"),
		Venue:       r.GetString("venue"),
		City:        r.GetString("city"),
		StartTime:   r.GetDateTime("start_time").Time(),
		EndTime:     r.GetDateTime("end_time").Time(),
		OrganizerID: r.GetString("organizer_id"),
		Status:      r.GetString("status"),
	}
}

func recordToTicketType(r *core.Record) *models.TicketType {
	return &models.TicketType{
		ID:          r.Id,
		EventID:     r.GetString("event_id"),
		Name:        r.GetString("name"),
		Price:       decFromRecord(r, "price"),
		Quantity:    r.GetInt("quantity"),
		Sold:        r.GetInt("sold"),
		MaxPerOrder: r.GetInt("max_per_order"),
	}
}

func recordToOrder(r *core.Record) *models.Order {
	order := &models.Order{
		ID:        r.Id,
		BuyerID:   r.GetString("buyer_id"),
		EventID:   r.GetString("event_id"),
		Status:    models.OrderStatus(r.GetString("status")),
		Subtotal:  decFromRecord(r, "subtotal"),
		Fee:       decFromRecord(r, "fee"),
		Total:     decFromRecord(r, "total"),
		CreatedAt: r.GetDateTime("created_at").Time(),
	}
	if raw := r.GetString("lines"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &order.Lines)
	}
	if paidAt := r.GetDateTime("paid_at"); !paidAt.IsZero() {
		t := paidAt.Time()
		order.PaidAt = &t
	}
	return order
}

func recordToTicket(r *core.Record) *models.Ticket {
	ticket := &models.Ticket{
		ID:           r.Id,
		OrderID:      r.GetString("order_id"),
		TicketTypeID: r.GetString("ticket_type_id"),
		EventID:      r.GetString("event_id"),
		OwnerID:      r.GetString("owner_id"),
		Code:         r.GetString("code"),
		Price:        decFromRecord(r, "price"),
		Status:       models.TicketStatus(r.GetString("status")),
		CreatedAt:    r.GetDateTime("created_at").Time(),
	}
	if usedAt := r.GetDateTime("used_at"); !usedAt.IsZero() {
		t := usedAt.Time()
		ticket.UsedAt = &t
	}
	return ticket
}

func recordToTransfer(r *core.Record) *models.TransferRequest {
	return &models.TransferRequest{
		ID:               r.Id,
		TicketID:         r.GetString("ticket_id"),
		SenderID:         r.GetString("sender_id"),
		RecipientContact: r.GetString("recipient_contact"),
		ClaimCodeHash:    r.GetString("claim_code_hash"),
		Status:           models.TransferStatus(r.GetString("status")),
		ClaimedBy:        r.GetString("claimed_by"),
		CreatedAt:        r.GetDateTime("created_at").Time(),
		ExpiresAt:        r.GetDateTime("expires_at").Time(),
	}
}

// Money columns are stored as decimal strings to keep birr amounts exact.
func decFromRecord(r *core.Record, field string) decimal.Decimal {
	raw := r.GetString(field)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}
