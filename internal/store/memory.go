package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"passaddis/internal/status"
	"passaddis/models"
)

// MemoryStore is a mutex-guarded in-process implementation of Store. It
// backs the deterministic service tests and the no-database dev mode. All
// reads return copies so callers can never mutate shared rows.
type MemoryStore struct {
	mu sync.Mutex

	events        map[string]*models.Event
	ticketTypes   map[string]*models.TicketType
	orders        map[string]*models.Order
	tickets       map[string]*models.Ticket
	ticketsByCode map[string]string // code -> ticket id
	transfers     map[string]*models.TransferRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[string]*models.Event),
		ticketTypes:   make(map[string]*models.TicketType),
		orders:        make(map[string]*models.Order),
		tickets:       make(map[string]*models.Ticket),
		ticketsByCode: make(map[string]string),
		transfers:     make(map[string]*models.TransferRequest),
	}
}

// PutEvent seeds or replaces a catalog event.
func (s *MemoryStore) PutEvent(ev *models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events[ev.ID] = &cp
}

// PutTicketType seeds or replaces a ticket type.
func (s *MemoryStore) PutTicketType(tt *models.TicketType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tt
	s.ticketTypes[tt.ID] = &cp
}

func (s *MemoryStore) EventByID(_ context.Context, eventID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *MemoryStore) TicketTypeByID(_ context.Context, ticketTypeID string) (*models.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return nil, status.ErrTicketTypeNotFound
	}
	cp := *tt
	return &cp, nil
}

func (s *MemoryStore) TicketTypesByEvent(_ context.Context, eventID string) ([]*models.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TicketType
	for _, tt := range s.ticketTypes {
		if tt.EventID == eventID {
			cp := *tt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Reserve(_ context.Context, ticketTypeID string, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return 0, status.ErrTicketTypeNotFound
	}
	if tt.Sold+qty > tt.Quantity {
		return 0, &status.InsufficientInventoryError{
			TicketTypeID: ticketTypeID,
			Requested:    qty,
			Remaining:    tt.Quantity - tt.Sold,
		}
	}
	tt.Sold += qty
	return tt.Sold, nil
}

func (s *MemoryStore) Release(_ context.Context, ticketTypeID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tt, ok := s.ticketTypes[ticketTypeID]
	if !ok {
		return status.ErrTicketTypeNotFound
	}
	tt.Sold -= qty
	if tt.Sold < 0 {
		tt.Sold = 0
	}
	return nil
}

func (s *MemoryStore) CreatePurchase(_ context.Context, order *models.Order, tickets []*models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tickets {
		if _, taken := s.ticketsByCode[t.Code]; taken {
			return status.ErrCodeCollision
		}
	}

	cp := *order
	cp.Tickets = nil
	cp.Lines = append([]models.OrderLine(nil), order.Lines...)
	s.orders[order.ID] = &cp

	s.insertTicketsLocked(tickets)
	return nil
}

func (s *MemoryStore) OrderByID(_ context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, status.ErrOrderNotFound
	}
	return s.copyOrderLocked(o), nil
}

func (s *MemoryStore) OrdersByBuyer(_ context.Context, buyerID string) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			out = append(out, s.copyOrderLocked(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkOrderPaid(_ context.Context, orderID string, tickets []*models.Ticket, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return false, status.ErrOrderNotFound
	}
	if o.Status != models.OrderPending {
		return false, nil
	}
	for _, t := range tickets {
		if _, taken := s.ticketsByCode[t.Code]; taken {
			return false, status.ErrCodeCollision
		}
	}

	o.Status = models.OrderPaid
	paidAt := at
	o.PaidAt = &paidAt
	s.insertTicketsLocked(tickets)
	return true, nil
}

func (s *MemoryStore) CreateTickets(_ context.Context, tickets []*models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tickets {
		if _, taken := s.ticketsByCode[t.Code]; taken {
			return status.ErrCodeCollision
		}
	}
	s.insertTicketsLocked(tickets)
	return nil
}

func (s *MemoryStore) insertTicketsLocked(tickets []*models.Ticket) {
	for _, t := range tickets {
		cp := *t
		s.tickets[t.ID] = &cp
		s.ticketsByCode[t.Code] = t.ID
	}
}

func (s *MemoryStore) TicketByID(_ context.Context, ticketID string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) TicketByCode(_ context.Context, code string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ticketsByCode[code]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	cp := *s.tickets[id]
	return &cp, nil
}

func (s *MemoryStore) TicketsByOwner(_ context.Context, ownerID string) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Ticket
	for _, t := range s.tickets {
		if t.OwnerID == ownerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) TicketsByOrder(_ context.Context, orderID string) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Ticket
	for _, t := range s.tickets {
		if t.OrderID == orderID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) MarkTicketUsed(_ context.Context, ticketID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return false, status.ErrTicketNotFound
	}
	if t.Status != models.TicketValid {
		return false, nil
	}
	t.Status = models.TicketUsed
	usedAt := at
	t.UsedAt = &usedAt
	return true, nil
}

func (s *MemoryStore) CreateTransfer(_ context.Context, req *models.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.transfers {
		if r.TicketID == req.TicketID && r.Status == models.TransferPending {
			return status.ErrTransferAlreadyPending
		}
	}
	cp := *req
	s.transfers[req.ID] = &cp
	return nil
}

func (s *MemoryStore) TransferByID(_ context.Context, requestID string) (*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.transfers[requestID]
	if !ok {
		return nil, status.ErrTransferNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) TransferByClaimHash(_ context.Context, claimHash string) (*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.transfers {
		if r.ClaimCodeHash == claimHash {
			cp := *r
			return &cp, nil
		}
	}
	return nil, status.ErrTransferNotFound
}

// PendingTransferByTicket returns nil, nil when no PENDING request exists.
func (s *MemoryStore) PendingTransferByTicket(_ context.Context, ticketID string) (*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.transfers {
		if r.TicketID == ticketID && r.Status == models.TransferPending {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateTransferStatus(_ context.Context, requestID string, from, to models.TransferStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.transfers[requestID]
	if !ok {
		return false, status.ErrTransferNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (s *MemoryStore) ClaimTransfer(_ context.Context, requestID, ticketID, newOwnerID string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.transfers[requestID]
	if !ok {
		return false, status.ErrTransferNotFound
	}
	t, ok := s.tickets[ticketID]
	if !ok {
		return false, status.ErrTicketNotFound
	}
	if r.Status != models.TransferPending {
		return false, nil
	}
	// A ticket consumed at the gate mid-offer must not change hands.
	if t.Status != models.TicketValid {
		return false, nil
	}

	r.Status = models.TransferClaimed
	r.ClaimedBy = newOwnerID
	t.OwnerID = newOwnerID
	return true, nil
}

func (s *MemoryStore) TransfersBySender(_ context.Context, senderID string) ([]*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TransferRequest
	for _, r := range s.transfers {
		if r.SenderID == senderID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortTransfersNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) TransfersByParticipant(_ context.Context, userID string) ([]*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TransferRequest
	for _, r := range s.transfers {
		if r.SenderID == userID || r.ClaimedBy == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortTransfersNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) PendingTransfersByRecipient(_ context.Context, contacts []string) ([]*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contactSet := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		contactSet[c] = true
	}
	var out []*models.TransferRequest
	for _, r := range s.transfers {
		if r.Status == models.TransferPending && contactSet[r.RecipientContact] {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortTransfersNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) PendingTransfersExpiredBefore(_ context.Context, t time.Time) ([]*models.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TransferRequest
	for _, r := range s.transfers {
		if r.Status == models.TransferPending && !r.ExpiresAt.After(t) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortTransfersNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) copyOrderLocked(o *models.Order) *models.Order {
	cp := *o
	cp.Lines = append([]models.OrderLine(nil), o.Lines...)
	cp.Tickets = nil
	for _, t := range s.tickets {
		if t.OrderID == o.ID {
			tc := *t
			cp.Tickets = append(cp.Tickets, &tc)
		}
	}
	sort.Slice(cp.Tickets, func(i, j int) bool { return cp.Tickets[i].ID < cp.Tickets[j].ID })
	return &cp
}

func sortTransfersNewestFirst(list []*models.TransferRequest) {
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}
