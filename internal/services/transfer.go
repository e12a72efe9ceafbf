package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"passaddis/internal/notify"
	"passaddis/internal/status"
	"passaddis/internal/store"
	"passaddis/models"
	"passaddis/monitoring"
	"passaddis/utils"
)

// TransferCoordinator drives the peer-to-peer transfer state machine:
// PENDING -> CLAIMED | CANCELLED | EXPIRED. Expiry is observed lazily on
// every read, so no background job is needed for correctness.
type TransferCoordinator struct {
	tickets   store.TicketRepository
	transfers store.TransferRepository
	notify    notify.Publisher
	ttl       time.Duration

	// now is replaceable in tests to drive expiry.
	now func() time.Time
}

func NewTransferCoordinator(tickets store.TicketRepository, transfers store.TransferRepository, publisher notify.Publisher, ttl time.Duration) *TransferCoordinator {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &TransferCoordinator{
		tickets:   tickets,
		transfers: transfers,
		notify:    publisher,
		ttl:       ttl,
		now:       time.Now,
	}
}

// InitiatedTransfer pairs the stored request with the plaintext claim code.
// The code exists only here; the store keeps its digest.
type InitiatedTransfer struct {
	Request   *models.TransferRequest `json:"request"`
	ClaimCode string                  `json:"claim_code"`
}

// Initiate creates a PENDING transfer offer for a ticket the sender owns.
// A missing ticket and a ticket owned by someone else are both reported as
// status.ErrTransferDenied so probing ticket ids reveals nothing.
func (c *TransferCoordinator) Initiate(ctx context.Context, senderID, ticketID, recipientContact string) (*InitiatedTransfer, error) {
	ticket, err := c.tickets.TicketByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			monitoring.TrackTransfer("initiate", "denied")
			return nil, status.ErrTransferDenied
		}
		return nil, err
	}
	if ticket.OwnerID != senderID {
		monitoring.TrackTransfer("initiate", "denied")
		return nil, status.ErrTransferDenied
	}
	if ticket.Status != models.TicketValid {
		monitoring.TrackTransfer("initiate", "not_transferable")
		return nil, status.ErrTicketNotTransferable
	}

	now := c.now().UTC()
	if pending, err := c.transfers.PendingTransferByTicket(ctx, ticketID); err != nil {
		return nil, err
	} else if pending != nil {
		if !pending.IsExpired(now) {
			monitoring.TrackTransfer("initiate", "already_pending")
			return nil, status.ErrTransferAlreadyPending
		}
		// Lapsed offer: retire it and allow a new one.
		if _, err := c.transfers.UpdateTransferStatus(ctx, pending.ID, models.TransferPending, models.TransferExpired); err != nil {
			return nil, err
		}
	}

	claimCode, err := utils.GenerateClaimCode()
	if err != nil {
		return nil, err
	}

	req := &models.TransferRequest{
		ID:               uuid.NewString(),
		TicketID:         ticketID,
		SenderID:         senderID,
		RecipientContact: recipientContact,
		ClaimCodeHash:    utils.HashClaimCode(claimCode),
		Status:           models.TransferPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(c.ttl),
	}
	if err := c.transfers.CreateTransfer(ctx, req); err != nil {
		if errors.Is(err, status.ErrTransferAlreadyPending) {
			monitoring.TrackTransfer("initiate", "already_pending")
		}
		return nil, err
	}

	monitoring.TrackTransfer("initiate", "success")
	slog.Info("transfer initiated", "request_id", req.ID, "ticket_id", ticketID, "expires_at", req.ExpiresAt)

	c.notify.Publish(notify.UserChannel(senderID), map[string]any{
		"type":       "transfer_initiated",
		"request_id": req.ID,
		"ticket_id":  ticketID,
		"expires_at": req.ExpiresAt,
	})

	return &InitiatedTransfer{Request: req, ClaimCode: claimCode}, nil
}

// Claim completes a pending transfer: the request is marked CLAIMED and the
// ticket's owner becomes the claimant, atomically.
func (c *TransferCoordinator) Claim(ctx context.Context, claimantID, claimCode string) (*models.Ticket, error) {
	req, err := c.transfers.TransferByClaimHash(ctx, utils.HashClaimCode(claimCode))
	if err != nil {
		monitoring.TrackTransfer("claim", "not_found")
		return nil, err
	}

	now := c.now().UTC()
	switch req.Status {
	case models.TransferExpired:
		monitoring.TrackTransfer("claim", "expired")
		return nil, status.ErrTransferExpired
	case models.TransferClaimed, models.TransferCancelled:
		monitoring.TrackTransfer("claim", "not_pending")
		return nil, status.ErrTransferNotPending
	}
	if req.IsExpired(now) {
		if _, err := c.transfers.UpdateTransferStatus(ctx, req.ID, models.TransferPending, models.TransferExpired); err != nil {
			return nil, err
		}
		monitoring.TrackTransfer("claim", "expired")
		return nil, status.ErrTransferExpired
	}

	// The ticket may have been consumed at the gate while the offer sat
	// open. ClaimTransfer enforces this atomically; the read here only
	// yields the precise rejection.
	if ticket, err := c.tickets.TicketByID(ctx, req.TicketID); err != nil {
		return nil, err
	} else if ticket.Status != models.TicketValid {
		monitoring.TrackTransfer("claim", "not_transferable")
		return nil, status.ErrTicketNotTransferable
	}

	won, err := c.transfers.ClaimTransfer(ctx, req.ID, req.TicketID, claimantID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent claim, cancel, expiry, or gate scan got there first.
		current, err := c.transfers.TransferByID(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case models.TransferExpired:
			monitoring.TrackTransfer("claim", "expired")
			return nil, status.ErrTransferExpired
		case models.TransferPending:
			// Still pending means the ticket guard failed inside the store.
			monitoring.TrackTransfer("claim", "not_transferable")
			return nil, status.ErrTicketNotTransferable
		}
		monitoring.TrackTransfer("claim", "not_pending")
		return nil, status.ErrTransferNotPending
	}

	ticket, err := c.tickets.TicketByID(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}

	monitoring.TrackTransfer("claim", "success")
	slog.Info("transfer claimed", "request_id", req.ID, "ticket_id", req.TicketID, "new_owner", claimantID)

	c.notify.Publish(notify.UserChannel(req.SenderID), map[string]any{
		"type":       "transfer_claimed",
		"request_id": req.ID,
		"ticket_id":  req.TicketID,
	})
	c.notify.Publish(notify.UserChannel(claimantID), map[string]any{
		"type":      "ticket_received",
		"ticket_id": req.TicketID,
	})

	return ticket, nil
}

// Cancel aborts the pending transfer for a ticket. Only the sender may
// cancel. Cancelling an already-lapsed offer is idempotent: it reports the
// EXPIRED request instead of erroring.
func (c *TransferCoordinator) Cancel(ctx context.Context, senderID, ticketID string) (*models.TransferRequest, error) {
	pending, err := c.transfers.PendingTransferByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		monitoring.TrackTransfer("cancel", "not_pending")
		return nil, status.ErrTransferNotPending
	}
	if pending.SenderID != senderID {
		monitoring.TrackTransfer("cancel", "denied")
		return nil, status.ErrNotTransferOwner
	}

	now := c.now().UTC()
	if pending.IsExpired(now) {
		if _, err := c.transfers.UpdateTransferStatus(ctx, pending.ID, models.TransferPending, models.TransferExpired); err != nil {
			return nil, err
		}
		pending.Status = models.TransferExpired
		monitoring.TrackTransfer("cancel", "expired")
		return pending, nil
	}

	won, err := c.transfers.UpdateTransferStatus(ctx, pending.ID, models.TransferPending, models.TransferCancelled)
	if err != nil {
		return nil, err
	}
	if !won {
		current, err := c.transfers.TransferByID(ctx, pending.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.TransferExpired {
			monitoring.TrackTransfer("cancel", "expired")
			return current, nil
		}
		monitoring.TrackTransfer("cancel", "not_pending")
		return nil, status.ErrTransferNotPending
	}

	pending.Status = models.TransferCancelled
	monitoring.TrackTransfer("cancel", "success")
	slog.Info("transfer cancelled", "request_id", pending.ID, "ticket_id", ticketID)
	return pending, nil
}

// PendingTransfers lists active offers the user sent plus offers addressed
// to any of the given contacts (the caller resolves the user's verified
// phone/email). Lapsed offers are flipped to EXPIRED on the way out and
// excluded.
func (c *TransferCoordinator) PendingTransfers(ctx context.Context, userID string, contacts []string) ([]*models.TransferRequest, error) {
	sent, err := c.transfers.TransfersBySender(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*models.TransferRequest
	for _, r := range sent {
		if r.Status == models.TransferPending && c.stillPending(ctx, r) {
			out = append(out, r)
		}
	}

	if len(contacts) > 0 {
		incoming, err := c.transfers.PendingTransfersByRecipient(ctx, contacts)
		if err != nil {
			return nil, err
		}
		for _, r := range incoming {
			if r.SenderID != userID && c.stillPending(ctx, r) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// TransferHistory lists terminal transfers involving the user, newest
// first. Lapsed pendings are reported (and persisted) as EXPIRED.
func (c *TransferCoordinator) TransferHistory(ctx context.Context, userID string) ([]*models.TransferRequest, error) {
	all, err := c.transfers.TransfersByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*models.TransferRequest
	for _, r := range all {
		if r.Status == models.TransferPending {
			if c.stillPending(ctx, r) {
				continue
			}
			r.Status = models.TransferExpired
		}
		out = append(out, r)
	}
	return out, nil
}

// SweepExpired retires long-lapsed pending offers for reporting hygiene.
// Purely housekeeping: every read path already treats them as EXPIRED.
func (c *TransferCoordinator) SweepExpired(ctx context.Context) (int, error) {
	lapsed, err := c.transfers.PendingTransfersExpiredBefore(ctx, c.now().UTC())
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, r := range lapsed {
		won, err := c.transfers.UpdateTransferStatus(ctx, r.ID, models.TransferPending, models.TransferExpired)
		if err != nil {
			return swept, err
		}
		if won {
			swept++
		}
	}
	if swept > 0 {
		slog.Info("swept expired transfers", "count", swept)
	}
	return swept, nil
}

// stillPending lazily expires a PENDING request past its TTL and reports
// whether it remains claimable.
func (c *TransferCoordinator) stillPending(ctx context.Context, r *models.TransferRequest) bool {
	if !r.IsExpired(c.now().UTC()) {
		return true
	}
	if _, err := c.transfers.UpdateTransferStatus(ctx, r.ID, models.TransferPending, models.TransferExpired); err != nil {
		slog.Error("lazy expiry failed", "request_id", r.ID, "error", err)
	}
	r.Status = models.TransferExpired
	return false
}
