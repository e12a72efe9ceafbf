package models

import "time"

type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferClaimed   TransferStatus = "CLAIMED"
	TransferCancelled TransferStatus = "CANCELLED"
	TransferExpired   TransferStatus = "EXPIRED"
)

// TransferRequest is an offer by a ticket's current owner to hand it to
// another person, completed with a single-use claim code. Only the SHA3-256
// digest of the code is stored; the plaintext is returned to the sender once
// at creation.
type TransferRequest struct {
	ID               string         `json:"id"`
	TicketID         string         `json:"ticket_id"`
	SenderID         string         `json:"sender_id"`
	RecipientContact string         `json:"recipient_contact"` // phone or email, may not be a registered user
	ClaimCodeHash    string         `json:"-"`
	Status           TransferStatus `json:"status"`
	ClaimedBy        string         `json:"claimed_by,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ExpiresAt        time.Time      `json:"expires_at"`
}

// IsExpired reports whether a still-PENDING request has passed its TTL.
// Expiry is observed lazily on read; there is no background sweep the
// correctness of the state machine depends on.
func (r *TransferRequest) IsExpired(now time.Time) bool {
	return r.Status == TransferPending && now.After(r.ExpiresAt)
}
