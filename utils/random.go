package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// ticketCodeBytes gives 160 bits of entropy. The scannable code is the
	// only credential checked at venue entry, so it must be unguessable.
	ticketCodeBytes = 20

	claimCodeBytes = 12
)

// GenerateTicketCode returns a fresh URL-safe scannable code.
func GenerateTicketCode() (string, error) {
	return randomToken(ticketCodeBytes)
}

// GenerateClaimCode returns a fresh single-use transfer claim code.
func GenerateClaimCode() (string, error) {
	return randomToken(claimCodeBytes)
}

// HashClaimCode digests a claim code for at-rest storage. Claim codes are
// bearer secrets, so only the digest is persisted.
func HashClaimCode(code string) string {
	sum := sha3.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", fmt.Errorf("utils: random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(byt), nil
}
