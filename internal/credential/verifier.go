// Package credential validates scanned guest QR tokens. Verification is a
// pure read: it never records a check-in and never echoes the raw token back
// through errors or logs.
package credential

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"gatepass.dev/internal/checkin"
)

var (
	ErrNoMatch        = errors.New("credential: no match")
	ErrEventClosed    = errors.New("credential: event closed")
	ErrTenantInactive = errors.New("credential: tenant inactive")
)

// HashToken computes the one-way lookup hash of a raw QR token. The
// plaintext token exists only in flight; stores keep this hash.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verifier resolves raw tokens to guests against the store.
type Verifier struct {
	store checkin.Store
}

func NewVerifier(store checkin.Store) *Verifier {
	return &Verifier{store: store}
}

// Verify maps a raw token to its guest. Distinguishable failures: no hash
// matches, the guest's event is closed, or the guest's tenant is inactive.
// The comparison against the stored hash is constant-time so rejection
// latency does not leak how many leading bytes matched.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (checkin.Guest, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return checkin.Guest{}, ErrNoMatch
	}
	hash := HashToken(rawToken)

	guest, err := v.store.GuestByCredentialHash(ctx, hash)
	if err != nil {
		if errors.Is(err, checkin.ErrNotFound) {
			return checkin.Guest{}, ErrNoMatch
		}
		return checkin.Guest{}, err
	}

	// The index lookup already matched on the hash; compare again in constant
	// time so the accept path does not trust the index blindly.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(guest.CredentialHash)) != 1 {
		return checkin.Guest{}, ErrNoMatch
	}

	event, err := v.store.EventByID(ctx, guest.EventID)
	if err != nil {
		return checkin.Guest{}, err
	}
	if event.Status == checkin.EventClosed {
		return checkin.Guest{}, ErrEventClosed
	}

	tn, err := v.store.TenantByID(ctx, guest.TenantID)
	if err != nil {
		return checkin.Guest{}, err
	}
	if !tn.Active {
		return checkin.Guest{}, ErrTenantInactive
	}

	return guest, nil
}
