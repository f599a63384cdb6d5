package credential

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/tenant"
)

const goodToken = "qr-token-for-ada"

func seedVerifier(t *testing.T) (*checkin.InMemory, *Verifier) {
	t.Helper()
	store := checkin.NewInMemory()
	store.AddTenant(tenant.Tenant{ID: "t1", Active: true})
	store.AddEvent(checkin.Event{ID: "e1", TenantID: "t1", Status: checkin.EventPublished})
	store.AddGuest(checkin.Guest{
		ID: "g1", EventID: "e1", TenantID: "t1",
		CredentialHash: HashToken(goodToken),
	})
	return store, NewVerifier(store)
}

func TestVerifyMatch(t *testing.T) {
	_, v := seedVerifier(t)
	guest, err := v.Verify(context.Background(), goodToken)
	if err != nil {
		t.Fatal(err)
	}
	if guest.ID != "g1" {
		t.Fatalf("guest = %s, want g1", guest.ID)
	}
}

func TestVerifyNoMatch(t *testing.T) {
	_, v := seedVerifier(t)
	for _, token := range []string{"", "   ", "wrong-token", goodToken + "x"} {
		if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrNoMatch) {
			t.Fatalf("token %q: err = %v, want ErrNoMatch", token, err)
		}
	}
}

func TestVerifyRejectionNeverEchoesToken(t *testing.T) {
	_, v := seedVerifier(t)
	secret := "super-secret-qr-payload"
	_, err := v.Verify(context.Background(), secret)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if strings.Contains(err.Error(), secret) {
		t.Fatal("raw token leaked into error output")
	}
}

func TestVerifyIndistinguishableMisses(t *testing.T) {
	// Near-miss (shares the token prefix) and far-miss must surface the exact
	// same error value; nothing about match proximity leaks.
	_, v := seedVerifier(t)
	_, nearErr := v.Verify(context.Background(), goodToken[:len(goodToken)-1])
	_, farErr := v.Verify(context.Background(), "completely-different")
	if !errors.Is(nearErr, ErrNoMatch) || !errors.Is(farErr, ErrNoMatch) {
		t.Fatalf("near=%v far=%v, both must be ErrNoMatch", nearErr, farErr)
	}
	if nearErr.Error() != farErr.Error() {
		t.Fatal("rejection messages differ by match proximity")
	}
}

func TestVerifyClosedEvent(t *testing.T) {
	store, v := seedVerifier(t)
	store.SetEventStatus("e1", checkin.EventClosed)
	if _, err := v.Verify(context.Background(), goodToken); !errors.Is(err, ErrEventClosed) {
		t.Fatalf("err = %v, want ErrEventClosed", err)
	}
}

func TestVerifyInactiveTenant(t *testing.T) {
	store, v := seedVerifier(t)
	store.AddTenant(tenant.Tenant{ID: "t1", Active: false}) // overwrite
	if _, err := v.Verify(context.Background(), goodToken); !errors.Is(err, ErrTenantInactive) {
		t.Fatalf("err = %v, want ErrTenantInactive", err)
	}
}

func TestVerifyHasNoSideEffects(t *testing.T) {
	store, v := seedVerifier(t)
	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background(), goodToken); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.AuthoritativeRecord(context.Background(), "g1"); !errors.Is(err, checkin.ErrNotFound) {
		t.Fatal("verification must not record a check-in")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("a") != HashToken("a") {
		t.Fatal("hash not deterministic")
	}
	if HashToken("a") == HashToken("b") {
		t.Fatal("distinct tokens collided")
	}
	if len(HashToken("a")) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(HashToken("a")))
	}
}
