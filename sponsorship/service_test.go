package sponsorship

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(limit int) *Service {
	return NewService(NewMemoryLimiter(), Config{
		MaxAmount:  1_000,
		DailyLimit: limit,
		FeeSource:  "platform-wallet",
	})
}

func TestSponsor_EligiblePayment(t *testing.T) {
	svc := newTestService(5)

	out, err := svc.Sponsor(context.Background(), Envelope{
		UserID:    "user-1",
		Operation: "payment",
		Amount:    250,
		InnerXDR:  "inner-tx",
	})
	if err != nil {
		t.Fatalf("sponsor: unexpected error: %v", err)
	}
	if !strings.Contains(out, "platform-wallet") {
		t.Fatalf("expected fee source in envelope, got %q", out)
	}
	if !strings.HasSuffix(out, "inner-tx") {
		t.Fatalf("expected inner transaction preserved, got %q", out)
	}
}

func TestSponsor_OperationNotAllowed(t *testing.T) {
	svc := newTestService(5)

	_, err := svc.Sponsor(context.Background(), Envelope{
		UserID:    "user-1",
		Operation: "create_account",
		Amount:    10,
		InnerXDR:  "inner-tx",
	})
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestSponsor_AmountAboveCap(t *testing.T) {
	svc := newTestService(5)

	_, err := svc.Sponsor(context.Background(), Envelope{
		UserID:    "user-1",
		Operation: "payment",
		Amount:    5_000,
		InnerXDR:  "inner-tx",
	})
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestSponsor_DailyLimit(t *testing.T) {
	svc := newTestService(2)
	ctx := context.Background()

	env := Envelope{UserID: "user-1", Operation: "payment", Amount: 10, InnerXDR: "inner-tx"}
	for i := 0; i < 2; i++ {
		if _, err := svc.Sponsor(ctx, env); err != nil {
			t.Fatalf("sponsor %d: %v", i, err)
		}
	}

	if _, err := svc.Sponsor(ctx, env); !errors.Is(err, ErrDailyLimitReached) {
		t.Fatalf("expected ErrDailyLimitReached, got %v", err)
	}

	// Another user's budget is untouched.
	other := env
	other.UserID = "user-2"
	if _, err := svc.Sponsor(ctx, other); err != nil {
		t.Fatalf("sponsor other user: %v", err)
	}
}

func TestSponsor_IneligibleDoesNotChargeBudget(t *testing.T) {
	svc := newTestService(1)
	ctx := context.Background()

	bad := Envelope{UserID: "user-1", Operation: "payment", Amount: 9_999, InnerXDR: "inner-tx"}
	if _, err := svc.Sponsor(ctx, bad); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}

	good := bad
	good.Amount = 10
	if _, err := svc.Sponsor(ctx, good); err != nil {
		t.Fatalf("sponsor after rejected attempt: %v", err)
	}
}

func TestMemoryLimiter_WindowReset(t *testing.T) {
	lim := NewMemoryLimiter().(*memoryLimiter)
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return now }

	ctx := context.Background()
	if dec, _ := lim.Allow(ctx, "k", 1, time.Hour); !dec.Allowed {
		t.Fatal("first call should be allowed")
	}
	if dec, _ := lim.Allow(ctx, "k", 1, time.Hour); dec.Allowed {
		t.Fatal("second call in window should be denied")
	}

	now = now.Add(time.Hour + time.Second)
	if dec, _ := lim.Allow(ctx, "k", 1, time.Hour); !dec.Allowed {
		t.Fatal("call after window reset should be allowed")
	}
}
