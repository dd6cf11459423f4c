// Package sponsorship implements gasless transaction support: the
// platform wraps an eligible user transaction in a fee-bump envelope and
// covers the network fee. Eligibility is a stateless predicate plus a
// per-user daily budget; no escrow state is involved.
package sponsorship

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotEligible signals the transaction fails the sponsorship criteria.
	ErrNotEligible = errors.New("sponsorship: transaction not eligible")
	// ErrDailyLimitReached signals the user exhausted today's budget.
	ErrDailyLimitReached = errors.New("sponsorship: daily limit reached")
)

// Envelope is the caller-signed inner transaction presented for
// sponsorship. Signature validity is the host's precondition.
type Envelope struct {
	UserID    string
	Operation string
	Amount    int64
	InnerXDR  string
}

// Config tunes the eligibility predicate.
type Config struct {
	// AllowedOps is the operation allowlist; empty means payments only.
	AllowedOps []string
	// MaxAmount caps the sponsored amount; 0 means no cap.
	MaxAmount int64
	// DailyLimit caps sponsored transactions per user per day.
	DailyLimit int
	// FeeSource names the platform wallet paying the bumped fee.
	FeeSource string
}

type Service struct {
	limiter    Limiter
	allowedOps map[string]struct{}
	maxAmount  int64
	dailyLimit int
	feeSource  string
}

func NewService(limiter Limiter, cfg Config) *Service {
	ops := cfg.AllowedOps
	if len(ops) == 0 {
		ops = []string{"payment"}
	}
	allowed := make(map[string]struct{}, len(ops))
	for _, op := range ops {
		allowed[op] = struct{}{}
	}
	limit := cfg.DailyLimit
	if limit <= 0 {
		limit = 50
	}
	return &Service{
		limiter:    limiter,
		allowedOps: allowed,
		maxAmount:  cfg.MaxAmount,
		dailyLimit: limit,
		feeSource:  cfg.FeeSource,
	}
}

// Sponsor validates the envelope and, when eligible, returns the fee-bump
// wrapper the platform signs. The predicate runs before the counter is
// charged so ineligible spam does not consume the user's budget.
func (s *Service) Sponsor(ctx context.Context, env Envelope) (string, error) {
	if env.UserID == "" {
		return "", fmt.Errorf("sponsorship: user id required")
	}
	if env.InnerXDR == "" {
		return "", fmt.Errorf("sponsorship: inner transaction required")
	}
	if err := s.validate(env); err != nil {
		return "", err
	}

	dec, err := s.limiter.Allow(ctx, "sponsor:"+env.UserID, s.dailyLimit, 24*time.Hour)
	if err != nil {
		return "", fmt.Errorf("sponsorship: check daily limit: %w", err)
	}
	if !dec.Allowed {
		return "", ErrDailyLimitReached
	}

	// The real envelope assembly (fee-bump XDR signed by the platform
	// wallet) is the host SDK's job; the service's contract is the
	// eligibility decision and the fee source binding.
	return fmt.Sprintf("feebump:%s:%s", s.feeSource, env.InnerXDR), nil
}

func (s *Service) validate(env Envelope) error {
	if _, ok := s.allowedOps[env.Operation]; !ok {
		return fmt.Errorf("%w: operation %q not sponsored", ErrNotEligible, env.Operation)
	}
	if env.Amount <= 0 {
		return fmt.Errorf("%w: non-positive amount", ErrNotEligible)
	}
	if s.maxAmount > 0 && env.Amount > s.maxAmount {
		return fmt.Errorf("%w: amount %d above cap %d", ErrNotEligible, env.Amount, s.maxAmount)
	}
	return nil
}
