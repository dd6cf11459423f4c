package authz

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidThresholds signals the low <= med <= high ordering is broken
	// or a threshold is negative.
	ErrInvalidThresholds = errors.New("authz: thresholds must satisfy 0 <= low <= med <= high")
	// ErrUnreachableThreshold signals the signer weights can never reach the
	// high threshold, so the scope is rejected rather than created dead.
	ErrUnreachableThreshold = errors.New("authz: signer weights cannot reach high threshold")
	// ErrNoSigners signals an empty signer set.
	ErrNoSigners = errors.New("authz: scope requires at least one signer")
	// ErrDuplicateSigner signals the same identity listed twice.
	ErrDuplicateSigner = errors.New("authz: duplicate signer in configuration")
	// ErrInvalidWeight signals a negative signer weight.
	ErrInvalidWeight = errors.New("authz: signer weight must be non-negative")
)

// Ledger is the scope/weight access the service delegates to. Satisfied by
// *Repository; faked in unit tests.
type Ledger interface {
	ReplaceScope(ctx context.Context, params ConfigureScopeParams) (Scope, error)
	WeightOf(ctx context.Context, q Querier, scopeID, signerID string) (int64, error)
	ThresholdFor(ctx context.Context, q Querier, scopeID string, class Class) (int64, error)
	GetScope(ctx context.Context, scopeID string) (Scope, error)
	Pool() Querier
}

// Service validates and applies scope configuration. The owner identity on
// every call is assumed to be authenticated by the caller context.
type Service struct {
	repo Ledger
}

func NewService(repo Ledger) *Service {
	return &Service{repo: repo}
}

// ConfigureScope validates the whole configuration before any write. A
// scope whose signers can never reach the high threshold is refused:
// quorum must be reachable at configuration time.
func (s *Service) ConfigureScope(ctx context.Context, params ConfigureScopeParams) (Scope, error) {
	if params.ScopeID == "" {
		return Scope{}, fmt.Errorf("authz: scope id required")
	}
	if params.OwnerID == "" {
		return Scope{}, fmt.Errorf("authz: owner id required")
	}
	if params.Low < 0 || params.Low > params.Med || params.Med > params.High {
		return Scope{}, ErrInvalidThresholds
	}
	if len(params.Signers) == 0 {
		return Scope{}, ErrNoSigners
	}

	seen := make(map[string]struct{}, len(params.Signers))
	var total int64
	for _, sw := range params.Signers {
		if sw.SignerID == "" {
			return Scope{}, fmt.Errorf("authz: signer id required")
		}
		if sw.Weight < 0 {
			return Scope{}, ErrInvalidWeight
		}
		if _, dup := seen[sw.SignerID]; dup {
			return Scope{}, ErrDuplicateSigner
		}
		seen[sw.SignerID] = struct{}{}
		total += sw.Weight
	}
	if total < params.High {
		return Scope{}, ErrUnreachableThreshold
	}

	return s.repo.ReplaceScope(ctx, params)
}

// WeightOf reports the signer's weight in the scope, 0 for non-members.
func (s *Service) WeightOf(ctx context.Context, scopeID, signerID string) (int64, error) {
	return s.repo.WeightOf(ctx, s.repo.Pool(), scopeID, signerID)
}

// ThresholdFor reports the weight required for an action class.
func (s *Service) ThresholdFor(ctx context.Context, scopeID string, class Class) (int64, error) {
	if !class.Valid() {
		return 0, fmt.Errorf("authz: unknown class %q", class)
	}
	return s.repo.ThresholdFor(ctx, s.repo.Pool(), scopeID, class)
}

// Get loads a scope with its signer set.
func (s *Service) Get(ctx context.Context, scopeID string) (Scope, error) {
	return s.repo.GetScope(ctx, scopeID)
}
