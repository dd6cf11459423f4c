package dispute

import (
	"context"
	"fmt"
)

// Registry is the repository surface the service needs; faked in tests.
type Registry interface {
	Initiate(ctx context.Context, params InitiateParams) (Dispute, error)
	SubmitEvidence(ctx context.Context, caseID, submitterID, contentRef string) (Evidence, error)
	Get(ctx context.Context, caseID string) (Dispute, error)
}

// Service fronts the dispute registry. Party identities are assumed to be
// authenticated by the caller context; finalization is not exposed here,
// it belongs to the adjudication coordinator.
type Service struct {
	repo Registry
}

func NewService(repo Registry) *Service {
	return &Service{repo: repo}
}

func (s *Service) Initiate(ctx context.Context, params InitiateParams) (Dispute, error) {
	if params.CaseID == "" {
		return Dispute{}, fmt.Errorf("dispute: case id required")
	}
	if params.ClaimantID == "" || params.RespondentID == "" {
		return Dispute{}, fmt.Errorf("dispute: both party ids required")
	}
	if params.ClaimantID == params.RespondentID {
		return Dispute{}, fmt.Errorf("dispute: parties must be distinct")
	}
	return s.repo.Initiate(ctx, params)
}

func (s *Service) SubmitEvidence(ctx context.Context, caseID, submitterID, contentRef string) (Evidence, error) {
	if caseID == "" || submitterID == "" {
		return Evidence{}, fmt.Errorf("dispute: case id and submitter required")
	}
	if contentRef == "" {
		return Evidence{}, fmt.Errorf("dispute: content reference required")
	}
	return s.repo.SubmitEvidence(ctx, caseID, submitterID, contentRef)
}

func (s *Service) Get(ctx context.Context, caseID string) (Dispute, error) {
	return s.repo.Get(ctx, caseID)
}
