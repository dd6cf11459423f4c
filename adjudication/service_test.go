package adjudication

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"escrowdesk/dispute"
	"escrowdesk/proposal"
)

func TestAdjudicate_InvalidRatioTouchesNothing(t *testing.T) {
	pool := &fakePool{}
	svc := NewService(pool, &fakeProposals{}, &fakeRegistry{}, &fakePayout{})

	_, err := svc.Adjudicate(context.Background(), AdjudicateParams{
		CaseID:     "case-7",
		SplitRatio: 150,
		ArbiterID:  "arb-a",
		ScopeID:    "court",
	})
	if !errors.Is(err, dispute.ErrInvalidRatio) {
		t.Fatalf("expected ErrInvalidRatio, got %v", err)
	}
	if pool.tx != nil {
		t.Fatal("expected no transaction for invalid input")
	}
}

func TestAdjudicate_PendingBelowQuorum(t *testing.T) {
	pool := &fakePool{}
	props := &fakeProposals{result: proposal.SignResult{AccumulatedWeight: 1, Required: 2}}
	reg := &fakeRegistry{status: dispute.StatusEvidenceOpen}
	pay := &fakePayout{}
	svc := NewService(pool, props, reg, pay)

	res, err := svc.Adjudicate(context.Background(), AdjudicateParams{
		CaseID:     "case-7",
		SplitRatio: 60,
		ArbiterID:  "arb-a",
		ScopeID:    "court",
	})
	if err != nil {
		t.Fatalf("adjudicate: %v", err)
	}
	if res.Status != StatusPending {
		t.Fatalf("expected pending result, got %s", res.Status)
	}
	if res.AccumulatedWeight != 1 || res.Required != 2 {
		t.Fatalf("unexpected weights: %+v", res)
	}
	if reg.finalized {
		t.Error("expected no finalize below quorum")
	}
	if pay.executed {
		t.Error("expected no payout below quorum")
	}
	if !pool.tx.committed {
		t.Error("expected the signature to be committed")
	}
}

func TestAdjudicate_QuorumFinalizesAndPaysOut(t *testing.T) {
	pool := &fakePool{}
	props := &fakeProposals{result: proposal.SignResult{AccumulatedWeight: 2, Required: 2, QuorumReached: true}}
	reg := &fakeRegistry{status: dispute.StatusEvidenceOpen}
	pay := &fakePayout{}
	svc := NewService(pool, props, reg, pay)

	res, err := svc.Adjudicate(context.Background(), AdjudicateParams{
		CaseID:     "case-7",
		SplitRatio: 60,
		ArbiterID:  "arb-b",
		ScopeID:    "court",
	})
	if err != nil {
		t.Fatalf("adjudicate: %v", err)
	}
	if res.Status != StatusExecuted {
		t.Fatalf("expected executed result, got %s", res.Status)
	}
	if !reg.finalized || reg.finalRatio != 60 || reg.finalArbiter != "arb-b" {
		t.Fatalf("finalize not applied as expected: %+v", reg)
	}
	if !pay.executed {
		t.Fatal("expected payout instruction")
	}
	if pay.inst.SplitRatio != 60 || pay.inst.CaseID != "case-7" {
		t.Fatalf("unexpected payout instruction: %+v", pay.inst)
	}
	if !pool.tx.committed {
		t.Error("expected resolution to be committed")
	}
}

func TestAdjudicate_FinalizeFailureSkipsPayout(t *testing.T) {
	pool := &fakePool{}
	props := &fakeProposals{result: proposal.SignResult{AccumulatedWeight: 2, Required: 2, QuorumReached: true}}
	reg := &fakeRegistry{status: dispute.StatusEvidenceOpen, finalizeErr: dispute.ErrAlreadyResolved}
	pay := &fakePayout{}
	svc := NewService(pool, props, reg, pay)

	_, err := svc.Adjudicate(context.Background(), AdjudicateParams{
		CaseID:     "case-7",
		SplitRatio: 60,
		ArbiterID:  "arb-b",
		ScopeID:    "court",
	})
	if !errors.Is(err, dispute.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved surfaced, got %v", err)
	}
	if pay.executed {
		t.Fatal("payout must not run when finalize fails")
	}
	if pool.tx.committed {
		t.Error("expected rollback, not commit")
	}
	if !pool.tx.rolled {
		t.Error("expected rollback on finalize failure")
	}
}

func TestAdjudicate_ResolvedCaseRejectedBeforeSigning(t *testing.T) {
	pool := &fakePool{}
	props := &fakeProposals{}
	reg := &fakeRegistry{status: dispute.StatusResolved}
	svc := NewService(pool, props, reg, &fakePayout{})

	_, err := svc.Adjudicate(context.Background(), AdjudicateParams{
		CaseID:     "case-7",
		SplitRatio: 40,
		ArbiterID:  "arb-c",
		ScopeID:    "court",
	})
	if !errors.Is(err, dispute.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if props.calls != 0 {
		t.Fatal("expected no signature on a resolved case")
	}
}

// TestAdjudicate_TwoOfThreeScenario walks the documented arbiter workflow:
// A signs first and waits, B's signature crosses the 2-of-3 quorum and
// resolves the case with B's ratio, C's late call hits the executed
// proposal.
func TestAdjudicate_TwoOfThreeScenario(t *testing.T) {
	pool := &fakePool{}
	props := newScriptedProposals(2, map[string]int64{"A": 1, "B": 1, "C": 1})
	reg := &fakeRegistry{status: dispute.StatusActive}
	pay := &fakePayout{}
	svc := NewService(pool, props, reg, pay)

	call := func(arbiter string, ratio int32) (Result, error) {
		return svc.Adjudicate(context.Background(), AdjudicateParams{
			CaseID:     "7",
			SplitRatio: ratio,
			ArbiterID:  arbiter,
			ScopeID:    "S",
		})
	}

	resA, err := call("A", 60)
	if err != nil {
		t.Fatalf("A adjudicate: %v", err)
	}
	if resA.Status != StatusPending || resA.AccumulatedWeight != 1 {
		t.Fatalf("A expected pending weight 1, got %+v", resA)
	}
	if reg.finalized {
		t.Fatal("case must stay open after A")
	}

	resB, err := call("B", 60)
	if err != nil {
		t.Fatalf("B adjudicate: %v", err)
	}
	if resB.Status != StatusExecuted {
		t.Fatalf("B expected executed, got %+v", resB)
	}
	if reg.finalArbiter != "B" || reg.finalRatio != 60 {
		t.Fatalf("expected B recorded as resolving arbiter with ratio 60, got %+v", reg)
	}
	reg.status = dispute.StatusResolved

	if _, err := call("C", 60); !errors.Is(err, dispute.ErrAlreadyResolved) {
		t.Fatalf("C expected conflict, got %v", err)
	}
}

type fakeProposals struct {
	result proposal.SignResult
	err    error
	calls  int
}

func (f *fakeProposals) Sign(ctx context.Context, tx pgx.Tx, params proposal.SignParams) (proposal.SignResult, error) {
	f.calls++
	return f.result, f.err
}

// scriptedProposals emulates the store's accumulation semantics in memory
// for multi-call scenarios.
type scriptedProposals struct {
	required int64
	weights  map[string]int64
	signed   map[string]struct{}
	executed bool
}

func newScriptedProposals(required int64, weights map[string]int64) *scriptedProposals {
	return &scriptedProposals{
		required: required,
		weights:  weights,
		signed:   make(map[string]struct{}),
	}
}

func (f *scriptedProposals) Sign(ctx context.Context, tx pgx.Tx, params proposal.SignParams) (proposal.SignResult, error) {
	if f.executed {
		return proposal.SignResult{}, proposal.ErrAlreadyExecuted
	}
	f.signed[params.SignerID] = struct{}{}
	var total int64
	for id := range f.signed {
		total += f.weights[id]
	}
	if total >= f.required {
		f.executed = true
		return proposal.SignResult{AccumulatedWeight: total, Required: f.required, QuorumReached: true}, nil
	}
	return proposal.SignResult{AccumulatedWeight: total, Required: f.required}, nil
}

type fakeRegistry struct {
	status       dispute.Status
	finalizeErr  error
	finalized    bool
	finalRatio   int32
	finalArbiter string
}

func (f *fakeRegistry) StatusOf(ctx context.Context, tx pgx.Tx, caseID string) (dispute.Status, error) {
	if f.status == "" {
		return "", dispute.ErrCaseNotFound
	}
	return f.status, nil
}

func (f *fakeRegistry) Finalize(ctx context.Context, tx pgx.Tx, caseID string, splitRatio int32, arbiterID string) (dispute.Dispute, error) {
	if f.finalizeErr != nil {
		return dispute.Dispute{}, f.finalizeErr
	}
	f.finalized = true
	f.finalRatio = splitRatio
	f.finalArbiter = arbiterID
	return dispute.Dispute{
		CaseID:       caseID,
		ClaimantID:   "claimant-1",
		RespondentID: "respondent-1",
		Status:       dispute.StatusResolved,
		SplitRatio:   &splitRatio,
		ArbiterID:    &arbiterID,
	}, nil
}

type fakePayout struct {
	executed bool
	inst     Instruction
	err      error
}

func (f *fakePayout) Execute(ctx context.Context, tx pgx.Tx, inst Instruction) error {
	if f.err != nil {
		return f.err
	}
	f.executed = true
	f.inst = inst
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
