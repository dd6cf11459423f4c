package treasury

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestCheckAndRebalance_HealthyBalanceIsNoop(t *testing.T) {
	oracle := &fakeOracle{balance: 500}
	swapper := &fakeSwapper{}
	pool := &fakePool{}
	svc := mustService(t, oracle, swapper, pool, Config{Threshold: 100, Target: 400})

	swapped, err := svc.CheckAndRebalance(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if swapped {
		t.Fatal("expected no swap for a healthy balance")
	}
	if swapper.calls != 0 {
		t.Fatalf("expected zero swap calls, got %d", swapper.calls)
	}
	if pool.begun {
		t.Fatal("no event should be recorded without a swap")
	}
}

func TestCheckAndRebalance_TopsUpToTarget(t *testing.T) {
	oracle := &fakeOracle{balance: 30}
	swapper := &fakeSwapper{}
	pool := &fakePool{}
	svc := mustService(t, oracle, swapper, pool, Config{Threshold: 100, Target: 400})

	swapped, err := svc.CheckAndRebalance(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !swapped {
		t.Fatal("expected a swap below the threshold")
	}
	if swapper.calls != 1 {
		t.Fatalf("expected one swap call, got %d", swapper.calls)
	}
	if swapper.lastAmount != 370 {
		t.Fatalf("expected top-up of 370, got %d", swapper.lastAmount)
	}
	if pool.tx == nil || !pool.tx.committed {
		t.Fatal("expected a committed rebalance event")
	}
	if !strings.Contains(pool.tx.lastSQL, "outbox") {
		t.Fatalf("expected outbox insert, got %q", pool.tx.lastSQL)
	}
}

func TestCheckAndRebalance_SwapFailureSurfaces(t *testing.T) {
	oracle := &fakeOracle{balance: 30}
	swapper := &fakeSwapper{err: errors.New("dex unavailable")}
	pool := &fakePool{}
	svc := mustService(t, oracle, swapper, pool, Config{Threshold: 100, Target: 400})

	_, err := svc.CheckAndRebalance(context.Background(), "wallet-1")
	if err == nil {
		t.Fatal("expected swap error to surface")
	}
	if pool.begun {
		t.Fatal("no event should be recorded for a failed swap")
	}
}

func TestCheckAndRebalance_EventFailureDoesNotFailSwap(t *testing.T) {
	oracle := &fakeOracle{balance: 30}
	swapper := &fakeSwapper{}
	pool := &fakePool{beginErr: errors.New("pool exhausted")}
	svc := mustService(t, oracle, swapper, pool, Config{Threshold: 100, Target: 400})

	swapped, err := svc.CheckAndRebalance(context.Background(), "wallet-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !swapped {
		t.Fatal("expected the swap to be reported despite the event failure")
	}
}

func TestNewService_ValidatesBand(t *testing.T) {
	if _, err := NewService(&fakeOracle{}, &fakeSwapper{}, &fakePool{}, Config{Threshold: 400, Target: 100}); err == nil {
		t.Fatal("expected error for target below threshold")
	}
	if _, err := NewService(&fakeOracle{}, &fakeSwapper{}, &fakePool{}, Config{Threshold: -1, Target: 100}); err == nil {
		t.Fatal("expected error for negative threshold")
	}
}

func mustService(t *testing.T, oracle BalanceOracle, swapper SwapExecutor, pool TxBeginner, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(oracle, swapper, pool, cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type fakeOracle struct {
	balance int64
	err     error
}

func (f *fakeOracle) BalanceOf(ctx context.Context, wallet string) (int64, error) {
	return f.balance, f.err
}

type fakeSwapper struct {
	calls      int
	lastAmount int64
	err        error
}

func (f *fakeSwapper) ExecuteSwap(ctx context.Context, wallet string, amount int64) error {
	f.calls++
	f.lastAmount = amount
	return f.err
}

type fakePool struct {
	begun    bool
	beginErr error
	tx       *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.begun = true
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	committed bool
	rolled    bool
	lastSQL   string
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

func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL = sql
	return pgconn.NewCommandTag("INSERT 0 1"), nil
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

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	panic("not implemented")
}
