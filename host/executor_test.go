package host

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"disputeflow/contract"
)

func TestInvoke_OpenCommits(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	exec := NewExecutor(pool, repo)

	inst, err := exec.Invoke(context.Background(), repo.inst.ID, contract.OpenCall("alice", "bob", "judge"))
	if err != nil {
		t.Fatalf("invoke open: %v", err)
	}

	if pool.tx == nil || !pool.tx.committed {
		t.Fatalf("expected transaction commit")
	}
	if inst.Record.Status != contract.StatusOpen || inst.Record.DisputeNo != 1 {
		t.Fatalf("unexpected record after open: %+v", inst.Record)
	}
	if repo.inst.Record.Status != contract.StatusOpen {
		t.Fatalf("expected record persisted, got %+v", repo.inst.Record)
	}
	if len(repo.journal) != 1 || repo.journal[0].Op != contract.OpOpen {
		t.Fatalf("expected one journaled open, got %+v", repo.journal)
	}
	if len(repo.outbox) != 1 || repo.outbox[0] != OutboxTopicDisputeOpened {
		t.Fatalf("expected dispute.opened outbox row, got %+v", repo.outbox)
	}
}

func TestInvoke_GuardFailureRollsBack(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	exec := NewExecutor(pool, repo)

	ctx := context.Background()
	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.OpenCall("alice", "bob", "judge")); err != nil {
		t.Fatalf("first open: %v", err)
	}
	before := repo.inst.Record

	_, err := exec.Invoke(ctx, repo.inst.ID, contract.OpenCall("eve", "frank", "judge2"))
	if !errors.Is(err, contract.ErrDisputeActive) {
		t.Fatalf("expected ErrDisputeActive, got %v", err)
	}

	if pool.tx.committed {
		t.Errorf("expected commit to be skipped on guard failure")
	}
	if !pool.tx.rolled {
		t.Errorf("expected rollback on guard failure")
	}
	if repo.inst.Record != before {
		t.Fatalf("guard failure mutated stored record: before %+v after %+v", before, repo.inst.Record)
	}
	if len(repo.journal) != 1 {
		t.Fatalf("rejected call must not be journaled, got %d entries", len(repo.journal))
	}
	if len(repo.outbox) != 1 {
		t.Fatalf("rejected call must not enqueue outbox, got %d rows", len(repo.outbox))
	}
}

func TestInvoke_DecideSequence(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	exec := NewExecutor(pool, repo)

	ctx := context.Background()
	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.OpenCall("alice", "bob", "judge")); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.DecideCall("mallory", "x")); !errors.Is(err, contract.ErrNotResolver) {
		t.Fatalf("expected ErrNotResolver, got %v", err)
	}

	inst, err := exec.Invoke(ctx, repo.inst.ID, contract.DecideCall("judge", "claimant_wins"))
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if inst.Record.Status != contract.StatusResolved || inst.Record.Verdict != "claimant_wins" {
		t.Fatalf("unexpected record after decide: %+v", inst.Record)
	}

	if len(repo.journal) != 2 {
		t.Fatalf("expected two journal entries, got %d", len(repo.journal))
	}
	if repo.journal[0].Seq != 1 || repo.journal[1].Seq != 2 {
		t.Fatalf("expected gapless seq 1,2 got %d,%d", repo.journal[0].Seq, repo.journal[1].Seq)
	}
	if repo.outbox[1] != OutboxTopicDisputeDecided {
		t.Fatalf("expected dispute.decided outbox row, got %q", repo.outbox[1])
	}
}

func TestInvoke_UnknownInstance(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	exec := NewExecutor(pool, repo)

	_, err := exec.Invoke(context.Background(), "missing", contract.OpenCall("a", "b", "r"))
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
	if pool.tx == nil || !pool.tx.rolled {
		t.Fatalf("expected rollback on missing instance")
	}
}

func TestDeploy_RequiresLabel(t *testing.T) {
	exec := NewExecutor(&fakePool{}, newFakeRepo())

	if _, err := exec.Deploy(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty label")
	}
}

func TestDeploy_FreshRecord(t *testing.T) {
	repo := newFakeRepo()
	exec := NewExecutor(&fakePool{}, repo).WithIDGenerator(func() string { return "fixed-id" })

	inst, err := exec.Deploy(context.Background(), "tutorial")
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if inst.ID != "fixed-id" || inst.Label != "tutorial" {
		t.Fatalf("unexpected instance: %+v", inst)
	}
	if inst.Record != contract.NewRecord() {
		t.Fatalf("expected initial record, got %+v", inst.Record)
	}
}

type fakeRepo struct {
	inst    Instance
	journal []JournalEntry
	outbox  []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		inst: Instance{ID: "inst-1", Label: "seed", Record: contract.NewRecord()},
	}
}

func (f *fakeRepo) CreateInstance(_ context.Context, id, label string) (Instance, error) {
	return Instance{ID: id, Label: label, Record: contract.NewRecord()}, nil
}

func (f *fakeRepo) Get(_ context.Context, instanceID string) (Instance, error) {
	if instanceID != f.inst.ID {
		return Instance{}, ErrInstanceNotFound
	}
	return f.inst, nil
}

func (f *fakeRepo) List(_ context.Context, _ int) ([]Instance, error) {
	return []Instance{f.inst}, nil
}

func (f *fakeRepo) GetForUpdate(_ context.Context, _ pgx.Tx, instanceID string) (Instance, error) {
	if instanceID != f.inst.ID {
		return Instance{}, ErrInstanceNotFound
	}
	return f.inst, nil
}

func (f *fakeRepo) SaveRecord(_ context.Context, _ pgx.Tx, instanceID string, rec contract.Record) error {
	if instanceID != f.inst.ID {
		return ErrInstanceNotFound
	}
	f.inst.Record = rec
	return nil
}

func (f *fakeRepo) NextSeq(_ context.Context, _ pgx.Tx, _ string) (int64, error) {
	return int64(len(f.journal)) + 1, nil
}

func (f *fakeRepo) AppendJournal(_ context.Context, _ pgx.Tx, instanceID string, seq int64, call contract.Call) error {
	f.journal = append(f.journal, JournalEntry{InstanceID: instanceID, Seq: seq, Op: call.Op, Call: call})
	return nil
}

func (f *fakeRepo) EnqueueOutbox(_ context.Context, _ pgx.Tx, topic string, _ map[string]any) error {
	f.outbox = append(f.outbox, topic)
	return nil
}

func (f *fakeRepo) ListCalls(_ context.Context, instanceID string) ([]contract.Call, error) {
	out := make([]contract.Call, 0, len(f.journal))
	for _, e := range f.journal {
		if e.InstanceID == instanceID {
			out = append(out, e.Call)
		}
	}
	return out, nil
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
