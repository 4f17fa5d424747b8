package host

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"disputeflow/contract"
	"disputeflow/metrics"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ExecutorRepository defines the data access the executor needs.
type ExecutorRepository interface {
	CreateInstance(ctx context.Context, id, label string) (Instance, error)
	Get(ctx context.Context, instanceID string) (Instance, error)
	List(ctx context.Context, limit int) ([]Instance, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, instanceID string) (Instance, error)
	SaveRecord(ctx context.Context, tx pgx.Tx, instanceID string, rec contract.Record) error
	NextSeq(ctx context.Context, tx pgx.Tx, instanceID string) (int64, error)
	AppendJournal(ctx context.Context, tx pgx.Tx, instanceID string, seq int64, call contract.Call) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Executor runs contract invocations against deployed instances. Each
// invocation is a single transaction: row lock, guard evaluation, then either
// an atomic state+journal+outbox write or a clean rollback that leaves the
// instance byte-for-byte unchanged.
type Executor struct {
	pool  TxBeginner
	repo  ExecutorRepository
	mx    *metrics.Metrics
	idGen func() string
	now   func() time.Time
}

func NewExecutor(pool TxBeginner, repo ExecutorRepository) *Executor {
	return &Executor{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

func (e *Executor) WithMetrics(mx *metrics.Metrics) *Executor {
	e.mx = mx
	return e
}

func (e *Executor) WithIDGenerator(gen func() string) *Executor {
	e.idGen = gen
	return e
}

func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Deploy creates a new instance in the initial idle state.
func (e *Executor) Deploy(ctx context.Context, label string) (Instance, error) {
	if label == "" {
		return Instance{}, fmt.Errorf("host: instance label required")
	}
	return e.repo.CreateInstance(ctx, e.idGen(), label)
}

// Inspect returns the current record of an instance. Read-only, always
// succeeds for an existing instance.
func (e *Executor) Inspect(ctx context.Context, instanceID string) (Instance, error) {
	if instanceID == "" {
		return Instance{}, fmt.Errorf("host: instance id required")
	}
	return e.repo.Get(ctx, instanceID)
}

// List returns deployed instances, newest first.
func (e *Executor) List(ctx context.Context, limit int) ([]Instance, error) {
	return e.repo.List(ctx, limit)
}

// Invoke applies one call to the instance. On a guard failure the transaction
// rolls back with nothing written and the contract error is returned to the
// caller; retries are the caller's business.
func (e *Executor) Invoke(ctx context.Context, instanceID string, call contract.Call) (Instance, error) {
	if instanceID == "" {
		return Instance{}, fmt.Errorf("host: instance id required")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Instance{}, fmt.Errorf("host: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inst, err := e.repo.GetForUpdate(ctx, tx, instanceID)
	if err != nil {
		return Instance{}, err
	}

	rec := inst.Record
	if err := contract.Apply(&rec, call); err != nil {
		e.observe(call.Op, contract.Kind(err))
		return Instance{}, err
	}

	seq, err := e.repo.NextSeq(ctx, tx, instanceID)
	if err != nil {
		return Instance{}, err
	}
	if err := e.repo.SaveRecord(ctx, tx, instanceID, rec); err != nil {
		return Instance{}, err
	}
	if err := e.repo.AppendJournal(ctx, tx, instanceID, seq, call); err != nil {
		return Instance{}, err
	}

	topic := OutboxTopicDisputeOpened
	if call.Op == contract.OpDecide {
		topic = OutboxTopicDisputeDecided
	}
	payload := map[string]any{
		"instance_id": instanceID,
		"seq":         seq,
		"op":          call.Op,
		"dispute_no":  rec.DisputeNo,
		"status":      rec.Status,
	}
	if err := e.repo.EnqueueOutbox(ctx, tx, topic, payload); err != nil {
		return Instance{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Instance{}, fmt.Errorf("host: commit invocation: %w", err)
	}

	e.observe(call.Op, "")
	inst.Record = rec
	inst.UpdatedAt = e.now().UTC()
	return inst, nil
}

func (e *Executor) observe(op string, fault contract.FaultKind) {
	if e.mx == nil {
		return
	}
	outcome := "ok"
	if fault != "" {
		outcome = string(fault)
	}
	e.mx.Invocation(op, outcome)
}
