package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/contract"
)

var (
	// ErrInstanceNotFound signals that no instance row exists for the identifier.
	ErrInstanceNotFound = errors.New("host: instance not found")
	// ErrDuplicateLabel signals a deploy reusing an existing instance label.
	ErrDuplicateLabel = errors.New("host: instance label already exists")
)

// Repository is the PostgreSQL data access layer for instances, journal, and outbox.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const instanceColumns = `id, label, dispute_no, claimant, respondent, resolver, status::text, verdict, created_at, updated_at`

func scanInstance(row pgx.Row) (Instance, error) {
	var inst Instance
	err := row.Scan(
		&inst.ID,
		&inst.Label,
		&inst.Record.DisputeNo,
		&inst.Record.Claimant,
		&inst.Record.Respondent,
		&inst.Record.Resolver,
		&inst.Record.Status,
		&inst.Record.Verdict,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	return inst, err
}

// CreateInstance inserts a fresh instance with the initial record state.
func (r *Repository) CreateInstance(ctx context.Context, id, label string) (Instance, error) {
	const insertSQL = `
		INSERT INTO instances (id, label)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2)
		RETURNING ` + instanceColumns

	inst, err := scanInstance(r.pool.QueryRow(ctx, insertSQL, id, label))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Instance{}, ErrDuplicateLabel
		}
		return Instance{}, fmt.Errorf("host: create instance: %w", err)
	}
	return inst, nil
}

// Get returns the instance without locking it.
func (r *Repository) Get(ctx context.Context, instanceID string) (Instance, error) {
	const selectSQL = `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`

	inst, err := scanInstance(r.pool.QueryRow(ctx, selectSQL, instanceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Instance{}, ErrInstanceNotFound
		}
		return Instance{}, fmt.Errorf("host: get instance: %w", err)
	}
	return inst, nil
}

// List returns up to limit instances, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Instance, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	const listSQL = `SELECT ` + instanceColumns + ` FROM instances ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, listSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("host: list instances: %w", err)
	}
	defer rows.Close()

	out := make([]Instance, 0, limit)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("host: scan instance: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("host: iterate instances: %w", err)
	}
	return out, nil
}

// GetForUpdate locks the instance row for the duration of the transaction.
// Invocations against the same instance serialize on this lock.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, instanceID string) (Instance, error) {
	const selectSQL = `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1 FOR UPDATE`

	inst, err := scanInstance(tx.QueryRow(ctx, selectSQL, instanceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Instance{}, ErrInstanceNotFound
		}
		return Instance{}, fmt.Errorf("host: lock instance: %w", err)
	}
	return inst, nil
}

// SaveRecord writes the post-invocation record back onto the locked row.
func (r *Repository) SaveRecord(ctx context.Context, tx pgx.Tx, instanceID string, rec contract.Record) error {
	const updateSQL = `
		UPDATE instances
		SET dispute_no = $2,
		    claimant = $3,
		    respondent = $4,
		    resolver = $5,
		    status = $6::dispute_status,
		    verdict = $7,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, updateSQL,
		instanceID,
		rec.DisputeNo,
		rec.Claimant,
		rec.Respondent,
		rec.Resolver,
		rec.Status,
		rec.Verdict,
	)
	if err != nil {
		return fmt.Errorf("host: save record: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrInstanceNotFound
	}
	return nil
}

// NextSeq computes the next journal sequence number for the instance. The
// caller must hold the instance row lock so concurrent invocations cannot
// observe the same maximum.
func (r *Repository) NextSeq(ctx context.Context, tx pgx.Tx, instanceID string) (int64, error) {
	var seq int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM journal WHERE instance_id = $1`, instanceID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("host: next seq: %w", err)
	}
	return seq, nil
}

// AppendJournal records a committed call at the given sequence number.
func (r *Repository) AppendJournal(ctx context.Context, tx pgx.Tx, instanceID string, seq int64, call contract.Call) error {
	payload, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("host: marshal call: %w", err)
	}

	const insertSQL = `
		INSERT INTO journal (instance_id, seq, op, payload)
		VALUES ($1, $2, $3, $4::jsonb)
	`
	if _, err := tx.Exec(ctx, insertSQL, instanceID, seq, call.Op, payload); err != nil {
		return fmt.Errorf("host: append journal: %w", err)
	}
	return nil
}

// EnqueueOutbox inserts a pending outbox row inside the invocation transaction.
func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("host: marshal outbox payload: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("host: enqueue outbox: %w", err)
	}
	return nil
}

// ListCalls returns the journaled calls for an instance in sequence order.
func (r *Repository) ListCalls(ctx context.Context, instanceID string) ([]contract.Call, error) {
	const selectSQL = `
		SELECT payload
		FROM journal
		WHERE instance_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, selectSQL, instanceID)
	if err != nil {
		return nil, fmt.Errorf("host: list journal: %w", err)
	}
	defer rows.Close()

	out := make([]contract.Call, 0, 16)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("host: scan journal row: %w", err)
		}
		var call contract.Call
		if err := json.Unmarshal(payload, &call); err != nil {
			return nil, fmt.Errorf("host: decode journal payload: %w", err)
		}
		out = append(out, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("host: iterate journal: %w", err)
	}
	return out, nil
}
