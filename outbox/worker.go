package outbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultBatchSize = 10
	maxAttempts      = 5
)

// Publisher delivers one outbox message to whatever sits downstream. The
// default publisher just logs; the surrounding platform wires its own.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type logPublisher struct{}

func (logPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	log.Printf("outbox: publish %s %s", topic, payload)
	return nil
}

// Worker drains pending outbox rows in batches. Rows are leased with
// FOR UPDATE SKIP LOCKED so multiple workers never double-deliver, and a row
// that keeps failing is parked as dead after maxAttempts.
type Worker struct {
	pool      *pgxpool.Pool
	publisher Publisher
	interval  time.Duration
	batchSize int
}

func NewWorker(pool *pgxpool.Pool, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Worker{
		pool:      pool,
		publisher: logPublisher{},
		interval:  interval,
		batchSize: defaultBatchSize,
	}
}

func (w *Worker) WithPublisher(p Publisher) *Worker {
	w.publisher = p
	return w
}

// Run drains until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("outbox: drain: %v", err)
			}
		}
	}
}

// DrainOnce leases one batch of pending rows, publishes them, and marks the
// outcome inside the same transaction.
func (w *Worker) DrainOnce(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, topic, payload, attempts
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, w.batchSize)
	if err != nil {
		return fmt.Errorf("outbox: lease batch: %w", err)
	}

	type leased struct {
		id       string
		topic    string
		payload  []byte
		attempts int
	}
	batch := make([]leased, 0, w.batchSize)
	for rows.Next() {
		var m leased
		if err := rows.Scan(&m.id, &m.topic, &m.payload, &m.attempts); err != nil {
			rows.Close()
			return fmt.Errorf("outbox: scan row: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("outbox: iterate batch: %w", err)
	}

	for _, m := range batch {
		if err := w.publisher.Publish(ctx, m.topic, m.payload); err != nil {
			status := "pending"
			if m.attempts+1 >= maxAttempts {
				status = "dead"
			}
			if _, err := tx.Exec(ctx, `UPDATE outbox SET status=$2, attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, m.id, status); err != nil {
				return fmt.Errorf("outbox: mark failed: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, m.id); err != nil {
			return fmt.Errorf("outbox: mark processed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("outbox: commit batch: %w", err)
	}
	return nil
}
