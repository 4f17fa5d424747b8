package host

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"disputeflow/contract"
	"disputeflow/metrics"
)

var (
	// ErrReplayDiverged signals a journaled call that no longer applies cleanly.
	ErrReplayDiverged = errors.New("host: journaled call failed on replay")
	// ErrStateMismatch signals the replayed record differs from the stored one.
	ErrStateMismatch = errors.New("host: replayed state differs from stored state")
)

// JournalSource supplies the ordered calls committed against an instance.
type JournalSource interface {
	ListCalls(ctx context.Context, instanceID string) ([]contract.Call, error)
}

// InstanceSource supplies the stored instance state to compare against.
type InstanceSource interface {
	Get(ctx context.Context, instanceID string) (Instance, error)
}

// Replayer re-executes an instance's journal from genesis and checks that the
// result agrees with the stored record. Independent executions of the same
// history must agree bit-for-bit; a divergence means either the journal or the
// contract logic is no longer deterministic.
type Replayer struct {
	journal   JournalSource
	instances InstanceSource
	mx        *metrics.Metrics
}

func NewReplayer(journal JournalSource, instances InstanceSource) *Replayer {
	return &Replayer{journal: journal, instances: instances}
}

func (r *Replayer) WithMetrics(mx *metrics.Metrics) *Replayer {
	r.mx = mx
	return r
}

// Replay folds the journal through the contract from a fresh record and
// returns the resulting state. Every journaled call must succeed: the journal
// only ever contains committed invocations.
func (r *Replayer) Replay(ctx context.Context, instanceID string) (contract.Record, error) {
	calls, err := r.journal.ListCalls(ctx, instanceID)
	if err != nil {
		return contract.Record{}, err
	}

	rec := contract.NewRecord()
	for i, call := range calls {
		if err := contract.Apply(&rec, call); err != nil {
			return contract.Record{}, fmt.Errorf("%w: seq %d (%s): %v", ErrReplayDiverged, i+1, call.Op, err)
		}
	}
	return rec, nil
}

// Verify replays the journal once and compares the result with the stored record.
func (r *Replayer) Verify(ctx context.Context, instanceID string) error {
	stored, err := r.instances.Get(ctx, instanceID)
	if err != nil {
		return err
	}

	replayed, err := r.Replay(ctx, instanceID)
	if err != nil {
		r.observe(false)
		return err
	}

	if replayed != stored.Record {
		r.observe(false)
		return fmt.Errorf("%w: replayed %+v stored %+v", ErrStateMismatch, replayed, stored.Record)
	}
	r.observe(true)
	return nil
}

// VerifyEquivalence runs the verification concurrently n times, standing in
// for the independent nodes that re-execute the same history. All runs must
// agree with the stored state.
func (r *Replayer) VerifyEquivalence(ctx context.Context, instanceID string, runs int) error {
	if runs <= 0 {
		runs = 2
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			return r.Verify(ctx, instanceID)
		})
	}
	return g.Wait()
}

func (r *Replayer) observe(ok bool) {
	if r.mx == nil {
		return
	}
	r.mx.Replay(ok)
}
