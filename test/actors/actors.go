package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"disputeflow/contract"
	"disputeflow/host"
	"disputeflow/outbox"
)

// Opener hammers the same instance with open calls. Under contention only one
// open can land per dispute cycle; the rest must bounce off the active guard.
func Opener(ctx context.Context, exec *host.Executor, instanceID, resolver string, stop <-chan struct{}) error {
	claimants := []string{"alice", "bob", "carol", "dave"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		claimant := claimants[rand.Intn(len(claimants))]
		respondent := claimants[rand.Intn(len(claimants))]
		_, err := exec.Invoke(ctx, instanceID, contract.OpenCall(claimant, respondent, resolver))
		switch {
		case err == nil, errors.Is(err, contract.ErrDisputeActive):
			// expected under contention
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			// transient database failure (chaos kills backends); retry
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Decider resolves whatever dispute is currently open, acting as the
// designated resolver.
func Decider(ctx context.Context, exec *host.Executor, instanceID, resolver string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		verdict := fmt.Sprintf("verdict-%d", rand.Int63())
		_, err := exec.Invoke(ctx, instanceID, contract.DecideCall(resolver, verdict))
		switch {
		case err == nil, errors.Is(err, contract.ErrNoOpenDispute):
			// racing the openers is the point
		case ctx.Err() != nil:
			return ctx.Err()
		default:
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Intruder keeps trying to decide as a caller that is never the resolver.
// A single success is an authorization breach and fails the run.
func Intruder(ctx context.Context, exec *host.Executor, instanceID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := exec.Invoke(ctx, instanceID, contract.DecideCall("mallory", "stolen verdict"))
		switch {
		case err == nil:
			return fmt.Errorf("intruder decided dispute on instance %s", instanceID)
		case errors.Is(err, contract.ErrNotResolver), errors.Is(err, contract.ErrNoOpenDispute):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Inspector reads the instance mid-flight and checks the record invariants
// that must hold at every committed point.
func Inspector(ctx context.Context, exec *host.Executor, instanceID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		inst, err := exec.Inspect(ctx, instanceID)
		if err == nil {
			rec := inst.Record
			switch rec.Status {
			case contract.StatusIdle, contract.StatusOpen, contract.StatusResolved:
			default:
				return fmt.Errorf("inspector: instance %s has status %q", instanceID, rec.Status)
			}
			if (rec.Status == contract.StatusResolved) != (rec.Verdict != "") {
				return fmt.Errorf("inspector: instance %s status %q with verdict %q", instanceID, rec.Status, rec.Verdict)
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Drainer runs the outbox worker loop so delivered messages accumulate while
// invocations are still producing new ones.
func Drainer(ctx context.Context, worker *outbox.Worker, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if err := worker.DrainOnce(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(100 * time.Millisecond)
	}
}
