package host

import (
	"context"
	"errors"
	"testing"

	"disputeflow/contract"
)

func TestReplay_ReproducesStoredState(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	exec := NewExecutor(pool, repo)
	replayer := NewReplayer(repo, repo)

	ctx := context.Background()
	calls := []contract.Call{
		contract.OpenCall("alice", "bob", "judge"),
		contract.DecideCall("judge", "claimant_wins"),
		contract.OpenCall("carol", "dave", "judge"),
		contract.DecideCall("judge", "respondent_wins"),
	}
	for i, call := range calls {
		if _, err := exec.Invoke(ctx, repo.inst.ID, call); err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
	}

	replayed, err := replayer.Replay(ctx, repo.inst.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != repo.inst.Record {
		t.Fatalf("replayed %+v differs from stored %+v", replayed, repo.inst.Record)
	}

	if err := replayer.Verify(ctx, repo.inst.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestReplay_RejectedCallsLeaveNoTrace(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	exec := NewExecutor(pool, repo)
	replayer := NewReplayer(repo, repo)

	ctx := context.Background()
	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.OpenCall("alice", "bob", "judge")); err != nil {
		t.Fatalf("open: %v", err)
	}
	// Misuse that must not end up in the journal.
	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.OpenCall("x", "y", "z")); err == nil {
		t.Fatal("expected double open to fail")
	}
	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.DecideCall("mallory", "x")); err == nil {
		t.Fatal("expected unauthorized decide to fail")
	}

	if err := replayer.Verify(ctx, repo.inst.ID); err != nil {
		t.Fatalf("verify after rejected calls: %v", err)
	}
}

func TestVerify_StateMismatch(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	exec := NewExecutor(pool, repo)
	replayer := NewReplayer(repo, repo)

	ctx := context.Background()
	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.OpenCall("alice", "bob", "judge")); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Corrupt the stored state behind the journal's back.
	repo.inst.Record.Verdict = "tampered"
	repo.inst.Record.Status = contract.StatusResolved

	err := replayer.Verify(ctx, repo.inst.ID)
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
}

func TestReplay_DivergedJournal(t *testing.T) {
	repo := newFakeRepo()
	replayer := NewReplayer(repo, repo)

	// A decide with no preceding open can never have been committed; a journal
	// containing one is corrupt.
	repo.journal = append(repo.journal, JournalEntry{
		InstanceID: repo.inst.ID,
		Seq:        1,
		Op:         contract.OpDecide,
		Call:       contract.DecideCall("judge", "x"),
	})

	_, err := replayer.Replay(context.Background(), repo.inst.ID)
	if !errors.Is(err, ErrReplayDiverged) {
		t.Fatalf("expected ErrReplayDiverged, got %v", err)
	}
}

func TestVerifyEquivalence_ConcurrentRuns(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	exec := NewExecutor(pool, repo)
	replayer := NewReplayer(repo, repo)

	ctx := context.Background()
	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.OpenCall("alice", "bob", "judge")); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := exec.Invoke(ctx, repo.inst.ID, contract.DecideCall("judge", "done")); err != nil {
		t.Fatalf("decide: %v", err)
	}

	if err := replayer.VerifyEquivalence(ctx, repo.inst.ID, 8); err != nil {
		t.Fatalf("verify equivalence: %v", err)
	}
}
