package host

import (
	"time"

	"disputeflow/contract"
)

// Instance is one deployed contract: a row in the instances table carrying the
// full dispute record plus host bookkeeping. Redeploying under a new label
// creates an entirely independent record with its own identity.
type Instance struct {
	ID        string
	Label     string
	Record    contract.Record
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JournalEntry is one committed invocation against an instance. Seq is gapless
// and strictly increasing per instance; only successful calls are journaled so
// folding the journal from a fresh record reproduces the stored state.
type JournalEntry struct {
	ID         int64
	InstanceID string
	Seq        int64
	Op         string
	Call       contract.Call
	CreatedAt  time.Time
}

// OutboxMessage mirrors the outbox table consumed by the relay worker.
type OutboxMessage struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

const (
	// OutboxTopicDisputeOpened is enqueued for every committed open.
	OutboxTopicDisputeOpened = "dispute.opened"
	// OutboxTopicDisputeDecided is enqueued for every committed decide.
	OutboxTopicDisputeDecided = "dispute.decided"
)
