package contract

import "errors"

// Status is the lifecycle state of a dispute record.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

var (
	// ErrDisputeActive signals open was called while a dispute is already open.
	ErrDisputeActive = errors.New("contract: dispute active")
	// ErrNoOpenDispute signals decide was called with no open dispute.
	ErrNoOpenDispute = errors.New("contract: no open dispute")
	// ErrNotResolver signals the caller is not the designated resolver.
	ErrNotResolver = errors.New("contract: only resolver can decide")
	// ErrEmptyVerdict signals decide was called with an empty verdict string.
	ErrEmptyVerdict = errors.New("contract: empty verdict")
)

// Record holds the complete state of one deployed dispute-resolution contract.
// The zero value is not usable; construct with NewRecord so Status starts idle.
type Record struct {
	DisputeNo  int64
	Claimant   string
	Respondent string
	Resolver   string
	Status     Status
	Verdict    string
}

// NewRecord returns the state a freshly deployed instance starts with.
func NewRecord() Record {
	return Record{Status: StatusIdle}
}

// Open starts a new dispute. Allowed from idle and resolved; a second open
// while a dispute is active fails and leaves the record untouched. On success
// the dispute counter advances by one, the parties are overwritten, and any
// previous verdict is cleared.
func (r *Record) Open(claimant, respondent, resolver string) error {
	if r.Status == StatusOpen {
		return ErrDisputeActive
	}

	r.DisputeNo++
	r.Claimant = claimant
	r.Respondent = respondent
	r.Resolver = resolver
	r.Status = StatusOpen
	r.Verdict = ""
	return nil
}

// Decide records the resolver's verdict and closes the open dispute. Guards
// are checked in order (state, then caller, then verdict) and none of them
// mutates the record. Empty verdicts are rejected so that a non-empty verdict
// holds exactly when the record is resolved.
func (r *Record) Decide(caller, verdict string) error {
	if r.Status != StatusOpen {
		return ErrNoOpenDispute
	}
	if caller != r.Resolver {
		return ErrNotResolver
	}
	if verdict == "" {
		return ErrEmptyVerdict
	}

	r.Verdict = verdict
	r.Status = StatusResolved
	return nil
}

// Snapshot returns a value copy of the record.
func (r *Record) Snapshot() Record {
	return *r
}

// FaultKind buckets contract errors so hosts can map them programmatically.
type FaultKind string

const (
	FaultInvalidState    FaultKind = "invalid_state"
	FaultUnauthorized    FaultKind = "unauthorized"
	FaultInvalidArgument FaultKind = "invalid_argument"
	FaultUnknown         FaultKind = "unknown"
)

// Kind classifies err into a FaultKind. Non-contract errors map to FaultUnknown.
func Kind(err error) FaultKind {
	switch {
	case errors.Is(err, ErrDisputeActive), errors.Is(err, ErrNoOpenDispute):
		return FaultInvalidState
	case errors.Is(err, ErrNotResolver):
		return FaultUnauthorized
	case errors.Is(err, ErrEmptyVerdict):
		return FaultInvalidArgument
	default:
		return FaultUnknown
	}
}
