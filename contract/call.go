package contract

import (
	"errors"
	"fmt"
)

// Operation names accepted by Apply. These are the values stored in the
// journal's op column, so they must never be renamed.
const (
	OpOpen   = "open"
	OpDecide = "decide"
)

// ErrUnknownOp signals a call with an operation name the contract does not export.
var ErrUnknownOp = errors.New("contract: unknown operation")

// Call is the serializable invocation envelope. Live execution and replay both
// go through Apply with a Call, which keeps the two paths from diverging.
type Call struct {
	Op         string `json:"op"`
	Claimant   string `json:"claimant,omitempty"`
	Respondent string `json:"respondent,omitempty"`
	Resolver   string `json:"resolver,omitempty"`
	Caller     string `json:"caller,omitempty"`
	Verdict    string `json:"verdict,omitempty"`
}

// OpenCall builds the envelope for an open invocation.
func OpenCall(claimant, respondent, resolver string) Call {
	return Call{Op: OpOpen, Claimant: claimant, Respondent: respondent, Resolver: resolver}
}

// DecideCall builds the envelope for a decide invocation.
func DecideCall(caller, verdict string) Call {
	return Call{Op: OpDecide, Caller: caller, Verdict: verdict}
}

// Apply dispatches call against rec. The record is mutated only when the
// operation succeeds.
func Apply(rec *Record, call Call) error {
	switch call.Op {
	case OpOpen:
		return rec.Open(call.Claimant, call.Respondent, call.Resolver)
	case OpDecide:
		return rec.Decide(call.Caller, call.Verdict)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, call.Op)
	}
}
