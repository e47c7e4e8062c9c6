package syncer

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a SyncedStreams.
type State string

const (
	NotSyncing State = "NotSyncing"
	Starting   State = "Starting"
	Syncing    State = "Syncing"
	Retrying   State = "Retrying"
	Canceling  State = "Canceling"
)

var transitions = map[State]map[State]bool{
	NotSyncing: {Starting: true},
	Starting:   {Syncing: true, Retrying: true, Canceling: true},
	Syncing:    {Canceling: true, Retrying: true},
	Retrying:   {Starting: true, Canceling: true, Syncing: true, Retrying: true},
	Canceling:  {NotSyncing: true},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	return transitions[from][to]
}

// InvalidTransitionError reports a rejected state change.
type InvalidTransitionError struct {
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid sync state transition %s -> %s", e.From, e.To)
}

// MaxRetryExponent caps the backoff at 2^7 retry units.
const MaxRetryExponent = 7

// Backoff returns the delay before retry attempt n (1-based): 2^n units,
// with n capped at MaxRetryExponent.
func Backoff(unit time.Duration, n int) time.Duration {
	n = max(1, min(n, MaxRetryExponent))
	return unit * time.Duration(1<<n)
}
