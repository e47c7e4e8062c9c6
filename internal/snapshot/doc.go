// Package snapshot folds stream events into canonical snapshots.
//
// Folding is split in two steps:
//   - Update inspects one event and returns an Effect describing the single
//     mutation it implies, or nil when the event never changes canonical
//     state (messages, redactions, inceptions after genesis, headers).
//   - Apply executes an Effect against a snapshot at a given miniblock and
//     event number.
//
// Dispatch goes through protocol.Visitor, so a new payload variant does not
// compile until the reducer handles it.
//
// Callers serialize application per stream: events are applied one at a
// time, in event-number order, by a single writer. Replicated lists
// (members, channels, memberships, read markers, blocks) are sorted vectors
// keyed by bytes; see sorted.go.
package snapshot
