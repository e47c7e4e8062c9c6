// Package syncer keeps a set of stream views up to date over one sync
// subscription.
//
// SyncedStreams owns the subscription lifecycle:
//
//	NotSyncing -> Starting -> Syncing <-> Retrying -> Canceling -> NotSyncing
//
// A receive loop reads sync responses and hands each stream's updates to
// that stream's queue; a worker per stream applies them to the view in
// order, so a slow stream never holds up the others. Connection failures
// move the loop to Retrying and it reconnects after 2^n retry units, n
// capped at 7, resuming every stream from its view's cookie.
package syncer
