// Package stream holds the client-side view of one stream.
//
// A View is initialized from a GetStream response and then advanced by sync
// updates. It keeps the folded snapshot, a timeline of every event seen,
// and the cookie to resume from. The snapshot advances in delivery order:
// minipool events are folded as they arrive, at the number of the
// miniblock they will land in. Miniblock headers confirm events and, when
// they embed a snapshot, are checked against the local fold.
//
// A View has a single writer. All reads of its snapshot go through Read,
// which holds the view's mutex for the duration of the callback.
package stream
