// Package node is an in-process stream node.
//
// A Node implements protocol.StreamService on top of a miniblock.Store. It
// validates incoming events against a pending snapshot, keeps each stream's
// minipool, seals miniblocks on request or on a ticker, and fans out
// events to sync subscriptions. Delivery is at least once: an event is sent
// when it enters the minipool and its hash is listed again in the header
// event sent when the miniblock closes.
//
// Node is used by tests, by the scenario harness and by the node command
// of the CLI. It is not a replicated server: minipools live in memory and
// are lost on restart.
package node
