// Package keydist moves group session keys between the devices of a
// stream's members.
//
// A device missing keys first asks with an ephemeral solicitation, which
// online holders answer quickly and which never lands in a miniblock. If
// the keys are still missing after the ephemeral timeout, the request is
// escalated to one persisted solicitation that stays in the member's
// snapshot until fulfilled. Holders answer solicitations after a random
// delay that grows with the stream's size, so that one of them, not all,
// usually replies.
package keydist
