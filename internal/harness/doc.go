// Package harness runs stream scenarios against an in-process node.
//
// A scenario names a few deterministic wallets, drives a flow of stream
// actions through the node's write path, and then folds every stream it
// touched from scratch on the client side. Assertions check the trace of
// actions and the folded state.
//
// # Scenario Format
//
//	name: channel_membership
//	description: "Members join a channel and one leaves"
//	wallets: [alice, bob]
//	setup:
//	  - invoke: Stream.create
//	    args: { stream: town, kind: space, as: alice }
//	flow:
//	  - invoke: Member.join
//	    args: { stream: town, as: bob }
//	    expect:
//	      case: Success
//	  - invoke: Miniblock.make
//	    args: { stream: town }
//	    expect:
//	      case: Success
//	      result: { miniblock_num: 1, events: 1 }
//	assertions:
//	  - type: trace_count
//	    action: Member.join
//	    count: 1
//	  - type: final_state
//	    stream: town
//	    expect: { members: [alice, bob], miniblock_num: 1 }
//
// # Actions
//
//   - Stream.create: kind is space, channel (needs space) or dm (needs with)
//   - Member.join, Member.leave
//   - Message.post: text is wrapped as placeholder ciphertext
//   - Key.solicit: device, sessions, new_device
//   - Key.fulfill: user, device, sessions
//   - Miniblock.make: force seals an empty miniblock
//
// A failing action completes with its protocol error code as the case, so
// scenarios can expect PERMISSION_DENIED or NOT_FOUND.
//
// # Assertion Types
//
//   - trace_contains: an invocation of action with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: action appears exactly count times
//   - final_state: subset match against the folded state of a stream
//
// # Determinism
//
// Wallets derive from their names, event salts and timestamps come from a
// counter, and the trace carries no hashes, so the same scenario always
// yields the same trace and golden output.
package harness
