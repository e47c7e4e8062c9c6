// Package entitlement is the client side of the on-chain permission
// oracle: who may read a stream and whose membership token has expired.
package entitlement

import (
	"context"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Permission is a stream permission checked against the chain.
type Permission string

const (
	PermissionRead  Permission = "Read"
	PermissionWrite Permission = "Write"
)

// MembershipStatus is a space membership token as seen by the chain.
type MembershipStatus struct {
	IsMember  bool   `json:"isMember"`
	IsExpired bool   `json:"isExpired"`
	TokenID   string `json:"tokenId,omitempty"`
}

// Checker answers entitlement questions.
type Checker interface {
	IsEntitled(ctx context.Context, id streamid.ID, user protocol.Bytes, perm Permission) (bool, error)
}

// Oracle is the full entitlement collaborator. Wallets are the user's
// linked wallets; any of them holding a live token makes the user a member.
type Oracle interface {
	Checker
	GetMembershipStatus(ctx context.Context, space streamid.ID, wallets []protocol.Bytes) (MembershipStatus, error)
}
