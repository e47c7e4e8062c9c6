package entitlement

import (
	"context"
	"sync"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Static is an in-memory Oracle. With Open set, every user is entitled to
// every stream unless revoked.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Static struct {
	Open bool

	mu      sync.Mutex
	grants  map[string]bool
	status  map[string]MembershipStatus
	lookups int
}

var _ Oracle = (*Static)(nil)

// NewStatic creates an oracle that entitles nobody.
func NewStatic() *Static {
	return &Static{grants: make(map[string]bool), status: make(map[string]MembershipStatus)}
}

func grantKey(id streamid.ID, user []byte, perm Permission) string {
	return id.String() + "/" + protocol.Bytes(user).Hex() + "/" + string(perm)
}

func statusKey(space streamid.ID, wallet []byte) string {
	return space.String() + "/" + protocol.Bytes(wallet).Hex()
}

// Grant entitles user to perm on id.
func (s *Static) Grant(id streamid.ID, user []byte, perm Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey(id, user, perm)] = true
}

// Revoke removes user's perm on id, overriding Open.
func (s *Static) Revoke(id streamid.ID, user []byte, perm Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey(id, user, perm)] = false
}

// SetStatus records the membership token of wallet in space.
func (s *Static) SetStatus(space streamid.ID, wallet []byte, st MembershipStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[statusKey(space, wallet)] = st
}

// Lookups returns how many questions the oracle answered.
func (s *Static) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *Static) IsEntitled(_ context.Context, id streamid.ID, user protocol.Bytes, perm Permission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	ok, set := s.grants[grantKey(id, user, perm)]
	if !set {
		return s.Open, nil
	}
	return ok, nil
}

// GetMembershipStatus returns the first live token among wallets, else the
// first expired one, else a non-member status. Unknown wallets count as
// live members when Open is set.
func (s *Static) GetMembershipStatus(_ context.Context, space streamid.ID, wallets []protocol.Bytes) (MembershipStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	var expired *MembershipStatus
	known := false
	for _, w := range wallets {
		st, ok := s.status[statusKey(space, w)]
		if !ok {
			continue
		}
		known = true
		if st.IsMember && !st.IsExpired {
			return st, nil
		}
		if st.IsExpired && expired == nil {
			expired = &st
		}
	}
	if expired != nil {
		return *expired, nil
	}
	if !known && s.Open {
		return MembershipStatus{IsMember: true}, nil
	}
	return MembershipStatus{}, nil
}
