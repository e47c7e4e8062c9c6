package entitlement

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Defaults for NewCache.
const (
	DefaultCacheSize = 4096
	DefaultCacheTTL  = 5 * time.Minute
)

// Cache is an Oracle that remembers answers for a TTL. Errors are not
// cached.
//
// Thread-safety: safe for concurrent use; the LRUs lock internally.
type Cache struct {
	oracle   Oracle
	entitled *expirable.LRU[string, bool]
	status   *expirable.LRU[string, MembershipStatus]
}

var _ Oracle = (*Cache)(nil)

// NewCache wraps oracle. Non-positive size or ttl fall back to the
// defaults.
func NewCache(oracle Oracle, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		oracle:   oracle,
		entitled: expirable.NewLRU[string, bool](size, nil, ttl),
		status:   expirable.NewLRU[string, MembershipStatus](size, nil, ttl),
	}
}

func (c *Cache) IsEntitled(ctx context.Context, id streamid.ID, user protocol.Bytes, perm Permission) (bool, error) {
	key := id.String() + "/" + user.Hex() + "/" + string(perm)
	if ok, hit := c.entitled.Get(key); hit {
		return ok, nil
	}
	ok, err := c.oracle.IsEntitled(ctx, id, user, perm)
	if err != nil {
		return false, err
	}
	c.entitled.Add(key, ok)
	return ok, nil
}

func (c *Cache) GetMembershipStatus(ctx context.Context, space streamid.ID, wallets []protocol.Bytes) (MembershipStatus, error) {
	hexes := make([]string, len(wallets))
	for i, w := range wallets {
		hexes[i] = w.Hex()
	}
	key := space.String() + "/" + strings.Join(hexes, ",")
	if st, hit := c.status.Get(key); hit {
		return st, nil
	}
	st, err := c.oracle.GetMembershipStatus(ctx, space, wallets)
	if err != nil {
		return MembershipStatus{}, err
	}
	c.status.Add(key, st)
	return st, nil
}

// Invalidate drops every cached answer, e.g. after a membership renewal.
func (c *Cache) Invalidate() {
	c.entitled.Purge()
	c.status.Purge()
	slog.Debug("entitlement cache purged")
}

// Len returns the number of cached answers.
func (c *Cache) Len() int { return c.entitled.Len() + c.status.Len() }
