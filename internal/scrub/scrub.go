// Package scrub evicts members who lost their entitlement or whose
// membership token expired.
//
// Scrubbing is advisory. It runs in the background after a join lands and
// never blocks the join; a member may stay joined between losing
// entitlement and the next scrub of the stream.
package scrub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/streamcore/internal/entitlement"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/stream"
	"github.com/roach88/streamcore/internal/streamid"
)

// Defaults for a Scrubber.
const (
	DefaultEligibleDuration = 4 * time.Hour
	DefaultWorkers          = 2
	DefaultQueueSize        = 256
)

// Evictor removes a member from a stream.
type Evictor interface {
	Leave(ctx context.Context, v *stream.View, user protocol.Bytes, reason protocol.MembershipReason) error
}

// PosterEvictor evicts by posting an SO_LEAVE initiated by the poster.
type PosterEvictor struct {
	Poster *stream.Poster
}

func (e PosterEvictor) Leave(ctx context.Context, v *stream.View, user protocol.Bytes, reason protocol.MembershipReason) error {
	_, err := e.Poster.Post(ctx, v, &protocol.Membership{
		Op:               protocol.MembershipOpLeave,
		UserAddress:      user,
		InitiatorAddress: e.Poster.Address(),
		Reason:           reason,
	}, false)
	return err
}

// Views looks up the view of a synced stream.
type Views interface {
	View(id streamid.ID) (*stream.View, bool)
}

// Eviction is one member removed by a scrub.
type Eviction struct {
	User   protocol.Bytes
	Reason protocol.MembershipReason
}

// Report summarizes one scrub of a stream.
type Report struct {
	Stream  streamid.ID
	Checked int
	Evicted []Eviction
}

// Scrubber re-checks the members of multi-party streams.
//
// Thread-safety: all methods are safe for concurrent use.
type Scrubber struct {
	oracle   entitlement.Oracle
	evictor  Evictor
	views    Views
	self     protocol.Bytes
	eligible time.Duration
	workers  int
	now      func() time.Time
	onReport func(Report)
	logger   *slog.Logger

	queue chan streamid.ID
	wg    sync.WaitGroup

	mu      sync.Mutex
	pending map[streamid.ID]bool
	last    map[streamid.ID]time.Time
	started bool
	closed  bool
}

// Option configures a Scrubber.
type Option func(*Scrubber)

// WithEligibleDuration sets the minimum time between scrubs of a stream.
func WithEligibleDuration(d time.Duration) Option {
	return func(s *Scrubber) { s.eligible = d }
}

// WithWorkers sets how many streams are scrubbed concurrently.
func WithWorkers(n int) Option {
	return func(s *Scrubber) { s.workers = n }
}

// WithSelf names an address that is never evicted.
func WithSelf(addr protocol.Bytes) Option {
	return func(s *Scrubber) { s.self = addr }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scrubber) { s.now = now }
}

// WithReports is called after every scrub.
func WithReports(fn func(Report)) Option {
	return func(s *Scrubber) { s.onReport = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scrubber) { s.logger = l }
}

// New creates a Scrubber. Call Start before scrubs are processed.
func New(oracle entitlement.Oracle, evictor Evictor, views Views, opts ...Option) *Scrubber {
	s := &Scrubber{
		oracle:   oracle,
		evictor:  evictor,
		views:    views,
		eligible: DefaultEligibleDuration,
		workers:  DefaultWorkers,
		now:      time.Now,
		logger:   slog.Default(),
		queue:    make(chan streamid.ID, DefaultQueueSize),
		pending:  make(map[streamid.ID]bool),
		last:     make(map[streamid.ID]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.workers = max(1, s.workers)
	return s
}

// Listeners returns view hooks that scrub a stream whenever someone joins.
func (s *Scrubber) Listeners() stream.Listeners {
	return stream.Listeners{
		OnMemberJoined: func(id streamid.ID, _ protocol.Bytes) { s.Scrub(id) },
	}
}

// Start launches the workers. They exit when ctx is done or on Close.
func (s *Scrubber) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	for range s.workers {
		s.wg.Add(1)
		go s.work(ctx)
	}
}

// Close stops accepting scrubs and waits for running ones to finish.
func (s *Scrubber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

// Scrub queues id. It returns false when id is not a multi-party stream,
// is already queued, was scrubbed within the eligible duration, or the
// queue is full.
func (s *Scrubber) Scrub(id streamid.ID) bool {
	switch id.Prefix() {
	case streamid.PrefixSpace, streamid.PrefixChannel:
	default:
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending[id] {
		return false
	}
	if last, ok := s.last[id]; ok && s.now().Sub(last) < s.eligible {
		return false
	}
	select {
	case s.queue <- id:
		s.pending[id] = true
		return true
	default:
		s.logger.Warn("scrub queue full", "stream", id)
		return false
	}
}

func (s *Scrubber) work(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-s.queue:
			if !ok {
				return
			}
			report := s.scrub(ctx, id)
			s.mu.Lock()
			delete(s.pending, id)
			s.last[id] = s.now()
			s.mu.Unlock()
			if s.onReport != nil {
				s.onReport(report)
			}
		}
	}
}

func (s *Scrubber) scrub(ctx context.Context, id streamid.ID) Report {
	report := Report{Stream: id}
	view, ok := s.views.View(id)
	if !ok {
		return report
	}
	space := spaceOf(view)

	for _, user := range view.Members() {
		if ctx.Err() != nil {
			break
		}
		if user.Equal(s.self) {
			continue
		}
		report.Checked++
		reason, err := s.check(ctx, id, space, user)
		if err != nil {
			s.logger.Warn("scrub check failed", "stream", id, "user", user.Hex(), "err", err)
			continue
		}
		if reason == protocol.ReasonNone {
			continue
		}
		if err := s.evictor.Leave(ctx, view, user, reason); err != nil {
			s.logger.Warn("scrub eviction failed", "stream", id, "user", user.Hex(), "reason", reason, "err", err)
			continue
		}
		s.logger.Info("member scrubbed", "stream", id, "user", user.Hex(), "reason", reason)
		report.Evicted = append(report.Evicted, Eviction{User: user, Reason: reason})
	}
	return report
}

// check returns why user should be evicted, or ReasonNone.
func (s *Scrubber) check(ctx context.Context, id, space streamid.ID, user protocol.Bytes) (protocol.MembershipReason, error) {
	ok, err := s.oracle.IsEntitled(ctx, id, user, entitlement.PermissionRead)
	if err != nil {
		return protocol.ReasonNone, err
	}
	if !ok {
		return protocol.ReasonNotEntitled, nil
	}
	st, err := s.oracle.GetMembershipStatus(ctx, space, []protocol.Bytes{user})
	if err != nil {
		return protocol.ReasonNone, err
	}
	if st.IsExpired {
		return protocol.ReasonExpired, nil
	}
	return protocol.ReasonNone, nil
}

// spaceOf returns the space a channel belongs to, or the stream itself.
func spaceOf(v *stream.View) streamid.ID {
	space := v.ID()
	v.Read(func(s *protocol.Snapshot) {
		if s == nil || s.Channel == nil || s.Channel.Inception == nil {
			return
		}
		if id, err := streamid.FromBytes(s.Channel.Inception.SpaceID); err == nil {
			space = id
		}
	})
	return space
}
