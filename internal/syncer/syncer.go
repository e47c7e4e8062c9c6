package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/stream"
	"github.com/roach88/streamcore/internal/streamid"
)

// Defaults for a SyncedStreams.
const (
	DefaultRetryUnit    = time.Second
	DefaultPingInterval = 30 * time.Second
)

// SyncedStreams keeps views in sync over one subscription.
//
// Thread-safety: all methods are safe for concurrent use. Stop may be
// called from any goroutine, including view listeners.
type SyncedStreams struct {
	svc       protocol.StreamService
	retryUnit time.Duration
	pingEvery time.Duration
	logger    *slog.Logger
	onState   func(from, to State)
	nonces    func() string

	mu       sync.Mutex
	state    State
	syncID   string
	streams  map[streamid.ID]*streamRecord
	sent     map[streamid.ID]struct{} // streams in the last SyncStreams request
	retries  int
	wake     chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
	pings    map[string]time.Time
	pongs    int
	lastPong time.Duration
}

type streamRecord struct {
	view  *stream.View
	queue *updateQueue
	done  chan struct{}
}

// Option configures a SyncedStreams.
type Option func(*SyncedStreams)

// WithRetryUnit sets the backoff unit; retry n waits 2^n units.
func WithRetryUnit(d time.Duration) Option {
	return func(s *SyncedStreams) { s.retryUnit = d }
}

// WithPingInterval sets the keepalive period. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(s *SyncedStreams) { s.pingEvery = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SyncedStreams) { s.logger = l }
}

// WithStateListener is called on every state change. It runs with the
// internal lock held and must not call back into the SyncedStreams.
func WithStateListener(fn func(from, to State)) Option {
	return func(s *SyncedStreams) { s.onState = fn }
}

// WithNonces sets the ping nonce source.
func WithNonces(fn func() string) Option {
	return func(s *SyncedStreams) { s.nonces = fn }
}

// New creates a stopped SyncedStreams over svc.
func New(svc protocol.StreamService, opts ...Option) *SyncedStreams {
	s := &SyncedStreams{
		svc:       svc,
		retryUnit: DefaultRetryUnit,
		pingEvery: DefaultPingInterval,
		logger:    slog.Default(),
		nonces:    func() string { return uuid.NewString() },
		state:     NotSyncing,
		streams:   make(map[streamid.ID]*streamRecord),
		pings:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *SyncedStreams) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SyncID returns the id of the live subscription, or "".
func (s *SyncedStreams) SyncID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncID
}

// Retries returns the current backoff exponent. It resets on SYNC_NEW.
func (s *SyncedStreams) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// Pongs returns how many pongs matched an outstanding ping, and the round
// trip of the last one.
func (s *SyncedStreams) Pongs() (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pongs, s.lastPong
}

// View returns the view of id if it is being synced.
func (s *SyncedStreams) View(id streamid.ID) (*stream.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.streams[id]
	if !ok {
		return nil, false
	}
	return rec.view, true
}

// setStateLocked moves to to, or returns InvalidTransitionError.
func (s *SyncedStreams) setStateLocked(to State) error {
	from := s.state
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	s.state = to
	s.logger.Debug("sync state", "from", from, "to", to)
	if s.onState != nil {
		s.onState(from, to)
	}
	return nil
}

// Start begins syncing every added stream. The loop runs until Stop or
// until ctx is done.
func (s *SyncedStreams) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setStateLocked(Starting); err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.retries = 0
	go s.run(loopCtx, s.done)
	return nil
}

// Stop cancels the subscription and waits for the receive loop to exit.
// Stopping a stopped SyncedStreams is a no-op.
func (s *SyncedStreams) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == NotSyncing {
		s.mu.Unlock()
		return nil
	}
	done := s.done
	if s.stopping {
		s.mu.Unlock()
		return wait(ctx, done)
	}
	s.stopping = true
	if err := s.setStateLocked(Canceling); err != nil {
		s.stopping = false
		s.mu.Unlock()
		return err
	}
	syncID, cancel := s.syncID, s.cancel
	if s.wake != nil {
		close(s.wake)
		s.wake = nil
	}
	s.mu.Unlock()

	if syncID != "" {
		if err := s.svc.CancelSync(ctx, syncID); err != nil {
			s.logger.Warn("cancel sync failed", "sync", syncID, "err", err)
		}
	}
	cancel()
	err := wait(ctx, done)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncID = ""
	s.stopping = false
	if s.state == Canceling {
		_ = s.setStateLocked(NotSyncing)
	}
	return err
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops syncing and ends every stream worker. Queued updates are
// still applied.
func (s *SyncedStreams) Close(ctx context.Context) error {
	err := s.Stop(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.streams {
		rec.queue.Close()
		delete(s.streams, id)
	}
	return err
}

// RetryNow cuts short a pending retry wait.
func (s *SyncedStreams) RetryNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wake != nil {
		close(s.wake)
		s.wake = nil
	}
}

// AddStream starts syncing view. An uninitialized view is first loaded
// with GetStream. While syncing, the stream joins the live subscription;
// otherwise it joins on the next connect.
func (s *SyncedStreams) AddStream(ctx context.Context, view *stream.View) error {
	id := view.ID()
	if !view.Initialized() {
		resp, err := s.svc.GetStream(ctx, id.Bytes())
		if err != nil {
			return err
		}
		if err := view.InitializeFromResponse(resp.Stream); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if _, ok := s.streams[id]; ok {
		s.mu.Unlock()
		return nil
	}
	rec := &streamRecord{view: view, queue: newUpdateQueue(), done: make(chan struct{})}
	s.streams[id] = rec
	go s.work(rec)
	syncID := ""
	if s.state == Syncing {
		syncID = s.syncID
	}
	s.mu.Unlock()

	if syncID == "" {
		return nil
	}
	return s.modify(ctx, &protocol.ModifySyncRequest{SyncID: syncID, AddStreams: []*protocol.SyncCookie{view.Cookie()}})
}

// RemoveStream stops syncing id. Updates already queued are applied.
func (s *SyncedStreams) RemoveStream(ctx context.Context, id streamid.ID) error {
	s.mu.Lock()
	rec, ok := s.streams[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.streams, id)
	rec.queue.Close()
	syncID := ""
	if s.state == Syncing {
		syncID = s.syncID
	}
	s.mu.Unlock()

	if syncID == "" {
		return nil
	}
	return s.modify(ctx, &protocol.ModifySyncRequest{SyncID: syncID, RemoveStreams: []protocol.Bytes{id.Bytes()}})
}

func (s *SyncedStreams) modify(ctx context.Context, req *protocol.ModifySyncRequest) error {
	resp, err := s.svc.ModifySync(ctx, req)
	if err != nil {
		return err
	}
	var errs []error
	for _, st := range append(resp.Adds, resp.Removals...) {
		s.logger.Warn("modify sync rejected stream", "sync", req.SyncID, "stream", st.StreamID.Hex(), "code", st.Code, "msg", st.Message)
		errs = append(errs, protocol.NewError(st.Code, "%s", st.Message).WithStream(st.StreamID.Hex()))
	}
	return errors.Join(errs...)
}

// Ping sends a keepalive with a fresh nonce.
func (s *SyncedStreams) Ping(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Syncing {
		state := s.state
		s.mu.Unlock()
		return protocol.NewError(protocol.CodeUnavailable, "ping while %s", state)
	}
	syncID, nonce := s.syncID, s.nonces()
	s.pings[nonce] = time.Now()
	s.mu.Unlock()
	return s.svc.PingSync(ctx, syncID, nonce)
}

func (s *SyncedStreams) work(rec *streamRecord) {
	defer close(rec.done)
	for {
		for {
			u, ok := rec.queue.TryDequeue()
			if !ok {
				break
			}
			if err := rec.view.ApplySync(u); err != nil {
				s.logger.Warn("apply sync update failed", "stream", rec.view.ID(), "err", err)
			}
		}
		if _, open := <-rec.queue.Wait(); !open && rec.queue.Len() == 0 {
			return
		}
	}
}

func (s *SyncedStreams) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		err := s.connect(ctx)
		if ctx.Err() != nil || s.State() == Canceling {
			break
		}
		if protocol.IsPermissionDenied(err) {
			s.logger.Error("sync not permitted, giving up", "err", err)
			break
		}
		if !s.waitRetry(ctx, err) {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return
	}
	// The loop ended on its own; Stop would otherwise finish the walk.
	s.syncID = ""
	if s.state != Canceling {
		_ = s.setStateLocked(Canceling)
	}
	_ = s.setStateLocked(NotSyncing)
}

// connect runs one subscription until it ends. A nil error means the
// server closed it with SYNC_CLOSE.
func (s *SyncedStreams) connect(ctx context.Context) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := s.svc.SyncStreams(connCtx, s.cookies())
	if err != nil {
		return err
	}
	for {
		resp, err := sub.Recv()
		if err != nil {
			return err
		}
		if closed := s.handle(connCtx, resp); closed {
			return nil
		}
	}
}

func (s *SyncedStreams) cookies() []*protocol.SyncCookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	cookies := make([]*protocol.SyncCookie, 0, len(s.streams))
	s.sent = make(map[streamid.ID]struct{}, len(s.streams))
	for id, rec := range s.streams {
		if c := rec.view.Cookie(); c != nil {
			cookies = append(cookies, c)
			s.sent[id] = struct{}{}
		}
	}
	return cookies
}

// reconcileLocked returns the change that brings a fresh subscription, opened
// with the streams in s.sent, up to date with streams added or removed since.
// It returns nil when nothing changed.
func (s *SyncedStreams) reconcileLocked() *protocol.ModifySyncRequest {
	req := &protocol.ModifySyncRequest{SyncID: s.syncID}
	for id, rec := range s.streams {
		if _, ok := s.sent[id]; ok {
			continue
		}
		if c := rec.view.Cookie(); c != nil {
			req.AddStreams = append(req.AddStreams, c)
		}
	}
	for id := range s.sent {
		if _, ok := s.streams[id]; !ok {
			req.RemoveStreams = append(req.RemoveStreams, id.Bytes())
		}
	}
	s.sent = nil
	if len(req.AddStreams) == 0 && len(req.RemoveStreams) == 0 {
		return nil
	}
	return req
}

func (s *SyncedStreams) handle(ctx context.Context, resp *protocol.SyncResponse) bool {
	switch resp.SyncOp {
	case protocol.SyncNew:
		var pending *protocol.ModifySyncRequest
		s.mu.Lock()
		err := s.setStateLocked(Syncing)
		if err == nil {
			s.syncID = resp.SyncID
			s.retries = 0
			pending = s.reconcileLocked()
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("unexpected SYNC_NEW", "sync", resp.SyncID, "err", err)
			return false
		}
		s.logger.Info("sync started", "sync", resp.SyncID)
		if pending != nil {
			s.logger.Debug("catching up subscription", "sync", resp.SyncID,
				"adds", len(pending.AddStreams), "removals", len(pending.RemoveStreams))
			if err := s.modify(ctx, pending); err != nil && ctx.Err() == nil {
				s.logger.Warn("catch-up modify failed", "sync", resp.SyncID, "err", err)
			}
		}
		go s.pingLoop(ctx)

	case protocol.SyncUpdate:
		if resp.Stream == nil {
			return false
		}
		id, err := streamid.FromBytes(resp.Stream.StreamID)
		if err != nil {
			s.logger.Warn("sync update with bad stream id", "err", err)
			return false
		}
		s.mu.Lock()
		rec, ok := s.streams[id]
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("sync update for unknown stream", "stream", id)
			return false
		}
		rec.queue.Enqueue(resp.Stream)

	case protocol.SyncPong:
		s.mu.Lock()
		sent, ok := s.pings[resp.PongNonce]
		if ok {
			delete(s.pings, resp.PongNonce)
			s.pongs++
			s.lastPong = time.Since(sent)
		}
		s.mu.Unlock()
		if !ok {
			s.logger.Warn("pong for unknown nonce", "nonce", resp.PongNonce)
		}

	case protocol.SyncDown:
		id, err := streamid.FromBytes(resp.StreamID)
		if err != nil {
			s.logger.Warn("sync down with bad stream id", "err", err)
			return false
		}
		s.readd(ctx, resp.SyncID, id)

	case protocol.SyncClose:
		s.logger.Info("sync closed by server", "sync", resp.SyncID)
		return true

	default:
		s.logger.Warn("unknown sync op", "op", resp.SyncOp)
	}
	return false
}

// readd puts a stream the server dropped back on the subscription from
// the view's current cookie.
func (s *SyncedStreams) readd(ctx context.Context, syncID string, id streamid.ID) {
	s.mu.Lock()
	rec, ok := s.streams[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	cookie := rec.view.Cookie()
	if cookie == nil {
		return
	}
	s.logger.Info("stream down, re-adding", "sync", syncID, "stream", id)
	req := &protocol.ModifySyncRequest{SyncID: syncID, AddStreams: []*protocol.SyncCookie{cookie}}
	if err := s.modify(ctx, req); err != nil && ctx.Err() == nil {
		s.logger.Warn("re-add failed", "stream", id, "err", err)
	}
}

func (s *SyncedStreams) pingLoop(ctx context.Context) {
	if s.pingEvery <= 0 {
		return
	}
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Ping(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("ping failed", "err", err)
			}
		}
	}
}

// waitRetry moves to Retrying and sleeps out the backoff. It returns false
// when the loop should exit instead of reconnecting.
func (s *SyncedStreams) waitRetry(ctx context.Context, cause error) bool {
	s.mu.Lock()
	if err := s.setStateLocked(Retrying); err != nil {
		s.mu.Unlock()
		return false
	}
	s.syncID = ""
	s.retries = min(s.retries+1, MaxRetryExponent)
	delay := Backoff(s.retryUnit, s.retries)
	wake := make(chan struct{})
	s.wake = wake
	attempt := s.retries
	clear(s.pings)
	s.mu.Unlock()

	s.logger.Warn("sync lost, retrying", "err", cause, "attempt", attempt, "delay", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-wake:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wake == wake {
		s.wake = nil
	}
	return s.setStateLocked(Starting) == nil
}
