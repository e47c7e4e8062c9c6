package keydist

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/roach88/streamcore/internal/entitlement"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/stream"
	"github.com/roach88/streamcore/internal/streamid"
)

const (
	// DefaultEphemeralTimeout is how long an ephemeral solicitation waits
	// for a fulfillment before it is persisted.
	DefaultEphemeralTimeout = 30 * time.Second

	// MaxSessionsPerRequest caps the session ids in one solicitation.
	MaxSessionsPerRequest = 100

	minRespondWait = 5
	maxRespondWait = 30
)

// Device identifies this client's encryption device.
type Device struct {
	Key         string
	FallbackKey string
}

// SessionStore holds the group sessions this device can share.
type SessionStore interface {
	SessionIDs(ctx context.Context, id streamid.ID) ([]string, error)
}

// EventSender posts content to a view's stream.
type EventSender interface {
	Post(ctx context.Context, v *stream.View, content protocol.Content, ephemeral bool) (*protocol.ParsedEvent, error)
}

// Views looks up the view of a synced stream.
type Views interface {
	View(id streamid.ID) (*stream.View, bool)
}

// Manager runs key exchange for one device.
//
// Thread-safety: all methods are safe for concurrent use. Listener
// callbacks only schedule work and return immediately.
type Manager struct {
	user     protocol.Bytes
	device   Device
	sessions SessionStore
	sender   EventSender
	views    Views
	checker  entitlement.Checker
	timeout  time.Duration
	rand     func() float64
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	own       map[streamid.ID][]*ownRequest
	responses map[responseKey]*response
	closed    bool
}

// ownRequest is an ephemeral solicitation of ours awaiting fulfillment.
type ownRequest struct {
	missing     map[string]struct{}
	isNewDevice bool
	timer       *time.Timer
}

type responseKey struct {
	stream streamid.ID
	device string
}

// response is a scheduled answer to someone else's solicitation.
type response struct {
	sender    protocol.Bytes
	sol       *protocol.KeySolicitation
	ephemeral bool
	timer     *time.Timer
}

// Option configures a Manager.
type Option func(*Manager)

// WithEphemeralTimeout sets how long to wait before persisting a request.
func WithEphemeralTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithEntitlements adds an on-chain check for channel key exchange.
func WithEntitlements(c entitlement.Checker) Option {
	return func(m *Manager) { m.checker = c }
}

// WithRand sets the [0,1) source that spreads response delays.
func WithRand(fn func() float64) Option {
	return func(m *Manager) { m.rand = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager for user's device.
func NewManager(user protocol.Bytes, device Device, sessions SessionStore, sender EventSender, views Views, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		user:      user.Clone(),
		device:    device,
		sessions:  sessions,
		sender:    sender,
		views:     views,
		timeout:   DefaultEphemeralTimeout,
		rand:      rand.Float64,
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
		own:       make(map[streamid.ID][]*ownRequest),
		responses: make(map[responseKey]*response),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Listeners returns the view hooks that feed the manager.
func (m *Manager) Listeners() stream.Listeners {
	return stream.Listeners{
		OnKeySolicitation: m.OnSolicitation,
		OnKeyFulfillment:  m.OnFulfillment,
	}
}

// Close stops every timer. Scheduled responses and escalations are
// dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, reqs := range m.own {
		for _, r := range reqs {
			r.timer.Stop()
		}
		delete(m.own, id)
	}
	for k, r := range m.responses {
		r.timer.Stop()
		delete(m.responses, k)
	}
	m.cancel()
}

// Outstanding returns the sorted session ids still awaited from ephemeral
// requests on id.
func (m *Manager) Outstanding(id streamid.ID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.own[id] {
		for s := range r.missing {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Scheduled returns how many responses are waiting for their delay.
func (m *Manager) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}

// RequestKeys asks the members of id for the given sessions. Nothing is
// sent when this user is not a member, or when a persisted request of this
// device already asks for the same sessions or for everything.
func (m *Manager) RequestKeys(ctx context.Context, id streamid.ID, sessionIDs []string) error {
	missing := slices.Clone(sessionIDs)
	slices.Sort(missing)
	missing = slices.Compact(missing)
	if len(missing) > MaxSessionsPerRequest {
		missing = missing[:MaxSessionsPerRequest]
	}
	if len(missing) == 0 {
		return nil
	}
	view, ok := m.views.View(id)
	if !ok {
		return protocol.NewError(protocol.CodeNotFound, "request keys: stream %s not synced", id)
	}
	if !view.IsMember(m.user) {
		m.logger.Debug("not a member, not requesting keys", "stream", id)
		return nil
	}
	for _, sol := range view.Solicitations(m.user) {
		if sol.DeviceKey == m.device.Key && (sol.IsNewDevice || slices.Equal(sol.SessionIDs, missing)) {
			m.logger.Debug("keys already requested", "stream", id, "sessions", len(missing))
			return nil
		}
	}

	known, err := m.sessions.SessionIDs(ctx, id)
	if err != nil {
		return err
	}
	sol := &protocol.KeySolicitation{
		DeviceKey:   m.device.Key,
		FallbackKey: m.device.FallbackKey,
		IsNewDevice: len(known) == 0,
		SessionIDs:  missing,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return protocol.NewError(protocol.CodeUnavailable, "key manager closed")
	}
	req := &ownRequest{missing: make(map[string]struct{}, len(missing)), isNewDevice: sol.IsNewDevice}
	for _, s := range missing {
		req.missing[s] = struct{}{}
	}
	req.timer = time.AfterFunc(m.timeout, func() { m.escalate(id) })
	m.own[id] = append(m.own[id], req)
	m.mu.Unlock()

	m.logger.Debug("requesting keys", "stream", id, "sessions", len(missing), "new_device", sol.IsNewDevice, "ephemeral", true)
	_, err = m.sender.Post(ctx, view, sol, true)
	return err
}

// escalate replaces every pending ephemeral request on id with one
// persisted solicitation for what is still missing.
func (m *Manager) escalate(id streamid.ID) {
	m.mu.Lock()
	reqs := m.own[id]
	delete(m.own, id)
	closed := m.closed
	m.mu.Unlock()
	if closed || len(reqs) == 0 {
		return
	}

	sol := &protocol.KeySolicitation{DeviceKey: m.device.Key, FallbackKey: m.device.FallbackKey}
	for _, r := range reqs {
		r.timer.Stop()
		for s := range r.missing {
			sol.SessionIDs = append(sol.SessionIDs, s)
		}
		sol.IsNewDevice = sol.IsNewDevice || r.isNewDevice
	}
	slices.Sort(sol.SessionIDs)
	sol.SessionIDs = slices.Compact(sol.SessionIDs)
	if len(sol.SessionIDs) == 0 && !sol.IsNewDevice {
		return
	}

	view, ok := m.views.View(id)
	if !ok {
		return
	}
	m.logger.Info("persisting key solicitation", "stream", id, "requests", len(reqs), "sessions", len(sol.SessionIDs))
	if _, err := m.sender.Post(m.ctx, view, sol, false); err != nil && m.ctx.Err() == nil {
		m.logger.Warn("persist key solicitation failed", "stream", id, "err", err)
	}
}

// OnFulfillment trims our own requests and any scheduled responses to the
// fulfilled device. A request with nothing left is cancelled.
func (m *Manager) OnFulfillment(id streamid.ID, ful *protocol.KeyFulfillment, ephemeral bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ful.DeviceKey == m.device.Key {
		kept := m.own[id][:0]
		for _, r := range m.own[id] {
			for _, s := range ful.SessionIDs {
				delete(r.missing, s)
			}
			if len(r.missing) == 0 {
				r.timer.Stop()
				m.logger.Debug("key request fulfilled", "stream", id, "ephemeral", ephemeral)
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(m.own, id)
		} else {
			m.own[id] = kept
		}
	}

	key := responseKey{stream: id, device: ful.DeviceKey}
	r, ok := m.responses[key]
	if !ok {
		return
	}
	r.sol.SessionIDs = slices.DeleteFunc(r.sol.SessionIDs, func(s string) bool {
		return slices.Contains(ful.SessionIDs, s)
	})
	if len(r.sol.SessionIDs) == 0 && !r.sol.IsNewDevice {
		r.timer.Stop()
		delete(m.responses, key)
		m.logger.Debug("response no longer needed", "stream", id, "device", ful.DeviceKey)
	}
}

// OnSolicitation schedules an answer to a solicitation from another
// device. A newer solicitation from the same device replaces the older.
func (m *Manager) OnSolicitation(id streamid.ID, sender protocol.Bytes, sol *protocol.KeySolicitation, ephemeral bool) {
	if sol.DeviceKey == m.device.Key {
		return
	}
	key := responseKey{stream: id, device: sol.DeviceKey}
	delay := m.RespondDelay(id, sender, ephemeral)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if old, ok := m.responses[key]; ok {
		old.timer.Stop()
		delete(m.responses, key)
	}
	if len(sol.SessionIDs) == 0 && !sol.IsNewDevice {
		return
	}

	r := &response{
		sender:    sender.Clone(),
		sol:       &protocol.KeySolicitation{DeviceKey: sol.DeviceKey, FallbackKey: sol.FallbackKey, IsNewDevice: sol.IsNewDevice, SessionIDs: slices.Clone(sol.SessionIDs)},
		ephemeral: ephemeral,
	}
	r.timer = time.AfterFunc(delay, func() { m.respond(key, r) })
	m.responses[key] = r
}

// RespondDelay is how long to wait before answering user on id: up to
// clamp(members, 5, 30) seconds, halved for our own other devices.
// Ephemeral requests are answered twice as fast, and at once for our own.
func (m *Manager) RespondDelay(id streamid.ID, user protocol.Bytes, ephemeral bool) time.Duration {
	members := 0
	if view, ok := m.views.View(id); ok {
		members = len(view.Members())
	}
	wait := time.Duration(max(minRespondWait, min(maxRespondWait, members))) * time.Second
	delay := time.Duration(float64(wait) * m.rand())
	own := user.Equal(m.user)
	if own {
		delay /= 2
	}
	if ephemeral {
		if own {
			return 0
		}
		return delay / 2
	}
	return delay
}

func (m *Manager) respond(key responseKey, r *response) {
	m.mu.Lock()
	if m.responses[key] != r {
		m.mu.Unlock()
		return
	}
	delete(m.responses, key)
	sol := &protocol.KeySolicitation{IsNewDevice: r.sol.IsNewDevice, SessionIDs: slices.Clone(r.sol.SessionIDs)}
	m.mu.Unlock()

	ctx := m.ctx
	view, ok := m.views.View(key.stream)
	if !ok {
		return
	}
	if !r.ephemeral {
		// Persisted requests are answered from the snapshot, which drops
		// whatever other members already fulfilled.
		current := m.findSolicitation(view, r.sender, key.device)
		if current == nil {
			m.logger.Debug("solicitation already fulfilled", "stream", key.stream, "device", key.device)
			return
		}
		sol = current
	}

	known, err := m.sessions.SessionIDs(ctx, key.stream)
	if err != nil {
		m.logger.Warn("list sessions failed", "stream", key.stream, "err", err)
		return
	}
	known = slices.Sorted(slices.Values(known))
	reply := known
	if !sol.IsNewDevice {
		reply = slices.DeleteFunc(slices.Clone(known), func(s string) bool {
			return !slices.Contains(sol.SessionIDs, s)
		})
	}
	if len(reply) == 0 {
		return
	}

	ok, err = m.entitled(ctx, view, r.sender)
	if err != nil {
		m.logger.Warn("entitlement check failed", "stream", key.stream, "err", err)
		return
	}
	if !ok {
		m.logger.Info("requester not entitled to keys", "stream", key.stream, "user", r.sender.Hex())
		return
	}

	ful := &protocol.KeyFulfillment{UserAddress: r.sender, DeviceKey: key.device, SessionIDs: reply}
	if _, err := m.sender.Post(ctx, view, ful, r.ephemeral); err != nil {
		// Someone else answered first.
		if protocol.IsDuplicateEvent(err) || protocol.IsNotFound(err) {
			return
		}
		if ctx.Err() == nil {
			m.logger.Warn("send key fulfillment failed", "stream", key.stream, "err", err)
		}
		return
	}
	m.logger.Debug("sent key fulfillment", "stream", key.stream, "device", key.device, "sessions", len(reply), "ephemeral", r.ephemeral)
}

func (m *Manager) findSolicitation(view *stream.View, user protocol.Bytes, device string) *protocol.KeySolicitation {
	for _, s := range view.Solicitations(user) {
		if s.DeviceKey == device && (len(s.SessionIDs) > 0 || s.IsNewDevice) {
			return s
		}
	}
	return nil
}

// entitled reports whether user may receive keys for view's stream: a
// joined member and, on channels, readable per the chain.
func (m *Manager) entitled(ctx context.Context, view *stream.View, user protocol.Bytes) (bool, error) {
	if !view.IsMember(user) {
		return false, nil
	}
	if m.checker == nil || view.ID().Prefix() != streamid.PrefixChannel {
		return true, nil
	}
	return m.checker.IsEntitled(ctx, view.ID(), user, entitlement.PermissionRead)
}

// ScanStream schedules answers for every persisted solicitation already in
// id's snapshot, e.g. right after the view was loaded.
func (m *Manager) ScanStream(id streamid.ID) int {
	view, ok := m.views.View(id)
	if !ok {
		return 0
	}
	type pending struct {
		sender protocol.Bytes
		sol    *protocol.KeySolicitation
	}
	var found []pending
	view.Read(func(s *protocol.Snapshot) {
		if s == nil {
			return
		}
		for _, mem := range s.Members.Joined {
			for _, sol := range mem.Solicitations {
				c := *sol
				c.SessionIDs = slices.Clone(sol.SessionIDs)
				found = append(found, pending{sender: mem.UserAddress.Clone(), sol: &c})
			}
		}
	})
	n := 0
	for _, p := range found {
		if p.sol.DeviceKey == m.device.Key || (len(p.sol.SessionIDs) == 0 && !p.sol.IsNewDevice) {
			continue
		}
		m.OnSolicitation(id, p.sender, p.sol, false)
		n++
	}
	return n
}
