package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/streamid"
)

// TimelineEvent is one event as seen by this client.
type TimelineEvent struct {
	Event        *protocol.ParsedEvent
	EventNum     int64
	MiniblockNum int64 // 0 until confirmed, except for genesis events
	Confirmed    bool
	DecryptError error
}

// Listeners are called after the view's lock is released, in event order.
// Any of them may be nil.
type Listeners struct {
	OnEvent           func(id streamid.ID, ev *TimelineEvent)
	OnMemberJoined    func(id streamid.ID, user protocol.Bytes)
	OnMemberLeft      func(id streamid.ID, user protocol.Bytes)
	OnKeySolicitation func(id streamid.ID, sender protocol.Bytes, sol *protocol.KeySolicitation, ephemeral bool)
	OnKeyFulfillment  func(id streamid.ID, ful *protocol.KeyFulfillment, ephemeral bool)
}

// View is the local state of one stream.
type View struct {
	id      streamid.ID
	reducer *snapshot.Reducer
	verify  bool

	mu           sync.Mutex
	snapshot     *protocol.Snapshot
	timeline     []*TimelineEvent
	byHash       map[string]*TimelineEvent
	lastNum      int64
	lastHash     protocol.Bytes
	nextEventNum int64
	cookie       *protocol.SyncCookie
	listeners    Listeners
	initialized  bool
}

// Option configures a View.
type Option func(*View)

// WithReducer sets the reducer used for folding.
func WithReducer(r *snapshot.Reducer) Option {
	return func(v *View) { v.reducer = r }
}

// WithVerify enables hash and signature checks on every envelope.
func WithVerify(verify bool) Option {
	return func(v *View) { v.verify = verify }
}

// WithListeners installs listener hooks.
func WithListeners(l Listeners) Option {
	return func(v *View) { v.listeners = l }
}

// NewView creates an uninitialized view of id.
func NewView(id streamid.ID, opts ...Option) *View {
	v := &View{
		id:      id,
		reducer: snapshot.New(),
		byHash:  make(map[string]*TimelineEvent),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ID returns the stream id.
func (v *View) ID() streamid.ID { return v.id }

// SetListeners replaces the listener hooks.
func (v *View) SetListeners(l Listeners) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = l
}

// notification is a listener call deferred until the lock is released.
type notification func(l Listeners)

// InitializeFromResponse resets the view to the state in resp: its
// miniblocks starting at a snapshot, then its minipool events.
func (v *View) InitializeFromResponse(resp *protocol.StreamAndCookie) error {
	v.mu.Lock()
	notes, err := v.initializeLocked(resp)
	l := v.listeners
	v.mu.Unlock()
	v.dispatch(l, notes)
	return err
}

// viewState is the part of a View that initialization replaces.
type viewState struct {
	snapshot     *protocol.Snapshot
	timeline     []*TimelineEvent
	byHash       map[string]*TimelineEvent
	lastNum      int64
	lastHash     protocol.Bytes
	nextEventNum int64
	cookie       *protocol.SyncCookie
	initialized  bool
}

func (v *View) saveLocked() viewState {
	return viewState{
		snapshot:     v.snapshot,
		timeline:     v.timeline,
		byHash:       v.byHash,
		lastNum:      v.lastNum,
		lastHash:     v.lastHash,
		nextEventNum: v.nextEventNum,
		cookie:       v.cookie,
		initialized:  v.initialized,
	}
}

func (v *View) restoreLocked(st viewState) {
	v.snapshot = st.snapshot
	v.timeline = st.timeline
	v.byHash = st.byHash
	v.lastNum = st.lastNum
	v.lastHash = st.lastHash
	v.nextEventNum = st.nextEventNum
	v.cookie = st.cookie
	v.initialized = st.initialized
}

// initializeLocked rebuilds the view from resp. If a miniblock fails to
// parse or fold, the previous state is kept. Bad minipool envelopes are
// dropped and reported in the returned error.
func (v *View) initializeLocked(resp *protocol.StreamAndCookie) ([]notification, error) {
	prev := v.saveLocked()
	notes, err := v.rebuildLocked(resp)
	if err != nil {
		v.restoreLocked(prev)
		return nil, err
	}
	notes, err = v.appendAllLocked(resp.Events, notes)
	v.cookie = resp.NextSyncCookie.Clone()
	v.initialized = true
	return notes, err
}

func (v *View) rebuildLocked(resp *protocol.StreamAndCookie) ([]notification, error) {
	if resp == nil || len(resp.Miniblocks) == 0 {
		return nil, fmt.Errorf("initialize %s: no miniblocks", v.id)
	}
	first := resp.Miniblocks[0]
	if !first.IsSnapshot() {
		return nil, fmt.Errorf("initialize %s: miniblock %d has no snapshot", v.id, first.Num())
	}
	s, err := first.Header.Snapshot.Clone()
	if err != nil {
		return nil, err
	}

	v.snapshot = s
	v.timeline = nil
	v.byHash = make(map[string]*TimelineEvent)

	var notes []notification
	for i, mb := range resp.Miniblocks {
		pmb, err := protocol.ParseMiniblock(mb, v.verify)
		if err != nil {
			return nil, fmt.Errorf("initialize %s: %w", v.id, err)
		}
		for j, ev := range pmb.Parsed {
			te := &TimelineEvent{
				Event:        ev,
				EventNum:     mb.Header.EventNumOffset + int64(j),
				MiniblockNum: mb.Num(),
				Confirmed:    true,
			}
			// The first miniblock's events are already in its snapshot.
			if i > 0 {
				if err := v.fold(ev, mb.Num(), te.EventNum); err != nil {
					return nil, err
				}
			}
			v.record(te)
			notes = append(notes, eventNote(v.id, te))
		}
		v.lastNum = mb.Num()
		v.lastHash = mb.Hash
		v.nextEventNum = mb.Header.EventNumOffset + int64(len(mb.Events))
	}
	return notes, nil
}

// appendAllLocked applies envs in order. An envelope that fails to parse,
// verify or fold is logged and dropped; the rest are still applied.
func (v *View) appendAllLocked(envs []*protocol.Envelope, notes []notification) ([]notification, error) {
	var errs []error
	for i, env := range envs {
		n, err := v.appendLocked(env)
		if err != nil {
			slog.Warn("dropping bad envelope", "stream", v.id, "index", i, "hash", envelopeHash(env), "err", err)
			errs = append(errs, err)
			continue
		}
		notes = append(notes, n...)
	}
	return notes, errors.Join(errs...)
}

func envelopeHash(env *protocol.Envelope) string {
	if env == nil {
		return ""
	}
	return env.Hash.Hex()
}

// ApplySync advances the view with one sync update. Envelopes already
// applied are skipped, so redelivery is harmless. Envelopes that fail
// verification or folding are dropped and joined into the returned error;
// the others are applied and the cookie still advances. A reset update
// reinitializes the view.
func (v *View) ApplySync(update *protocol.StreamAndCookie) error {
	v.mu.Lock()
	var (
		notes []notification
		err   error
	)
	switch {
	case update.SyncReset:
		notes, err = v.initializeLocked(update)
	case !v.initialized:
		err = fmt.Errorf("apply sync %s: view not initialized", v.id)
	default:
		notes, err = v.appendAllLocked(update.Events, nil)
		if update.NextSyncCookie != nil {
			v.cookie = update.NextSyncCookie.Clone()
		}
	}
	l := v.listeners
	v.mu.Unlock()
	v.dispatch(l, notes)
	return err
}

// appendLocked applies one envelope from the minipool or a header.
func (v *View) appendLocked(env *protocol.Envelope) ([]notification, error) {
	ev, err := protocol.ParseEnvelope(env, v.verify)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", v.id, err)
	}
	if _, seen := v.byHash[string(ev.Hash)]; seen {
		return nil, nil
	}
	if hdr, ok := ev.Content().(*protocol.MiniblockHeaderContent); ok {
		return nil, v.onHeader(ev, &hdr.Header)
	}
	if ev.IsEphemeral() {
		te := &TimelineEvent{Event: ev, EventNum: -1}
		v.byHash[string(ev.Hash)] = te
		return []notification{eventNote(v.id, te)}, nil
	}

	te := &TimelineEvent{Event: ev, EventNum: v.nextEventNum}
	if err := v.fold(ev, v.lastNum+1, te.EventNum); err != nil {
		return nil, err
	}
	v.nextEventNum++
	v.record(te)
	return []notification{eventNote(v.id, te)}, nil
}

// onHeader confirms the events a sealed miniblock lists and checks its
// snapshot, adopting the server's on mismatch.
func (v *View) onHeader(ev *protocol.ParsedEvent, h *protocol.MiniblockHeader) error {
	v.byHash[string(ev.Hash)] = &TimelineEvent{Event: ev, EventNum: -1, Confirmed: true}
	if h.MiniblockNum <= v.lastNum {
		return nil
	}
	for i, hash := range h.EventHashes {
		if te, ok := v.byHash[string(hash)]; ok {
			te.Confirmed = true
			te.MiniblockNum = h.MiniblockNum
			te.EventNum = h.EventNumOffset + int64(i)
		}
	}
	hash, err := h.Hash()
	if err != nil {
		return err
	}
	v.lastNum = h.MiniblockNum
	v.lastHash = hash
	v.nextEventNum = max(v.nextEventNum, h.EventNumOffset+int64(len(h.EventHashes)))

	if h.Snapshot == nil {
		return nil
	}
	local, err := v.snapshot.Hash()
	if err != nil {
		return err
	}
	if local.Equal(h.SnapshotHash) {
		return nil
	}
	slog.Warn("snapshot mismatch, adopting server snapshot",
		"stream", v.id,
		"miniblock", h.MiniblockNum,
		"local", local.Hex(),
		"server", h.SnapshotHash.Hex(),
	)
	adopted, err := h.Snapshot.Clone()
	if err != nil {
		return err
	}
	v.snapshot = adopted
	return nil
}

// fold applies ev to the snapshot. A missing channel is logged and
// skipped; the event still enters the timeline.
func (v *View) fold(ev *protocol.ParsedEvent, miniblockNum, eventNum int64) error {
	err := v.reducer.Fold(v.snapshot, ev, miniblockNum, eventNum)
	if errors.Is(err, snapshot.ErrChannelNotFound) {
		slog.Warn("channel setting for unknown channel", "stream", v.id, "event", ev.ShortHash(), "err", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fold %s: %w", v.id, err)
	}
	return nil
}

func (v *View) record(te *TimelineEvent) {
	v.timeline = append(v.timeline, te)
	v.byHash[string(te.Event.Hash)] = te
}

func eventNote(id streamid.ID, te *TimelineEvent) notification {
	return func(l Listeners) {
		ev := te.Event
		switch c := ev.Content().(type) {
		case *protocol.Membership:
			if c.Op == protocol.MembershipOpJoin && l.OnMemberJoined != nil {
				l.OnMemberJoined(id, c.UserAddress)
			}
			if c.Op == protocol.MembershipOpLeave && l.OnMemberLeft != nil {
				l.OnMemberLeft(id, c.UserAddress)
			}
		case *protocol.KeySolicitation:
			if l.OnKeySolicitation != nil {
				l.OnKeySolicitation(id, ev.Creator(), c, ev.IsEphemeral())
			}
		case *protocol.KeyFulfillment:
			if l.OnKeyFulfillment != nil {
				l.OnKeyFulfillment(id, c, ev.IsEphemeral())
			}
		}
		if l.OnEvent != nil {
			l.OnEvent(id, te)
		}
	}
}

func (v *View) dispatch(l Listeners, notes []notification) {
	for _, n := range notes {
		n(l)
	}
}

// Read calls fn with the snapshot while holding the view's lock. fn must
// not retain s or call back into the view.
func (v *View) Read(fn func(s *protocol.Snapshot)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fn(v.snapshot)
}

// Initialized reports whether the view has state.
func (v *View) Initialized() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.initialized
}

// Members returns the addresses of joined members in sorted order.
func (v *View) Members() []protocol.Bytes {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snapshot == nil {
		return nil
	}
	out := make([]protocol.Bytes, len(v.snapshot.Members.Joined))
	for i, m := range v.snapshot.Members.Joined {
		out[i] = m.UserAddress.Clone()
	}
	return out
}

// IsMember reports whether addr has joined.
func (v *View) IsMember(addr []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snapshot == nil {
		return false
	}
	_, ok := v.snapshot.Members.Find(addr)
	return ok
}

// Timeline returns a copy of the timeline in delivery order.
func (v *View) Timeline() []TimelineEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]TimelineEvent, len(v.timeline))
	for i, te := range v.timeline {
		out[i] = *te
	}
	return out
}

// HasEvent reports whether an event with hash has been applied.
func (v *View) HasEvent(hash []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.byHash[string(hash)]
	return ok
}

// AnnotateDecryptError records that the event with hash could not be
// decrypted. It reports whether the event is known.
func (v *View) AnnotateDecryptError(hash []byte, err error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	te, ok := v.byHash[string(hash)]
	if !ok {
		return false
	}
	te.DecryptError = err
	return true
}

// DecryptErrors returns the hashes of events annotated with a decrypt
// error, in timeline order.
func (v *View) DecryptErrors() []protocol.Bytes {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []protocol.Bytes
	for _, te := range v.timeline {
		if te.DecryptError != nil {
			out = append(out, te.Event.Hash)
		}
	}
	return out
}

// LastMiniblockNum returns the newest miniblock the view has seen.
func (v *View) LastMiniblockNum() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastNum
}

// NextEventNum returns the number the next minipool event will take.
func (v *View) NextEventNum() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nextEventNum
}

// Cookie returns a copy of the cookie to resume syncing from.
func (v *View) Cookie() *protocol.SyncCookie {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cookie.Clone()
}

// SnapshotHash returns the hash of the local snapshot.
func (v *View) SnapshotHash() (protocol.Bytes, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snapshot == nil {
		return nil, fmt.Errorf("snapshot hash %s: view not initialized", v.id)
	}
	return v.snapshot.Hash()
}

// Solicitations returns a copy of addr's outstanding key solicitations.
func (v *View) Solicitations(addr []byte) []*protocol.KeySolicitation {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.snapshot == nil {
		return nil
	}
	m, ok := v.snapshot.Members.Find(addr)
	if !ok {
		return nil
	}
	out := make([]*protocol.KeySolicitation, len(m.Solicitations))
	for i, s := range m.Solicitations {
		c := *s
		c.SessionIDs = slices.Clone(s.SessionIDs)
		out[i] = &c
	}
	return out
}
