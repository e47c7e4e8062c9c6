package harness

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"

	"github.com/roach88/streamcore/internal/canon"
	"github.com/roach88/streamcore/internal/keys"
	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/node"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/stream"
	"github.com/roach88/streamcore/internal/streamid"
	"github.com/roach88/streamcore/internal/testutil"
)

// CaseSuccess is the completion case of an action that succeeded.
const CaseSuccess = "Success"

// Harness runs one scenario against a fresh node.
type Harness struct {
	node   *node.Node
	clock  *testutil.Clock
	logger *slog.Logger

	seq  int64
	salt uint64

	wallets map[string]*keys.Wallet
	names   map[string]string // address hex -> wallet name
	streams map[string]*streamRef
	order   []string
}

type streamRef struct {
	id   streamid.ID
	prev protocol.Bytes
}

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a scenario and returns its result. The error is non-nil
// only when the scenario cannot run at all: an unknown wallet, a bad
// argument, or a failing setup step. Failed expectations land in
// Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	ctx := context.Background()
	clock := testutil.NewClock()
	h := &Harness{
		clock:   clock,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		wallets: make(map[string]*keys.Wallet),
		names:   make(map[string]string),
		streams: make(map[string]*streamRef),
	}
	for _, opt := range opts {
		opt(h)
	}

	for _, name := range scenario.Wallets {
		w, err := WalletFor(name)
		if err != nil {
			return nil, err
		}
		h.wallets[name] = w
		h.names[hex.EncodeToString(w.Address())] = name
	}
	operator, err := WalletFor("node")
	if err != nil {
		return nil, err
	}

	n, err := node.New(ctx, miniblock.NewMemoryStore(), operator,
		node.WithIDGenerator(testutil.NewSequentialIDs("")),
		node.WithProducer(miniblock.NewProducer(miniblock.WithClock(clock.NowMs))),
		node.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	defer n.Close()
	h.node = n

	result := NewResult()
	for i, step := range scenario.Setup {
		outputCase, _, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if outputCase != CaseSuccess {
			return nil, fmt.Errorf("setup step %d: %s completed with %s", i, step.Invoke, outputCase)
		}
	}

	for i, step := range scenario.Flow {
		outputCase, out, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		if step.Expect == nil {
			continue
		}
		if outputCase != step.Expect.Case {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s", i, step.Invoke, step.Expect.Case, outputCase))
			continue
		}
		if !matchArgs(out, step.Expect.Result) {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v", i, step.Invoke, step.Expect.Result, out))
		}
	}

	for _, name := range h.order {
		state, err := h.fold(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("fold %s: %w", name, err)
		}
		result.State[name] = state
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// WalletFor derives the wallet a scenario name stands for.
func WalletFor(name string) (*keys.Wallet, error) {
	w, err := keys.WalletFromSeed(canon.Keccak256([]byte("streamcore-harness:" + name)))
	if err != nil {
		return nil, fmt.Errorf("wallet %q: %w", name, err)
	}
	return w, nil
}

// execute runs one step and records it in the trace. Protocol errors
// become the completion case; anything else aborts the run.
func (h *Harness) execute(ctx context.Context, step FlowStep, result *Result) (string, map[string]any, error) {
	act := actions[step.Invoke]
	h.seq++
	result.AddInvocationTrace(step.Invoke, step.Args, h.seq)

	out, err := act(ctx, h, step.Args)
	outputCase := CaseSuccess
	if err != nil {
		var perr *protocol.Error
		if !errors.As(err, &perr) {
			return "", nil, fmt.Errorf("%s: %w", step.Invoke, err)
		}
		outputCase = string(perr.Code)
		out = nil
	}

	h.seq++
	result.AddCompletionTrace(step.Invoke, outputCase, out, h.seq)
	h.logger.Info("step completed", "action", step.Invoke, "case", outputCase, "seq", h.seq)
	return outputCase, out, nil
}

// post signs content as w and adds it to the named stream.
func (h *Harness) post(ctx context.Context, ref *streamRef, w *keys.Wallet, content protocol.Content) error {
	pe, err := h.sign(w, content, ref.prev)
	if err != nil {
		return err
	}
	return h.node.AddEvent(ctx, ref.id.Bytes(), pe.Envelope)
}

func (h *Harness) sign(w *keys.Wallet, content protocol.Content, prev []byte) (*protocol.ParsedEvent, error) {
	ev := protocol.MakeEvent(w, content, prev, h.clock.NowMs())
	h.salt++
	salt := make([]byte, 16)
	binary.BigEndian.PutUint64(salt[8:], h.salt)
	ev.Salt = salt
	return protocol.MakeParsedEvent(w, ev)
}

// fold rebuilds the named stream on the client side from what the node
// serves.
func (h *Harness) fold(ctx context.Context, name string) (map[string]any, error) {
	ref := h.streams[name]
	resp, err := h.node.GetStream(ctx, ref.id.Bytes())
	if err != nil {
		return nil, err
	}
	view := stream.NewView(ref.id, stream.WithReducer(h.node.Reducer()))
	if err := view.InitializeFromResponse(resp.Stream); err != nil {
		return nil, err
	}

	members := []any{}
	solicitations := map[string]any{}
	for _, addr := range view.Members() {
		who := h.nameOf(addr)
		members = append(members, who)
		sols := view.Solicitations(addr)
		if len(sols) == 0 {
			continue
		}
		var ids []string
		for _, sol := range sols {
			ids = append(ids, sol.SessionIDs...)
		}
		slices.Sort(ids)
		solicitations[who] = toAnySlice(slices.Compact(ids))
	}
	sort.Slice(members, func(i, j int) bool { return members[i].(string) < members[j].(string) })

	messages := 0
	for _, te := range view.Timeline() {
		switch te.Event.Content().(type) {
		case *protocol.ChannelMessage, *protocol.DMMessage:
			messages++
		}
	}

	return map[string]any{
		"kind":           ref.id.Kind(),
		"members":        members,
		"miniblock_num":  int(view.LastMiniblockNum()),
		"next_event_num": int(view.NextEventNum()),
		"messages":       messages,
		"solicitations":  solicitations,
	}, nil
}

func (h *Harness) nameOf(addr []byte) string {
	if name, ok := h.names[hex.EncodeToString(addr)]; ok {
		return name
	}
	return protocol.Bytes(addr).String()
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
