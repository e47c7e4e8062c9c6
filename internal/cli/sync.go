package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/streamcore/internal/config"
	"github.com/roach88/streamcore/internal/entitlement"
	"github.com/roach88/streamcore/internal/keydist"
	"github.com/roach88/streamcore/internal/keys"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/scrub"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/stream"
	"github.com/roach88/streamcore/internal/streamid"
	"github.com/roach88/streamcore/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Target   string
	Seed     string
	Device   string
	Sessions []string
	Request  []string
	Scrub    bool
	Duration time.Duration
}

// EventLine is one timeline event printed by sync.
type EventLine struct {
	Stream       string `json:"stream"`
	EventNum     int64  `json:"event_num"`
	MiniblockNum int64  `json:"miniblock_num"`
	Confirmed    bool   `json:"confirmed"`
	Ephemeral    bool   `json:"ephemeral,omitempty"`
	Kind         string `json:"kind"`
	Case         string `json:"case"`
	Creator      string `json:"creator"`
	Hash         string `json:"hash"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <stream-id>...",
		Short: "Follow streams and print their events",
		Long: `Follow streams over one sync subscription and print each event.

With --device the client joins key exchange: it answers solicitations for
the --session ids it holds and asks for the --request ids it lacks. With
--scrub (or scrub.enabled) it evicts members that lost entitlement.

Examples:
  streamctl sync 20aa...
  streamctl sync --device dev1 --request s1 --duration 30s 20aa...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			return runSync(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "node address (overrides sync.target)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "hex wallet seed (default: a fresh wallet)")
	cmd.Flags().StringVar(&opts.Device, "device", "", "device key; enables key exchange")
	cmd.Flags().StringSliceVar(&opts.Sessions, "session", nil, "session ids this device can share")
	cmd.Flags().StringSliceVar(&opts.Request, "request", nil, "session ids to request")
	cmd.Flags().BoolVar(&opts.Scrub, "scrub", false, "scrub memberships (overrides scrub.enabled)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (default: until interrupted)")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions, args []string) error {
	cfg, err := opts.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := opts.Logger(cmd.ErrOrStderr())

	ids := make([]streamid.ID, 0, len(args))
	for _, arg := range args {
		id, err := streamid.Parse(arg)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid stream id", err)
		}
		ids = append(ids, id)
	}

	client, err := dialNode(opts.RootOptions, opts.Target)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	if err := follow(ctx, client, cfg, ids, opts, newEventPrinter(cmd.OutOrStdout(), opts.Format), logger); err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	return nil
}

// follow syncs ids from svc until ctx is done, calling onEvent for every
// timeline event.
func follow(ctx context.Context, svc protocol.StreamService, cfg *config.Config, ids []streamid.ID,
	opts *SyncOptions, onEvent func(EventLine), logger *slog.Logger) error {
	wallet, err := clientWallet(opts.Seed)
	if err != nil {
		return err
	}
	poster := stream.NewPoster(svc, wallet)
	ss := syncer.New(svc,
		syncer.WithRetryUnit(cfg.Sync.RetryUnit.Std()),
		syncer.WithPingInterval(cfg.Sync.PingInterval.Std()),
		syncer.WithLogger(logger.With("component", "syncer")),
		syncer.WithStateListener(func(from, to syncer.State) {
			logger.Debug("sync state", "from", from, "to", to)
		}),
	)

	hooks := []stream.Listeners{{
		OnEvent: func(id streamid.ID, ev *stream.TimelineEvent) { onEvent(eventLine(id, ev)) },
	}}

	var (
		mgr      *keydist.Manager
		sessions *keydist.MemorySessions
	)
	if opts.Device != "" {
		sessions = keydist.NewMemorySessions()
		mgr = keydist.NewManager(wallet.Address(),
			keydist.Device{Key: opts.Device, FallbackKey: opts.Device + "-fallback"},
			sessions, poster, ss,
			keydist.WithEphemeralTimeout(cfg.EphemeralTimeout()),
			keydist.WithLogger(logger.With("component", "keydist")),
		)
		defer mgr.Close()
		hooks = append(hooks, mgr.Listeners())
	}

	if opts.Scrub || cfg.Scrub.Enabled {
		oracle := entitlement.NewStatic()
		oracle.Open = true
		sc := scrub.New(
			entitlement.NewCache(oracle, cfg.Scrub.CacheSize, cfg.Scrub.CacheTTL.Std()),
			scrub.PosterEvictor{Poster: poster}, ss,
			scrub.WithEligibleDuration(cfg.Scrub.EligibleDuration.Std()),
			scrub.WithWorkers(cfg.Scrub.Workers),
			scrub.WithSelf(wallet.Address()),
			scrub.WithLogger(logger.With("component", "scrub")),
		)
		sc.Start(ctx)
		defer sc.Close()
		hooks = append(hooks, sc.Listeners())
	}

	if err := ss.Start(ctx); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ss.Close(closeCtx); err != nil {
			logger.Warn("sync close", "err", err)
		}
	}()

	listeners := stream.Chain(hooks...)
	reducer := snapshot.New(snapshot.WithMaxGenerations(cfg.MaxGenerations()))
	for _, id := range ids {
		view := stream.NewView(id,
			stream.WithReducer(reducer),
			stream.WithVerify(cfg.Sync.Verify),
			stream.WithListeners(listeners),
		)
		if err := ss.AddStream(ctx, view); err != nil {
			return fmt.Errorf("add %s: %w", id, err)
		}
		logger.Info("following stream", "stream", id, "miniblock", view.LastMiniblockNum())
		if mgr == nil {
			continue
		}
		sessions.Add(id, opts.Sessions...)
		if len(opts.Request) > 0 {
			if err := mgr.RequestKeys(ctx, id, opts.Request); err != nil {
				return fmt.Errorf("request keys for %s: %w", id, err)
			}
		}
	}

	<-ctx.Done()
	return nil
}

func clientWallet(seed string) (*keys.Wallet, error) {
	if seed == "" {
		return keys.NewWallet()
	}
	w, err := keys.WalletFromHexSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("client wallet: %w", err)
	}
	return w, nil
}

func eventLine(id streamid.ID, ev *stream.TimelineEvent) EventLine {
	content := ev.Event.Content()
	return EventLine{
		Stream:       id.String(),
		EventNum:     ev.EventNum,
		MiniblockNum: ev.MiniblockNum,
		Confirmed:    ev.Confirmed,
		Ephemeral:    ev.Event.IsEphemeral(),
		Kind:         string(content.Kind()),
		Case:         content.Case(),
		Creator:      ev.Event.Creator().String(),
		Hash:         ev.Event.Hash.String(),
	}
}

// newEventPrinter returns a callback that writes one line per event.
// Listeners of different streams run concurrently, so writes are
// serialized.
func newEventPrinter(w io.Writer, format string) func(EventLine) {
	var mu sync.Mutex
	f := &OutputFormatter{Format: format, Writer: w}
	return func(line EventLine) {
		mu.Lock()
		defer mu.Unlock()
		if format == "json" {
			_ = f.Success(line)
			return
		}
		state := "pending"
		if line.Confirmed {
			state = fmt.Sprintf("mb%d", line.MiniblockNum)
		}
		fmt.Fprintf(w, "%s #%d %-8s %s.%s from %s\n",
			line.Stream, line.EventNum, state, line.Kind, line.Case, line.Creator)
	}
}
