package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/roach88/streamcore/internal/config"
	"github.com/roach88/streamcore/internal/keys"
	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/node"
	"github.com/roach88/streamcore/internal/rpc"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/store"
)

// NodeOptions holds flags for the node command.
type NodeOptions struct {
	*RootOptions
	Listen string
}

// NewNodeCommand creates the node command.
func NewNodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a stream node",
		Long: `Run a stream node serving the StreamService over gRPC.

The store, wallet, miniblock cadence and snapshot policy come from the
config file. --listen overrides node.listen.

Examples:
  streamctl node -c streamcore.toml
  streamctl node --listen 127.0.0.1:7100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			return runNode(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides node.listen)")

	return cmd
}

func runNode(cmd *cobra.Command, opts *NodeOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := opts.Logger(cmd.ErrOrStderr())

	addr := cfg.Node.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.ConfigPath != "" {
		w, err := config.NewWatcher(opts.ConfigPath, config.WithWatchLogger(logger))
		if err != nil {
			lis.Close()
			return WrapExitError(ExitCommandError, "failed to watch config", err)
		}
		defer w.Close()
		w.OnChange(func(c *config.Config) {
			opts.SetLogLevel(c)
			logger.Info("log level applied; other node settings take effect on restart", "level", c.Logging.Level)
		})
	}

	logger.Info("node listening", "addr", lis.Addr().String(), "store", cfg.Store.Driver)
	if err := serveNode(ctx, cfg, lis, logger); err != nil {
		return WrapExitError(ExitFailure, "node stopped", err)
	}
	return nil
}

// serveNode runs a node on lis until ctx is done. lis is closed on return.
func serveNode(ctx context.Context, cfg *config.Config, lis net.Listener, logger *slog.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		lis.Close()
		return err
	}
	defer st.Close()

	wallet, err := nodeWallet(cfg)
	if err != nil {
		lis.Close()
		return err
	}
	nodeOpts, err := nodeOptions(cfg, logger)
	if err != nil {
		lis.Close()
		return err
	}
	n, err := node.New(ctx, st, wallet, nodeOpts...)
	if err != nil {
		lis.Close()
		return fmt.Errorf("start node: %w", err)
	}
	defer n.Close()
	logger.Info("node started", "address", wallet.AddressHex())

	srv := grpc.NewServer()
	rpc.RegisterStreamServiceServer(srv, rpc.NewServer(n))

	errc := make(chan error, 2)
	go func() { errc <- srv.Serve(lis) }()
	go func() { errc <- n.Run(ctx) }()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errc:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}
	// Close the node first so open syncs end with UNAVAILABLE.
	n.Close()
	srv.Stop()
	logger.Info("node stopped")
	return err
}

// openStore opens the miniblock store named by the store section.
func openStore(cfg *config.Config) (miniblock.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return miniblock.NewMemoryStore(), nil
	case config.StoreSQLite:
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func nodeWallet(cfg *config.Config) (*keys.Wallet, error) {
	if cfg.Node.WalletSeed == "" {
		return keys.NewWallet()
	}
	w, err := keys.WalletFromHexSeed(cfg.Node.WalletSeed)
	if err != nil {
		return nil, fmt.Errorf("node wallet: %w", err)
	}
	return w, nil
}

func nodeOptions(cfg *config.Config, logger *slog.Logger) ([]node.Option, error) {
	policy, err := cfg.SnapshotPolicy()
	if err != nil {
		return nil, err
	}
	reducer := snapshot.New(snapshot.WithMaxGenerations(cfg.MaxGenerations()))
	producer := miniblock.NewProducer(
		miniblock.WithReducer(reducer),
		miniblock.WithSnapshotPolicy(policy),
	)
	return []node.Option{
		node.WithProducer(producer),
		node.WithMediaLimits(cfg.MediaLimits()),
		node.WithMiniblockInterval(cfg.Node.MiniblockInterval.Std()),
		node.WithSubscriptionBuffer(cfg.Node.SubscriptionBuffer),
		node.WithLogger(logger),
	}, nil
}
