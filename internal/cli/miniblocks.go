package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// MiniblocksOptions holds flags for the miniblocks command.
type MiniblocksOptions struct {
	*RootOptions
	Target string
	From   int64
	To     int64
}

// MiniblockInfo summarizes one miniblock.
type MiniblockInfo struct {
	Num          int64  `json:"num"`
	Hash         string `json:"hash"`
	PrevHash     string `json:"prev_hash,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	Events       int    `json:"events"`
	EventNumBase int64  `json:"event_num_offset"`
	Snapshot     bool   `json:"snapshot"`
}

// MiniblockListing is the output of the miniblocks command.
type MiniblockListing struct {
	Stream     string          `json:"stream"`
	From       int64           `json:"from"`
	Terminus   bool            `json:"terminus"`
	Miniblocks []MiniblockInfo `json:"miniblocks"`
}

// NewMiniblocksCommand creates the miniblocks command.
func NewMiniblocksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MiniblocksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "miniblocks <stream-id>",
		Short: "List a stream's miniblocks",
		Long: `List the miniblocks of a stream in [--from, --to).

Without --to the listing runs to the latest miniblock. Trimmed history is
reported as a later start and terminus=true.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			return runMiniblocks(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "node address (overrides sync.target)")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first miniblock (inclusive)")
	cmd.Flags().Int64Var(&opts.To, "to", 0, "last miniblock (exclusive, 0 = latest)")

	return cmd
}

func runMiniblocks(cmd *cobra.Command, opts *MiniblocksOptions, arg string) error {
	id, err := streamid.Parse(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stream id", err)
	}
	client, err := dialNode(opts.RootOptions, opts.Target)
	if err != nil {
		return err
	}
	defer client.Close()

	listing, err := listMiniblocks(cmd.Context(), client, id, opts.From, opts.To)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list miniblocks", err)
	}
	return outputMiniblocks(cmd.OutOrStdout(), opts.Format, listing)
}

// listMiniblocks reads [from, to) of id. A non-positive to means up to the
// latest miniblock.
func listMiniblocks(ctx context.Context, svc protocol.StreamService, id streamid.ID, from, to int64) (*MiniblockListing, error) {
	if to <= 0 {
		resp, err := svc.GetStream(ctx, id.Bytes())
		if err != nil {
			return nil, err
		}
		to = resp.Stream.NextSyncCookie.MinipoolGen
	}
	resp, err := svc.GetMiniblocks(ctx, id.Bytes(), from, to)
	if err != nil {
		return nil, err
	}
	listing := &MiniblockListing{
		Stream:     id.String(),
		From:       resp.FromInclusive,
		Terminus:   resp.Terminus,
		Miniblocks: make([]MiniblockInfo, 0, len(resp.Miniblocks)),
	}
	for _, mb := range resp.Miniblocks {
		info := MiniblockInfo{
			Num:          mb.Num(),
			Hash:         mb.Hash.String(),
			Timestamp:    mb.Header.Timestamp,
			Events:       len(mb.Events),
			EventNumBase: mb.Header.EventNumOffset,
			Snapshot:     mb.IsSnapshot(),
		}
		if len(mb.Header.PrevMiniblockHash) > 0 {
			info.PrevHash = mb.Header.PrevMiniblockHash.String()
		}
		listing.Miniblocks = append(listing.Miniblocks, info)
	}
	return listing, nil
}

func outputMiniblocks(w io.Writer, format string, listing *MiniblockListing) error {
	if format == "json" {
		f := &OutputFormatter{Format: "json", Writer: w}
		return f.Success(listing)
	}
	fmt.Fprintf(w, "stream %s from %d", listing.Stream, listing.From)
	if listing.Terminus {
		fmt.Fprint(w, " (terminus)")
	}
	fmt.Fprintln(w)
	for _, mb := range listing.Miniblocks {
		marker := ""
		if mb.Snapshot {
			marker = " snapshot"
		}
		fmt.Fprintf(w, "  #%d %s events=%d offset=%d%s\n", mb.Num, mb.Hash, mb.Events, mb.EventNumBase, marker)
	}
	return nil
}
