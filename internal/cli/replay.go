package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/store"
	"github.com/roach88/streamcore/internal/streamid"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Stream   string // optional - one stream only
	NoVerify bool
}

// ReplayStreamResult holds the audit of a single stream.
type ReplayStreamResult struct {
	StreamID    string  `json:"stream_id"`
	FirstNum    int64   `json:"first_num"`
	LastNum     int64   `json:"last_num"`
	Events      int     `json:"events"`
	Snapshots   int     `json:"snapshots"`
	Mismatches  []int64 `json:"mismatches,omitempty"`
	BrokenLinks []int64 `json:"broken_links,omitempty"`
	Consistent  bool    `json:"consistent"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Streams       []ReplayStreamResult `json:"streams"`
	TotalStreams  int                  `json:"total_streams"`
	AllConsistent bool                 `json:"all_consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-fold stored miniblocks and verify snapshots",
		Long: `Re-fold every stream in a miniblock database from its first retained
snapshot, checking hash links, event signatures and every embedded snapshot.

Exit codes:
  0 - All streams are consistent
  1 - Verification failed (mismatched snapshot or broken link)
  2 - Command error (database not found, etc.)

Examples:
  streamctl replay --db ./streams.db
  streamctl replay --db ./streams.db --stream 20aa...
  streamctl replay --db ./streams.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Stream, "stream", "", "replay one stream only")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "skip event hash and signature checks")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var ids []streamid.ID
	if opts.Stream != "" {
		id, err := streamid.Parse(opts.Stream)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid stream id", err)
		}
		ids = []streamid.ID{id}
	} else {
		ids, err = st.ListStreams(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list streams", err)
		}
	}

	reducer := snapshot.New(snapshot.WithMaxGenerations(cfg.MaxGenerations()))
	result, err := replayStreams(ctx, st, reducer, ids, !opts.NoVerify)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	if len(result.Streams) == 0 && opts.Format != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "No streams found in database.")
		return nil
	}
	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayStreams audits each of ids in order.
func replayStreams(ctx context.Context, st miniblock.Store, r *snapshot.Reducer, ids []streamid.ID, verify bool) (ReplayResult, error) {
	result := ReplayResult{
		Streams:       make([]ReplayStreamResult, 0, len(ids)),
		TotalStreams:  len(ids),
		AllConsistent: true,
	}
	for _, id := range ids {
		report, err := miniblock.Audit(ctx, st, r, id, verify)
		if err != nil {
			return result, fmt.Errorf("stream %s: %w", id, err)
		}
		sr := ReplayStreamResult{
			StreamID:    id.String(),
			FirstNum:    report.FirstNum,
			LastNum:     report.LastNum,
			Events:      report.Events,
			Snapshots:   report.Snapshots,
			Mismatches:  report.Mismatches,
			BrokenLinks: report.BrokenLinks,
			Consistent:  report.OK(),
		}
		result.Streams = append(result.Streams, sr)
		if !sr.Consistent {
			result.AllConsistent = false
		}
	}
	return result, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllConsistent {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "SNAPSHOT_MISMATCH",
			Message: "replay verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllConsistent {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d stream(s)\n", result.TotalStreams)
	fmt.Fprintln(w)

	for _, s := range result.Streams {
		status := "✓"
		if !s.Consistent {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Stream: %s\n", status, s.StreamID)
		fmt.Fprintf(w, "  Miniblocks: %d..%d, %d events\n", s.FirstNum, s.LastNum, s.Events)
		if verbose {
			fmt.Fprintf(w, "  Snapshots: %d\n", s.Snapshots)
		}
		if len(s.Mismatches) > 0 {
			fmt.Fprintf(w, "  Snapshot mismatch at %v\n", s.Mismatches)
		}
		if len(s.BrokenLinks) > 0 {
			fmt.Fprintf(w, "  Broken hash link at %v\n", s.BrokenLinks)
		}
		fmt.Fprintln(w)
	}

	if result.AllConsistent {
		fmt.Fprintln(w, "✓ All streams verified")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
