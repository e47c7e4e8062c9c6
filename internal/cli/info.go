package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/streamcore/internal/protocol"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
	Target string
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info [debug-command [args...]]",
		Short: "Query a node or run a debug command",
		Long: `Query a node's graffiti, or run a debug command.

Debug commands:
  ping
  make_miniblock <stream-id> [force]
  force_trim_stream <stream-id> <trim-to>
  sync_down <stream-id>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			return runInfo(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "node address (overrides sync.target)")

	return cmd
}

func runInfo(cmd *cobra.Command, opts *InfoOptions, args []string) error {
	client, err := dialNode(opts.RootOptions, opts.Target)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Info(cmd.Context(), &protocol.InfoRequest{Debug: args})
	if err != nil {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
		_ = f.ProtocolError(err)
		return WrapExitError(ExitFailure, "info failed", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: w}
		return f.Success(resp)
	}
	fmt.Fprintln(w, resp.Graffiti)
	for _, k := range slices.Sorted(maps.Keys(resp.Values)) {
		fmt.Fprintf(w, "%s: %s\n", k, resp.Values[k])
	}
	return nil
}
