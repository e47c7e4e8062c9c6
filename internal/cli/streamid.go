package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// StreamIDInfo describes a parsed stream id.
type StreamIDInfo struct {
	ID             string `json:"id"`
	Prefix         string `json:"prefix"`
	Kind           string `json:"kind"`
	Identity       string `json:"identity"`
	Space          string `json:"space,omitempty"`
	DefaultChannel bool   `json:"default_channel,omitempty"`
	Address        string `json:"address,omitempty"`
}

// NewStreamIDCommand creates the streamid command group.
func NewStreamIDCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streamid",
		Short: "Parse and derive stream ids",
	}
	cmd.AddCommand(newStreamIDParseCommand(rootOpts))
	cmd.AddCommand(newStreamIDDeriveCommand(rootOpts))
	return cmd
}

func newStreamIDParseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <stream-id>",
		Short: "Describe a stream id",
		Long: `Parse a stream id and describe its kind and embedded parts.

Examples:
  streamctl streamid parse 10f39fd6e51aad88f6f4ce6ab8827279cfffb922660000000000000000000000
  streamctl streamid parse a8f39fd6e51aad88f6f4ce6ab8827279cfffb92266 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := streamid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid stream id", err)
			}
			return outputStreamID(rootOpts, cmd, describeStreamID(id))
		},
	}
}

func newStreamIDDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	var defaultChannel bool
	cmd := &cobra.Command{
		Use:   "derive <kind> [args...]",
		Short: "Derive a stream id",
		Long: `Derive a stream id from its inputs.

Kinds:
  space <address>
  user | user_settings | user_metadata | user_inbox <address>
  channel <space-id>     (random suffix, or --default)
  dm <address> <address>
  gdm | media            (random)

Examples:
  streamctl streamid derive user_inbox 0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266
  streamctl streamid derive channel 10f39f...0000 --default`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := deriveStreamID(args[0], args[1:], defaultChannel)
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot derive stream id", err)
			}
			return outputStreamID(rootOpts, cmd, describeStreamID(id))
		},
	}
	cmd.Flags().BoolVar(&defaultChannel, "default", false, "derive the default channel of the space")
	return cmd
}

func deriveStreamID(kind string, args []string, defaultChannel bool) (streamid.ID, error) {
	want := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d argument(s), got %d", kind, n, len(args))
		}
		return nil
	}

	switch kind {
	case "space":
		if err := want(1); err != nil {
			return "", err
		}
		return streamid.SpaceID(args[0])
	case "user", "user_settings", "user_metadata", "user_inbox":
		if err := want(1); err != nil {
			return "", err
		}
		prefix, _ := streamid.PrefixByName(kind)
		return streamid.Make(prefix, args[0])
	case "channel":
		if err := want(1); err != nil {
			return "", err
		}
		space, err := streamid.Parse(args[0])
		if err != nil {
			return "", err
		}
		if defaultChannel {
			return streamid.DefaultChannelID(space)
		}
		return streamid.UniqueChannelID(space)
	case "dm":
		if err := want(2); err != nil {
			return "", err
		}
		return streamid.DMStreamID(args[0], args[1])
	case "gdm":
		return streamid.GDMStreamID(), want(0)
	case "media":
		return streamid.MediaStreamID(), want(0)
	}
	return "", fmt.Errorf("unknown kind %q", kind)
}

func describeStreamID(id streamid.ID) StreamIDInfo {
	info := StreamIDInfo{
		ID:       id.String(),
		Prefix:   string(id.Prefix()),
		Kind:     id.Kind(),
		Identity: id.Identity(),
	}
	if streamid.IsChannel(id) {
		if space, err := streamid.SpaceFromChannel(id); err == nil {
			info.Space = space.String()
		}
		info.DefaultChannel = streamid.IsDefaultChannel(id)
	}
	if streamid.IsUserFamily(id) {
		if addr, err := streamid.AddressFromUserStream(id); err == nil {
			info.Address = protocol.Bytes(addr).String()
		}
	}
	return info
}

func outputStreamID(rootOpts *RootOptions, cmd *cobra.Command, info StreamIDInfo) error {
	if rootOpts.Format == "json" {
		f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
		return f.Success(info)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "id:       %s\n", info.ID)
	fmt.Fprintf(w, "kind:     %s (%s)\n", info.Kind, info.Prefix)
	fmt.Fprintf(w, "identity: %s\n", info.Identity)
	if info.Space != "" {
		fmt.Fprintf(w, "space:    %s\n", info.Space)
		fmt.Fprintf(w, "default:  %t\n", info.DefaultChannel)
	}
	if info.Address != "" {
		fmt.Fprintf(w, "address:  %s\n", info.Address)
	}
	return nil
}
