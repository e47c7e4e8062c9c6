package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamcore/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	cfg    *config.Config
	level  slog.LevelVar
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for streamctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "streamctl",
		Short: "streamctl - encrypted stream node and client",
		Long:  "Run a stream node, follow streams as a client, and inspect miniblock history.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := opts.Config(); err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.toml, .json, .yaml)")

	cmd.AddCommand(NewStreamIDCommand(opts))
	cmd.AddCommand(NewNodeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewMiniblocksCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Config loads the configuration once. Without --config the defaults
// apply, with environment overrides.
func (o *RootOptions) Config() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	o.cfg = cfg
	return cfg, nil
}

// Logger returns the logger described by the logging section, writing to
// w. Verbose forces debug level.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	format := "text"
	if cfg, err := o.Config(); err == nil {
		o.SetLogLevel(cfg)
		format = cfg.Logging.Format
	} else if o.Verbose {
		o.level.Set(slog.LevelDebug)
	}
	handlerOpts := &slog.HandlerOptions{Level: &o.level}
	if format == "json" {
		o.logger = slog.New(slog.NewJSONHandler(w, handlerOpts))
	} else {
		o.logger = slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return o.logger
}

// SetLogLevel applies cfg's logging level to the logger, which may already
// be in use. Unknown levels fall back to info.
func (o *RootOptions) SetLogLevel(cfg *config.Config) {
	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(strings.ToUpper(cfg.Logging.Level)))
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.level.Set(level)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
