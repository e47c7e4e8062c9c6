package cli

import (
	"github.com/roach88/streamcore/internal/rpc"
)

// dialNode connects to target, or to sync.target when target is empty.
func dialNode(opts *RootOptions, target string) (*rpc.Client, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if target == "" {
		target = cfg.Sync.Target
	}
	client, err := rpc.Dial(target, rpc.DialOptions{Timeout: cfg.Sync.Timeout.Std()})
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to dial node", err)
	}
	return client, nil
}
