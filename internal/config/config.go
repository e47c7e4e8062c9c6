// Package config loads streamcore settings from YAML, TOML or JSON, with
// STREAMCORE_* environment overrides, and validates them against an
// embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Duration is a time.Duration written as "2s", "5m" in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Config is the complete streamcore configuration.
type Config struct {
	Chain    ChainConfig    `toml:"chain" json:"chain" yaml:"chain"`
	Node     NodeConfig     `toml:"node" json:"node" yaml:"node"`
	Sync     SyncConfig     `toml:"sync" json:"sync" yaml:"sync"`
	Keys     KeysConfig     `toml:"keys" json:"keys" yaml:"keys"`
	Scrub    ScrubConfig    `toml:"scrub" json:"scrub" yaml:"scrub"`
	Store    StoreConfig    `toml:"store" json:"store" yaml:"store"`
	Media    MediaConfig    `toml:"media" json:"media" yaml:"media"`
	Snapshot SnapshotConfig `toml:"snapshot" json:"snapshot" yaml:"snapshot"`
	Logging  LoggingConfig  `toml:"logging" json:"logging" yaml:"logging"`
}

// ChainConfig describes the chain the tuned constants derive from.
type ChainConfig struct {
	BlockInterval Duration `toml:"block_interval" json:"block_interval" yaml:"block_interval"`
}

// NodeConfig configures the stream node.
type NodeConfig struct {
	Listen             string   `toml:"listen" json:"listen" yaml:"listen"`
	MiniblockInterval  Duration `toml:"miniblock_interval" json:"miniblock_interval" yaml:"miniblock_interval"`
	SubscriptionBuffer int      `toml:"subscription_buffer" json:"subscription_buffer" yaml:"subscription_buffer"`
	WalletSeed         string   `toml:"wallet_seed" json:"wallet_seed" yaml:"wallet_seed"`
}

// SyncConfig configures the sync client.
type SyncConfig struct {
	Target       string   `toml:"target" json:"target" yaml:"target"`
	RetryUnit    Duration `toml:"retry_unit" json:"retry_unit" yaml:"retry_unit"`
	PingInterval Duration `toml:"ping_interval" json:"ping_interval" yaml:"ping_interval"`
	Verify       bool     `toml:"verify" json:"verify" yaml:"verify"`
	Timeout      Duration `toml:"timeout" json:"timeout" yaml:"timeout"`
}

// KeysConfig configures key exchange. A zero EphemeralTimeout is derived
// from the block interval.
type KeysConfig struct {
	EphemeralTimeout Duration `toml:"ephemeral_timeout" json:"ephemeral_timeout" yaml:"ephemeral_timeout"`
}

// ScrubConfig configures membership scrubbing.
type ScrubConfig struct {
	Enabled          bool     `toml:"enabled" json:"enabled" yaml:"enabled"`
	EligibleDuration Duration `toml:"eligible_duration" json:"eligible_duration" yaml:"eligible_duration"`
	Workers          int      `toml:"workers" json:"workers" yaml:"workers"`
	CacheSize        int      `toml:"cache_size" json:"cache_size" yaml:"cache_size"`
	CacheTTL         Duration `toml:"cache_ttl" json:"cache_ttl" yaml:"cache_ttl"`
}

// StoreConfig selects the miniblock store.
type StoreConfig struct {
	Driver string `toml:"driver" json:"driver" yaml:"driver"`
	Path   string `toml:"path" json:"path" yaml:"path"`
}

// MediaConfig bounds media chunks.
type MediaConfig struct {
	MaxChunkSize  int `toml:"max_chunk_size" json:"max_chunk_size" yaml:"max_chunk_size"`
	MaxChunkCount int `toml:"max_chunk_count" json:"max_chunk_count" yaml:"max_chunk_count"`
}

// SnapshotConfig sets snapshot cadence. PerKind is keyed by stream kind
// name ("space", "user_inbox", ...). A zero MaxGenerations is derived from
// the block interval.
type SnapshotConfig struct {
	Interval       int64            `toml:"interval" json:"interval" yaml:"interval"`
	PerKind        map[string]int64 `toml:"per_kind" json:"per_kind" yaml:"per_kind"`
	MaxGenerations int64            `toml:"max_generations" json:"max_generations" yaml:"max_generations"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level"`
	Format string `toml:"format" json:"format" yaml:"format"`
}

const (
	// DefaultBlockInterval is the block cadence the tuned constants assume.
	DefaultBlockInterval = 2 * time.Second

	// inboxHorizon is how long an inbox device summary outlives its
	// lower bound: 3600 miniblocks at the default block interval.
	inboxHorizon = 2 * time.Hour

	// ephemeralBlocks is the ephemeral key timeout in blocks.
	ephemeralBlocks = 15
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Default returns the built-in configuration.
func Default() *Config {
	limits := protocol.DefaultMediaLimits()
	return &Config{
		Chain: ChainConfig{BlockInterval: Duration(DefaultBlockInterval)},
		Node: NodeConfig{
			Listen:             "127.0.0.1:7400",
			MiniblockInterval:  Duration(DefaultBlockInterval),
			SubscriptionBuffer: 1024,
		},
		Sync: SyncConfig{
			Target:       "127.0.0.1:7400",
			RetryUnit:    Duration(time.Second),
			PingInterval: Duration(30 * time.Second),
			Verify:       true,
			Timeout:      Duration(30 * time.Second),
		},
		Scrub: ScrubConfig{
			Enabled:          true,
			EligibleDuration: Duration(4 * time.Hour),
			Workers:          2,
			CacheSize:        4096,
			CacheTTL:         Duration(5 * time.Minute),
		},
		Store:    StoreConfig{Driver: StoreMemory},
		Media:    MediaConfig{MaxChunkSize: limits.MaxChunkSize, MaxChunkCount: limits.MaxChunkCount},
		Snapshot: SnapshotConfig{Interval: miniblock.DefaultSnapshotInterval, PerKind: map[string]int64{"user_inbox": miniblock.InboxSnapshotInterval}},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

// MaxGenerations is the inbox cleanup horizon in miniblocks.
func (c *Config) MaxGenerations() int64 {
	if c.Snapshot.MaxGenerations > 0 {
		return c.Snapshot.MaxGenerations
	}
	return int64(inboxHorizon / c.Chain.BlockInterval.Std())
}

// EphemeralTimeout is how long an ephemeral key request waits before it is
// persisted.
func (c *Config) EphemeralTimeout() time.Duration {
	if c.Keys.EphemeralTimeout > 0 {
		return c.Keys.EphemeralTimeout.Std()
	}
	return ephemeralBlocks * c.Chain.BlockInterval.Std()
}

// MediaLimits returns the configured chunk bounds.
func (c *Config) MediaLimits() protocol.MediaLimits {
	return protocol.MediaLimits{MaxChunkSize: c.Media.MaxChunkSize, MaxChunkCount: c.Media.MaxChunkCount}
}

// SnapshotPolicy returns the configured snapshot cadence.
func (c *Config) SnapshotPolicy() (miniblock.SnapshotPolicy, error) {
	p := miniblock.SnapshotPolicy{Default: c.Snapshot.Interval, PerKind: make(map[streamid.Prefix]int64)}
	for kind, n := range c.Snapshot.PerKind {
		prefix, ok := streamid.PrefixByName(kind)
		if !ok {
			return miniblock.SnapshotPolicy{}, fmt.Errorf("snapshot.per_kind: unknown stream kind %q", kind)
		}
		p.PerKind[prefix] = n
	}
	return p, nil
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Chain.BlockInterval <= 0 {
		errs = append(errs, errors.New("chain.block_interval must be positive"))
	} else if c.Snapshot.MaxGenerations == 0 && c.MaxGenerations() < 1 {
		errs = append(errs, fmt.Errorf("chain.block_interval %s exceeds the inbox horizon", c.Chain.BlockInterval.Std()))
	}
	if c.Store.Driver == StoreSQLite && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required for the sqlite driver"))
	}
	if c.Keys.EphemeralTimeout < 0 {
		errs = append(errs, errors.New("keys.ephemeral_timeout must not be negative"))
	}
	if _, err := c.SnapshotPolicy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
