package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Load reads path, applies environment overrides and validates the
// result. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check runs the schema and then Validate.
func (c *Config) Check() error {
	if err := validateSchema(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func decodeFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STREAMCORE_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("STREAMCORE_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("STREAMCORE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("STREAMCORE_NODE_LISTEN"); v != "" {
		c.Node.Listen = v
	}
	if v := os.Getenv("STREAMCORE_WALLET_SEED"); v != "" {
		c.Node.WalletSeed = v
	}
	if v := os.Getenv("STREAMCORE_SYNC_TARGET"); v != "" {
		c.Sync.Target = v
	}
	if v := os.Getenv("STREAMCORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("STREAMCORE_BLOCK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STREAMCORE_BLOCK_INTERVAL: %w", err)
		}
		c.Chain.BlockInterval = Duration(d)
	}
	return nil
}

func validateSchema(c *Config) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("load config value: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}
