// Package config loads the node/client JSON configuration file described
// in spec §6: peer addresses, package framing limits, and per-role
// tracing targets.
package config

import (
	"fmt"
	"math"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/shillingchain/node/wire"
)

// PackageLimits mirrors wire.Limits with the JSON field names of spec §6.
type PackageLimits struct {
	MaxSize            int  `mapstructure:"max_size"`
	ReceiveTimeoutSecs uint `mapstructure:"receive_timeout_secs"`
}

// AsWireLimits adapts PackageLimits to the shape wire.Send/wire.Receive
// expect.
func (p PackageLimits) AsWireLimits() wire.Limits {
	return wire.Limits{MaxSize: p.MaxSize, ReceiveTimeoutSecs: p.ReceiveTimeoutSecs}
}

// TracingTarget names a log level and output path for one role.
type TracingTarget struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// Tracing holds the client and node tracing targets.
type Tracing struct {
	Client TracingTarget `mapstructure:"client"`
	Node   TracingTarget `mapstructure:"node"`
}

// Config is the fully validated, self-address-excluded configuration.
type Config struct {
	Nodes         []string      `mapstructure:"nodes"`
	PackageLimits PackageLimits `mapstructure:"package_limits"`
	Tracing       Tracing       `mapstructure:"tracing"`
}

// Load reads the JSON file at path, removes selfAddress from Nodes (when
// non-empty), and validates every field rule of spec §6.
func Load(path, selfAddress string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if selfAddress != "" {
		filtered := cfg.Nodes[:0]
		for _, n := range cfg.Nodes {
			if n != selfAddress {
				filtered = append(filtered, n)
			}
		}
		cfg.Nodes = filtered
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if len(c.Nodes) == 0 {
		return fmt.Errorf("config: nodes must be non-empty")
	}
	if c.PackageLimits.MaxSize < 0 || uint64(c.PackageLimits.MaxSize) > math.MaxInt64 {
		return fmt.Errorf("config: package_limits.max_size does not fit in a signed machine word")
	}
	if _, err := zapcore.ParseLevel(c.Tracing.Client.Level); err != nil {
		return fmt.Errorf("config: tracing.client.level: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.Tracing.Node.Level); err != nil {
		return fmt.Errorf("config: tracing.node.level: %w", err)
	}
	return nil
}
