package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/phuhao00/kudugo/rpc"
)

// ClientConfig is the on-disk configuration for a kudugo client process:
// the remote endpoint address plus the ConnectionOptions to use when
// proxying to it, per SPEC_FULL.md section 4.6. Numeric/duration fields
// left at zero are filled in with spec.md section 3's documented defaults
// by rpc.NewConnection; NoDelay uses a pointer so "absent from the file"
// (default true) can be told apart from an explicit "nodelay: false".
type ClientConfig struct {
	Addr             string `yaml:"addr"`
	NoDelay          *bool  `yaml:"nodelay,omitempty"`
	RPCQueueLen      uint32 `yaml:"rpc_queue_len,omitempty"`
	BackoffInitialMS uint32 `yaml:"backoff_initial_ms,omitempty"`
	BackoffMaxMS     uint32 `yaml:"backoff_max_ms,omitempty"`
	MaxMessageLength uint32 `yaml:"max_message_length,omitempty"`
	MaxRPCsInFlight  uint32 `yaml:"max_rpcs_in_flight,omitempty"`
}

// ConnectionOptions translates the YAML-friendly fields into an
// rpc.ConnectionOptions.
func (c *ClientConfig) ConnectionOptions() rpc.ConnectionOptions {
	nodelay := true
	if c.NoDelay != nil {
		nodelay = *c.NoDelay
	}
	return rpc.ConnectionOptions{
		NoDelay:          nodelay,
		RPCQueueLen:      c.RPCQueueLen,
		BackoffInitial:   time.Duration(c.BackoffInitialMS) * time.Millisecond,
		BackoffMax:       time.Duration(c.BackoffMaxMS) * time.Millisecond,
		MaxMessageLength: c.MaxMessageLength,
		MaxRPCsInFlight:  c.MaxRPCsInFlight,
	}
}

// LoadClientConfig reads and parses a ClientConfig from path, following
// the teacher's config.loadConfig pattern in server_config.go.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}
	return &cfg, nil
}
