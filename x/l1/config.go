package l1

import (
	"errors"
	"time"
)

// Config holds the L1 connection used to look up block metadata.
type Config struct {
	// RPC endpoint of an Ethereum node. Empty disables lookups.
	RPCEndpoint string `mapstructure:"rpc_endpoint"      yaml:"rpc_endpoint"`
	// ChainID is checked against the node when non-zero.
	ChainID uint64 `mapstructure:"chain_id"          yaml:"chain_id"`
	// FetchParallelism bounds concurrent header requests.
	FetchParallelism int `mapstructure:"fetch_parallelism" yaml:"fetch_parallelism"`
	// RequestTimeout bounds a single header request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		FetchParallelism: 8,
		RequestTimeout:   10 * time.Second,
	}
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return c.RPCEndpoint != ""
}

func (c Config) Validate() error {
	if c.FetchParallelism < 1 {
		return errors.New("fetch_parallelism must be at least 1")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	return nil
}
