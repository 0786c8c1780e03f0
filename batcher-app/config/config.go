package config

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apisrv "github.com/compose-network/batcher/server/api"
	"github.com/compose-network/batcher/x/channel"
	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/inbox"
	"github.com/compose-network/batcher/x/l1"
)

// EnvPrefix prefixes every environment override, e.g. DACODEC_CHANNEL_MAX_FRAME_SIZE.
const EnvPrefix = "DACODEC"

// Config holds the complete application configuration
type Config struct {
	// ChainID is the L2 chain id used to sign and recover transactions.
	ChainID uint64 `mapstructure:"chain_id"      yaml:"chain_id"`
	// InboxAddress receives blob transactions.
	InboxAddress string `mapstructure:"inbox_address" yaml:"inbox_address"`

	API     apisrv.Config  `mapstructure:"api"     yaml:"api"`
	Metrics MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig      `mapstructure:"log"     yaml:"log"`
	L1      l1.Config      `mapstructure:"l1"      yaml:"l1"`
	Channel channel.Config `mapstructure:"channel" yaml:"channel"`
	Derive  derive.Config  `mapstructure:"derive"  yaml:"derive"`
	Inbox   inbox.Config   `mapstructure:"inbox"   yaml:"inbox"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"   yaml:"enabled"`
	Path      string `mapstructure:"path"      yaml:"path"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Load reads the configuration from configPath, when not empty, and from
// the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("chain_id", d.ChainID)
	v.SetDefault("inbox_address", d.InboxAddress)

	v.SetDefault("api.listen_addr", d.API.ListenAddr)
	v.SetDefault("api.read_header_timeout", d.API.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", d.API.ReadTimeout)
	v.SetDefault("api.write_timeout", d.API.WriteTimeout)
	v.SetDefault("api.idle_timeout", d.API.IdleTimeout)
	v.SetDefault("api.shutdown_timeout", d.API.ShutdownTimeout)
	v.SetDefault("api.max_header_bytes", d.API.MaxHeaderBytes)
	v.SetDefault("api.max_body_bytes", d.API.MaxBodyBytes)
	v.SetDefault("api.enable_cors", d.API.EnableCORS)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)

	v.SetDefault("l1.rpc_endpoint", d.L1.RPCEndpoint)
	v.SetDefault("l1.chain_id", d.L1.ChainID)
	v.SetDefault("l1.fetch_parallelism", d.L1.FetchParallelism)
	v.SetDefault("l1.request_timeout", d.L1.RequestTimeout)

	v.SetDefault("channel.channel_timeout", d.Channel.ChannelTimeout)
	v.SetDefault("channel.sub_safety_margin", d.Channel.SubSafetyMargin)
	v.SetDefault("channel.max_channel_duration", d.Channel.MaxChannelDuration)
	v.SetDefault("channel.max_frame_size", d.Channel.MaxFrameSize)
	v.SetDefault("channel.target_num_frames", d.Channel.TargetNumFrames)
	v.SetDefault("channel.batch_type", d.Channel.BatchType)
	v.SetDefault("channel.max_blocks_per_span_batch", d.Channel.MaxBlocksPerSpanBatch)
	v.SetDefault("channel.max_rlp_bytes_per_channel", d.Channel.MaxRLPBytesPerChannel)
	v.SetDefault("channel.use_blobs", d.Channel.UseBlobs)
	// 0 sizes the compressor target from the frame settings
	v.SetDefault("channel.compressor.target_output_size", 0)
	v.SetDefault("channel.compressor.approx_compr_ratio", d.Channel.Compressor.ApproxComprRatio)
	v.SetDefault("channel.compressor.kind", d.Channel.Compressor.Kind)
	v.SetDefault("channel.compressor.compression_algo", string(d.Channel.Compressor.CompressionAlgo))

	v.SetDefault("derive.channel_timeout", d.Derive.ChannelTimeout)
	v.SetDefault("derive.max_channel_bank_size", d.Derive.MaxChannelBankSize)
	v.SetDefault("derive.max_rlp_bytes_per_channel", d.Derive.MaxRLPBytesPerChannel)

	v.SetDefault("inbox.da_type", uint8(d.Inbox.DAType))
	v.SetDefault("inbox.compress", d.Inbox.Compress)
	v.SetDefault("inbox.store_path", d.Inbox.StorePath)
}

// Default returns default configuration
func Default() *Config {
	api := apisrv.DefaultConfig()
	api.ListenAddr = ":8080"
	return &Config{
		ChainID: 1,
		API:     api,
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "dacodec",
		},
		Log: LogConfig{
			Level: "info",
		},
		L1:      l1.DefaultConfig(),
		Channel: channel.DefaultConfig(),
		Derive:  derive.DefaultConfig(),
		Inbox:   inbox.DefaultConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id must be positive")
	}
	if c.InboxAddress != "" && !common.IsHexAddress(c.InboxAddress) {
		return fmt.Errorf("inbox_address %q is not a hex address", c.InboxAddress)
	}
	if c.Channel.Compressor.TargetOutputSize == 0 {
		c.Channel.Compressor.TargetOutputSize = c.Channel.MaxDataSize()
	}
	if err := c.Channel.Validate(); err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	if err := c.Derive.Validate(); err != nil {
		return fmt.Errorf("derive: %w", err)
	}
	if err := c.Inbox.Validate(); err != nil {
		return fmt.Errorf("inbox: %w", err)
	}
	if err := c.L1.Validate(); err != nil {
		return fmt.Errorf("l1: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

// ChainIDBig returns ChainID as a big.Int.
func (c *Config) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

// InboxAddr returns the parsed inbox address.
func (c *Config) InboxAddr() common.Address {
	return common.HexToAddress(c.InboxAddress)
}

// Dump writes the configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
