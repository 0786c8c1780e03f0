package derive

import (
	"errors"
)

// Config bounds the read side.
type Config struct {
	// ChannelTimeout is the number of L1 blocks a channel may stay incomplete.
	ChannelTimeout uint64 `mapstructure:"channel_timeout"          yaml:"channel_timeout"`
	// MaxChannelBankSize caps the bytes buffered across pending channels.
	MaxChannelBankSize uint64 `mapstructure:"max_channel_bank_size"    yaml:"max_channel_bank_size"`
	// MaxRLPBytesPerChannel caps the decompressed size of one channel.
	MaxRLPBytesPerChannel uint64 `mapstructure:"max_rlp_bytes_per_channel" yaml:"max_rlp_bytes_per_channel"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ChannelTimeout:        ChannelTimeout,
		MaxChannelBankSize:    MaxChannelBankSize,
		MaxRLPBytesPerChannel: MaxRLPBytesPerChannel,
	}
}

func (c Config) Validate() error {
	if c.ChannelTimeout == 0 {
		return errors.New("channel_timeout must be positive")
	}
	if c.MaxChannelBankSize == 0 {
		return errors.New("max_channel_bank_size must be positive")
	}
	if c.MaxRLPBytesPerChannel == 0 {
		return errors.New("max_rlp_bytes_per_channel must be positive")
	}
	return nil
}
