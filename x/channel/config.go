package channel

import (
	"errors"
	"fmt"

	"github.com/compose-network/batcher/x/blob"
	"github.com/compose-network/batcher/x/compressor"
	"github.com/compose-network/batcher/x/derive"
)

// Config holds the write side channel parameters.
type Config struct {
	// ChannelTimeout is the number of L1 blocks allowed between the inclusion
	// of a channel's first and last frame.
	ChannelTimeout uint64 `mapstructure:"channel_timeout"           yaml:"channel_timeout"`
	// SubSafetyMargin closes a channel this many L1 blocks before ChannelTimeout.
	SubSafetyMargin uint64 `mapstructure:"sub_safety_margin"         yaml:"sub_safety_margin"`
	// MaxChannelDuration is the number of L1 blocks a channel stays open. 0 disables it.
	MaxChannelDuration uint64 `mapstructure:"max_channel_duration"      yaml:"max_channel_duration"`
	// MaxFrameSize is the encoded size of a frame, overhead included.
	MaxFrameSize uint64 `mapstructure:"max_frame_size"            yaml:"max_frame_size"`
	// TargetNumFrames is the number of frames per transaction. Only blob
	// transactions carry more than one.
	TargetNumFrames int `mapstructure:"target_num_frames"         yaml:"target_num_frames"`
	// BatchType is derive.SingularBatchType or derive.SpanBatchType.
	BatchType uint `mapstructure:"batch_type"                yaml:"batch_type"`
	// MaxBlocksPerSpanBatch seals the span batch after this many blocks. 0 is unbounded.
	MaxBlocksPerSpanBatch int `mapstructure:"max_blocks_per_span_batch" yaml:"max_blocks_per_span_batch"`
	// MaxRLPBytesPerChannel caps the uncompressed size of a channel.
	MaxRLPBytesPerChannel uint64 `mapstructure:"max_rlp_bytes_per_channel" yaml:"max_rlp_bytes_per_channel"`
	// UseBlobs puts each frame into its own blob.
	UseBlobs bool `mapstructure:"use_blobs"                 yaml:"use_blobs"`

	Compressor compressor.Config `mapstructure:"compressor" yaml:"compressor"`
}

// DefaultConfig returns calldata span batches of one 120kB frame.
func DefaultConfig() Config {
	cfg := Config{
		ChannelTimeout:        derive.ChannelTimeout,
		SubSafetyMargin:       10,
		MaxChannelDuration:    0,
		MaxFrameSize:          120_000,
		TargetNumFrames:       1,
		BatchType:             derive.SpanBatchType,
		MaxRLPBytesPerChannel: derive.MaxRLPBytesPerChannel,
		Compressor:            compressor.DefaultConfig(),
	}
	cfg.Compressor.TargetOutputSize = cfg.MaxDataSize()
	return cfg
}

// MaxDataSize is the channel data that fits into TargetNumFrames frames.
func (c Config) MaxDataSize() uint64 {
	if c.MaxFrameSize <= derive.FrameV0OverHeadSize {
		return 0
	}
	return uint64(c.TargetNumFrames) * (c.MaxFrameSize - derive.FrameV0OverHeadSize)
}

// MaxFramesPerTx is the number of frames one transaction may carry.
func (c Config) MaxFramesPerTx() int {
	if !c.UseBlobs {
		return 1
	}
	return c.TargetNumFrames
}

func (c Config) Validate() error {
	if c.ChannelTimeout < c.SubSafetyMargin {
		return ErrInvalidChannelTimeout
	}
	if c.MaxFrameSize < derive.FrameV0OverHeadSize {
		return ErrMaxFrameSizeTooSmall
	}
	if c.MaxFrameSize > derive.MaxFrameLen+derive.FrameV0OverHeadSize {
		return fmt.Errorf("max_frame_size %d exceeds %d", c.MaxFrameSize, derive.MaxFrameLen+derive.FrameV0OverHeadSize)
	}
	if c.UseBlobs && c.MaxFrameSize > blob.MaxBlobDataSize-1 {
		return fmt.Errorf("max_frame_size %d larger than blob capacity %d", c.MaxFrameSize, blob.MaxBlobDataSize-1)
	}
	if c.TargetNumFrames < 1 {
		return errors.New("target_num_frames must be at least 1")
	}
	if !c.UseBlobs && c.TargetNumFrames != 1 {
		return errors.New("target_num_frames must be 1 for calldata")
	}
	if c.BatchType > derive.SpanBatchType {
		return fmt.Errorf("unrecognized batch type: %d", c.BatchType)
	}
	if c.MaxBlocksPerSpanBatch < 0 {
		return errors.New("max_blocks_per_span_batch must not be negative")
	}
	if c.MaxRLPBytesPerChannel == 0 {
		return errors.New("max_rlp_bytes_per_channel must be positive")
	}
	ccfg := c.Compressor
	if ccfg.TargetOutputSize == 0 {
		ccfg.TargetOutputSize = c.MaxDataSize()
	}
	if err := ccfg.Validate(); err != nil {
		return fmt.Errorf("compressor: %w", err)
	}
	return nil
}
