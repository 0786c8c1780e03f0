package compressor

import (
	"errors"
	"fmt"
)

var (
	// ErrCompressorFull is returned once a compressor estimates that more
	// input would push its output past the target size.
	ErrCompressorFull = errors.New("compressor is full")
	// ErrUnknownCompression is returned for a stream whose leading byte matches
	// no supported algorithm.
	ErrUnknownCompression = errors.New("unknown compression type")
)

const (
	RatioKind  = "ratio"
	ShadowKind = "shadow"
)

// Compressor wraps a ChannelCompressor with a fullness estimate.
type Compressor interface {
	Write([]byte) (int, error)
	Read([]byte) (int, error)
	Reset()
	Len() int
	Flush() error
	Close() error
	// FullErr returns ErrCompressorFull once the target is reached. It stays
	// full until Reset.
	FullErr() error
}

// Config controls how much input a Compressor accepts.
type Config struct {
	// TargetOutputSize is the compressed size the compressor aims for.
	TargetOutputSize uint64 `mapstructure:"target_output_size" yaml:"target_output_size"`
	// ApproxComprRatio estimates output/input for the ratio compressor.
	ApproxComprRatio float64 `mapstructure:"approx_compr_ratio" yaml:"approx_compr_ratio"`
	// Kind selects the estimator, see Kinds.
	Kind string `mapstructure:"kind" yaml:"kind"`
	// CompressionAlgo selects the backend.
	CompressionAlgo CompressionAlgo `mapstructure:"compression_algo" yaml:"compression_algo"`
}

// DefaultConfig returns a shadow zlib compressor sized for one blob.
func DefaultConfig() Config {
	return Config{
		TargetOutputSize: 130_044,
		ApproxComprRatio: 0.6,
		Kind:             ShadowKind,
		CompressionAlgo:  Zlib,
	}
}

func (c Config) Validate() error {
	if c.TargetOutputSize == 0 {
		return errors.New("target_output_size must be positive")
	}
	if c.Kind == RatioKind && (c.ApproxComprRatio <= 0 || c.ApproxComprRatio > 1) {
		return fmt.Errorf("approx_compr_ratio must be in (0, 1], got %v", c.ApproxComprRatio)
	}
	if !c.CompressionAlgo.Valid() {
		return fmt.Errorf("unknown compression algo: %q", c.CompressionAlgo)
	}
	if _, ok := DefaultRegistry.Get(c.Kind); !ok {
		return fmt.Errorf("unknown compressor kind: %q", c.Kind)
	}
	return nil
}

// New builds the compressor named by cfg.Kind from DefaultRegistry.
func New(cfg Config) (Compressor, error) {
	factory, ok := DefaultRegistry.Get(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown compressor kind: %q", cfg.Kind)
	}
	return factory(cfg)
}
