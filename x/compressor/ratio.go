package compressor

// RatioCompressor assumes a fixed compression ratio and reports full once
// TargetOutputSize/ApproxComprRatio input bytes have been written.
type RatioCompressor struct {
	config Config

	inputBytes int
	compressor ChannelCompressor
}

func NewRatioCompressor(config Config) (Compressor, error) {
	cc, err := NewChannelCompressor(config.CompressionAlgo)
	if err != nil {
		return nil, err
	}
	return &RatioCompressor{
		config:     config,
		compressor: cc,
	}, nil
}

func (t *RatioCompressor) Write(p []byte) (int, error) {
	if err := t.FullErr(); err != nil {
		return 0, err
	}
	t.inputBytes += len(p)
	return t.compressor.Write(p)
}

func (t *RatioCompressor) Close() error {
	return t.compressor.Close()
}

func (t *RatioCompressor) Read(p []byte) (int, error) {
	return t.compressor.Read(p)
}

func (t *RatioCompressor) Reset() {
	t.compressor.Reset()
	t.inputBytes = 0
}

func (t *RatioCompressor) Len() int {
	return t.compressor.Len()
}

func (t *RatioCompressor) Flush() error {
	return t.compressor.Flush()
}

func (t *RatioCompressor) FullErr() error {
	if t.inputTargetReached() {
		return ErrCompressorFull
	}
	return nil
}

// InputThreshold is the number of input bytes after which the compressor is full.
func (t *RatioCompressor) InputThreshold() int {
	return int(float64(t.config.TargetOutputSize) / t.config.ApproxComprRatio)
}

func (t *RatioCompressor) inputTargetReached() bool {
	return t.inputBytes >= t.InputThreshold()
}
