package compressor

// CloseOverheadZlib bounds the bytes a zlib Close appends after a Flush.
const CloseOverheadZlib = 9

// ShadowCompressor feeds every write through a second compressor that is
// flushed to measure real output size, so its fullness estimate tracks the
// data actually written.
type ShadowCompressor struct {
	config Config

	compressor       ChannelCompressor
	shadowCompressor ChannelCompressor

	fullErr    error
	bound      uint64
	inputBytes uint64
}

func NewShadowCompressor(config Config) (Compressor, error) {
	c := &ShadowCompressor{config: config}
	var err error
	if c.compressor, err = NewChannelCompressor(config.CompressionAlgo); err != nil {
		return nil, err
	}
	if c.shadowCompressor, err = NewChannelCompressor(config.CompressionAlgo); err != nil {
		return nil, err
	}
	c.bound = CloseOverheadZlib
	return c, nil
}

func (t *ShadowCompressor) Write(p []byte) (int, error) {
	if t.fullErr != nil {
		return 0, t.fullErr
	}
	if _, err := t.shadowCompressor.Write(p); err != nil {
		return 0, err
	}
	newBound := t.bound + uint64(len(p))
	if newBound > t.config.TargetOutputSize {
		// the shadow is only flushed when the worst case could exceed the target
		if err := t.shadowCompressor.Flush(); err != nil {
			return 0, err
		}
		newBound = uint64(t.shadowCompressor.Len()) + CloseOverheadZlib
		if newBound > t.config.TargetOutputSize {
			t.fullErr = ErrCompressorFull
			// a first write that alone exceeds the target is still accepted
			if t.inputBytes > 0 {
				return 0, t.fullErr
			}
		}
	}
	t.bound = newBound
	t.inputBytes += uint64(len(p))
	return t.compressor.Write(p)
}

func (t *ShadowCompressor) Close() error {
	return t.compressor.Close()
}

func (t *ShadowCompressor) Read(p []byte) (int, error) {
	return t.compressor.Read(p)
}

func (t *ShadowCompressor) Reset() {
	t.compressor.Reset()
	t.shadowCompressor.Reset()
	t.fullErr = nil
	t.bound = CloseOverheadZlib
	t.inputBytes = 0
}

func (t *ShadowCompressor) Len() int {
	return t.compressor.Len()
}

func (t *ShadowCompressor) Flush() error {
	return t.compressor.Flush()
}

func (t *ShadowCompressor) FullErr() error {
	return t.fullErr
}
