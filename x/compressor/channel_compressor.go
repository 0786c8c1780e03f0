package compressor

import (
	"bytes"
	"fmt"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

// ChannelCompressor is a streaming compressor whose output is buffered in
// memory and can be read back incrementally.
type ChannelCompressor interface {
	Write([]byte) (int, error)
	Flush() error
	Close() error
	Reset()
	// Len returns the number of compressed bytes buffered and not yet read.
	Len() int
	Read([]byte) (int, error)
	GetCompressed() *bytes.Buffer
}

type baseChannelCompressor struct {
	compressed *bytes.Buffer
	write      func([]byte) (int, error)
	flush      func() error
	close      func() error
}

func (bcc *baseChannelCompressor) Write(data []byte) (int, error) {
	return bcc.write(data)
}

func (bcc *baseChannelCompressor) Flush() error {
	return bcc.flush()
}

func (bcc *baseChannelCompressor) Close() error {
	return bcc.close()
}

func (bcc *baseChannelCompressor) GetCompressed() *bytes.Buffer {
	return bcc.compressed
}

func (bcc *baseChannelCompressor) Len() int {
	return bcc.compressed.Len()
}

func (bcc *baseChannelCompressor) Read(p []byte) (int, error) {
	return bcc.compressed.Read(p)
}

// ZlibCompressor writes a zlib (deflate) stream.
type ZlibCompressor struct {
	baseChannelCompressor
	w *zlib.Writer
}

func (zc *ZlibCompressor) Reset() {
	zc.compressed.Reset()
	zc.w.Reset(zc.compressed)
}

// BrotliCompressor writes a Brotli stream prefixed with ChannelVersionBrotli.
type BrotliCompressor struct {
	baseChannelCompressor
	w *brotli.Writer
}

func (bc *BrotliCompressor) Reset() {
	bc.compressed.Reset()
	bc.compressed.WriteByte(ChannelVersionBrotli)
	bc.w.Reset(bc.compressed)
}

// NewChannelCompressor creates a compressor for algo.
func NewChannelCompressor(algo CompressionAlgo) (ChannelCompressor, error) {
	compressed := &bytes.Buffer{}
	switch {
	case algo == Zlib:
		w, err := zlib.NewWriterLevel(compressed, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib writer: %w", err)
		}
		return &ZlibCompressor{
			baseChannelCompressor: baseChannelCompressor{
				compressed: compressed,
				write:      w.Write,
				flush:      w.Flush,
				close:      w.Close,
			},
			w: w,
		}, nil
	case algo.IsBrotli():
		compressed.WriteByte(ChannelVersionBrotli)
		w := brotli.NewWriterLevel(compressed, algo.BrotliLevel())
		return &BrotliCompressor{
			baseChannelCompressor: baseChannelCompressor{
				compressed: compressed,
				write:      w.Write,
				flush:      w.Flush,
				close:      w.Close,
			},
			w: w,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}
