package compressor

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

// DetectAlgo classifies a channel stream by its first byte.
func DetectAlgo(first byte) (CompressionAlgo, error) {
	switch {
	case first&0x0F == ZlibCM8 || first&0x0F == ZlibCM15:
		return Zlib, nil
	case first == ChannelVersionBrotli:
		return Brotli, nil
	default:
		return "", fmt.Errorf("%w: leading byte 0x%02x", ErrUnknownCompression, first)
	}
}

// NewReader returns a decompressing reader for a compressed channel stream,
// detecting the algorithm from the leading byte. The returned reader is
// additionally capped at maxBytes of decompressed output when maxBytes > 0.
func NewReader(r io.Reader, maxBytes int64) (io.Reader, CompressionAlgo, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(1)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read compression type: %w", err)
	}
	algo, err := DetectAlgo(head[0])
	if err != nil {
		return nil, "", err
	}

	var out io.Reader
	switch algo {
	case Zlib:
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open zlib stream: %w", err)
		}
		out = zr
	default:
		if _, err := br.Discard(1); err != nil {
			return nil, "", err
		}
		out = brotli.NewReader(br)
	}
	if maxBytes > 0 {
		out = io.LimitReader(out, maxBytes)
	}
	return out, algo, nil
}

// Decompress reads an entire compressed channel stream.
func Decompress(data []byte, maxBytes int64) ([]byte, CompressionAlgo, error) {
	r, algo, err := NewReader(bytes.NewReader(data), maxBytes)
	if err != nil {
		return nil, "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return out, algo, fmt.Errorf("failed to decompress %s stream: %w", algo, err)
	}
	return out, algo, nil
}
