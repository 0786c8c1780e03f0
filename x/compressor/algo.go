package compressor

import (
	"fmt"
	"strings"
)

// CompressionAlgo names a compression backend and, for Brotli, its level.
type CompressionAlgo string

const (
	Zlib     CompressionAlgo = "zlib"
	Brotli   CompressionAlgo = "brotli" // level 10
	Brotli9  CompressionAlgo = "brotli-9"
	Brotli10 CompressionAlgo = "brotli-10"
	Brotli11 CompressionAlgo = "brotli-11"
)

// CompressionAlgos lists every supported algorithm.
var CompressionAlgos = []CompressionAlgo{
	Zlib,
	Brotli,
	Brotli9,
	Brotli10,
	Brotli11,
}

var brotliLevels = map[CompressionAlgo]int{
	Brotli:   10,
	Brotli9:  9,
	Brotli10: 10,
	Brotli11: 11,
}

// Channel stream tags. A zlib stream starts with its CMF byte, whose low
// nibble is the compression method (8) or the reserved value 15. Brotli has no
// self-identifying header, so Brotli channels are prefixed with a version byte.
const (
	ZlibCM8              = 8
	ZlibCM15             = 15
	ChannelVersionBrotli = 0x01
)

func (a CompressionAlgo) String() string {
	return string(a)
}

// Set implements pflag.Value.
func (a *CompressionAlgo) Set(value string) error {
	v := CompressionAlgo(strings.ToLower(strings.TrimSpace(value)))
	if !v.Valid() {
		return fmt.Errorf("unknown compression algo: %q", value)
	}
	*a = v
	return nil
}

// Type implements pflag.Value.
func (a *CompressionAlgo) Type() string {
	return "compression-algo"
}

func (a CompressionAlgo) Valid() bool {
	if a == Zlib {
		return true
	}
	_, ok := brotliLevels[a]
	return ok
}

func (a CompressionAlgo) IsBrotli() bool {
	_, ok := brotliLevels[a]
	return ok
}

// BrotliLevel returns the Brotli quality of a, or 0 if a is not Brotli.
func (a CompressionAlgo) BrotliLevel() int {
	return brotliLevels[a]
}
