package derive

import (
	"bytes"
	"io"
	"math/big"
	"math/bits"
)

// Bitfields are big-endian big.Ints padded to ceil(bitLength/8) bytes. The
// bit length is never on the wire; both sides derive it from counts decoded
// earlier, so every caller must pass the same count on encode and decode.

func bitfieldLen(bitLength uint64) uint64 {
	bufLen := bitLength / 8
	if bitLength%8 != 0 {
		bufLen++
	}
	return bufLen
}

func encodeSpanBatchBits(w io.Writer, bitLength uint64, b *big.Int) error {
	if b.BitLen() > int(bitLength) {
		return newSizeLimitError("bitfield is larger than bitLength: %d > %d", b.BitLen(), bitLength)
	}
	buf := make([]byte, bitfieldLen(bitLength))
	b.FillBytes(buf)
	_, err := w.Write(buf)
	return err
}

func decodeSpanBatchBits(r *bytes.Reader, bitLength uint64) (*big.Int, error) {
	if bitLength > MaxSpanBatchElementCount {
		return nil, newSizeLimitError("bitfield length %d exceeds %d", bitLength, MaxSpanBatchElementCount)
	}
	buf := make([]byte, bitfieldLen(bitLength))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, newDecodingError("failed to read bits").WithCause(eofAsUnexpected(err))
	}
	out := new(big.Int).SetBytes(buf)
	if l := uint64(out.BitLen()); l > bitLength {
		return nil, newDecodingError("bitfield has %d bits, but expected no more than %d", l, bitLength)
	}
	return out, nil
}

func popCount(b *big.Int) uint64 {
	var n int
	for _, w := range b.Bits() {
		n += bits.OnesCount64(uint64(w))
	}
	return uint64(n)
}
