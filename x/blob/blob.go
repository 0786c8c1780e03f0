// Package blob packs arbitrary payloads into EIP-4844 blobs and back.
//
// A blob is 4096 field elements of 32 bytes. The two high bits of every field
// element must stay zero, so each element carries one 6-bit control value
// followed by 31 payload bytes. Four elements form a round: the four control
// values together hold three extra payload bytes, giving 127 payload bytes per
// 128 blob bytes. The first element of round 0 also carries the encoding
// version and a 3-byte big-endian payload length.
package blob

import (
	"errors"
	"fmt"
)

const (
	// FieldElementSize is the size of one field element in bytes.
	FieldElementSize = 32
	// FieldElements is the number of field elements in a blob.
	FieldElements = 4096
	// BlobSize is the total size of a blob in bytes.
	BlobSize = FieldElements * FieldElementSize
	// MaxBlobDataSize is the payload capacity of one blob.
	MaxBlobDataSize = (4*31+3)*1024 - 4
	// EncodingVersion is the only supported blob encoding version.
	EncodingVersion = 0

	versionOffset = 1
	rounds        = 1024
	// payload bytes carried by the first field element next to the header
	headerPayloadBytes = 27
	// mask of the two bits that must stay zero in each control byte
	highBitsMask = 0b1100_0000
)

var (
	ErrBlobInvalidFieldElement    = errors.New("invalid field element")
	ErrBlobInvalidEncodingVersion = errors.New("invalid encoding version")
	ErrBlobInvalidLength          = errors.New("invalid length for blob")
	ErrBlobInputTooLarge          = errors.New("too much data to encode in one blob")
	ErrBlobExtraneousData         = errors.New("non-zero data encountered where blob should be empty")
)

// Data is a raw blob payload.
type Data []byte

// Blob is one encoded blob.
type Blob [BlobSize]byte

// Clear zeroes the blob.
func (b *Blob) Clear() {
	for i := range b {
		b[i] = 0
	}
}

// FromData encodes data into the blob, replacing its previous contents.
func (b *Blob) FromData(data Data) error {
	if len(data) > MaxBlobDataSize {
		return fmt.Errorf("%w: len=%d", ErrBlobInputTooLarge, len(data))
	}
	b.Clear()

	e := encoder{blob: b, data: data}
	for round := 0; round < rounds && e.rpos < len(data); round++ {
		if round == 0 {
			e.readHeader()
		} else {
			e.read31()
		}

		x := e.read1()
		e.writeControl(x & 0b0011_1111)
		e.write31()

		e.read31()
		y := e.read1()
		e.writeControl((y & 0b0000_1111) | ((x & 0b1100_0000) >> 2))
		e.write31()

		e.read31()
		z := e.read1()
		e.writeControl(z & 0b0011_1111)
		e.write31()

		e.read31()
		e.writeControl(((z & 0b1100_0000) >> 2) | ((y & 0b1111_0000) >> 4))
		e.write31()
	}

	if e.rpos < len(data) {
		panic(fmt.Errorf("blob encoding: payload of %d bytes did not fit, stopped at %d", len(data), e.rpos))
	}
	return nil
}

// encoder holds the read/write cursors of one FromData call.
type encoder struct {
	blob  *Blob
	data  []byte
	rpos  int
	wpos  int
	buf31 [31]byte
}

func (e *encoder) readHeader() {
	n := uint32(len(e.data))
	e.buf31[0] = EncodingVersion
	e.buf31[1] = byte(n >> 16)
	e.buf31[2] = byte(n >> 8)
	e.buf31[3] = byte(n)
	rest := e.buf31[4:]
	copied := copy(rest, e.data)
	clear(rest[copied:])
	e.rpos += copied
}

func (e *encoder) read1() byte {
	if e.rpos >= len(e.data) {
		return 0
	}
	v := e.data[e.rpos]
	e.rpos++
	return v
}

func (e *encoder) read31() {
	if e.rpos >= len(e.data) {
		clear(e.buf31[:])
		return
	}
	n := copy(e.buf31[:], e.data[e.rpos:])
	clear(e.buf31[n:])
	e.rpos += n
}

func (e *encoder) writeControl(v byte) {
	if e.wpos%FieldElementSize != 0 {
		panic(fmt.Errorf("blob encoding: control byte at offset %d", e.wpos))
	}
	if v&highBitsMask != 0 {
		panic(fmt.Errorf("blob encoding: control value 0b%b exceeds 6 bits", v))
	}
	e.blob[e.wpos] = v
	e.wpos++
}

func (e *encoder) write31() {
	if e.wpos%FieldElementSize != 1 {
		panic(fmt.Errorf("blob encoding: payload segment at offset %d", e.wpos))
	}
	copy(e.blob[e.wpos:], e.buf31[:])
	e.wpos += 31
}

// ToData decodes the payload stored in the blob.
func (b *Blob) ToData() (Data, error) {
	if b[versionOffset] != EncodingVersion {
		return nil, fmt.Errorf("%w: expected version %d, got %d",
			ErrBlobInvalidEncodingVersion, EncodingVersion, b[versionOffset])
	}

	outputLen := int(b[2])<<16 | int(b[3])<<8 | int(b[4])
	if outputLen > MaxBlobDataSize {
		return nil, fmt.Errorf("%w: got %d", ErrBlobInvalidLength, outputLen)
	}

	output := make(Data, MaxBlobDataSize)
	var control [4]byte

	// Round 0: the first element only holds 27 payload bytes after the header.
	if b[0]&highBitsMask != 0 {
		return nil, fmt.Errorf("%w: field element 0", ErrBlobInvalidFieldElement)
	}
	control[0] = b[0]
	copy(output[:headerPayloadBytes], b[5:FieldElementSize])
	opos, ipos := headerPayloadBytes+1, FieldElementSize
	var err error
	for j := 1; j < 4; j++ {
		if control[j], opos, ipos, err = b.decodeFieldElement(opos, ipos, output); err != nil {
			return nil, err
		}
	}
	opos = reassemble(opos, control, output)

	for round := 1; round < rounds && opos < outputLen; round++ {
		for j := 0; j < 4; j++ {
			if control[j], opos, ipos, err = b.decodeFieldElement(opos, ipos, output); err != nil {
				return nil, err
			}
		}
		opos = reassemble(opos, control, output)
	}

	for i := outputLen; i < len(output); i++ {
		if output[i] != 0 {
			return nil, fmt.Errorf("output byte %d: %w", i, ErrBlobExtraneousData)
		}
	}
	for ; ipos < BlobSize; ipos++ {
		if b[ipos] != 0 {
			return nil, fmt.Errorf("blob byte %d: %w", ipos, ErrBlobExtraneousData)
		}
	}
	return output[:outputLen], nil
}

// decodeFieldElement copies the 31 payload bytes of the element at ipos to
// output[opos:] and returns its control byte. One output byte is skipped after
// the segment; it is filled in by reassemble.
func (b *Blob) decodeFieldElement(opos, ipos int, output []byte) (byte, int, int, error) {
	if b[ipos]&highBitsMask != 0 {
		return 0, 0, 0, fmt.Errorf("%w: field element %d", ErrBlobInvalidFieldElement, ipos/FieldElementSize)
	}
	copy(output[opos:], b[ipos+1:ipos+FieldElementSize])
	return b[ipos], opos + FieldElementSize, ipos + FieldElementSize, nil
}

// reassemble rebuilds the three bytes spread over the four control values of a
// round and returns the output offset of the next round.
func reassemble(opos int, control [4]byte, output []byte) int {
	opos-- // a round yields 127 bytes, not 128
	x := (control[0] & 0b0011_1111) | ((control[1] & 0b0011_0000) << 2)
	y := (control[1] & 0b0000_1111) | ((control[3] & 0b0000_1111) << 4)
	z := (control[2] & 0b0011_1111) | ((control[3] & 0b0011_0000) << 2)
	output[opos-FieldElementSize] = z
	output[opos-2*FieldElementSize] = y
	output[opos-3*FieldElementSize] = x
	return opos
}
