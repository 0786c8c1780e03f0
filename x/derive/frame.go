package derive

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	// ChannelIDLength is the byte length of a channel id.
	ChannelIDLength = 16
	// FrameV0OverHeadSize is the fixed cost of a frame: id, number, length
	// and the last flag.
	FrameV0OverHeadSize = 23
	// MaxFrameLen caps the data carried by a single frame.
	MaxFrameLen = 1_000_000
)

// ChannelID identifies a channel.
type ChannelID [ChannelIDLength]byte

// NewChannelID returns a random channel id.
func NewChannelID() (ChannelID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return ChannelID{}, fmt.Errorf("failed to generate channel id: %w", err)
	}
	return ChannelID(u), nil
}

func (id ChannelID) String() string {
	return hex.EncodeToString(id[:])
}

// TerminalString is a shortened id for log lines.
func (id ChannelID) TerminalString() string {
	return fmt.Sprintf("%x..%x", id[:3], id[13:])
}

// ChannelIDFromString parses a hex encoded channel id.
func ChannelIDFromString(s string) (ChannelID, error) {
	var id ChannelID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid channel id %q: %w", s, err)
	}
	if len(b) != ChannelIDLength {
		return id, fmt.Errorf("invalid channel id %q: expected %d bytes, got %d", s, ChannelIDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Frame is a slice of a channel's compressed stream.
//
//	frame = channel_id ++ frame_number ++ frame_data_length ++ frame_data ++ is_last
type Frame struct {
	ID          ChannelID `json:"id"`
	FrameNumber uint16    `json:"frameNumber"`
	Data        []byte    `json:"data"`
	IsLast      bool      `json:"isLast"`
}

// Size is the encoded size of f.
func (f *Frame) Size() uint64 {
	return uint64(len(f.Data)) + FrameV0OverHeadSize
}

// MarshalBinary writes the frame to w.
func (f *Frame) MarshalBinary(w io.Writer) error {
	if _, err := w.Write(f.ID[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, f.FrameNumber); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(f.Data))); err != nil {
		return err
	}
	if _, err := w.Write(f.Data); err != nil {
		return err
	}
	last := byte(0)
	if f.IsLast {
		last = 1
	}
	_, err := w.Write([]byte{last})
	return err
}

// ByteReader is what UnmarshalBinary consumes.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// UnmarshalBinary reads one frame from r. An empty reader yields io.EOF.
func (f *Frame) UnmarshalBinary(r ByteReader) error {
	if _, err := io.ReadFull(r, f.ID[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return newDecodingError("reading channel id").WithCause(err)
	}
	if err := binary.Read(r, binary.BigEndian, &f.FrameNumber); err != nil {
		return newDecodingError("reading frame number").WithCause(eofAsUnexpected(err))
	}

	var frameLength uint32
	if err := binary.Read(r, binary.BigEndian, &frameLength); err != nil {
		return newDecodingError("reading frame length").WithCause(eofAsUnexpected(err))
	}
	if frameLength > MaxFrameLen {
		return newSizeLimitError("frame data length %d exceeds %d", frameLength, MaxFrameLen)
	}

	f.Data = make([]byte, int(frameLength))
	if _, err := io.ReadFull(r, f.Data); err != nil {
		return newDecodingError("reading frame data").WithCause(eofAsUnexpected(err))
	}

	isLast, err := r.ReadByte()
	if err != nil {
		return newDecodingError("reading final byte").WithCause(eofAsUnexpected(err))
	}
	switch isLast {
	case 0:
		f.IsLast = false
	case 1:
		f.IsLast = true
	default:
		return newDecodingError("invalid byte as boolean: %d", isLast)
	}
	return nil
}

func eofAsUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ParseFrames parses a version 0 submission into its frames. All frames must
// parse or none are returned.
func ParseFrames(data []byte) ([]Frame, error) {
	if len(data) == 0 {
		return nil, newDecodingError("data array must not be empty")
	}
	if data[0] != DerivationVersion0 {
		return nil, newDecodingError("invalid derivation format byte: got %d", data[0])
	}
	buf := bytes.NewBuffer(data[1:])
	var frames []Frame
	for buf.Len() > 0 {
		var f Frame
		if err := f.UnmarshalBinary(buf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parsing frame %d: %w", len(frames), err)
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return nil, newDecodingError("was not able to find any frames")
	}
	return frames, nil
}

// MarshalFrames encodes frames as a version 0 submission.
func MarshalFrames(frames []Frame) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(DerivationVersion0)
	for i := range frames {
		if err := frames[i].MarshalBinary(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
