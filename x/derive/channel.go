package derive

import (
	"bytes"
	"io"
)

// Channel reassembles the frames of one channel on the read side. Frames may
// arrive in any order.
type Channel struct {
	id        ChannelID
	openBlock L1BlockRef

	// size of all buffered frames, including overhead
	size uint64

	closed             bool
	highestFrameNumber uint16
	endFrameNumber     uint16

	inputs map[uint16]Frame

	highestL1InclusionBlock L1BlockRef
}

// NewChannel creates a channel first seen in openBlock.
func NewChannel(id ChannelID, openBlock L1BlockRef) *Channel {
	return &Channel{
		id:        id,
		inputs:    make(map[uint16]Frame),
		openBlock: openBlock,
	}
}

func (ch *Channel) ID() ChannelID {
	return ch.id
}

// AddFrame buffers a frame included in l1InclusionBlock. A rejected frame
// leaves the channel unchanged.
func (ch *Channel) AddFrame(frame Frame, l1InclusionBlock L1BlockRef) error {
	if frame.ID != ch.id {
		return NewCodecError(KindFrameMismatch, "frame id does not match channel id").
			WithContext("frame_id", frame.ID.String()).
			WithContext("channel_id", ch.id.String())
	}
	if frame.IsLast && ch.closed {
		return NewCodecError(KindDuplicateFrame, "cannot add ending frame to a closed channel").
			WithContext("frame_number", frame.FrameNumber).
			WithContext("end_frame_number", ch.endFrameNumber)
	}
	if _, ok := ch.inputs[frame.FrameNumber]; ok {
		return NewCodecError(KindDuplicateFrame, "frame %d already buffered", frame.FrameNumber)
	}
	if ch.closed && frame.FrameNumber >= ch.endFrameNumber {
		return NewCodecError(KindFrameMismatch, "frame number %d is past the end frame number %d",
			frame.FrameNumber, ch.endFrameNumber)
	}

	if frame.IsLast {
		ch.endFrameNumber = frame.FrameNumber
		ch.closed = true
	}
	// an early last frame drops the tail buffered past it
	if frame.IsLast && ch.endFrameNumber < ch.highestFrameNumber {
		for n, pruned := range ch.inputs {
			if n >= ch.endFrameNumber {
				delete(ch.inputs, n)
				ch.size -= pruned.Size()
			}
		}
		ch.highestFrameNumber = ch.endFrameNumber
	}
	if frame.FrameNumber > ch.highestFrameNumber {
		ch.highestFrameNumber = frame.FrameNumber
	}
	if ch.highestL1InclusionBlock.Number < l1InclusionBlock.Number {
		ch.highestL1InclusionBlock = l1InclusionBlock
	}
	ch.inputs[frame.FrameNumber] = frame
	ch.size += frame.Size()
	return nil
}

// OpenBlockNumber is the L1 block the first frame was seen in.
func (ch *Channel) OpenBlockNumber() uint64 {
	return ch.openBlock.Number
}

// HighestBlock is the latest L1 block a frame of this channel was seen in.
func (ch *Channel) HighestBlock() L1BlockRef {
	return ch.highestL1InclusionBlock
}

// Size is the buffered size, frame overhead included.
func (ch *Channel) Size() uint64 {
	return ch.size
}

// FrameCount is the number of buffered frames.
func (ch *Channel) FrameCount() int {
	return len(ch.inputs)
}

// IsReady reports whether the last frame was seen and every frame up to it
// is present.
func (ch *Channel) IsReady() bool {
	if !ch.closed {
		return false
	}
	if len(ch.inputs) != int(ch.endFrameNumber)+1 {
		return false
	}
	for i := 0; i <= int(ch.endFrameNumber); i++ {
		if _, ok := ch.inputs[uint16(i)]; !ok {
			return false
		}
	}
	return true
}

// Reader streams the frame data in frame number order. It only makes sense
// once IsReady.
func (ch *Channel) Reader() io.Reader {
	readers := make([]io.Reader, 0, len(ch.inputs))
	for i := 0; i <= int(ch.endFrameNumber); i++ {
		frame, ok := ch.inputs[uint16(i)]
		if !ok {
			break
		}
		readers = append(readers, bytes.NewReader(frame.Data))
	}
	return io.MultiReader(readers...)
}
