package channel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/batcher/x/compressor"
	"github.com/compose-network/batcher/x/derive"
)

// ChannelOut is the write side of one channel: batches go in, frames come out.
type ChannelOut interface {
	ID() derive.ChannelID
	Reset() error
	AddSingularBatch(batch *derive.SingularBatch) error
	// InputBytes is the uncompressed RLP size of the channel.
	InputBytes() int
	// ReadyBytes is the compressed data available for frames.
	ReadyBytes() int
	Flush() error
	FullErr() error
	Close() error
	// OutputFrame writes the next frame of at most maxSize bytes to w. It
	// returns io.EOF together with the last frame.
	OutputFrame(w *bytes.Buffer, maxSize uint64) (uint16, error)
}

// NewChannelOut creates the ChannelOut matching cfg.BatchType.
func NewChannelOut(cfg Config, chainID *big.Int) (ChannelOut, error) {
	ccfg := cfg.Compressor
	if ccfg.TargetOutputSize == 0 {
		ccfg.TargetOutputSize = cfg.MaxDataSize()
	}
	switch cfg.BatchType {
	case derive.SingularBatchType:
		c, err := compressor.New(ccfg)
		if err != nil {
			return nil, err
		}
		return NewSingularChannelOut(c, cfg.MaxRLPBytesPerChannel)
	case derive.SpanBatchType:
		return NewSpanChannelOut(ccfg.TargetOutputSize, ccfg.CompressionAlgo, chainID,
			WithMaxBlocksPerSpanBatch(cfg.MaxBlocksPerSpanBatch),
			WithMaxRLPBytes(cfg.MaxRLPBytesPerChannel))
	default:
		return nil, fmt.Errorf("unrecognized batch type: %d", cfg.BatchType)
	}
}

// SingularChannelOut writes one BatchData per block straight into a
// Compressor.
type SingularChannelOut struct {
	id derive.ChannelID
	// frame is the number of the next frame
	frame uint64
	// rlpLength is the uncompressed size of the channel, capped at maxRLPBytes
	rlpLength   int
	maxRLPBytes uint64

	closed   bool
	compress compressor.Compressor
}

func NewSingularChannelOut(compress compressor.Compressor, maxRLPBytes uint64) (*SingularChannelOut, error) {
	id, err := derive.NewChannelID()
	if err != nil {
		return nil, err
	}
	return &SingularChannelOut{
		id:          id,
		maxRLPBytes: maxRLPBytes,
		compress:    compress,
	}, nil
}

func (co *SingularChannelOut) ID() derive.ChannelID {
	return co.id
}

func (co *SingularChannelOut) Reset() error {
	id, err := derive.NewChannelID()
	if err != nil {
		return err
	}
	co.id = id
	co.frame = 0
	co.rlpLength = 0
	co.closed = false
	co.compress.Reset()
	return nil
}

// AddSingularBatch encodes batch and writes it to the compressor. The batch
// is either written in full or not at all.
func (co *SingularChannelOut) AddSingularBatch(batch *derive.SingularBatch) error {
	if co.closed {
		return closedError()
	}

	var buf bytes.Buffer
	if err := rlp.Encode(&buf, derive.NewBatchData(batch)); err != nil {
		return err
	}
	if uint64(co.rlpLength+buf.Len()) > co.maxRLPBytes {
		return tooManyRLPBytesError(co.rlpLength+buf.Len(), co.rlpLength, co.maxRLPBytes)
	}

	if _, err := co.compress.Write(buf.Bytes()); errors.Is(err, compressor.ErrCompressorFull) {
		return fullError(err)
	} else if err != nil {
		return err
	}
	co.rlpLength += buf.Len()
	return nil
}

func (co *SingularChannelOut) InputBytes() int {
	return co.rlpLength
}

func (co *SingularChannelOut) ReadyBytes() int {
	return co.compress.Len()
}

// Flush moves buffered compressor input into the ready bytes.
func (co *SingularChannelOut) Flush() error {
	return co.compress.Flush()
}

func (co *SingularChannelOut) FullErr() error {
	if err := co.compress.FullErr(); err != nil {
		return fullError(err)
	}
	return nil
}

func (co *SingularChannelOut) Close() error {
	if co.closed {
		return closedError()
	}
	co.closed = true
	return co.compress.Close()
}

func (co *SingularChannelOut) OutputFrame(w *bytes.Buffer, maxSize uint64) (uint16, error) {
	if maxSize < derive.FrameV0OverHeadSize {
		return 0, ErrMaxFrameSizeTooSmall
	}
	f := createEmptyFrame(co.id, co.frame, co.ReadyBytes(), co.closed, maxSize)
	if _, err := io.ReadFull(co.compress, f.Data); err != nil {
		return 0, err
	}
	if err := f.MarshalBinary(w); err != nil {
		return 0, err
	}
	co.frame++
	if f.IsLast {
		return f.FrameNumber, io.EOF
	}
	return f.FrameNumber, nil
}

// createEmptyFrame sizes the next frame. The frame is last once the channel is
// closed and the remaining ready bytes fit.
func createEmptyFrame(id derive.ChannelID, frame uint64, readyBytes int, closed bool, maxSize uint64) *derive.Frame {
	f := derive.Frame{
		ID:          id,
		FrameNumber: uint16(frame),
	}
	maxDataSize := maxSize - derive.FrameV0OverHeadSize
	if maxDataSize > derive.MaxFrameLen {
		maxDataSize = derive.MaxFrameLen
	}
	if maxDataSize >= uint64(readyBytes) {
		maxDataSize = uint64(readyBytes)
		if closed {
			f.IsLast = true
		}
	}
	f.Data = make([]byte, maxDataSize)
	return &f
}

func closedError() error {
	return derive.NewCodecError(derive.KindChannelClosed, "channel already closed").
		WithCause(ErrChannelOutAlreadyClosed)
}

func fullError(cause error) error {
	return derive.NewCodecError(derive.KindChannelFull, "compressed output reached target").
		WithCause(cause)
}

func tooManyRLPBytesError(size, prev int, max uint64) error {
	return derive.NewCodecError(derive.KindSizeLimit,
		"could not take %d bytes as replacement of channel of %d bytes, max is %d", size, prev, max).
		WithCause(ErrTooManyRLPBytes)
}
