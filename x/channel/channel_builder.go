package channel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/compose-network/batcher/x/compressor"
	"github.com/compose-network/batcher/x/derive"
)

// CloseReason says why a channel stopped taking blocks.
type CloseReason string

const (
	CloseReasonNone          CloseReason = ""
	CloseReasonFull          CloseReason = "full"
	CloseReasonDuration      CloseReason = "duration"
	CloseReasonTimeout       CloseReason = "timeout"
	CloseReasonForced        CloseReason = "forced"
	CloseReasonMaxFrameIndex CloseReason = "max_frame_index"
)

type frameID struct {
	chID        derive.ChannelID
	frameNumber uint16
}

type frameData struct {
	data []byte
	id   frameID
}

// ChannelBuilder feeds L2 blocks into a ChannelOut and queues the frames it
// emits. It closes the channel when the output is full, when the channel has
// been open for MaxChannelDuration L1 blocks or when frames get close to the
// channel timeout.
type ChannelBuilder struct {
	cfg Config

	// L1 block number at which the channel closes, 0 if unset
	timeout       uint64
	timeoutReason error
	// fullErr is a channel full CodecError wrapping the close cause
	fullErr error

	co     ChannelOut
	blocks []*derive.L2Block

	latestL1Origin derive.BlockID
	oldestL1Origin derive.BlockID
	latestL2       derive.BlockID
	oldestL2       derive.BlockID

	frames      []frameData
	numFrames   int
	outputBytes int
	// lastFrameOut is set once the last frame has been cut
	lastFrameOut bool
}

// NewChannelBuilder creates a builder whose duration timeout counts from
// l1OriginBlockNum.
func NewChannelBuilder(cfg Config, chainID *big.Int, l1OriginBlockNum uint64) (*ChannelBuilder, error) {
	co, err := NewChannelOut(cfg, chainID)
	if err != nil {
		return nil, fmt.Errorf("creating channel out: %w", err)
	}
	cb := &ChannelBuilder{
		cfg: cfg,
		co:  co,
	}
	cb.updateDurationTimeout(l1OriginBlockNum)
	return cb, nil
}

func (c *ChannelBuilder) ID() derive.ChannelID {
	return c.co.ID()
}

// InputBytes is the uncompressed size of the channel.
func (c *ChannelBuilder) InputBytes() int {
	return c.co.InputBytes()
}

// ReadyBytes is the compressed data not yet cut into frames.
func (c *ChannelBuilder) ReadyBytes() int {
	return c.co.ReadyBytes()
}

// OutputBytes is the total size of all frames created so far.
func (c *ChannelBuilder) OutputBytes() int {
	return c.outputBytes
}

func (c *ChannelBuilder) Blocks() []*derive.L2Block {
	return c.blocks
}

func (c *ChannelBuilder) LatestL1Origin() derive.BlockID {
	return c.latestL1Origin
}

func (c *ChannelBuilder) OldestL1Origin() derive.BlockID {
	return c.oldestL1Origin
}

func (c *ChannelBuilder) LatestL2() derive.BlockID {
	return c.latestL2
}

func (c *ChannelBuilder) OldestL2() derive.BlockID {
	return c.oldestL2
}

// AddBlock adds block to the channel. When the channel is or becomes full
// without taking the block, a channel full error is returned and the block
// must go into the next channel. A block that fills the channel is kept and
// only marks the builder full.
func (c *ChannelBuilder) AddBlock(block *derive.L2Block) error {
	if c.IsFull() {
		return c.FullErr()
	}

	err := c.co.AddSingularBatch(block.ToSingularBatch())
	switch {
	case errors.Is(err, ErrTooManyRLPBytes) && len(c.blocks) == 0:
		return fmt.Errorf("block %s does not fit into an empty channel: %w", block.ID(), err)
	case errors.Is(err, ErrTooManyRLPBytes) || errors.Is(err, compressor.ErrCompressorFull):
		c.setFullErr(err)
		return c.FullErr()
	case err != nil:
		return fmt.Errorf("adding block to channel out: %w", err)
	}

	c.blocks = append(c.blocks, block)
	if len(c.blocks) == 1 {
		c.oldestL1Origin = block.L1Origin
		c.oldestL2 = block.ID()
	}
	if block.L1Origin.Number >= c.latestL1Origin.Number {
		c.latestL1Origin = block.L1Origin
	}
	c.latestL2 = block.ID()

	if err = c.co.FullErr(); err != nil {
		c.setFullErr(err)
	}
	return nil
}

// Timeout is the L1 block number at which the channel closes, 0 if none.
func (c *ChannelBuilder) Timeout() uint64 {
	return c.timeout
}

// FramePublished shortens the timeout so the channel closes SubSafetyMargin
// blocks before frames included from l1BlockNum on could time out.
func (c *ChannelBuilder) FramePublished(l1BlockNum uint64) {
	timeout := l1BlockNum + c.cfg.ChannelTimeout - c.cfg.SubSafetyMargin
	c.updateTimeout(timeout, ErrChannelTimeoutClose)
}

func (c *ChannelBuilder) updateDurationTimeout(l1BlockNum uint64) {
	if c.cfg.MaxChannelDuration == 0 {
		return
	}
	timeout := l1BlockNum + c.cfg.MaxChannelDuration
	c.updateTimeout(timeout, ErrMaxDurationReached)
}

// updateTimeout keeps the earliest timeout.
func (c *ChannelBuilder) updateTimeout(timeoutBlockNum uint64, reason error) {
	if c.timeout == 0 || c.timeout > timeoutBlockNum {
		c.timeout = timeoutBlockNum
		c.timeoutReason = reason
	}
}

// CheckTimeout marks the channel full once l1BlockNum reached the timeout.
func (c *ChannelBuilder) CheckTimeout(l1BlockNum uint64) {
	if c.timeout != 0 && l1BlockNum >= c.timeout {
		c.setFullErr(c.timeoutReason)
	}
}

func (c *ChannelBuilder) IsFull() bool {
	return c.fullErr != nil
}

// FullErr returns the reason the channel is full, nil while it takes blocks.
func (c *ChannelBuilder) FullErr() error {
	return c.fullErr
}

// CloseReason maps FullErr to a reason label.
func (c *ChannelBuilder) CloseReason() CloseReason {
	switch {
	case c.fullErr == nil:
		return CloseReasonNone
	case errors.Is(c.fullErr, ErrMaxDurationReached):
		return CloseReasonDuration
	case errors.Is(c.fullErr, ErrChannelTimeoutClose):
		return CloseReasonTimeout
	case errors.Is(c.fullErr, ErrTerminated):
		return CloseReasonForced
	case errors.Is(c.fullErr, ErrMaxFrameIndex):
		return CloseReasonMaxFrameIndex
	default:
		return CloseReasonFull
	}
}

func (c *ChannelBuilder) setFullErr(err error) {
	if c.fullErr != nil {
		return
	}
	c.fullErr = derive.NewCodecError(derive.KindChannelFull, "channel full").WithCause(err)
}

// OutputFrames cuts frames from the compressed data. A full channel is closed
// and cut completely; otherwise only frames of MaxFrameSize are cut.
func (c *ChannelBuilder) OutputFrames() error {
	if c.IsFull() {
		return c.closeAndOutputAllFrames()
	}
	return c.outputReadyFrames()
}

func (c *ChannelBuilder) outputReadyFrames() error {
	for c.co.ReadyBytes() >= int(c.cfg.MaxFrameSize) {
		if err := c.outputFrame(); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (c *ChannelBuilder) closeAndOutputAllFrames() error {
	if c.lastFrameOut {
		return nil
	}
	if err := c.co.Close(); err != nil && !errors.Is(err, ErrChannelOutAlreadyClosed) {
		return fmt.Errorf("closing channel out: %w", err)
	}
	for {
		if err := c.outputFrame(); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// outputFrame cuts one frame. It returns io.EOF with the last frame.
func (c *ChannelBuilder) outputFrame() error {
	var buf bytes.Buffer
	fn, err := c.co.OutputFrame(&buf, c.cfg.MaxFrameSize)
	if err != io.EOF && err != nil {
		return fmt.Errorf("writing frame[%d]: %w", fn, err)
	}

	// frame numbers are uint16, later frames cannot be addressed
	if fn == math.MaxUint16 {
		c.setFullErr(ErrMaxFrameIndex)
	}

	frame := frameData{
		id:   frameID{chID: c.co.ID(), frameNumber: fn},
		data: buf.Bytes(),
	}
	c.frames = append(c.frames, frame)
	c.numFrames++
	c.outputBytes += len(frame.data)
	if err == io.EOF {
		c.lastFrameOut = true
	}
	return err
}

// Close marks the channel full as terminated, unless it is already full.
func (c *ChannelBuilder) Close() {
	c.setFullErr(ErrTerminated)
}

// TotalFrames is the number of frames created so far.
func (c *ChannelBuilder) TotalFrames() int {
	return c.numFrames
}

func (c *ChannelBuilder) HasPendingFrame() bool {
	return len(c.frames) > 0
}

func (c *ChannelBuilder) PendingFrames() int {
	return len(c.frames)
}

// NextFrame pops the next pending frame. It panics without pending frames.
func (c *ChannelBuilder) NextFrame() frameData {
	if len(c.frames) == 0 {
		panic("no next frame")
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f
}

// PushFrames puts frames of a failed transaction back at the front of the
// queue.
func (c *ChannelBuilder) PushFrames(frames ...frameData) {
	c.frames = append(append(make([]frameData, 0, len(frames)+len(c.frames)), frames...), c.frames...)
}
