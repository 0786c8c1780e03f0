package channel

import (
	"bytes"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/compose-network/batcher/x/compressor"
	"github.com/compose-network/batcher/x/derive"
)

// SpanChannelOut accumulates blocks into one span batch. The batch is
// re-encoded after every block into one of two RLP buffers, so the previous
// encoding survives when the new block overflows the channel.
type SpanChannelOut struct {
	id derive.ChannelID
	// frame is the number of the next frame
	frame uint64
	// rlp holds the current and the previous encoding, rlpIndex selects the active one
	rlp      [2]*bytes.Buffer
	rlpIndex int
	// lastCompressedRLPSize is the RLP size at the last compression pass
	lastCompressedRLPSize int
	// sealedRLPBytes is the prefix of the active buffer holding sealed span batches
	sealedRLPBytes int

	compressor compressor.ChannelCompressor
	target     uint64

	closed bool
	full   error

	chainID               *big.Int
	spanBatch             *derive.SpanBatch
	blocks                int
	maxBlocksPerSpanBatch int
	maxRLPBytes           uint64
}

type SpanChannelOutOption func(co *SpanChannelOut)

// WithMaxBlocksPerSpanBatch seals the span batch after n blocks. 0 disables sealing.
func WithMaxBlocksPerSpanBatch(n int) SpanChannelOutOption {
	return func(co *SpanChannelOut) {
		co.maxBlocksPerSpanBatch = n
	}
}

// WithMaxRLPBytes caps the uncompressed channel size.
func WithMaxRLPBytes(n uint64) SpanChannelOutOption {
	return func(co *SpanChannelOut) {
		if n > 0 {
			co.maxRLPBytes = n
		}
	}
}

func NewSpanChannelOut(
	targetOutputSize uint64,
	algo compressor.CompressionAlgo,
	chainID *big.Int,
	opts ...SpanChannelOutOption,
) (*SpanChannelOut, error) {
	if chainID == nil {
		return nil, derive.ErrMissingChainID
	}
	id, err := derive.NewChannelID()
	if err != nil {
		return nil, err
	}
	c := &SpanChannelOut{
		id:          id,
		frame:       0,
		rlp:         [2]*bytes.Buffer{{}, {}},
		target:      targetOutputSize,
		chainID:     chainID,
		spanBatch:   derive.NewSpanBatch(chainID),
		maxRLPBytes: derive.MaxRLPBytesPerChannel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.compressor, err = compressor.NewChannelCompressor(algo); err != nil {
		return nil, err
	}
	return c, nil
}

func (co *SpanChannelOut) ID() derive.ChannelID {
	return co.id
}

func (co *SpanChannelOut) Reset() error {
	id, err := derive.NewChannelID()
	if err != nil {
		return err
	}
	co.id = id
	co.closed = false
	co.full = nil
	co.frame = 0
	co.blocks = 0
	co.sealedRLPBytes = 0
	co.lastCompressedRLPSize = 0
	co.rlp[0].Reset()
	co.rlp[1].Reset()
	co.compressor.Reset()
	co.spanBatch = derive.NewSpanBatch(co.chainID)
	return nil
}

func (co *SpanChannelOut) activeRLP() *bytes.Buffer {
	return co.rlp[co.rlpIndex]
}

func (co *SpanChannelOut) inactiveRLP() *bytes.Buffer {
	return co.rlp[(co.rlpIndex+1)%2]
}

func (co *SpanChannelOut) swapRLP() {
	co.rlpIndex = (co.rlpIndex + 1) % 2
}

// AddSingularBatch appends batch to the span batch and re-encodes it.
//
// Compression is skipped while the compressed size plus the RLP growth since
// the last pass stays under the target. Once the channel reports full, the
// block is rolled back and the full error returned, unless it is the first
// block of the channel, which is always kept.
func (co *SpanChannelOut) AddSingularBatch(batch *derive.SingularBatch) error {
	if co.closed {
		return closedError()
	}
	if err := co.FullErr(); err != nil {
		return err
	}

	if err := co.spanBatch.AppendSingularBatch(batch); err != nil {
		return fmt.Errorf("failed to append SingularBatch to SpanBatch: %w", err)
	}
	rawSpanBatch, err := co.spanBatch.ToRawSpanBatch()
	if err != nil {
		return fmt.Errorf("failed to convert SpanBatch into RawSpanBatch: %w", err)
	}

	// the inactive buffer keeps the encoding without this block
	co.swapRLP()
	active := co.activeRLP()
	active.Reset()
	active.Write(co.inactiveRLP().Bytes()[:co.sealedRLPBytes])
	if err = rlp.Encode(active, derive.NewBatchData(rawSpanBatch)); err != nil {
		co.swapRLP()
		return fmt.Errorf("failed to encode RawSpanBatch into bytes: %w", err)
	}

	if uint64(active.Len()) > co.maxRLPBytes {
		err := tooManyRLPBytesError(active.Len(), co.inactiveRLP().Len(), co.maxRLPBytes)
		co.swapRLP()
		if co.blocks == 0 {
			co.spanBatch = derive.NewSpanBatch(co.chainID)
			return err
		}
		co.full = err
		if cerr := co.compress(); cerr != nil {
			return cerr
		}
		return err
	}

	rlpGrowth := active.Len() - co.lastCompressedRLPSize
	if uint64(co.compressor.Len()+rlpGrowth) < co.target {
		co.addedBlock()
		return nil
	}

	if err = co.compress(); err != nil {
		return err
	}

	if err := co.FullErr(); err != nil {
		if co.blocks == 0 && co.sealedRLPBytes == 0 {
			co.addedBlock()
			return nil
		}
		co.swapRLP()
		if err := co.compress(); err != nil {
			return err
		}
		return err
	}
	co.addedBlock()
	return nil
}

// addedBlock counts a kept block and seals the span batch at its block limit.
func (co *SpanChannelOut) addedBlock() {
	co.blocks++
	if co.maxBlocksPerSpanBatch == 0 || co.spanBatch.GetBlockCount() < co.maxBlocksPerSpanBatch {
		return
	}
	co.sealedRLPBytes = co.activeRLP().Len()
	inactive := co.inactiveRLP()
	inactive.Reset()
	inactive.Write(co.activeRLP().Bytes())
	co.spanBatch = derive.NewSpanBatch(co.chainID)
}

// compress recompresses the active RLP buffer from scratch and closes the
// compressor.
func (co *SpanChannelOut) compress() error {
	co.compressor.Reset()
	// Bytes() does not advance the buffer, so it can be compressed again later
	if _, err := co.compressor.Write(co.activeRLP().Bytes()); err != nil {
		return err
	}
	if err := co.compressor.Close(); err != nil {
		return err
	}
	co.lastCompressedRLPSize = co.activeRLP().Len()
	co.checkFull()
	return nil
}

func (co *SpanChannelOut) checkFull() {
	if co.full != nil {
		return
	}
	if uint64(co.compressor.Len()) >= co.target {
		co.full = fullError(compressor.ErrCompressorFull)
	}
}

// Blocks is the number of blocks in the channel.
func (co *SpanChannelOut) Blocks() int {
	return co.blocks
}

func (co *SpanChannelOut) InputBytes() int {
	return co.activeRLP().Len()
}

// ReadyBytes is zero until the channel is full or closed.
func (co *SpanChannelOut) ReadyBytes() int {
	if co.closed || co.FullErr() != nil {
		return co.compressor.Len()
	}
	return 0
}

// Flush is a no-op: compression is always done on whole buffers.
func (co *SpanChannelOut) Flush() error {
	return nil
}

func (co *SpanChannelOut) FullErr() error {
	return co.full
}

// Close runs the final compression pass unless the channel is already full.
func (co *SpanChannelOut) Close() error {
	if co.closed {
		return closedError()
	}
	co.closed = true
	if co.FullErr() != nil {
		return nil
	}
	return co.compress()
}

func (co *SpanChannelOut) OutputFrame(w *bytes.Buffer, maxSize uint64) (uint16, error) {
	if maxSize < derive.FrameV0OverHeadSize {
		return 0, ErrMaxFrameSizeTooSmall
	}
	f := createEmptyFrame(co.id, co.frame, co.ReadyBytes(), co.closed, maxSize)
	if _, err := io.ReadFull(co.compressor, f.Data); err != nil {
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
