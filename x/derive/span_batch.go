package derive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
)

// Span batch format
//
//	span_batch = prefix ++ payload
//	prefix = timestamp ++ l1_origin_num ++ parent_check ++ l1_origin_check
//	payload = block_count ++ origin_bits ++ block_tx_counts ++ timestamp_deltas ++ txs
//
// timestamp is the first block's timestamp and timestamp_deltas carries the
// difference to the previous block for every block after the first.

// ErrMissingChainID is returned when a span batch is built or derived without
// a chain id.
var ErrMissingChainID = errors.New("span batch requires a chain id")

// RawSpanBatch is the wire form of a span batch.
type RawSpanBatch struct {
	Timestamp     uint64
	L1OriginNum   uint64
	ParentCheck   [20]byte
	L1OriginCheck [20]byte

	BlockCount      uint64
	OriginBits      *big.Int
	BlockTxCounts   []uint64
	TimestampDeltas []uint64
	Txs             *SpanBatchTxs
}

func (b *RawSpanBatch) GetBatchType() int {
	return SpanBatchType
}

func (b *RawSpanBatch) GetTimestamp() uint64 {
	return b.Timestamp
}

// Encode writes the span batch payload, without the batch type byte.
func (b *RawSpanBatch) Encode(w io.Writer) error {
	return b.encode(w)
}

// Decode reads a span batch payload, without the batch type byte.
func (b *RawSpanBatch) Decode(r *bytes.Reader) error {
	return b.decode(r)
}

func (b *RawSpanBatch) encode(w io.Writer) error {
	if b.BlockCount == 0 {
		return errors.New("span batch must not be empty")
	}
	if uint64(len(b.BlockTxCounts)) != b.BlockCount {
		return fmt.Errorf("block tx counts length %d does not match block count %d", len(b.BlockTxCounts), b.BlockCount)
	}
	if uint64(len(b.TimestampDeltas)) != b.BlockCount-1 {
		return fmt.Errorf("timestamp deltas length %d does not match block count %d", len(b.TimestampDeltas), b.BlockCount)
	}
	if err := writeUvarints(w, []uint64{b.Timestamp, b.L1OriginNum}); err != nil {
		return fmt.Errorf("failed to write prefix: %w", err)
	}
	if _, err := w.Write(b.ParentCheck[:]); err != nil {
		return fmt.Errorf("failed to write parent check: %w", err)
	}
	if _, err := w.Write(b.L1OriginCheck[:]); err != nil {
		return fmt.Errorf("failed to write l1 origin check: %w", err)
	}
	if err := writeUvarints(w, []uint64{b.BlockCount}); err != nil {
		return fmt.Errorf("failed to write block count: %w", err)
	}
	if err := encodeSpanBatchBits(w, b.BlockCount, b.OriginBits); err != nil {
		return fmt.Errorf("failed to write origin bits: %w", err)
	}
	if err := writeUvarints(w, b.BlockTxCounts); err != nil {
		return fmt.Errorf("failed to write block tx counts: %w", err)
	}
	if err := writeUvarints(w, b.TimestampDeltas); err != nil {
		return fmt.Errorf("failed to write timestamp deltas: %w", err)
	}
	return b.Txs.Encode(w)
}

func (b *RawSpanBatch) decode(r *bytes.Reader) error {
	prefix, err := readUvarints(r, 2)
	if err != nil {
		return fmt.Errorf("span batch prefix: %w", err)
	}
	b.Timestamp, b.L1OriginNum = prefix[0], prefix[1]
	if _, err := io.ReadFull(r, b.ParentCheck[:]); err != nil {
		return newDecodingError("failed to read parent check").WithCause(eofAsUnexpected(err))
	}
	if _, err := io.ReadFull(r, b.L1OriginCheck[:]); err != nil {
		return newDecodingError("failed to read l1 origin check").WithCause(eofAsUnexpected(err))
	}

	blockCount, err := binary.ReadUvarint(r)
	if err != nil {
		return newDecodingError("failed to read block count").WithCause(eofAsUnexpected(err))
	}
	if blockCount > MaxSpanBatchElementCount {
		return newSizeLimitError("block count %d exceeds %d", blockCount, MaxSpanBatchElementCount)
	}
	if blockCount == 0 {
		return newDecodingError("span batch must not be empty")
	}
	b.BlockCount = blockCount

	if b.OriginBits, err = decodeSpanBatchBits(r, blockCount); err != nil {
		return fmt.Errorf("origin bits: %w", err)
	}
	if b.BlockTxCounts, err = readUvarints(r, blockCount); err != nil {
		return fmt.Errorf("block tx counts: %w", err)
	}
	var totalTxCount uint64
	for _, n := range b.BlockTxCounts {
		if n > MaxSpanBatchElementCount {
			return newSizeLimitError("block tx count %d exceeds %d", n, MaxSpanBatchElementCount)
		}
		totalTxCount += n
		if totalTxCount > MaxSpanBatchElementCount {
			return newSizeLimitError("total tx count exceeds %d", MaxSpanBatchElementCount)
		}
	}

	if b.TimestampDeltas, err = readUvarints(r, blockCount-1); err != nil {
		return fmt.Errorf("timestamp deltas: %w", err)
	}

	b.Txs = newSpanBatchTxs()
	return b.Txs.Decode(r, totalTxCount)
}

// Derive expands the raw batch into per-block elements. chainID restores
// signature v of protected transactions.
func (b *RawSpanBatch) Derive(chainID *big.Int) (*SpanBatch, error) {
	if chainID == nil {
		return nil, ErrMissingChainID
	}
	if b.BlockCount == 0 {
		return nil, newDecodingError("span batch must not be empty")
	}
	if b.OriginBits == nil || b.Txs == nil {
		return nil, newDecodingError("span batch is incomplete")
	}
	if uint64(len(b.BlockTxCounts)) != b.BlockCount || uint64(len(b.TimestampDeltas)) != b.BlockCount-1 {
		return nil, newDecodingError("span batch columns do not match block count %d", b.BlockCount)
	}
	if b.OriginBits.Bit(0) != 0 {
		return nil, newDecodingError("origin bit of the first block must be unset")
	}

	epochs := make([]uint64, b.BlockCount)
	epoch := b.L1OriginNum
	for i := int(b.BlockCount) - 1; i >= 0; i-- {
		epochs[i] = epoch
		if b.OriginBits.Bit(i) == 1 {
			if epoch == 0 {
				return nil, newDecodingError("origin bits step below l1 origin 0")
			}
			epoch--
		}
	}

	txs, err := b.Txs.FullTxs(chainID)
	if err != nil {
		return nil, err
	}

	batch := &SpanBatch{
		ParentCheck:   b.ParentCheck,
		L1OriginCheck: b.L1OriginCheck,
		chainID:       chainID,
		originBits:    new(big.Int).Set(b.OriginBits),
		blockTxCounts: append([]uint64(nil), b.BlockTxCounts...),
		sbtxs:         b.Txs,
	}
	var offset uint64
	timestamp := b.Timestamp
	for i := uint64(0); i < b.BlockCount; i++ {
		if i > 0 {
			delta := b.TimestampDeltas[i-1]
			if timestamp > math.MaxUint64-delta {
				return nil, newDecodingError("timestamp overflow at block %d", i)
			}
			timestamp += delta
		}
		count := b.BlockTxCounts[i]
		if offset+count > uint64(len(txs)) {
			return nil, newDecodingError("block tx counts exceed decoded txs")
		}
		batch.Batches = append(batch.Batches, &SpanBatchElement{
			EpochNum:     epochs[i],
			Timestamp:    timestamp,
			Transactions: txs[offset : offset+count],
		})
		offset += count
	}
	if offset != uint64(len(txs)) {
		return nil, newDecodingError("block tx counts cover %d of %d decoded txs", offset, len(txs))
	}
	return batch, nil
}

// SpanBatchElement is one block of a span batch.
type SpanBatchElement struct {
	EpochNum     uint64
	Timestamp    uint64
	Transactions []*Transaction
}

// SpanBatch aggregates consecutive blocks into one columnar batch.
type SpanBatch struct {
	// ParentCheck is the first 20 bytes of the first block's parent hash.
	ParentCheck [20]byte
	// L1OriginCheck is the first 20 bytes of the last block's L1 origin hash.
	L1OriginCheck [20]byte
	Batches       []*SpanBatchElement

	chainID       *big.Int
	originBits    *big.Int
	blockTxCounts []uint64
	sbtxs         *SpanBatchTxs
}

// NewSpanBatch returns an empty span batch for chainID.
func NewSpanBatch(chainID *big.Int) *SpanBatch {
	return &SpanBatch{
		chainID:    chainID,
		originBits: new(big.Int),
		sbtxs:      newSpanBatchTxs(),
	}
}

func (b *SpanBatch) GetBatchType() int {
	return SpanBatchType
}

// GetTimestamp returns the timestamp of the first block.
func (b *SpanBatch) GetTimestamp() uint64 {
	if len(b.Batches) == 0 {
		return 0
	}
	return b.Batches[0].Timestamp
}

func (b *SpanBatch) GetBlockCount() int {
	return len(b.Batches)
}

// GetStartEpochNum returns the L1 origin number of the first block.
func (b *SpanBatch) GetStartEpochNum() uint64 {
	if len(b.Batches) == 0 {
		return 0
	}
	return b.Batches[0].EpochNum
}

// TxCount is the number of transactions across all blocks.
func (b *SpanBatch) TxCount() uint64 {
	return b.sbtxs.TxCount()
}

// OriginBit reports whether block i advanced the L1 origin.
func (b *SpanBatch) OriginBit(i int) bool {
	return b.originBits.Bit(i) == 1
}

// CheckParentHash checks the parent hash of the first block against hash.
func (b *SpanBatch) CheckParentHash(hash [32]byte) bool {
	return bytes.Equal(b.ParentCheck[:], hash[:20])
}

// CheckOriginHash checks the L1 origin of the last block against hash.
func (b *SpanBatch) CheckOriginHash(hash [32]byte) bool {
	return bytes.Equal(b.L1OriginCheck[:], hash[:20])
}

// AppendSingularBatch adds one block. Timestamps must not decrease and the
// L1 origin must either stay or advance by one. A rejected block leaves the
// batch unchanged.
func (b *SpanBatch) AppendSingularBatch(singular *SingularBatch) error {
	if b.chainID == nil {
		return ErrMissingChainID
	}
	if n := len(b.Batches); n > 0 {
		last := b.Batches[n-1]
		if singular.Timestamp < last.Timestamp {
			return newOrderingError("block timestamp %d is before previous block timestamp %d",
				singular.Timestamp, last.Timestamp).
				WithContext("block_index", n)
		}
		if singular.EpochNum < last.EpochNum || singular.EpochNum > last.EpochNum+1 {
			return newOrderingError("block l1 origin %d does not follow previous l1 origin %d",
				singular.EpochNum, last.EpochNum).
				WithContext("block_index", n)
		}
	}
	if uint64(len(b.Batches)) >= MaxSpanBatchElementCount {
		return newSizeLimitError("span batch already holds %d blocks", len(b.Batches))
	}
	if err := b.sbtxs.AddTxs(singular.Transactions, b.chainID); err != nil {
		return fmt.Errorf("failed to add transactions of block at %d: %w", singular.Timestamp, err)
	}

	if n := len(b.Batches); n == 0 {
		copy(b.ParentCheck[:], singular.ParentHash[:20])
	} else if singular.EpochNum != b.Batches[n-1].EpochNum {
		b.originBits.SetBit(b.originBits, n, 1)
	}
	copy(b.L1OriginCheck[:], singular.EpochHash[:20])
	b.Batches = append(b.Batches, &SpanBatchElement{
		EpochNum:     singular.EpochNum,
		Timestamp:    singular.Timestamp,
		Transactions: singular.Transactions,
	})
	b.blockTxCounts = append(b.blockTxCounts, uint64(len(singular.Transactions)))
	return nil
}

// ToRawSpanBatch converts the batch into its wire form. The columns are
// shared, not copied.
func (b *SpanBatch) ToRawSpanBatch() (*RawSpanBatch, error) {
	if len(b.Batches) == 0 {
		return nil, errors.New("cannot merge empty singularBatch list")
	}
	deltas := make([]uint64, 0, len(b.Batches)-1)
	for i := 1; i < len(b.Batches); i++ {
		deltas = append(deltas, b.Batches[i].Timestamp-b.Batches[i-1].Timestamp)
	}
	last := b.Batches[len(b.Batches)-1]
	return &RawSpanBatch{
		Timestamp:       b.Batches[0].Timestamp,
		L1OriginNum:     last.EpochNum,
		ParentCheck:     b.ParentCheck,
		L1OriginCheck:   b.L1OriginCheck,
		BlockCount:      uint64(len(b.Batches)),
		OriginBits:      b.originBits,
		BlockTxCounts:   b.blockTxCounts,
		TimestampDeltas: deltas,
		Txs:             b.sbtxs,
	}, nil
}

// GetSingularBatches splits the span batch into one batch per block. When
// l1Origins is not nil, every block's L1 origin hash is filled in from it and
// the last one is checked against L1OriginCheck.
func (b *SpanBatch) GetSingularBatches(l1Origins []BlockID) ([]*SingularBatch, error) {
	var byNumber map[uint64]BlockID
	if l1Origins != nil {
		byNumber = make(map[uint64]BlockID, len(l1Origins))
		for _, o := range l1Origins {
			byNumber[o.Number] = o
		}
	}
	out := make([]*SingularBatch, 0, len(b.Batches))
	for i, el := range b.Batches {
		sb := &SingularBatch{
			EpochNum:     el.EpochNum,
			Timestamp:    el.Timestamp,
			Transactions: el.Transactions,
		}
		if byNumber != nil {
			origin, ok := byNumber[el.EpochNum]
			if !ok {
				return nil, fmt.Errorf("missing l1 origin %d for block %d", el.EpochNum, i)
			}
			sb.EpochHash = origin.Hash
		}
		out = append(out, sb)
	}
	if byNumber != nil && len(out) > 0 && !b.CheckOriginHash(out[len(out)-1].EpochHash) {
		return nil, newDecodingError("l1 origin check mismatch").
			WithContext("l1_origin", out[len(out)-1].Epoch().String())
	}
	return out, nil
}
