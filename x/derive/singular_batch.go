package derive

import (
	"bytes"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// SingularBatch is the input to build one L2 block.
//
//	singular_batch = rlp([parent_hash, epoch_number, epoch_hash, timestamp, transactions])
type SingularBatch struct {
	ParentHash   common.Hash    `json:"parentHash"`
	EpochNum     uint64         `json:"epochNum"`
	EpochHash    common.Hash    `json:"epochHash"`
	Timestamp    uint64         `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
}

func (b *SingularBatch) GetBatchType() int {
	return SingularBatchType
}

func (b *SingularBatch) GetTimestamp() uint64 {
	return b.Timestamp
}

// Epoch returns the L1 origin of the batch.
func (b *SingularBatch) Epoch() BlockID {
	return BlockID{Hash: b.EpochHash, Number: b.EpochNum}
}

func (b *SingularBatch) encode(w io.Writer) error {
	return rlp.Encode(w, b)
}

func (b *SingularBatch) decode(r *bytes.Reader) error {
	if err := rlp.Decode(r, b); err != nil {
		return newDecodingError("invalid singular batch").WithCause(err)
	}
	return nil
}
