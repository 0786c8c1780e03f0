package derive

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BlockID identifies a block by hash and number.
type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s:%d", id.Hash.TerminalString(), id.Number)
}

// L1BlockRef is the L1 block metadata the codec consumes.
type L1BlockRef struct {
	Hash      common.Hash `json:"hash"`
	Number    uint64      `json:"number"`
	Timestamp uint64      `json:"timestamp"`
}

func (r L1BlockRef) ID() BlockID {
	return BlockID{Hash: r.Hash, Number: r.Number}
}

// L2Block is one L2 block as handed to the batcher.
type L2Block struct {
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Number       uint64         `json:"number"`
	Timestamp    uint64         `json:"timestamp"`
	L1Origin     BlockID        `json:"l1Origin"`
	Transactions []*Transaction `json:"transactions"`
}

func (b *L2Block) ID() BlockID {
	return BlockID{Hash: b.Hash, Number: b.Number}
}

// ToSingularBatch converts b into its one-block batch.
func (b *L2Block) ToSingularBatch() *SingularBatch {
	return &SingularBatch{
		ParentHash:   b.ParentHash,
		EpochNum:     b.L1Origin.Number,
		EpochHash:    b.L1Origin.Hash,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
	}
}
