// Package derivetest builds signed transactions and L2 block chains for
// tests of the batch pipeline.
package derivetest

import (
	"crypto/ecdsa"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/batcher/x/derive"
)

// ChainID is the L2 chain id of generated transactions.
var ChainID = big.NewInt(1088)

const keyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func Key(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(keyHex)
	require.NoError(t, err)
	return key
}

func RandomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func RandomAddress(rng *rand.Rand) common.Address {
	return common.BytesToAddress(RandomBytes(rng, common.AddressLength))
}

// L1Hash is a deterministic hash for L1 block n.
func L1Hash(n uint64) common.Hash {
	return crypto.Keccak256Hash(new(big.Int).SetUint64(n).Bytes())
}

// SequencerTx is a signed dynamic fee transaction with a sequencer signature.
func SequencerTx(t testing.TB, rng *rand.Rand, dataLen int) *derive.Transaction {
	t.Helper()
	to := RandomAddress(rng)
	tx, err := types.SignNewTx(Key(t), types.LatestSignerForChainID(ChainID), &types.DynamicFeeTx{
		ChainID:   ChainID,
		Nonce:     rng.Uint64() % 1_000_000,
		GasTipCap: big.NewInt(rng.Int63n(1_000_000_000)),
		GasFeeCap: big.NewInt(rng.Int63n(1_000_000_000)),
		Gas:       21_000 + uint64(rng.Intn(100_000)),
		To:        &to,
		Value:     big.NewInt(rng.Int63()),
		Data:      RandomBytes(rng, dataLen),
	})
	require.NoError(t, err)

	var r, s uint256.Int
	r.SetBytes(RandomBytes(rng, 32))
	s.SetBytes(RandomBytes(rng, 32))
	return &derive.Transaction{
		Tx:     tx,
		SeqSig: derive.SeqSignature{V: uint64(rng.Intn(2)), R: r, S: s},
	}
}

// EnqueueTx is an unsigned L1 to L2 transaction.
func EnqueueTx(rng *rand.Rand, dataLen int) *derive.Transaction {
	to := RandomAddress(rng)
	return &derive.Transaction{
		Tx: types.NewTx(&types.LegacyTx{
			Nonce:    rng.Uint64() % 1_000_000,
			GasPrice: new(big.Int),
			Gas:      21_000 + uint64(rng.Intn(100_000)),
			To:       &to,
			Value:    new(big.Int),
			Data:     RandomBytes(rng, dataLen),
		}),
		QueueOrigin: derive.QueueOriginL1ToL2,
		L1TxOrigin:  RandomAddress(rng),
	}
}

// Chain builds L2 blocks on top of a random parent.
type Chain struct {
	t      testing.TB
	rng    *rand.Rand
	parent common.Hash
	number uint64
}

func NewChain(t testing.TB, rng *rand.Rand) *Chain {
	return &Chain{
		t:      t,
		rng:    rng,
		parent: common.BytesToHash(RandomBytes(rng, 32)),
		number: 1,
	}
}

// Next returns the next block with the given timestamp, L1 origin and txs.
func (c *Chain) Next(timestamp, l1Origin uint64, txs ...*derive.Transaction) *derive.L2Block {
	block := &derive.L2Block{
		Hash:         common.BytesToHash(RandomBytes(c.rng, 32)),
		ParentHash:   c.parent,
		Number:       c.number,
		Timestamp:    timestamp,
		L1Origin:     derive.BlockID{Hash: L1Hash(l1Origin), Number: l1Origin},
		Transactions: txs,
	}
	c.parent = block.Hash
	c.number++
	return block
}

// RandomBlocks returns n blocks one second apart whose L1 origin advances
// every few blocks, each with txsPerBlock sequencer transactions of dataLen
// bytes of calldata.
func (c *Chain) RandomBlocks(n, txsPerBlock, dataLen int) []*derive.L2Block {
	c.t.Helper()
	blocks := make([]*derive.L2Block, 0, n)
	timestamp := uint64(1_700_000_000)
	origin := uint64(100)
	for i := 0; i < n; i++ {
		if i > 0 && c.rng.Intn(4) == 0 {
			origin++
		}
		txs := make([]*derive.Transaction, 0, txsPerBlock)
		for j := 0; j < txsPerBlock; j++ {
			txs = append(txs, SequencerTx(c.t, c.rng, dataLen))
		}
		blocks = append(blocks, c.Next(timestamp+uint64(i), origin, txs...))
	}
	return blocks
}

// RequireSameBlock checks that batch carries the contents of block.
func RequireSameBlock(t testing.TB, block *derive.L2Block, batch *derive.SingularBatch) {
	t.Helper()
	require.Equal(t, block.Timestamp, batch.Timestamp)
	require.Equal(t, block.L1Origin.Number, batch.EpochNum)
	require.Len(t, batch.Transactions, len(block.Transactions))
	for i, want := range block.Transactions {
		got := batch.Transactions[i]
		require.Equal(t, want.Hash(), got.Hash(), "tx %d hash", i)
		require.Equal(t, want.QueueOrigin, got.QueueOrigin, "tx %d queue origin", i)
		require.Equal(t, want.L1TxOrigin, got.L1TxOrigin, "tx %d l1 tx origin", i)
		require.Equal(t, want.SeqSig, got.SeqSig, "tx %d sequencer signature", i)
	}
}
