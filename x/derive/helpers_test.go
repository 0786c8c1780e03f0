package derive

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
)

var testChainID = big.NewInt(1088)

type txKind int

const (
	legacyUnprotected txKind = iota
	legacyProtected
	accessListTx
	dynamicFeeTx
	unsignedEnqueue
)

var allTxKinds = []txKind{legacyUnprotected, legacyProtected, accessListTx, dynamicFeeTx, unsignedEnqueue}

func (k txKind) String() string {
	return [...]string{"legacy-unprotected", "legacy-eip155", "access-list", "dynamic-fee", "unsigned-enqueue"}[k]
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	return key
}

func randomAddress(rng *rand.Rand) common.Address {
	var a common.Address
	rng.Read(a[:])
	return a
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func randomU256(rng *rand.Rand) uint256.Int {
	var u uint256.Int
	u.SetBytes(randomBytes(rng, 32))
	return u
}

func randomTo(rng *rand.Rand) *common.Address {
	if rng.Intn(4) == 0 {
		return nil
	}
	a := randomAddress(rng)
	return &a
}

func randomAccessList(rng *rand.Rand) types.AccessList {
	if rng.Intn(2) == 0 {
		return nil
	}
	return types.AccessList{{
		Address:     randomAddress(rng),
		StorageKeys: []common.Hash{common.BytesToHash(randomBytes(rng, 32))},
	}}
}

// signerFor returns the signer used to sign txs of kind.
func signerFor(kind txKind) types.Signer {
	switch kind {
	case legacyUnprotected:
		return types.HomesteadSigner{}
	case legacyProtected:
		return types.NewEIP155Signer(testChainID)
	default:
		return types.LatestSignerForChainID(testChainID)
	}
}

func randomEthTx(t *testing.T, rng *rand.Rand, kind txKind) *types.Transaction {
	t.Helper()
	nonce := rng.Uint64() % 1_000_000
	gas := 21_000 + uint64(rng.Intn(1_000_000))
	value := big.NewInt(rng.Int63())
	data := randomBytes(rng, rng.Intn(100))

	var inner types.TxData
	switch kind {
	case legacyUnprotected, legacyProtected:
		inner = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: big.NewInt(rng.Int63n(1_000_000_000)),
			Gas:      gas,
			To:       randomTo(rng),
			Value:    value,
			Data:     data,
		}
	case accessListTx:
		inner = &types.AccessListTx{
			ChainID:    testChainID,
			Nonce:      nonce,
			GasPrice:   big.NewInt(rng.Int63n(1_000_000_000)),
			Gas:        gas,
			To:         randomTo(rng),
			Value:      value,
			Data:       data,
			AccessList: randomAccessList(rng),
		}
	case dynamicFeeTx:
		inner = &types.DynamicFeeTx{
			ChainID:    testChainID,
			Nonce:      nonce,
			GasTipCap:  big.NewInt(rng.Int63n(1_000_000_000)),
			GasFeeCap:  big.NewInt(rng.Int63n(1_000_000_000)),
			Gas:        gas,
			To:         randomTo(rng),
			Value:      value,
			Data:       data,
			AccessList: randomAccessList(rng),
		}
	case unsignedEnqueue:
		to := randomAddress(rng)
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: new(big.Int),
			Gas:      gas,
			To:       &to,
			Value:    new(big.Int),
			Data:     data,
		})
	}
	tx, err := types.SignNewTx(testKey(t), signerFor(kind), inner)
	require.NoError(t, err)
	return tx
}

func randomTx(t *testing.T, rng *rand.Rand, kind txKind) *Transaction {
	t.Helper()
	rtx := &Transaction{
		Tx: randomEthTx(t, rng, kind),
		SeqSig: SeqSignature{
			V: uint64(rng.Intn(2)),
			R: randomU256(rng),
			S: randomU256(rng),
		},
	}
	if kind == unsignedEnqueue {
		rtx.QueueOrigin = QueueOriginL1ToL2
		rtx.L1TxOrigin = randomAddress(rng)
		rtx.SeqSig = SeqSignature{}
	}
	return rtx
}

func randomTxs(t *testing.T, rng *rand.Rand, n int) []*Transaction {
	t.Helper()
	txs := make([]*Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, randomTx(t, rng, allTxKinds[rng.Intn(len(allTxKinds))]))
	}
	return txs
}

// randomSingularBatches returns n consecutive blocks whose L1 origin
// advances by at most one per block.
func randomSingularBatches(t *testing.T, rng *rand.Rand, n int) []*SingularBatch {
	t.Helper()
	epoch := uint64(1000 + rng.Intn(1000))
	timestamp := uint64(1_700_000_000 + rng.Intn(1000))
	parent := common.BytesToHash(randomBytes(rng, 32))
	out := make([]*SingularBatch, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			epoch += uint64(rng.Intn(2))
			timestamp += uint64(rng.Intn(3))
		}
		out = append(out, &SingularBatch{
			ParentHash:   parent,
			EpochNum:     epoch,
			EpochHash:    epochHash(epoch),
			Timestamp:    timestamp,
			Transactions: randomTxs(t, rng, rng.Intn(5)),
		})
		parent = common.BytesToHash(randomBytes(rng, 32))
	}
	return out
}

func epochHash(n uint64) common.Hash {
	return crypto.Keccak256Hash(new(big.Int).SetUint64(n).Bytes())
}

func requireSameTxs(t *testing.T, want, got []*Transaction) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Hash(), got[i].Hash(), "tx %d hash", i)
		require.Equal(t, want[i].QueueOrigin, got[i].QueueOrigin, "tx %d queue origin", i)
		require.Equal(t, want[i].L1TxOrigin, got[i].L1TxOrigin, "tx %d l1 tx origin", i)
		require.Equal(t, want[i].SeqSig, got[i].SeqSig, "tx %d sequencer signature", i)
	}
}
