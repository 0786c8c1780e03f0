package inbox

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/batcher/x/blob"
	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/derive/derivetest"
)

// roundTrip marshals and unmarshals a submission, as it would travel through
// L1 calldata.
func roundTrip(t *testing.T, sub *Submission) *Submission {
	t.Helper()
	data, err := sub.MarshalBinary()
	require.NoError(t, err)
	var got Submission
	require.NoError(t, got.UnmarshalBinary(data))
	return &got
}

func TestReader_Inline(t *testing.T) {
	t.Parallel()

	for _, compress := range []bool{false, true} {
		ctx := context.Background()
		rng := newRand(10)
		blocks := derivetest.NewChain(t, rng).RandomBlocks(6, 2, 80)
		txs := batchTxData(t, calldataConfig(500), blocks)
		require.Greater(t, len(txs), 1)

		cfg := DefaultConfig()
		cfg.Compress = compress
		w, err := NewWriter(cfg, nil, 0, zerolog.Nop())
		require.NoError(t, err)
		r := NewReader(derive.DefaultConfig(), nil, nil, derivetest.ChainID, zerolog.Nop(), nil)

		// submit in reverse, the channel completes with the last submission
		l1 := derive.L1BlockRef{Number: 20}
		for i := len(txs) - 1; i >= 0; i-- {
			out, err := w.Write(ctx, txs[i])
			require.NoError(t, err)
			require.NoError(t, r.AddSubmission(ctx, roundTrip(t, out.Submission), l1))
		}

		batches, err := r.NextBatches(l1)
		require.NoError(t, err)
		requireSameBlocks(t, blocks, batches)

		_, err = r.NextBatches(l1)
		require.ErrorIs(t, err, io.EOF)
		assert.Zero(t, r.PendingChannels())
	}
}

func TestReader_ObjectStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rng := newRand(11)
	blocks := derivetest.NewChain(t, rng).RandomBlocks(3, 3, 40)
	txs := batchTxData(t, calldataConfig(100_000), blocks)

	store, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := Config{DAType: DATypeObjectStore, Compress: true}
	w, err := NewWriter(cfg, store, 0, zerolog.Nop())
	require.NoError(t, err)
	r := NewReader(derive.DefaultConfig(), store, nil, derivetest.ChainID, zerolog.Nop(), nil)

	l1 := derive.L1BlockRef{Number: 3}
	for _, tx := range txs {
		out, err := w.Write(ctx, tx)
		require.NoError(t, err)
		require.NoError(t, r.AddSubmission(ctx, roundTrip(t, out.Submission), l1))
	}
	batches, err := r.ReadAll(l1)
	require.NoError(t, err)
	requireSameBlocks(t, blocks, batches)
}

func TestReader_ObjectStoreMissingKey(t *testing.T) {
	t.Parallel()

	store, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	r := NewReader(derive.DefaultConfig(), store, nil, derivetest.ChainID, zerolog.Nop(), nil)

	sub := &Submission{DAType: DATypeObjectStore, Payload: []byte("missing")}
	err = r.AddSubmission(context.Background(), sub, derive.L1BlockRef{})
	require.ErrorIs(t, err, ErrObjectNotFound)
}

func TestReader_Blob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rng := newRand(12)
	blocks := derivetest.NewChain(t, rng).RandomBlocks(4, 2, 100)
	txs := batchTxData(t, blobConfig(2), blocks)
	require.Len(t, txs, 1)

	w, err := NewWriter(DefaultConfig(), nil, 0, zerolog.Nop())
	require.NoError(t, err)
	out, err := w.Write(ctx, txs[0])
	require.NoError(t, err)

	txHash := common.HexToHash("0xb10b")
	source := MemoryBlobSource{txHash: out.Blobs}
	require.NoError(t, out.Submission.AppendBlobTxHashes(txHash))

	r := NewReader(derive.DefaultConfig(), nil, source, derivetest.ChainID, zerolog.Nop(), nil)
	l1 := derive.L1BlockRef{Number: 8}
	require.NoError(t, r.AddSubmission(ctx, roundTrip(t, out.Submission), l1))
	batches, err := r.ReadAll(l1)
	require.NoError(t, err)
	requireSameBlocks(t, blocks, batches)

	unknown := &Submission{DAType: DATypeBlob}
	require.NoError(t, unknown.AppendBlobTxHashes(common.HexToHash("0xdead")))
	require.Error(t, r.AddSubmission(ctx, unknown, l1))
}

func TestReader_CorruptPayload(t *testing.T) {
	t.Parallel()

	r := NewReader(derive.DefaultConfig(), nil, nil, derivetest.ChainID, zerolog.Nop(), nil)
	l1 := derive.L1BlockRef{Number: 1}

	err := r.AddSubmission(context.Background(), &Submission{Payload: []byte{0x01, 0x02}}, l1)
	require.ErrorIs(t, err, derive.ErrDecoding)

	sub := &Submission{Compression: CompressionZlib, Payload: []byte{0x00, 0x01}}
	err = r.AddSubmission(context.Background(), sub, l1)
	require.ErrorIs(t, err, derive.ErrDecoding)
}

// corruptChannel is an inline submission carrying a complete one-frame
// channel whose data is not a valid zlib stream.
func corruptChannel(t *testing.T, id derive.ChannelID) *Submission {
	t.Helper()
	data, err := derive.MarshalFrames([]derive.Frame{{
		ID:     id,
		Data:   []byte{0x78, 0x9c, 0xff, 0xff},
		IsLast: true,
	}})
	require.NoError(t, err)
	return &Submission{DAType: DATypeInline, Payload: data}
}

func TestReader_BadChannelIsLocal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blocks := derivetest.NewChain(t, newRand(13)).RandomBlocks(3, 2, 60)
	txs := batchTxData(t, calldataConfig(100_000), blocks)
	require.Len(t, txs, 1)

	w, err := NewWriter(DefaultConfig(), nil, 0, zerolog.Nop())
	require.NoError(t, err)
	out, err := w.Write(ctx, txs[0])
	require.NoError(t, err)
	good := roundTrip(t, out.Submission)
	frames, err := derive.ParseFrames(good.Payload)
	require.NoError(t, err)
	goodID := frames[0].ID

	before := derive.ChannelID{0x09, 0x01}
	after := derive.ChannelID{0x09, 0x02}

	r := NewReader(derive.DefaultConfig(), nil, nil, derivetest.ChainID, zerolog.Nop(), nil)
	l1 := derive.L1BlockRef{Number: 4}
	require.NoError(t, r.AddSubmission(ctx, corruptChannel(t, before), l1))
	require.NoError(t, r.AddSubmission(ctx, good, l1))
	require.NoError(t, r.AddSubmission(ctx, corruptChannel(t, after), l1))

	batches, err := r.ReadAll(l1)
	requireSameBlocks(t, blocks, batches)
	require.Error(t, err)
	require.ErrorIs(t, err, derive.ErrDecoding)
	assert.Contains(t, err.Error(), before.String())
	assert.Contains(t, err.Error(), after.String())
	assert.NotContains(t, err.Error(), goodID.String())
	assert.Zero(t, r.PendingChannels())
}

func TestNewBlobTx(t *testing.T) {
	t.Parallel()

	var b blob.Blob
	require.NoError(t, b.FromData(blob.Data("inbox frames")))
	to := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	tx, err := NewBlobTx(derivetest.ChainID, to, []*blob.Blob{&b})
	require.NoError(t, err)
	require.Equal(t, uint8(types.BlobTxType), tx.Type())
	require.Equal(t, &to, tx.To())
	require.Zero(t, derivetest.ChainID.Cmp(tx.ChainId()))

	hash, err := b.VersionedHash()
	require.NoError(t, err)
	require.Equal(t, []common.Hash{hash}, tx.BlobHashes())

	sidecar := tx.BlobTxSidecar()
	require.NotNil(t, sidecar)
	require.Len(t, sidecar.Proofs, 1)
	require.NoError(t, kzg4844.VerifyBlobProof(&sidecar.Blobs[0], sidecar.Commitments[0], sidecar.Proofs[0]))

	_, err = NewBlobTx(derivetest.ChainID, to, nil)
	require.Error(t, err)
}
