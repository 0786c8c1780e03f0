package inbox

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/batcher/x/derive/derivetest"
)

func TestWriter_Inline(t *testing.T) {
	t.Parallel()

	rng := newRand(1)
	blocks := derivetest.NewChain(t, rng).RandomBlocks(4, 2, 48)
	txs := batchTxData(t, calldataConfig(400), blocks)
	require.NotEmpty(t, txs)

	w, err := NewWriter(DefaultConfig(), nil, 10, zerolog.Nop())
	require.NoError(t, err)

	for i, tx := range txs {
		out, err := w.Write(context.Background(), tx)
		require.NoError(t, err)
		require.Empty(t, out.Blobs)

		sub := out.Submission
		assert.Equal(t, DATypeInline, sub.DAType)
		assert.Equal(t, CompressionNone, sub.Compression)
		assert.Equal(t, uint64(10+i), sub.BatchIndex.Uint64())
		assert.Equal(t, blocks[0].Number, sub.L2Start.Uint64())
		assert.Equal(t, uint32(len(blocks)), sub.BlockCount)
		assert.Equal(t, tx.CallData(), sub.Payload)
	}
	assert.Equal(t, uint64(10+len(txs)), w.NextBatchIndex())
}

func TestWriter_Compressed(t *testing.T) {
	t.Parallel()

	rng := newRand(2)
	blocks := derivetest.NewChain(t, rng).RandomBlocks(2, 1, 32)
	txs := batchTxData(t, calldataConfig(100_000), blocks)
	require.Len(t, txs, 1)

	cfg := DefaultConfig()
	cfg.Compress = true
	w, err := NewWriter(cfg, nil, 0, zerolog.Nop())
	require.NoError(t, err)

	out, err := w.Write(context.Background(), txs[0])
	require.NoError(t, err)
	assert.Equal(t, CompressionZlib, out.Submission.Compression)

	data, err := decompress(CompressionZlib, out.Submission.Payload)
	require.NoError(t, err)
	assert.Equal(t, txs[0].CallData(), data)
}

func TestWriter_ObjectStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rng := newRand(3)
	blocks := derivetest.NewChain(t, rng).RandomBlocks(2, 1, 32)
	txs := batchTxData(t, calldataConfig(100_000), blocks)
	require.Len(t, txs, 1)

	cfg := DefaultConfig()
	cfg.DAType = DATypeObjectStore
	_, err := NewWriter(cfg, nil, 0, zerolog.Nop())
	require.Error(t, err, "object store DA needs a store")

	store, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	w, err := NewWriter(cfg, store, 0, zerolog.Nop())
	require.NoError(t, err)

	out, err := w.Write(ctx, txs[0])
	require.NoError(t, err)
	assert.Equal(t, DATypeObjectStore, out.Submission.DAType)

	stored, err := store.Read(ctx, string(out.Submission.Payload))
	require.NoError(t, err)
	assert.Equal(t, txs[0].CallData(), stored)
}

func TestWriter_Blob(t *testing.T) {
	t.Parallel()

	rng := newRand(4)
	blocks := derivetest.NewChain(t, rng).RandomBlocks(3, 2, 64)
	txs := batchTxData(t, blobConfig(1), blocks)
	require.Len(t, txs, 1)
	require.True(t, txs[0].AsBlob())

	w, err := NewWriter(DefaultConfig(), nil, 0, zerolog.Nop())
	require.NoError(t, err)
	out, err := w.Write(context.Background(), txs[0])
	require.NoError(t, err)
	assert.Equal(t, DATypeBlob, out.Submission.DAType)
	assert.Empty(t, out.Submission.Payload)
	require.Len(t, out.Blobs, 1)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, Config{DAType: DATypeObjectStore}.Validate())
	require.Error(t, Config{DAType: DATypeBlob}.Validate())
	require.Error(t, Config{DAType: DAType(7)}.Validate())
}
