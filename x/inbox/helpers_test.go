package inbox

import (
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/batcher/x/blob"
	"github.com/compose-network/batcher/x/channel"
	"github.com/compose-network/batcher/x/compressor"
	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/derive/derivetest"
)

// batchTxData runs blocks through a channel manager and returns every
// transaction it produces.
func batchTxData(t *testing.T, cfg channel.Config, blocks []*derive.L2Block) []channel.TxData {
	t.Helper()
	require.NoError(t, cfg.Validate())
	m := channel.NewChannelManager(zerolog.Nop(), nil, cfg, derivetest.ChainID)
	for _, b := range blocks {
		require.NoError(t, m.AddL2Block(b))
	}
	if err := m.Close(); err != nil {
		require.ErrorIs(t, err, channel.ErrPendingAfterClose)
	}
	var txs []channel.TxData
	for {
		tx, err := m.TxData(derive.BlockID{Number: 1})
		if errors.Is(err, io.EOF) {
			return txs
		}
		require.NoError(t, err)
		txs = append(txs, tx)
	}
}

func calldataConfig(maxFrameSize uint64) channel.Config {
	cfg := channel.DefaultConfig()
	cfg.MaxFrameSize = maxFrameSize
	cfg.Compressor.TargetOutputSize = 100_000
	cfg.Compressor.CompressionAlgo = compressor.Zlib
	return cfg
}

func blobConfig(framesPerTx int) channel.Config {
	cfg := channel.DefaultConfig()
	cfg.UseBlobs = true
	cfg.MaxFrameSize = blob.MaxBlobDataSize - 1
	cfg.TargetNumFrames = framesPerTx
	cfg.Compressor.TargetOutputSize = 0
	cfg.Compressor.CompressionAlgo = compressor.Brotli10
	return cfg
}

func requireSameBlocks(t *testing.T, blocks []*derive.L2Block, batches []*derive.SingularBatch) {
	t.Helper()
	require.Len(t, batches, len(blocks))
	for i := range blocks {
		derivetest.RequireSameBlock(t, blocks[i], batches[i])
	}
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
