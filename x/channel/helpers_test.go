package channel

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/batcher/x/compressor"
	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/derive/derivetest"
)

func testConfig(maxFrameSize uint64, targetOutputSize uint64) Config {
	cfg := DefaultConfig()
	cfg.MaxFrameSize = maxFrameSize
	cfg.Compressor.TargetOutputSize = targetOutputSize
	cfg.Compressor.CompressionAlgo = compressor.Zlib
	return cfg
}

func newTestManager(t *testing.T, cfg Config) *ChannelManager {
	t.Helper()
	require.NoError(t, cfg.Validate())
	return NewChannelManager(zerolog.Nop(), NoopMetrics{}, cfg, derivetest.ChainID)
}

// drainFrames cuts every frame out of a closed channel.
func drainFrames(t *testing.T, co ChannelOut, maxSize uint64) []derive.Frame {
	t.Helper()
	var frames []derive.Frame
	for {
		var buf bytes.Buffer
		_, err := co.OutputFrame(&buf, maxSize)
		if err != nil && !errors.Is(err, io.EOF) {
			require.NoError(t, err)
		}
		require.LessOrEqual(t, uint64(buf.Len()), maxSize)
		var f derive.Frame
		require.NoError(t, f.UnmarshalBinary(bytes.NewReader(buf.Bytes())))
		frames = append(frames, f)
		if errors.Is(err, io.EOF) {
			require.True(t, f.IsLast)
			return frames
		}
	}
}

// readBatches reassembles frames and derives the per-block batches.
func readBatches(t *testing.T, frames []derive.Frame) []*derive.SingularBatch {
	t.Helper()
	require.NotEmpty(t, frames)
	l1 := derive.L1BlockRef{Number: 1}
	ch := derive.NewChannel(frames[0].ID, l1)
	for _, f := range frames {
		require.NoError(t, ch.AddFrame(f, l1))
	}
	require.True(t, ch.IsReady())

	br, err := derive.NewBatchReader(ch.Reader(), derive.MaxRLPBytesPerChannel)
	require.NoError(t, err)
	bds, err := br.ReadAll()
	require.NoError(t, err)

	var out []*derive.SingularBatch
	for _, bd := range bds {
		batches, err := derive.BlocksFromBatch(bd, derivetest.ChainID)
		require.NoError(t, err)
		out = append(out, batches...)
	}
	return out
}

// framesFromTxData parses the frames of calldata transactions.
func framesFromTxData(t *testing.T, txs []TxData) []derive.Frame {
	t.Helper()
	var frames []derive.Frame
	for _, tx := range txs {
		fs, err := derive.ParseFrames(tx.CallData())
		require.NoError(t, err)
		frames = append(frames, fs...)
	}
	return frames
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
