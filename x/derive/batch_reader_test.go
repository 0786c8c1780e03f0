package derive

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/compose-network/batcher/x/compressor"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressBatches(t *testing.T, algo compressor.CompressionAlgo, batches ...*BatchData) []byte {
	t.Helper()
	cc, err := compressor.NewChannelCompressor(algo)
	require.NoError(t, err)
	for _, bd := range batches {
		require.NoError(t, rlp.Encode(cc, bd))
	}
	require.NoError(t, cc.Close())
	return cc.GetCompressed().Bytes()
}

func TestBatchReader_RoundTrip(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(17))
	singulars := randomSingularBatches(t, rng, 4)
	raw, err := buildSpanBatch(t, singulars[1:]).ToRawSpanBatch()
	require.NoError(t, err)

	for _, algo := range []compressor.CompressionAlgo{compressor.Zlib, compressor.Brotli10} {
		t.Run(algo.String(), func(t *testing.T) {
			t.Parallel()
			data := compressBatches(t, algo, NewBatchData(singulars[0]), NewBatchData(raw))

			br, err := NewBatchReader(bytes.NewReader(data), MaxRLPBytesPerChannel)
			require.NoError(t, err)
			assert.Equal(t, algo.IsBrotli(), br.Algo().IsBrotli())

			batches, err := br.ReadAll()
			require.NoError(t, err)
			require.Len(t, batches, 2)
			assert.Equal(t, SingularBatchType, batches[0].GetBatchType())
			assert.Equal(t, SpanBatchType, batches[1].GetBatchType())

			var blocks []*SingularBatch
			for _, bd := range batches {
				bs, err := BlocksFromBatch(bd, testChainID)
				require.NoError(t, err)
				blocks = append(blocks, bs...)
			}
			require.Len(t, blocks, len(singulars))
			for i := range singulars {
				assert.Equal(t, singulars[i].Timestamp, blocks[i].Timestamp)
				assert.Equal(t, singulars[i].EpochNum, blocks[i].EpochNum)
				requireSameTxs(t, singulars[i].Transactions, blocks[i].Transactions)
			}
		})
	}
}

func TestBatchReader_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewBatchReader(bytes.NewReader([]byte{0x02, 0x00}), MaxRLPBytesPerChannel)
	require.ErrorIs(t, err, ErrDecoding)
	require.ErrorIs(t, err, compressor.ErrUnknownCompression)

	_, err = NewBatchReader(bytes.NewReader(nil), MaxRLPBytesPerChannel)
	require.ErrorIs(t, err, ErrDecoding)

	rng := rand.New(rand.NewSource(23))
	bd := NewBatchData(randomSingularBatches(t, rng, 1)[0])
	data := compressBatches(t, compressor.Zlib, bd)

	br, err := NewBatchReader(bytes.NewReader(data), 10)
	require.NoError(t, err)
	_, err = br.Next()
	require.ErrorIs(t, err, ErrSizeLimit)

	// a stream cut short fails to decode
	br, err = NewBatchReader(bytes.NewReader(data[:len(data)/2]), MaxRLPBytesPerChannel)
	require.NoError(t, err)
	_, err = br.ReadAll()
	require.Error(t, err)

	// an unknown batch type inside a valid stream
	cc, err := compressor.NewChannelCompressor(compressor.Zlib)
	require.NoError(t, err)
	require.NoError(t, rlp.Encode(cc, []byte{9, 1, 2, 3}))
	require.NoError(t, cc.Close())
	br, err = NewBatchReader(bytes.NewReader(cc.GetCompressed().Bytes()), MaxRLPBytesPerChannel)
	require.NoError(t, err)
	_, err = br.Next()
	require.ErrorIs(t, err, ErrDecoding)
}
