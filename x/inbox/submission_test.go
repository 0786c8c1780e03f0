package inbox

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/batcher/x/derive"
)

func TestSubmission_Binary(t *testing.T) {
	t.Parallel()

	sub := &Submission{
		DAType:      DATypeInline,
		Compression: CompressionZlib,
		BlockCount:  7,
		Payload:     []byte{0x00, 0x01, 0x02},
	}
	sub.BatchIndex.SetUint64(42)
	sub.L2Start.SetUint64(1_000_000)

	data, err := sub.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, HeaderLength+3)
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, byte(11), data[1])
	assert.Equal(t, byte(42), data[33])
	assert.Equal(t, []byte{0, 0, 0, 7}, data[66:70])

	var got Submission
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, *sub, got)
	assert.Equal(t, "42", got.BatchIndex.Dec())
	assert.Equal(t, "1000000", got.L2Start.Dec())
}

func TestSubmission_Invalid(t *testing.T) {
	t.Parallel()

	header := func(da, compression byte, payload ...byte) []byte {
		data := make([]byte, HeaderLength)
		data[0] = da
		data[1] = compression
		return append(data, payload...)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "short", data: make([]byte, HeaderLength-1)},
		{name: "unknown DA type", data: header(2, 0)},
		{name: "unknown compression", data: header(0, 1)},
		{name: "compressed blob", data: header(3, 11)},
		{name: "partial blob hash", data: header(3, 0, make([]byte, 33)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var sub Submission
			err := sub.UnmarshalBinary(tt.data)
			require.ErrorIs(t, err, derive.ErrDecoding)
		})
	}
}

func TestSubmission_BlobTxHashes(t *testing.T) {
	t.Parallel()

	sub := &Submission{DAType: DATypeBlob}
	h1 := common.HexToHash("0x01")
	h2 := common.HexToHash("0x02")
	require.NoError(t, sub.AppendBlobTxHashes(h1, h2))
	require.Len(t, sub.Payload, 2*common.HashLength)

	data, err := sub.MarshalBinary()
	require.NoError(t, err)
	var got Submission
	require.NoError(t, got.UnmarshalBinary(data))
	hashes, err := got.BlobTxHashes()
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{h1, h2}, hashes)

	inline := &Submission{DAType: DATypeInline}
	require.Error(t, inline.AppendBlobTxHashes(h1))
	_, err = inline.BlobTxHashes()
	require.Error(t, err)
}

func TestDATypeAndCompression_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "inline", DATypeInline.String())
	assert.Equal(t, "object_store", DATypeObjectStore.String())
	assert.Equal(t, "blob", DATypeBlob.String())
	assert.Equal(t, "unknown(2)", DAType(2).String())
	assert.Equal(t, "none", CompressionNone.String())
	assert.Equal(t, "zlib", CompressionZlib.String())
	assert.False(t, Compression(1).Valid())
}
