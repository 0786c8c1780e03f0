package derive

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/compose-network/batcher/x/compressor"
	"github.com/ethereum/go-ethereum/rlp"
)

// BatchReader decompresses a channel and decodes its batches one by one.
type BatchReader struct {
	stream *rlp.Stream
	algo   compressor.CompressionAlgo
}

// NewBatchReader detects the compression of r from its first byte. At most
// maxRLPBytes of decompressed data are read.
func NewBatchReader(r io.Reader, maxRLPBytes uint64) (*BatchReader, error) {
	dec, algo, err := compressor.NewReader(r, 0)
	if err != nil {
		return nil, newDecodingError("failed to open channel stream").WithCause(err)
	}
	return &BatchReader{
		stream: rlp.NewStream(dec, maxRLPBytes),
		algo:   algo,
	}, nil
}

// Algo is the detected compression algorithm.
func (br *BatchReader) Algo() compressor.CompressionAlgo {
	return br.algo
}

// Next returns the next batch, or io.EOF once the channel is exhausted.
func (br *BatchReader) Next() (*BatchData, error) {
	var bd BatchData
	err := br.stream.Decode(&bd)
	switch {
	case err == nil:
		return &bd, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, rlp.ErrValueTooLarge):
		return nil, newSizeLimitError("batch exceeds the channel RLP byte limit").WithCause(err)
	default:
		var cerr *CodecError
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, newDecodingError("failed to decode batch").WithCause(err)
	}
}

// ReadAll reads every batch of the channel.
func (br *BatchReader) ReadAll() ([]*BatchData, error) {
	var out []*BatchData
	for {
		bd, err := br.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, bd)
	}
}

// BlocksFromBatch expands a batch into per-block batches. Span batches are
// derived with chainID.
func BlocksFromBatch(bd *BatchData, chainID *big.Int) ([]*SingularBatch, error) {
	if sb, ok := bd.Singular(); ok {
		return []*SingularBatch{sb}, nil
	}
	raw, ok := bd.Span()
	if !ok {
		return nil, fmt.Errorf("unknown batch type %d", bd.GetBatchType())
	}
	span, err := raw.Derive(chainID)
	if err != nil {
		return nil, err
	}
	return span.GetSingularBatches(nil)
}
