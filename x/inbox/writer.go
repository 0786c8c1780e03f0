package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"

	"github.com/compose-network/batcher/x/blob"
	"github.com/compose-network/batcher/x/channel"
)

// Output is one submission and, for DATypeBlob, the blobs its blob
// transactions must carry.
type Output struct {
	Submission *Submission
	Blobs      []*blob.Blob
}

// Writer wraps tx data into numbered submissions.
type Writer struct {
	cfg   Config
	store ObjectStore
	log   zerolog.Logger

	nextBatchIndex uint64
}

// NewWriter creates a writer whose first submission has batch index
// firstBatchIndex. store may be nil unless cfg.DAType is DATypeObjectStore.
func NewWriter(cfg Config, store ObjectStore, firstBatchIndex uint64, log zerolog.Logger) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DAType == DATypeObjectStore && store == nil {
		return nil, errors.New("object store submissions need a store")
	}
	return &Writer{
		cfg:            cfg,
		store:          store,
		log:            log.With().Str("component", "inbox-writer").Logger(),
		nextBatchIndex: firstBatchIndex,
	}, nil
}

// Write builds the submission of tx. Blob submissions get their payload once
// the blob transactions are sent, through AppendBlobTxHashes.
func (w *Writer) Write(ctx context.Context, tx channel.TxData) (*Output, error) {
	l2Start, blockCount := tx.L2Range()
	if uint64(blockCount) > math.MaxUint32 {
		return nil, fmt.Errorf("block count %d does not fit the submission header", blockCount)
	}
	sub := &Submission{
		BlockCount: uint32(blockCount),
	}
	sub.BatchIndex.SetUint64(w.nextBatchIndex)
	sub.L2Start.SetUint64(l2Start)

	out := &Output{Submission: sub}
	switch {
	case tx.AsBlob():
		blobs, err := tx.Blobs()
		if err != nil {
			return nil, fmt.Errorf("encoding blobs: %w", err)
		}
		sub.DAType = DATypeBlob
		out.Blobs = blobs
	default:
		data, compression, err := w.frameData(tx)
		if err != nil {
			return nil, err
		}
		sub.Compression = compression
		sub.DAType = w.cfg.DAType
		if w.cfg.DAType == DATypeObjectStore {
			key, err := w.store.Write(ctx, "", data)
			if err != nil {
				return nil, fmt.Errorf("storing frame data: %w", err)
			}
			data = []byte(key)
		}
		sub.Payload = data
	}

	w.log.Debug().
		Str("tx_id", tx.ID().TerminalString()).
		Str("da_type", sub.DAType.String()).
		Str("compression", sub.Compression.String()).
		Uint64("batch_index", w.nextBatchIndex).
		Uint64("l2_start", l2Start).
		Int("block_count", blockCount).
		Int("frames", len(tx.Frames())).
		Int("payload_bytes", len(sub.Payload)).
		Msg("Built submission")
	w.nextBatchIndex++
	return out, nil
}

// NextBatchIndex is the batch index of the next submission.
func (w *Writer) NextBatchIndex() uint64 {
	return w.nextBatchIndex
}

func (w *Writer) frameData(tx channel.TxData) ([]byte, Compression, error) {
	data := tx.CallData()
	if !w.cfg.Compress {
		return data, CompressionNone, nil
	}
	compressed, err := zlibCompress(data)
	if err != nil {
		return nil, 0, err
	}
	return compressed, CompressionZlib, nil
}

func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
