package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"

	"github.com/compose-network/batcher/x/blob"
	"github.com/compose-network/batcher/x/derive"
)

// BlobSource returns the blobs of a blob transaction.
type BlobSource interface {
	GetBlobs(ctx context.Context, txHash common.Hash) ([]*blob.Blob, error)
}

// MemoryBlobSource is a BlobSource over a map.
type MemoryBlobSource map[common.Hash][]*blob.Blob

func (m MemoryBlobSource) GetBlobs(ctx context.Context, txHash common.Hash) ([]*blob.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blobs, ok := m[txHash]
	if !ok {
		return nil, fmt.Errorf("no blobs for transaction %s", txHash)
	}
	return blobs, nil
}

// Reader turns submissions back into per-block batches. Frames go through a
// channel bank, so channels may span several submissions and arrive out of
// order.
type Reader struct {
	log     zerolog.Logger
	cfg     derive.Config
	store   ObjectStore
	blobs   BlobSource
	chainID *big.Int
	bank    *derive.ChannelBank
	metrics derive.Metricer
}

// NewReader creates a reader. store and blobs may be nil when no submission
// of the matching DA type is read.
func NewReader(
	cfg derive.Config,
	store ObjectStore,
	blobs BlobSource,
	chainID *big.Int,
	log zerolog.Logger,
	m derive.Metricer,
) *Reader {
	if m == nil {
		m = derive.NoopMetrics{}
	}
	return &Reader{
		log:     log.With().Str("component", "inbox-reader").Logger(),
		cfg:     cfg,
		store:   store,
		blobs:   blobs,
		chainID: chainID,
		bank:    derive.NewChannelBank(cfg, log, m),
		metrics: m,
	}
}

// Frames resolves the frames carried by sub.
func (r *Reader) Frames(ctx context.Context, sub *Submission) ([]derive.Frame, error) {
	switch sub.DAType {
	case DATypeInline:
		data, err := decompress(sub.Compression, sub.Payload)
		if err != nil {
			return nil, err
		}
		return derive.ParseFrames(data)
	case DATypeObjectStore:
		if r.store == nil {
			return nil, errors.New("no object store configured")
		}
		stored, err := r.store.Read(ctx, string(sub.Payload))
		if err != nil {
			return nil, fmt.Errorf("reading frame data: %w", err)
		}
		data, err := decompress(sub.Compression, stored)
		if err != nil {
			return nil, err
		}
		return derive.ParseFrames(data)
	case DATypeBlob:
		return r.blobFrames(ctx, sub)
	default:
		return nil, derive.NewCodecError(derive.KindDecoding, "unknown DA type %d", uint8(sub.DAType))
	}
}

func (r *Reader) blobFrames(ctx context.Context, sub *Submission) ([]derive.Frame, error) {
	if r.blobs == nil {
		return nil, errors.New("no blob source configured")
	}
	hashes, err := sub.BlobTxHashes()
	if err != nil {
		return nil, err
	}
	var frames []derive.Frame
	for _, h := range hashes {
		blobs, err := r.blobs.GetBlobs(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("fetching blobs of %s: %w", h, err)
		}
		for i, b := range blobs {
			data, err := b.ToData()
			if err != nil {
				return nil, derive.NewCodecError(derive.KindDecoding, "blob %d of %s", i, h.TerminalString()).WithCause(err)
			}
			fs, err := derive.ParseFrames(data)
			if err != nil {
				return nil, fmt.Errorf("blob %d of %s: %w", i, h.TerminalString(), err)
			}
			frames = append(frames, fs...)
		}
	}
	return frames, nil
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, derive.NewCodecError(derive.KindDecoding, "invalid zlib payload").WithCause(err)
		}
		defer zr.Close()
		out, err := io.ReadAll(io.LimitReader(zr, derive.MaxRLPBytesPerChannel))
		if err != nil {
			return nil, derive.NewCodecError(derive.KindDecoding, "invalid zlib payload").WithCause(err)
		}
		return out, nil
	default:
		return nil, derive.NewCodecError(derive.KindDecoding, "unknown compression type %d", uint8(c))
	}
}

// AddSubmission ingests the frames of sub, included in L1 block l1. A frame
// rejected by its channel is logged and skipped; other channels are not
// affected.
func (r *Reader) AddSubmission(ctx context.Context, sub *Submission, l1 derive.L1BlockRef) error {
	frames, err := r.Frames(ctx, sub)
	if err != nil {
		r.recordDecodeError(err)
		return fmt.Errorf("submission %s: %w", sub.BatchIndex.Dec(), err)
	}
	rejected := 0
	for _, f := range frames {
		if err := r.bank.IngestFrame(f, l1); err != nil {
			rejected++
		}
	}
	r.log.Debug().
		Str("batch_index", sub.BatchIndex.Dec()).
		Str("da_type", sub.DAType.String()).
		Uint64("l1_block", l1.Number).
		Int("frames", len(frames)).
		Int("rejected", rejected).
		Msg("Ingested submission")
	return nil
}

// NextBatches decodes the next ready channel into per-block batches. It
// returns io.EOF when no channel is ready.
func (r *Reader) NextBatches(l1Head derive.L1BlockRef) ([]*derive.SingularBatch, error) {
	ch, err := r.bank.Read(l1Head)
	if err != nil {
		return nil, err
	}
	br, err := derive.NewBatchReader(ch.Reader(), r.cfg.MaxRLPBytesPerChannel)
	if err != nil {
		r.recordDecodeError(err)
		return nil, fmt.Errorf("channel %s: %w", ch.ID(), err)
	}

	var out []*derive.SingularBatch
	for {
		bd, err := br.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.recordDecodeError(err)
			return nil, fmt.Errorf("channel %s: %w", ch.ID(), err)
		}
		batches, err := derive.BlocksFromBatch(bd, r.chainID)
		if err != nil {
			r.recordDecodeError(err)
			return nil, fmt.Errorf("channel %s: %w", ch.ID(), err)
		}
		r.metrics.RecordBatchDecoded(bd.GetBatchType(), len(batches))
		out = append(out, batches...)
	}
	r.log.Info().
		Str("channel_id", ch.ID().TerminalString()).
		Str("compression", br.Algo().String()).
		Int("frames", ch.FrameCount()).
		Int("blocks", len(out)).
		Msg("Decoded channel")
	return out, nil
}

// ReadAll decodes every ready channel. A channel that fails to decode is
// dropped and its error joined into the returned error; the blocks of the
// other channels are still returned.
func (r *Reader) ReadAll(l1Head derive.L1BlockRef) ([]*derive.SingularBatch, error) {
	var (
		out  []*derive.SingularBatch
		errs []error
	)
	for {
		batches, err := r.NextBatches(l1Head)
		if errors.Is(err, io.EOF) {
			return out, errors.Join(errs...)
		}
		if err != nil {
			r.log.Warn().Err(err).Msg("Dropped undecodable channel")
			errs = append(errs, err)
			continue
		}
		out = append(out, batches...)
	}
}

// PendingChannels is the number of channels still waiting for frames.
func (r *Reader) PendingChannels() int {
	return r.bank.PendingChannels()
}

func (r *Reader) recordDecodeError(err error) {
	var cerr *derive.CodecError
	if errors.As(err, &cerr) {
		r.metrics.RecordDecodeError(cerr.Kind.String())
		return
	}
	r.metrics.RecordDecodeError("unknown")
}
