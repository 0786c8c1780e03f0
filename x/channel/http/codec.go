package http

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/batcher/x/channel"
	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/inbox"
	"github.com/compose-network/batcher/x/l1"
)

// ErrNoBlocks is returned by Encode for an empty request.
var ErrNoBlocks = errors.New("at least one block is required")

// Deps are the configuration and collaborators of the codec operations.
type Deps struct {
	ChainID      *big.Int
	Channel      channel.Config
	Derive       derive.Config
	Inbox        inbox.Config
	InboxAddress common.Address
	// Store backs object store submissions, may be nil.
	Store inbox.ObjectStore
	// L1 fills in missing L1 origin hashes when set.
	L1               l1.Fetcher
	FetchParallelism int
	WriteMetrics     channel.Metricer
	ReadMetrics      derive.Metricer
}

// Encode batches req.Blocks into submissions with a fresh channel manager.
// All pending data is flushed.
func Encode(ctx context.Context, deps Deps, log zerolog.Logger, req EncodeRequest) (*EncodeResponse, error) {
	if len(req.Blocks) == 0 {
		return nil, ErrNoBlocks
	}
	if deps.L1 != nil {
		if err := l1.FillBlockOrigins(ctx, deps.L1, req.Blocks, deps.FetchParallelism); err != nil {
			return nil, fmt.Errorf("filling L1 origins: %w", err)
		}
	}
	l1Head := req.Blocks[len(req.Blocks)-1].L1Origin
	if req.L1Head != nil {
		l1Head = *req.L1Head
	}

	writer, err := inbox.NewWriter(deps.Inbox, deps.Store, req.FirstBatchIndex, log)
	if err != nil {
		return nil, err
	}
	b := inbox.NewBatcher(log, deps.WriteMetrics, deps.Channel, deps.ChainID, writer)
	if err := b.AddBlocks(req.Blocks...); err != nil {
		return nil, err
	}
	outputs, err := b.Submit(ctx, l1Head, true)
	if err != nil {
		return nil, err
	}

	resp := &EncodeResponse{Status: b.Status()}
	for _, out := range outputs {
		if out.Submission.DAType != inbox.DATypeBlob {
			continue
		}
		tx, err := inbox.AttachBlobTx(deps.ChainID, deps.InboxAddress, out)
		if err != nil {
			return nil, fmt.Errorf("building blob transaction: %w", err)
		}
		resp.BlobTxs = append(resp.BlobTxs, tx.Hash())
	}
	env, err := inbox.NewEnvelope(outputs)
	if err != nil {
		return nil, err
	}
	resp.Envelope = *env
	return resp, nil
}

// Decode derives the blocks carried by req with a fresh channel bank. A bad
// submission or channel only loses its own blocks: the response carries every
// block that could be derived and the error joins the failures.
func Decode(ctx context.Context, deps Deps, log zerolog.Logger, req DecodeRequest) (*DecodeResponse, error) {
	subs, blobs, err := req.Envelope.Decode()
	if err != nil {
		return nil, err
	}
	reader := inbox.NewReader(deps.Derive, deps.Store, blobs, deps.ChainID, log, deps.ReadMetrics)
	batches, decodeErr := inbox.DecodeSubmissions(ctx, reader, subs, req.L1Block)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if deps.L1 != nil && len(batches) > 0 {
		if err := l1.FillBatchOrigins(ctx, deps.L1, batches, deps.FetchParallelism); err != nil {
			return nil, fmt.Errorf("filling L1 origins: %w", err)
		}
	}
	if batches == nil {
		batches = []*derive.SingularBatch{}
	}
	resp := &DecodeResponse{
		Blocks:          batches,
		PendingChannels: reader.PendingChannels(),
	}
	if decodeErr != nil {
		resp.Errors = errorMessages(decodeErr)
	}
	return resp, decodeErr
}

// errorMessages flattens a joined error into one message per failure.
func errorMessages(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, errorMessages(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
