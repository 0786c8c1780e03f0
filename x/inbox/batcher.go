package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/compose-network/batcher/x/channel"
	"github.com/compose-network/batcher/x/derive"
)

// Batcher feeds L2 blocks to a channel manager and turns the transactions it
// produces into submissions. It is not safe for concurrent use.
type Batcher struct {
	log    zerolog.Logger
	mgr    *channel.ChannelManager
	writer *Writer
}

func NewBatcher(
	log zerolog.Logger,
	m channel.Metricer,
	cfg channel.Config,
	chainID *big.Int,
	writer *Writer,
) *Batcher {
	return &Batcher{
		log:    log.With().Str("component", "batcher").Logger(),
		mgr:    channel.NewChannelManager(log, m, cfg, chainID),
		writer: writer,
	}
}

// AddBlocks queues blocks, which must extend the previous ones.
func (b *Batcher) AddBlocks(blocks ...*derive.L2Block) error {
	for _, block := range blocks {
		if err := b.mgr.AddL2Block(block); err != nil {
			return fmt.Errorf("adding block %d: %w", block.Number, err)
		}
	}
	return nil
}

// Submit writes every transaction that is ready at l1Head. With closeAll,
// pending blocks are flushed into channels first so nothing is left behind.
// Written transactions are confirmed at l1Head.
func (b *Batcher) Submit(ctx context.Context, l1Head derive.BlockID, closeAll bool) ([]*Output, error) {
	if closeAll {
		if err := b.mgr.Close(); err != nil && !errors.Is(err, channel.ErrPendingAfterClose) {
			return nil, err
		}
	}

	var outputs []*Output
	for {
		tx, err := b.mgr.TxData(l1Head)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return outputs, err
		}
		out, err := b.writer.Write(ctx, tx)
		if err != nil {
			b.mgr.TxFailed(tx.ID().String())
			return outputs, err
		}
		b.mgr.TxConfirmed(tx.ID().String(), l1Head)
		outputs = append(outputs, out)
	}

	b.log.Info().
		Uint64("l1_head", l1Head.Number).
		Int("submissions", len(outputs)).
		Bool("closed", closeAll).
		Msg("Submitted channel data")
	return outputs, nil
}

// Status reports the manager state.
func (b *Batcher) Status() channel.Status {
	return b.mgr.Status()
}

// Reset drops every pending block and channel, for example after an L1 reorg.
func (b *Batcher) Reset(l1Origin derive.BlockID) {
	b.mgr.Clear(l1Origin)
}

// DecodeSubmissions runs subs, all included at l1, through r and returns every
// block that could be derived. A bad submission or channel only loses its own
// data: the blocks of the others are returned along with the joined errors.
func DecodeSubmissions(ctx context.Context, r *Reader, subs []*Submission, l1 derive.L1BlockRef) ([]*derive.SingularBatch, error) {
	var errs []error
	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.AddSubmission(ctx, sub, l1); err != nil {
			r.log.Warn().Err(err).Int("submission", i).Msg("Skipped unreadable submission")
			errs = append(errs, err)
		}
	}
	batches, err := r.ReadAll(l1)
	if err != nil {
		errs = append(errs, err)
	}
	return batches, errors.Join(errs...)
}
