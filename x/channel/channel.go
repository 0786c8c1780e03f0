package channel

import (
	"math/big"

	"github.com/rs/zerolog"

	"github.com/compose-network/batcher/x/derive"
)

// channel tracks the transactions carrying the frames of one ChannelBuilder.
type channel struct {
	log     zerolog.Logger
	metrics Metricer
	cfg     Config

	*ChannelBuilder

	// pendingTransactions maps tx ids to in-flight tx data
	pendingTransactions map[string]TxData
	// confirmedTransactions maps tx ids to their inclusion block
	confirmedTransactions map[string]derive.BlockID

	minInclusionBlock uint64
	maxInclusionBlock uint64
}

func newChannel(
	log zerolog.Logger,
	m Metricer,
	cfg Config,
	chainID *big.Int,
	l1OriginBlockNum uint64,
) (*channel, error) {
	cb, err := NewChannelBuilder(cfg, chainID, l1OriginBlockNum)
	if err != nil {
		return nil, err
	}
	return &channel{
		log:                   log,
		metrics:               m,
		cfg:                   cfg,
		ChannelBuilder:        cb,
		pendingTransactions:   make(map[string]TxData),
		confirmedTransactions: make(map[string]derive.BlockID),
		minInclusionBlock:     ^uint64(0),
	}, nil
}

// TxFailed requeues the frames of a failed transaction.
func (c *channel) TxFailed(id string) {
	if data, ok := c.pendingTransactions[id]; ok {
		c.log.Debug().Str("tx_id", id).Int("frames", len(data.frames)).Msg("Channel tx failed, requeueing frames")
		c.PushFrames(data.frames...)
		delete(c.pendingTransactions, id)
	} else {
		c.log.Warn().Str("tx_id", id).Msg("Unknown transaction marked as failed")
	}
	c.metrics.RecordBatchTxFailed()
}

// TxConfirmed records an inclusion. It reports true when the channel timed
// out, in which case its blocks must be resubmitted.
func (c *channel) TxConfirmed(id string, inclusionBlock derive.BlockID) bool {
	c.metrics.RecordBatchTxSubmitted()
	c.log.Debug().Str("tx_id", id).Stringer("inclusion_block", inclusionBlock).Msg("Marked transaction as confirmed")
	if _, ok := c.pendingTransactions[id]; !ok {
		c.log.Warn().Str("tx_id", id).Stringer("inclusion_block", inclusionBlock).Msg("Unknown transaction marked as confirmed")
		return false
	}
	delete(c.pendingTransactions, id)
	c.confirmedTransactions[id] = inclusionBlock
	c.FramePublished(inclusionBlock.Number)

	if inclusionBlock.Number < c.minInclusionBlock {
		c.minInclusionBlock = inclusionBlock.Number
	}
	if inclusionBlock.Number > c.maxInclusionBlock {
		c.maxInclusionBlock = inclusionBlock.Number
	}

	if c.isTimedOut() {
		c.metrics.RecordChannelTimedOut(c.ID())
		c.log.Warn().
			Str("channel_id", c.ID().TerminalString()).
			Uint64("min_inclusion_block", c.minInclusionBlock).
			Uint64("max_inclusion_block", c.maxInclusionBlock).
			Msg("Channel timed out")
		return true
	}
	if c.isFullySubmitted() {
		c.metrics.RecordChannelFullySubmitted(c.ID())
		c.log.Info().
			Str("channel_id", c.ID().TerminalString()).
			Uint64("min_inclusion_block", c.minInclusionBlock).
			Uint64("max_inclusion_block", c.maxInclusionBlock).
			Msg("Channel is fully submitted")
	}
	return false
}

// isTimedOut reports whether confirmed frames are ChannelTimeout or more L1
// blocks apart.
func (c *channel) isTimedOut() bool {
	return len(c.confirmedTransactions) > 0 &&
		c.maxInclusionBlock-c.minInclusionBlock >= c.cfg.ChannelTimeout
}

// isFullySubmitted reports whether every frame of a closed channel is confirmed.
func (c *channel) isFullySubmitted() bool {
	return c.IsFull() && c.lastFrameOut && len(c.pendingTransactions)+c.PendingFrames() == 0
}

// NoneSubmitted reports whether no frame was ever handed out.
func (c *channel) NoneSubmitted() bool {
	return len(c.confirmedTransactions) == 0 && len(c.pendingTransactions) == 0
}

// HasTxData reports whether the next transaction can be built. Multi-frame
// transactions wait for TargetNumFrames frames unless the channel is full.
func (c *channel) HasTxData() bool {
	if c.IsFull() || c.cfg.MaxFramesPerTx() == 1 {
		return c.HasPendingFrame()
	}
	return c.PendingFrames() >= c.cfg.MaxFramesPerTx()
}

// NextTxData takes up to MaxFramesPerTx frames into a new pending transaction.
func (c *channel) NextTxData() TxData {
	n := min(c.cfg.MaxFramesPerTx(), c.PendingFrames())
	txdata := TxData{
		asBlob:     c.cfg.UseBlobs,
		l2Start:    c.OldestL2().Number,
		blockCount: len(c.Blocks()),
	}
	for i := 0; i < n; i++ {
		txdata.frames = append(txdata.frames, c.NextFrame())
	}
	id := txdata.ID().String()
	c.log.Debug().Str("tx_id", id).Int("frames", n).Bool("as_blob", txdata.asBlob).Msg("Returning next tx data")
	c.pendingTransactions[id] = txdata
	return txdata
}
