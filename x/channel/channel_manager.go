package channel

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/batcher/x/derive"
)

// ChannelManager turns a chain of L2 blocks into transaction data. Blocks are
// queued with AddL2Block, TxData hands out the next transaction and receipts
// are routed back with TxConfirmed and TxFailed.
//
// Frames of one channel are always handed out before those of a later one.
type ChannelManager struct {
	mu      sync.Mutex
	log     zerolog.Logger
	metrics Metricer
	cfg     Config
	chainID *big.Int

	// blocks not yet added to a channel
	blocks []*derive.L2Block
	// tip is the hash of the last added block
	tip common.Hash
	// l1OriginLastClosedChannel starts the duration timeout of the next channel
	l1OriginLastClosedChannel derive.BlockID

	currentChannel *channel
	// channelQueue holds channels with frames not yet confirmed, oldest first
	channelQueue []*channel
	// txChannels maps tx ids to the channel of their frames
	txChannels map[string]*channel

	closed bool
}

func NewChannelManager(log zerolog.Logger, m Metricer, cfg Config, chainID *big.Int) *ChannelManager {
	if m == nil {
		m = NoopMetrics{}
	}
	return &ChannelManager{
		log:        log.With().Str("component", "channel-manager").Logger(),
		metrics:    m,
		cfg:        cfg,
		chainID:    chainID,
		txChannels: make(map[string]*channel),
	}
}

// Clear drops all state, e.g. after a reorg. l1OriginLastClosedChannel seeds
// the duration timeout of the next channel.
func (s *ChannelManager) Clear(l1OriginLastClosedChannel derive.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info().Stringer("l1_origin", l1OriginLastClosedChannel).Msg("Clearing channel manager state")
	s.blocks = s.blocks[:0]
	s.tip = common.Hash{}
	s.l1OriginLastClosedChannel = l1OriginLastClosedChannel
	s.closed = false
	s.currentChannel = nil
	s.channelQueue = nil
	s.txChannels = make(map[string]*channel)
}

// TxFailed requeues the frames of transaction id.
func (s *ChannelManager) TxFailed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.txChannels[id]; ok {
		delete(s.txChannels, id)
		ch.TxFailed(id)
	} else {
		s.log.Warn().Str("tx_id", id).Msg("Transaction from unknown channel marked as failed")
	}
}

// TxConfirmed marks transaction id as included in inclusionBlock. A channel
// whose frames end up too far apart is invalidated and its blocks requeued.
func (s *ChannelManager) TxConfirmed(id string, inclusionBlock derive.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.txChannels[id]
	if !ok {
		s.log.Warn().Str("tx_id", id).Stringer("inclusion_block", inclusionBlock).Msg("Transaction from unknown channel marked as confirmed")
		return
	}
	delete(s.txChannels, id)
	if timedOut := ch.TxConfirmed(id, inclusionBlock); timedOut {
		s.handleChannelInvalidated(ch)
		return
	}
	s.trimSubmittedChannels()
}

// handleChannelInvalidated requeues the blocks of c and every later channel
// and drops those channels.
func (s *ChannelManager) handleChannelInvalidated(c *channel) {
	idx := -1
	for i, ch := range s.channelQueue {
		if ch == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.log.Warn().Str("channel_id", c.ID().TerminalString()).Msg("Invalidated channel not in queue")
		return
	}

	var requeue []*derive.L2Block
	for _, ch := range s.channelQueue[idx:] {
		requeue = append(requeue, ch.Blocks()...)
		for id, owner := range s.txChannels {
			if owner == ch {
				delete(s.txChannels, id)
			}
		}
	}
	s.blocks = append(requeue, s.blocks...)
	s.channelQueue = s.channelQueue[:idx]
	s.currentChannel = nil

	ev := s.log.Warn().Str("channel_id", c.ID().TerminalString()).Int("requeued_blocks", len(requeue))
	if len(requeue) > 0 {
		ev = ev.Stringer("rewound_to", requeue[0].ID())
	}
	ev.Msg("Channel invalidated, blocks requeued")
}

// trimSubmittedChannels drops fully submitted channels from the queue head.
func (s *ChannelManager) trimSubmittedChannels() {
	for len(s.channelQueue) > 0 && s.channelQueue[0].isFullySubmitted() {
		ch := s.channelQueue[0]
		s.channelQueue = s.channelQueue[1:]
		if s.currentChannel == ch {
			s.currentChannel = nil
		}
		s.log.Debug().Str("channel_id", ch.ID().TerminalString()).Msg("Dropped fully submitted channel")
	}
}

func (s *ChannelManager) nextTxData(ch *channel) (TxData, error) {
	if ch == nil || !ch.HasTxData() {
		s.log.Debug().Msg("No next tx data")
		return TxData{}, io.EOF
	}
	tx := ch.NextTxData()
	s.txChannels[tx.ID().String()] = ch
	return tx, nil
}

// TxData returns the next transaction to submit. Pending frames of queued
// channels go first. Otherwise pending blocks are added to the current
// channel and its frames are cut. io.EOF means nothing is ready yet.
func (s *ChannelManager) TxData(l1Head derive.BlockID) (TxData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.getReadyChannel(l1Head)
	if err != nil {
		return TxData{}, err
	}
	return s.nextTxData(ch)
}

func (s *ChannelManager) getReadyChannel(l1Head derive.BlockID) (*channel, error) {
	var firstWithTxData *channel
	for _, ch := range s.channelQueue {
		if ch.HasTxData() {
			firstWithTxData = ch
			break
		}
	}

	s.log.Debug().
		Stringer("l1_head", l1Head).
		Bool("txdata_pending", firstWithTxData != nil).
		Int("blocks_pending", len(s.blocks)).
		Msg("Requested tx data")

	if firstWithTxData != nil {
		return firstWithTxData, nil
	}
	if s.closed || len(s.blocks) == 0 {
		return nil, io.EOF
	}

	if err := s.ensureChannelWithSpace(l1Head); err != nil {
		return nil, err
	}
	if err := s.processBlocks(); err != nil {
		return nil, err
	}
	// pending blocks are in, a timeout now closes the channel with all of them
	s.registerL1Block(l1Head)
	if err := s.outputFrames(); err != nil {
		return nil, err
	}

	if s.currentChannel.HasTxData() {
		return s.currentChannel, nil
	}
	return nil, io.EOF
}

// ensureChannelWithSpace opens a new channel when there is none or the
// current one is full.
func (s *ChannelManager) ensureChannelWithSpace(l1Head derive.BlockID) error {
	if s.currentChannel != nil && !s.currentChannel.IsFull() {
		return nil
	}

	ch, err := newChannel(s.log, s.metrics, s.cfg, s.chainID, s.l1OriginLastClosedChannel.Number)
	if err != nil {
		return fmt.Errorf("creating new channel: %w", err)
	}
	s.currentChannel = ch
	s.channelQueue = append(s.channelQueue, ch)

	s.log.Info().
		Str("channel_id", ch.ID().TerminalString()).
		Stringer("l1_head", l1Head).
		Stringer("l1_origin_last_closed_channel", s.l1OriginLastClosedChannel).
		Int("blocks_pending", len(s.blocks)).
		Uint64("batch_type", uint64(s.cfg.BatchType)).
		Int("max_frame_size", int(s.cfg.MaxFrameSize)).
		Bool("use_blobs", s.cfg.UseBlobs).
		Msg("Created channel")
	s.metrics.RecordChannelOpened(ch.ID(), len(s.blocks))
	return nil
}

func (s *ChannelManager) registerL1Block(l1Head derive.BlockID) {
	s.currentChannel.CheckTimeout(l1Head.Number)
	s.log.Debug().
		Str("channel_id", s.currentChannel.ID().TerminalString()).
		Stringer("l1_head", l1Head).
		Uint64("channel_timeout", s.currentChannel.Timeout()).
		Msg("New L1 block registered at channel builder")
}

// processBlocks adds pending blocks to the current channel until it is full.
func (s *ChannelManager) processBlocks() error {
	blocksAdded := 0
	for i, block := range s.blocks {
		err := s.currentChannel.AddBlock(block)
		if errors.Is(err, derive.ErrChannelFull) {
			break
		} else if err != nil {
			return s.rejectBlock(i, err)
		}
		s.log.Debug().
			Str("channel_id", s.currentChannel.ID().TerminalString()).
			Stringer("block", block.ID()).
			Msg("Added block to channel")
		blocksAdded++
		if s.currentChannel.IsFull() {
			break
		}
	}

	s.blocks = s.blocks[blocksAdded:]
	s.metrics.RecordL2BlocksAdded(blocksAdded, len(s.blocks),
		s.currentChannel.InputBytes(), s.currentChannel.ReadyBytes())
	s.log.Debug().
		Int("blocks_added", blocksAdded).
		Int("blocks_pending", len(s.blocks)).
		Bool("channel_full", s.currentChannel.IsFull()).
		Int("input_bytes", s.currentChannel.InputBytes()).
		Int("ready_bytes", s.currentChannel.ReadyBytes()).
		Msg("Added blocks to channel")
	return nil
}

// rejectBlock handles a block the current channel refused for a reason other
// than being full. The blocks added so far are sealed in the current channel,
// the rejected block and every later one are dropped, and the tip rewinds to
// the parent of the rejected block so the caller can add a corrected chain.
func (s *ChannelManager) rejectBlock(i int, cause error) error {
	rejected := s.blocks[i]
	dropped := len(s.blocks) - i
	s.blocks = nil
	s.tip = rejected.ParentHash

	ch := s.currentChannel
	err := fmt.Errorf("%w: block %s: %w", ErrBlockRejected, rejected.ID(), cause)
	s.log.Warn().
		Err(cause).
		Str("channel_id", ch.ID().TerminalString()).
		Stringer("block", rejected.ID()).
		Int("blocks_dropped", dropped).
		Int("channel_blocks", len(ch.Blocks())).
		Msg("Channel rejected block, sealing channel")

	if len(ch.Blocks()) == 0 {
		s.channelQueue = slices.DeleteFunc(s.channelQueue, func(c *channel) bool { return c == ch })
		s.currentChannel = nil
		return err
	}
	ch.Close()
	if ferr := s.outputFrames(); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}

// outputFrames cuts the frames of the current channel and logs its closing.
func (s *ChannelManager) outputFrames() error {
	if err := s.currentChannel.OutputFrames(); err != nil {
		return fmt.Errorf("creating frames with channel builder: %w", err)
	}
	if !s.currentChannel.IsFull() {
		return nil
	}

	lastClosedL1Origin := s.currentChannel.LatestL1Origin()
	if lastClosedL1Origin.Number > s.l1OriginLastClosedChannel.Number {
		s.l1OriginLastClosedChannel = lastClosedL1Origin
	}

	inBytes, outBytes := s.currentChannel.InputBytes(), s.currentChannel.OutputBytes()
	s.metrics.RecordChannelClosed(
		s.currentChannel.ID(),
		len(s.blocks),
		s.currentChannel.TotalFrames(),
		inBytes,
		outBytes,
		s.currentChannel.CloseReason(),
	)

	var comprRatio float64
	if inBytes > 0 {
		comprRatio = float64(outBytes) / float64(inBytes)
	}
	s.log.Info().
		Str("channel_id", s.currentChannel.ID().TerminalString()).
		Int("blocks_pending", len(s.blocks)).
		Int("num_frames", s.currentChannel.TotalFrames()).
		Int("input_bytes", inBytes).
		Int("output_bytes", outBytes).
		Stringer("oldest_l1_origin", s.currentChannel.OldestL1Origin()).
		Stringer("l1_origin", lastClosedL1Origin).
		Stringer("oldest_l2", s.currentChannel.OldestL2()).
		Stringer("latest_l2", s.currentChannel.LatestL2()).
		Str("full_reason", string(s.currentChannel.CloseReason())).
		Float64("compr_ratio", comprRatio).
		Msg("Channel closed")
	return nil
}

// AddL2Block queues block. It must build on the previously added block,
// otherwise ErrReorg is returned and the caller has to Clear the manager.
func (s *ChannelManager) AddL2Block(block *derive.L2Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tip != (common.Hash{}) && s.tip != block.ParentHash {
		return ErrReorg
	}
	s.metrics.RecordL2BlockInPendingQueue(block)
	s.blocks = append(s.blocks, block)
	s.tip = block.Hash
	return nil
}

// Close adds all pending blocks to channels and closes the last one. Channels
// without submitted transactions are kept, so their frames can still be taken
// with TxData. ErrPendingAfterClose is returned while such frames exist.
func (s *ChannelManager) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.log.Info().Int("blocks_pending", len(s.blocks)).Msg("Channel manager is closing")

	for len(s.blocks) > 0 {
		if err := s.ensureChannelWithSpace(derive.BlockID{}); err != nil {
			return err
		}
		if err := s.processBlocks(); err != nil {
			return err
		}
		if err := s.outputFrames(); err != nil {
			return fmt.Errorf("outputting frames during close: %w", err)
		}
	}
	s.closed = true

	if s.currentChannel != nil && !s.currentChannel.IsFull() {
		s.currentChannel.Close()
		if err := s.outputFrames(); err != nil {
			return fmt.Errorf("outputting frames during close: %w", err)
		}
	}

	for _, ch := range s.channelQueue {
		if ch.HasTxData() {
			return ErrPendingAfterClose
		}
	}
	return nil
}

// TargetNumFrames is the number of frames per transaction.
func (s *ChannelManager) TargetNumFrames() int {
	return s.cfg.MaxFramesPerTx()
}
