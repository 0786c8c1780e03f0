package derive

import (
	"errors"
	"io"

	"github.com/rs/zerolog"
)

// ChannelBank groups frames into channels. Channels are read in the order
// their first frame was seen. A bad frame or channel never affects another
// channel.
type ChannelBank struct {
	log     zerolog.Logger
	cfg     Config
	metrics Metricer

	channels     map[ChannelID]*Channel
	channelQueue []ChannelID
}

// NewChannelBank creates an empty channel bank.
func NewChannelBank(cfg Config, log zerolog.Logger, m Metricer) *ChannelBank {
	if m == nil {
		m = NoopMetrics{}
	}
	return &ChannelBank{
		log:      log.With().Str("component", "channel-bank").Logger(),
		cfg:      cfg,
		metrics:  m,
		channels: make(map[ChannelID]*Channel),
	}
}

// Size is the number of buffered bytes across all channels.
func (cb *ChannelBank) Size() uint64 {
	var total uint64
	for _, ch := range cb.channels {
		total += ch.Size()
	}
	return total
}

// PendingChannels is the number of channels not yet read.
func (cb *ChannelBank) PendingChannels() int {
	return len(cb.channelQueue)
}

func (cb *ChannelBank) timedOut(ch *Channel, l1 L1BlockRef) bool {
	return ch.OpenBlockNumber()+cb.cfg.ChannelTimeout < l1.Number
}

// IngestFrame adds a frame included in l1. A rejected frame is dropped and
// the error returned for reporting only.
func (cb *ChannelBank) IngestFrame(f Frame, l1 L1BlockRef) error {
	log := cb.log.With().
		Str("channel_id", f.ID.String()).
		Uint16("frame_number", f.FrameNumber).
		Bool("is_last", f.IsLast).
		Uint64("l1_block", l1.Number).
		Logger()

	ch, ok := cb.channels[f.ID]
	if !ok {
		ch = NewChannel(f.ID, l1)
		cb.channels[f.ID] = ch
		cb.channelQueue = append(cb.channelQueue, f.ID)
		log.Debug().Msg("Created new channel")
	}

	if cb.timedOut(ch, l1) {
		log.Warn().Uint64("open_block", ch.OpenBlockNumber()).Msg("Channel is timed out, ignoring frame")
		cb.metrics.RecordFrameDropped("timeout")
		return NewCodecError(KindFrameMismatch, "channel %s timed out", f.ID)
	}

	if err := ch.AddFrame(f, l1); err != nil {
		log.Warn().Err(err).Msg("Failed to add frame to channel")
		var cerr *CodecError
		if errors.As(err, &cerr) {
			cb.metrics.RecordFrameDropped(cerr.Kind.String())
		} else {
			cb.metrics.RecordFrameDropped("unknown")
		}
		return err
	}
	cb.metrics.RecordFrameIngested(f.Size())
	log.Trace().Uint64("channel_size", ch.Size()).Msg("Ingested frame")

	cb.prune()
	return nil
}

// prune drops the oldest channels until the bank fits its size cap.
func (cb *ChannelBank) prune() {
	total := cb.Size()
	for total > cb.cfg.MaxChannelBankSize && len(cb.channelQueue) > 0 {
		id := cb.channelQueue[0]
		ch := cb.channels[id]
		cb.channelQueue = cb.channelQueue[1:]
		delete(cb.channels, id)
		total -= ch.Size()
		cb.metrics.RecordChannelDropped("size")
		cb.log.Warn().
			Str("channel_id", id.String()).
			Uint64("channel_size", ch.Size()).
			Uint64("bank_size", total).
			Msg("Pruned channel over bank size cap")
	}
}

// Read returns the first ready channel, dropping timed out channels at the
// head of the queue. It returns io.EOF when no channel is ready.
func (cb *ChannelBank) Read(l1Head L1BlockRef) (*Channel, error) {
	for len(cb.channelQueue) > 0 {
		id := cb.channelQueue[0]
		ch := cb.channels[id]
		if !cb.timedOut(ch, l1Head) {
			break
		}
		cb.removeAt(0)
		cb.metrics.RecordChannelDropped("timeout")
		cb.log.Warn().
			Str("channel_id", id.String()).
			Uint64("open_block", ch.OpenBlockNumber()).
			Uint64("l1_head", l1Head.Number).
			Int("frames", ch.FrameCount()).
			Msg("Dropped timed out channel")
	}

	for i, id := range cb.channelQueue {
		ch := cb.channels[id]
		if cb.timedOut(ch, l1Head) || !ch.IsReady() {
			continue
		}
		cb.removeAt(i)
		cb.metrics.RecordChannelReady(ch.FrameCount(), ch.Size())
		cb.log.Debug().
			Str("channel_id", id.String()).
			Int("frames", ch.FrameCount()).
			Uint64("size", ch.Size()).
			Msg("Read ready channel")
		return ch, nil
	}
	return nil, io.EOF
}

func (cb *ChannelBank) removeAt(i int) {
	id := cb.channelQueue[i]
	delete(cb.channels, id)
	cb.channelQueue = append(cb.channelQueue[:i:i], cb.channelQueue[i+1:]...)
}

// Reset drops every buffered channel.
func (cb *ChannelBank) Reset() {
	cb.channels = make(map[ChannelID]*Channel)
	cb.channelQueue = cb.channelQueue[:0]
}
