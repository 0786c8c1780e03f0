package channel

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/batcher/x/derive"
)

// ChannelStatus describes one queued channel.
type ChannelStatus struct {
	ID             string         `json:"id"`
	Blocks         int            `json:"blocks"`
	OldestL2       derive.BlockID `json:"oldest_l2"`
	LatestL2       derive.BlockID `json:"latest_l2"`
	LatestL1Origin derive.BlockID `json:"latest_l1_origin"`
	InputBytes     int            `json:"input_bytes"`
	OutputBytes    int            `json:"output_bytes"`
	TotalFrames    int            `json:"total_frames"`
	PendingFrames  int            `json:"pending_frames"`
	PendingTxs     int            `json:"pending_txs"`
	ConfirmedTxs   int            `json:"confirmed_txs"`
	Submitted      bool           `json:"submitted"`
	Full           bool           `json:"full"`
	CloseReason    CloseReason    `json:"close_reason,omitempty"`
	Timeout        uint64         `json:"timeout,omitempty"`
}

// Status is a snapshot of the manager.
type Status struct {
	Tip           common.Hash     `json:"tip"`
	PendingBlocks int             `json:"pending_blocks"`
	Closed        bool            `json:"closed"`
	Channels      []ChannelStatus `json:"channels"`
}

// Status returns a snapshot of the pending blocks and queued channels.
func (s *ChannelManager) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Tip:           s.tip,
		PendingBlocks: len(s.blocks),
		Closed:        s.closed,
		Channels:      make([]ChannelStatus, 0, len(s.channelQueue)),
	}
	for _, ch := range s.channelQueue {
		st.Channels = append(st.Channels, ch.status())
	}
	return st
}

func (c *channel) status() ChannelStatus {
	return ChannelStatus{
		ID:             c.ID().String(),
		Blocks:         len(c.Blocks()),
		OldestL2:       c.OldestL2(),
		LatestL2:       c.LatestL2(),
		LatestL1Origin: c.LatestL1Origin(),
		InputBytes:     c.InputBytes(),
		OutputBytes:    c.OutputBytes(),
		TotalFrames:    c.TotalFrames(),
		PendingFrames:  c.PendingFrames(),
		PendingTxs:     len(c.pendingTransactions),
		ConfirmedTxs:   len(c.confirmedTransactions),
		Submitted:      !c.NoneSubmitted(),
		Full:           c.IsFull(),
		CloseReason:    c.CloseReason(),
		Timeout:        c.Timeout(),
	}
}
