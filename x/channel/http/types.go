package http

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/batcher/x/channel"
	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/inbox"
)

// CodecConfig is the response of GET /v1/codec/config.
type CodecConfig struct {
	ChainID uint64         `json:"chain_id"`
	Channel channel.Config `json:"channel"`
	Derive  derive.Config  `json:"derive"`
	Inbox   inbox.Config   `json:"inbox"`
}

// ParseRequest holds version 0 frame data, as found in calldata or a blob.
type ParseRequest struct {
	Data hexutil.Bytes `json:"data"`
}

// FrameInfo describes one parsed frame.
type FrameInfo struct {
	ChannelID   string `json:"channel_id"`
	FrameNumber uint16 `json:"frame_number"`
	DataLength  int    `json:"data_length"`
	IsLast      bool   `json:"is_last"`
}

type ParseResponse struct {
	Frames []FrameInfo `json:"frames"`
}

// EncodeRequest lists consecutive L2 blocks to batch. All pending data is
// flushed, so the response covers every block.
type EncodeRequest struct {
	Blocks          []*derive.L2Block `json:"blocks"`
	FirstBatchIndex uint64            `json:"first_batch_index"`
	// L1Head defaults to the newest L1 origin of the blocks.
	L1Head *derive.BlockID `json:"l1_head,omitempty"`
}

type EncodeResponse struct {
	inbox.Envelope
	BlobTxs []common.Hash  `json:"blob_txs,omitempty"`
	Status  channel.Status `json:"status"`
}

// DecodeRequest is an envelope plus the L1 block including it.
type DecodeRequest struct {
	inbox.Envelope
	L1Block derive.L1BlockRef `json:"l1_block"`
}

// DecodeResponse lists the derived blocks. Errors names the submissions and
// channels that could not be decoded; their blocks are missing.
type DecodeResponse struct {
	Blocks          []*derive.SingularBatch `json:"blocks"`
	PendingChannels int                     `json:"pending_channels"`
	Errors          []string                `json:"errors,omitempty"`
}
