package channel

import (
	"errors"
)

var (
	ErrChannelOutAlreadyClosed = errors.New("channel-out already closed")
	ErrMaxFrameSizeTooSmall    = errors.New("maxSize is too small to fit the fixed frame overhead")
	ErrTooManyRLPBytes         = errors.New("batch would cause RLP bytes to go over limit")

	// ErrReorg is returned by AddL2Block when the block does not build on the
	// previously added block.
	ErrReorg = errors.New("block does not extend existing chain")
	// ErrBlockRejected is returned by TxData and Close when a channel refused a
	// pending block for a reason other than being full. The block and all
	// later ones were dropped; the caller re-adds them starting from a block
	// that builds on the last accepted one.
	ErrBlockRejected = errors.New("block rejected by channel")
	// ErrPendingAfterClose is returned by Close when frames remain to be
	// submitted.
	ErrPendingAfterClose = errors.New("pending channels remain after closing channel-manager")

	ErrInvalidChannelTimeout = errors.New("channel timeout is less than the safety margin")
	ErrMaxFrameIndex         = errors.New("max frame index reached (uint16)")
	ErrMaxDurationReached    = errors.New("max channel duration reached")
	ErrChannelTimeoutClose   = errors.New("close to channel timeout")
	ErrTerminated            = errors.New("channel terminated")
)
