package derive

const (
	// DerivationVersion0 prefixes every batch submission carrying frames.
	DerivationVersion0 = 0

	// MaxSpanBatchElementCount caps block, transaction and bitfield counts
	// read from a span batch.
	MaxSpanBatchElementCount = 10_000_000

	// MaxRLPBytesPerChannel caps the decompressed RLP size of one channel.
	MaxRLPBytesPerChannel = 100_000_000

	// MaxChannelBankSize caps the bytes buffered across pending channels.
	MaxChannelBankSize = 100_000_000

	// ChannelTimeout is the number of L1 blocks a channel may span between
	// its first and last frame.
	ChannelTimeout = 300
)
