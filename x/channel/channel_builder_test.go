package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/derive/derivetest"
)

func newTestChannelBuilder(t *testing.T, cfg Config, l1OriginBlockNum uint64) *ChannelBuilder {
	t.Helper()
	cb, err := NewChannelBuilder(cfg, derivetest.ChainID, l1OriginBlockNum)
	require.NoError(t, err)
	return cb
}

func TestChannelBuilder_DurationTimeout(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1_000, 100_000)
	cfg.MaxChannelDuration = 5
	cb := newTestChannelBuilder(t, cfg, 100)
	require.Equal(t, uint64(105), cb.Timeout())

	cb.CheckTimeout(104)
	require.False(t, cb.IsFull())
	cb.CheckTimeout(105)
	require.True(t, cb.IsFull())
	require.ErrorIs(t, cb.FullErr(), ErrMaxDurationReached)
	require.ErrorIs(t, cb.FullErr(), derive.ErrChannelFull)
	require.Equal(t, CloseReasonDuration, cb.CloseReason())
}

func TestChannelBuilder_FramePublished(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1_000, 100_000)
	cfg.MaxChannelDuration = 100
	cfg.ChannelTimeout = 50
	cfg.SubSafetyMargin = 10
	cb := newTestChannelBuilder(t, cfg, 0)
	require.Equal(t, uint64(100), cb.Timeout())

	cb.FramePublished(20)
	require.Equal(t, uint64(60), cb.Timeout())
	cb.FramePublished(30)
	require.Equal(t, uint64(60), cb.Timeout(), "the earliest timeout wins")

	cb.CheckTimeout(60)
	require.Equal(t, CloseReasonTimeout, cb.CloseReason())
}

func TestChannelBuilder_NoDurationTimeout(t *testing.T) {
	t.Parallel()

	cb := newTestChannelBuilder(t, testConfig(1_000, 100_000), 100)
	require.Zero(t, cb.Timeout())
	cb.CheckTimeout(1_000_000)
	require.False(t, cb.IsFull())
	require.Equal(t, CloseReasonNone, cb.CloseReason())
}

func TestChannelBuilder_AddBlock(t *testing.T) {
	t.Parallel()

	cb := newTestChannelBuilder(t, testConfig(1_000, 100_000), 0)
	chain := derivetest.NewChain(t, newRand(30))
	b1 := chain.Next(100, 7)
	b2 := chain.Next(101, 8)
	require.NoError(t, cb.AddBlock(b1))
	require.NoError(t, cb.AddBlock(b2))

	require.Len(t, cb.Blocks(), 2)
	require.Equal(t, b1.ID(), cb.OldestL2())
	require.Equal(t, b2.ID(), cb.LatestL2())
	require.Equal(t, b1.L1Origin, cb.OldestL1Origin())
	require.Equal(t, b2.L1Origin, cb.LatestL1Origin())

	bad := chain.Next(99, 8)
	err := cb.AddBlock(bad)
	require.ErrorIs(t, err, derive.ErrOrdering)
	require.False(t, cb.IsFull())
	require.Len(t, cb.Blocks(), 2)
}

func TestChannelBuilder_FullOnOverflow(t *testing.T) {
	t.Parallel()

	cb := newTestChannelBuilder(t, testConfig(200, 400), 0)
	chain := derivetest.NewChain(t, newRand(31))
	added := 0
	for i := 0; i < 20; i++ {
		err := cb.AddBlock(chain.RandomBlocks(1, 1, 100)[0])
		if err != nil {
			require.ErrorIs(t, err, derive.ErrChannelFull)
			break
		}
		added++
		if cb.IsFull() {
			break
		}
	}
	require.True(t, cb.IsFull())
	require.Equal(t, CloseReasonFull, cb.CloseReason())
	require.Len(t, cb.Blocks(), added)

	require.NoError(t, cb.OutputFrames())
	require.Positive(t, cb.PendingFrames())
	require.Equal(t, cb.PendingFrames(), cb.TotalFrames())

	var frames []derive.Frame
	for cb.HasPendingFrame() {
		fd := cb.NextFrame()
		fs, err := derive.ParseFrames(append([]byte{derive.DerivationVersion0}, fd.data...))
		require.NoError(t, err)
		frames = append(frames, fs...)
	}
	require.True(t, frames[len(frames)-1].IsLast)
	require.Len(t, readBatches(t, frames), added)

	// a second call does not emit another last frame
	require.NoError(t, cb.OutputFrames())
	require.False(t, cb.HasPendingFrame())
}

func TestChannelBuilder_CloseAndPushFrames(t *testing.T) {
	t.Parallel()

	cb := newTestChannelBuilder(t, testConfig(100, 100_000), 0)
	for _, b := range derivetest.NewChain(t, newRand(32)).RandomBlocks(3, 2, 60) {
		require.NoError(t, cb.AddBlock(b))
	}
	require.NoError(t, cb.OutputFrames())
	require.Zero(t, cb.PendingFrames(), "an open span channel holds no ready bytes")

	cb.Close()
	require.Equal(t, CloseReasonForced, cb.CloseReason())
	require.ErrorIs(t, cb.AddBlock(derivetest.NewChain(t, newRand(33)).Next(1, 1)), ErrTerminated)
	require.NoError(t, cb.OutputFrames())
	require.Greater(t, cb.PendingFrames(), 2)

	f0 := cb.NextFrame()
	f1 := cb.NextFrame()
	require.Equal(t, uint16(0), f0.id.frameNumber)
	require.Equal(t, uint16(1), f1.id.frameNumber)
	cb.PushFrames(f0, f1)
	require.Equal(t, uint16(0), cb.NextFrame().id.frameNumber)
	require.Equal(t, uint16(1), cb.NextFrame().id.frameNumber)
}
