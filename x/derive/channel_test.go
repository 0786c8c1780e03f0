package derive

import (
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChannelID = ChannelID{0x01, 0x02, 0x03}

func frame(n uint16, last bool, data string) Frame {
	return Frame{ID: testChannelID, FrameNumber: n, IsLast: last, Data: []byte(data)}
}

func readChannel(t *testing.T, ch *Channel) string {
	t.Helper()
	b, err := io.ReadAll(ch.Reader())
	require.NoError(t, err)
	return string(b)
}

func TestChannel_OrderIndependent(t *testing.T) {
	t.Parallel()

	frames := []Frame{
		frame(0, false, "zero-"),
		frame(1, false, "one-"),
		frame(2, false, "two-"),
		frame(3, false, "three-"),
		frame(4, true, "four"),
	}
	for seed := int64(0); seed < 30; seed++ {
		perm := rand.New(rand.NewSource(seed)).Perm(len(frames))
		ch := NewChannel(testChannelID, L1BlockRef{Number: 1})
		for i, idx := range perm {
			require.False(t, ch.IsReady())
			require.NoError(t, ch.AddFrame(frames[idx], L1BlockRef{Number: uint64(1 + i)}))
		}
		require.True(t, ch.IsReady(), "perm %v", perm)
		assert.Equal(t, "zero-one-two-three-four", readChannel(t, ch))
		assert.Equal(t, uint64(len(frames)), ch.HighestBlock().Number)
	}
}

func TestChannel_AddFrameRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   []Frame
		frame   Frame
		wantErr *CodecError
	}{
		{
			name:    "id mismatch",
			frame:   Frame{ID: ChannelID{0xff}},
			wantErr: ErrFrameMismatch,
		},
		{
			name:    "duplicate frame number",
			setup:   []Frame{frame(1, false, "a")},
			frame:   frame(1, false, "b"),
			wantErr: ErrDuplicateFrame,
		},
		{
			name:    "second last frame",
			setup:   []Frame{frame(3, true, "a")},
			frame:   frame(5, true, "b"),
			wantErr: ErrDuplicateFrame,
		},
		{
			name:    "frame past end",
			setup:   []Frame{frame(3, true, "a")},
			frame:   frame(4, false, "b"),
			wantErr: ErrFrameMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ch := NewChannel(testChannelID, L1BlockRef{})
			for _, f := range tt.setup {
				require.NoError(t, ch.AddFrame(f, L1BlockRef{}))
			}
			size, count := ch.Size(), ch.FrameCount()
			err := ch.AddFrame(tt.frame, L1BlockRef{})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, size, ch.Size())
			assert.Equal(t, count, ch.FrameCount())
		})
	}
}

func TestChannel_PruneOnEarlyLast(t *testing.T) {
	t.Parallel()

	t.Run("tail past a later last frame is pruned", func(t *testing.T) {
		t.Parallel()
		ch := NewChannel(testChannelID, L1BlockRef{})
		require.NoError(t, ch.AddFrame(frame(5, false, "fake-tail"), L1BlockRef{}))
		require.NoError(t, ch.AddFrame(frame(0, false, "a"), L1BlockRef{}))
		require.NoError(t, ch.AddFrame(frame(1, false, "b"), L1BlockRef{}))
		require.NoError(t, ch.AddFrame(frame(2, false, "c"), L1BlockRef{}))
		require.NoError(t, ch.AddFrame(frame(3, true, "d"), L1BlockRef{}))

		require.True(t, ch.IsReady())
		assert.Equal(t, 4, ch.FrameCount())
		assert.Equal(t, "abcd", readChannel(t, ch))
		assert.Equal(t, uint64(4*FrameV0OverHeadSize+4), ch.Size())

		require.ErrorIs(t, ch.AddFrame(frame(4, false, "e"), L1BlockRef{}), ErrFrameMismatch)
		require.ErrorIs(t, ch.AddFrame(frame(5, false, "f"), L1BlockRef{}), ErrFrameMismatch)
	})

	t.Run("last frame first then the rest", func(t *testing.T) {
		t.Parallel()
		ch := NewChannel(testChannelID, L1BlockRef{})
		require.NoError(t, ch.AddFrame(frame(5, true, "5"), L1BlockRef{}))
		for i := uint16(0); i < 5; i++ {
			require.False(t, ch.IsReady())
			require.NoError(t, ch.AddFrame(frame(i, false, string(rune('0'+i))), L1BlockRef{}))
		}
		require.True(t, ch.IsReady())
		assert.Equal(t, "012345", readChannel(t, ch))

		require.ErrorIs(t, ch.AddFrame(frame(2, true, "x"), L1BlockRef{}), ErrDuplicateFrame)
		require.ErrorIs(t, ch.AddFrame(frame(6, false, "x"), L1BlockRef{}), ErrFrameMismatch)
	})

	t.Run("early last drops buffered frames at and above it", func(t *testing.T) {
		t.Parallel()
		ch := NewChannel(testChannelID, L1BlockRef{})
		require.NoError(t, ch.AddFrame(frame(0, false, "a"), L1BlockRef{}))
		require.NoError(t, ch.AddFrame(frame(3, false, "ddd"), L1BlockRef{}))
		require.NoError(t, ch.AddFrame(frame(4, false, "eeee"), L1BlockRef{}))
		require.NoError(t, ch.AddFrame(frame(2, true, "c"), L1BlockRef{}))

		assert.Equal(t, 2, ch.FrameCount())
		assert.Equal(t, uint64(2*FrameV0OverHeadSize+2), ch.Size())
		require.False(t, ch.IsReady())

		require.NoError(t, ch.AddFrame(frame(1, false, "b"), L1BlockRef{}))
		require.True(t, ch.IsReady())
		assert.Equal(t, "abc", readChannel(t, ch))
	})
}
