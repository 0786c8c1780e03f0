package derive

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	NoopMetrics
	ingested int
	dropped  map[string]int
	ready    int
	channels map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{dropped: map[string]int{}, channels: map[string]int{}}
}

func (m *recordingMetrics) RecordFrameIngested(uint64)         { m.ingested++ }
func (m *recordingMetrics) RecordFrameDropped(reason string)   { m.dropped[reason]++ }
func (m *recordingMetrics) RecordChannelReady(int, uint64)     { m.ready++ }
func (m *recordingMetrics) RecordChannelDropped(reason string) { m.channels[reason]++ }

func bankFrame(id byte, n uint16, last bool, data string) Frame {
	return Frame{ID: ChannelID{id}, FrameNumber: n, IsLast: last, Data: []byte(data)}
}

func TestChannelBank_ReadOrder(t *testing.T) {
	t.Parallel()

	m := newRecordingMetrics()
	cb := NewChannelBank(DefaultConfig(), zerolog.Nop(), m)
	l1 := L1BlockRef{Number: 10}

	require.NoError(t, cb.IngestFrame(bankFrame(0xa, 0, false, "a0"), l1))
	require.NoError(t, cb.IngestFrame(bankFrame(0xb, 0, true, "b0"), l1))
	require.NoError(t, cb.IngestFrame(bankFrame(0xc, 0, true, "c0"), l1))
	assert.Equal(t, 3, cb.PendingChannels())

	// a is first but incomplete
	ch, err := cb.Read(l1)
	require.NoError(t, err)
	assert.Equal(t, ChannelID{0xb}, ch.ID())

	require.NoError(t, cb.IngestFrame(bankFrame(0xa, 1, true, "a1"), l1))
	ch, err = cb.Read(l1)
	require.NoError(t, err)
	assert.Equal(t, ChannelID{0xa}, ch.ID())
	b, err := io.ReadAll(ch.Reader())
	require.NoError(t, err)
	assert.Equal(t, "a0a1", string(b))

	ch, err = cb.Read(l1)
	require.NoError(t, err)
	assert.Equal(t, ChannelID{0xc}, ch.ID())

	_, err = cb.Read(l1)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, m.ready)
	assert.Equal(t, 4, m.ingested)
}

func TestChannelBank_BadFrameIsLocal(t *testing.T) {
	t.Parallel()

	m := newRecordingMetrics()
	cb := NewChannelBank(DefaultConfig(), zerolog.Nop(), m)
	l1 := L1BlockRef{Number: 1}

	require.NoError(t, cb.IngestFrame(bankFrame(0xa, 0, false, "a0"), l1))
	require.NoError(t, cb.IngestFrame(bankFrame(0xb, 0, true, "b0"), l1))
	err := cb.IngestFrame(bankFrame(0xa, 0, false, "dup"), l1)
	require.ErrorIs(t, err, ErrDuplicateFrame)
	assert.Equal(t, 1, m.dropped[KindDuplicateFrame.String()])

	ch, err := cb.Read(l1)
	require.NoError(t, err)
	assert.Equal(t, ChannelID{0xb}, ch.ID())
	assert.Equal(t, 1, cb.PendingChannels())
}

func TestChannelBank_Timeout(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ChannelTimeout = 10
	m := newRecordingMetrics()
	cb := NewChannelBank(cfg, zerolog.Nop(), m)

	require.NoError(t, cb.IngestFrame(bankFrame(0xa, 0, false, "a0"), L1BlockRef{Number: 1}))
	require.NoError(t, cb.IngestFrame(bankFrame(0xa, 1, false, "a1"), L1BlockRef{Number: 11}))

	err := cb.IngestFrame(bankFrame(0xa, 2, true, "a2"), L1BlockRef{Number: 12})
	require.ErrorIs(t, err, ErrFrameMismatch)
	assert.Equal(t, 1, m.dropped["timeout"])

	require.NoError(t, cb.IngestFrame(bankFrame(0xb, 0, true, "b0"), L1BlockRef{Number: 12}))

	ch, err := cb.Read(L1BlockRef{Number: 12})
	require.NoError(t, err)
	assert.Equal(t, ChannelID{0xb}, ch.ID())
	assert.Equal(t, 1, m.channels["timeout"])
	assert.Zero(t, cb.PendingChannels())
}

func TestChannelBank_SizeCap(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxChannelBankSize = 100
	m := newRecordingMetrics()
	cb := NewChannelBank(cfg, zerolog.Nop(), m)
	l1 := L1BlockRef{Number: 1}

	data := string(make([]byte, 50))
	require.NoError(t, cb.IngestFrame(bankFrame(0xa, 0, true, data), l1))
	assert.Equal(t, uint64(73), cb.Size())
	require.NoError(t, cb.IngestFrame(bankFrame(0xb, 0, true, data), l1))

	assert.Equal(t, 1, cb.PendingChannels())
	assert.Equal(t, uint64(73), cb.Size())
	assert.Equal(t, 1, m.channels["size"])

	ch, err := cb.Read(l1)
	require.NoError(t, err)
	assert.Equal(t, ChannelID{0xb}, ch.ID())
}

func TestChannelBank_Reset(t *testing.T) {
	t.Parallel()

	cb := NewChannelBank(DefaultConfig(), zerolog.Nop(), nil)
	require.NoError(t, cb.IngestFrame(bankFrame(0xa, 0, true, "a0"), L1BlockRef{}))
	cb.Reset()
	assert.Zero(t, cb.PendingChannels())
	_, err := cb.Read(L1BlockRef{})
	require.ErrorIs(t, err, io.EOF)
}
