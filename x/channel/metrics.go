package channel

import (
	"github.com/compose-network/batcher/metrics"
	"github.com/compose-network/batcher/x/derive"
	"github.com/prometheus/client_golang/prometheus"
)

// Metricer records write side activity.
type Metricer interface {
	RecordL2BlockInPendingQueue(block *derive.L2Block)
	RecordL2BlocksAdded(count, pending, inputBytes, readyBytes int)
	RecordChannelOpened(id derive.ChannelID, pendingBlocks int)
	RecordChannelClosed(id derive.ChannelID, pendingBlocks, frames, inputBytes, outputBytes int, reason CloseReason)
	RecordChannelFullySubmitted(id derive.ChannelID)
	RecordChannelTimedOut(id derive.ChannelID)
	RecordBatchTxSubmitted()
	RecordBatchTxFailed()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordL2BlockInPendingQueue(*derive.L2Block)                           {}
func (NoopMetrics) RecordL2BlocksAdded(int, int, int, int)                                {}
func (NoopMetrics) RecordChannelOpened(derive.ChannelID, int)                             {}
func (NoopMetrics) RecordChannelClosed(derive.ChannelID, int, int, int, int, CloseReason) {}
func (NoopMetrics) RecordChannelFullySubmitted(derive.ChannelID)                          {}
func (NoopMetrics) RecordChannelTimedOut(derive.ChannelID)                                {}
func (NoopMetrics) RecordBatchTxSubmitted()                                               {}
func (NoopMetrics) RecordBatchTxFailed()                                                  {}

// Metrics holds all write side metrics
type Metrics struct {
	PendingBlocks     prometheus.Gauge
	BlocksAdded       prometheus.Counter
	ChannelInputBytes prometheus.Gauge
	ChannelReadyBytes prometheus.Gauge
	ChannelsOpened    prometheus.Counter
	ChannelsClosed    *prometheus.CounterVec
	ChannelFrames     prometheus.Histogram
	ChannelComprRatio prometheus.Histogram
	ChannelsSubmitted prometheus.Counter
	ChannelsTimedOut  prometheus.Counter
	BatchTxs          *prometheus.CounterVec
}

// NewMetrics creates write side metrics on reg.
func NewMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		PendingBlocks: reg.NewGauge(prometheus.GaugeOpts{
			Name: "pending_blocks",
			Help: "Number of L2 blocks waiting for a channel",
		}),
		BlocksAdded: reg.NewCounter(prometheus.CounterOpts{
			Name: "blocks_added_total",
			Help: "Total number of L2 blocks added to channels",
		}),
		ChannelInputBytes: reg.NewGauge(prometheus.GaugeOpts{
			Name: "channel_input_bytes",
			Help: "Uncompressed size of the current channel",
		}),
		ChannelReadyBytes: reg.NewGauge(prometheus.GaugeOpts{
			Name: "channel_ready_bytes",
			Help: "Compressed bytes of the current channel not yet cut into frames",
		}),
		ChannelsOpened: reg.NewCounter(prometheus.CounterOpts{
			Name: "channels_opened_total",
			Help: "Total number of opened channels",
		}),
		ChannelsClosed: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "channels_closed_total",
			Help: "Total number of closed channels",
		}, []string{"reason"}),
		ChannelFrames: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "channel_frames",
			Help:    "Number of frames per closed channel",
			Buckets: metrics.CountBuckets,
		}),
		ChannelComprRatio: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "channel_compression_ratio",
			Help:    "Output over input bytes of closed channels",
			Buckets: metrics.RatioBuckets,
		}),
		ChannelsSubmitted: reg.NewCounter(prometheus.CounterOpts{
			Name: "channels_submitted_total",
			Help: "Total number of channels with every frame confirmed",
		}),
		ChannelsTimedOut: reg.NewCounter(prometheus.CounterOpts{
			Name: "channels_timed_out_total",
			Help: "Total number of channels invalidated by the channel timeout",
		}),
		BatchTxs: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_txs_total",
			Help: "Total number of batch transactions by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) RecordL2BlockInPendingQueue(*derive.L2Block) {
	m.PendingBlocks.Inc()
}

func (m *Metrics) RecordL2BlocksAdded(count, pending, inputBytes, readyBytes int) {
	m.BlocksAdded.Add(float64(count))
	m.PendingBlocks.Set(float64(pending))
	m.ChannelInputBytes.Set(float64(inputBytes))
	m.ChannelReadyBytes.Set(float64(readyBytes))
}

func (m *Metrics) RecordChannelOpened(_ derive.ChannelID, pendingBlocks int) {
	m.ChannelsOpened.Inc()
	m.PendingBlocks.Set(float64(pendingBlocks))
}

func (m *Metrics) RecordChannelClosed(_ derive.ChannelID, pendingBlocks, frames, inputBytes, outputBytes int, reason CloseReason) {
	m.ChannelsClosed.WithLabelValues(string(reason)).Inc()
	m.PendingBlocks.Set(float64(pendingBlocks))
	m.ChannelFrames.Observe(float64(frames))
	if inputBytes > 0 {
		m.ChannelComprRatio.Observe(float64(outputBytes) / float64(inputBytes))
	}
	m.ChannelInputBytes.Set(0)
	m.ChannelReadyBytes.Set(0)
}

func (m *Metrics) RecordChannelFullySubmitted(derive.ChannelID) {
	m.ChannelsSubmitted.Inc()
}

func (m *Metrics) RecordChannelTimedOut(derive.ChannelID) {
	m.ChannelsTimedOut.Inc()
}

func (m *Metrics) RecordBatchTxSubmitted() {
	m.BatchTxs.WithLabelValues("confirmed").Inc()
}

func (m *Metrics) RecordBatchTxFailed() {
	m.BatchTxs.WithLabelValues("failed").Inc()
}
