package derive

import (
	"strconv"

	"github.com/compose-network/batcher/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Metricer records read side activity.
type Metricer interface {
	RecordFrameIngested(size uint64)
	RecordFrameDropped(reason string)
	RecordChannelReady(frames int, size uint64)
	RecordChannelDropped(reason string)
	RecordBatchDecoded(batchType int, blocks int)
	RecordDecodeError(kind string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordFrameIngested(uint64)     {}
func (NoopMetrics) RecordFrameDropped(string)      {}
func (NoopMetrics) RecordChannelReady(int, uint64) {}
func (NoopMetrics) RecordChannelDropped(string)    {}
func (NoopMetrics) RecordBatchDecoded(int, int)    {}
func (NoopMetrics) RecordDecodeError(string)       {}

// Metrics holds all read side metrics
type Metrics struct {
	FramesIngested  prometheus.Counter
	FrameBytes      prometheus.Histogram
	FramesDropped   *prometheus.CounterVec
	ChannelsReady   prometheus.Counter
	ChannelFrames   prometheus.Histogram
	ChannelsDropped *prometheus.CounterVec
	BatchesDecoded  *prometheus.CounterVec
	BlocksDecoded   prometheus.Counter
	DecodeErrors    *prometheus.CounterVec
}

// NewMetrics creates read side metrics on reg.
func NewMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		FramesIngested: reg.NewCounter(prometheus.CounterOpts{
			Name: "frames_ingested_total",
			Help: "Total number of frames accepted into a channel",
		}),
		FrameBytes: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "frame_size_bytes",
			Help:    "Size of accepted frames including overhead",
			Buckets: metrics.SizeBuckets,
		}),
		FramesDropped: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "frames_dropped_total",
			Help: "Total number of rejected frames",
		}, []string{"reason"}),
		ChannelsReady: reg.NewCounter(prometheus.CounterOpts{
			Name: "channels_ready_total",
			Help: "Total number of fully reassembled channels",
		}),
		ChannelFrames: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "channel_frames",
			Help:    "Number of frames per reassembled channel",
			Buckets: metrics.CountBuckets,
		}),
		ChannelsDropped: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "channels_dropped_total",
			Help: "Total number of channels dropped before completion",
		}, []string{"reason"}),
		BatchesDecoded: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "batches_decoded_total",
			Help: "Total number of decoded batches",
		}, []string{"batch_type"}),
		BlocksDecoded: reg.NewCounter(prometheus.CounterOpts{
			Name: "blocks_decoded_total",
			Help: "Total number of L2 blocks derived from batches",
		}),
		DecodeErrors: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "decode_errors_total",
			Help: "Total number of decoding failures",
		}, []string{"kind"}),
	}
}

func (m *Metrics) RecordFrameIngested(size uint64) {
	m.FramesIngested.Inc()
	m.FrameBytes.Observe(float64(size))
}

func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordChannelReady(frames int, _ uint64) {
	m.ChannelsReady.Inc()
	m.ChannelFrames.Observe(float64(frames))
}

func (m *Metrics) RecordChannelDropped(reason string) {
	m.ChannelsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordBatchDecoded(batchType int, blocks int) {
	m.BatchesDecoded.WithLabelValues(strconv.Itoa(batchType)).Inc()
	m.BlocksDecoded.Add(float64(blocks))
}

func (m *Metrics) RecordDecodeError(kind string) {
	m.DecodeErrors.WithLabelValues(kind).Inc()
}
