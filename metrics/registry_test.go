package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentRegistry_ScopesNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewComponentRegistryWith(reg, "dacodec", "channel")

	c := r.NewCounter(prometheus.CounterOpts{Name: "opened_total", Help: "test"})
	c.Add(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "dacodec_channel_opened_total", families[0].GetName())
	assert.Equal(t, float64(3), testutil.ToFloat64(c))
}

func TestComponentRegistry_NilRegisterer(t *testing.T) {
	r := NewComponentRegistryWith(nil, "dacodec", "frames")

	// Creating the same metric twice must not panic without a registerer.
	g1 := r.NewGauge(prometheus.GaugeOpts{Name: "pending", Help: "test"})
	g2 := r.NewGauge(prometheus.GaugeOpts{Name: "pending", Help: "test"})
	g1.Set(1)
	g2.Set(2)
	assert.Equal(t, float64(1), testutil.ToFloat64(g1))
	assert.Equal(t, float64(2), testutil.ToFloat64(g2))
}
