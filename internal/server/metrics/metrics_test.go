package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Push("products", PushApplied)
	m.Push("products", PushApplied)
	m.Push("orders", PushConflict)
	m.Pulled("products", 3)
	m.FeedClients(2)
	m.FeedClients(-1)
	m.Published()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pushes.WithLabelValues("products", PushApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushes.WithLabelValues("orders", PushConflict)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pulledRows.WithLabelValues("products")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedClients))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP storekeeper_changefeed_published_total Change notifications published.
# TYPE storekeeper_changefeed_published_total counter
storekeeper_changefeed_published_total 1
`), "storekeeper_changefeed_published_total")
	require.NoError(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Push("products", PushApplied)
		m.Pulled("products", 1)
		m.FeedClients(1)
		m.Published()
	})
}
