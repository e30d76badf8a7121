package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nwnotary/notary-server/pkg/metrics"
)

func TestRecordIncrementsPrometheusCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(rate.Inf, reg, nil)

	r.Record(metrics.EventCacheHit)
	r.Record(metrics.EventCacheHit)
	r.Record(metrics.EventCacheMiss)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var hit, miss float64
	for _, mf := range metricFamilies {
		if mf.GetName() != "notary_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lbl := range m.GetLabel() {
				if lbl.GetName() != "event" {
					continue
				}
				switch lbl.GetValue() {
				case string(metrics.EventCacheHit):
					hit = m.GetCounter().GetValue()
				case string(metrics.EventCacheMiss):
					miss = m.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, float64(2), hit)
	require.Equal(t, float64(1), miss)
}

func TestRecordWithLogDestinationDoesNotPanic(t *testing.T) {
	r := metrics.New(rate.Inf, nil, nil)
	r.Record(metrics.EventServiceScanStart)
}
