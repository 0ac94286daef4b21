package allocation

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	approvalsTotal  *prometheus.CounterVec
	approvalLatency prometheus.Histogram
	rejectionsTotal prometheus.Counter
	dispatchUpdates *prometheus.CounterVec
	notifyFailures  prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, prometheus.Counter, *prometheus.CounterVec, prometheus.Counter) {
	app := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_approvals_total",
			Help: "Fulfillment transactions by outcome",
		},
		[]string{"outcome"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "allocation_approval_latency_seconds",
			Help:    "Latency of fulfillment transactions",
			Buckets: prometheus.DefBuckets,
		},
	)
	rej := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocation_rejections_total",
			Help: "Requests cancelled by operators",
		},
	)
	dsp := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_status_updates_total",
			Help: "Shipment status updates by new status",
		},
		[]string{"status"},
	)
	ntf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Best-effort notifications that could not be delivered",
		},
	)
	return app, lat, rej, dsp, ntf
}

// MustRegisterMetrics registers the package collectors on the given
// registerer, tolerating duplicates. A nil registerer defaults to the global
// Prometheus registerer.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		approvalsTotal, approvalLatency, rejectionsTotal, dispatchUpdates, notifyFailures,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

func init() {
	approvalsTotal, approvalLatency, rejectionsTotal, dispatchUpdates, notifyFailures = newCollectors()
	MustRegisterMetrics(nil)
}
