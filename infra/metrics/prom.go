// Package metrics provides the metric sink implementations: Prometheus
// counters, InfluxDB line protocol and a fan-out sink.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/agrilink/fulfillment/core/metrics"
)

// PromSink records allocation activity in Prometheus metrics.
type PromSink struct {
	allocations *prometheus.CounterVec
	quantity    *prometheus.CounterVec
	rejections  prometheus.Counter
}

// NewPromSink registers allocation metrics on the default Prometheus
// registerer. The exposition server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_allocations_total",
		Help: "Total number of committed allocations",
	}, []string{"commodity", "depleted"})
	quantity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_allocated_quantity_total",
		Help: "Total quantity committed, by commodity",
	}, []string{"commodity"})
	rejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_recorded_rejections_total",
		Help: "Total number of rejections recorded by the sink",
	})

	if err := reg.Register(allocations); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			allocations = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(quantity); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			quantity = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(rejections); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			rejections = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}

	return &PromSink{allocations: allocations, quantity: quantity, rejections: rejections}, nil
}

// RecordAllocation increments the counters for each committed allocation.
func (s *PromSink) RecordAllocation(records []coremetrics.AllocationRecord) error {
	for _, r := range records {
		s.allocations.WithLabelValues(r.Commodity, strconv.FormatBool(r.Depleted)).Inc()
		qty, _ := r.Quantity.Float64()
		s.quantity.WithLabelValues(r.Commodity).Add(qty)
	}
	return nil
}

// RecordRejection increments the rejection counter.
func (s *PromSink) RecordRejection(coremetrics.RejectionRecord) error {
	s.rejections.Inc()
	return nil
}
