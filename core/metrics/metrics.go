// Package metrics defines the sink interfaces used to record allocation
// activity for observability purposes.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationRecord represents one committed fulfillment transaction.
type AllocationRecord struct {
	RequestID   string
	BatchID     string
	DispatchID  string
	Commodity   string
	Quantity    decimal.Decimal
	Depleted    bool
	CommittedAt time.Time
}

// RejectionRecord represents one cancelled request.
type RejectionRecord struct {
	RequestID  string
	Reason     string
	RejectedAt time.Time
}

// MetricsSink records committed allocations.
type MetricsSink interface {
	RecordAllocation(records []AllocationRecord) error
}

// RejectionRecorder records request cancellations. Sinks implement it
// optionally.
type RejectionRecorder interface {
	RecordRejection(rec RejectionRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordAllocation([]AllocationRecord) error { return nil }
func (NopSink) RecordRejection(RejectionRecord) error     { return nil }

// Config defines the metric sink settings.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
