package metrics

import coremetrics "github.com/agrilink/fulfillment/core/metrics"

// MultiSink fans allocation records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAllocation forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAllocation(records []coremetrics.AllocationRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAllocation(records); err != nil {
			return err
		}
	}
	return nil
}

// RecordRejection forwards the record to sinks that support it.
func (m *MultiSink) RecordRejection(rec coremetrics.RejectionRecord) error {
	for _, s := range m.Sinks {
		if rr, ok := s.(coremetrics.RejectionRecorder); ok {
			if err := rr.RecordRejection(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
