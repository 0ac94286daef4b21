package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	coremetrics "github.com/agrilink/fulfillment/core/metrics"
)

func TestPromSink_RecordAllocation(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	recs := []coremetrics.AllocationRecord{
		{Commodity: "tomato", Quantity: decimal.RequireFromString("400"), Depleted: false, CommittedAt: time.Now()},
		{Commodity: "tomato", Quantity: decimal.RequireFromString("600"), Depleted: true, CommittedAt: time.Now()},
	}
	if err := sink.RecordAllocation(recs); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(sink.quantity.WithLabelValues("tomato")); got != 1000 {
		t.Errorf("quantity counter = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(sink.allocations.WithLabelValues("tomato", "true")); got != 1 {
		t.Errorf("depleted counter = %v, want 1", got)
	}

	if err := sink.RecordRejection(coremetrics.RejectionRecord{RequestID: "r1"}); err != nil {
		t.Fatalf("record rejection: %v", err)
	}
	if got := testutil.ToFloat64(sink.rejections); got != 1 {
		t.Errorf("rejections = %v, want 1", got)
	}
}

func TestPromSink_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("second registration should reuse collectors: %v", err)
	}
}
