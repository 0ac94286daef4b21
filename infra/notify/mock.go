package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/agrilink/fulfillment/core/notify"
)

// MockNotifier records published events, used in tests.
type MockNotifier struct {
	mu     sync.Mutex
	Events []notify.Event
	Fail   bool
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Publish records the event or returns an error if configured to fail.
func (m *MockNotifier) Publish(_ context.Context, ev notify.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Events = append(m.Events, ev)
	return nil
}

// Published returns a copy of the recorded events.
func (m *MockNotifier) Published() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Event, len(m.Events))
	copy(out, m.Events)
	return out
}

// Close is a no-op.
func (m *MockNotifier) Close() error { return nil }
