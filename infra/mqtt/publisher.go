package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/dispatchlab/fieldops/core/notify"
)

// Notifier mirrors the core notify.Notifier interface.
type Notifier = notify.Notifier

// MockNotifier records notices in memory and is used in tests.
type MockNotifier struct {
	mu      sync.Mutex
	Notices []notify.Notice
	FailIDs map[string]bool
}

// NewMockNotifier creates a new MockNotifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{FailIDs: make(map[string]bool)}
}

// Notify records the notice or returns an error if configured to fail.
func (m *MockNotifier) Notify(_ context.Context, n notify.Notice) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[n.TechnicianID] {
		return 1, fmt.Errorf("publish failed")
	}
	m.Notices = append(m.Notices, n)
	return 1, nil
}

// Sent returns the notices recorded so far.
func (m *MockNotifier) Sent() []notify.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Notice, len(m.Notices))
	copy(out, m.Notices)
	return out
}
