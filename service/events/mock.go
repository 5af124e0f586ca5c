package events

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	balanceEvents   []*BalanceEvent
	operationEvents []*OperationEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishBalance records the event and returns any configured error.
func (m *MockPublisher) PublishBalance(ctx context.Context, event *BalanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.balanceEvents = append(m.balanceEvents, event)
	return nil
}

// PublishOperation records the event and returns any configured error.
func (m *MockPublisher) PublishOperation(ctx context.Context, event *OperationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.operationEvents = append(m.operationEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// BalanceEvents returns a copy of all published balance events.
func (m *MockPublisher) BalanceEvents() []*BalanceEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*BalanceEvent, len(m.balanceEvents))
	copy(events, m.balanceEvents)
	return events
}

// OperationEvents returns a copy of all published operation events.
func (m *MockPublisher) OperationEvents() []*OperationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]*OperationEvent, len(m.operationEvents))
	copy(events, m.operationEvents)
	return events
}

// SetPublishError configures the mock to fail all publishes.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ Publisher = (*MockPublisher)(nil)
