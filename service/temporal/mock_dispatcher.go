package temporal

import (
	"context"
	"fmt"
	"sync"

	"github.com/brojonat/aleotx/client"
)

// MockDispatcher is a mock implementation of Dispatcher for testing.
type MockDispatcher struct {
	mu       sync.Mutex
	started  []OperationInput
	statuses map[string]*client.OperationStatus
	startErr error
	nextID   int
}

// NewMockDispatcher creates a new MockDispatcher.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{
		statuses: make(map[string]*client.OperationStatus),
	}
}

// StartOperation records the input and reports the operation as running.
func (m *MockDispatcher) StartOperation(ctx context.Context, input OperationInput) (string, error) {
	if m.startErr != nil {
		return "", m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := fmt.Sprintf("op-%s-%d", input.Kind, m.nextID)
	m.started = append(m.started, input)
	m.statuses[id] = &client.OperationStatus{WorkflowID: id, Status: client.OperationRunning}
	return id, nil
}

// DescribeOperation returns the status set for workflowID.
func (m *MockDispatcher) DescribeOperation(ctx context.Context, workflowID string) (*client.OperationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status, ok := m.statuses[workflowID]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return status, nil
}

// SetStatus replaces the status reported for workflowID.
func (m *MockDispatcher) SetStatus(workflowID string, status *client.OperationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[workflowID] = status
}

// SetStartError configures StartOperation to fail.
func (m *MockDispatcher) SetStartError(err error) {
	m.startErr = err
}

// Started returns the inputs of every started operation.
func (m *MockDispatcher) Started() []OperationInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]OperationInput, len(m.started))
	copy(out, m.started)
	return out
}
