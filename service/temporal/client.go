package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	txclient "github.com/brojonat/aleotx/client"
)

// ErrOperationNotFound is returned when no workflow has the given id.
var ErrOperationNotFound = errors.New("operation not found")

// Dispatcher starts operation workflows and reports on them.
type Dispatcher interface {
	// StartOperation starts an ExecuteOperationWorkflow and returns its workflow id.
	StartOperation(ctx context.Context, input OperationInput) (string, error)

	// DescribeOperation reports the state of a started operation.
	DescribeOperation(ctx context.Context, workflowID string) (*txclient.OperationStatus, error)
}

// Client is a production implementation of Dispatcher that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

var _ Dispatcher = (*Client)(nil)

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartOperation starts an ExecuteOperationWorkflow.
func (c *Client) StartOperation(ctx context.Context, input OperationInput) (string, error) {
	id := operationWorkflowID(input.Kind)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		Memo: map[string]interface{}{
			"kind":       string(input.Kind),
			"created_by": "aleotx",
		},
	}, ExecuteOperationWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start operation workflow",
			"kind", input.Kind,
			"workflow_id", id,
			"error", err,
		)
		return "", fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	c.logger.Info("operation workflow started",
		"kind", input.Kind,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return run.GetID(), nil
}

// DescribeOperation reports a running, completed or failed operation.
func (c *Client) DescribeOperation(ctx context.Context, workflowID string) (*txclient.OperationStatus, error) {
	desc, err := c.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrOperationNotFound
		}
		return nil, fmt.Errorf("failed to describe workflow %q: %w", workflowID, err)
	}

	status := desc.GetWorkflowExecutionInfo().GetStatus()
	switch status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return &txclient.OperationStatus{WorkflowID: workflowID, Status: txclient.OperationRunning}, nil

	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var result OperationResult
		if err := c.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &result); err != nil {
			return nil, fmt.Errorf("failed to get workflow result %q: %w", workflowID, err)
		}
		return result.Status(workflowID), nil

	default:
		return &txclient.OperationStatus{
			WorkflowID: workflowID,
			Status:     txclient.OperationFailed,
			Error:      "workflow " + strings.ToLower(status.String()),
		}, nil
	}
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// operationWorkflowID generates a unique workflow ID for an operation.
func operationWorkflowID(kind txclient.OperationKind) string {
	return "op-" + string(kind) + "-" + uuid.NewString()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
