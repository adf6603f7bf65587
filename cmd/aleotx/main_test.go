package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/aleotx/client"
)

// runApp runs the CLI with args and returns what it wrote to stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	err := app.Run(append([]string{"aleotx"}, args...))
	return out.String(), err
}

func validAddress() string {
	return client.AddressPrefix + strings.Repeat("q", 59)
}

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server is healthy")
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy status")
}

func TestHealthCommand_MissingServerURL(t *testing.T) {
	_, err := runApp(t, "--server-url", "", "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server-url is required")
}

func TestVersionCommand(t *testing.T) {
	version = "1.0.0"
	commit = "abc123"
	date = "2026-10-10"

	out, err := runApp(t, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 1.0.0")
	assert.Contains(t, out, "Commit:  abc123")
}

func TestSubmitCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/operations", r.URL.Path)

		var sub client.OperationSubmission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sub))
		assert.Equal(t, client.OpTransfer, sub.Kind)
		assert.Equal(t, validAddress(), sub.Recipient)
		require.NotNil(t, sub.Amount)
		assert.Equal(t, 1.5, *sub.Amount)
		assert.Nil(t, sub.Fee)
		assert.Equal(t, "order-7", sub.Metadata["ref"])
		assert.True(t, sub.WaitForConfirmation)
		assert.False(t, sub.Async)

		json.NewEncoder(w).Encode(client.OperationStatus{
			Status: client.OperationCompleted,
			Outcome: &client.Outcome{
				Request: &client.OperationRequest{Kind: client.OpTransfer, RecipientAddress: validAddress(), AmountBaseUnits: 1_500_000},
				Result:  &client.SubmissionResult{ProvisionalID: "req-1", State: client.StateConfirmed, Attempts: 1, Polls: 2},
			},
		})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "op", "submit",
		"--recipient", validAddress(), "--amount", "1.5", "--meta", "ref=order-7", "--wait", "transfer")
	require.NoError(t, err)
	assert.Contains(t, out, "State:       confirmed")
	assert.Contains(t, out, "Amount:      1.500000")
	assert.Contains(t, out, "Polls:       2")
}

func TestSubmitCommand_ClassifiedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(client.APIError{Error: "insufficient balance", ErrorKind: client.KindInsufficientBalance})
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "op", "submit", "transfer")
	require.Error(t, err)
	assert.Equal(t, client.KindInsufficientBalance, client.Classify(err))
}

func TestSubmitCommand_RejectionIsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(client.APIError{Error: "transaction rejected by user", ErrorKind: client.KindUserRejected})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "op", "submit", "transfer")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled: "+client.KindUserRejected.UserMessage())
}

func TestSubmitCommand_Validation(t *testing.T) {
	_, err := runApp(t, "op", "submit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation kind is required")

	_, err = runApp(t, "op", "submit", "teleport")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation kind")

	_, err = runApp(t, "op", "submit", "--meta", "novalue", "transfer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}

func TestStatusCommand_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/operations/op-swap-1", r.URL.Path)
		json.NewEncoder(w).Encode(client.OperationStatus{WorkflowID: "op-swap-1", Status: client.OperationRunning})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "--json", "op", "status", "op-swap-1")
	require.NoError(t, err)

	var status client.OperationStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, client.OperationRunning, status.Status)
}

func TestParseMetadata(t *testing.T) {
	got, err := parseMetadata([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y"}, got)

	got, err = parseMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseMetadata([]string{"=v"})
	assert.Error(t, err)
}
