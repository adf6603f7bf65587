package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SubmitSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/operations", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "swap", body["kind"])
		assert.Equal(t, 1.5, body["amount"])
		assert.Equal(t, true, body["wait_for_confirmation"])

		json.NewEncoder(w).Encode(OperationStatus{
			Status:  OperationCompleted,
			Outcome: &Outcome{Result: &SubmissionResult{ProvisionalID: "req-1", State: StateConfirmed}},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	status, err := c.Submit(context.Background(), OperationSubmission{
		Kind:                OpSwap,
		BuildParams:         BuildParams{Amount: Ptr(1.5)},
		WaitForConfirmation: true,
	})
	require.NoError(t, err)
	assert.Equal(t, OperationCompleted, status.Status)
	assert.Equal(t, StateConfirmed, status.Outcome.Result.State)
}

func TestClient_SubmitAsync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(OperationStatus{WorkflowID: "op-abc", Status: OperationRunning})
	}))
	defer server.Close()

	status, err := NewClient(server.URL, nil, nil).Submit(context.Background(), OperationSubmission{Kind: OpTransfer, Async: true})
	require.NoError(t, err)
	assert.Equal(t, "op-abc", status.WorkflowID)
	assert.Equal(t, OperationRunning, status.Status)
}

func TestClient_SubmitClassifiedError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(APIError{Error: "transaction rejected by user", ErrorKind: KindUserRejected})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).Submit(context.Background(), OperationSubmission{Kind: OpTransfer})
	require.Error(t, err)
	assert.Equal(t, KindUserRejected, Classify(err))
}

func TestClient_Operation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/operations/op-abc", r.URL.Path)
		json.NewEncoder(w).Encode(OperationStatus{WorkflowID: "op-abc", Status: OperationFailed, Error: "boom"})
	}))
	defer server.Close()

	status, err := NewClient(server.URL, nil, nil).Operation(context.Background(), "op-abc")
	require.NoError(t, err)
	assert.Equal(t, OperationFailed, status.Status)
	assert.Equal(t, "boom", status.Error)
}

func TestClient_History(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/history", r.URL.Path)
		assert.Equal(t, "swap", r.URL.Query().Get("kind"))
		assert.Equal(t, "100", r.URL.Query().Get("start"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("end"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"entries": []HistoryEntry{entryFor(OpSwap, 150, "x")},
		})
	}))
	defer server.Close()

	entries, err := NewClient(server.URL, nil, nil).History(context.Background(), HistoryQuery{Kind: OpSwap, StartTime: 100, Limit: 5})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x", entries[0].ID)
	assert.Equal(t, StateConfirmed, entries[0].State)
}

func TestClient_ClearHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	assert.NoError(t, NewClient(server.URL, nil, nil).ClearHistory(context.Background()))
}

func TestClient_LedgerHeight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ledger/height", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]uint64{"height": 99})
	}))
	defer server.Close()

	height, err := NewClient(server.URL, nil, nil).LedgerHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(99), height)
}

func TestClient_UnstructuredError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil, nil).LedgerHeight(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
