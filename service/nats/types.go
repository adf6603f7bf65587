package nats

import (
	"time"

	"github.com/brojonat/aleotx/client"
)

// OperationEvent represents a recorded operation published to NATS.
// This is published to the subject "ops.{kind}" in JetStream.
type OperationEvent struct {
	// Identifiers
	EntryID       string `json:"entry_id"`
	Kind          string `json:"kind"`
	ProvisionalID string `json:"provisional_id"`
	FinalID       string `json:"final_id,omitempty"`

	// Outcome
	State       string `json:"state"`
	ErrorKind   string `json:"error_kind,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	Polls       int    `json:"polls,omitempty"`

	// Operation details
	RecipientAddress string `json:"recipient_address,omitempty"`
	AmountBaseUnits  uint64 `json:"amount_base_units,omitempty"`
	ExplorerLink     string `json:"explorer_link,omitempty"`

	// Timing information
	CreatedAt   time.Time `json:"created_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromHistoryEntry converts a history entry to an OperationEvent for publishing.
func FromHistoryEntry(entry client.HistoryEntry) *OperationEvent {
	return &OperationEvent{
		EntryID:          entry.ID,
		Kind:             string(entry.Kind),
		ProvisionalID:    entry.ProvisionalID,
		FinalID:          entry.FinalID.String(),
		State:            string(entry.State),
		ErrorKind:        string(entry.ErrorKind),
		ErrorDetail:      entry.ErrorDetail,
		Attempts:         entry.Attempts,
		Polls:            entry.Polls,
		RecipientAddress: entry.RecipientAddress,
		AmountBaseUnits:  entry.AmountBaseUnits,
		ExplorerLink:     entry.ExplorerLink,
		CreatedAt:        entry.CreatedTime().UTC(),
		PublishedAt:      time.Now().UTC(),
	}
}

// Subject returns the JetStream subject the event is published to.
func (e *OperationEvent) Subject() string {
	return SubjectFor(e.Kind)
}

// SubjectFor returns the subject for an operation kind. An empty kind
// selects every operation.
func SubjectFor(kind string) string {
	if kind == "" {
		return StreamSubjects
	}
	return SubjectPrefix + kind
}
