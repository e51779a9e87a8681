package amqp

import (
	"encoding/json"
	"time"

	"expensetracker/internal/core"
)

// ResultEvent announces the terminal outcome of a reconciliation operation.
// Loading results are never published.
type ResultEvent struct {
	Operation string          `json:"operation"`
	Kind      core.ResultKind `json:"kind"`
	Message   string          `json:"message,omitempty"`
	LocalID   int64           `json:"local_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewResultEvent stamps r with the current time.
func NewResultEvent(operation string, r core.Result) *ResultEvent {
	return &ResultEvent{
		Operation: operation,
		Kind:      r.Kind,
		Message:   r.Message,
		LocalID:   r.LocalID,
		Timestamp: time.Now().UTC(),
	}
}

// Result converts the event back to the result it carries.
func (m *ResultEvent) Result() core.Result {
	return core.Result{Kind: m.Kind, Message: m.Message, LocalID: m.LocalID}
}

// ToJSON converts the message to JSON bytes
func (m *ResultEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ResultEventFromJSON decodes a message and rejects unknown or non-terminal kinds.
func ResultEventFromJSON(data []byte) (*ResultEvent, error) {
	var msg ResultEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Result().Terminal() {
		return nil, &InvalidEventError{Kind: msg.Kind}
	}
	return &msg, nil
}

type InvalidEventError struct {
	Kind core.ResultKind
}

func (e *InvalidEventError) Error() string {
	return "result event with non-terminal kind " + `"` + string(e.Kind) + `"`
}
