package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/remote"
)

// expenseJSON is the wire shape of a stored record.
type expenseJSON struct {
	ID          int64  `json:"id"`
	RemoteID    string `json:"remote_id,omitempty"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Date        int64  `json:"date"`
	Synced      bool   `json:"synced"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:          e.LocalID,
		RemoteID:    e.RemoteID,
		Amount:      e.Amount.String(),
		Description: e.Description,
		Category:    e.Category,
		Date:        e.OccurredAtMillis(),
		Synced:      e.Synced(),
	}
}

func toExpenseList(list []core.Expense) []expenseJSON {
	out := make([]expenseJSON, len(list))
	for i, e := range list {
		out[i] = toExpenseJSON(e)
	}
	return out
}

type filterJSON struct {
	Mode     core.FilterMode `json:"mode"`
	Category string          `json:"category,omitempty"`
	Start    *int64          `json:"start,omitempty"`
	End      *int64          `json:"end,omitempty"`
	Query    string          `json:"q,omitempty"`
}

func toFilterJSON(f core.Filter) filterJSON {
	out := filterJSON{Mode: f.Mode, Category: f.Category, Query: f.Query}
	if f.Mode == core.FilterRange {
		start, end := f.Start.UnixMilli(), f.End.UnixMilli()
		out.Start, out.End = &start, &end
	}
	return out
}

type countJSON struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type summaryJSON struct {
	Filter     filterJSON  `json:"filter"`
	Total      string      `json:"total"`
	Categories []string    `json:"categories"`
	Counts     []countJSON `json:"counts"`
}

func toSummaryJSON(s core.Summary) summaryJSON {
	counts := make([]countJSON, len(s.Counts))
	for i, c := range s.Counts {
		counts[i] = countJSON{Category: c.Name, Count: c.Count}
	}
	return summaryJSON{
		Filter:     toFilterJSON(s.Filter),
		Total:      s.Total.String(),
		Categories: s.Categories,
		Counts:     counts,
	}
}

// operationJSON reports the terminal result of an operation.
type operationJSON struct {
	Operation string       `json:"operation"`
	Result    core.Result  `json:"result"`
	Expense   *expenseJSON `json:"expense,omitempty"`
}

// resultStatus maps a terminal result to an HTTP status. A failure that
// names a record means its local write went through and the remote side
// failed, except for records that were never synced.
func resultStatus(op string, res core.Result) int {
	if res.Kind == core.Success {
		if op == applog.OpCreate {
			return http.StatusCreated
		}
		return http.StatusOK
	}
	if res.Message == remote.ErrNoRemoteID.Error() && op == applog.OpUpdate {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEvent writes one Server-Sent Event and flushes it.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
