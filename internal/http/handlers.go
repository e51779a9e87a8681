package http

import (
	"net/http"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f := s.browser.Filter()
	if hasFilterParams(r.URL.Query()) {
		var err error
		if f, err = ParseFilter(r.URL.Query()); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	sum, err := s.browser.SummaryFor(r.Context(), f)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to build summary", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	writeJSON(w, http.StatusOK, toSummaryJSON(sum))
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toFilterJSON(s.browser.Filter()))
}

// handleSetFilter replaces the active filter from the query string. Open
// streams without explicit filter parameters switch to it.
func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err == nil {
		err = s.browser.SetFilter(f)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toFilterJSON(f))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ops.Status().Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStream sends "expenses", "total" and "status" events as they change.
// With filter parameters the stream is fixed to that filter; without, it
// follows the active filter.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var (
		expenses <-chan []core.Expense
		total    <-chan core.Money
	)
	ctx := r.Context()
	if q := r.URL.Query(); hasFilterParams(q) {
		f, err := ParseFilter(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		expenses = s.browser.Watch(ctx, f)
		total = s.browser.WatchTotal(ctx, f)
	} else {
		expenses = s.browser.Expenses(ctx)
		total = s.browser.Total(ctx)
	}
	status := s.ops.Status().Subscribe(ctx)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := applog.FromContext(ctx)
	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-s.streams.Done():
			return
		case list, open := <-expenses:
			if !open {
				return
			}
			err = writeEvent(w, flusher, "expenses", toExpenseList(list))
		case m, open := <-total:
			if !open {
				return
			}
			err = writeEvent(w, flusher, "total", map[string]string{"total": m.String()})
		case res, open := <-status:
			if !open {
				return
			}
			err = writeEvent(w, flusher, "status", res)
		case <-keepAlive.C:
			if _, err = w.Write([]byte(": keep-alive\n\n")); err == nil {
				flusher.Flush()
			}
		}
		if err != nil {
			logger.Debug("Event stream closed", applog.FieldError, err)
			return
		}
	}
}
