package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/storage"
)

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.browser.List(r.Context(), f)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list expenses",
			applog.FieldFilter, string(f.Mode), applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list expenses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filter":   toFilterJSON(f),
		"count":    len(list),
		"expenses": toExpenseList(list),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	e, ok := s.loadExpense(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toExpenseJSON(e))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExpenseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := req.newExpense(time.Now())
	if err == nil {
		err = e.Normalized().Validate()
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, ok := s.await(r.Context(), s.ops.Create(r.Context(), e))
	if !ok {
		return
	}
	s.respondResult(w, r, applog.OpCreate, res)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.loadExpense(w, r)
	if !ok {
		return
	}
	req, err := decodeExpenseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := req.apply(stored)
	if err == nil {
		err = e.Validate()
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, ok := s.await(r.Context(), s.ops.Update(r.Context(), e))
	if !ok {
		return
	}
	s.respondResult(w, r, applog.OpUpdate, res)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.loadExpense(w, r)
	if !ok {
		return
	}
	res, ok := s.await(r.Context(), s.ops.Delete(r.Context(), stored))
	if !ok {
		return
	}
	s.respondResult(w, r, applog.OpDelete, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, ok := s.await(r.Context(), s.ops.Refresh(r.Context()))
	if !ok {
		return
	}
	s.respondResult(w, r, applog.OpRefresh, res)
}

// loadExpense fetches the record named by the {id} path segment, writing
// the error response itself when it cannot.
func (s *Server) loadExpense(w http.ResponseWriter, r *http.Request) (core.Expense, bool) {
	id, err := parseLocalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return core.Expense{}, false
	}
	e, err := s.records.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "expense not found")
		return core.Expense{}, false
	}
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to load expense",
			applog.FieldLocalID, id, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to load expense")
		return core.Expense{}, false
	}
	return e, true
}

// await waits for the terminal result. The operation itself keeps running
// when the client goes away; only the response is abandoned.
func (s *Server) await(ctx context.Context, results <-chan core.Result) (core.Result, bool) {
	var last core.Result
	for {
		select {
		case res, open := <-results:
			if !open {
				return last, last.Terminal()
			}
			last = res
		case <-ctx.Done():
			applog.FromContext(ctx).Info("Client left before the operation finished")
			return core.Result{}, false
		}
	}
}

// respondResult writes the operation outcome, including the affected record
// when it still exists locally.
func (s *Server) respondResult(w http.ResponseWriter, r *http.Request, op string, res core.Result) {
	body := operationJSON{Operation: op, Result: res}
	if res.LocalID != 0 && op != applog.OpDelete {
		if e, err := s.records.Get(r.Context(), res.LocalID); err == nil {
			ej := toExpenseJSON(e)
			body.Expense = &ej
		}
	}
	writeJSON(w, resultStatus(op, res), body)
}
