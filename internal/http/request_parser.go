// Package http serves the expense API: JSON endpoints for the four
// operations, snapshot queries and a Server-Sent Events feed of live lists.
//
// This file parses filters from query strings and expense payloads from
// JSON bodies.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expensetracker/internal/core"
)

const maxBodyBytes = 1 << 16

const dateLayout = "2006-01-02"

var errMixedFilter = errors.New("choose either category or start/end, not both")

// hasFilterParams reports whether the query selects a filter explicitly.
func hasFilterParams(q url.Values) bool {
	for _, k := range []string{"category", "start", "end", "q"} {
		if q.Has(k) {
			return true
		}
	}
	return false
}

// ParseFilter builds a filter from category, start, end and q. A date-only
// end covers the whole day.
func ParseFilter(q url.Values) (core.Filter, error) {
	category := strings.TrimSpace(q.Get("category"))
	startRaw := strings.TrimSpace(q.Get("start"))
	endRaw := strings.TrimSpace(q.Get("end"))
	query := q.Get("q")

	if startRaw == "" && endRaw == "" {
		return core.CategoryFilter(category).WithQuery(query), nil
	}
	if category != "" && category != core.AllCategories {
		return core.Filter{}, errMixedFilter
	}
	if startRaw == "" || endRaw == "" {
		return core.Filter{}, errors.New("range needs both start and end")
	}

	start, _, err := parseInstant(startRaw)
	if err != nil {
		return core.Filter{}, fmt.Errorf("start: %w", err)
	}
	end, dateOnly, err := parseInstant(endRaw)
	if err != nil {
		return core.Filter{}, fmt.Errorf("end: %w", err)
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Millisecond)
	}

	f := core.RangeFilter(start, end).WithQuery(query)
	if err := f.Validate(); err != nil {
		return core.Filter{}, err
	}
	return f, nil
}

// parseInstant accepts milliseconds since epoch, YYYY-MM-DD or RFC 3339.
func parseInstant(s string) (t time.Time, dateOnly bool, err error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return core.FromMillis(ms), false, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), true, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid time %q", s)
}

// flexString accepts a JSON string or number and keeps its text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number")
	}
	*f = flexString(n.String())
	return nil
}

// expenseRequest is the body of POST and PUT /expenses. Missing fields in a
// PUT keep the stored values.
type expenseRequest struct {
	Amount      *flexString `json:"amount"`
	Description *string     `json:"description"`
	Category    *string     `json:"category"`
	Date        *flexString `json:"date"`
}

func decodeExpenseRequest(r *http.Request) (expenseRequest, error) {
	var req expenseRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return expenseRequest{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	return req, nil
}

// apply merges the request into base.
func (req expenseRequest) apply(base core.Expense) (core.Expense, error) {
	e := base
	if req.Amount != nil {
		m, err := core.ParseAmount(string(*req.Amount))
		if err != nil {
			return core.Expense{}, fmt.Errorf("amount: %w", err)
		}
		e.Amount = m
	}
	if req.Description != nil {
		e.Description = sanitizeInput(*req.Description)
	}
	if req.Category != nil {
		e.Category = sanitizeInput(*req.Category)
	}
	if req.Date != nil {
		t, _, err := parseInstant(strings.TrimSpace(string(*req.Date)))
		if err != nil {
			return core.Expense{}, fmt.Errorf("date: %w", err)
		}
		e.OccurredAt = t
	}
	return e, nil
}

// newExpense builds a record for creation. Amount, description and category
// are required; the date defaults to now.
func (req expenseRequest) newExpense(now time.Time) (core.Expense, error) {
	switch {
	case req.Amount == nil:
		return core.Expense{}, errors.New("amount is required")
	case req.Description == nil:
		return core.Expense{}, core.ErrEmptyDescription
	case req.Category == nil:
		return core.Expense{}, core.ErrEmptyCategory
	}
	e, err := req.apply(core.Expense{OccurredAt: now.UTC()})
	if err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// parseLocalID reads the {id} path segment.
func parseLocalID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid expense id %q", r.PathValue("id"))
	}
	return id, nil
}

// sanitizeInput drops control characters other than tab and newlines and trims.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
