package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"expensetracker/internal/remote"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheet serves the subset of the Sheets values API the client uses.
type fakeSheet struct {
	mu   sync.Mutex
	rows [][]any
}

var singleRow = regexp.MustCompile(`^A(\d+):E(\d+)$`)

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rest, ok := strings.Cut(r.URL.Path, "/values/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	rest, isAppend := strings.CutSuffix(rest, ":append")
	rest, isClear := strings.CutSuffix(rest, ":clear")
	_, cells, _ := strings.Cut(rest, "!")

	switch {
	case r.Method == http.MethodGet && cells == "A:A":
		col := make([][]any, len(f.rows))
		for i, row := range f.rows {
			if len(row) > 0 {
				col[i] = []any{row[0]}
			}
		}
		writeValues(w, col)
	case r.Method == http.MethodGet && cells == "A2:E":
		writeValues(w, f.rows[1:])
	case r.Method == http.MethodPost && isAppend:
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(f.rows, vr.Values...)
		writeValues(w, nil)
	case r.Method == http.MethodPut:
		n := rowNumber(cells)
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.rows[n-1] = vr.Values[0]
		writeValues(w, nil)
	case r.Method == http.MethodPost && isClear:
		f.rows[rowNumber(cells)-1] = []any{}
		writeValues(w, nil)
	default:
		http.Error(w, "unsupported "+r.Method+" "+rest, http.StatusBadRequest)
	}
}

func rowNumber(cells string) int {
	m := singleRow.FindStringSubmatch(cells)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func writeValues(w http.ResponseWriter, values [][]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
}

func newFakeClient(t *testing.T) (*Client, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{rows: [][]any{{"id", "date", "description", "amount", "category"}}}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(ts.URL+"/"),
		goption.WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatal(err)
	}
	c := NewWithService(svc, "sheet-id", "")
	n := 0
	c.newID = func() string {
		n++
		return "id-" + strconv.Itoa(n)
	}
	return c, fake
}

func TestClientLifecycle(t *testing.T) {
	ctx := context.Background()
	c, fake := newFakeClient(t)

	created, err := c.Create(ctx, remote.Expense{
		Amount:      remote.Amount{Decimal: decimal.RequireFromString("12.5")},
		Category:    "food",
		Date:        1700000000000,
		Description: "Lunch",
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != "id-1" {
		t.Fatalf("unexpected id %q", created.ID)
	}
	if _, err := c.Create(ctx, remote.Expense{Category: "bus", Date: 1, Description: "Ticket"}); err != nil {
		t.Fatal(err)
	}

	created.Description = "Dinner"
	if err := c.Update(ctx, "id-1", created); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "id-2"); err != nil {
		t.Fatal(err)
	}

	list, err := c.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one record, got %+v", list)
	}
	got := list[0]
	if got.ID != "id-1" || got.Description != "Dinner" || got.Date != 1700000000000 || !got.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected record %+v", got)
	}
	if len(fake.rows) != 3 {
		t.Fatalf("deleted rows are cleared, not removed: %d rows", len(fake.rows))
	}

	if err := c.Update(ctx, "missing", created); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := c.Delete(ctx, ""); !errors.Is(err, remote.ErrNoRemoteID) {
		t.Fatalf("expected ErrNoRemoteID, got %v", err)
	}
}

func TestParseRows(t *testing.T) {
	rows := [][]any{
		{"a", float64(1700000000000), "Lunch", float64(12.34), "food"},
		{},
		{""},
		{"b", "5", "Typed", "3,50", "home"},
		{"c", float64(7), "Short"},
	}
	got, err := parseRows(rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %+v", got)
	}
	if got[0].Date != 1700000000000 || got[0].Amount.String() != "12.34" {
		t.Errorf("unexpected first row %+v", got[0])
	}
	if got[1].Date != 5 || got[1].Amount.String() != "3.5" {
		t.Errorf("unexpected typed row %+v", got[1])
	}
	if got[2].Category != "" {
		t.Errorf("missing cells should read as empty, got %+v", got[2])
	}
}

func TestParseRowsReportsBadCells(t *testing.T) {
	_, err := parseRows([][]any{{"a", "yesterday", "x", 1.0, "y"}})
	if err == nil || !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("expected row-scoped error, got %v", err)
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error %v", err)
	}
	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error %v", err)
	}
	_, err = New(context.Background(), Config{SpreadsheetID: "x", CredentialsJSON: `{"type":"authorized_user"}`})
	if err == nil || !strings.Contains(err.Error(), "parse service account credentials") {
		t.Fatalf("unexpected error %v", err)
	}
}
