package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/mockapi"
	"expensetracker/internal/remote"
	"expensetracker/internal/remote/httpapi"
	"expensetracker/internal/remote/memory"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv   *Server
	repo  *storage.SQLiteRepository
	mock  *mockapi.Server
	store *memory.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := memory.New(memory.WithSequentialIDs())
	mock := mockapi.NewServer(":0", store, applog.Discard())
	remoteSrv := httptest.NewServer(mock.Handler)
	t.Cleanup(remoteSrv.Close)

	client, err := httpapi.New(remoteSrv.URL, 2*time.Second)
	require.NoError(t, err)

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "expenses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	rec := services.NewReconciler(repo, client)
	t.Cleanup(rec.Wait)

	srv := NewServer(":0", rec, repo, services.NewBrowser(repo), opts...)
	t.Cleanup(func() { srv.Close() })

	return &fixture{srv: srv, repo: repo, mock: mock, store: store}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	f.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (f *fixture) create(t *testing.T, body string) operationJSON {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/expenses", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[operationJSON](t, rr)
}

const lunchBody = `{"amount":"12.50","description":"Lunch","category":"Food","date":"2025-03-10"}`

func TestHealthHeadersAndRequestID(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rr)["status"])
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.True(t, strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_"))

	rr = f.do(t, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, int64(2), f.srv.Metrics().TotalRequests)
}

func TestCreateStoresLocallyAndRecordsRemoteID(t *testing.T) {
	f := newFixture(t)

	out := f.create(t, lunchBody)
	assert.Equal(t, applog.OpCreate, out.Operation)
	assert.Equal(t, core.Success, out.Result.Kind)
	require.NotNil(t, out.Expense)
	assert.Equal(t, "1", out.Expense.RemoteID)
	assert.Equal(t, "12.50", out.Expense.Amount)
	assert.Equal(t, "food", out.Expense.Category)
	assert.True(t, out.Expense.Synced)
	assert.Equal(t, 1, f.store.Len())

	rr := f.do(t, http.MethodGet, "/status", "")
	assert.Equal(t, core.Success, decodeBody[core.Result](t, rr).Kind)
}

func TestCreateAcceptsNumericAmountAndMillis(t *testing.T) {
	f := newFixture(t)
	out := f.create(t, `{"amount":7.5,"description":"Coffee","category":"food","date":1741608000000}`)
	require.NotNil(t, out.Expense)
	assert.Equal(t, "7.50", out.Expense.Amount)
	assert.Equal(t, int64(1741608000000), out.Expense.Date)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed JSON", `{"amount":`, http.StatusBadRequest},
		{"unknown field", `{"amount":"1","description":"x","category":"a","tip":1}`, http.StatusBadRequest},
		{"missing amount", `{"description":"x","category":"a"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"amount":"-1","description":"x","category":"a"}`, http.StatusUnprocessableEntity},
		{"blank description", `{"amount":"1","description":"  ","category":"a"}`, http.StatusUnprocessableEntity},
		{"blank category", `{"amount":"1","description":"x","category":""}`, http.StatusUnprocessableEntity},
		{"bad date", `{"amount":"1","description":"x","category":"a","date":"yesterday"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/expenses", tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
		})
	}

	list, err := f.repo.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "rejected requests never reach the store")
}

func TestCreateRemoteFaultKeepsLocalRecord(t *testing.T) {
	f := newFixture(t)
	f.mock.FailNext(mockapi.Fault{Status: http.StatusInternalServerError, Message: "API error"})

	rr := f.do(t, http.MethodPost, "/expenses", lunchBody)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	out := decodeBody[operationJSON](t, rr)
	assert.Equal(t, core.Failure, out.Result.Kind)
	assert.Equal(t, "API error", out.Result.Message)
	require.NotNil(t, out.Expense)
	assert.False(t, out.Expense.Synced)

	list, err := f.repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].RemoteID)
}

func TestUpdateMergesFields(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, lunchBody)
	id := created.Expense.ID

	rr := f.do(t, http.MethodPut, "/expenses/"+itoa(id), `{"amount":"15"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decodeBody[operationJSON](t, rr)
	assert.Equal(t, "15.00", out.Expense.Amount)
	assert.Equal(t, "Lunch", out.Expense.Description)

	remoteCopy, err := f.store.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "15", remoteCopy.Amount.String())
}

func TestUpdateUnsyncedRecordConflicts(t *testing.T) {
	f := newFixture(t)
	id, err := f.repo.Insert(context.Background(), core.Expense{
		Amount: core.Money{Cents: 100}, Description: "Offline", Category: "misc", OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	rr := f.do(t, http.MethodPut, "/expenses/"+itoa(id), `{"description":"Changed"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, remote.ErrNoRemoteID.Error(), decodeBody[operationJSON](t, rr).Result.Message)

	e, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Offline", e.Description, "no local write for an unsynced update")
}

func TestDeleteAndNotFound(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, lunchBody).Expense.ID

	rr := f.do(t, http.MethodDelete, "/expenses/"+itoa(id), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 0, f.store.Len())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/expenses/"+itoa(id), "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/expenses/"+itoa(id), "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/expenses/abc", "").Code)
}

func TestDeleteRemoteFaultStillRemovesLocally(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, lunchBody).Expense.ID
	f.mock.FailNext(mockapi.Fault{Status: http.StatusServiceUnavailable, Message: "maintenance"})

	rr := f.do(t, http.MethodDelete, "/expenses/"+itoa(id), "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "maintenance", decodeBody[operationJSON](t, rr).Result.Message)

	_, err := f.repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefreshReplacesLocalCollection(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.Insert(context.Background(), core.Expense{
		Amount: core.Money{Cents: 1}, Description: "Stale", Category: "old", OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	for _, d := range []string{"Rent", "Bus"} {
		_, err := f.store.Create(context.Background(), remote.FromCore(core.Expense{
			Amount: core.Money{Cents: 1000}, Description: d, Category: "home", OccurredAt: time.Now(),
		}))
		require.NoError(t, err)
	}

	rr := f.do(t, http.MethodPost, "/refresh", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "2 expenses", decodeBody[operationJSON](t, rr).Result.Message)

	list, err := f.repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, e := range list {
		assert.NotEqual(t, "Stale", e.Description)
		assert.True(t, e.Synced())
	}
}

func TestListFiltersAndSummary(t *testing.T) {
	f := newFixture(t)
	f.create(t, lunchBody)
	f.create(t, `{"amount":"3","description":"Bus ticket","category":"transport","date":"2025-03-09"}`)
	f.create(t, `{"amount":"8","description":"Groceries","category":"food","date":"2025-03-01"}`)

	type listBody struct {
		Count    int           `json:"count"`
		Expenses []expenseJSON `json:"expenses"`
	}

	all := decodeBody[listBody](t, f.do(t, http.MethodGet, "/expenses", ""))
	assert.Equal(t, 3, all.Count)
	assert.Equal(t, "Lunch", all.Expenses[0].Description, "newest first")

	food := decodeBody[listBody](t, f.do(t, http.MethodGet, "/expenses?category=food", ""))
	assert.Equal(t, 2, food.Count)

	week := decodeBody[listBody](t, f.do(t, http.MethodGet, "/expenses?start=2025-03-09&end=2025-03-10", ""))
	assert.Equal(t, 2, week.Count)

	search := decodeBody[listBody](t, f.do(t, http.MethodGet, "/expenses?q=Gro", ""))
	require.Equal(t, 1, search.Count)
	assert.Equal(t, "Groceries", search.Expenses[0].Description)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/expenses?category=food&start=2025-03-01&end=2025-03-02", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/expenses?start=2025-03-10&end=2025-03-01", "").Code)

	sum := decodeBody[summaryJSON](t, f.do(t, http.MethodGet, "/summary?category=food", ""))
	assert.Equal(t, "20.50", sum.Total)
	assert.Equal(t, []string{"all", "food", "transport"}, sum.Categories)
	assert.Contains(t, sum.Counts, countJSON{Category: "food", Count: 2})
}

func TestActiveFilter(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, core.FilterAll, decodeBody[filterJSON](t, f.do(t, http.MethodGet, "/filter", "")).Mode)

	rr := f.do(t, http.MethodPut, "/filter?category=Food&q=lun", "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[filterJSON](t, f.do(t, http.MethodGet, "/filter", ""))
	assert.Equal(t, core.FilterCategory, got.Mode)
	assert.Equal(t, "food", got.Category)
	assert.Equal(t, "lun", got.Query)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/filter?start=2025-03-01", "").Code)
}

func TestWriteRateLimit(t *testing.T) {
	f := newFixture(t, WithRateLimit(ratelimit.Config{RequestsPerMinute: 1}))
	f.create(t, lunchBody)

	rr := f.do(t, http.MethodPost, "/expenses", lunchBody)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/expenses", "").Code, "reads are not limited")
}

type sseEvent struct {
	name string
	data string
}

// readEvents parses the event stream until the response body closes.
func readEvents(body *bufio.Scanner, out chan<- sseEvent) {
	defer close(out)
	var ev sseEvent
	for body.Scan() {
		line := body.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.name != "":
			out <- ev
			ev = sseEvent{}
		}
	}
}

func waitEvent(t *testing.T, events <-chan sseEvent, name string, pred func(string) bool) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream ended")
			if ev.name == name && pred(ev.data) {
				return ev.data
			}
		case <-deadline:
			t.Fatalf("no %q event matched", name)
		}
	}
}

func TestStreamFollowsWrites(t *testing.T) {
	f := newFixture(t, WithKeepAlive(50*time.Millisecond))
	ts := httptest.NewServer(f.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream?category=food", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 16)
	go readEvents(bufio.NewScanner(resp.Body), events)

	waitEvent(t, events, "expenses", func(d string) bool { return d == "[]" })

	f.create(t, lunchBody)
	f.create(t, `{"amount":"3","description":"Bus","category":"transport","date":"2025-03-09"}`)

	data := waitEvent(t, events, "expenses", func(d string) bool { return strings.Contains(d, "Lunch") })
	assert.NotContains(t, data, "Bus", "fixed filter excludes other categories")
	waitEvent(t, events, "total", func(d string) bool { return d == `{"total":"12.50"}` })
	waitEvent(t, events, "status", func(d string) bool { return strings.Contains(d, `"success"`) })
}

func TestStreamFollowsActiveFilter(t *testing.T) {
	f := newFixture(t)
	f.create(t, lunchBody)
	f.create(t, `{"amount":"3","description":"Bus","category":"transport","date":"2025-03-09"}`)

	ts := httptest.NewServer(f.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := make(chan sseEvent, 16)
	go readEvents(bufio.NewScanner(resp.Body), events)
	waitEvent(t, events, "expenses", func(d string) bool { return strings.Contains(d, "Bus") && strings.Contains(d, "Lunch") })

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/filter?category=transport", "").Code)
	data := waitEvent(t, events, "expenses", func(d string) bool { return !strings.Contains(d, "Lunch") })
	assert.Contains(t, data, "Bus")
}

func TestStreamEndsOnShutdown(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Handler)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := make(chan sseEvent, 16)
	go readEvents(bufio.NewScanner(resp.Body), events)
	waitEvent(t, events, "expenses", func(string) bool { return true })

	f.srv.stopStreams()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream still open after shutdown")
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
