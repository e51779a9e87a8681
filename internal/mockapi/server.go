// Package mockapi serves a REST "expenses" collection backed by an in-memory store.
// It plays the remote side in development and in client tests.
package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/remote"
	"expensetracker/internal/remote/memory"
)

// maxBody caps request payloads.
const maxBody = 1 << 16

type Server struct {
	http.Server
	store  *memory.Store
	logger *applog.Logger

	mu      sync.Mutex
	faults  []Fault
	omitIDs bool
}

// Fault is a canned error response served instead of the next request.
type Fault struct {
	Status  int
	Message string
}

func NewServer(addr string, store *memory.Store, logger *applog.Logger) *Server {
	s := &Server{store: store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /expenses", s.handleList)
	mux.HandleFunc("POST /expenses", s.handleCreate)
	mux.HandleFunc("GET /expenses/{id}", s.handleGet)
	mux.HandleFunc("PUT /expenses/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDelete)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           trace.NewMiddleware(logger).Middleware(s.withFaults(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// FailNext queues a fault served to the next collection request.
func (s *Server) FailNext(f Fault) {
	s.mu.Lock()
	s.faults = append(s.faults, f)
	s.mu.Unlock()
}

// OmitIDs makes create responses leave out the server id.
func (s *Server) OmitIDs(omit bool) {
	s.mu.Lock()
	s.omitIDs = omit
	s.mu.Unlock()
}

func (s *Server) withFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		s.mu.Lock()
		var f *Fault
		if len(s.faults) > 0 {
			f = &s.faults[0]
			s.faults = s.faults[1:]
		}
		s.mu.Unlock()
		if f != nil {
			http.Error(w, f.Message, f.Status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	e, ok := decode(w, r)
	if !ok {
		return
	}
	e.ID = ""
	created, err := s.store.Create(r.Context(), e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.mu.Lock()
	omit := s.omitIDs
	s.mu.Unlock()
	if omit {
		created.ID = ""
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Remote expense created",
		applog.FieldRemoteID, created.ID, applog.FieldCategory, created.Category)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	e, ok := decode(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := s.store.Update(r.Context(), id, e); err != nil {
		s.fail(w, r, err)
		return
	}
	e.ID = id
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, remote.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Mock API request failed", applog.FieldError, err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func decode(w http.ResponseWriter, r *http.Request) (remote.Expense, bool) {
	var e remote.Expense
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&e); err != nil {
		http.Error(w, "invalid expense payload", http.StatusBadRequest)
		return remote.Expense{}, false
	}
	return e, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
