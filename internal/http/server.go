package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/live"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
)

// Operations runs the user-initiated writes. Each call yields Loading,
// then one terminal result, then closes.
type Operations interface {
	Create(ctx context.Context, e core.Expense) <-chan core.Result
	Update(ctx context.Context, e core.Expense) <-chan core.Result
	Delete(ctx context.Context, e core.Expense) <-chan core.Result
	Refresh(ctx context.Context) <-chan core.Result
	Status() *live.Value[core.Result]
}

// Records reads single stored records.
type Records interface {
	Get(ctx context.Context, localID int64) (core.Expense, error)
}

// Browsing is the read side: snapshots and live streams.
type Browsing interface {
	Filter() core.Filter
	SetFilter(f core.Filter) error
	List(ctx context.Context, f core.Filter) ([]core.Expense, error)
	SummaryFor(ctx context.Context, f core.Filter) (core.Summary, error)
	Watch(ctx context.Context, f core.Filter) <-chan []core.Expense
	WatchTotal(ctx context.Context, f core.Filter) <-chan core.Money
	Expenses(ctx context.Context) <-chan []core.Expense
	Total(ctx context.Context) <-chan core.Money
}

type Server struct {
	http.Server
	ops     Operations
	records Records
	browser Browsing

	logger    *applog.Logger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	keepAlive time.Duration

	// streams is cancelled on shutdown so open event streams end.
	streams     context.Context
	stopStreams context.CancelFunc

	shutdownOnce sync.Once
}

type Option func(*Server)

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit replaces the limit applied to write requests.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.limiter.Stop()
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

// WithKeepAlive sets the interval of comment lines on idle event streams.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

func NewServer(addr string, ops Operations, records Records, browser Browsing, opts ...Option) *Server {
	s := &Server{
		ops:       ops,
		records:   records,
		browser:   browser,
		logger:    applog.Discard(),
		limiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:  security.NewDetector(),
		keepAlive: 25 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.WithComponent(applog.ComponentHTTP)
	s.streams, s.stopStreams = context.WithCancel(context.Background())
	s.tracer = trace.NewMiddleware(s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /expenses", s.handleList)
	mux.HandleFunc("POST /expenses", s.handleCreate)
	mux.HandleFunc("GET /expenses/{id}", s.handleGet)
	mux.HandleFunc("PUT /expenses/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDelete)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /summary", s.handleSummary)
	mux.HandleFunc("GET /filter", s.handleGetFilter)
	mux.HandleFunc("PUT /filter", s.handleSetFilter)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ClientIP, http.MethodPost, http.MethodPut, http.MethodDelete)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No write timeout: /stream responses stay open while the client listens.
		IdleTimeout: 60 * time.Second,
	}
	s.Server.RegisterOnShutdown(s.stopStreams)
	return s
}

// Metrics returns request counters collected by the tracing middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Close releases resources without waiting for in-flight requests.
func (s *Server) Close() error {
	s.limiter.Stop()
	s.stopStreams()
	return s.Server.Close()
}
