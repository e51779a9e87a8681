package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// ResultConsumer delivers result events until ctx ends.
type ResultConsumer interface {
	Run(ctx context.Context, handler func(*amqp.ResultEvent) error) error
}

// OperationStats tallies the terminal results seen for one operation.
type OperationStats struct {
	Operation   string
	Successes   int64
	Failures    int64
	LastFailure string
}

// ResultAuditor consumes the result feed and keeps per-operation tallies.
type ResultAuditor struct {
	consumer ResultConsumer
	logger   *applog.Logger

	mu      sync.Mutex
	stats   map[string]*OperationStats
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	runErr  error
}

func NewResultAuditor(consumer ResultConsumer, logger *applog.Logger) *ResultAuditor {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ResultAuditor{
		consumer: consumer,
		logger:   logger.WithComponent(applog.ComponentAudit),
		stats:    make(map[string]*OperationStats),
	}
}

// Start begins consuming. Returns an error if already running.
func (a *ResultAuditor) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("result auditor is already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	a.running, a.cancel, a.doneCh, a.runErr = true, cancel, make(chan struct{}), nil

	go func(done chan struct{}) {
		defer close(done)
		err := a.consumer.Run(ctx, a.Record)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		a.mu.Lock()
		a.runErr = err
		a.mu.Unlock()
		if err != nil {
			a.logger.ErrorContext(ctx, "Result feed stopped", applog.FieldError, err)
		}
	}(a.doneCh)

	a.logger.InfoContext(ctx, "Result auditor started")
	return nil
}

// Stop cancels consumption and waits for it to finish.
func (a *ResultAuditor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	cancel, done := a.cancel, a.doneCh
	a.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.WarnContext(ctx, "Result auditor stop timed out")
		return ctx.Err()
	}

	a.mu.Lock()
	a.running = false
	err := a.runErr
	a.mu.Unlock()
	return err
}

// Done is closed when consumption ends on its own or after Stop.
func (a *ResultAuditor) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doneCh
}

func (a *ResultAuditor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Record tallies one event. It is the consumer's handler.
func (a *ResultAuditor) Record(ev *amqp.ResultEvent) error {
	if ev == nil || ev.Operation == "" {
		return fmt.Errorf("result event without operation")
	}

	a.mu.Lock()
	st, ok := a.stats[ev.Operation]
	if !ok {
		st = &OperationStats{Operation: ev.Operation}
		a.stats[ev.Operation] = st
	}
	switch ev.Kind {
	case core.Success:
		st.Successes++
	case core.Failure:
		st.Failures++
		st.LastFailure = ev.Message
	}
	a.mu.Unlock()

	fields := applog.NewFields().WithOperation(ev.Operation).WithResult(ev.Result())
	if ev.LocalID != 0 {
		fields[applog.FieldLocalID] = ev.LocalID
	}
	if ev.Kind == core.Failure {
		a.logger.Warn("Operation failed", fields.ToSlice()...)
	} else {
		a.logger.Info("Operation succeeded", fields.ToSlice()...)
	}
	return nil
}

// Stats returns a copy of the tallies ordered by operation name.
func (a *ResultAuditor) Stats() []OperationStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]OperationStats, 0, len(a.stats))
	for _, st := range a.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
