package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/live"
	applog "expensetracker/internal/log"
	"expensetracker/internal/remote"
	"expensetracker/internal/storage"
)

// LocalStore is the subset of the local repository the reconciler writes to.
type LocalStore interface {
	Insert(ctx context.Context, e core.Expense) (int64, error)
	Update(ctx context.Context, e core.Expense) error
	Delete(ctx context.Context, e core.Expense) error
	SetRemoteID(ctx context.Context, localID int64, remoteID string) error
	ClearAll(ctx context.Context) error
	InsertMany(ctx context.Context, list []core.Expense) error
}

// ResultPublisher forwards terminal results to an outside feed.
type ResultPublisher interface {
	PublishResult(ctx context.Context, ev *amqp.ResultEvent) error
}

const defaultRemoteTimeout = 15 * time.Second

// genericFailure is reported when a fault carries no message of its own.
const genericFailure = "something went wrong"

// Reconciler coordinates every user mutation across the local store and the
// remote collection.
//
// The local store is authoritative. Local writes happen first and are never
// rolled back when the remote side fails; the two sides converge again when
// the user triggers Refresh. Failed remote calls are not retried.
type Reconciler struct {
	store     LocalStore
	remote    remote.Remote
	publisher ResultPublisher
	timeout   time.Duration
	logger    *applog.Logger
	status    *live.Value[core.Result]
	wg        sync.WaitGroup
}

type Option func(*Reconciler)

// WithPublisher enables the result feed. A nil publisher disables it.
func WithPublisher(p ResultPublisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

// WithRemoteTimeout bounds every remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(l *applog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

func NewReconciler(store LocalStore, rem remote.Remote, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:   store,
		remote:  rem,
		timeout: defaultRemoteTimeout,
		logger:  applog.Discard(),
		status:  live.NewValue(core.SuccessResult("")),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.WithComponent(applog.ComponentReconciler)
	return r
}

// Status holds the most recent result of any operation.
func (r *Reconciler) Status() *live.Value[core.Result] {
	return r.status
}

// Wait blocks until every started operation has reported its terminal result.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Create inserts e locally, then creates it remotely and records the server id.
func (r *Reconciler) Create(ctx context.Context, e core.Expense) <-chan core.Result {
	return r.run(ctx, applog.OpCreate, func(ctx context.Context) core.Result {
		e = e.Normalized()
		e.LocalID, e.RemoteID = 0, ""
		if err := e.Validate(); err != nil {
			return core.FailureResult(err.Error())
		}

		id, err := r.store.Insert(ctx, e)
		if err != nil {
			return core.FailureResult(faultMessage(err))
		}
		e.LocalID = id

		created, err := r.callRemote(ctx, func(ctx context.Context) (remote.Expense, error) {
			return r.remote.Create(ctx, remote.FromCore(e))
		})
		if err != nil {
			return failureFor(id, err)
		}
		if created.ID == "" {
			return failureFor(id, remote.ErrNoRemoteID)
		}
		if err := r.store.SetRemoteID(ctx, id, created.ID); err != nil {
			return failureFor(id, err)
		}
		return core.Result{Kind: core.Success, LocalID: id}
	})
}

// Update rewrites a synced record locally and remotely. Records that were
// never synced are rejected without any write.
func (r *Reconciler) Update(ctx context.Context, e core.Expense) <-chan core.Result {
	return r.run(ctx, applog.OpUpdate, func(ctx context.Context) core.Result {
		if !e.Synced() {
			return failureFor(e.LocalID, remote.ErrNoRemoteID)
		}
		e.Category = core.NormalizeCategory(e.Category)
		if err := e.Validate(); err != nil {
			return failureFor(e.LocalID, err)
		}
		if err := r.store.Update(ctx, e); err != nil {
			return failureFor(e.LocalID, err)
		}
		_, err := r.callRemote(ctx, func(ctx context.Context) (remote.Expense, error) {
			return remote.Expense{}, r.remote.Update(ctx, e.RemoteID, remote.FromCore(e))
		})
		if err != nil {
			return failureFor(e.LocalID, err)
		}
		return core.Result{Kind: core.Success, LocalID: e.LocalID}
	})
}

// Delete removes e locally, then remotely when it was ever synced. A local
// row that is already gone counts as deleted.
func (r *Reconciler) Delete(ctx context.Context, e core.Expense) <-chan core.Result {
	return r.run(ctx, applog.OpDelete, func(ctx context.Context) core.Result {
		if err := r.store.Delete(ctx, e); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return failureFor(e.LocalID, err)
		}
		if !e.Synced() {
			return core.Result{Kind: core.Success, LocalID: e.LocalID}
		}
		_, err := r.callRemote(ctx, func(ctx context.Context) (remote.Expense, error) {
			return remote.Expense{}, r.remote.Delete(ctx, e.RemoteID)
		})
		if err != nil {
			return failureFor(e.LocalID, err)
		}
		return core.Result{Kind: core.Success, LocalID: e.LocalID}
	})
}

// Refresh replaces the local collection with the remote one.
//
// ClearAll and InsertMany are separate steps: a fault between them leaves
// the local store empty until the next successful refresh.
func (r *Reconciler) Refresh(ctx context.Context) <-chan core.Result {
	return r.run(ctx, applog.OpRefresh, func(ctx context.Context) core.Result {
		list, err := r.callRemoteList(ctx)
		if err != nil {
			return core.FailureResult(faultMessage(err))
		}
		records := make([]core.Expense, 0, len(list))
		for _, re := range list {
			e, err := re.ToCore()
			if err != nil {
				return core.FailureResult(faultMessage(err))
			}
			records = append(records, e)
		}
		if err := r.store.ClearAll(ctx); err != nil {
			return core.FailureResult(faultMessage(err))
		}
		if err := r.store.InsertMany(ctx, records); err != nil {
			return core.FailureResult(faultMessage(err))
		}
		return core.SuccessResult(fmt.Sprintf("%d expenses", len(records)))
	})
}

// run reports Loading, executes op detached from ctx's cancellation and
// reports its terminal result. The returned channel never blocks the
// operation and is closed after the terminal result.
func (r *Reconciler) run(ctx context.Context, op string, fn func(context.Context) core.Result) <-chan core.Result {
	out := make(chan core.Result, 2)
	loading := core.LoadingResult()
	out <- loading
	r.status.Set(loading)

	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(out)

		start := time.Now()
		res := r.safely(ctx, op, fn)

		fields := applog.NewFields().
			WithOperation(op).
			WithResult(res)
		if res.LocalID != 0 {
			fields[applog.FieldLocalID] = res.LocalID
		}
		fields[applog.FieldDuration] = time.Since(start).Milliseconds()
		if res.Kind == core.Failure {
			r.logger.WarnContext(ctx, "Expense operation failed", fields.ToSlice()...)
		} else {
			r.logger.InfoContext(ctx, "Expense operation completed", fields.ToSlice()...)
		}

		r.status.Set(res)
		r.publish(ctx, op, res)
		out <- res
	}()
	return out
}

func (r *Reconciler) safely(ctx context.Context, op string, fn func(context.Context) core.Result) (res core.Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "Expense operation panicked", applog.FieldOperation, op, "panic", p)
			res = core.FailureResult(genericFailure)
		}
	}()
	return fn(ctx)
}

func (r *Reconciler) publish(ctx context.Context, op string, res core.Result) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishResult(ctx, amqp.NewResultEvent(op, res)); err != nil {
		// The feed is informational; the operation already finished.
		r.logger.WarnContext(ctx, "Failed to publish result event", applog.FieldOperation, op, applog.FieldError, err)
	}
}

func (r *Reconciler) callRemote(ctx context.Context, call func(context.Context) (remote.Expense, error)) (remote.Expense, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return call(ctx)
}

func (r *Reconciler) callRemoteList(ctx context.Context) ([]remote.Expense, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.remote.List(ctx)
}

func failureFor(localID int64, err error) core.Result {
	res := core.FailureResult(faultMessage(err))
	res.LocalID = localID
	return res
}

// faultMessage is the user-facing text for err. HTTP faults report the
// server's own message when it sent one.
func faultMessage(err error) string {
	var se *remote.StatusError
	if errors.As(err, &se) && se.Body != "" {
		return se.Body
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return genericFailure
}
