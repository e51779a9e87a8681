package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"expensetracker/internal/core"
	"expensetracker/internal/live"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound         = errors.New("expense not found")
	ErrRemoteIDAssigned = errors.New("remote id already assigned")
	ErrMemoryDatabase   = errors.New("in-memory databases are not supported")
)

// SQLiteRepository is the local store of expense records. Every committed
// write bumps the change source so open watches re-emit.
type SQLiteRepository struct {
	db      *sql.DB
	changes *live.Source
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath == "" || dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		// Migrations run on their own connection and would not see the data.
		return nil, ErrMemoryDatabase
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the first query
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers; SQLite gives row-level
	// atomicity per statement on top of that.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		changes: live.NewSource(),
	}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Changes exposes the notification source shared by every watch.
func (r *SQLiteRepository) Changes() *live.Source {
	return r.changes
}

// Insert stores a new record and returns the local id assigned to it.
// LocalID on the input is ignored.
func (r *SQLiteRepository) Insert(ctx context.Context, e core.Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx, insertExpense,
		e.Amount.Cents, e.Description, e.Category, e.OccurredAtMillis(), nullString(e.RemoteID))
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}
	r.changes.Notify()

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"local_id", id,
		"amount_cents", e.Amount.Cents,
		"category", e.Category)

	return id, nil
}

// Update overwrites the mutable fields of the record identified by LocalID.
// The remote id is left untouched; it is assigned through SetRemoteID only.
func (r *SQLiteRepository) Update(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx, updateExpense,
		e.Amount.Cents, e.Description, e.Category, e.OccurredAtMillis(), e.LocalID)
	if err != nil {
		return fmt.Errorf("update expense %d: %w", e.LocalID, err)
	}
	if err := expectOneRow(res, e.LocalID); err != nil {
		return err
	}
	r.changes.Notify()
	return nil
}

// Delete removes the record identified by LocalID.
func (r *SQLiteRepository) Delete(ctx context.Context, e core.Expense) error {
	res, err := r.db.ExecContext(ctx, deleteExpense, e.LocalID)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", e.LocalID, err)
	}
	if err := expectOneRow(res, e.LocalID); err != nil {
		return err
	}
	r.changes.Notify()
	return nil
}

// SetRemoteID records the server id of a record. It succeeds only once per record.
func (r *SQLiteRepository) SetRemoteID(ctx context.Context, localID int64, remoteID string) error {
	if remoteID == "" {
		return fmt.Errorf("set remote id for %d: empty remote id", localID)
	}
	res, err := r.db.ExecContext(ctx, setRemoteID, remoteID, localID)
	if err != nil {
		return fmt.Errorf("set remote id for %d: %w", localID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set remote id for %d: %w", localID, err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, localID); err != nil {
			return err
		}
		return fmt.Errorf("set remote id for %d: %w", localID, ErrRemoteIDAssigned)
	}
	r.changes.Notify()

	slog.InfoContext(ctx, "Expense linked to remote record", "local_id", localID, "remote_id", remoteID)
	return nil
}

// ClearAll removes every local record.
func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, clearExpenses); err != nil {
		return fmt.Errorf("clear expenses: %w", err)
	}
	r.changes.Notify()
	return nil
}

// InsertMany stores all records in one transaction.
func (r *SQLiteRepository) InsertMany(ctx context.Context, list []core.Expense) error {
	if len(list) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert many: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertExpense)
	if err != nil {
		return fmt.Errorf("prepare insert many: %w", err)
	}
	defer stmt.Close()

	for i, e := range list {
		if _, err := stmt.ExecContext(ctx,
			e.Amount.Cents, e.Description, e.Category, e.OccurredAtMillis(), nullString(e.RemoteID)); err != nil {
			return fmt.Errorf("insert expense %d of %d: %w", i+1, len(list), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert many: %w", err)
	}
	r.changes.Notify()

	slog.InfoContext(ctx, "Expenses inserted", "count", len(list))
	return nil
}

// Get returns a single record by local id.
func (r *SQLiteRepository) Get(ctx context.Context, localID int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, selectExpense, localID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", localID, ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", localID, err)
	}
	return e, nil
}

// ListAll returns every record, newest first.
func (r *SQLiteRepository) ListAll(ctx context.Context) ([]core.Expense, error) {
	return r.list(ctx, selectAll)
}

// ListByCategory returns the records of one category, newest first.
func (r *SQLiteRepository) ListByCategory(ctx context.Context, category string) ([]core.Expense, error) {
	return r.list(ctx, selectByCategory, category)
}

// ListInRange returns the records whose timestamp falls in [startMs, endMs].
func (r *SQLiteRepository) ListInRange(ctx context.Context, startMs, endMs int64) ([]core.Expense, error) {
	return r.list(ctx, selectInRange, startMs, endMs)
}

// Categories returns the distinct categories in alphabetical order.
func (r *SQLiteRepository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, selectCategories)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Total sums every amount.
func (r *SQLiteRepository) Total(ctx context.Context) (core.Money, error) {
	return r.sum(ctx, sumAll)
}

// CategoryTotal sums the amounts of one category.
func (r *SQLiteRepository) CategoryTotal(ctx context.Context, category string) (core.Money, error) {
	return r.sum(ctx, sumByCategory, category)
}

// RangeTotal sums the amounts in [startMs, endMs].
func (r *SQLiteRepository) RangeTotal(ctx context.Context, startMs, endMs int64) (core.Money, error) {
	return r.sum(ctx, sumInRange, startMs, endMs)
}

// CategoryCounts returns the number of records per category.
func (r *SQLiteRepository) CategoryCounts(ctx context.Context) ([]core.CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx, countByCategory)
	if err != nil {
		return nil, fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()

	out := []core.CategoryCount{}
	for rows.Next() {
		var cc core.CategoryCount
		if err := rows.Scan(&cc.Name, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) sum(ctx context.Context, query string, args ...any) (core.Money, error) {
	var cents int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&cents); err != nil {
		return core.Money{}, fmt.Errorf("sum amounts: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

func expectOneRow(res sql.Result, localID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %d: %w", localID, err)
	}
	if n == 0 {
		return fmt.Errorf("expense %d: %w", localID, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
