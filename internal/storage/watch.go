package storage

import (
	"context"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/live"
)

// Live variants of the read operations. Each returned query emits its
// current result on subscribe and again after every committed write.

func (r *SQLiteRepository) WatchAll() *live.Query[[]core.Expense] {
	return live.NewQuery("expenses.all", r.changes, r.ListAll)
}

func (r *SQLiteRepository) WatchCategory(category string) *live.Query[[]core.Expense] {
	return live.NewQuery("expenses.category", r.changes, func(ctx context.Context) ([]core.Expense, error) {
		return r.ListByCategory(ctx, category)
	})
}

func (r *SQLiteRepository) WatchRange(start, end time.Time) *live.Query[[]core.Expense] {
	return live.NewQuery("expenses.range", r.changes, func(ctx context.Context) ([]core.Expense, error) {
		return r.ListInRange(ctx, start.UnixMilli(), end.UnixMilli())
	})
}

func (r *SQLiteRepository) WatchCategories() *live.Query[[]string] {
	return live.NewQuery("expenses.categories", r.changes, r.Categories)
}

func (r *SQLiteRepository) WatchTotal() *live.Query[core.Money] {
	return live.NewQuery("expenses.total", r.changes, r.Total)
}

func (r *SQLiteRepository) WatchCategoryTotal(category string) *live.Query[core.Money] {
	return live.NewQuery("expenses.category_total", r.changes, func(ctx context.Context) (core.Money, error) {
		return r.CategoryTotal(ctx, category)
	})
}

func (r *SQLiteRepository) WatchRangeTotal(start, end time.Time) *live.Query[core.Money] {
	return live.NewQuery("expenses.range_total", r.changes, func(ctx context.Context) (core.Money, error) {
		return r.RangeTotal(ctx, start.UnixMilli(), end.UnixMilli())
	})
}

func (r *SQLiteRepository) WatchCategoryCounts() *live.Query[[]core.CategoryCount] {
	return live.NewQuery("expenses.category_counts", r.changes, r.CategoryCounts)
}

// WatchFilter picks the list query serving f. The free-text part of f is
// not applied here.
func (r *SQLiteRepository) WatchFilter(f core.Filter) *live.Query[[]core.Expense] {
	switch f.Mode {
	case core.FilterCategory:
		return r.WatchCategory(f.Category)
	case core.FilterRange:
		return r.WatchRange(f.Start, f.End)
	default:
		return r.WatchAll()
	}
}

// WatchFilterTotal picks the total query serving f.
func (r *SQLiteRepository) WatchFilterTotal(f core.Filter) *live.Query[core.Money] {
	switch f.Mode {
	case core.FilterCategory:
		return r.WatchCategoryTotal(f.Category)
	case core.FilterRange:
		return r.WatchRangeTotal(f.Start, f.End)
	default:
		return r.WatchTotal()
	}
}
