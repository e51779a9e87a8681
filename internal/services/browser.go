package services

import (
	"context"
	"fmt"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/live"
)

// BrowseStore is the read side of the local repository.
type BrowseStore interface {
	WatchFilter(f core.Filter) *live.Query[[]core.Expense]
	WatchFilterTotal(f core.Filter) *live.Query[core.Money]
	WatchCategories() *live.Query[[]string]
	WatchCategoryCounts() *live.Query[[]core.CategoryCount]
}

// Browser derives the visible state from the active filter: the records it
// selects, their total, the category list and per-category counts.
type Browser struct {
	store  BrowseStore
	filter *live.Value[core.Filter]
}

func NewBrowser(store BrowseStore) *Browser {
	return &Browser{store: store, filter: live.NewValue(core.AllFilter())}
}

func (b *Browser) Filter() core.Filter {
	return b.filter.Get()
}

// SetFilter makes f the active filter. Open Expenses and Total streams
// switch to it before SetFilter returns.
func (b *Browser) SetFilter(f core.Filter) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("set filter: %w", err)
	}
	b.filter.Set(f)
	return nil
}

// SelectCategory filters by category; "all" or an empty name clears it.
// The free-text query is kept.
func (b *Browser) SelectCategory(category string) {
	b.filter.Update(func(cur core.Filter) core.Filter {
		return core.CategoryFilter(category).WithQuery(cur.Query)
	})
}

// SelectRange filters by occurrence time, both ends inclusive.
func (b *Browser) SelectRange(start, end time.Time) error {
	f := core.RangeFilter(start, end)
	if err := f.Validate(); err != nil {
		return fmt.Errorf("select range: %w", err)
	}
	b.filter.Update(func(cur core.Filter) core.Filter {
		return f.WithQuery(cur.Query)
	})
	return nil
}

// Search sets the free-text query matched against description and category.
func (b *Browser) Search(q string) {
	b.filter.Update(func(cur core.Filter) core.Filter {
		return cur.WithQuery(q)
	})
}

// Expenses streams the records selected by the active filter.
func (b *Browser) Expenses(ctx context.Context) <-chan []core.Expense {
	return live.Switch(ctx, b.filter, func(f core.Filter) live.Stream[[]core.Expense] {
		return live.Map[[]core.Expense](b.store.WatchFilter(f), f.Apply)
	})
}

// Total streams the amount total for the store query behind the active
// filter. The free-text query does not narrow it.
func (b *Browser) Total(ctx context.Context) <-chan core.Money {
	return live.Switch(ctx, b.filter, func(f core.Filter) live.Stream[core.Money] {
		return b.store.WatchFilterTotal(f)
	})
}

// Categories streams the category picker entries, "all" first.
func (b *Browser) Categories(ctx context.Context) <-chan []string {
	return live.Map[[]string](b.store.WatchCategories(), withAll).Subscribe(ctx)
}

func (b *Browser) Counts(ctx context.Context) <-chan []core.CategoryCount {
	return b.store.WatchCategoryCounts().Subscribe(ctx)
}

// Summary takes one snapshot of the aggregates for the active filter.
func (b *Browser) Summary(ctx context.Context) (core.Summary, error) {
	return b.SummaryFor(ctx, b.filter.Get())
}

// SummaryFor takes one snapshot of the aggregates for f.
func (b *Browser) SummaryFor(ctx context.Context, f core.Filter) (core.Summary, error) {
	if err := f.Validate(); err != nil {
		return core.Summary{}, err
	}
	total, err := b.store.WatchFilterTotal(f).Get(ctx)
	if err != nil {
		return core.Summary{}, fmt.Errorf("total: %w", err)
	}
	cats, err := b.store.WatchCategories().Get(ctx)
	if err != nil {
		return core.Summary{}, fmt.Errorf("categories: %w", err)
	}
	counts, err := b.store.WatchCategoryCounts().Get(ctx)
	if err != nil {
		return core.Summary{}, fmt.Errorf("category counts: %w", err)
	}
	return core.Summary{Filter: f, Total: total, Categories: withAll(cats), Counts: counts}, nil
}

// List takes one snapshot of the records selected by f, independent of the
// active filter.
func (b *Browser) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	list, err := b.store.WatchFilter(f).Get(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(list), nil
}

// Watch streams the records selected by a fixed filter.
func (b *Browser) Watch(ctx context.Context, f core.Filter) <-chan []core.Expense {
	return live.Map[[]core.Expense](b.store.WatchFilter(f), f.Apply).Subscribe(ctx)
}

// WatchTotal streams the total for a fixed filter.
func (b *Browser) WatchTotal(ctx context.Context, f core.Filter) <-chan core.Money {
	return b.store.WatchFilterTotal(f).Subscribe(ctx)
}

func withAll(cats []string) []string {
	out := make([]string, 0, len(cats)+1)
	out = append(out, core.AllCategories)
	for _, c := range cats {
		if c != core.AllCategories {
			out = append(out, c)
		}
	}
	return out
}
