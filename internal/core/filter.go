package core

import (
	"errors"
	"strings"
	"time"
)

// FilterMode selects which store query backs the expense list.
type FilterMode string

const (
	FilterAll      FilterMode = "all"
	FilterCategory FilterMode = "category"
	FilterRange    FilterMode = "range"
)

// AllCategories is the pseudo-category shown first in category pickers.
const AllCategories = "all"

// Filter is the active browsing selection. Query is matched locally after
// the store query returns and is never pushed down to SQL.
type Filter struct {
	Mode     FilterMode
	Category string
	Start    time.Time
	End      time.Time
	Query    string
}

var ErrInvalidRange = errors.New("range end before start")

func AllFilter() Filter { return Filter{Mode: FilterAll} }

func CategoryFilter(category string) Filter {
	c := NormalizeCategory(category)
	if c == "" || c == AllCategories {
		return AllFilter()
	}
	return Filter{Mode: FilterCategory, Category: c}
}

func RangeFilter(start, end time.Time) Filter {
	return Filter{Mode: FilterRange, Start: start, End: end}
}

// WithQuery returns a copy of f carrying a free-text query.
func (f Filter) WithQuery(q string) Filter {
	f.Query = q
	return f
}

func (f Filter) Validate() error {
	switch f.Mode {
	case FilterAll:
	case FilterCategory:
		if f.Category == "" {
			return ErrEmptyCategory
		}
	case FilterRange:
		if f.End.Before(f.Start) {
			return ErrInvalidRange
		}
	default:
		return errors.New("unknown filter mode: " + string(f.Mode))
	}
	return nil
}

// Matches is the case-sensitive substring match on description or category.
func (f Filter) Matches(e Expense) bool {
	if f.Query == "" {
		return true
	}
	return strings.Contains(e.Description, f.Query) || strings.Contains(e.Category, f.Query)
}

// Apply keeps the records matching the free-text query, preserving order.
func (f Filter) Apply(in []Expense) []Expense {
	if f.Query == "" {
		return in
	}
	out := make([]Expense, 0, len(in))
	for _, e := range in {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
