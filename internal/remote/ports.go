// Package remote defines the port to the remote expenses collection and the
// wire shape shared by its adapters.
package remote

import (
	"context"
	"errors"
	"fmt"

	"expensetracker/internal/core"

	"github.com/shopspring/decimal"
)

// Remote is CRUD over a single "expenses" collection keyed by server ids.
type Remote interface {
	List(ctx context.Context) ([]Expense, error)
	// Create stores e and returns the created record, including the
	// server-assigned id when the server reports one.
	Create(ctx context.Context, e Expense) (Expense, error)
	Update(ctx context.Context, id string, e Expense) error
	Delete(ctx context.Context, id string) error
}

var (
	ErrNotFound = errors.New("remote expense not found")
	// ErrNoRemoteID reports a record that was never synced, or a create
	// response that carried no server id. Its text is user-facing.
	ErrNoRemoteID = errors.New("No Remote Id")
)

// StatusError is returned by HTTP adapters for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Expense is the remote representation of a record.
type Expense struct {
	ID          string `json:"id,omitempty"`
	Amount      Amount `json:"amount"`
	Category    string `json:"category"`
	Date        int64  `json:"date"` // milliseconds since epoch
	Description string `json:"description"`
}

// Amount is a decimal encoded as a bare JSON number.
type Amount struct {
	decimal.Decimal
}

func NewAmount(m core.Money) Amount {
	return Amount{Decimal: m.Decimal()}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON accepts both numbers and quoted decimal strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.Decimal.UnmarshalJSON(b)
}

// FromCore maps a local record to its remote shape. The local id never leaves the device.
func FromCore(e core.Expense) Expense {
	return Expense{
		ID:          e.RemoteID,
		Amount:      NewAmount(e.Amount),
		Category:    e.Category,
		Date:        e.OccurredAtMillis(),
		Description: e.Description,
	}
}

// ToCore maps a remote record to the local shape; the server id becomes RemoteID.
func (e Expense) ToCore() (core.Expense, error) {
	m, err := core.MoneyFromDecimal(e.Amount.Decimal)
	if err != nil {
		return core.Expense{}, fmt.Errorf("remote expense %s: %w", e.ID, err)
	}
	return core.Expense{
		RemoteID:    e.ID,
		Amount:      m,
		Category:    core.NormalizeCategory(e.Category),
		Description: e.Description,
		OccurredAt:  core.FromMillis(e.Date),
	}, nil
}
