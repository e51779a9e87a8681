package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

type (
	Money struct {
		Cents int64
	}

	// Expense is the locally persisted record. The device copy is authoritative;
	// RemoteID stays empty until a remote create succeeds.
	Expense struct {
		LocalID     int64  // Assigned by the local store, never changed
		RemoteID    string // Server-assigned id, empty when never synced
		Amount      Money
		Description string
		Category    string
		OccurredAt  time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrZeroTimestamp    = errors.New("timestamp cannot be zero")
)

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Synced reports whether the record has ever been accepted by the remote.
func (e Expense) Synced() bool {
	return e.RemoteID != ""
}

// OccurredAtMillis returns the timestamp as milliseconds since the Unix epoch.
func (e Expense) OccurredAtMillis() int64 {
	return e.OccurredAt.UnixMilli()
}

// NormalizeCategory lower-cases and trims a category name.
func NormalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// Normalized returns a copy ready for a first local insert.
func (e Expense) Normalized() Expense {
	e.Category = NormalizeCategory(e.Category)
	e.Description = strings.TrimSpace(e.Description)
	e.OccurredAt = FromMillis(e.OccurredAt.UnixMilli())
	return e
}

// FromMillis converts milliseconds since epoch into a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

const maxDescriptionRunes = 200

func (e Expense) Validate() error {
	if e.OccurredAt.IsZero() {
		return ErrZeroTimestamp
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(e.Description) > maxDescriptionRunes {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if NormalizeCategory(e.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}
