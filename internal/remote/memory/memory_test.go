package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"expensetracker/internal/remote"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := New(WithSequentialIDs())

	created, err := s.Create(ctx, remote.Expense{Description: "Lunch", Category: "food", Date: 1})
	if err != nil || created.ID != "1" {
		t.Fatalf("unexpected create: %+v err=%v", created, err)
	}
	if _, err := s.Create(ctx, remote.Expense{Description: "Bus", Category: "transport", Date: 2}); err != nil {
		t.Fatal(err)
	}

	if err := s.Update(ctx, "1", remote.Expense{Description: "Dinner", Category: "food", Date: 3}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "1")
	if err != nil || got.Description != "Dinner" || got.ID != "1" {
		t.Fatalf("unexpected get: %+v err=%v", got, err)
	}

	if err := s.Delete(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	list, _ := s.List(ctx)
	if len(list) != 1 || list[0].ID != "1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := s.Update(ctx, "nope", remote.Expense{}); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, remote.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateKeepsFreeIDAndReplacesTakenOne(t *testing.T) {
	ctx := context.Background()
	s := New(WithIDFunc(func() string { return "generated" }))

	a, _ := s.Create(ctx, remote.Expense{ID: "mine"})
	b, _ := s.Create(ctx, remote.Expense{ID: "mine"})
	if a.ID != "mine" || b.ID != "generated" {
		t.Fatalf("unexpected ids %q %q", a.ID, b.ID)
	}
}

func TestSequentialIDsSkipSeededOnes(t *testing.T) {
	ctx := context.Background()
	s := New(WithSequentialIDs())

	if _, err := s.Create(ctx, remote.Expense{ID: "1", Description: "seeded"}); err != nil {
		t.Fatal(err)
	}
	created, err := s.Create(ctx, remote.Expense{Description: "new"})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != "2" {
		t.Fatalf("created id = %q, want 2", created.ID)
	}

	list, _ := s.List(ctx)
	if len(list) != 2 || list[0].Description != "seeded" || list[1].ID != "2" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestNewFromFileSeeds(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromFile(dir)
	if err != nil || s.Len() != 0 {
		t.Fatalf("expected empty store when seed missing: len=%d err=%v", s.Len(), err)
	}

	seed := `[{"amount":10,"category":"food","date":1,"description":"a"},{"id":"x","amount":"2.5","category":"home","date":2,"description":"b"}]`
	if err := os.WriteFile(filepath.Join(dir, "seed_expenses.json"), []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err = NewFromFile(dir, WithSequentialIDs())
	if err != nil {
		t.Fatal(err)
	}
	list, _ := s.List(context.Background())
	if len(list) != 2 || list[0].ID != "1" || list[1].ID != "x" {
		t.Fatalf("unexpected seeded list: %+v", list)
	}

	if err := os.WriteFile(filepath.Join(dir, "seed_expenses.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(dir); err == nil {
		t.Fatal("expected parse error")
	}
}
