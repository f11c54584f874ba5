package prefs

import (
	"context"
	"errors"
	"testing"

	"elcedro/backend/internal/domain"
)

func TestMemoryStoreSeeded(t *testing.T) {
	s := NewMemoryStore()
	views, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Fatalf("seeded views = %d, want 2", len(views))
	}
	if views[0].Name != "general-por-familia" || views[1].Name != "vista-general" {
		t.Fatalf("views not sorted by name: %s, %s", views[0].Name, views[1].Name)
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	v := SavedView{
		Name: "express-2024",
		Spec: domain.FilterSpec{Year: 2024, MonthStart: 1, MonthEnd: 12, Branch: domain.BranchExpress}.Normalize(),
	}
	if err := s.Put(ctx, v); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "express-2024")
	if err != nil {
		t.Fatal(err)
	}
	if got.Spec.Branch != domain.BranchExpress || got.UpdatedAt.IsZero() {
		t.Fatalf("round trip failed: %+v", got)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Delete(ctx, "vista-general"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "vista-general"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing: err = %v, want ErrNotFound", err)
	}
}
