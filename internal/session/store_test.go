package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/learnpath/internal/wizard"
)

func TestMemoryStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	st := wizard.State{
		Step:       wizard.StepModuleSelection,
		Topic:      "Tides",
		GradeLevel: "Grade 6",
		Modules:    []wizard.Module{{Title: "Moon", Description: "Gravity"}},
	}
	if err := s.Save(ctx, "a", st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutating the caller's copy must not reach the store.
	st.Modules[0].Title = "changed"

	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Modules[0].Title != "Moon" || got.Topic != "Tides" {
		t.Errorf("Load() = %+v", got)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore(10 * time.Minute)
	s.now = func() time.Time { return now }

	_ = s.Save(ctx, "a", wizard.State{Topic: "Tides"})
	_ = s.Save(ctx, "b", wizard.State{Topic: "Waves"})

	now = now.Add(6 * time.Minute)
	// Saving refreshes the TTL.
	_ = s.Save(ctx, "b", wizard.State{Topic: "Waves"})

	now = now.Add(5 * time.Minute)
	if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(a) error = %v, want ErrNotFound after expiry", err)
	}
	if _, err := s.Load(ctx, "b"); err != nil {
		t.Errorf("Load(b) error = %v, want refreshed entry", err)
	}

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore(0)
	s.now = func() time.Time { return now }

	_ = s.Save(ctx, "a", wizard.State{})
	now = now.Add(365 * 24 * time.Hour)

	if _, err := s.Load(ctx, "a"); err != nil {
		t.Errorf("Load() error = %v", err)
	}
	if n := s.Sweep(); n != 0 {
		t.Errorf("Sweep() = %d, want 0", n)
	}
}
