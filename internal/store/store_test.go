package store

import (
	"context"
	"path/filepath"
	"testing"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			for _, kind := range AllKinds() {
				want := "value-" + string(kind)
				if err := s.Save(ctx, kind, want); err != nil {
					t.Fatalf("Save(%s) error = %v", kind, err)
				}
				got, ok, err := s.Load(ctx, kind)
				if err != nil || !ok {
					t.Fatalf("Load(%s) = %q, %v, %v; want present", kind, got, ok, err)
				}
				if got != want {
					t.Fatalf("Load(%s) = %q, want %q", kind, got, want)
				}
			}
		})
	}
}

func TestLoadAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Load(ctx, KindPrimaryToken)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if ok {
				t.Fatal("Load() reported presence for an empty store")
			}
		})
	}
}

func TestClearAllRemovesEveryKind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			for _, kind := range AllKinds() {
				if err := s.Save(ctx, kind, "x"); err != nil {
					t.Fatalf("Save(%s) error = %v", kind, err)
				}
			}
			if err := s.ClearAll(ctx); err != nil {
				t.Fatalf("ClearAll() error = %v", err)
			}
			for _, kind := range AllKinds() {
				if _, ok, _ := s.Load(ctx, kind); ok {
					t.Fatalf("kind %s survived ClearAll", kind)
				}
			}
		})
	}
}

func TestClearSubsetLeavesRest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			for _, kind := range AllKinds() {
				if err := s.Save(ctx, kind, "x"); err != nil {
					t.Fatalf("Save(%s) error = %v", kind, err)
				}
			}
			if err := s.Clear(ctx, ProfileKinds()...); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}

			for _, kind := range ProfileKinds() {
				if _, ok, _ := s.Load(ctx, kind); ok {
					t.Fatalf("profile kind %s survived Clear", kind)
				}
			}
			for _, kind := range []Kind{KindPrimaryToken, KindCachedAccount} {
				if _, ok, _ := s.Load(ctx, kind); !ok {
					t.Fatalf("primary kind %s was removed by a profile-scoped Clear", kind)
				}
			}
		})
	}
}

func TestLastWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			if err := s.Save(ctx, KindProfileToken, "old"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := s.Save(ctx, KindProfileToken, "new"); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			got, _, _ := s.Load(ctx, KindProfileToken)
			if got != "new" {
				t.Fatalf("Load() = %q after overwrite, want %q", got, "new")
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := first.Save(ctx, KindPrimaryToken, "persisted"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	got, ok, err := second.Load(ctx, KindPrimaryToken)
	if err != nil || !ok || got != "persisted" {
		t.Fatalf("Load() after reopen = %q, %v, %v; want %q", got, ok, err, "persisted")
	}
}
