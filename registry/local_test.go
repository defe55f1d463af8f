package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalNamesSortedAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()
	t.Cleanup(func() { _ = s.Close(ctx) })

	for _, n := range []string{"v2", "v1", "v10"} {
		if err := s.Put(ctx, Meta{Name: n, Keys: []string{"https://app.test/" + n}, CreatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	names, err := s.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"v1", "v10", "v2"}
	if len(names) != len(want) {
		t.Fatalf("names=%v want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names=%v want %v", names, want)
		}
	}

	m, ok, err := s.Get(ctx, "v10")
	if err != nil || !ok {
		t.Fatalf("Get v10: ok=%v err=%v", ok, err)
	}
	if len(m.Keys) != 1 || m.Keys[0] != "https://app.test/v10" {
		t.Fatalf("unexpected keys %v", m.Keys)
	}

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing: ok=%v err=%v", ok, err)
	}
}

func TestLocalPutRejectsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()

	if err := s.Put(ctx, Meta{Name: "v1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, Meta{Name: "v1", Keys: []string{"x"}}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	m, _, _ := s.Get(ctx, "v1")
	if len(m.Keys) != 0 {
		t.Fatalf("existing generation was mutated: %v", m.Keys)
	}
}

func TestLocalGetDoesNotAliasStoredKeys(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()

	in := []string{"a", "b"}
	if err := s.Put(ctx, Meta{Name: "v1", Keys: in}); err != nil {
		t.Fatal(err)
	}
	in[0] = "mutated"

	m, _, _ := s.Get(ctx, "v1")
	if m.Keys[0] != "a" {
		t.Fatalf("stored keys alias caller slice: %v", m.Keys)
	}
	m.Keys[1] = "mutated"
	m2, _, _ := s.Get(ctx, "v1")
	if m2.Keys[1] != "b" {
		t.Fatalf("Get result aliases stored keys: %v", m2.Keys)
	}
}

func TestLocalDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewLocal()

	if err := s.Put(ctx, Meta{Name: "v1"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, "v1"); err != nil {
			t.Fatalf("Delete #%d: %v", i, err)
		}
	}
	names, _ := s.Names(ctx)
	if len(names) != 0 {
		t.Fatalf("expected empty registry, got %v", names)
	}
}
