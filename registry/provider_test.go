package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/offcache/provider/memory"
)

func TestInProviderSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	p := memory.New()

	first := NewInProvider(p, "app", nil)
	for _, n := range []string{"v2", "v1"} {
		if err := first.Put(ctx, Meta{Name: n, ID: "pop-" + n, Keys: []string{"https://app.test/"}, CreatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	if err := first.Put(ctx, Meta{Name: "v1"}); !errors.Is(err, ErrExists) {
		t.Fatalf("second put err=%v want ErrExists", err)
	}

	second := NewInProvider(p, "app", nil)
	names, err := second.Names(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "v1" || names[1] != "v2" {
		t.Fatalf("names=%v", names)
	}
	m, ok, err := second.Get(ctx, "v2")
	if err != nil || !ok || m.ID != "pop-v2" || len(m.Keys) != 1 {
		t.Fatalf("get v2: %+v ok=%v err=%v", m, ok, err)
	}

	if err := second.Delete(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := second.Delete(ctx, "v1"); err != nil {
		t.Fatalf("deleting a missing name: %v", err)
	}
	names, _ = first.Names(ctx)
	if len(names) != 1 || names[0] != "v2" {
		t.Fatalf("names after delete=%v", names)
	}

	other := NewInProvider(p, "other", nil)
	if names, _ := other.Names(ctx); len(names) != 0 {
		t.Fatalf("namespaces leak: %v", names)
	}
}
