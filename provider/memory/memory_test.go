package memory

import (
	"context"
	"testing"
	"time"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p := New()

	buf := []byte("frame-01")
	if ok, err := p.Set(ctx, "k", buf, int64(len(buf)), 0); !ok || err != nil {
		t.Fatalf("set ok=%v err=%v", ok, err)
	}
	buf[0] = 'X' // caller mutation must not leak into the store

	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(got) != "frame-01" {
		t.Fatalf("get=%q ok=%v err=%v", got, ok, err)
	}

	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("deleting a missing key: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
	if p.Len() != 0 {
		t.Fatalf("len=%d", p.Len())
	}
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	p := New()
	_, _ = p.Set(ctx, "short", []byte("x"), 1, time.Millisecond)
	_, _ = p.Set(ctx, "forever", []byte("y"), 1, 0)
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := p.Get(ctx, "short"); ok {
		t.Fatal("expired entry served")
	}
	if _, ok, _ := p.Get(ctx, "forever"); !ok {
		t.Fatal("ttl=0 entry expired")
	}
}
