package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
)

func TestRoundTripAndUpsert(t *testing.T) {
	ctx := context.Background()
	p, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, ok, err := p.Get(ctx, "entry:ns:v1:abc"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	val := []byte{0x4f, 0x46, 0x46, 0x43, 0x00, 0xff}
	if ok, err := p.Set(ctx, "entry:ns:v1:abc", val, 6, 0); !ok || err != nil {
		t.Fatalf("set ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "entry:ns:v1:abc")
	if err != nil || !ok || !bytes.Equal(got, val) {
		t.Fatalf("get=%x ok=%v err=%v", got, ok, err)
	}

	if _, err := p.Set(ctx, "entry:ns:v1:abc", []byte("new"), 3, 0); err != nil {
		t.Fatal(err)
	}
	got, _, _ = p.Get(ctx, "entry:ns:v1:abc")
	if string(got) != "new" {
		t.Fatalf("upsert lost: %q", got)
	}

	if err := p.Del(ctx, "entry:ns:v1:abc"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := p.Get(ctx, "entry:ns:v1:abc"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "offcache.db")

	p, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Set(ctx, "k", []byte("kept"), 4, 0); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(ctx); err != nil {
		t.Fatal(err)
	}

	p, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)
	got, ok, err := p.Get(ctx, "k")
	if err != nil || !ok || string(got) != "kept" {
		t.Fatalf("get=%q ok=%v err=%v", got, ok, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Fatal("expected error")
	}
}
