package util

import (
	"strings"
	"testing"
)

func TestEntryKey(t *testing.T) {
	k := EntryKey("entry:offcache:v1", "https://app.test/index.html")
	if !strings.HasPrefix(k, "entry:offcache:v1:") {
		t.Fatalf("key %q lost its prefix", k)
	}
	if n := len(k) - len("entry:offcache:v1:"); n != 16 {
		t.Fatalf("hash part has %d chars, want 16", n)
	}
	if k != EntryKey("entry:offcache:v1", "https://app.test/index.html") {
		t.Fatal("key is not stable")
	}
	if k == EntryKey("entry:offcache:v1", "https://app.test/app.css") {
		t.Fatal("different identities collide")
	}
	if k == EntryKey("entry:offcache:v2", "https://app.test/index.html") {
		t.Fatal("generations share keys")
	}
}
