package wire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func mustDecodeEntry(t *testing.T, b []byte) (string, []byte) {
	t.Helper()
	name, p, err := DecodeEntry(b)
	if err != nil {
		t.Fatalf("DecodeEntry error: %v", err)
	}
	return name, p
}

func TestEntryRTEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"v1", nil},
		{"stop-motion-cache-v1", []byte("hello")},
		{strings.Repeat("x", maxNameLen), []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		enc := EncodeEntry(tc.name, tc.payload)
		name, p := mustDecodeEntry(t, enc)
		if name != tc.name {
			t.Fatalf("name mismatch: got %q want %q", name, tc.name)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestEntryRejectsTrailingBytes(t *testing.T) {
	enc := EncodeEntry("v7", []byte("x"))
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, _, err := DecodeEntry(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestEntryCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeEntry("v1", []byte("abc"))

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := DecodeEntry(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := DecodeEntry(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// wrong kind
	badKind := append([]byte(nil), enc...)
	badKind[5] = kindEntry + 1
	if _, _, err := DecodeEntry(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// name length past the end
	badName := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badName[6:8], 0xFFFF)
	if _, _, err := DecodeEntry(badName); err == nil {
		t.Fatalf("expected error on oversized name length")
	}

	// zero name length
	zeroName := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(zeroName[6:8], 0)
	if _, _, err := DecodeEntry(zeroName); err == nil {
		t.Fatalf("expected error on empty name")
	}

	// payload length larger than remaining bytes
	badLen := append([]byte(nil), enc...)
	off := 8 + len("v1")
	binary.BigEndian.PutUint32(badLen[off:off+4], 1<<20)
	if _, _, err := DecodeEntry(badLen); err == nil {
		t.Fatalf("expected error on oversized payload length")
	}

	// truncated before vlen
	if _, _, err := DecodeEntry(enc[:off+2]); err == nil {
		t.Fatalf("expected error on truncated header")
	}
}

func TestEncodeEntryNameValidation(t *testing.T) {
	for _, name := range []string{"", strings.Repeat("n", maxNameLen+1)} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic for name length %d", len(name))
				}
			}()
			_ = EncodeEntry(name, []byte("p"))
		}()
	}
}

func TestDecodeEntryPayloadAliasesInput(t *testing.T) {
	enc := EncodeEntry("v1", []byte("abc"))
	_, p := mustDecodeEntry(t, enc)
	if len(p) != 3 || &p[0] != &enc[len(enc)-3] {
		t.Fatalf("payload should be a sub-slice of the input")
	}
}
