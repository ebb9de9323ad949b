package aof

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nubdb/nubdb/pkg/hashindex"
)

func TestReplayEmptyLogYieldsEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.aof")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("failed to write empty log: %v", err)
	}

	idx := hashindex.New(16, 90)
	if err := Replay(path, idx); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if idx.Count() != 0 {
		t.Fatalf("expected empty index, got count %d", idx.Count())
	}
}

func TestReplayMissingLogYieldsEmptyIndex(t *testing.T) {
	idx := hashindex.New(16, 90)
	if err := Replay(filepath.Join(t.TempDir(), "does-not-exist.aof"), idx); err != nil {
		t.Fatalf("replay of missing log should not error, got: %v", err)
	}
	if idx.Count() != 0 {
		t.Fatalf("expected empty index, got count %d", idx.Count())
	}
}

func TestReplaySetAndDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	var data []byte
	appendFrame := func(op uint8, key, value string) {
		var v []byte
		if op != OpDelete {
			v = []byte(value)
		}
		frame, err := Encode(0, op, []byte(key), v)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		data = append(data, frame...)
	}

	appendFrame(OpSet, "a", "1")
	appendFrame(OpSet, "b", "2")
	appendFrame(OpSet, "a", "1-updated")
	appendFrame(OpDelete, "b", "")

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	idx := hashindex.New(16, 90)
	if err := Replay(path, idx); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	v, ok := idx.Get([]byte("a"))
	if !ok || string(v.Bytes) != "1-updated" {
		t.Fatalf("expected a=1-updated, got %v ok=%v", v, ok)
	}
	if _, ok := idx.Get([]byte("b")); ok {
		t.Fatal("expected b to be deleted")
	}
	if idx.Count() != 1 {
		t.Fatalf("expected count 1, got %d", idx.Count())
	}
}

// TestReplayTruncatedTrailingFrame verifies spec section 8's boundary
// case: a log truncated mid-frame (simulating a crash) yields exactly
// the entries that precede the truncated frame.
func TestReplayTruncatedTrailingFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	first, err := Encode(0, OpSet, []byte("complete"), []byte("value"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	second, err := Encode(0, OpSet, []byte("truncated"), []byte("value"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	data := append(first, second[:len(second)-5]...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	idx := hashindex.New(16, 90)
	if err := Replay(path, idx); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if _, ok := idx.Get([]byte("complete")); !ok {
		t.Fatal("expected complete entry to survive replay")
	}
	if _, ok := idx.Get([]byte("truncated")); ok {
		t.Fatal("expected truncated entry to be absent")
	}
	if idx.Count() != 1 {
		t.Fatalf("expected count 1, got %d", idx.Count())
	}
}

func TestReplayRejectsOversizedKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	oversizedKey := make([]byte, KeyMax+1)
	frame, err := Encode(0, OpSet, oversizedKey, []byte("v"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := os.WriteFile(path, frame, 0644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	idx := hashindex.New(16, 90)
	if err := Replay(path, idx); err == nil {
		t.Fatal("expected replay to fail on oversized key")
	}
}

func TestReplayRejectsUnknownOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	frame, err := Encode(0, OpSet, []byte("k"), []byte("v"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	frame[8] = 7
	if err := os.WriteFile(path, frame, 0644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}

	idx := hashindex.New(16, 90)
	if err := Replay(path, idx); err == nil {
		t.Fatal("expected replay to fail on unknown op")
	}
}
