package aof

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nubdb/nubdb/pkg/config"
)

func tempLogPath(t *testing.T) string {
	dir, err := os.MkdirTemp("", "aof_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "test.aof")
}

func TestAppendAndForceFlush(t *testing.T) {
	path := tempLogPath(t)
	cfg := config.NewDefaultConfig(path)
	cfg.FlushPolicy = config.FlushEveryNOps
	cfg.FlushEveryNOps = 1000 // effectively disable auto-flush for this test

	w, err := NewWriter(path, cfg)
	if err != nil {
		t.Fatalf("failed to open writer: %v", err)
	}

	if err := w.Append(OpSet, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if w.OpsSinceFlush() != 1 {
		t.Fatalf("expected 1 op since flush, got %d", w.OpsSinceFlush())
	}

	if err := w.ForceFlush(); err != nil {
		t.Fatalf("force flush failed: %v", err)
	}
	if w.OpsSinceFlush() != 0 {
		t.Fatalf("expected 0 ops since flush after ForceFlush, got %d", w.OpsSinceFlush())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if int64(len(data)) != Size([]byte("k1"), []byte("v1")) {
		t.Errorf("expected file size %d, got %d", Size([]byte("k1"), []byte("v1")), len(data))
	}
}

func TestFlushEveryNOpsResetsCounter(t *testing.T) {
	path := tempLogPath(t)
	cfg := config.NewDefaultConfig(path)
	cfg.FlushPolicy = config.FlushEveryNOps
	cfg.FlushEveryNOps = 3

	w, err := NewWriter(path, cfg)
	if err != nil {
		t.Fatalf("failed to open writer: %v", err)
	}
	defer w.Close()

	for i := 0; i < 2; i++ {
		if err := w.Append(OpSet, []byte("k"), []byte("v")); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if w.OpsSinceFlush() != 2 {
		t.Fatalf("expected 2 ops since flush, got %d", w.OpsSinceFlush())
	}

	if err := w.Append(OpSet, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if w.OpsSinceFlush() != 0 {
		t.Fatalf("expected flush to have reset counter, got %d", w.OpsSinceFlush())
	}
}

func TestAppendOrdering(t *testing.T) {
	path := tempLogPath(t)
	cfg := config.NewDefaultConfig(path)
	cfg.FlushPolicy = config.FlushAlways

	w, err := NewWriter(path, cfg)
	if err != nil {
		t.Fatalf("failed to open writer: %v", err)
	}

	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		if err := w.Append(OpSet, []byte(k), []byte("v")); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to reopen log: %v", err)
	}
	defer file.Close()

	for _, want := range keys {
		frame, err := Decode(file)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if string(frame.Key) != want {
			t.Fatalf("expected key %q in order, got %q", want, frame.Key)
		}
	}
}

func TestRotate(t *testing.T) {
	path := tempLogPath(t)
	cfg := config.NewDefaultConfig(path)
	cfg.FlushPolicy = config.FlushAlways

	w, err := NewWriter(path, cfg)
	if err != nil {
		t.Fatalf("failed to open writer: %v", err)
	}
	defer w.Close()

	if err := w.Append(OpSet, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	tempPath := path + ".tmp"
	frame, err := Encode(0, OpSet, []byte("k2"), []byte("v2"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := os.WriteFile(tempPath, frame, 0644); err != nil {
		t.Fatalf("failed to write replacement log: %v", err)
	}

	if err := w.Rotate(tempPath); err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if w.LogSizeBytes() != int64(len(frame)) {
		t.Fatalf("expected log size %d after rotate, got %d", len(frame), w.LogSizeBytes())
	}
	if w.OpsSinceFlush() != 0 {
		t.Fatalf("expected ops-since-flush reset after rotate, got %d", w.OpsSinceFlush())
	}

	if err := w.Append(OpSet, []byte("k3"), []byte("v3")); err != nil {
		t.Fatalf("append after rotate failed: %v", err)
	}
}
