package protocol

import (
	"path/filepath"
	"testing"

	"github.com/nubdb/nubdb/pkg/config"
	"github.com/nubdb/nubdb/pkg/engine"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.aof")
	cfg := config.NewDefaultConfig(path)
	cfg.FlushPolicy = config.FlushAlways
	e, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func run(eng *engine.Engine, line string) string {
	cmd, args := Tokenize(line)
	return Dispatch(eng, cmd, args)
}

func TestTokenizeUppercasesCommand(t *testing.T) {
	cmd, args := Tokenize("set  name   Alice")
	if cmd != "SET" {
		t.Fatalf("expected SET, got %q", cmd)
	}
	if len(args) != 2 || args[0] != "name" || args[1] != "Alice" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestTokenizeEmptyLine(t *testing.T) {
	cmd, args := Tokenize("   ")
	if cmd != "" || args != nil {
		t.Fatalf("expected empty tokenization, got %q %v", cmd, args)
	}
}

func TestBasicRoundTripProtocol(t *testing.T) {
	eng := newTestEngine(t)

	if got := run(eng, "SET name Alice"); got != "OK\n" {
		t.Fatalf("expected OK, got %q", got)
	}
	if got := run(eng, "GET name"); got != "\"Alice\"\n" {
		t.Fatalf("expected quoted Alice, got %q", got)
	}
	if got := run(eng, "SIZE"); got != "1 keys\n" {
		t.Fatalf("expected 1 keys, got %q", got)
	}
	if got := run(eng, "DELETE name"); got != "OK\n" {
		t.Fatalf("expected OK, got %q", got)
	}
	if got := run(eng, "GET name"); got != "(nil)\n" {
		t.Fatalf("expected (nil), got %q", got)
	}
}

func TestCounterProtocol(t *testing.T) {
	eng := newTestEngine(t)

	run(eng, "SET c 100")
	if got := run(eng, "INCR c"); got != "101\n" {
		t.Fatalf("expected 101, got %q", got)
	}
	if got := run(eng, "INCR c"); got != "102\n" {
		t.Fatalf("expected 102, got %q", got)
	}
	if got := run(eng, "DECR c"); got != "101\n" {
		t.Fatalf("expected 101, got %q", got)
	}
}

func TestDeleteMissingKey(t *testing.T) {
	eng := newTestEngine(t)
	if got := run(eng, "DELETE missing"); got != "(not found)\n" {
		t.Fatalf("expected (not found), got %q", got)
	}
}

func TestExistsCommand(t *testing.T) {
	eng := newTestEngine(t)
	run(eng, "SET k v")
	if got := run(eng, "EXISTS k"); got != "1\n" {
		t.Fatalf("expected 1, got %q", got)
	}
	if got := run(eng, "EXISTS missing"); got != "0\n" {
		t.Fatalf("expected 0, got %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	eng := newTestEngine(t)
	if got := run(eng, "FROBNICATE x"); got != "ERROR: Unknown command\n" {
		t.Fatalf("expected unknown command error, got %q", got)
	}
}

func TestSetMissingArgs(t *testing.T) {
	eng := newTestEngine(t)
	got := run(eng, "SET onlykey")
	if got != "ERROR: SET requires key and value\n" {
		t.Fatalf("expected argument error, got %q", got)
	}
}

func TestSetInvalidTTL(t *testing.T) {
	eng := newTestEngine(t)
	got := run(eng, "SET k v notanumber")
	if got != "ERROR: invalid ttl_seconds\n" {
		t.Fatalf("expected ttl error, got %q", got)
	}
}

func TestQuitIsTerminal(t *testing.T) {
	if !IsTerminal("QUIT") || !IsTerminal("EXIT") {
		t.Fatal("expected QUIT and EXIT to be terminal")
	}
	if IsTerminal("GET") {
		t.Fatal("expected GET not to be terminal")
	}
	if got := Dispatch(nil, "QUIT", nil); got != "Goodbye\n" {
		t.Fatalf("expected Goodbye, got %q", got)
	}
}

func TestClearCommand(t *testing.T) {
	eng := newTestEngine(t)
	run(eng, "SET a 1")
	if got := run(eng, "CLEAR"); got != "OK\n" {
		t.Fatalf("expected OK, got %q", got)
	}
	if got := run(eng, "SIZE"); got != "0 keys\n" {
		t.Fatalf("expected 0 keys, got %q", got)
	}
}
