// Package protocol implements the line-oriented text protocol described
// in spec section 6: one whitespace-tokenized command per line, with the
// exact response strings of its command table. Grounded on the
// uppercase-and-split approach of BuddyAnonymous-kv-engine's
// internal/cli parser, adapted from that parser's CSV-call syntax
// (CMD(arg1,arg2)) to plain whitespace-separated tokens.
package protocol

import (
	"errors"
	"strconv"
	"strings"

	"github.com/nubdb/nubdb/pkg/engine"
)

// Tokenize splits one input line into an uppercased command and its
// argument tokens. Values containing whitespace are not representable
// (spec section 9's documented protocol limitation): the parser has no
// quoting rules.
func Tokenize(line string) (cmd string, args []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToUpper(fields[0]), fields[1:]
}

// Dispatch executes one already-tokenized command against eng and
// returns the exact response line (including trailing "\n") from spec
// section 6's command table.
func Dispatch(eng *engine.Engine, cmd string, args []string) string {
	switch cmd {
	case "":
		return ""
	case "SET":
		return dispatchSet(eng, args)
	case "GET":
		return dispatchGet(eng, args)
	case "DELETE", "DEL":
		return dispatchDelete(eng, args)
	case "EXISTS":
		return dispatchExists(eng, args)
	case "INCR":
		return dispatchIncrDecr(eng, args, 1)
	case "DECR":
		return dispatchIncrDecr(eng, args, -1)
	case "SIZE":
		return dispatchSize(eng)
	case "CLEAR":
		return dispatchClear(eng)
	case "QUIT", "EXIT":
		return "Goodbye\n"
	default:
		return "ERROR: Unknown command\n"
	}
}

func errorLine(reason string) string {
	return "ERROR: " + reason + "\n"
}

func dispatchSet(eng *engine.Engine, args []string) string {
	if len(args) < 2 {
		return errorLine("SET requires key and value")
	}
	key, value := args[0], args[1]

	var ttl int64
	if len(args) >= 3 {
		parsed, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || parsed < 0 {
			return errorLine("invalid ttl_seconds")
		}
		ttl = parsed
	}

	if err := eng.Set(key, []byte(value), ttl); err != nil {
		return errorLine(reasonFor(err))
	}
	return "OK\n"
}

func dispatchGet(eng *engine.Engine, args []string) string {
	if len(args) != 1 {
		return errorLine("GET requires key")
	}
	v, ok, err := eng.Get(args[0])
	if err != nil {
		return errorLine(reasonFor(err))
	}
	if !ok {
		return "(nil)\n"
	}
	return "\"" + string(v) + "\"\n"
}

func dispatchDelete(eng *engine.Engine, args []string) string {
	if len(args) != 1 {
		return errorLine("DELETE requires key")
	}
	removed, err := eng.Delete(args[0])
	if err != nil {
		return errorLine(reasonFor(err))
	}
	if removed {
		return "OK\n"
	}
	return "(not found)\n"
}

func dispatchExists(eng *engine.Engine, args []string) string {
	if len(args) != 1 {
		return errorLine("EXISTS requires key")
	}
	ok, err := eng.Exists(args[0])
	if err != nil {
		return errorLine(reasonFor(err))
	}
	if ok {
		return "1\n"
	}
	return "0\n"
}

func dispatchIncrDecr(eng *engine.Engine, args []string, delta int64) string {
	if len(args) != 1 {
		return errorLine("key required")
	}
	v, err := eng.Increment(args[0], delta)
	if err != nil {
		return errorLine(reasonFor(err))
	}
	return strconv.FormatInt(v, 10) + "\n"
}

func dispatchSize(eng *engine.Engine) string {
	n, err := eng.Size()
	if err != nil {
		return errorLine(reasonFor(err))
	}
	return strconv.Itoa(n) + " keys\n"
}

func dispatchClear(eng *engine.Engine) string {
	if err := eng.Clear(); err != nil {
		return errorLine(reasonFor(err))
	}
	return "OK\n"
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, engine.ErrEngineClosed):
		return "engine is closed"
	case errors.Is(err, engine.ErrKeyEmpty):
		return "key must not be empty"
	case errors.Is(err, engine.ErrKeyTooLarge):
		return "key too large"
	case errors.Is(err, engine.ErrValueTooLarge):
		return "value too large"
	case errors.Is(err, engine.ErrKeyInvalid):
		return "key must not contain whitespace or newlines"
	case errors.Is(err, engine.ErrInvalidTTL):
		return "invalid ttl"
	default:
		return err.Error()
	}
}

// IsTerminal reports whether cmd should close the connection after its
// response is written.
func IsTerminal(cmd string) bool {
	return cmd == "QUIT" || cmd == "EXIT"
}
