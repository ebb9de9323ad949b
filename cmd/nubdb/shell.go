package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"

	"github.com/nubdb/nubdb/pkg/engine"
	"github.com/nubdb/nubdb/pkg/protocol"
)

// completer mirrors the teacher's readline.NewPrefixCompleter usage in
// cmd/kevo/main.go, listing the line-protocol commands instead of
// kevo's transactional PUT/GET/SCAN vocabulary.
var completer = readline.NewPrefixCompleter(
	readline.PcItem("SET"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("DEL"),
	readline.PcItem("EXISTS"),
	readline.PcItem("INCR"),
	readline.PcItem("DECR"),
	readline.PcItem("SIZE"),
	readline.PcItem("CLEAR"),
	readline.PcItem("QUIT"),
	readline.PcItem("EXIT"),
)

// runInteractive starts the readline-backed shell used when standard
// input is a terminal.
func runInteractive(eng *engine.Engine) {
	fmt.Println("NubDB")
	fmt.Println("Enter SET/GET/DELETE/EXISTS/INCR/DECR/SIZE/CLEAR, or QUIT to exit.")

	historyFile := filepath.Join(os.TempDir(), ".nubdb_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "nubdb> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing readline: %s\n", err)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			}
			if err == io.EOF {
				fmt.Println("Goodbye")
				break
			}
			fmt.Fprintf(os.Stderr, "error reading input: %s\n", err)
			continue
		}

		cmd, args := protocol.Tokenize(line)
		if cmd == "" {
			continue
		}
		resp := protocol.Dispatch(eng, cmd, args)
		fmt.Print(resp)
		if protocol.IsTerminal(cmd) {
			break
		}
	}
}
