// Command nubdb is the entry point for the NubDB key-value store: it
// opens (and, if needed, recovers) the storage engine, then either
// serves the line protocol over TCP or drives it from standard input,
// matching the teacher's cmd/kevo/main.go flag layout adapted to a
// single append-only log instead of a multi-file database directory.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nubdb/nubdb/pkg/common/log"
	"github.com/nubdb/nubdb/pkg/config"
	"github.com/nubdb/nubdb/pkg/engine"
	"github.com/nubdb/nubdb/pkg/metrics"
	"github.com/nubdb/nubdb/pkg/protocol"
)

const helpText = `
NubDB - an in-memory key-value store with append-only durability.

Usage:
  nubdb [options]

Options:
  --server            Run in server mode, listening on 0.0.0.0:PORT
  --port PORT         Port to listen on in server mode (default 6379)
  --data PATH         Path to the append-only log file (default nubdb.aof)
  --metrics-addr ADDR Expose Prometheus metrics at http://ADDR/metrics
  --help, -h          Show this help message

Without --server, commands are read from standard input, one per line,
until end-of-stream. When standard input is a terminal an interactive
shell with line editing is used instead.
`

func main() {
	os.Exit(run())
}

func run() int {
	var (
		serverMode  bool
		port        int
		dataPath    string
		metricsAddr string
		help        bool
	)

	flag.BoolVar(&serverMode, "server", false, "run in TCP server mode")
	flag.IntVar(&port, "port", 6379, "port to listen on in server mode")
	flag.StringVar(&dataPath, "data", config.DefaultAOFPath, "path to the append-only log file")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on")
	flag.BoolVar(&help, "help", false, "show help")
	flag.BoolVar(&help, "h", false, "show help")
	flag.Parse()

	if help {
		fmt.Print(helpText)
		return 0
	}

	logger := log.NewComponentLogger("main")

	cfg := config.NewDefaultConfig(dataPath)
	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open storage engine: %s\n", err)
		return 1
	}
	defer eng.Close()

	if metricsAddr != "" {
		collectors := metrics.NewCollectors(prometheus.DefaultRegisterer, func() float64 {
			n, _ := eng.Size()
			return float64(n)
		}, func() float64 {
			return float64(eng.LogSizeBytes())
		}, func() float64 {
			return float64(eng.MaxProbeLength())
		})
		eng.SetMetrics(collectors)
		go serveMetrics(metricsAddr, logger)
	}

	installSignalHandler(eng, logger)

	if serverMode {
		srv := NewServer(eng, fmt.Sprintf("0.0.0.0:%d", port))
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start server: %s\n", err)
			return 1
		}
		if err := srv.Serve(); err != nil {
			fmt.Fprintf(os.Stderr, "server exited with error: %s\n", err)
			return 1
		}
		return 0
	}

	if isTerminal(os.Stdin) {
		runInteractive(eng)
		return 0
	}

	runBatch(eng, os.Stdin)
	return 0
}

func serveMetrics(addr string, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped: %v", err)
	}
}

func installSignalHandler(eng *engine.Engine, logger log.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		eng.Close()
		os.Exit(0)
	}()
}

// runBatch drives the line protocol from a non-interactive reader
// (piped stdin or a socket), grounded on
// BuddyAnonymous-kv-engine/cmd/kv/main.go's bufio.Scanner batch loop.
func runBatch(eng *engine.Engine, r *os.File) {
	scanner := bufio.NewScanner(r)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for scanner.Scan() {
		cmd, args := protocol.Tokenize(scanner.Text())
		if cmd == "" {
			continue
		}
		resp := protocol.Dispatch(eng, cmd, args)
		out.WriteString(resp)
		if protocol.IsTerminal(cmd) {
			break
		}
	}
	out.Flush()
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
