package main

import (
	"bufio"
	"net"

	"github.com/nubdb/nubdb/pkg/common/log"
	"github.com/nubdb/nubdb/pkg/engine"
	"github.com/nubdb/nubdb/pkg/protocol"
)

// Server accepts TCP connections and speaks the line protocol on each,
// grounded on the teacher's cmd/kevo/server.go Start/Serve/Shutdown
// lifecycle, adapted from a gRPC-over-TLS service to a plain
// net.Listener loop since the line protocol carries no RPC framing.
type Server struct {
	eng      *engine.Engine
	addr     string
	listener net.Listener
	logger   log.Logger
}

// NewServer creates a Server bound to addr (e.g. "0.0.0.0:6379").
func NewServer(eng *engine.Engine, addr string) *Server {
	return &Server{
		eng:    eng,
		addr:   addr,
		logger: log.NewComponentLogger("server"),
	}
}

// Start opens the listening socket.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("listening on %s", s.addr)
	return nil
}

// Serve accepts connections until the listener is closed, handling each
// on its own goroutine.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Shutdown closes the listening socket, causing Serve to return.
func (s *Server) Shutdown() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)
	defer writer.Flush()

	for scanner.Scan() {
		cmd, args := protocol.Tokenize(scanner.Text())
		if cmd == "" {
			continue
		}
		resp := protocol.Dispatch(s.eng, cmd, args)
		if _, err := writer.WriteString(resp); err != nil {
			s.logger.Error("write to %s failed: %v", conn.RemoteAddr(), err)
			return
		}
		if err := writer.Flush(); err != nil {
			s.logger.Error("flush to %s failed: %v", conn.RemoteAddr(), err)
			return
		}
		if protocol.IsTerminal(cmd) {
			return
		}
	}
}
