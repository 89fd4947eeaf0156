// Package server is the TCP front end: a fixed-size worker pool accepts
// connections and dispatches framed commands straight to the engine
// façade, with no queueing beyond each connection's own backlog.
package server

import (
	"errors"
	"io"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/engine"
	"github.com/calderadb/caldera/expr"
	"github.com/calderadb/caldera/page"
	"github.com/calderadb/caldera/protocol"
	"github.com/calderadb/caldera/value"
)

// Server owns the listener and dispatches accepted connections across a
// fixed pool of workers, all calling directly into eng.
type Server struct {
	eng     *engine.Engine
	addr    string
	workers int

	mu       sync.Mutex
	listener net.Listener
	conns    chan net.Conn
	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   bool
}

// New creates a Server bound to eng, listening at addr with a pool of
// workers goroutines.
func New(eng *engine.Engine, addr string, workers int) *Server {
	if workers <= 0 {
		workers = 4
	}
	return &Server{
		eng:      eng,
		addr:     addr,
		workers:  workers,
		conns:    make(chan net.Conn),
		shutdown: make(chan struct{}),
	}
}

// Run listens on s.addr and blocks, dispatching connections to workers,
// until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return &common.ErrIO{Cause: err}
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	log.Printf("caldera: listening on %s", s.addr)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				close(s.conns)
				s.wg.Wait()
				return nil
			default:
				return &common.ErrIO{Cause: err}
			}
		}
		s.conns <- conn
	}
}

func (s *Server) worker() {
	defer s.wg.Done()
	for conn := range s.conns {
		s.handleConn(conn)
	}
}

// Shutdown stops accepting new connections and lets in-flight workers
// drain, replacing the original implementation's os.Exit on EXIT with a
// signal propagated back to the accept loop.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	close(s.shutdown)
	if ln != nil {
		return ln.Close()
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("caldera: read error from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if frame.Type != protocol.FrameCommand {
			s.reply(conn, protocol.ErrorResp("unsupported frame type"))
			continue
		}

		resp, exit := s.dispatch(string(frame.Payload))
		s.reply(conn, resp)
		if exit {
			go func() { _ = s.Shutdown() }()
			return
		}
	}
}

func (s *Server) reply(conn net.Conn, resp protocol.Response) {
	err := protocol.WriteFrame(conn, &protocol.Frame{
		Type:    protocol.FrameResponse,
		Payload: []byte(resp.Text()),
	})
	if err != nil {
		log.Printf("caldera: write error to %s: %v", conn.RemoteAddr(), err)
	}
}

// dispatch parses line and runs it against the engine, returning the
// response to send and whether the connection should close afterward
// (true only for EXIT).
func (s *Server) dispatch(line string) (protocol.Response, bool) {
	cmd, err := protocol.Parse(line)
	if err != nil {
		return protocol.ErrorResp(err.Error()), false
	}

	switch cmd.Kind {
	case protocol.CmdGet:
		v, err := s.eng.Get(cmd.Key)
		var notFound *common.ErrKeyNotFound
		if errors.As(err, &notFound) {
			return protocol.ValueResp(nil), false
		}
		if err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		return protocol.ValueResp(&v), false

	case protocol.CmdSet:
		val, err := s.resolveValue(cmd)
		if err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		if err := s.eng.Insert(cmd.Key, val); err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		return protocol.Ok(), false

	case protocol.CmdUpdate:
		val, err := s.resolveValue(cmd)
		if err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		if err := s.eng.Update(cmd.Key, val); err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		return protocol.Ok(), false

	case protocol.CmdDelete:
		if err := s.eng.Delete(cmd.Key); err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		return protocol.Ok(), false

	case protocol.CmdAll:
		all, err := s.eng.All()
		if err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		kvs := make([]protocol.KV, len(all))
		for i, kv := range all {
			kvs[i] = protocol.KV{Key: kv.Key, Val: kv.Val}
		}
		return protocol.RangeResp(kvs), false

	case protocol.CmdStrlen:
		n, err := s.eng.Strlen(cmd.Key)
		if err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		return protocol.SizeResp(n), false

	case protocol.CmdStrcat:
		val, err := s.resolveValue(cmd)
		if err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		if err := s.eng.Strcat(cmd.Key, val); err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		return protocol.Ok(), false

	case protocol.CmdSubstr:
		if err := s.eng.Substr(cmd.Key, cmd.Start, cmd.Length); err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		return protocol.Ok(), false

	case protocol.CmdExpr:
		v, err := expr.Eval(cmd.Expr, s.eng)
		if err != nil {
			return protocol.ErrorResp(err.Error()), false
		}
		return protocol.ValueResp(&v), false

	case protocol.CmdPing:
		return protocol.Pong(), false

	case protocol.CmdExit:
		return protocol.Ok(), true

	case protocol.CmdDumpHeap:
		v := value.String(dumpHeapPreview())
		return protocol.ValueResp(&v), false

	default:
		return protocol.ErrorResp("unknown command"), false
	}
}

// resolveValue returns cmd's literal value, or evaluates its EXPR(...)
// sub-expression against the engine when present.
func (s *Server) resolveValue(cmd protocol.Command) (value.Value, error) {
	if cmd.HasExpr {
		return expr.Eval(cmd.ValueExpr, s.eng)
	}
	return cmd.Value, nil
}

// dumpHeapPreview exercises the slotted-page vocabulary against a scratch
// page, purely for diagnostic display: insert a few records, read them
// back, delete one, and report the resulting layout.
func dumpHeapPreview() string {
	pg := page.New(0)
	sp := page.Wrap(pg.Payload())

	ids := make([]int, 0, 3)
	for _, s := range []string{"alpha", "bravo", "charlie"} {
		id, err := sp.InsertRecord([]byte(s))
		if err != nil {
			return "DUMPHEAP error: " + err.Error()
		}
		ids = append(ids, id)
	}
	if err := sp.DeleteRecord(ids[1]); err != nil {
		return "DUMPHEAP error: " + err.Error()
	}

	out := "slots=" + strconv.Itoa(sp.NumSlots()) + " free=" + strconv.Itoa(sp.FreeSpace())
	for _, id := range ids {
		rec, err := sp.GetRecord(id)
		if err != nil {
			out += " [" + strconv.Itoa(id) + "]=<" + err.Error() + ">"
			continue
		}
		out += " [" + strconv.Itoa(id) + "]=" + string(rec)
	}
	return out
}
