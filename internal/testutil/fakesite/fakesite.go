// Package fakesite runs an in-process site speaking the broker wire
// protocol, with scripted credentials, contexts, latency, and canned
// procedure replies.
package fakesite

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openvista/vistalink/internal/protocol"
)

// Script configures site behavior.
type Script struct {
	AccessCode string
	VerifyCode string
	Contexts   []string
	// Latency delays every Execute reply; lifecycle operations are not
	// delayed so slow-site tests still finish login quickly.
	Latency   time.Duration
	Responses map[string]protocol.Response
	// Handler, when set, takes precedence over Responses for Execute.
	Handler func(req protocol.Request) protocol.Response
}

// Server is one listening fake site.
type Server struct {
	ln     net.Listener
	script Script

	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

// Start listens on a loopback port and serves until the test ends.
func Start(t *testing.T, script Script) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakesite listen: %v", err)
	}
	s := &Server{ln: ln, script: script}
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	_ = s.ln.Close()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	authenticated := false
	contextSet := false

	for {
		req, err := protocol.DecodeRequest(br)
		if err != nil {
			if !errors.Is(err, protocol.ErrTruncated) {
				_ = protocol.EncodeResponse(conn, protocol.ErrorResponse("P001", err.Error()))
			}
			return
		}

		var resp protocol.Response
		switch req.Operation {
		case protocol.OpHandshake:
			resp = protocol.ScalarResponse("accept")
		case protocol.OpLogin:
			if s.checkCredentials(req) {
				authenticated = true
				resp = protocol.ScalarResponse("1^Good afternoon")
			} else {
				resp = protocol.ErrorResponse("U001", "Not a valid ACCESS CODE/VERIFY CODE pair.")
			}
		case protocol.OpSetContext:
			switch {
			case !authenticated:
				resp = protocol.ErrorResponse("U002", "signon required")
			case len(req.Params) == 1 && s.contextAllowed(req.Params[0]):
				contextSet = true
				resp = protocol.ScalarResponse("1")
			default:
				resp = protocol.ErrorResponse("U003", "application context has not been created")
			}
		case protocol.OpDisconnect:
			_ = protocol.EncodeResponse(conn, protocol.ScalarResponse("#BYE#"))
			return
		default:
			if !authenticated || !contextSet {
				resp = protocol.ErrorResponse("U002", "signon required")
				break
			}
			if s.script.Latency > 0 {
				time.Sleep(s.script.Latency)
			}
			resp = s.executeReply(req)
		}

		if err := protocol.EncodeResponse(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) checkCredentials(req protocol.Request) bool {
	if len(req.Params) != 1 {
		return false
	}
	want := s.script.AccessCode + ";" + s.script.VerifyCode
	return subtle.ConstantTimeCompare([]byte(req.Params[0]), []byte(want)) == 1
}

func (s *Server) contextAllowed(scope string) bool {
	for _, c := range s.script.Contexts {
		if strings.EqualFold(c, scope) {
			return true
		}
	}
	return false
}

func (s *Server) executeReply(req protocol.Request) protocol.Response {
	if s.script.Handler != nil {
		return s.script.Handler(req)
	}
	if resp, ok := s.script.Responses[req.Operation]; ok {
		return resp
	}
	return protocol.ErrorResponse("M001", "remote procedure not registered: "+req.Operation)
}
