package testutil

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Handler answers one line read from a client. Returning close=true ends the
// session after reply (if non-empty) is written.
type Handler func(line string) (reply string, close bool)

// LineServer is a localhost TCP server that serves exactly one client per
// accepted connection with a greeting and a Handler. It records every line
// received, with the terminator stripped.
type LineServer struct {
	ln       net.Listener
	greeting string
	handler  Handler

	mu       sync.Mutex
	received []string
	sessions int
	wg       sync.WaitGroup

	// hangups receives one value each time a client closes its side.
	hangups chan struct{}
}

// NewLineServer starts a server on 127.0.0.1:0. tlsCfg enables implicit TLS.
// greeting is written verbatim on accept; an empty greeting writes nothing.
// The server is shut down by t.Cleanup.
func NewLineServer(t testing.TB, tlsCfg *tls.Config, greeting string, handler Handler) *LineServer {
	t.Helper()

	var (
		ln  net.Listener
		err error
	)
	if tlsCfg != nil {
		ln, err = tls.Listen("tcp", "127.0.0.1:0", tlsCfg)
	} else {
		ln, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &LineServer{ln: ln, greeting: greeting, handler: handler, hangups: make(chan struct{}, 16)}
	s.wg.Add(1)
	go s.serve()

	t.Cleanup(func() {
		_ = ln.Close()
		s.wg.Wait()
	})
	return s
}

// NewScriptServer answers the n-th received line with replies[n]. When the
// script runs out the connection is closed. The greeting is sent first.
func NewScriptServer(t testing.TB, tlsCfg *tls.Config, greeting string, replies ...string) *LineServer {
	t.Helper()
	var (
		mu sync.Mutex
		n  int
	)
	return NewLineServer(t, tlsCfg, greeting, func(string) (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		if n >= len(replies) {
			return "", true
		}
		r := replies[n]
		n++
		return r, n == len(replies)
	})
}

func (s *LineServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.sessions++
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *LineServer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if s.greeting != "" {
		if _, err := conn.Write([]byte(s.greeting)); err != nil {
			return
		}
	}
	if s.handler == nil {
		// Hold the connection open until the client goes away.
		_, _ = io.Copy(io.Discard, conn)
		s.hungUp()
		return
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			s.hungUp()
			return
		}
		line = strings.TrimRight(line, "\r\n")
		s.mu.Lock()
		s.received = append(s.received, line)
		s.mu.Unlock()

		reply, done := s.handler(line)
		if reply != "" {
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
		if done {
			return
		}
	}
}

func (s *LineServer) hungUp() {
	select {
	case s.hangups <- struct{}{}:
	default:
	}
}

// WaitHangup reports whether a client closed its connection within d.
func (s *LineServer) WaitHangup(d time.Duration) bool {
	select {
	case <-s.hangups:
		return true
	case <-time.After(d):
		return false
	}
}

// Addr returns the listener address as host:port.
func (s *LineServer) Addr() string {
	return s.ln.Addr().String()
}

// Host returns the listener host.
func (s *LineServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listener port.
func (s *LineServer) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	p, _ := strconv.Atoi(port)
	return p
}

// Received returns a copy of the lines received so far.
func (s *LineServer) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// Sessions returns the number of accepted connections.
func (s *LineServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// ClosedPort returns a localhost port that refuses connections.
func ClosedPort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}
