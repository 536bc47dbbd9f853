// Package smtpauth verifies credentials against an SMTP server with a single
// AUTH LOGIN exchange:
//
//	S: 220 greeting
//	C: HELO <client hostname>
//	C: AUTH LOGIN
//	C: base64(username)
//	C: base64(password)      <- reply decides the verdict
//	C: QUIT
//
// Replies before the password step are read but not interpreted. The attempt
// is authenticated iff the password reply starts with 235. Connect failures
// and timeouts leave the verdict undetermined rather than negative.
package smtpauth

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-sasl"

	"github.com/infodancer/mailauth/internal/event"
	"github.com/infodancer/mailauth/internal/metrics"
	"github.com/infodancer/mailauth/internal/transport"
)

const (
	// maxReplyLength caps a single reply read, terminator included.
	maxReplyLength = 514

	// SuccessCode is the reply code accepting the credentials.
	SuccessCode = "235"

	// loginPrompt is the canonical LOGIN password challenge.
	loginPrompt = "Password:"
)

// Config describes one SMTP authentication attempt.
type Config struct {
	Host string
	Port int

	// ImplicitTLS wraps the connection in TLS before the greeting (SMTPS).
	ImplicitTLS bool
	VerifyTLS   bool
	TLSConfig   *tls.Config // template, cloned per attempt; may be nil

	Timeout        time.Duration // connect and per-read; zero means none
	ClientHostname string
	LineTerminator string // "" means CRLF
	Username       string
	Password       string

	Proxy     *transport.ProxyConfig // nil → direct
	Observer  event.Observer         // nil → NopObserver
	Collector metrics.Collector      // nil → NoopCollector
}

// Result is the outcome of Run.
type Result struct {
	Authenticated bool

	// Reply is the raw reply to the password line.
	Reply string

	// Err is set when no verdict could be reached; Authenticated is then false
	// and must not be read as a rejection.
	Err *TransportError
}

// Undetermined reports whether the attempt failed at the transport level.
func (r Result) Undetermined() bool {
	return r.Err != nil
}

// Engine runs a single handshake. It owns at most one connection, which is
// closed before Run returns. An Engine is not reusable.
type Engine struct {
	cfg       Config
	addr      string
	obs       event.Observer
	collector metrics.Collector
	state     State
}

// New creates an engine for cfg.
func New(cfg Config) *Engine {
	if cfg.LineTerminator == "" {
		cfg.LineTerminator = "\r\n"
	}
	return &Engine{
		cfg:       cfg,
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		obs:       event.OrNop(cfg.Observer),
		collector: metrics.OrNoop(cfg.Collector),
	}
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

func (e *Engine) transition(ctx context.Context, s State) {
	e.state = s
	event.Emit(ctx, e.obs, event.KindState, "SMTP state", s.String())
}

func (e *Engine) fail(ctx context.Context, te *TransportError) Result {
	e.transition(ctx, StateFailed)
	event.Emit(ctx, e.obs, event.KindResult, "SMTP transport failure", te.Op, strconv.Itoa(te.Errno), te.Message)
	return Result{Err: te}
}

// Run performs the exchange. Cancelling ctx behaves like a timeout.
func (e *Engine) Run(ctx context.Context) Result {
	if e.state != StateIdle {
		return Result{Err: newTransportError("run", e.addr, ErrEngineUsed)}
	}

	mech, userLine, passLine, err := loginLines(e.cfg.Username, e.cfg.Password)
	if err != nil {
		return e.fail(ctx, newTransportError("auth", e.addr, err))
	}

	event.Emit(ctx, e.obs, event.KindConnect, "SMTP Auth called", e.addr)
	e.transition(ctx, StateConnecting)

	conn, err := e.dial(ctx)
	if err != nil {
		event.Emit(ctx, e.obs, event.KindWarning, "SMTP Socket Open Result", "failed", err.Error())
		return e.fail(ctx, newTransportError("dial", e.addr, err))
	}
	e.collector.ConnectionOpened()
	defer func() {
		_ = conn.Close()
		e.collector.ConnectionClosed()
	}()
	s := newSession(conn, e.cfg.Timeout, e.cfg.LineTerminator)
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	event.Emit(ctx, e.obs, event.KindConnect, "SMTP Socket Open Result", "connected", conn.RemoteAddr().String())
	e.transition(ctx, StateConnected)

	if _, terr := e.receive(ctx, s, "Connect to SMTP"); terr != nil {
		return e.fail(ctx, terr)
	}

	steps := []struct {
		desc      string
		line      string
		sensitive bool
		next      State
	}{
		{"SMTP HELO " + e.cfg.Host, "HELO " + e.cfg.ClientHostname, false, StateHeloSent},
		{"SMTP Auth request", "AUTH " + mech, false, StateAuthLoginSent},
		{"SMTP Auth username", userLine, true, StateUsernameSent},
		{"SMTP Auth password", passLine, true, StatePasswordSent},
	}

	var (
		reply string
		terr  *TransportError
	)
	for _, st := range steps {
		if terr = e.send(ctx, s, st.line, st.sensitive); terr != nil {
			return e.fail(ctx, terr)
		}
		e.transition(ctx, st.next)
		if reply, terr = e.receive(ctx, s, st.desc); terr != nil {
			return e.fail(ctx, terr)
		}
	}
	authReply := reply

	// The verdict is already known; QUIT failures do not change it.
	if terr := e.send(ctx, s, "QUIT", false); terr == nil {
		_, _ = e.receive(ctx, s, "SMTP QUIT")
	}

	code := replyCode(authReply)
	e.transition(ctx, StateCompleted)
	event.Emit(ctx, e.obs, event.KindResult, "SMTP Authentication Result", code)

	return Result{Authenticated: code == SuccessCode, Reply: authReply}
}

func (e *Engine) dial(ctx context.Context) (net.Conn, error) {
	d := transport.Dialer{Timeout: e.cfg.Timeout, Proxy: e.cfg.Proxy}
	if !e.cfg.ImplicitTLS {
		return d.DialContext(ctx, "tcp", e.addr)
	}
	conn, err := d.DialTLS(ctx, "tcp", e.addr, transport.ClientTLSConfig(e.cfg.TLSConfig, e.addr, e.cfg.VerifyTLS))
	if err != nil {
		return nil, err
	}
	e.collector.TLSConnectionEstablished()
	return conn, nil
}

// send writes one line. Errors other than timeouts are reported and
// tolerated: a peer that hung up shows up as empty replies later.
func (e *Engine) send(ctx context.Context, s *session, line string, sensitive bool) *TransportError {
	if sensitive {
		event.EmitSensitive(ctx, e.obs, event.KindSend, "SMTP CHAT : ", line)
	} else {
		event.Emit(ctx, e.obs, event.KindSend, "SMTP CHAT : ", line)
	}
	if err := ctx.Err(); err != nil {
		return newTransportError("write", e.addr, err)
	}
	if err := s.writeLine(line); err != nil {
		if fatal(ctx, err) {
			return newTransportError("write", e.addr, cause(ctx, err))
		}
		event.Emit(ctx, e.obs, event.KindWarning, "SMTP write error", err.Error())
		return nil
	}
	e.collector.LineExchanged(metrics.DirectionSent)
	return nil
}

// receive reads one reply. EOF and connection resets yield whatever was read
// (often ""); only timeouts and cancellation abort the attempt.
func (e *Engine) receive(ctx context.Context, s *session, desc string) (string, *TransportError) {
	if err := ctx.Err(); err != nil {
		return "", newTransportError("read", e.addr, err)
	}
	reply, err := s.readReply()
	if err != nil {
		if fatal(ctx, err) {
			return "", newTransportError("read", e.addr, cause(ctx, err))
		}
		if !errors.Is(err, io.EOF) {
			event.Emit(ctx, e.obs, event.KindWarning, "SMTP read error", err.Error())
		}
	}
	if reply != "" {
		e.collector.LineExchanged(metrics.DirectionReceived)
	}
	event.Emit(ctx, e.obs, event.KindReceive, desc, reply)
	return reply, nil
}

func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || isTimeout(err)
}

func cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

// replyCode returns the first three bytes of reply, or all of it if shorter.
func replyCode(reply string) string {
	if len(reply) < 3 {
		return reply
	}
	return reply[:3]
}

// loginLines returns the LOGIN mechanism name and the base64 username and
// password lines.
func loginLines(username, password string) (mech, userLine, passLine string, err error) {
	c := sasl.NewLoginClient(username, password)
	mech, ir, err := c.Start()
	if err != nil {
		return "", "", "", err
	}
	resp, err := c.Next([]byte(loginPrompt))
	if err != nil {
		return "", "", "", err
	}
	return mech, base64.StdEncoding.EncodeToString(ir), base64.StdEncoding.EncodeToString(resp), nil
}

// session is the line codec over one connection. Once cancelled, its
// deadline stays in the past.
type session struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
	term    string

	mu        sync.Mutex
	cancelled bool
}

func newSession(conn net.Conn, timeout time.Duration, term string) *session {
	return &session{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, maxReplyLength),
		timeout: timeout,
		term:    term,
	}
}

// cancel expires the connection deadline and stops later operations from
// re-arming it.
func (s *session) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	_ = s.conn.SetDeadline(time.Now())
}

// arm sets the deadline for the next operation.
func (s *session) arm(set func(time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return errSessionCancelled
	}
	if s.timeout <= 0 {
		return nil
	}
	return set(time.Now().Add(s.timeout))
}

func (s *session) writeLine(line string) error {
	if err := s.arm(s.conn.SetWriteDeadline); err != nil {
		return err
	}
	_, err := io.WriteString(s.conn, line+s.term)
	return err
}

// readReply reads up to and including '\n', stopping early after
// maxReplyLength bytes.
func (s *session) readReply() (string, error) {
	if err := s.arm(s.conn.SetReadDeadline); err != nil {
		return "", err
	}
	buf := make([]byte, 0, 128)
	for len(buf) < maxReplyLength {
		b, err := s.r.ReadByte()
		if err != nil {
			return string(buf), err
		}
		buf = append(buf, b)
		if b == '\n' {
			break
		}
	}
	return string(buf), nil
}
