package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/knadh/go-pop3"

	"github.com/infodancer/mailauth/internal/metrics"
	"github.com/infodancer/mailauth/internal/transport"
)

// openPOP3 logs in and quits. go-pop3 dials through pop3Dialer, which owns
// the connection: TLS is negotiated there and the socket is closed on return
// whatever state the library left it in.
func (c *Client) openPOP3(ctx context.Context, d Descriptor, username, password string) (bool, []string) {
	diag := &diagnostics{}
	addr := d.Addr()

	pd := &pop3Dialer{
		ctx:       ctx,
		dialer:    transport.Dialer{Timeout: c.Timeout, Proxy: c.Proxy},
		timeout:   c.Timeout,
		collector: c.collector(),
	}
	if d.SSL {
		pd.tlsConfig = transport.ClientTLSConfig(c.TLSConfig, addr, !d.NoValidateCert)
	}
	defer pd.close()

	p := pop3.New(pop3.Opt{
		Host:        d.Host,
		Port:        d.Port,
		DialTimeout: c.Timeout,
		Dialer:      pd,
	})

	conn, err := p.NewConn()
	if err != nil {
		diag.add("pop3 %s: connect: %s", addr, describe(ctx, err))
		return false, diag.list()
	}

	if err := conn.Auth(username, password); err != nil {
		diag.add("pop3 %s: auth: %s", addr, describe(ctx, err))
		_ = conn.Quit()
		return false, diag.list()
	}
	if err := conn.Quit(); err != nil {
		diag.add("pop3 %s: quit: %s", addr, describe(ctx, err))
	}
	return true, diag.list()
}

// describe names timeouts and cancellation plainly; a cancelled session
// surfaces from the library as a read on a closed connection.
func describe(ctx context.Context, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return "timed out"
		}
		return ctxErr.Error()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timed out"
	}
	return err.Error()
}

// pop3Dialer satisfies go-pop3's Dialer. It keeps the one connection it
// opens so that it can be closed on every exit path.
type pop3Dialer struct {
	ctx       context.Context
	dialer    transport.Dialer
	tlsConfig *tls.Config // nil for plain POP3
	timeout   time.Duration
	collector metrics.Collector

	mu   sync.Mutex
	conn net.Conn
	stop func() bool
}

func (pd *pop3Dialer) Dial(network, addr string) (net.Conn, error) {
	var (
		conn net.Conn
		err  error
	)
	if pd.tlsConfig != nil {
		conn, err = pd.dialer.DialTLS(pd.ctx, network, addr, pd.tlsConfig)
	} else {
		conn, err = pd.dialer.DialContext(pd.ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}
	pd.collector.ConnectionOpened()
	if pd.tlsConfig != nil {
		pd.collector.TLSConnectionEstablished()
	}

	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.conn = conn
	pd.stop = context.AfterFunc(pd.ctx, func() {
		_ = conn.Close()
	})
	return &deadlineConn{Conn: conn, timeout: pd.timeout}, nil
}

func (pd *pop3Dialer) close() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if pd.conn == nil {
		return
	}
	pd.stop()
	_ = pd.conn.Close()
	pd.collector.ConnectionClosed()
	pd.conn = nil
}

// deadlineConn arms a fresh deadline before every read and write.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
