package mailbox

import (
	"context"
	"net"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/infodancer/mailauth/internal/transport"
)

// openIMAP logs in and out. Plain connections upgrade with STARTTLS when the
// server offers it.
func (c *Client) openIMAP(ctx context.Context, d Descriptor, username, password string) (bool, []string) {
	diag := &diagnostics{}
	addr := d.Addr()
	tlsConfig := transport.ClientTLSConfig(c.TLSConfig, addr, !d.NoValidateCert)
	dialer := transport.Dialer{Timeout: c.Timeout, Proxy: c.Proxy}

	var (
		conn net.Conn
		err  error
	)
	if d.SSL {
		conn, err = dialer.DialTLS(ctx, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		diag.add("imap %s: connect: %v", addr, err)
		return false, diag.list()
	}
	c.collector().ConnectionOpened()
	if d.SSL {
		c.collector().TLSConnectionEstablished()
	}
	defer c.collector().ConnectionClosed()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	// The greeting is read by client.New; bound it like any other command.
	if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}
	cl, err := client.New(conn)
	if err != nil {
		_ = conn.Close()
		diag.add("imap %s: greeting: %v", addr, err)
		return false, diag.list()
	}
	_ = conn.SetDeadline(time.Time{})
	cl.ErrorLog = diag
	cl.Timeout = c.Timeout
	defer func() { _ = cl.Terminate() }()

	if !d.SSL {
		ok, err := cl.SupportStartTLS()
		if err != nil {
			diag.add("imap %s: capability: %v", addr, err)
			return false, diag.list()
		}
		if ok {
			if err := cl.StartTLS(tlsConfig); err != nil {
				diag.add("imap %s: starttls: %v", addr, err)
				return false, diag.list()
			}
			c.collector().TLSConnectionEstablished()
		}
	}

	if err := cl.Login(username, password); err != nil {
		diag.add("imap %s: login: %v", addr, err)
		return false, diag.list()
	}
	if err := cl.Logout(); err != nil {
		diag.add("imap %s: logout: %v", addr, err)
	}
	return true, diag.list()
}
