// Package mailbox opens and closes POP3 and IMAP sessions to prove that a
// credential is accepted. The wire protocols are handled by go-pop3 and
// go-imap; this package only chooses transport and TLS settings from a
// descriptor and collects whatever the libraries report along the way.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/infodancer/mailauth/internal/metrics"
	"github.com/infodancer/mailauth/internal/transport"
)

// Opener opens and immediately closes an authenticated mailbox session.
// It reports whether the session opened and any diagnostics produced while
// trying, which may be non-empty even on success.
type Opener interface {
	Open(ctx context.Context, descriptor, username, password string) (bool, []string)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, descriptor, username, password string) (bool, []string)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, descriptor, username, password string) (bool, []string) {
	return f(ctx, descriptor, username, password)
}

// Client is the Opener backed by the POP3 and IMAP client libraries.
type Client struct {
	// Timeout bounds connecting and each command; zero means none.
	Timeout time.Duration

	// Proxy routes connections through SOCKS5; nil connects directly.
	Proxy *transport.ProxyConfig

	// TLSConfig is cloned for every TLS connection; nil uses the system roots.
	TLSConfig *tls.Config

	Collector metrics.Collector
}

// Open parses descriptor and authenticates with the protocol it names.
func (c *Client) Open(ctx context.Context, descriptor, username, password string) (bool, []string) {
	d, err := ParseDescriptor(descriptor)
	if err != nil {
		return false, []string{err.Error()}
	}

	switch d.Protocol {
	case ProtocolPOP3:
		return c.openPOP3(ctx, d, username, password)
	case ProtocolIMAP:
		return c.openIMAP(ctx, d, username, password)
	default:
		return false, []string{fmt.Sprintf("unsupported protocol %q", d.Protocol)}
	}
}

func (c *Client) collector() metrics.Collector {
	return metrics.OrNoop(c.Collector)
}

// diagnostics collects messages from the caller and from library goroutines.
type diagnostics struct {
	mu   sync.Mutex
	msgs []string
}

func (d *diagnostics) add(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, fmt.Sprintf(format, args...))
}

// Printf and Println let a diagnostics receive library error logs.
func (d *diagnostics) Printf(format string, v ...any) {
	d.add(format, v...)
}

func (d *diagnostics) Println(v ...any) {
	msg := fmt.Sprintln(v...)
	d.add("%s", msg[:len(msg)-1])
}

func (d *diagnostics) list() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.msgs) == 0 {
		return nil
	}
	out := make([]string, len(d.msgs))
	copy(out, d.msgs)
	return out
}
