// Package transport opens the client connections used by every check:
// direct or SOCKS5-proxied TCP, optionally wrapped in TLS.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// ErrProxyNoContext is returned when the proxy dialer cannot honour a context.
var ErrProxyNoContext = errors.New("proxy dialer does not support contexts")

// ProxyConfig describes a SOCKS5 proxy.
type ProxyConfig struct {
	Address  string // host:port
	Username string
	Password string
}

// Dialer opens TCP connections with a connect timeout, optionally through a
// SOCKS5 proxy. The zero value dials directly with no timeout.
type Dialer struct {
	Timeout time.Duration
	Proxy   *ProxyConfig
}

// DialContext connects to addr on the named network.
// The timeout bounds the connect only; the returned conn has no deadline.
func (d Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	direct := &net.Dialer{Timeout: d.Timeout}
	if d.Proxy == nil || d.Proxy.Address == "" {
		return direct.DialContext(ctx, network, addr)
	}

	var auth *proxy.Auth
	if d.Proxy.Username != "" {
		auth = &proxy.Auth{
			User:     d.Proxy.Username,
			Password: d.Proxy.Password,
		}
	}

	pd, err := proxy.SOCKS5("tcp", d.Proxy.Address, auth, direct)
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 dialer: %w", err)
	}
	cd, ok := pd.(proxy.ContextDialer)
	if !ok {
		return nil, ErrProxyNoContext
	}
	conn, err := cd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("SOCKS5 via %s: %w", d.Proxy.Address, err)
	}
	return conn, nil
}

// DialTLS connects to addr and completes a TLS handshake within the timeout.
// cfg is cloned; its ServerName defaults to the host part of addr.
func (d Dialer) DialTLS(ctx context.Context, network, addr string, cfg *tls.Config) (*tls.Conn, error) {
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(conn, ClientTLSConfig(cfg, addr, true))
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("TLS handshake: %w", err)
	}
	return tlsConn, nil
}

// ClientTLSConfig returns a copy of base (or a fresh config) with ServerName
// set from addr when empty. verify=false disables certificate checks.
func ClientTLSConfig(base *tls.Config, addr string, verify bool) *tls.Config {
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		cfg.ServerName = host
	}
	if !verify {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
