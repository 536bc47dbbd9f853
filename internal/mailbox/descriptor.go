package mailbox

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Protocols understood in a descriptor.
const (
	ProtocolPOP3 = "pop3"
	ProtocolIMAP = "imap"
)

// Descriptor flags.
const (
	flagSSL            = "ssl"
	flagNoValidateCert = "novalidate-cert"
)

// ErrBadDescriptor is returned by ParseDescriptor for malformed input.
var ErrBadDescriptor = errors.New("malformed mailbox descriptor")

// Descriptor identifies a mailbox server session, written as
// {host:port/protocol[/ssl][/novalidate-cert]}.
type Descriptor struct {
	Host     string
	Port     int
	Protocol string

	// SSL selects implicit TLS.
	SSL bool

	// NoValidateCert disables certificate verification for implicit TLS and
	// for an opportunistic STARTTLS upgrade.
	NoValidateCert bool
}

// Addr returns host:port.
func (d Descriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Suffix returns the flag part of the descriptor, starting with '/'.
func (d Descriptor) Suffix() string {
	var b strings.Builder
	b.WriteString("/" + d.Protocol)
	if d.SSL {
		b.WriteString("/" + flagSSL)
	}
	if d.NoValidateCert {
		b.WriteString("/" + flagNoValidateCert)
	}
	return b.String()
}

func (d Descriptor) String() string {
	return "{" + d.Addr() + d.Suffix() + "}"
}

// ParseDescriptor parses the form produced by Descriptor.String.
func ParseDescriptor(s string) (Descriptor, error) {
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrBadDescriptor, s)
	}
	parts := strings.Split(s[1:len(s)-1], "/")
	if len(parts) < 2 {
		return Descriptor{}, fmt.Errorf("%w: %q: no protocol", ErrBadDescriptor, s)
	}

	host, portStr, err := net.SplitHostPort(parts[0])
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %q: %v", ErrBadDescriptor, s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Descriptor{}, fmt.Errorf("%w: %q: bad port", ErrBadDescriptor, s)
	}

	d := Descriptor{Host: host, Port: port, Protocol: strings.ToLower(parts[1])}
	if d.Protocol != ProtocolPOP3 && d.Protocol != ProtocolIMAP {
		return Descriptor{}, fmt.Errorf("%w: %q: unknown protocol %q", ErrBadDescriptor, s, parts[1])
	}
	for _, flag := range parts[2:] {
		switch strings.ToLower(flag) {
		case flagSSL:
			d.SSL = true
		case flagNoValidateCert:
			d.NoValidateCert = true
		default:
			return Descriptor{}, fmt.Errorf("%w: %q: unknown flag %q", ErrBadDescriptor, s, flag)
		}
	}
	return d, nil
}
