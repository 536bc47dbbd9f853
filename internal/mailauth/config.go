package mailauth

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/infodancer/mailauth/internal/event"
)

const (
	// DefaultTimeout bounds the connect and each read of the SMTP exchange.
	DefaultTimeout = 30 * time.Second

	// DefaultLineTerminator ends every line sent to an SMTP server.
	DefaultLineTerminator = "\r\n"

	minPort = 1
	maxPort = 65535
)

// Config is a validated, immutable description of one authentication attempt.
// Build one with a Builder.
type Config struct {
	serverURL      string
	serverType     ServerType
	port           int
	username       string
	password       string
	passwordType   PasswordType
	verifyTLS      bool
	timeout        time.Duration
	clientHostname string
	lineTerminator string
}

func (c Config) ServerURL() string          { return c.serverURL }
func (c Config) ServerType() ServerType     { return c.serverType }
func (c Config) Port() int                  { return c.port }
func (c Config) Username() string           { return c.username }
func (c Config) Password() string           { return c.password }
func (c Config) PasswordType() PasswordType { return c.passwordType }
func (c Config) VerifyTLS() bool            { return c.verifyTLS }
func (c Config) Timeout() time.Duration     { return c.timeout }
func (c Config) ClientHostname() string     { return c.clientHostname }
func (c Config) LineTerminator() string     { return c.lineTerminator }

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.serverURL, strconv.Itoa(c.port))
}

// Builder returns a builder seeded with c, for re-running an attempt with
// some fields changed. obs and catalog may be nil.
func (c Config) Builder(obs event.Observer, catalog *Catalog) *Builder {
	b := NewBuilder(obs, catalog)
	b.cfg = c
	b.portSet = c.port != 0
	return b
}

// Builder accumulates and validates configuration. Each setter validates its
// input at call time and reports a *ConfigError on rejection, leaving the
// builder unchanged. Every accepted change is reported to the observer.
type Builder struct {
	cfg     Config
	portSet bool

	obs     event.Observer
	catalog *Catalog
}

// NewBuilder returns a builder holding the defaults: plain password type,
// TLS verification on, 30 second timeout, CRLF terminator.
// obs may be nil; catalog nil means the default catalogue.
func NewBuilder(obs event.Observer, catalog *Catalog) *Builder {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Builder{
		cfg: Config{
			passwordType:   PasswordPlain,
			verifyTLS:      true,
			timeout:        DefaultTimeout,
			lineTerminator: DefaultLineTerminator,
		},
		obs:     event.OrNop(obs),
		catalog: catalog,
	}
}

func (b *Builder) changed(field, value string) {
	event.Emit(context.Background(), b.obs, event.KindConfig, field+" set to", value)
}

func (b *Builder) changedSensitive(field, value string) {
	event.EmitSensitive(context.Background(), b.obs, event.KindConfig, field+" set to", value)
}

// fail reports a rejected change to the observer and returns its error.
func (b *Builder) fail(code int, value string) error {
	err := b.catalog.Error(code)
	event.Emit(context.Background(), b.obs, event.KindWarning, "Exception thrown!", err.Description, value)
	return err
}

// SetServerURL sets the host name or address of the mail server.
func (b *Builder) SetServerURL(url string) {
	b.cfg.serverURL = url
	b.changed("ServerURL", url)
}

// SetServerPort sets the port. Values outside 1..65535 are rejected.
func (b *Builder) SetServerPort(port int) error {
	if port < minPort || port > maxPort {
		return b.fail(CodeOutOfRange, strconv.Itoa(port))
	}
	b.cfg.port = port
	b.portSet = true
	b.changed("ServerPort", strconv.Itoa(port))
	return nil
}

// SetServerType sets the server type, case-insensitively. If no port has been
// set yet, the registered default port for the type is used.
func (b *Builder) SetServerType(s string) error {
	t, ok := ParseServerType(s)
	if !ok {
		return b.fail(CodeUnknownServerType, s)
	}
	b.cfg.serverType = t
	b.changed("ServerType", string(t))
	if !b.portSet {
		b.cfg.port = t.DefaultPort()
		b.portSet = true
		b.changed("ServerPort", strconv.Itoa(b.cfg.port))
	}
	return nil
}

// SetUsername sets the user name.
func (b *Builder) SetUsername(username string) {
	b.cfg.username = username
	b.changedSensitive("Username", username)
}

// SetPassword sets the password.
func (b *Builder) SetPassword(password string) {
	b.cfg.password = password
	b.changedSensitive("Password", password)
}

// SetPasswordType sets the password type; only registered types are accepted.
func (b *Builder) SetPasswordType(s string) error {
	p, ok := ParsePasswordType(s)
	if !ok {
		return b.fail(CodeUnknownPasswordType, s)
	}
	b.cfg.passwordType = p
	b.changed("PasswordType", string(p))
	return nil
}

// SetVerifyTLS toggles certificate validation for TLS sessions.
func (b *Builder) SetVerifyTLS(verify bool) {
	b.cfg.verifyTLS = verify
	b.changed("VerifyTLS", strconv.FormatBool(verify))
}

// SetTimeout sets the connect and read timeout. Non-positive values restore
// DefaultTimeout.
func (b *Builder) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	b.cfg.timeout = d
	b.changed("Timeout", d.String())
}

// SetClientHostname sets the name sent with HELO.
func (b *Builder) SetClientHostname(name string) {
	b.cfg.clientHostname = name
	b.changed("ClientHostname", name)
}

// SetLineTerminator sets the terminator appended to each line sent. An empty
// terminator restores CRLF.
func (b *Builder) SetLineTerminator(term string) {
	if term == "" {
		term = DefaultLineTerminator
	}
	b.cfg.lineTerminator = term
	b.changed("LineTerminator", strconv.Quote(term))
}

// Build returns the configuration. A server URL and server type are required.
func (b *Builder) Build() (Config, error) {
	if b.cfg.serverURL == "" {
		return Config{}, b.fail(CodeMissingServerURL, "")
	}
	if !b.cfg.serverType.Valid() {
		return Config{}, b.fail(CodeUnknownServerType, string(b.cfg.serverType))
	}
	return b.cfg, nil
}
