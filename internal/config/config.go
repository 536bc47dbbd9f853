// Package config provides configuration management for mailauth.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/infodancer/mailauth/internal/logging"
	"github.com/infodancer/mailauth/internal/mailauth"
	"github.com/infodancer/mailauth/internal/transport"
)

// FileConfig is the top-level wrapper for the shared configuration file.
// This allows mailauth to share a single config file with the mail services.
type FileConfig struct {
	Server   ServerConfig `toml:"server"`
	Mailauth Config       `toml:"mailauth"`
}

// ServerConfig holds shared settings used by all mail services.
type ServerConfig struct {
	Hostname string    `toml:"hostname"`
	TLS      TLSConfig `toml:"tls"`
}

// Config holds the check configuration.
type Config struct {
	ServerURL      string `toml:"server_url"`
	ServerType     string `toml:"server_type"`
	Port           *int   `toml:"port"` // nil means the type's default
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	PasswordType   string `toml:"password_type"`
	SkipCertVerify bool   `toml:"skip_cert_verify"`
	Timeout        string `toml:"timeout"`
	ClientHostname string `toml:"client_hostname"`
	LineTerminator string `toml:"line_terminator"`
	LogLevel       string `toml:"log_level"`

	// ShowSecrets disables redaction of credentials in debug logs.
	ShowSecrets bool `toml:"show_secrets"`

	TLS     TLSConfig            `toml:"tls"`
	Proxy   ProxyConfig          `toml:"proxy"`
	Metrics MetricsConfig        `toml:"metrics"`
	Errors  map[string]ErrorText `toml:"errors"`
}

// TLSConfig holds client TLS settings.
type TLSConfig struct {
	CAFile     string `toml:"ca_file"`
	MinVersion string `toml:"min_version"`
}

// ProxyConfig describes an optional SOCKS5 proxy.
type ProxyConfig struct {
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// MetricsConfig holds configuration for Prometheus metrics.
type MetricsConfig struct {
	// Textfile is written in the node exporter textfile format after the
	// check when non-empty.
	Textfile string `toml:"textfile"`
}

// ErrorText overrides the catalogue text for one error code.
type ErrorText struct {
	Description string `toml:"description"`
	Remediation string `toml:"remediation"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		PasswordType:   string(mailauth.PasswordPlain),
		Timeout:        "30s",
		ClientHostname: "localhost",
		LogLevel:       "info",
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
	}
}

// Validate checks that the configuration is valid and returns an error if not.
// The server address, type, port and password type are checked later by the
// mailauth builder so that they are reported with catalogue error codes.
func (c *Config) Validate() error {
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
	}

	if c.LogLevel != "" && !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.TLS.MinVersion != "" {
		if _, ok := minTLSVersions[c.TLS.MinVersion]; !ok {
			return fmt.Errorf("invalid TLS min_version %q (valid: 1.0, 1.1, 1.2, 1.3)", c.TLS.MinVersion)
		}
	}

	if c.Proxy.Address == "" && (c.Proxy.Username != "" || c.Proxy.Password != "") {
		return errors.New("proxy address is required when proxy credentials are set")
	}

	if _, err := c.ErrorOverrides(); err != nil {
		return err
	}

	return nil
}

// TimeoutDuration returns the timeout as a time.Duration.
// Returns mailauth.DefaultTimeout if not configured or invalid.
func (c *Config) TimeoutDuration() time.Duration {
	if c.Timeout == "" {
		return mailauth.DefaultTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return mailauth.DefaultTimeout
	}
	return d
}

// MinTLSVersion returns the crypto/tls constant for the configured minimum TLS version.
// Returns tls.VersionTLS12 if not configured or invalid.
func (c *TLSConfig) MinTLSVersion() uint16 {
	if v, ok := minTLSVersions[c.MinVersion]; ok {
		return v
	}
	return tls.VersionTLS12
}

// ClientTLSConfig builds the TLS template for outgoing connections. The CA
// file, when set, replaces the system roots.
func (c *Config) ClientTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: c.TLS.MinTLSVersion()}
	if c.TLS.CAFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(c.TLS.CAFile)
	if err != nil {
		return nil, fmt.Errorf("reading CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", c.TLS.CAFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// ProxyConfig returns the transport proxy settings, or nil for direct
// connections.
func (c *Config) ProxyConfig() *transport.ProxyConfig {
	if c.Proxy.Address == "" {
		return nil
	}
	return &transport.ProxyConfig{
		Address:  c.Proxy.Address,
		Username: c.Proxy.Username,
		Password: c.Proxy.Password,
	}
}

// ErrorOverrides converts the [mailauth.errors] tables into catalogue entries.
func (c *Config) ErrorOverrides() (map[int]mailauth.Entry, error) {
	if len(c.Errors) == 0 {
		return nil, nil
	}
	out := make(map[int]mailauth.Entry, len(c.Errors))
	for key, text := range c.Errors {
		code, err := strconv.Atoi(key)
		if err != nil || code <= 0 {
			return nil, fmt.Errorf("invalid error code %q", key)
		}
		out[code] = mailauth.Entry{Description: text.Description, Remediation: text.Remediation}
	}
	return out, nil
}

// AuthConfig feeds the configuration through b and returns the validated
// result. Errors are *mailauth.ConfigError values from the builder.
func (c *Config) AuthConfig(b *mailauth.Builder) (mailauth.Config, error) {
	b.SetServerURL(c.ServerURL)
	if c.Port != nil {
		if err := b.SetServerPort(*c.Port); err != nil {
			return mailauth.Config{}, err
		}
	}
	if c.ServerType != "" {
		if err := b.SetServerType(c.ServerType); err != nil {
			return mailauth.Config{}, err
		}
	}
	if c.PasswordType != "" {
		if err := b.SetPasswordType(c.PasswordType); err != nil {
			return mailauth.Config{}, err
		}
	}
	b.SetUsername(c.Username)
	b.SetPassword(c.Password)
	b.SetVerifyTLS(!c.SkipCertVerify)
	b.SetTimeout(c.TimeoutDuration())
	b.SetClientHostname(c.ClientHostname)
	b.SetLineTerminator(c.LineTerminator)
	return b.Build()
}

var minTLSVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}
