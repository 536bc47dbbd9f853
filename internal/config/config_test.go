package config

import (
	"crypto/tls"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/infodancer/mailauth/internal/event"
	"github.com/infodancer/mailauth/internal/mailauth"
	"github.com/infodancer/mailauth/internal/testutil"
)

func intPtr(v int) *int {
	return &v
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.PasswordType != "plain" {
		t.Errorf("expected password_type 'plain', got %q", cfg.PasswordType)
	}

	if cfg.Timeout != "30s" {
		t.Errorf("expected timeout '30s', got %q", cfg.Timeout)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected log_level 'info', got %q", cfg.LogLevel)
	}

	if cfg.ClientHostname != "localhost" {
		t.Errorf("expected client_hostname 'localhost', got %q", cfg.ClientHostname)
	}

	if cfg.TLS.MinVersion != "1.2" {
		t.Errorf("expected TLS min_version '1.2', got %q", cfg.TLS.MinVersion)
	}

	if cfg.SkipCertVerify {
		t.Error("expected certificate verification on by default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid timeout",
			modify:  func(c *Config) { c.Timeout = "soon" },
			wantErr: true,
		},
		{
			name:    "negative timeout",
			modify:  func(c *Config) { c.Timeout = "-5s" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid TLS min_version",
			modify:  func(c *Config) { c.TLS.MinVersion = "1.4" },
			wantErr: true,
		},
		{
			name:    "proxy credentials without address",
			modify:  func(c *Config) { c.Proxy.Username = "relayuser" },
			wantErr: true,
		},
		{
			name: "proxy with address",
			modify: func(c *Config) {
				c.Proxy = ProxyConfig{Address: "127.0.0.1:1080", Username: "relayuser", Password: "x"}
			},
			wantErr: false,
		},
		{
			name:    "non-numeric error code",
			modify:  func(c *Config) { c.Errors = map[string]ErrorText{"two": {Description: "x"}} },
			wantErr: true,
		},
		{
			name:    "error code zero",
			modify:  func(c *Config) { c.Errors = map[string]ErrorText{"0": {Description: "x"}} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeoutDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 30 * time.Second},
		{"5s", 5 * time.Second},
		{"1m30s", 90 * time.Second},
		{"0s", 30 * time.Second},
		{"bogus", 30 * time.Second},
	}
	for _, tt := range tests {
		c := Config{Timeout: tt.value}
		if got := c.TimeoutDuration(); got != tt.want {
			t.Errorf("TimeoutDuration(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestMinTLSVersion(t *testing.T) {
	tests := []struct {
		version string
		want    uint16
	}{
		{"1.0", tls.VersionTLS10},
		{"1.1", tls.VersionTLS11},
		{"1.2", tls.VersionTLS12},
		{"1.3", tls.VersionTLS13},
		{"", tls.VersionTLS12},
		{"invalid", tls.VersionTLS12},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			cfg := TLSConfig{MinVersion: tt.version}
			if got := cfg.MinTLSVersion(); got != tt.want {
				t.Errorf("MinTLSVersion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientTLSConfig(t *testing.T) {
	cfg := Default()
	tc, err := cfg.ClientTLSConfig()
	if err != nil {
		t.Fatalf("ClientTLSConfig() error = %v", err)
	}
	if tc.RootCAs != nil {
		t.Error("expected system roots without a CA file")
	}
	if tc.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %v", tc.MinVersion)
	}

	serverTLS, _ := testutil.GenerateTLS(t)
	caPath := filepath.Join(t.TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: serverTLS.Certificates[0].Certificate[0]}
	if err := os.WriteFile(caPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.TLS.CAFile = caPath
	tc, err = cfg.ClientTLSConfig()
	if err != nil {
		t.Fatalf("ClientTLSConfig() error = %v", err)
	}
	if tc.RootCAs == nil {
		t.Error("expected RootCAs from the CA file")
	}

	cfg.TLS.CAFile = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := cfg.ClientTLSConfig(); err == nil {
		t.Error("expected an error for a missing CA file")
	}

	empty := filepath.Join(t.TempDir(), "empty.pem")
	if err := os.WriteFile(empty, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.TLS.CAFile = empty
	if _, err := cfg.ClientTLSConfig(); err == nil {
		t.Error("expected an error for a CA file without certificates")
	}
}

func TestProxyConfig(t *testing.T) {
	cfg := Default()
	if cfg.ProxyConfig() != nil {
		t.Error("expected no proxy by default")
	}
	cfg.Proxy = ProxyConfig{Address: "127.0.0.1:1080", Username: "u", Password: "p"}
	p := cfg.ProxyConfig()
	if p == nil || p.Address != "127.0.0.1:1080" || p.Username != "u" || p.Password != "p" {
		t.Errorf("ProxyConfig() = %+v", p)
	}
}

func TestErrorOverrides(t *testing.T) {
	cfg := Default()
	overrides, err := cfg.ErrorOverrides()
	if err != nil || overrides != nil {
		t.Fatalf("ErrorOverrides() = %v, %v", overrides, err)
	}

	cfg.Errors = map[string]ErrorText{
		"2":  {Description: "Unsupported protocol"},
		"42": {Description: "custom", Remediation: "fix it"},
	}
	overrides, err = cfg.ErrorOverrides()
	if err != nil {
		t.Fatalf("ErrorOverrides() error = %v", err)
	}
	if overrides[2].Description != "Unsupported protocol" || overrides[2].Remediation != "" {
		t.Errorf("overrides[2] = %+v", overrides[2])
	}
	if overrides[42].Remediation != "fix it" {
		t.Errorf("overrides[42] = %+v", overrides[42])
	}
}

func TestAuthConfig(t *testing.T) {
	cfg := Default()
	cfg.ServerURL = "mail.example.com"
	cfg.ServerType = "imaps"
	cfg.Username = "alice"
	cfg.Password = "s3cret"
	cfg.SkipCertVerify = true
	cfg.Timeout = "5s"
	cfg.ClientHostname = "client.example.com"

	rec := &event.Recorder{}
	ac, err := cfg.AuthConfig(mailauth.NewBuilder(rec, nil))
	if err != nil {
		t.Fatalf("AuthConfig() error = %v", err)
	}

	if ac.ServerType() != mailauth.IMAPS || ac.Port() != 993 {
		t.Errorf("type/port = %s/%d", ac.ServerType(), ac.Port())
	}
	if ac.VerifyTLS() {
		t.Error("VerifyTLS() = true with skip_cert_verify")
	}
	if ac.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v", ac.Timeout())
	}
	if ac.LineTerminator() != "\r\n" {
		t.Errorf("LineTerminator() = %q", ac.LineTerminator())
	}
	if ac.ClientHostname() != "client.example.com" || ac.Username() != "alice" || ac.Password() != "s3cret" {
		t.Errorf("AuthConfig() = %+v", ac)
	}
	if len(rec.OfKind(event.KindConfig)) == 0 {
		t.Error("no config events emitted")
	}
}

func TestAuthConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"missing server", func(c *Config) { c.ServerURL = "" }, mailauth.ErrMissingServerURL},
		{"missing type", func(c *Config) { c.ServerType = "" }, mailauth.ErrUnknownServerType},
		{"bad type", func(c *Config) { c.ServerType = "nntp" }, mailauth.ErrUnknownServerType},
		{"bad port", func(c *Config) { c.Port = intPtr(70000) }, mailauth.ErrOutOfRange},
		{"explicit zero port", func(c *Config) { c.Port = intPtr(0) }, mailauth.ErrOutOfRange},
		{"bad password type", func(c *Config) { c.PasswordType = "md5" }, mailauth.ErrUnknownPasswordType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ServerURL = "mail.example.com"
			cfg.ServerType = "smtp"
			tt.modify(&cfg)

			_, err := cfg.AuthConfig(mailauth.NewBuilder(nil, nil))
			if !errors.Is(err, tt.want) {
				t.Errorf("AuthConfig() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthConfigExplicitPort(t *testing.T) {
	cfg := Default()
	cfg.ServerURL = "mail.example.com"
	cfg.ServerType = "smtp"
	cfg.Port = intPtr(587)
	cfg.LineTerminator = "\n"

	ac, err := cfg.AuthConfig(mailauth.NewBuilder(nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if ac.Port() != 587 {
		t.Errorf("Port() = %d, want 587", ac.Port())
	}
	if ac.LineTerminator() != "\n" {
		t.Errorf("LineTerminator() = %q", ac.LineTerminator())
	}
}
