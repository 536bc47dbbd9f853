package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Environment variables read by ApplyEnv.
const (
	EnvUsername      = "MAILAUTH_USERNAME"
	EnvPassword      = "MAILAUTH_PASSWORD"
	EnvProxyPassword = "MAILAUTH_PROXY_PASSWORD"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath      string
	EnvFile         string
	ServerURL       string
	ServerType      string
	Port            int
	PortSet         bool // -port given, even as 0
	Username        string
	PasswordType    string
	Hostname        string
	Timeout         string
	Insecure        bool
	LogLevel        string
	ShowSecrets     bool
	MetricsTextfile string
	Proxy           string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f, _ := parseFlags(flag.CommandLine, os.Args[1:])
	return f
}

func parseFlags(fs *flag.FlagSet, args []string) (*Flags, error) {
	f := &Flags{}

	fs.StringVar(&f.ConfigPath, "config", "./mailauth.toml", "Path to configuration file")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "Path to an environment file holding secrets")
	fs.StringVar(&f.ServerURL, "server", "", "Mail server host name or address")
	fs.StringVar(&f.ServerType, "type", "", "Server type (POP3, POP3S, IMAP, IMAPS, SMTP, SMTPS)")
	fs.IntVar(&f.Port, "port", 0, "Server port (default depends on type)")
	fs.StringVar(&f.Username, "user", "", "User name to authenticate as")
	fs.StringVar(&f.PasswordType, "password-type", "", "Password type (plain)")
	fs.StringVar(&f.Hostname, "hostname", "", "Local host name sent in HELO")
	fs.StringVar(&f.Timeout, "timeout", "", "Connect and read timeout, e.g. 30s")
	fs.BoolVar(&f.Insecure, "insecure", false, "Skip TLS certificate verification")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&f.ShowSecrets, "show-secrets", false, "Log credentials unredacted at debug level")
	fs.StringVar(&f.MetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file")
	fs.StringVar(&f.Proxy, "proxy", "", "SOCKS5 proxy address (host:port)")

	err := fs.Parse(args)
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "port" {
			f.PortSet = true
		}
	})
	return f, err
}

// LoadEnvFile loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
// The loader reads from both [server] (shared settings) and [mailauth] (specific settings),
// with [mailauth] values taking precedence over [server] values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	// First merge shared server config into defaults
	cfg = mergeServerConfig(cfg, fileConfig.Server)

	// Then merge mailauth-specific config (takes precedence)
	cfg = mergeConfig(cfg, fileConfig.Mailauth)

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.ServerURL != "" {
		cfg.ServerURL = f.ServerURL
	}

	if f.ServerType != "" {
		cfg.ServerType = f.ServerType
	}

	if f.PortSet || f.Port != 0 {
		port := f.Port
		cfg.Port = &port
	}

	if f.Username != "" {
		cfg.Username = f.Username
	}

	if f.PasswordType != "" {
		cfg.PasswordType = f.PasswordType
	}

	if f.Hostname != "" {
		cfg.ClientHostname = f.Hostname
	}

	if f.Timeout != "" {
		cfg.Timeout = f.Timeout
	}

	if f.Insecure {
		cfg.SkipCertVerify = true
	}

	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if f.ShowSecrets {
		cfg.ShowSecrets = true
	}

	if f.MetricsTextfile != "" {
		cfg.Metrics.Textfile = f.MetricsTextfile
	}

	if f.Proxy != "" {
		cfg.Proxy.Address = f.Proxy
	}

	return cfg
}

// ApplyEnv overrides credentials from the environment. getenv is usually
// os.Getenv.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	if v := getenv(EnvUsername); v != "" {
		cfg.Username = v
	}

	if v := getenv(EnvPassword); v != "" {
		cfg.Password = v
	}

	if v := getenv(EnvProxyPassword); v != "" {
		cfg.Proxy.Password = v
	}

	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies environment and flag overrides, in that order.
func LoadWithFlags(f *Flags) (Config, error) {
	if err := LoadEnvFile(f.EnvFile); err != nil {
		return Default(), err
	}
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg = ApplyEnv(cfg, os.Getenv)
	return ApplyFlags(cfg, f), nil
}

// mergeServerConfig merges shared server settings into the config.
func mergeServerConfig(dst Config, src ServerConfig) Config {
	if src.Hostname != "" {
		dst.ClientHostname = src.Hostname
	}

	if src.TLS.CAFile != "" {
		dst.TLS.CAFile = src.TLS.CAFile
	}

	if src.TLS.MinVersion != "" {
		dst.TLS.MinVersion = src.TLS.MinVersion
	}

	return dst
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.ServerURL != "" {
		dst.ServerURL = src.ServerURL
	}

	if src.ServerType != "" {
		dst.ServerType = src.ServerType
	}

	if src.Port != nil {
		port := *src.Port
		dst.Port = &port
	}

	if src.Username != "" {
		dst.Username = src.Username
	}

	if src.Password != "" {
		dst.Password = src.Password
	}

	if src.PasswordType != "" {
		dst.PasswordType = src.PasswordType
	}

	if src.SkipCertVerify {
		dst.SkipCertVerify = true
	}

	if src.Timeout != "" {
		dst.Timeout = src.Timeout
	}

	if src.ClientHostname != "" {
		dst.ClientHostname = src.ClientHostname
	}

	if src.LineTerminator != "" {
		dst.LineTerminator = src.LineTerminator
	}

	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	if src.ShowSecrets {
		dst.ShowSecrets = true
	}

	if src.TLS.CAFile != "" {
		dst.TLS.CAFile = src.TLS.CAFile
	}

	if src.TLS.MinVersion != "" {
		dst.TLS.MinVersion = src.TLS.MinVersion
	}

	if src.Proxy.Address != "" {
		dst.Proxy.Address = src.Proxy.Address
	}

	if src.Proxy.Username != "" {
		dst.Proxy.Username = src.Proxy.Username
	}

	if src.Proxy.Password != "" {
		dst.Proxy.Password = src.Proxy.Password
	}

	if src.Metrics.Textfile != "" {
		dst.Metrics.Textfile = src.Metrics.Textfile
	}

	if src.Errors != nil {
		if dst.Errors == nil {
			dst.Errors = make(map[string]ErrorText)
		}
		for k, v := range src.Errors {
			dst.Errors[k] = v
		}
	}

	return dst
}
