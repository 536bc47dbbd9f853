package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/infodancer/mailauth/internal/config"
	"github.com/infodancer/mailauth/internal/testutil"
)

func smtpServer(t *testing.T, authReply string) *testutil.LineServer {
	t.Helper()
	return testutil.NewScriptServer(t, nil, "220 ready\r\n",
		"250 ok\r\n", "334 VXNlcm5hbWU6\r\n", "334 UGFzc3dvcmQ6\r\n", authReply, "221 bye\r\n")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailauth.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunExitStatus(t *testing.T) {
	tests := []struct {
		name      string
		authReply string
		want      int
		wantOut   string
	}{
		{name: "authenticated", authReply: "235 ok\r\n", want: exitAuthenticated, wantOut: "authenticated"},
		{name: "rejected", authReply: "535 no\r\n", want: exitRejected, wantOut: "rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := smtpServer(t, tt.authReply)
			t.Setenv(config.EnvPassword, "s3cret")

			var stdout, stderr bytes.Buffer
			code := run(context.Background(), &config.Flags{
				ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
				ServerURL:  srv.Host(),
				ServerType: "smtp",
				Port:       srv.Port(),
				Username:   "alice",
				Timeout:    "2s",
			}, &stdout, &stderr)

			if code != tt.want {
				t.Fatalf("run() = %d, want %d; stderr:\n%s", code, tt.want, stderr.String())
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.wantOut)
			}
		})
	}
}

func TestRunUndeterminedWritesMetrics(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "mailauth.prom")
	port := testutil.ClosedPort(t)
	path := writeConfig(t, `
[mailauth]
server_url = "127.0.0.1"
server_type = "smtp"
port = `+strconv.Itoa(port)+`
timeout = "2s"

[mailauth.metrics]
textfile = "`+textfile+`"
`)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), &config.Flags{ConfigPath: path}, &stdout, &stderr)
	if code != exitUndetermined {
		t.Fatalf("run() = %d, want %d; stderr:\n%s", code, exitUndetermined, stderr.String())
	}
	if !strings.Contains(stdout.String(), "detail: dial") {
		t.Errorf("stdout = %q, want transport detail", stdout.String())
	}

	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(data), `mailauth_auth_attempts_total{outcome="undetermined",server_type="SMTP"} 1`) {
		t.Errorf("metrics textfile missing attempt counter:\n%s", data)
	}
}

func TestRunConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		flags   config.Flags
		wantErr string
	}{
		{
			name:    "missing server",
			flags:   config.Flags{ServerType: "smtp"},
			wantErr: "error 5",
		},
		{
			name:    "unknown type",
			flags:   config.Flags{ServerURL: "mail.example.com", ServerType: "gopher"},
			wantErr: "error 2",
		},
		{
			name:    "port out of range",
			flags:   config.Flags{ServerURL: "mail.example.com", ServerType: "smtp", Port: 99999},
			wantErr: "error 1",
		},
		{
			name:    "explicit zero port",
			flags:   config.Flags{ServerURL: "mail.example.com", ServerType: "smtp", Port: 0, PortSet: true},
			wantErr: "error 1",
		},
		{
			name:    "bad timeout",
			flags:   config.Flags{ServerURL: "mail.example.com", ServerType: "smtp", Timeout: "later"},
			wantErr: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := tt.flags
			flags.ConfigPath = filepath.Join(t.TempDir(), "none.toml")

			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), &flags, &stdout, &stderr); code != exitConfig {
				t.Fatalf("run() = %d, want %d", code, exitConfig)
			}
			if !strings.Contains(stderr.String(), tt.wantErr) {
				t.Errorf("stderr = %q, want %q", stderr.String(), tt.wantErr)
			}
		})
	}
}

func TestRunCatalogOverride(t *testing.T) {
	path := writeConfig(t, `
[mailauth]
server_url = "mail.example.com"
server_type = "nntp"

[mailauth.errors.2]
description = "Protocol not supported here"
`)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), &config.Flags{ConfigPath: path}, &stdout, &stderr); code != exitConfig {
		t.Fatalf("run() = %d, want %d", code, exitConfig)
	}
	if !strings.Contains(stderr.String(), "error 2: Protocol not supported here") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunRedactsSecrets(t *testing.T) {
	srv := smtpServer(t, "235 ok\r\n")
	t.Setenv(config.EnvPassword, "hunter2-secret")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), &config.Flags{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
		ServerURL:  srv.Host(),
		ServerType: "smtp",
		Port:       srv.Port(),
		Username:   "alice",
		LogLevel:   "debug",
	}, &stdout, &stderr)
	if code != exitAuthenticated {
		t.Fatalf("run() = %d; stderr:\n%s", code, stderr.String())
	}
	if strings.Contains(stderr.String(), "hunter2-secret") {
		t.Error("password written to the log")
	}
	if !strings.Contains(stderr.String(), "[redacted]") {
		t.Error("expected redacted payloads in the debug log")
	}
}
