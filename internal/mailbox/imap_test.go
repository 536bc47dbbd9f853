package mailbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/infodancer/mailauth/internal/testutil"
)

const imapGreeting = "* OK [CAPABILITY IMAP4rev1] ready\r\n"

// imapHandler accepts testPass for any user.
func imapHandler(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "* BAD empty command\r\n", false
	}
	tag, cmd := fields[0], strings.ToUpper(fields[1])
	switch cmd {
	case "CAPABILITY":
		return "* CAPABILITY IMAP4rev1\r\n" + tag + " OK CAPABILITY completed\r\n", false
	case "LOGIN":
		if strings.Contains(line, testPass) {
			return tag + " OK LOGIN completed\r\n", false
		}
		return tag + " NO [AUTHENTICATIONFAILED] Invalid credentials\r\n", false
	case "LOGOUT":
		return "* BYE logging out\r\n" + tag + " OK LOGOUT completed\r\n", true
	default:
		return tag + " BAD unknown command\r\n", false
	}
}

func TestOpenIMAP(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     bool
	}{
		{name: "accepted", password: testPass, want: true},
		{name: "rejected", password: "wrong", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewLineServer(t, nil, imapGreeting, imapHandler)
			d := Descriptor{Host: srv.Host(), Port: srv.Port(), Protocol: ProtocolIMAP, NoValidateCert: true}

			c := &Client{Timeout: 2 * time.Second}
			ok, diag := c.Open(context.Background(), d.String(), testUser, tt.password)
			if ok != tt.want {
				t.Fatalf("Open() = %v (%q), want %v", ok, diag, tt.want)
			}
			if !tt.want {
				found := false
				for _, msg := range diag {
					if strings.Contains(msg, "login") {
						found = true
					}
				}
				if !found {
					t.Errorf("diagnostics = %q, want a login failure", diag)
				}
			}

			var sawLogin bool
			for _, line := range srv.Received() {
				if strings.Contains(strings.ToUpper(line), " LOGIN ") {
					sawLogin = true
				}
			}
			if !sawLogin {
				t.Errorf("server never saw LOGIN: %q", srv.Received())
			}
		})
	}
}

func TestOpenIMAPS(t *testing.T) {
	serverTLS, clientTLS := testutil.GenerateTLS(t)

	tests := []struct {
		name           string
		noValidateCert bool
		trusted        bool
		want           bool
	}{
		{name: "novalidate-cert", noValidateCert: true, want: true},
		{name: "trusted roots", trusted: true, want: true},
		{name: "untrusted certificate", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testutil.NewLineServer(t, serverTLS, imapGreeting, imapHandler)
			d := Descriptor{Host: srv.Host(), Port: srv.Port(), Protocol: ProtocolIMAP, SSL: true, NoValidateCert: tt.noValidateCert}

			c := &Client{Timeout: 2 * time.Second}
			if tt.trusted {
				c.TLSConfig = clientTLS
			}
			ok, diag := c.Open(context.Background(), d.String(), testUser, testPass)
			if ok != tt.want {
				t.Fatalf("Open() = %v (%q), want %v", ok, diag, tt.want)
			}
		})
	}
}

func TestOpenIMAPSilentServer(t *testing.T) {
	srv := testutil.NewLineServer(t, nil, "", nil)
	d := Descriptor{Host: srv.Host(), Port: srv.Port(), Protocol: ProtocolIMAP}

	timeout := 200 * time.Millisecond
	c := &Client{Timeout: timeout}
	start := time.Now()
	ok, diag := c.Open(context.Background(), d.String(), testUser, testPass)
	if ok {
		t.Fatal("Open() = true against a silent server")
	}
	if time.Since(start) > 5*timeout {
		t.Errorf("Open() took %v, want about %v", time.Since(start), timeout)
	}
	if len(diag) == 0 {
		t.Error("no diagnostics for a silent server")
	}
}

func TestOpenIMAPCancelled(t *testing.T) {
	srv := testutil.NewLineServer(t, nil, "", nil)
	d := Descriptor{Host: srv.Host(), Port: srv.Port(), Protocol: ProtocolIMAP}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	c := &Client{Timeout: 10 * time.Second}
	start := time.Now()
	if ok, _ := c.Open(ctx, d.String(), testUser, testPass); ok {
		t.Fatal("Open() = true after cancellation")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the greeting read")
	}
}
