package mailauth

import (
	"sort"
	"strings"
)

// ServerType identifies the protocol spoken to the mail server.
type ServerType string

const (
	POP3  ServerType = "POP3"
	POP3S ServerType = "POP3S"
	IMAP  ServerType = "IMAP"
	IMAPS ServerType = "IMAPS"
	SMTP  ServerType = "SMTP"
	SMTPS ServerType = "SMTPS"
)

// Family groups server types by how they are checked.
type Family int

const (
	// FamilyMailbox types are verified by opening a mailbox session.
	FamilyMailbox Family = iota

	// FamilyLine types are verified by driving the SMTP AUTH LOGIN exchange.
	FamilyLine
)

// String returns the string representation of the family.
func (f Family) String() string {
	switch f {
	case FamilyMailbox:
		return "mailbox"
	case FamilyLine:
		return "line"
	default:
		return "unknown"
	}
}

type registration struct {
	port   int
	family Family
	tls    bool
}

var registry = map[ServerType]registration{
	POP3:  {port: 110, family: FamilyMailbox},
	POP3S: {port: 995, family: FamilyMailbox, tls: true},
	IMAP:  {port: 143, family: FamilyMailbox},
	IMAPS: {port: 993, family: FamilyMailbox, tls: true},
	SMTP:  {port: 25, family: FamilyLine},
	SMTPS: {port: 465, family: FamilyLine, tls: true},
}

// ParseServerType normalizes s to upper case and reports whether it names a
// registered server type.
func ParseServerType(s string) (ServerType, bool) {
	t := ServerType(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := registry[t]
	return t, ok
}

// Valid reports whether t is registered.
func (t ServerType) Valid() bool {
	_, ok := registry[t]
	return ok
}

// DefaultPort returns the registered port for t, or 0.
func (t ServerType) DefaultPort() int {
	return registry[t].port
}

// Family returns the protocol family of t.
func (t ServerType) Family() Family {
	return registry[t].family
}

// ImplicitTLS reports whether t wraps the whole session in TLS.
func (t ServerType) ImplicitTLS() bool {
	return registry[t].tls
}

// ServerTypes returns all registered server types in a stable order.
func ServerTypes() []ServerType {
	out := make([]ServerType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PasswordType names how the password is presented to the server.
type PasswordType string

// PasswordPlain sends the password as given.
const PasswordPlain PasswordType = "plain"

var passwordTypes = map[PasswordType]struct{}{
	PasswordPlain: {},
}

// ParsePasswordType reports whether s names a registered password type.
// Matching is exact.
func ParsePasswordType(s string) (PasswordType, bool) {
	_, ok := passwordTypes[PasswordType(s)]
	return PasswordType(s), ok
}

// PasswordTypes returns the registered password types.
func PasswordTypes() []PasswordType {
	out := make([]PasswordType, 0, len(passwordTypes))
	for p := range passwordTypes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
