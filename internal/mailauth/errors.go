package mailauth

import (
	"fmt"
	"sort"
	"sync"
)

// Configuration error codes. The numbers are stable.
const (
	CodeOutOfRange          = 1
	CodeUnknownServerType   = 2
	CodeUnknownPasswordType = 3
	CodeNoAuthMethod        = 4
	CodeMissingServerURL    = 5

	// CodeUnknown is reported when an error is raised with a code the
	// catalogue does not know.
	CodeUnknown = 255
)

// Sentinels for errors.Is. Matching is by code only, so localized
// descriptions still match.
var (
	ErrOutOfRange          = &ConfigError{Code: CodeOutOfRange}
	ErrUnknownServerType   = &ConfigError{Code: CodeUnknownServerType}
	ErrUnknownPasswordType = &ConfigError{Code: CodeUnknownPasswordType}
	ErrNoAuthMethod        = &ConfigError{Code: CodeNoAuthMethod}
	ErrMissingServerURL    = &ConfigError{Code: CodeMissingServerURL}
)

// ConfigError reports a caller or programming mistake in the configuration.
// It is never produced by network conditions.
type ConfigError struct {
	Code        int
	Description string
	Remediation string
}

func (e *ConfigError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("mailauth: configuration error %d", e.Code)
	}
	return fmt.Sprintf("mailauth: %s (code %d)", e.Description, e.Code)
}

// Is matches any *ConfigError with the same code.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	return ok && t.Code == e.Code
}

// Entry is the catalogue text for one error code.
type Entry struct {
	Description string `toml:"description"`
	Remediation string `toml:"remediation"`
}

func defaultEntries() map[int]Entry {
	return map[int]Entry{
		CodeOutOfRange: {
			Description: "Port number out of range",
			Remediation: "Please ensure that the port number is set between 1 & 65535",
		},
		CodeUnknownServerType: {
			Description: "Invalid Server Type",
			Remediation: "Valid server types are POP3 / POP3S / IMAP / IMAPS / SMTP / SMTPS",
		},
		CodeUnknownPasswordType: {
			Description: "Invalid Password Type",
			Remediation: "Valid password types are : plain",
		},
		CodeNoAuthMethod: {
			Description: "Server type has no authentication methods",
			Remediation: "The server type is registered without an authentication strategy; this is a bug",
		},
		CodeMissingServerURL: {
			Description: "Server URL not set",
			Remediation: "Set the mail server host name or address before authenticating",
		},
	}
}

// Catalog maps error codes to their description and remediation text.
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[int]Entry
}

// NewCatalog returns a catalogue holding the default entries.
func NewCatalog() *Catalog {
	return &Catalog{entries: defaultEntries()}
}

// Merge overlays overrides onto the catalogue. For codes already present only
// the non-empty fields of the override replace the current text; unknown codes
// are added. Codes absent from overrides are untouched.
func (c *Catalog) Merge(overrides map[int]Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for code, o := range overrides {
		e := c.entries[code]
		if o.Description != "" {
			e.Description = o.Description
		}
		if o.Remediation != "" {
			e.Remediation = o.Remediation
		}
		c.entries[code] = e
	}
}

// Lookup returns the entry for code.
func (c *Catalog) Lookup(code int) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[code]
	return e, ok
}

// Entries returns a copy of every entry.
func (c *Catalog) Entries() map[int]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]Entry, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Codes returns the known codes in ascending order.
func (c *Catalog) Codes() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Error builds the ConfigError for code. An unknown code yields CodeUnknown
// with a message naming the bad code.
func (c *Catalog) Error(code int) *ConfigError {
	if e, ok := c.Lookup(code); ok {
		return &ConfigError{Code: code, Description: e.Description, Remediation: e.Remediation}
	}
	return &ConfigError{
		Code:        CodeUnknown,
		Description: fmt.Sprintf("Something bad has happened Error code :%d: is invalid", code),
	}
}
