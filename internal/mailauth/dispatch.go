package mailauth

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/infodancer/mailauth/internal/event"
	"github.com/infodancer/mailauth/internal/logging"
	"github.com/infodancer/mailauth/internal/mailbox"
	"github.com/infodancer/mailauth/internal/metrics"
	"github.com/infodancer/mailauth/internal/smtpauth"
	"github.com/infodancer/mailauth/internal/transport"
)

// Strategy verifies the credentials in a Config against one kind of server.
type Strategy interface {
	Authenticate(ctx context.Context, cfg Config) Result
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(ctx context.Context, cfg Config) Result

// Authenticate calls f.
func (f StrategyFunc) Authenticate(ctx context.Context, cfg Config) Result {
	return f(ctx, cfg)
}

// AuthenticatorConfig holds the collaborators of an Authenticator. All fields
// are optional.
type AuthenticatorConfig struct {
	Observer  event.Observer
	Collector metrics.Collector

	// Mailbox opens POP3 and IMAP sessions. Nil uses a mailbox.Client built
	// from each Config's timeout.
	Mailbox mailbox.Opener

	Proxy     *transport.ProxyConfig
	TLSConfig *tls.Config

	// Strategies replaces the built-in table when non-nil.
	Strategies map[ServerType]Strategy

	Catalog *Catalog
}

// Authenticator routes a Config to the strategy for its server type and
// remembers the latest result. Calls are serialized, so one Authenticator
// runs at most one attempt at a time.
type Authenticator struct {
	obs        event.Observer
	collector  metrics.Collector
	opener     mailbox.Opener
	proxy      *transport.ProxyConfig
	tlsConfig  *tls.Config
	strategies map[ServerType]Strategy
	catalog    *Catalog

	mu   sync.Mutex
	last Result
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthenticatorConfig) *Authenticator {
	a := &Authenticator{
		obs:       event.OrNop(cfg.Observer),
		collector: metrics.OrNoop(cfg.Collector),
		opener:    cfg.Mailbox,
		proxy:     cfg.Proxy,
		tlsConfig: cfg.TLSConfig,
		catalog:   cfg.Catalog,
	}
	if a.catalog == nil {
		a.catalog = NewCatalog()
	}

	a.strategies = cfg.Strategies
	if a.strategies == nil {
		mailboxStrategy := StrategyFunc(a.authenticateMailbox)
		lineStrategy := StrategyFunc(a.authenticateSMTP)
		a.strategies = map[ServerType]Strategy{
			POP3:  mailboxStrategy,
			POP3S: mailboxStrategy,
			IMAP:  mailboxStrategy,
			IMAPS: mailboxStrategy,
			SMTP:  lineStrategy,
			SMTPS: lineStrategy,
		}
	}
	return a
}

// Authenticate runs one attempt. A *ConfigError with CodeNoAuthMethod is
// returned when no strategy handles cfg's server type; every network outcome
// is reported in the Result instead.
func (a *Authenticator) Authenticate(ctx context.Context, cfg Config) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := cfg.ServerType()
	strategy, ok := a.strategies[st]
	if !ok {
		err := a.catalog.Error(CodeNoAuthMethod)
		event.Emit(ctx, a.obs, event.KindWarning, "Exception thrown!", err.Description, string(st))
		return Result{}, err
	}

	logger := logging.FromContext(ctx).With("server", cfg.Addr(), "type", string(st))
	logger.Debug("authentication started", "family", st.Family().String())

	a.collector.CheckStarted(string(st))
	start := time.Now()
	res := strategy.Authenticate(ctx, cfg)
	res.ServerType = st
	res.Elapsed = time.Since(start)
	a.collector.AuthAttempt(string(st), res.Outcome.String(), res.Elapsed)

	if res.Outcome == OutcomeUndetermined {
		logger.Warn("authentication undetermined", "error", res.Detail, "elapsed", res.Elapsed)
	} else {
		logger.Debug("authentication finished", "outcome", res.Outcome.String(), "elapsed", res.Elapsed)
	}

	a.last = res
	return res, nil
}

// Last returns the result of the most recent attempt, or a Result with
// OutcomeNotRun if there has been none.
func (a *Authenticator) Last() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Descriptor returns the mailbox descriptor for cfg. The certificate flag is
// added whenever validation is off, since plain sessions may still upgrade
// with STARTTLS.
func Descriptor(cfg Config) mailbox.Descriptor {
	st := cfg.ServerType()
	protocol := mailbox.ProtocolIMAP
	if st == POP3 || st == POP3S {
		protocol = mailbox.ProtocolPOP3
	}
	return mailbox.Descriptor{
		Host:           cfg.ServerURL(),
		Port:           cfg.Port(),
		Protocol:       protocol,
		SSL:            st.ImplicitTLS(),
		NoValidateCert: !cfg.VerifyTLS(),
	}
}

func (a *Authenticator) authenticateMailbox(ctx context.Context, cfg Config) Result {
	opener := a.opener
	if opener == nil {
		opener = &mailbox.Client{
			Timeout:   cfg.Timeout(),
			Proxy:     a.proxy,
			TLSConfig: a.tlsConfig,
			Collector: a.collector,
		}
	}

	desc := Descriptor(cfg).String()
	event.Emit(ctx, a.obs, event.KindConnect, "Mailbox open", desc)
	ok, diags := opener.Open(ctx, desc, cfg.Username(), cfg.Password())
	for _, d := range diags {
		event.Emit(ctx, a.obs, event.KindWarning, "Mailbox diagnostic", d)
	}

	res := Result{Outcome: OutcomeRejected, Diagnostics: diags}
	if ok {
		res.Outcome = OutcomeAuthenticated
	}
	event.Emit(ctx, a.obs, event.KindResult, "Mailbox Authentication Result", res.Outcome.String())
	return res
}

func (a *Authenticator) authenticateSMTP(ctx context.Context, cfg Config) Result {
	engine := smtpauth.New(smtpauth.Config{
		Host:           cfg.ServerURL(),
		Port:           cfg.Port(),
		ImplicitTLS:    cfg.ServerType().ImplicitTLS(),
		VerifyTLS:      cfg.VerifyTLS(),
		TLSConfig:      a.tlsConfig,
		Timeout:        cfg.Timeout(),
		ClientHostname: cfg.ClientHostname(),
		LineTerminator: cfg.LineTerminator(),
		Username:       cfg.Username(),
		Password:       cfg.Password(),
		Proxy:          a.proxy,
		Observer:       a.obs,
		Collector:      a.collector,
	})

	r := engine.Run(ctx)
	switch {
	case r.Undetermined():
		return Result{Outcome: OutcomeUndetermined, Detail: r.Err}
	case r.Authenticated:
		return Result{Outcome: OutcomeAuthenticated}
	default:
		return Result{Outcome: OutcomeRejected}
	}
}
