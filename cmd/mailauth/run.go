package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/infodancer/mailauth/internal/config"
	"github.com/infodancer/mailauth/internal/event"
	"github.com/infodancer/mailauth/internal/logging"
	"github.com/infodancer/mailauth/internal/mailauth"
	"github.com/infodancer/mailauth/internal/metrics"
)

// Exit statuses.
const (
	exitAuthenticated = 0
	exitRejected      = 1
	exitUndetermined  = 2
	exitConfig        = 3
)

// run performs one check and returns the process exit status.
func run(ctx context.Context, flags *config.Flags, stdout, stderr io.Writer) int {
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		fmt.Fprintf(stderr, "error loading config: %v\n", err)
		return exitConfig
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return exitConfig
	}

	logger := logging.NewLoggerTo(stderr, cfg.LogLevel)
	ctx = logging.NewContext(ctx, logger)
	obs := event.NewLogObserver(logger, cfg.ShowSecrets)

	catalog := mailauth.NewCatalog()
	overrides, _ := cfg.ErrorOverrides()
	catalog.Merge(overrides)

	authCfg, err := cfg.AuthConfig(mailauth.NewBuilder(obs, catalog))
	if err != nil {
		reportConfigError(stderr, err)
		return exitConfig
	}

	tlsCfg, err := cfg.ClientTLSConfig()
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return exitConfig
	}

	reg := prometheus.NewRegistry()
	auth := mailauth.NewAuthenticator(mailauth.AuthenticatorConfig{
		Observer:  obs,
		Collector: metrics.NewPrometheusCollector(reg),
		Proxy:     cfg.ProxyConfig(),
		TLSConfig: tlsCfg,
		Catalog:   catalog,
	})

	res, err := auth.Authenticate(ctx, authCfg)
	if err != nil {
		reportConfigError(stderr, err)
		return exitConfig
	}

	logger.Info("check finished",
		"server", authCfg.Addr(),
		"type", string(res.ServerType),
		"outcome", res.Outcome.String(),
		"elapsed", res.Elapsed,
	)
	fmt.Fprintf(stdout, "%s %s %s\n", res.ServerType, authCfg.Addr(), res.Outcome)
	if res.Detail != nil {
		fmt.Fprintf(stdout, "detail: %v\n", res.Detail)
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			logger.Error("metrics not written", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	return exitStatus(res.Outcome)
}

func exitStatus(o mailauth.Outcome) int {
	switch o {
	case mailauth.OutcomeAuthenticated:
		return exitAuthenticated
	case mailauth.OutcomeRejected:
		return exitRejected
	default:
		return exitUndetermined
	}
}

func reportConfigError(w io.Writer, err error) {
	var ce *mailauth.ConfigError
	if !errors.As(err, &ce) {
		fmt.Fprintf(w, "invalid configuration: %v\n", err)
		return
	}
	fmt.Fprintf(w, "error %d: %s\n", ce.Code, ce.Description)
	if ce.Remediation != "" {
		fmt.Fprintf(w, "  %s\n", ce.Remediation)
	}
}
