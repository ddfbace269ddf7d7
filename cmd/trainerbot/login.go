// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/trainerbot/trainerbot/internal/account"
	"github.com/trainerbot/trainerbot/internal/cache"
	"github.com/trainerbot/trainerbot/internal/credential"
	"github.com/trainerbot/trainerbot/internal/device"
	"github.com/trainerbot/trainerbot/internal/events"
	"github.com/trainerbot/trainerbot/internal/failure"
	"github.com/trainerbot/trainerbot/internal/hashing"
	"github.com/trainerbot/trainerbot/internal/login"
	"github.com/trainerbot/trainerbot/internal/observability"
	"github.com/trainerbot/trainerbot/internal/plugin/goplugin"
	"github.com/trainerbot/trainerbot/internal/session"
	"github.com/trainerbot/trainerbot/internal/session/scripted"
	"github.com/trainerbot/trainerbot/internal/settings"
	"github.com/trainerbot/trainerbot/internal/store"
	"github.com/trainerbot/trainerbot/internal/xdg"
)

// processHashing is the hashing configuration shared by every establisher in
// this process.
var processHashing = hashing.NewProcess()

// ObservabilityServer is the subset of observability.Server used by login.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
}

// LoginDeps contains injectable dependencies for the login command.
// All fields with nil values will use their default implementations.
type LoginDeps struct {
	// OpenStore opens the token and artifact store.
	// Default: store.Open
	OpenStore func(ctx context.Context, cfg settings.StorageSettings) (store.Store, func(), error)

	// OpenProvider returns the session provider selected by the flags and a
	// function that releases it.
	// Default: openProvider
	OpenProvider func(opts *loginOptions, logger *slog.Logger) (session.Provider, func(), error)

	// ObservabilityServerFactory creates the metrics server used with --metrics-addr.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, registrars ...observability.Registrar) ObservabilityServer

	// SignalContext returns a context cancelled when the held session should end.
	// Default: signal.NotifyContext on SIGINT and SIGTERM
	SignalContext func(ctx context.Context) (context.Context, context.CancelFunc)
}

func (d LoginDeps) withDefaults() LoginDeps {
	if d.OpenStore == nil {
		d.OpenStore = store.Open
	}
	if d.OpenProvider == nil {
		d.OpenProvider = openProvider
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, registrars ...observability.Registrar) ObservabilityServer {
			return observability.NewServer(addr, ready, registrars...)
		}
	}
	if d.SignalContext == nil {
		d.SignalContext = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		}
	}
	return d
}

type loginOptions struct {
	providerPlugin string
	scenario       string
	retries        int
	retryBase      time.Duration
	hold           bool
	metricsAddr    string
}

// NewLoginCmd creates the login subcommand.
func NewLoginCmd(deps LoginDeps) *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Establish a game session for the configured account",
		Long: `Establish an authenticated session: resolve the credentials, derive the
device profile, reuse the cached access token when it is still valid and seed
cached artifacts before the startup handshake.

Transient failures are retried with exponential backoff when --retries is set.
With --hold the session is kept until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, deps.withDefaults())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.providerPlugin, "provider-plugin", "", "session provider plugin binary (bare names resolve in the plugin directory)")
	flags.StringVar(&opts.scenario, "scenario", "", "run against a scripted provider scenario instead of a plugin")
	flags.IntVar(&opts.retries, "retries", 0, "retries for failures that do not halt the account")
	flags.DurationVar(&opts.retryBase, "retry-base", time.Second, "initial retry backoff")
	flags.BoolVar(&opts.hold, "hold", false, "keep the session until interrupted")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve metrics and health probes on this address")
	settings.BindFlags(flags)

	return cmd
}

func (o *loginOptions) run(cmd *cobra.Command, deps LoginDeps) error {
	if o.retries < 0 {
		return oops.Code("CONFIG_INVALID").With("retries", o.retries).Errorf("retries must not be negative")
	}
	if o.retryBase <= 0 {
		return oops.Code("CONFIG_INVALID").With("retry_base", o.retryBase).Errorf("retry base must be positive")
	}

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := slog.Default().With("account", credential.OwnerKey(s.Username, s.AuthType))

	st, release, err := deps.OpenStore(ctx, s.Storage)
	if err != nil {
		return err
	}
	defer release()

	provider, closeProvider, err := deps.OpenProvider(o, logger)
	if err != nil {
		return err
	}
	defer closeProvider()

	acct := account.NewController(logProxyHandler{logger: logger}, logger)
	if s.HasProxy() {
		acct.AssignProxy(&device.Proxy{
			Address:  s.Proxy.Address,
			Port:     s.Proxy.Port,
			Username: s.Proxy.Username,
			Password: s.Proxy.Password,
		})
	}

	est := login.New(login.Config{
		Provider:  provider,
		Hashing:   processHashing,
		Tokens:    cache.NewTokenCache(st, logger),
		Artifacts: cache.NewArtifactCache(st, logger),
		Account:   acct,
		Logger:    logger,
	})
	defer est.Logout()

	if o.metricsAddr != "" {
		srv := deps.ObservabilityServerFactory(o.metricsAddr, est.LoggedIn,
			login.RegisterMetrics, events.RegisterMetrics, observability.AccountGauges(acct))
		if _, err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				logger.Warn("failed to stop observability server", "error", err)
			}
		}()
	}

	outcome, err := o.establish(ctx, est, s, logger)
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
	if err != nil {
		return err
	}
	if !o.hold {
		return nil
	}

	holdCtx, stop := deps.SignalContext(ctx)
	defer stop()

	logger.Info("holding session", "events", len(est.Bridge().Events()))
	select {
	case <-holdCtx.Done():
		logger.Info("releasing session")
	case <-acct.HaltSignal():
		logger.Warn("account halted, releasing session")
	}
	est.Logout()
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

// establish runs Establish until it succeeds, the outcome halts the
// account, or the retries are spent.
func (o *loginOptions) establish(ctx context.Context, est *login.Establisher, s settings.UserSettings, logger *slog.Logger) (failure.Outcome, error) {
	var last failure.Outcome
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(o.retries), retry.NewExponential(o.retryBase)) // #nosec G115 -- checked non-negative

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		last = est.Establish(ctx, s)
		if last.Success {
			return nil
		}
		err := outcomeError(last, attempt)
		if last.Halt {
			return err
		}
		logger.Info("login attempt failed", "attempt", attempt, "message", last.Message)
		return retry.RetryableError(err)
	})
	if err != nil && last.Message == "" {
		last.Message = "Login aborted."
	}
	return last, err
}

func outcomeError(o failure.Outcome, attempts int) error {
	return oops.Code("LOGIN_FAILED").
		With("kind", string(o.Kind)).
		With("halt", o.Halt).
		With("attempts", attempts).
		Errorf("%s", o.Message)
}

// openProvider returns the scripted provider for --scenario, or loads the
// --provider-plugin binary through go-plugin.
func openProvider(o *loginOptions, logger *slog.Logger) (session.Provider, func(), error) {
	switch {
	case o.scenario != "" && o.providerPlugin != "":
		return nil, nil, oops.Code("CONFIG_INVALID").Errorf("--scenario and --provider-plugin are mutually exclusive")

	case o.scenario != "":
		sc, err := scripted.Load(o.scenario)
		if err != nil {
			return nil, nil, err
		}
		return scripted.NewProvider(sc, scripted.WithLogger(logger)), func() {}, nil

	case o.providerPlugin != "":
		path, err := xdg.ResolvePlugin(o.providerPlugin)
		if err != nil {
			return nil, nil, err
		}
		host := goplugin.NewHost()
		provider, err := host.Load(path)
		if err != nil {
			host.Close()
			return nil, nil, err
		}
		return provider, host.Close, nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").Errorf("one of --provider-plugin or --scenario is required")
	}
}

// logProxyHandler reports proxy health changes in the log.
type logProxyHandler struct {
	logger *slog.Logger
}

func (h logProxyHandler) MarkProxy(p *device.Proxy, banned bool) {
	if p == nil {
		return
	}
	h.logger.Warn("proxy marked", "proxy", p.HostPort(), "banned", banned)
}
