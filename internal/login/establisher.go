// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package login establishes sessions. Establish never returns an error:
// every failure is classified into a failure.Outcome whose side effects
// have already been applied to the account controller.
package login

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trainerbot/trainerbot/internal/account"
	"github.com/trainerbot/trainerbot/internal/cache"
	"github.com/trainerbot/trainerbot/internal/credential"
	"github.com/trainerbot/trainerbot/internal/device"
	"github.com/trainerbot/trainerbot/internal/events"
	"github.com/trainerbot/trainerbot/internal/failure"
	"github.com/trainerbot/trainerbot/internal/hashing"
	"github.com/trainerbot/trainerbot/internal/session"
	"github.com/trainerbot/trainerbot/internal/settings"
	"github.com/trainerbot/trainerbot/pkg/errutil"
)

var tracer = otel.Tracer("trainerbot/login")

// TokenStore loads and persists access tokens.
type TokenStore interface {
	Load(ctx context.Context, ownerKey string) (*session.AccessToken, bool)
	SaveAs(ctx context.Context, owner string, token *session.AccessToken) error
}

// ArtifactStore loads and persists cached artifacts.
type ArtifactStore interface {
	Load(ctx context.Context, deviceID string, kind session.ArtifactKind) ([]byte, bool, error)
	Save(ctx context.Context, deviceID string, kind session.ArtifactKind, data []byte) error
}

// Config holds the establisher's collaborators. Provider, Tokens and
// Artifacts are required.
type Config struct {
	Provider  session.Provider
	Resolver  *credential.Resolver
	Hashing   *hashing.Process
	Tokens    TokenStore
	Artifacts ArtifactStore
	Account   *account.Controller
	Logger    *slog.Logger
	// Now is the clock used for token expiry checks.
	Now func() time.Time
}

// Establisher drives one account's session lifecycle. Callers serialize
// Establish and Logout per account.
type Establisher struct {
	cfg      Config
	logger   *slog.Logger
	loggedIn atomic.Bool

	mu     sync.Mutex
	sess   session.Session
	bridge *events.Bridge
}

// New returns an establisher. Missing optional collaborators get defaults.
func New(cfg Config) *Establisher {
	if cfg.Resolver == nil {
		cfg.Resolver = credential.NewResolver()
	}
	if cfg.Hashing == nil {
		cfg.Hashing = hashing.NewProcess()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Account == nil {
		cfg.Account = account.NewController(nil, logger)
	}
	return &Establisher{cfg: cfg, logger: logger}
}

// LoggedIn reports whether the last Establish succeeded and Logout has not
// been called since.
func (e *Establisher) LoggedIn() bool {
	return e.loggedIn.Load()
}

// Session returns the live session, or nil.
func (e *Establisher) Session() session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

// Bridge returns the attached event bridge, or nil.
func (e *Establisher) Bridge() *events.Bridge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bridge
}

// Logout detaches push events and shuts the session down. Logging out
// without a session is a no-op.
func (e *Establisher) Logout() {
	e.mu.Lock()
	sess, bridge := e.sess, e.bridge
	e.sess, e.bridge = nil, nil
	e.mu.Unlock()

	e.loggedIn.Store(false)
	if bridge != nil {
		bridge.Detach()
	}
	if sess != nil {
		sess.Shutdown()
		e.logger.Info("logged out")
	}
}

// Establish runs one establishment attempt for s. A live session is logged
// out first, so every call is a fresh attempt.
func (e *Establisher) Establish(ctx context.Context, s settings.UserSettings) failure.Outcome {
	attemptID := ulid.Make().String()
	logger := e.logger.With("attempt_id", attemptID, "username", s.Username, "auth_type", s.AuthType)

	ctx, span := tracer.Start(ctx, "login.establish",
		trace.WithAttributes(
			attribute.String("login.attempt_id", attemptID),
			attribute.String("login.auth_type", s.AuthType),
		),
	)
	defer span.End()

	if e.Session() != nil {
		e.Logout()
	}

	start := time.Now()
	outcome, cause := e.establish(ctx, logger, s)
	RecordAttempt(outcomeLabel(outcome), outcome.Success, time.Since(start))

	span.SetAttributes(
		attribute.Bool("login.success", outcome.Success),
		attribute.String("login.kind", string(outcome.Kind)),
	)
	if !outcome.Success {
		if cause != nil {
			span.RecordError(cause)
		}
		span.SetStatus(codes.Error, outcome.Message)
	}

	logOutcome(logger, outcome, cause)
	return outcome
}

func (e *Establisher) establish(ctx context.Context, logger *slog.Logger, s settings.UserSettings) (failure.Outcome, error) {
	if err := s.Validate(); err != nil {
		return e.unsupported(err), err
	}

	profile, err := device.Build(s)
	if err != nil {
		return e.unsupported(err), err
	}

	login, err := e.cfg.Resolver.Resolve(s.AuthType, s.Username, s.Password, profile.Proxy)
	if err != nil {
		return e.unsupported(err), err
	}

	hash, err := e.configureHashing(logger, s.Hashing)
	if err != nil {
		return e.unsupported(err), err
	}

	req := session.StartRequest{
		Login:     login,
		Latitude:  s.DefaultLatitude,
		Longitude: s.DefaultLongitude,
		Profile:   profile,
		Hashing:   hash,
	}
	owner := credential.OwnerKey(login.UserID(), login.ProviderID())

	sess, err := e.open(ctx, logger, owner, req)
	if err != nil {
		return e.fail(s, err), err
	}

	e.seedArtifacts(ctx, logger, sess, s.Device.DeviceID)

	ok, err := sess.Startup(ctx, true)
	if err != nil {
		sess.Shutdown()
		return e.fail(s, err), err
	}
	if !ok {
		sess.Shutdown()
		return failure.StartupRejected(), nil
	}

	bridge := events.NewBridge(events.Config{
		DeviceID:  s.Device.DeviceID,
		Owner:     owner,
		Tokens:    e.cfg.Tokens,
		Artifacts: e.cfg.Artifacts,
		State:     e.cfg.Account,
		Logger:    logger,
	})

	e.mu.Lock()
	e.sess, e.bridge = sess, bridge
	e.mu.Unlock()
	e.loggedIn.Store(true)

	bridge.Attach(sess)
	logger.Debug("push events attached", "events", len(bridge.Events()))

	e.saveToken(ctx, logger, owner, sess.AccessToken())
	return failure.Succeeded(), nil
}

// configureHashing returns the process-wide hashing configuration, installing
// the one built from hs if none is active yet.
func (e *Establisher) configureHashing(logger *slog.Logger, hs settings.HashSettings) (hashing.Config, error) {
	cfg, err := hashing.FromSettings(hs)
	if err != nil {
		return hashing.Config{}, err
	}
	active, configured := e.cfg.Hashing.Ensure(cfg)
	switch {
	case configured:
		logger.Debug("hashing configured", "hashing", active)
	case !active.Equal(cfg):
		logger.Debug("hashing already configured for this process, keeping it", "hashing", active)
	}
	return active, nil
}

// open resumes from owner's usable cached token, or authenticates and caches
// the new token under owner.
func (e *Establisher) open(ctx context.Context, logger *slog.Logger, owner string, req session.StartRequest) (session.Session, error) {
	token, found := e.cfg.Tokens.Load(ctx, owner)
	switch {
	case found && cache.IsUsable(token, e.cfg.Now()):
		RecordTokenLookup(CacheHit)
		logger.Debug("resuming from cached token", "owner", owner, "expires_at", token.ExpiresAt)
		return e.cfg.Provider.ResumeSession(ctx, req, token)
	case found:
		RecordTokenLookup(CacheExpired)
		logger.Debug("cached token expired", "owner", owner, "expires_at", token.ExpiresAt)
	default:
		RecordTokenLookup(CacheMiss)
	}

	sess, err := e.cfg.Provider.StartSession(ctx, req)
	if err != nil {
		return nil, err
	}
	e.saveToken(ctx, logger, owner, sess.AccessToken())
	return sess, nil
}

func (e *Establisher) saveToken(ctx context.Context, logger *slog.Logger, owner string, token *session.AccessToken) {
	if token == nil {
		return
	}
	if err := e.cfg.Tokens.SaveAs(ctx, owner, token); err != nil {
		errutil.LogWarn(logger, "access token not cached", err)
	}
}

// seedArtifacts pre-loads cached artifacts. Missing or unreadable artifacts
// are skipped.
func (e *Establisher) seedArtifacts(ctx context.Context, logger *slog.Logger, sess session.Session, deviceID string) {
	for _, kind := range session.ArtifactKinds() {
		data, ok, err := e.cfg.Artifacts.Load(ctx, deviceID, kind)
		if err != nil {
			errutil.LogWarn(logger, "cached artifact unreadable", err)
			continue
		}
		if !ok {
			continue
		}
		if err := sess.SeedArtifact(kind, data); err != nil {
			errutil.LogWarn(logger, "cached artifact rejected", err)
			continue
		}
		logger.Debug("artifact seeded", "artifact", string(kind), "bytes", len(data))
	}
}

// fail classifies err and applies the outcome to the account.
func (e *Establisher) fail(s settings.UserSettings, err error) failure.Outcome {
	outcome := failure.Classify(session.KindOf(err), failure.Input{
		ProxyPresent:    s.HasProxy(),
		ProxyAssigned:   e.cfg.Account.CurrentProxy() != nil,
		StopOnIPBan:     s.StopOnIPBan,
		ProviderMessage: session.PublicMessage(err),
	})
	failure.Apply(outcome, e.cfg.Account)
	return outcome
}

// unsupported is the outcome of a configuration the establisher cannot act
// on. No session was touched.
func (e *Establisher) unsupported(err error) failure.Outcome {
	msg := session.PublicMessage(err)
	if msg == "" {
		msg = err.Error()
	}
	outcome := failure.Classify(session.KindUnsupportedConfiguration, failure.Input{ProviderMessage: msg})
	failure.Apply(outcome, e.cfg.Account)
	return outcome
}

func outcomeLabel(o failure.Outcome) string {
	switch {
	case o.Success:
		return OutcomeSuccess
	case o.Kind == "":
		return OutcomeStartupRejected
	default:
		return string(o.Kind)
	}
}

func logOutcome(logger *slog.Logger, o failure.Outcome, cause error) {
	switch o.Severity {
	case failure.SeverityInfo:
		logger.Info(o.Detail)
	case failure.SeverityProxy:
		logger.Warn(o.Detail, "kind", string(o.Kind), "proxy_issue", true, "halt", o.Halt)
	case failure.SeverityError:
		if cause != nil {
			errutil.LogError(logger.With("kind", string(o.Kind), "halt", o.Halt), o.Detail, cause)
			return
		}
		logger.Error(o.Detail, "kind", string(o.Kind), "halt", o.Halt)
	default:
		logger.Warn(o.Detail, "kind", string(o.Kind), "halt", o.Halt)
	}
}
