// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package scripted

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trainerbot/trainerbot/internal/session"
)

// Call records one provider invocation.
type Call struct {
	Method  string
	Request session.StartRequest
	Token   *session.AccessToken
}

// Provider is a session.Provider that follows a Scenario.
type Provider struct {
	scenario *Scenario
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	calls    []Call
	sessions []*Session
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock sets the clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider returns a provider for sc. A nil scenario succeeds at every step.
func NewProvider(sc *Scenario, opts ...Option) *Provider {
	if sc == nil {
		sc = &Scenario{}
	}
	p := &Provider{scenario: sc, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ session.Provider = (*Provider)(nil)

// StartSession issues a fresh token for the login provider's identity.
func (p *Provider) StartSession(ctx context.Context, req session.StartRequest) (session.Session, error) {
	p.record(Call{Method: "StartSession", Request: req})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f := p.scenario.Start.Fail; f != nil {
		return nil, f.Err()
	}
	token := &session.AccessToken{
		UserID:     req.Login.UserID(),
		ProviderID: req.Login.ProviderID(),
		Token:      ulid.Make().String(),
		ExpiresAt:  p.now().Add(p.scenario.tokenTTL()).UTC(),
	}
	if p.scenario.Token.UserID != "" {
		token.UserID = p.scenario.Token.UserID
	}
	return p.open(token), nil
}

// ResumeSession reuses the cached token.
func (p *Provider) ResumeSession(ctx context.Context, req session.StartRequest, token *session.AccessToken) (session.Session, error) {
	p.record(Call{Method: "ResumeSession", Request: req, Token: token})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f := p.scenario.Resume.Fail; f != nil {
		return nil, f.Err()
	}
	resumed := *token
	return p.open(&resumed), nil
}

func (p *Provider) open(token *session.AccessToken) *Session {
	s := newSession(p.scenario, token, p.logger)
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s
}

func (p *Provider) record(c Call) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}

// Calls returns the invocations seen so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// Sessions returns the sessions opened so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Last returns the most recently opened session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}
