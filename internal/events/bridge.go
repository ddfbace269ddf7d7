// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package events wires server push events to local persistence.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/account"
	"github.com/trainerbot/trainerbot/internal/session"
	"github.com/trainerbot/trainerbot/pkg/errutil"
)

// TokenSaver persists refreshed access tokens.
type TokenSaver interface {
	SaveAs(ctx context.Context, owner string, token *session.AccessToken) error
}

// ArtifactSaver persists template artifacts.
type ArtifactSaver interface {
	Save(ctx context.Context, deviceID string, kind session.ArtifactKind, data []byte) error
}

// StateSetter records the account state.
type StateSetter interface {
	SetAccountState(account.State)
}

// Config holds the bridge dependencies.
type Config struct {
	DeviceID string
	// Owner is the token cache key of the logged-in account. Empty means
	// the owner key carried by the refreshed token.
	Owner     string
	Tokens    TokenSaver
	Artifacts ArtifactSaver
	State     StateSetter
	Logger    *slog.Logger
}

// Binding pairs a push event with its handler. Persists marks handlers
// that write to local storage.
type Binding struct {
	Event    session.EventName
	Handler  session.Handler
	Persists bool
}

// Bridge attaches a fixed set of bindings to a session as a unit.
type Bridge struct {
	cfg      Config
	logger   *slog.Logger
	bindings []Binding

	mu      sync.Mutex
	current session.Session
	unsubs  []func()
}

// NewBridge returns a detached bridge.
func NewBridge(cfg Config) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{cfg: cfg, logger: logger.With("device_id", cfg.DeviceID)}
	b.bindings = []Binding{
		{session.EventAssetDigestUpdated, b.saveArtifact, true},
		{session.EventItemTemplatesUpdated, b.saveArtifact, true},
		{session.EventUrlsUpdated, b.saveArtifact, true},
		{session.EventLocalConfigUpdated, b.saveArtifact, true},
		{session.EventAccessTokenUpdated, b.saveToken, true},
		{session.EventCaptchaReceived, b.captchaReceived, false},
		{session.EventInventoryUpdate, b.ignore, false},
		{session.EventMapUpdate, b.ignore, false},
		{session.EventCheckAwardedBadges, b.ignore, false},
		{session.EventHatchedEggsReceived, b.ignore, false},
	}
	return b
}

// Events returns the bound event names in attach order.
func (b *Bridge) Events() []session.EventName {
	names := make([]session.EventName, len(b.bindings))
	for i, bd := range b.bindings {
		names[i] = bd.Event
	}
	return names
}

// PersistingEvents returns the events whose handlers write to storage.
func (b *Bridge) PersistingEvents() []session.EventName {
	var names []session.EventName
	for _, bd := range b.bindings {
		if bd.Persists {
			names = append(names, bd.Event)
		}
	}
	return names
}

// Attach subscribes every binding on sess. Attaching to the session the
// bridge is already attached to is a no-op; attaching to a different session
// detaches from the old one first.
func (b *Bridge) Attach(sess session.Session) {
	if sess == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == sess {
		return
	}
	b.detachLocked()

	b.current = sess
	b.unsubs = make([]func(), 0, len(b.bindings))
	for _, bd := range b.bindings {
		b.unsubs = append(b.unsubs, sess.Subscribe(bd.Event, bd.Handler))
	}
	b.logger.Debug("push events attached", "count", len(b.unsubs))
}

// Detach removes every subscription. Detaching a detached bridge is a no-op.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detachLocked()
}

func (b *Bridge) detachLocked() {
	if b.current == nil {
		return
	}
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.logger.Debug("push events detached", "count", len(b.unsubs))
	b.unsubs = nil
	b.current = nil
}

// Active returns the number of live subscriptions.
func (b *Bridge) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.unsubs)
}

func (b *Bridge) session() session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Bridge) saveArtifact(ctx context.Context, ev session.Event) {
	kind, ok := session.ArtifactFor(ev.Name)
	if !ok || b.cfg.Artifacts == nil {
		recordPushEvent(string(ev.Name), ResultIgnored)
		return
	}
	if err := b.cfg.Artifacts.Save(ctx, b.cfg.DeviceID, kind, ev.Payload); err != nil {
		recordPushEvent(string(ev.Name), ResultError)
		errutil.LogError(b.logger, "artifact save failed", err)
		return
	}
	recordPushEvent(string(ev.Name), ResultHandled)
	b.logger.Debug("artifact updated", "artifact", string(kind), "bytes", len(ev.Payload))
}

// saveToken persists the token carried by the event, falling back to the
// session's current token when the event has no usable payload.
func (b *Bridge) saveToken(ctx context.Context, ev session.Event) {
	token := tokenFromPayload(ev.Payload)
	if token == nil {
		if sess := b.session(); sess != nil {
			token = sess.AccessToken()
		}
	}
	if token == nil || b.cfg.Tokens == nil {
		recordPushEvent(string(ev.Name), ResultIgnored)
		return
	}
	owner := b.cfg.Owner
	if owner == "" {
		owner = token.OwnerKey()
	}
	if err := b.cfg.Tokens.SaveAs(ctx, owner, token); err != nil {
		recordPushEvent(string(ev.Name), ResultError)
		errutil.LogError(b.logger, "token save failed", err)
		return
	}
	recordPushEvent(string(ev.Name), ResultHandled)
	b.logger.Debug("access token refreshed", "owner", owner, "expires_at", token.ExpiresAt)
}

func tokenFromPayload(payload json.RawMessage) *session.AccessToken {
	if len(payload) == 0 {
		return nil
	}
	var token session.AccessToken
	if err := json.Unmarshal(payload, &token); err != nil || token.Token == "" {
		return nil
	}
	return &token
}

func (b *Bridge) captchaReceived(_ context.Context, ev session.Event) {
	if b.cfg.State != nil {
		b.cfg.State.SetAccountState(account.StateCaptchaPending)
	}
	var captcha session.CaptchaPayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &captcha); err != nil {
			errutil.LogWarn(b.logger, "captcha payload unreadable",
				oops.Code("CAPTCHA_PAYLOAD_INVALID").Wrap(err))
		}
	}
	recordPushEvent(string(ev.Name), ResultHandled)
	b.logger.Warn("captcha received, automation needs manual action", "captcha_url", captcha.URL)
}

func (b *Bridge) ignore(_ context.Context, ev session.Event) {
	recordPushEvent(string(ev.Name), ResultIgnored)
}
