// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package goplugin

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/credential"
	"github.com/trainerbot/trainerbot/internal/device"
	"github.com/trainerbot/trainerbot/internal/hashing"
	"github.com/trainerbot/trainerbot/internal/session"
)

// Failure is a provider failure as it crosses the wire. net/rpc flattens
// returned errors to strings, so failures travel in the reply instead.
type Failure struct {
	Kind    string
	Message string
	Public  string
}

// failureFrom captures err for the wire. A nil error yields nil.
func failureFrom(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{
		Kind:    string(session.KindOf(err)),
		Message: err.Error(),
		Public:  session.PublicMessage(err),
	}
}

// Err rebuilds the tagged error on the host side.
func (f *Failure) Err() error {
	if f == nil {
		return nil
	}
	kind := session.ParseFailureKind(f.Kind)
	if f.Public != "" {
		return oops.In("session").Code(kind).Public(f.Public).Errorf("%s", f.Message)
	}
	return session.Fail(kind, f.Message)
}

// Login carries the credentials the plugin needs to authenticate.
type Login struct {
	Kind     string
	Username string
	Password string
}

func loginFrom(p credential.LoginProvider) Login {
	if b, ok := p.(*credential.Basic); ok {
		return Login{Kind: b.Kind, Username: b.Username, Password: b.Password}
	}
	return Login{Kind: p.ProviderID(), Username: p.UserID()}
}

func (l Login) provider(proxy *device.Proxy) credential.LoginProvider {
	return &credential.Basic{Kind: l.Kind, Username: l.Username, Password: l.Password, Proxy: proxy}
}

// Hashing carries the signing configuration. The client version travels as
// its string form.
type Hashing struct {
	Mode          string
	Keys          []string
	Host          string
	Endpoint      string
	ClientVersion string
	AppVersion    uint32
}

func hashingFrom(c hashing.Config) Hashing {
	h := Hashing{
		Mode:       string(c.Mode),
		Keys:       c.Keys,
		Host:       c.Host,
		Endpoint:   c.Endpoint,
		AppVersion: c.AppVersion,
	}
	if c.ClientVersion != nil {
		h.ClientVersion = c.ClientVersion.Original()
	}
	return h
}

func (h Hashing) config() hashing.Config {
	c := hashing.Config{
		Mode:       hashing.Mode(h.Mode),
		Keys:       h.Keys,
		Host:       h.Host,
		Endpoint:   h.Endpoint,
		AppVersion: h.AppVersion,
	}
	if v, err := semver.NewVersion(h.ClientVersion); err == nil {
		c.ClientVersion = v
	}
	return c
}

// StartArgs are the arguments of Plugin.StartSession and Plugin.ResumeSession.
type StartArgs struct {
	Login     Login
	Latitude  float64
	Longitude float64
	Profile   device.Profile
	Hashing   Hashing
	Token     *session.AccessToken
}

func startArgs(req session.StartRequest, token *session.AccessToken) StartArgs {
	return StartArgs{
		Login:     loginFrom(req.Login),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Profile:   req.Profile,
		Hashing:   hashingFrom(req.Hashing),
		Token:     token,
	}
}

func (a StartArgs) request() session.StartRequest {
	return session.StartRequest{
		Login:     a.Login.provider(a.Profile.Proxy),
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
		Profile:   a.Profile,
		Hashing:   a.Hashing.config(),
	}
}

// StartReply is the reply of Plugin.StartSession and Plugin.ResumeSession.
type StartReply struct {
	SessionID string
	Token     *session.AccessToken
	Failure   *Failure
}

// SessionArgs identify a session.
type SessionArgs struct {
	SessionID string
}

// StartupArgs are the arguments of Plugin.Startup.
type StartupArgs struct {
	SessionID string
	FullInit  bool
}

// StartupReply is the reply of Plugin.Startup.
type StartupReply struct {
	Accepted bool
	Failure  *Failure
}

// TokenReply is the reply of Plugin.AccessToken.
type TokenReply struct {
	Token *session.AccessToken
}

// SeedArgs are the arguments of Plugin.SeedArtifact.
type SeedArgs struct {
	SessionID string
	Kind      session.ArtifactKind
	Data      []byte
}

// SubscribeArgs are the arguments of Plugin.Subscribe.
type SubscribeArgs struct {
	SessionID string
	Name      session.EventName
}

// PollArgs are the arguments of Plugin.Poll. The call returns as soon as
// events are queued, or after Wait.
type PollArgs struct {
	SessionID string
	Wait      time.Duration
}

// PollReply is the reply of Plugin.Poll. Closed reports that the session
// was shut down and no further events will arrive.
type PollReply struct {
	Events []session.Event
	Closed bool
}

// Empty is the reply of calls with no result.
type Empty struct {
	Failure *Failure
}
