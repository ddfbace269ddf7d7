// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package scripted provides a Session Provider driven by a YAML scenario.
// It performs no network I/O and is used for dry runs and tests.
package scripted

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/trainerbot/trainerbot/internal/session"
)

// DefaultTokenTTL is the lifetime of tokens issued by StartSession when the
// scenario does not set one.
const DefaultTokenTTL = 2 * time.Hour

// Scenario describes how a scripted provider behaves.
//
//	start:
//	  fail: {kind: CONNECT_FAILURE, message: "dial tcp: refused"}
//	startup:
//	  accept: true
//	token:
//	  ttl: 30m
//	events:
//	  - name: ItemTemplatesUpdated
//	    after: 10ms
//	    payload: {templates: []}
type Scenario struct {
	Start   Step    `yaml:"start"`
	Resume  Step    `yaml:"resume"`
	Startup Startup `yaml:"startup"`
	Token   Token   `yaml:"token"`
	Events  []Push  `yaml:"events"`
}

// Step is the outcome of a session construction call.
type Step struct {
	Fail *Failure `yaml:"fail"`
}

// Startup is the outcome of the startup handshake. Accept defaults to true.
type Startup struct {
	Accept *bool    `yaml:"accept"`
	Fail   *Failure `yaml:"fail"`
}

// Accepted reports whether the handshake succeeds.
func (s Startup) Accepted() bool {
	return s.Accept == nil || *s.Accept
}

// Failure is a scripted failure.
type Failure struct {
	Kind    string `yaml:"kind"`
	Message string `yaml:"message"`
}

// Err converts the failure into the error a real provider would return.
func (f *Failure) Err() error {
	kind := session.ParseFailureKind(f.Kind)
	if kind == session.KindLoginProviderError {
		return session.FailProvider(f.Message)
	}
	return session.Fail(kind, f.Message)
}

// Token controls the token issued by StartSession.
type Token struct {
	TTL time.Duration `yaml:"ttl"`
	// UserID replaces the login's user id in issued tokens, as services
	// that report a canonical account id do.
	UserID string `yaml:"user_id"`
}

// Push is a push event delivered after a successful startup.
type Push struct {
	Name    session.EventName `yaml:"name"`
	After   time.Duration     `yaml:"after"`
	Payload any               `yaml:"payload"`
}

func (p Push) event() (session.Event, error) {
	ev := session.Event{Name: p.Name}
	if p.Payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return ev, oops.Code("SCENARIO_PAYLOAD_INVALID").With("event", string(p.Name)).Wrap(err)
	}
	ev.Payload = raw
	return ev, nil
}

var knownEvents = map[session.EventName]struct{}{
	session.EventItemTemplatesUpdated: {},
	session.EventUrlsUpdated:          {},
	session.EventAssetDigestUpdated:   {},
	session.EventLocalConfigUpdated:   {},
	session.EventAccessTokenUpdated:   {},
	session.EventCaptchaReceived:      {},
	session.EventInventoryUpdate:      {},
	session.EventMapUpdate:            {},
	session.EventCheckAwardedBadges:   {},
	session.EventHatchedEggsReceived:  {},
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
// Empty input is the default scenario: every call succeeds.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, oops.Code("SCENARIO_INVALID_YAML").Wrap(err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads and parses the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		return nil, oops.Code("SCENARIO_READ_FAILED").With("path", path).Wrap(err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return sc, nil
}

// Validate checks that failure kinds and event names are known.
func (sc *Scenario) Validate() error {
	for step, f := range map[string]*Failure{
		"start":   sc.Start.Fail,
		"resume":  sc.Resume.Fail,
		"startup": sc.Startup.Fail,
	} {
		if f == nil {
			continue
		}
		if session.ParseFailureKind(f.Kind) == session.KindUnclassified && f.Kind != string(session.KindUnclassified) {
			return oops.Code("SCENARIO_INVALID").
				With("step", step).
				With("kind", f.Kind).
				Errorf("unknown failure kind %q", f.Kind)
		}
	}
	if sc.Token.TTL < 0 {
		return oops.Code("SCENARIO_INVALID").With("ttl", sc.Token.TTL.String()).Errorf("token ttl must not be negative")
	}
	for i, p := range sc.Events {
		if _, ok := knownEvents[p.Name]; !ok {
			return oops.Code("SCENARIO_INVALID").
				With("index", i).
				With("event", string(p.Name)).
				Errorf("unknown push event %q", p.Name)
		}
		if p.After < 0 {
			return oops.Code("SCENARIO_INVALID").With("index", i).Errorf("event delay must not be negative")
		}
		if _, err := p.event(); err != nil {
			return err
		}
	}
	return nil
}

func (sc *Scenario) tokenTTL() time.Duration {
	if sc.Token.TTL == 0 {
		return DefaultTokenTTL
	}
	return sc.Token.TTL
}
