// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package scripted

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/session"
)

// Session is an in-memory session. Push events from the scenario are
// delivered on a background goroutine after a successful Startup; Emit
// delivers additional events synchronously.
type Session struct {
	id       string
	scenario *Scenario
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	token    *session.AccessToken
	seeded   map[session.ArtifactKind][]byte
	handlers map[session.EventName]map[uint64]session.Handler
	nextSub  uint64
	started  bool
	shutdown bool
}

func newSession(sc *Scenario, token *session.AccessToken, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := ulid.Make().String()
	return &Session{
		id:       id,
		scenario: sc,
		logger:   logger.With("session_id", id),
		ctx:      ctx,
		cancel:   cancel,
		token:    token,
		seeded:   make(map[session.ArtifactKind][]byte),
		handlers: make(map[session.EventName]map[uint64]session.Handler),
	}
}

var _ session.Session = (*Session)(nil)

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Startup follows the scenario's startup step.
func (s *Session) Startup(ctx context.Context, fullInit bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if f := s.scenario.Startup.Fail; f != nil {
		return false, f.Err()
	}
	if !s.scenario.Startup.Accepted() {
		return false, nil
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return false, session.Fail(session.KindConnectionClosed, "session is shut down")
	}
	deliver := !s.started && len(s.scenario.Events) > 0
	s.started = true
	if deliver {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	s.logger.Debug("scripted startup", "full_init", fullInit)
	if deliver {
		go s.deliver()
	}
	return true, nil
}

func (s *Session) deliver() {
	defer s.wg.Done()
	for _, p := range s.scenario.Events {
		if p.After > 0 {
			timer := time.NewTimer(p.After)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if s.ctx.Err() != nil {
			return
		}
		ev, err := p.event()
		if err != nil {
			s.logger.Warn("scripted event skipped", "event", string(p.Name), "error", err)
			continue
		}
		s.Emit(ev)
	}
}

// Emit delivers ev to every current subscriber. Events emitted after
// Shutdown are dropped.
func (s *Session) Emit(ev session.Event) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	handlers := make([]session.Handler, 0, len(s.handlers[ev.Name]))
	for _, h := range s.handlers[ev.Name] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(s.ctx, ev)
	}
}

// AccessToken returns the current token.
func (s *Session) AccessToken() *session.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetAccessToken replaces the token, as a server-side refresh would.
func (s *Session) SetAccessToken(t *session.AccessToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = t
}

// SeedArtifact stores a copy of data.
func (s *Session) SeedArtifact(kind session.ArtifactKind, data []byte) error {
	if len(data) == 0 {
		return oops.Code("ARTIFACT_EMPTY").With("artifact", string(kind)).Errorf("artifact %s is empty", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeded[kind] = append([]byte(nil), data...)
	return nil
}

// Seeded returns the artifact seeded for kind.
func (s *Session) Seeded(kind session.ArtifactKind) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.seeded[kind]
	return data, ok
}

// Subscribe registers h for name.
func (s *Session) Subscribe(name session.EventName, h session.Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	if s.handlers[name] == nil {
		s.handlers[name] = make(map[uint64]session.Handler)
	}
	s.handlers[name][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers[name], id)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, hs := range s.handlers {
		n += len(hs)
	}
	return n
}

// Started reports whether Startup succeeded at least once.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// IsShutdown reports whether Shutdown was called.
func (s *Session) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Shutdown stops event delivery and waits for the delivery goroutine.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
