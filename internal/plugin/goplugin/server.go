// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package goplugin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/session"
)

// DefaultCallTimeout bounds plugin-side provider calls.
const DefaultCallTimeout = 60 * time.Second

// maxQueuedEvents caps the per-session event backlog; the oldest events
// are dropped beyond it.
const maxQueuedEvents = 1024

// maxPollWait caps how long a single Poll may block.
const maxPollWait = 30 * time.Second

// RPCServer exposes a session.Provider over net/rpc (plugin side).
type RPCServer struct {
	impl   session.Provider
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*servedSession
}

type servedSession struct {
	sess   session.Session
	queue  *eventQueue
	unsubs map[session.EventName]func()
}

// NewRPCServer wraps impl. A nil logger uses slog.Default().
func NewRPCServer(impl session.Provider, logger *slog.Logger) *RPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCServer{impl: impl, logger: logger, sessions: make(map[string]*servedSession)}
}

// StartSession opens a session with full authentication.
func (s *RPCServer) StartSession(args StartArgs, reply *StartReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCallTimeout)
	defer cancel()
	sess, err := s.impl.StartSession(ctx, args.request())
	s.opened(sess, err, reply)
	return nil
}

// ResumeSession opens a session from a cached token.
func (s *RPCServer) ResumeSession(args StartArgs, reply *StartReply) error {
	if args.Token == nil {
		reply.Failure = failureFrom(session.Fail(session.KindUnclassified, "resume requires a token"))
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCallTimeout)
	defer cancel()
	sess, err := s.impl.ResumeSession(ctx, args.request(), args.Token)
	s.opened(sess, err, reply)
	return nil
}

func (s *RPCServer) opened(sess session.Session, err error, reply *StartReply) {
	if err != nil {
		reply.Failure = failureFrom(err)
		return
	}
	id := ulid.Make().String()
	s.mu.Lock()
	s.sessions[id] = &servedSession{
		sess:   sess,
		queue:  newEventQueue(),
		unsubs: make(map[session.EventName]func()),
	}
	s.mu.Unlock()
	reply.SessionID = id
	reply.Token = sess.AccessToken()
	s.logger.Debug("plugin session opened", "session_id", id)
}

func (s *RPCServer) lookup(id string) (*servedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return nil, oops.Code("PLUGIN_SESSION_UNKNOWN").With("session_id", id).Errorf("unknown session %q", id)
	}
	return ss, nil
}

// Startup runs the session handshake.
func (s *RPCServer) Startup(args StartupArgs, reply *StartupReply) error {
	ss, err := s.lookup(args.SessionID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCallTimeout)
	defer cancel()
	ok, err := ss.sess.Startup(ctx, args.FullInit)
	reply.Accepted = ok
	reply.Failure = failureFrom(err)
	return nil
}

// AccessToken returns the session's current token.
func (s *RPCServer) AccessToken(args SessionArgs, reply *TokenReply) error {
	ss, err := s.lookup(args.SessionID)
	if err != nil {
		return err
	}
	reply.Token = ss.sess.AccessToken()
	return nil
}

// SeedArtifact forwards a cached artifact.
func (s *RPCServer) SeedArtifact(args SeedArgs, reply *Empty) error {
	ss, err := s.lookup(args.SessionID)
	if err != nil {
		return err
	}
	reply.Failure = failureFrom(ss.sess.SeedArtifact(args.Kind, args.Data))
	return nil
}

// Subscribe starts queueing events of the given name for Poll. Subscribing
// twice to the same name is a no-op.
func (s *RPCServer) Subscribe(args SubscribeArgs, _ *Empty) error {
	ss, err := s.lookup(args.SessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := ss.unsubs[args.Name]; ok {
		return nil
	}
	ss.unsubs[args.Name] = ss.sess.Subscribe(args.Name, func(_ context.Context, ev session.Event) {
		if dropped := ss.queue.push(ev); dropped {
			s.logger.Warn("plugin event backlog full, dropped oldest event",
				"session_id", args.SessionID, "event", string(ev.Name))
		}
	})
	return nil
}

// Poll waits for queued events.
func (s *RPCServer) Poll(args PollArgs, reply *PollReply) error {
	ss, err := s.lookup(args.SessionID)
	if err != nil {
		reply.Closed = true
		return nil //nolint:nilerr // an unknown session is a closed one
	}
	wait := args.Wait
	if wait <= 0 || wait > maxPollWait {
		wait = maxPollWait
	}
	reply.Events, reply.Closed = ss.queue.take(wait)
	return nil
}

// Shutdown unsubscribes, shuts the session down and releases it. Unknown
// sessions are ignored.
func (s *RPCServer) Shutdown(args SessionArgs, _ *Empty) error {
	s.mu.Lock()
	ss, ok := s.sessions[args.SessionID]
	var unsubs []func()
	if ok {
		delete(s.sessions, args.SessionID)
		for _, unsub := range ss.unsubs {
			unsubs = append(unsubs, unsub)
		}
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	for _, unsub := range unsubs {
		unsub()
	}
	ss.sess.Shutdown()
	ss.queue.close()
	s.logger.Debug("plugin session closed", "session_id", args.SessionID)
	return nil
}

// Sessions returns the number of open sessions.
func (s *RPCServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type eventQueue struct {
	mu     sync.Mutex
	events []session.Event
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1), done: make(chan struct{})}
}

func (q *eventQueue) push(ev session.Event) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(q.events) >= maxQueuedEvents {
		q.events = q.events[1:]
		dropped = true
	}
	q.events = append(q.events, ev)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (q *eventQueue) drain() ([]session.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events, q.closed && len(events) == 0
}

func (q *eventQueue) take(wait time.Duration) ([]session.Event, bool) {
	if events, closed := q.drain(); len(events) > 0 || closed {
		return events, closed
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-q.notify:
	case <-q.done:
	case <-timer.C:
	}
	return q.drain()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
