// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package goplugin

import (
	"context"
	"errors"
	"log/slog"
	"net/rpc"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/session"
)

// DefaultPollWait is how long a single event poll blocks in the plugin.
const DefaultPollWait = 5 * time.Second

// RPCClient is a session.Provider backed by a provider plugin (host side).
type RPCClient struct {
	client *rpc.Client
	logger *slog.Logger
}

var _ session.Provider = (*RPCClient)(nil)

// NewRPCClient wraps c. A nil logger uses slog.Default().
func NewRPCClient(c *rpc.Client, logger *slog.Logger) *RPCClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RPCClient{client: c, logger: logger}
}

// call invokes method and honours ctx. Transport failures are reported as
// closed connections so the classifier treats a dead plugin like a dropped
// session.
func (c *RPCClient) call(ctx context.Context, method string, args, reply any) error {
	pending := c.client.Go("Plugin."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-pending.Done:
		if done.Error == nil {
			return nil
		}
		var serverErr rpc.ServerError
		if errors.As(done.Error, &serverErr) {
			return oops.Code("PLUGIN_CALL_FAILED").With("method", method).Wrap(done.Error)
		}
		return oops.In("session").
			Code(session.KindConnectionClosed).
			With("method", method).
			Wrapf(done.Error, "provider plugin unreachable")
	}
}

// StartSession implements session.Provider.
func (c *RPCClient) StartSession(ctx context.Context, req session.StartRequest) (session.Session, error) {
	return c.open(ctx, "StartSession", startArgs(req, nil))
}

// ResumeSession implements session.Provider.
func (c *RPCClient) ResumeSession(ctx context.Context, req session.StartRequest, token *session.AccessToken) (session.Session, error) {
	return c.open(ctx, "ResumeSession", startArgs(req, token))
}

func (c *RPCClient) open(ctx context.Context, method string, args StartArgs) (session.Session, error) {
	var reply StartReply
	if err := c.call(ctx, method, args, &reply); err != nil {
		return nil, err
	}
	if reply.Failure != nil {
		return nil, reply.Failure.Err()
	}
	return newRPCSession(c, reply.SessionID, reply.Token), nil
}

// rpcSession is the host-side handle of a plugin session. Subscriptions are
// registered remotely once per event name and fed by a long-poll loop.
type rpcSession struct {
	client *RPCClient
	id     string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	token    *session.AccessToken
	handlers map[session.EventName]map[uint64]session.Handler
	remote   map[session.EventName]bool
	nextSub  uint64
	polling  bool
	closed   bool
}

func newRPCSession(c *RPCClient, id string, token *session.AccessToken) *rpcSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &rpcSession{
		client:   c,
		id:       id,
		logger:   c.logger.With("session_id", id),
		ctx:      ctx,
		cancel:   cancel,
		token:    token,
		handlers: make(map[session.EventName]map[uint64]session.Handler),
		remote:   make(map[session.EventName]bool),
	}
}

func (s *rpcSession) Startup(ctx context.Context, fullInit bool) (bool, error) {
	var reply StartupReply
	if err := s.client.call(ctx, "Startup", StartupArgs{SessionID: s.id, FullInit: fullInit}, &reply); err != nil {
		return false, err
	}
	if reply.Failure != nil {
		return false, reply.Failure.Err()
	}
	if reply.Accepted {
		s.refreshToken(ctx)
	}
	return reply.Accepted, nil
}

func (s *rpcSession) AccessToken() *session.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *rpcSession) refreshToken(ctx context.Context) {
	var reply TokenReply
	if err := s.client.call(ctx, "AccessToken", SessionArgs{SessionID: s.id}, &reply); err != nil {
		s.logger.Debug("token refresh from plugin failed", "error", err)
		return
	}
	if reply.Token == nil {
		return
	}
	s.mu.Lock()
	s.token = reply.Token
	s.mu.Unlock()
}

func (s *rpcSession) SeedArtifact(kind session.ArtifactKind, data []byte) error {
	var reply Empty
	if err := s.client.call(s.ctx, "SeedArtifact", SeedArgs{SessionID: s.id, Kind: kind, Data: data}, &reply); err != nil {
		return err
	}
	return reply.Failure.Err()
}

func (s *rpcSession) Subscribe(name session.EventName, h session.Handler) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.handlers[name] == nil {
		s.handlers[name] = make(map[uint64]session.Handler)
	}
	s.handlers[name][id] = h
	needRemote := !s.remote[name] && !s.closed
	s.remote[name] = true
	startPoll := !s.polling && !s.closed
	if startPoll {
		s.polling = true
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if needRemote {
		if err := s.client.call(s.ctx, "Subscribe", SubscribeArgs{SessionID: s.id, Name: name}, &Empty{}); err != nil {
			s.logger.Warn("remote subscribe failed", "event", string(name), "error", err)
			s.mu.Lock()
			s.remote[name] = false
			s.mu.Unlock()
		}
	}
	if startPoll {
		go s.poll()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers[name], id)
		})
	}
}

func (s *rpcSession) poll() {
	defer s.wg.Done()
	for {
		var reply PollReply
		err := s.client.call(s.ctx, "Poll", PollArgs{SessionID: s.id, Wait: DefaultPollWait}, &reply)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("event poll failed", "error", err)
			}
			return
		}
		for _, ev := range reply.Events {
			s.dispatch(ev)
		}
		if reply.Closed || s.ctx.Err() != nil {
			return
		}
	}
}

func (s *rpcSession) dispatch(ev session.Event) {
	if ev.Name == session.EventAccessTokenUpdated {
		s.refreshToken(s.ctx)
	}
	s.mu.Lock()
	handlers := make([]session.Handler, 0, len(s.handlers[ev.Name]))
	for _, h := range s.handlers[ev.Name] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(s.ctx, ev)
	}
}

func (s *rpcSession) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.call(ctx, "Shutdown", SessionArgs{SessionID: s.id}, &Empty{}); err != nil {
		s.logger.Warn("remote shutdown failed", "error", err)
	}
	s.cancel()
	s.wg.Wait()
}
