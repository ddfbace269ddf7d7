// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package account holds the worker-side state a login attempt may change:
// the halt signal, proxy health flags and the account state.
package account

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/trainerbot/trainerbot/internal/device"
)

// State is the externally visible account state.
type State string

// Account states.
const (
	StateUnknown        State = "Unknown"
	StateGood           State = "Good"
	StateNotVerified    State = "NotVerified"
	StateCaptchaPending State = "CaptchaPending"
)

// ProxyHandler tracks proxy health across workers.
type ProxyHandler interface {
	MarkProxy(p *device.Proxy, banned bool)
}

// Controller is the state shared between the establisher and the worker
// loop that owns the account. All methods are safe for concurrent use.
type Controller struct {
	halted        atomic.Bool
	proxyIssue    atomic.Bool
	proxyReleased atomic.Bool
	state         atomic.Value
	proxy         atomic.Pointer[device.Proxy]

	haltOnce sync.Once
	haltCh   chan struct{}

	handler ProxyHandler
	logger  *slog.Logger
}

// NewController returns a controller in the Unknown state. handler may be
// nil when no proxy pool is in use.
func NewController(handler ProxyHandler, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		haltCh:  make(chan struct{}),
		handler: handler,
		logger:  logger,
	}
	c.state.Store(StateUnknown)
	return c
}

// AssignProxy records the proxy currently assigned to the account.
func (c *Controller) AssignProxy(p *device.Proxy) {
	c.proxy.Store(p)
	c.proxyReleased.Store(false)
}

// CurrentProxy returns the assigned proxy, or nil.
func (c *Controller) CurrentProxy() *device.Proxy {
	return c.proxy.Load()
}

// Halt stops automation for the account. It is idempotent.
func (c *Controller) Halt() {
	c.haltOnce.Do(func() {
		c.halted.Store(true)
		close(c.haltCh)
		c.logger.Info("automation halted")
	})
}

// Halted reports whether Halt has been called.
func (c *Controller) Halted() bool {
	return c.halted.Load()
}

// HaltSignal is closed when the account is halted.
func (c *Controller) HaltSignal() <-chan struct{} {
	return c.haltCh
}

// ReleaseProxy unassigns the current proxy so it can be handed to another
// account.
func (c *Controller) ReleaseProxy() {
	if p := c.proxy.Swap(nil); p != nil {
		c.logger.Info("proxy released", "proxy", p.HostPort())
	}
	c.proxyReleased.Store(true)
}

// ProxyReleased reports whether the proxy was released since it was last
// assigned.
func (c *Controller) ProxyReleased() bool {
	return c.proxyReleased.Load()
}

// FlagProxy marks the current proxy as suspect. The flag is sticky until
// ClearProxyIssue.
func (c *Controller) FlagProxy() {
	c.proxyIssue.Store(true)
}

// ProxyIssue reports the proxy-suspect flag.
func (c *Controller) ProxyIssue() bool {
	return c.proxyIssue.Load()
}

// ClearProxyIssue resets the proxy-suspect flag, typically after rotating
// the proxy.
func (c *Controller) ClearProxyIssue() {
	c.proxyIssue.Store(false)
}

// MarkProxyBanned reports the current proxy as banned to the proxy handler.
func (c *Controller) MarkProxyBanned() {
	p := c.proxy.Load()
	if p == nil || c.handler == nil {
		return
	}
	c.handler.MarkProxy(p, true)
	c.logger.Warn("proxy marked banned", "proxy", p.HostPort())
}

// SetAccountState records the account state.
func (c *Controller) SetAccountState(s State) {
	if old := c.state.Swap(s); old != s {
		c.logger.Info("account state changed", "from", old, "to", s)
	}
}

// State returns the account state.
func (c *Controller) State() State {
	s, _ := c.state.Load().(State)
	return s
}
