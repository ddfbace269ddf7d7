// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package goplugin runs Session Providers out of process using HashiCorp's
// go-plugin over net/rpc.
package goplugin

import (
	"errors"
	"os"
	"os/exec"
	"sync"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/session"
)

// ErrHostClosed is returned when operations are attempted on a closed host.
var ErrHostClosed = errors.New("host is closed")

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the RPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- execPath is operator supplied
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolNetRPC},
	})
}

// Host launches a provider plugin process and hands out its provider.
type Host struct {
	clientFactory ClientFactory

	mu     sync.Mutex
	client PluginClient
	closed bool
}

// NewHost creates a host that launches real plugin processes.
func NewHost() *Host {
	return &Host{clientFactory: &DefaultClientFactory{}}
}

// NewHostWithFactory creates a host with a custom client factory (for testing).
// Panics if factory is nil.
func NewHostWithFactory(factory ClientFactory) *Host {
	if factory == nil {
		panic("goplugin: factory cannot be nil")
	}
	return &Host{clientFactory: factory}
}

// Load starts the plugin at execPath and returns its provider. A host runs
// one plugin; loading again replaces the previous process.
func (h *Host) Load(execPath string) (session.Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHostClosed
	}

	if _, err := os.Stat(execPath); err != nil {
		return nil, oops.Code("PLUGIN_NOT_FOUND").With("path", execPath).Wrap(err)
	}

	client := h.clientFactory.NewClient(execPath)

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, oops.Code("PLUGIN_CONNECT_FAILED").With("path", execPath).Wrap(err)
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, oops.Code("PLUGIN_DISPENSE_FAILED").With("path", execPath).Wrap(err)
	}

	provider, ok := raw.(session.Provider)
	if !ok {
		client.Kill()
		return nil, oops.Code("PLUGIN_TYPE_MISMATCH").
			With("path", execPath).
			Errorf("plugin %s does not implement a session provider", execPath)
	}

	if h.client != nil {
		h.client.Kill()
	}
	h.client = client
	return provider, nil
}

// Close kills the plugin process. Closing twice is a no-op.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if h.client != nil {
		h.client.Kill()
		h.client = nil
	}
	h.closed = true
}
