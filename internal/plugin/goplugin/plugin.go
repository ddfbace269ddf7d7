// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package goplugin

import (
	"errors"
	"net/rpc"

	hashiplug "github.com/hashicorp/go-plugin"

	"github.com/trainerbot/trainerbot/internal/session"
)

// PluginName is the name a provider binary serves under.
const PluginName = "provider"

// HandshakeConfig is the go-plugin handshake shared by the host and
// provider binaries.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "TRAINERBOT_PROVIDER_PLUGIN",
	MagicCookieValue: "trainerbot-provider-v1",
}

// PluginMap is the map of plugins the host can dispense.
var PluginMap = map[string]hashiplug.Plugin{
	PluginName: &ProviderPlugin{},
}

// ProviderPlugin implements go-plugin's Plugin interface over net/rpc.
type ProviderPlugin struct {
	// Impl is used by the plugin side (not used by host).
	Impl session.Provider
}

// Server returns the RPC server (called by plugin process).
func (p *ProviderPlugin) Server(*hashiplug.MuxBroker) (interface{}, error) {
	if p.Impl == nil {
		return nil, errors.New("goplugin: provider implementation is nil")
	}
	return NewRPCServer(p.Impl, nil), nil
}

// Client returns a session.Provider backed by the RPC client (called by
// host process).
func (p *ProviderPlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (interface{}, error) {
	return NewRPCClient(c, nil), nil
}

// Serve runs provider as a plugin. It blocks until the host disconnects and
// should be called from main().
func Serve(provider session.Provider) {
	if provider == nil {
		panic("goplugin: provider cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &ProviderPlugin{Impl: provider},
		},
	})
}
