// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package hashing holds the request-signing configuration shared by every
// session in the process. The hashing service itself is external.
package hashing

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/settings"
)

// Mode selects how hashing keys are used.
type Mode string

// Hashing modes.
const (
	ModeSingle Mode = "single"
	ModePool   Mode = "pool"
)

// Config is the process-wide hashing configuration.
type Config struct {
	Mode          Mode
	Keys          []string
	Host          string
	Endpoint      string
	ClientVersion *semver.Version
	// AppVersion is the numeric client version sent with signed requests,
	// e.g. 8700 for 0.87.x.
	AppVersion uint32
}

// FromSettings builds the configuration for s.
func FromSettings(s settings.HashSettings) (Config, error) {
	raw := s.ClientVersion
	if raw == "" {
		raw = settings.DefaultClientVersion
	}
	v, err := semver.StrictNewVersion(raw)
	if err != nil {
		return Config{}, oops.Code("HASH_CLIENT_VERSION_INVALID").
			With("client_version", raw).
			Public("Invalid client version " + raw).
			Wrap(err)
	}

	cfg := Config{
		Host:          s.HashHost,
		Endpoint:      s.HashEndpoint,
		ClientVersion: v,
		AppVersion:    AppVersion(v),
	}
	if s.UseOnlyOneKey {
		cfg.Mode = ModeSingle
		if s.AuthAPIKey != "" {
			cfg.Keys = []string{s.AuthAPIKey}
		}
	} else {
		cfg.Mode = ModePool
		cfg.Keys = slices.Clone(s.HashKeys)
	}
	return cfg, nil
}

// AppVersion converts a client version to its numeric form:
// major*10000 + minor*100. The patch level is not encoded.
func AppVersion(v *semver.Version) uint32 {
	return uint32(v.Major()*10000 + v.Minor()*100) // #nosec G115 -- versions are small
}

// Equal reports whether two configurations are the same.
func (c Config) Equal(o Config) bool {
	if c.Mode != o.Mode || c.Host != o.Host || c.Endpoint != o.Endpoint || c.AppVersion != o.AppVersion {
		return false
	}
	if (c.ClientVersion == nil) != (o.ClientVersion == nil) {
		return false
	}
	if c.ClientVersion != nil && !c.ClientVersion.Equal(o.ClientVersion) {
		return false
	}
	return slices.Equal(c.Keys, o.Keys)
}

// LogValue implements slog.LogValuer. Keys are never logged.
func (c Config) LogValue() slog.Value {
	version := ""
	if c.ClientVersion != nil {
		version = c.ClientVersion.String()
	}
	return slog.GroupValue(
		slog.String("mode", string(c.Mode)),
		slog.Int("keys", len(c.Keys)),
		slog.String("host", c.Host),
		slog.String("client_version", version),
		slog.Any("app_version", c.AppVersion),
	)
}

// Process owns the hashing configuration for the lifetime of the process.
// It is configured at most once.
type Process struct {
	mu     sync.Mutex
	active *Config
}

// NewProcess returns an unconfigured Process.
func NewProcess() *Process {
	return &Process{}
}

// Configure installs cfg. It fails with HASHER_ALREADY_CONFIGURED when a
// configuration is already active.
func (p *Process) Configure(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return oops.Code("HASHER_ALREADY_CONFIGURED").
			With("mode", string(p.active.Mode)).
			Errorf("hashing is already configured for this process")
	}
	p.active = &cfg
	return nil
}

// Ensure configures cfg unless a configuration is already active, and
// returns the active configuration. configured reports whether this call
// installed it.
func (p *Process) Ensure(cfg Config) (active Config, configured bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return *p.active, false
	}
	p.active = &cfg
	return cfg, true
}

// Active returns the active configuration, if any.
func (p *Process) Active() (Config, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return Config{}, false
	}
	return *p.active, true
}
