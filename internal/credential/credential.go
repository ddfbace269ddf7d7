// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package credential resolves the configured authentication kind into a
// login provider handle.
package credential

import (
	"slices"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/device"
)

// Supported authentication kinds.
const (
	KindGoogle = "google"
	KindPTC    = "ptc"
)

// LoginProvider is an opaque credential handle handed to the session
// provider.
type LoginProvider interface {
	UserID() string
	ProviderID() string
}

// OwnerKey is the token cache key for a user of a login provider.
func OwnerKey(userID, providerID string) string {
	return userID + "-" + providerID
}

// Basic is the default handle. It carries the raw credentials for the
// session provider to exchange.
type Basic struct {
	Kind     string
	Username string
	Password string
	// Proxy is set only for kinds that authenticate through the proxy.
	Proxy *device.Proxy
}

// UserID implements LoginProvider.
func (b *Basic) UserID() string { return b.Username }

// ProviderID implements LoginProvider.
func (b *Basic) ProviderID() string { return b.Kind }

// Factory creates a login provider for one kind.
type Factory func(username, password string, proxy *device.Proxy) (LoginProvider, error)

// Resolver maps authentication kinds to factories.
type Resolver struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewResolver returns a resolver with the google and ptc kinds registered.
func NewResolver() *Resolver {
	r := &Resolver{factories: make(map[string]Factory)}
	r.Register(KindGoogle, func(username, password string, _ *device.Proxy) (LoginProvider, error) {
		return &Basic{Kind: KindGoogle, Username: username, Password: password}, nil
	})
	r.Register(KindPTC, func(username, password string, proxy *device.Proxy) (LoginProvider, error) {
		return &Basic{Kind: KindPTC, Username: username, Password: password, Proxy: proxy}, nil
	})
	return r
}

// Register installs or replaces the factory for kind.
func (r *Resolver) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalize(kind)] = f
}

// Kinds returns the registered kinds in sorted order.
func (r *Resolver) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Resolve returns the login provider for kind. Unknown kinds fail with
// UNSUPPORTED_AUTH_KIND; the error is not retryable.
func (r *Resolver) Resolve(kind, username, password string, proxy *device.Proxy) (LoginProvider, error) {
	r.mu.RLock()
	f, ok := r.factories[normalize(kind)]
	r.mu.RUnlock()
	if !ok {
		return nil, oops.Code("UNSUPPORTED_AUTH_KIND").
			With("auth_type", kind).
			Public("Unsupported login type: " + kind).
			Errorf("unsupported auth kind %q", kind)
	}
	if username == "" {
		return nil, oops.Code("CREDENTIALS_MISSING").
			With("auth_type", kind).
			Public("Username is missing").
			Errorf("no username configured")
	}
	lp, err := f(username, password, proxy)
	if err != nil {
		return nil, oops.Code("LOGIN_PROVIDER_CREATE_FAILED").With("auth_type", kind).Wrap(err)
	}
	return lp, nil
}

func normalize(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
