// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/trainerbot/trainerbot/internal/credential"
	"github.com/trainerbot/trainerbot/internal/device"
	"github.com/trainerbot/trainerbot/internal/hashing"
)

// AccessToken is the serializable proof of authentication returned by a
// Provider. It is cached on disk to skip re-authentication.
type AccessToken struct {
	UserID     string          `json:"user_id"`
	ProviderID string          `json:"provider_id"`
	Token      string          `json:"token"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// OwnerKey returns the cache key of the token owner.
func (t *AccessToken) OwnerKey() string {
	return credential.OwnerKey(t.UserID, t.ProviderID)
}

// IsExpiredAt reports whether the token is expired at the given time.
// A token expiring exactly at t is expired.
func (t *AccessToken) IsExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// ArtifactKind identifies one of the cached template artifacts.
type ArtifactKind string

// Cached artifact kinds. The value is the file name suffix.
const (
	ArtifactItemTemplates       ArtifactKind = "IT"
	ArtifactDownloadURLs        ArtifactKind = "UR"
	ArtifactAssetDigests        ArtifactKind = "AD"
	ArtifactRemoteConfigVersion ArtifactKind = "LCV"
)

// ArtifactKinds lists every artifact kind in seeding order.
func ArtifactKinds() []ArtifactKind {
	return []ArtifactKind{
		ArtifactItemTemplates,
		ArtifactDownloadURLs,
		ArtifactAssetDigests,
		ArtifactRemoteConfigVersion,
	}
}

// EventName identifies a server-push event.
type EventName string

// Push events delivered by a Session.
const (
	EventItemTemplatesUpdated EventName = "ItemTemplatesUpdated"
	EventUrlsUpdated          EventName = "UrlsUpdated"
	EventAssetDigestUpdated   EventName = "AssetDigestUpdated"
	EventLocalConfigUpdated   EventName = "LocalConfigUpdated"
	EventAccessTokenUpdated   EventName = "AccessTokenUpdated"
	EventCaptchaReceived      EventName = "CaptchaReceived"
	EventInventoryUpdate      EventName = "InventoryUpdate"
	EventMapUpdate            EventName = "MapUpdate"
	EventCheckAwardedBadges   EventName = "CheckAwardedBadgesReceived"
	EventHatchedEggsReceived  EventName = "HatchedEggsReceived"
)

// ArtifactFor returns the artifact kind written by a template push event.
func ArtifactFor(name EventName) (ArtifactKind, bool) {
	switch name {
	case EventItemTemplatesUpdated:
		return ArtifactItemTemplates, true
	case EventUrlsUpdated:
		return ArtifactDownloadURLs, true
	case EventAssetDigestUpdated:
		return ArtifactAssetDigests, true
	case EventLocalConfigUpdated:
		return ArtifactRemoteConfigVersion, true
	default:
		return "", false
	}
}

// Event is a single push notification. Payload is the JSON encoding of the
// event body; it may be empty for signal-only events.
type Event struct {
	Name    EventName       `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CaptchaPayload is the body of a CaptchaReceived event.
type CaptchaPayload struct {
	URL string `json:"url"`
}

// Handler consumes a push event. Handlers may be invoked concurrently with
// each other and with the establishment flow.
type Handler func(ctx context.Context, ev Event)

// Session is a live session handle owned by the establisher.
type Session interface {
	// Startup performs the liveness handshake. fullInit requests the complete
	// initial request batch. It reports false when the server did not accept
	// the session, and an error (see Fail) when the handshake failed.
	Startup(ctx context.Context, fullInit bool) (bool, error)

	// AccessToken returns the session's current token, which may have been
	// refreshed since the session was created.
	AccessToken() *AccessToken

	// SeedArtifact pre-loads a cached artifact so the session can skip the
	// corresponding download.
	SeedArtifact(kind ArtifactKind, data []byte) error

	// Subscribe registers h for the named event and returns a function that
	// removes the registration.
	Subscribe(name EventName, h Handler) (unsubscribe func())

	// Shutdown stops background delivery and releases the session.
	Shutdown()
}

// StartRequest carries everything a Provider needs to open a session.
type StartRequest struct {
	Login     credential.LoginProvider
	Latitude  float64
	Longitude float64
	Profile   device.Profile
	// Hashing is the process-wide signing configuration.
	Hashing hashing.Config
}

// Provider opens sessions against the remote service.
type Provider interface {
	// StartSession authenticates through the login provider and returns a
	// session that has not yet been started up.
	StartSession(ctx context.Context, req StartRequest) (Session, error)

	// ResumeSession builds a session from a cached token without an
	// authentication round trip.
	ResumeSession(ctx context.Context, req StartRequest, token *AccessToken) (Session, error)
}
