// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/session"
	"github.com/trainerbot/trainerbot/internal/store"
	"github.com/trainerbot/trainerbot/pkg/errutil"
)

// ArtifactDir is the store directory holding template artifacts.
const ArtifactDir = "data"

// ArtifactKey returns the store key of an artifact.
func ArtifactKey(deviceID string, kind session.ArtifactKind) string {
	return ArtifactDir + "/" + deviceID + string(kind) + ".json"
}

// ArtifactCache stores template artifacts per device. Entries never expire;
// they are replaced when the server pushes a newer version.
type ArtifactCache struct {
	store  store.Store
	logger *slog.Logger
}

// NewArtifactCache returns an artifact cache over s.
func NewArtifactCache(s store.Store, logger *slog.Logger) *ArtifactCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactCache{store: s, logger: logger}
}

// Load returns the cached artifact. A missing artifact reports false with no
// error. Content that is not valid JSON is logged and reported as missing.
func (c *ArtifactCache) Load(ctx context.Context, deviceID string, kind session.ArtifactKind) ([]byte, bool, error) {
	data, err := c.store.Get(ctx, ArtifactKey(deviceID, kind))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, oops.With("device_id", deviceID).With("artifact", string(kind)).Wrap(err)
	}
	if !json.Valid(data) {
		errutil.LogWarn(c.logger, "ignoring malformed cached artifact",
			oops.Code("ARTIFACT_MALFORMED").
				With("device_id", deviceID).
				With("artifact", string(kind)).
				Errorf("artifact is not valid JSON"))
		return nil, false, nil
	}
	return data, true, nil
}

// Save replaces the cached artifact with data, which must be JSON.
func (c *ArtifactCache) Save(ctx context.Context, deviceID string, kind session.ArtifactKind, data []byte) error {
	if deviceID == "" {
		return oops.Code("ARTIFACT_DEVICE_MISSING").With("artifact", string(kind)).Errorf("device id is empty")
	}
	if !json.Valid(data) {
		return oops.Code("ARTIFACT_INVALID_JSON").
			With("device_id", deviceID).
			With("artifact", string(kind)).
			Errorf("artifact payload is not valid JSON")
	}
	if err := c.store.Put(ctx, ArtifactKey(deviceID, kind), data); err != nil {
		return oops.With("device_id", deviceID).With("artifact", string(kind)).Wrap(err)
	}
	return nil
}
