// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/session"
	"github.com/trainerbot/trainerbot/internal/store"
	"github.com/trainerbot/trainerbot/pkg/errutil"
)

// TokenDir is the store directory holding access tokens.
const TokenDir = "Cache"

// TokenKey returns the store key of the token owned by ownerKey.
func TokenKey(ownerKey string) string {
	return TokenDir + "/" + ownerKey + ".json"
}

// TokenCache loads and saves access tokens.
type TokenCache struct {
	store  store.Store
	logger *slog.Logger
}

// NewTokenCache returns a token cache over s. A nil logger uses slog.Default().
func NewTokenCache(s store.Store, logger *slog.Logger) *TokenCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenCache{store: s, logger: logger}
}

// Load returns the cached token for ownerKey. A missing or unreadable token
// reports false; unreadable tokens are logged.
func (c *TokenCache) Load(ctx context.Context, ownerKey string) (*session.AccessToken, bool) {
	data, err := c.store.Get(ctx, TokenKey(ownerKey))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		errutil.LogWarn(c.logger, "token cache read failed", err)
		return nil, false
	}

	var token session.AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		errutil.LogWarn(c.logger, "discarding malformed cached token",
			oops.Code("TOKEN_MALFORMED").With("owner", ownerKey).Wrap(err))
		return nil, false
	}
	if token.Token == "" || token.ExpiresAt.IsZero() {
		errutil.LogWarn(c.logger, "discarding malformed cached token",
			oops.Code("TOKEN_MALFORMED").With("owner", ownerKey).Errorf("token or expiry missing"))
		return nil, false
	}
	if len(token.Payload) > 0 {
		// MarshalIndent re-indents the raw payload on save.
		var buf bytes.Buffer
		if err := json.Compact(&buf, token.Payload); err == nil {
			token.Payload = buf.Bytes()
		}
	}
	return &token, true
}

// Save writes token under its own owner key. See SaveAs.
func (c *TokenCache) Save(ctx context.Context, token *session.AccessToken) error {
	if token == nil {
		return oops.Code("TOKEN_NIL").Errorf("cannot save a nil token")
	}
	return c.SaveAs(ctx, token.OwnerKey(), token)
}

// SaveAs writes token as indented JSON under owner, replacing any previous
// token of that owner. The owner is the key Load is later called with,
// whatever user id the provider reported in the token.
func (c *TokenCache) SaveAs(ctx context.Context, owner string, token *session.AccessToken) error {
	if token == nil {
		return oops.Code("TOKEN_NIL").Errorf("cannot save a nil token")
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return oops.Code("TOKEN_ENCODE_FAILED").With("owner", owner).Wrap(err)
	}
	if err := c.store.Put(ctx, TokenKey(owner), data); err != nil {
		return oops.With("owner", owner).Wrap(err)
	}
	return nil
}

// IsUsable reports whether token may be reused at now: it must exist and
// expire strictly after now.
func (c *TokenCache) IsUsable(token *session.AccessToken, now time.Time) bool {
	return IsUsable(token, now)
}

// IsUsable is the stateless form of TokenCache.IsUsable.
func IsUsable(token *session.AccessToken, now time.Time) bool {
	return token != nil && !token.IsExpiredAt(now)
}

// List returns the owner keys of every cached token.
func (c *TokenCache) List(ctx context.Context) ([]string, error) {
	keys, err := c.store.List(ctx, TokenDir)
	if err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, TokenDir+"/")
		if owner, ok := strings.CutSuffix(name, ".json"); ok && owner != "" {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

// Delete removes the cached token of ownerKey.
func (c *TokenCache) Delete(ctx context.Context, ownerKey string) error {
	return c.store.Delete(ctx, TokenKey(ownerKey))
}
