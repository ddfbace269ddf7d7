// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package login_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/trainerbot/trainerbot/internal/account"
	"github.com/trainerbot/trainerbot/internal/cache"
	"github.com/trainerbot/trainerbot/internal/device"
	"github.com/trainerbot/trainerbot/internal/hashing"
	"github.com/trainerbot/trainerbot/internal/login"
	"github.com/trainerbot/trainerbot/internal/session"
	"github.com/trainerbot/trainerbot/internal/session/scripted"
	"github.com/trainerbot/trainerbot/internal/settings"
	"github.com/trainerbot/trainerbot/internal/store"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// recordingHandler captures proxies reported to the proxy pool.
type recordingHandler struct {
	marked []*device.Proxy
	banned []bool
}

func (h *recordingHandler) MarkProxy(p *device.Proxy, banned bool) {
	h.marked = append(h.marked, p)
	h.banned = append(h.banned, banned)
}

type harness struct {
	root      string
	tokens    *cache.TokenCache
	artifacts *cache.ArtifactCache
	handler   *recordingHandler
	account   *account.Controller
	hashing   *hashing.Process
	provider  *scripted.Provider
	est       *login.Establisher
	logs      *bytes.Buffer
}

func newHarness(root string, sc *scripted.Scenario) *harness {
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fs := store.NewFileStore(root)
	h := &harness{
		root:      root,
		tokens:    cache.NewTokenCache(fs, logger),
		artifacts: cache.NewArtifactCache(fs, logger),
		handler:   &recordingHandler{},
		hashing:   hashing.NewProcess(),
		provider:  scripted.NewProvider(sc, scripted.WithClock(func() time.Time { return fixedNow })),
		logs:      logs,
	}
	h.account = account.NewController(h.handler, logger)
	h.est = login.New(login.Config{
		Provider:  h.provider,
		Hashing:   h.hashing,
		Tokens:    h.tokens,
		Artifacts: h.artifacts,
		Account:   h.account,
		Logger:    logger,
		Now:       func() time.Time { return fixedNow },
	})
	return h
}

func (h *harness) tokenFile(owner string) string {
	return filepath.Join(h.root, "Cache", owner+".json")
}

func (h *harness) writeToken(token *session.AccessToken) error {
	return h.tokens.Save(context.Background(), token)
}

func (h *harness) writeArtifact(deviceID string, kind session.ArtifactKind, data string) error {
	return h.artifacts.Save(context.Background(), deviceID, kind, []byte(data))
}

func (h *harness) methods() []string {
	var out []string
	for _, c := range h.provider.Calls() {
		out = append(out, c.Method)
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func validSettings() settings.UserSettings {
	s := settings.Defaults()
	s.AuthType = "ptc"
	s.Username = "ash"
	s.Password = "pikachu"
	s.DefaultLatitude = 40.7128
	s.DefaultLongitude = -74.006
	s.Device.DeviceID = "dev1"
	return s
}

func withProxy(s settings.UserSettings) settings.UserSettings {
	s.Proxy = settings.ProxySettings{Address: "10.0.0.1", Port: 3128}
	return s
}

func fail(kind session.FailureKind) *scripted.Failure {
	return &scripted.Failure{Kind: string(kind), Message: "simulated " + string(kind)}
}
