// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package login_test

import (
	"context"
	"encoding/json"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/trainerbot/trainerbot/internal/account"
	"github.com/trainerbot/trainerbot/internal/device"
	"github.com/trainerbot/trainerbot/internal/failure"
	"github.com/trainerbot/trainerbot/internal/session"
	"github.com/trainerbot/trainerbot/internal/session/scripted"
)

var _ = Describe("Establisher", func() {
	var (
		ctx  context.Context
		root string
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
	})

	Describe("successful handshake", func() {
		It("logs in with valid credentials, no proxy and no cached token", func() {
			h := newHarness(root, nil)
			Expect(h.est.LoggedIn()).To(BeFalse())

			outcome := h.est.Establish(ctx, validSettings())

			Expect(outcome.Success).To(BeTrue())
			Expect(outcome.Message).To(Equal("Successfully logged into server."))
			Expect(h.est.LoggedIn()).To(BeTrue())
			Expect(h.methods()).To(Equal([]string{"StartSession"}))
			Expect(h.account.Halted()).To(BeFalse())
		})

		It("attaches the artifact and token handlers", func() {
			h := newHarness(root, nil)

			h.est.Establish(ctx, validSettings())

			bridge := h.est.Bridge()
			Expect(bridge).NotTo(BeNil())
			Expect(bridge.PersistingEvents()).To(ConsistOf(
				session.EventItemTemplatesUpdated,
				session.EventUrlsUpdated,
				session.EventAssetDigestUpdated,
				session.EventLocalConfigUpdated,
				session.EventAccessTokenUpdated,
			))
			Expect(h.provider.Last().Subscribers()).To(Equal(bridge.Active()))
		})

		It("persists the token as indented JSON under Cache/", func() {
			h := newHarness(root, nil)

			h.est.Establish(ctx, validSettings())

			raw, err := os.ReadFile(h.tokenFile("ash-ptc"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring("\n  \"token\""))
			var token session.AccessToken
			Expect(json.Unmarshal(raw, &token)).To(Succeed())
			Expect(token.ExpiresAt).To(BeTemporally("==", fixedNow.Add(scripted.DefaultTokenTTL)))
		})

		It("writes pushed artifacts under data/", func() {
			h := newHarness(root, nil)
			h.est.Establish(ctx, validSettings())

			h.provider.Last().Emit(session.Event{
				Name:    session.EventItemTemplatesUpdated,
				Payload: json.RawMessage(`{"templates":[1,2]}`),
			})

			Expect(fileExists(root + "/data/dev1IT.json")).To(BeTrue())
		})

		It("marks the account captcha pending on a captcha push", func() {
			h := newHarness(root, nil)
			h.est.Establish(ctx, validSettings())

			h.provider.Last().Emit(session.Event{
				Name:    session.EventCaptchaReceived,
				Payload: json.RawMessage(`{"url":"https://captcha.example"}`),
			})

			Expect(h.account.State()).To(Equal(account.StateCaptchaPending))
		})
	})

	Describe("token cache", func() {
		It("resumes from a usable cached token without authenticating", func() {
			h := newHarness(root, nil)
			Expect(h.writeToken(&session.AccessToken{
				UserID: "ash", ProviderID: "ptc", Token: "cached",
				ExpiresAt: fixedNow.Add(time.Hour),
			})).To(Succeed())

			outcome := h.est.Establish(ctx, validSettings())

			Expect(outcome.Success).To(BeTrue())
			Expect(h.methods()).To(Equal([]string{"ResumeSession"}))
			Expect(h.est.Session().AccessToken().Token).To(Equal("cached"))
		})

		It("reuses the token when the provider reports a different user id", func() {
			h := newHarness(root, &scripted.Scenario{Token: scripted.Token{UserID: "uid-123"}})

			Expect(h.est.Establish(ctx, validSettings()).Success).To(BeTrue())
			h.est.Logout()
			Expect(h.est.Establish(ctx, validSettings()).Success).To(BeTrue())

			Expect(h.methods()).To(Equal([]string{"StartSession", "ResumeSession"}))
			Expect(fileExists(h.tokenFile("ash-ptc"))).To(BeTrue())
			Expect(fileExists(h.tokenFile("uid-123-ptc"))).To(BeFalse())
		})

		It("never reuses an expired token", func() {
			h := newHarness(root, nil)
			Expect(h.writeToken(&session.AccessToken{
				UserID: "ash", ProviderID: "ptc", Token: "stale",
				ExpiresAt: fixedNow.Add(-time.Minute),
			})).To(Succeed())

			outcome := h.est.Establish(ctx, validSettings())

			Expect(outcome.Success).To(BeTrue())
			Expect(h.methods()).To(Equal([]string{"StartSession"}))
			token, ok := h.tokens.Load(ctx, "ash-ptc")
			Expect(ok).To(BeTrue())
			Expect(token.Token).NotTo(Equal("stale"))
		})
	})

	Describe("artifact seeding", func() {
		It("seeds cached artifacts and skips missing ones", func() {
			h := newHarness(root, nil)
			Expect(h.writeArtifact("dev1", session.ArtifactItemTemplates, `{"it":true}`)).To(Succeed())
			Expect(h.writeArtifact("dev1", session.ArtifactRemoteConfigVersion, `{"lcv":3}`)).To(Succeed())

			outcome := h.est.Establish(ctx, validSettings())
			Expect(outcome.Success).To(BeTrue())

			sess := h.provider.Last()
			data, ok := sess.Seeded(session.ArtifactItemTemplates)
			Expect(ok).To(BeTrue())
			Expect(string(data)).To(MatchJSON(`{"it":true}`))
			_, ok = sess.Seeded(session.ArtifactRemoteConfigVersion)
			Expect(ok).To(BeTrue())
			_, ok = sess.Seeded(session.ArtifactDownloadURLs)
			Expect(ok).To(BeFalse())
			_, ok = sess.Seeded(session.ArtifactAssetDigests)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("failures", func() {
		It("halts and releases the proxy when the account is not verified", func() {
			h := newHarness(root, &scripted.Scenario{
				Startup: scripted.Startup{Fail: fail(session.KindAccountNotVerified)},
			})

			outcome := h.est.Establish(ctx, validSettings())

			Expect(outcome.Success).To(BeFalse())
			Expect(outcome.Message).To(Equal("Account not verified."))
			Expect(h.account.Halted()).To(BeTrue())
			Expect(h.account.ProxyReleased()).To(BeTrue())
			Expect(h.account.State()).To(Equal(account.StateNotVerified))
			Expect(h.est.LoggedIn()).To(BeFalse())
			Expect(h.provider.Last().IsShutdown()).To(BeTrue())
		})

		It("halts and flags the proxy on a timeout with a proxy configured", func() {
			h := newHarness(root, &scripted.Scenario{
				Startup: scripted.Startup{Fail: fail(session.KindNetworkTimeout)},
			})

			outcome := h.est.Establish(ctx, withProxy(validSettings()))

			Expect(outcome.Success).To(BeFalse())
			Expect(outcome.Message).To(ContainSubstring("timed out"))
			Expect(h.account.ProxyIssue()).To(BeTrue())
			Expect(h.account.Halted()).To(BeTrue())
		})

		It("flags the proxy without halting on a connect failure", func() {
			h := newHarness(root, &scripted.Scenario{
				Start: scripted.Step{Fail: fail(session.KindConnectFailure)},
			})
			s := withProxy(validSettings())
			s.StopOnIPBan = false

			outcome := h.est.Establish(ctx, s)

			Expect(outcome.Success).To(BeFalse())
			Expect(outcome.Message).To(Equal(failure.MsgProxyOffline))
			Expect(h.account.ProxyIssue()).To(BeTrue())
			Expect(h.account.Halted()).To(BeFalse())
		})

		It("marks the assigned proxy banned on an IP ban", func() {
			h := newHarness(root, &scripted.Scenario{
				Startup: scripted.Startup{Fail: fail(session.KindIPBanned)},
			})
			assigned := &device.Proxy{Address: "10.0.0.1", Port: 3128}
			h.account.AssignProxy(assigned)

			outcome := h.est.Establish(ctx, withProxy(validSettings()))

			Expect(outcome.Message).To(Equal(failure.MsgProxyBanned))
			Expect(h.account.Halted()).To(BeTrue())
			Expect(h.handler.marked).To(ConsistOf(assigned))
			Expect(h.handler.banned).To(ConsistOf(true))
		})

		It("passes the login provider message through", func() {
			h := newHarness(root, &scripted.Scenario{
				Start: scripted.Step{Fail: &scripted.Failure{Kind: "LOGIN_PROVIDER_ERROR", Message: "Your account has been locked"}},
			})

			outcome := h.est.Establish(ctx, validSettings())

			Expect(outcome.Message).To(Equal("Your account has been locked"))
			Expect(h.account.Halted()).To(BeTrue())
			Expect(h.account.ProxyReleased()).To(BeTrue())
		})

		It("reports a startup the server did not accept without side effects", func() {
			reject := false
			h := newHarness(root, &scripted.Scenario{Startup: scripted.Startup{Accept: &reject}})

			outcome := h.est.Establish(ctx, withProxy(validSettings()))

			Expect(outcome.Success).To(BeFalse())
			Expect(outcome.Message).To(Equal(failure.MsgStartupRejected))
			Expect(h.account.Halted()).To(BeFalse())
			Expect(h.account.ProxyIssue()).To(BeFalse())
			Expect(h.est.LoggedIn()).To(BeFalse())
		})
	})

	Describe("unsupported configuration", func() {
		It("fails without calling the provider for an unknown auth kind", func() {
			h := newHarness(root, nil)
			s := validSettings()
			s.AuthType = "facebook"

			outcome := h.est.Establish(ctx, s)

			Expect(outcome.Success).To(BeFalse())
			Expect(outcome.Kind).To(Equal(session.KindUnsupportedConfiguration))
			Expect(outcome.Message).To(ContainSubstring("facebook"))
			Expect(outcome.Halt).To(BeTrue())
			Expect(h.provider.Calls()).To(BeEmpty())
			Expect(fileExists(h.tokenFile("ash-facebook"))).To(BeFalse())
		})

		It("fails without calling the provider for a username that is not a valid cache key", func() {
			h := newHarness(root, nil)
			s := validSettings()
			s.Username = "team/ash"

			outcome := h.est.Establish(ctx, s)

			Expect(outcome.Kind).To(Equal(session.KindUnsupportedConfiguration))
			Expect(outcome.Halt).To(BeTrue())
			Expect(h.provider.Calls()).To(BeEmpty())
			Expect(fileExists(root + "/Cache/team")).To(BeFalse())
		})

		It("fails without calling the provider for an out-of-range firmware profile", func() {
			h := newHarness(root, nil)
			s := validSettings()
			s.Device.FirmwareProfile = 99

			outcome := h.est.Establish(ctx, s)

			Expect(outcome.Kind).To(Equal(session.KindUnsupportedConfiguration))
			Expect(h.provider.Calls()).To(BeEmpty())
		})
	})

	Describe("logout", func() {
		It("detaches push events and shuts the session down", func() {
			h := newHarness(root, nil)
			h.est.Establish(ctx, validSettings())
			sess := h.provider.Last()

			h.est.Logout()

			Expect(h.est.LoggedIn()).To(BeFalse())
			Expect(sess.Subscribers()).To(Equal(0))
			Expect(sess.IsShutdown()).To(BeTrue())
			Expect(h.est.Session()).To(BeNil())
		})

		It("is a no-op when not logged in", func() {
			h := newHarness(root, nil)
			Expect(h.est.Logout).NotTo(Panic())
			h.est.Logout()
			Expect(h.est.LoggedIn()).To(BeFalse())
		})

		It("logs out before a fresh attempt", func() {
			h := newHarness(root, nil)
			h.est.Establish(ctx, validSettings())
			first := h.provider.Last()

			outcome := h.est.Establish(ctx, validSettings())

			Expect(outcome.Success).To(BeTrue())
			Expect(first.IsShutdown()).To(BeTrue())
			Expect(first.Subscribers()).To(Equal(0))
			Expect(h.provider.Sessions()).To(HaveLen(2))
			Expect(h.est.Session()).To(BeIdenticalTo(h.provider.Last()))
		})
	})
})
