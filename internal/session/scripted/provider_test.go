// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package scripted_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trainerbot/trainerbot/internal/credential"
	"github.com/trainerbot/trainerbot/internal/session"
	"github.com/trainerbot/trainerbot/internal/session/scripted"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startRequest() session.StartRequest {
	return session.StartRequest{
		Login:     &credential.Basic{Kind: credential.KindPTC, Username: "ash", Password: "pikachu"},
		Latitude:  40.7,
		Longitude: -74.0,
	}
}

func TestProvider_StartSessionIssuesToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := scripted.NewProvider(&scripted.Scenario{Token: scripted.Token{TTL: time.Hour}},
		scripted.WithClock(func() time.Time { return now }))

	sess, err := p.StartSession(context.Background(), startRequest())
	require.NoError(t, err)
	defer sess.Shutdown()

	token := sess.AccessToken()
	require.NotNil(t, token)
	assert.Equal(t, "ash", token.UserID)
	assert.Equal(t, "ptc", token.ProviderID)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, now.Add(time.Hour), token.ExpiresAt)

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "StartSession", calls[0].Method)
	assert.Equal(t, 40.7, calls[0].Request.Latitude)
}

func TestProvider_ResumeSessionKeepsToken(t *testing.T) {
	p := scripted.NewProvider(nil)
	cached := &session.AccessToken{UserID: "ash", ProviderID: "ptc", Token: "cached", ExpiresAt: time.Now().Add(time.Hour)}

	sess, err := p.ResumeSession(context.Background(), startRequest(), cached)
	require.NoError(t, err)
	defer sess.Shutdown()

	assert.Equal(t, "cached", sess.AccessToken().Token)
	assert.Equal(t, "ResumeSession", p.Calls()[0].Method)
	assert.Same(t, cached, p.Calls()[0].Token)
}

func TestProvider_ScriptedFailures(t *testing.T) {
	sc := &scripted.Scenario{
		Start:  scripted.Step{Fail: &scripted.Failure{Kind: "PROVIDER_OFFLINE", Message: "offline"}},
		Resume: scripted.Step{Fail: &scripted.Failure{Kind: "NETWORK_TIMEOUT", Message: "timeout"}},
	}
	p := scripted.NewProvider(sc)

	_, err := p.StartSession(context.Background(), startRequest())
	assert.Equal(t, session.KindProviderOffline, session.KindOf(err))

	_, err = p.ResumeSession(context.Background(), startRequest(), &session.AccessToken{Token: "x"})
	assert.Equal(t, session.KindNetworkTimeout, session.KindOf(err))

	assert.Empty(t, p.Sessions())
	assert.Nil(t, p.Last())
}

func TestProvider_CancelledContext(t *testing.T) {
	p := scripted.NewProvider(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.StartSession(ctx, startRequest())
	assert.Equal(t, session.KindRequestCancelled, session.KindOf(err))
}

func TestSession_Startup(t *testing.T) {
	reject := false
	tests := []struct {
		name     string
		startup  scripted.Startup
		accepted bool
		kind     session.FailureKind
	}{
		{"accepted by default", scripted.Startup{}, true, ""},
		{"rejected", scripted.Startup{Accept: &reject}, false, ""},
		{"failed", scripted.Startup{Fail: &scripted.Failure{Kind: "IP_BANNED"}}, false, session.KindIPBanned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := scripted.NewProvider(&scripted.Scenario{Startup: tt.startup})
			sess, err := p.StartSession(context.Background(), startRequest())
			require.NoError(t, err)
			defer sess.Shutdown()

			ok, err := sess.Startup(context.Background(), true)
			assert.Equal(t, tt.accepted, ok)
			assert.Equal(t, tt.kind, session.KindOf(err))
			assert.Equal(t, tt.accepted, p.Last().Started())
		})
	}
}

func TestSession_DeliversScenarioEvents(t *testing.T) {
	sc := &scripted.Scenario{Events: []scripted.Push{
		{Name: session.EventItemTemplatesUpdated, Payload: map[string]any{"v": 1}},
		{Name: session.EventCaptchaReceived, After: time.Millisecond, Payload: map[string]any{"url": "https://c"}},
	}}
	p := scripted.NewProvider(sc)
	sess, err := p.StartSession(context.Background(), startRequest())
	require.NoError(t, err)

	var mu sync.Mutex
	var got []session.Event
	for _, name := range []session.EventName{session.EventItemTemplatesUpdated, session.EventCaptchaReceived} {
		sess.Subscribe(name, func(_ context.Context, ev session.Event) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev)
		})
	}

	ok, err := sess.Startup(context.Background(), true)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	sess.Shutdown()

	assert.Equal(t, session.EventItemTemplatesUpdated, got[0].Name)
	assert.JSONEq(t, `{"v":1}`, string(got[0].Payload))
	var captcha session.CaptchaPayload
	require.NoError(t, json.Unmarshal(got[1].Payload, &captcha))
	assert.Equal(t, "https://c", captcha.URL)
}

func TestSession_ShutdownStopsPendingDelivery(t *testing.T) {
	sc := &scripted.Scenario{Events: []scripted.Push{
		{Name: session.EventMapUpdate, After: time.Hour},
	}}
	p := scripted.NewProvider(sc)
	sess, err := p.StartSession(context.Background(), startRequest())
	require.NoError(t, err)

	_, err = sess.Startup(context.Background(), false)
	require.NoError(t, err)

	sess.Shutdown()
	sess.Shutdown()
	assert.True(t, p.Last().IsShutdown())

	ok, err := sess.Startup(context.Background(), false)
	assert.False(t, ok)
	assert.Equal(t, session.KindConnectionClosed, session.KindOf(err))
}

func TestSession_SubscribeAndUnsubscribe(t *testing.T) {
	p := scripted.NewProvider(nil)
	sess, err := p.StartSession(context.Background(), startRequest())
	require.NoError(t, err)
	defer sess.Shutdown()
	s := p.Last()

	calls := 0
	unsub := sess.Subscribe(session.EventMapUpdate, func(context.Context, session.Event) { calls++ })
	assert.Equal(t, 1, s.Subscribers())

	s.Emit(session.Event{Name: session.EventMapUpdate})
	unsub()
	unsub()
	s.Emit(session.Event{Name: session.EventMapUpdate})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Subscribers())
}

func TestSession_SeedArtifact(t *testing.T) {
	p := scripted.NewProvider(nil)
	sess, err := p.StartSession(context.Background(), startRequest())
	require.NoError(t, err)
	defer sess.Shutdown()

	require.NoError(t, sess.SeedArtifact(session.ArtifactItemTemplates, []byte(`{"a":1}`)))
	assert.Error(t, sess.SeedArtifact(session.ArtifactDownloadURLs, nil))

	data, ok := p.Last().Seeded(session.ArtifactItemTemplates)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(data))
	_, ok = p.Last().Seeded(session.ArtifactDownloadURLs)
	assert.False(t, ok)
}
