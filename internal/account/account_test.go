// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package account_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainerbot/trainerbot/internal/account"
	"github.com/trainerbot/trainerbot/internal/device"
)

type recordingHandler struct {
	mu     sync.Mutex
	marked []*device.Proxy
}

func (h *recordingHandler) MarkProxy(p *device.Proxy, banned bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if banned {
		h.marked = append(h.marked, p)
	}
}

func TestController_Defaults(t *testing.T) {
	c := account.NewController(nil, nil)

	assert.False(t, c.Halted())
	assert.False(t, c.ProxyIssue())
	assert.False(t, c.ProxyReleased())
	assert.Nil(t, c.CurrentProxy())
	assert.Equal(t, account.StateUnknown, c.State())
}

func TestController_HaltIsIdempotent(t *testing.T) {
	c := account.NewController(nil, nil)

	c.Halt()
	c.Halt()

	assert.True(t, c.Halted())
	select {
	case <-c.HaltSignal():
	default:
		t.Fatal("halt signal should be closed")
	}
}

func TestController_ReleaseProxy(t *testing.T) {
	c := account.NewController(nil, nil)
	c.AssignProxy(&device.Proxy{Address: "10.0.0.1", Port: 8080})

	c.ReleaseProxy()

	assert.Nil(t, c.CurrentProxy())
	assert.True(t, c.ProxyReleased())

	c.AssignProxy(&device.Proxy{Address: "10.0.0.2", Port: 8080})
	assert.False(t, c.ProxyReleased())
}

func TestController_ProxyIssueIsSticky(t *testing.T) {
	c := account.NewController(nil, nil)

	c.FlagProxy()
	assert.True(t, c.ProxyIssue())
	c.FlagProxy()
	assert.True(t, c.ProxyIssue())

	c.ClearProxyIssue()
	assert.False(t, c.ProxyIssue())
}

func TestController_MarkProxyBanned(t *testing.T) {
	h := &recordingHandler{}
	c := account.NewController(h, nil)

	c.MarkProxyBanned()
	assert.Empty(t, h.marked, "no proxy assigned")

	p := &device.Proxy{Address: "10.0.0.1", Port: 8080}
	c.AssignProxy(p)
	c.MarkProxyBanned()

	require.Len(t, h.marked, 1)
	assert.Same(t, p, h.marked[0])
}

func TestController_MarkProxyBannedWithoutHandler(t *testing.T) {
	c := account.NewController(nil, nil)
	c.AssignProxy(&device.Proxy{Address: "10.0.0.1", Port: 8080})

	assert.NotPanics(t, c.MarkProxyBanned)
}

func TestController_State(t *testing.T) {
	c := account.NewController(nil, nil)

	c.SetAccountState(account.StateCaptchaPending)
	assert.Equal(t, account.StateCaptchaPending, c.State())
}

func TestController_ConcurrentAccess(t *testing.T) {
	c := account.NewController(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.FlagProxy()
			c.SetAccountState(account.StateGood)
			c.Halt()
			_ = c.State()
		}()
	}
	wg.Wait()

	assert.True(t, c.Halted())
	assert.True(t, c.ProxyIssue())
	assert.Equal(t, account.StateGood, c.State())
}
